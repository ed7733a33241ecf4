// ABOUTME: HTTP middleware and handshake credential extraction for JWT authentication
// ABOUTME: Extracts bearer tokens from Authorization headers or the token query parameter

package auth

import (
	"net/http"
	"strings"
)

// ExtractBearer extracts a bearer token from an Authorization header value.
// Returns the token and an error message (empty if successful).
func ExtractBearer(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// CredentialFromRequest pulls the opaque bearer credential from a request.
// Realtime clients cannot always set headers during the websocket handshake,
// so a token query parameter is accepted as a fallback.
func CredentialFromRequest(r *http.Request) string {
	if token, errMsg := ExtractBearer(r.Header.Get("Authorization")); errMsg == "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// Middleware creates an HTTP middleware that verifies JWT tokens and attaches
// the resolved identity to the request context. Requests without a valid
// credential are rejected with 401 before reaching the handler.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := ExtractBearer(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}

			ident := &Identity{UserID: userID}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
