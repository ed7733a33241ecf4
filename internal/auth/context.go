// ABOUTME: Identity propagation for tracking the authenticated owner through handlers
// ABOUTME: Provides WithIdentity/IdentityFromContext for context plumbing

package auth

import (
	"context"
)

// Identity is the authenticated principal a request or connection is scoped to.
type Identity struct {
	UserID string
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
