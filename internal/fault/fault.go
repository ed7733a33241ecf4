// ABOUTME: Error taxonomy and classification for surfacing failures to clients
// ABOUTME: Maps internal errors to a small set of kinds with sanitized messages

package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the category of a failure as surfaced to clients.
type Kind string

const (
	KindAuth        Kind = "auth"        // missing/invalid/expired credential
	KindNotFound    Kind = "not_found"   // conversation absent or not owned by caller
	KindUpstream    Kind = "upstream"    // generation engine unreachable, errored, or timed out
	KindPersistence Kind = "persistence" // storage read/write failure
	KindInternal    Kind = "internal"    // anything unclassified
)

// safeMessages are the only messages ever surfaced for each kind when the
// wrapping site did not provide one. Internal detail never crosses the boundary.
var safeMessages = map[Kind]string{
	KindAuth:        "authentication failed",
	KindNotFound:    "conversation not found",
	KindUpstream:    "generation engine unavailable",
	KindPersistence: "storage failure",
	KindInternal:    "internal error",
}

// Error is a classified failure. The Msg field is safe to show to clients;
// the wrapped error carries internal detail for logs only.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a client-safe message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an internal error. The msg must be client-safe; err is
// retained for logging and errors.Is/As inspection only.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Classify returns the kind and client-safe message for any error.
// Unclassified errors report as internal with a generic message.
func Classify(err error) (Kind, string) {
	var fe *Error
	if errors.As(err, &fe) {
		msg := fe.Msg
		if msg == "" {
			msg = safeMessages[fe.Kind]
		}
		return fe.Kind, msg
	}
	return KindInternal, safeMessages[KindInternal]
}

// KindOf returns just the kind for an error.
func KindOf(err error) Kind {
	kind, _ := Classify(err)
	return kind
}

// IsKind reports whether err classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its conventional HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
