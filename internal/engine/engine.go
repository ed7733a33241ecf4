// ABOUTME: Boundary to the external text-generation engine
// ABOUTME: Defines assistant/thread lifecycle and the streaming run abstraction

package engine

import (
	"context"
	"errors"
)

// ErrNoAssistant indicates no assistant profile is available for runs.
var ErrNoAssistant = errors.New("no assistant profile")

// Profile describes the process-wide assistant created once at startup.
type Profile struct {
	Name         string
	Instructions string
	Model        string
}

// Stream is a lazy, finite sequence of text increments produced by one
// generation run. Next advances to the next increment; when it returns false,
// Err distinguishes clean exhaustion (nil) from failure.
type Stream interface {
	Next() bool
	Current() string
	Err() error
}

// Engine is the external generation service. Thread references returned by
// CreateThread are opaque; the engine owns the conversational memory behind
// them.
type Engine interface {
	// CreateAssistant registers the assistant profile and returns its ID.
	CreateAssistant(ctx context.Context, profile Profile) (string, error)

	// CreateThread creates a new generation session and returns its reference.
	CreateThread(ctx context.Context) (string, error)

	// AddUserMessage forwards one user prompt into the thread's memory.
	AddUserMessage(ctx context.Context, threadRef, content string) error

	// StreamRun opens a generation run against the thread and returns the
	// increment stream. Cancelling ctx abandons the run.
	StreamRun(ctx context.Context, threadRef, assistantID string) (Stream, error)
}
