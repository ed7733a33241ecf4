// ABOUTME: Store interface and data types for ai-bot persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned when a conversation does not exist or is owned by a
// different identity. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is the title of a conversation before its first message.
const DefaultTitle = "New Chat"

// titlePrefixLen is the number of characters of the first user message used
// as the conversation title. Set once, never recomputed.
const titlePrefixLen = 30

// Conversation is a titled, owned, ordered sequence of messages plus at most
// one external thread reference.
type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	ThreadRef string // empty until assigned; set at most once
	Messages  []*Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn's content, immutable once appended.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// Store defines the interface for conversation and message persistence.
// Every operation is scoped to the caller's owner identity.
type Store interface {
	// CreateConversation returns a new, empty conversation owned by ownerID.
	CreateConversation(ctx context.Context, ownerID string) (*Conversation, error)

	// GetConversation returns a conversation with its messages in append order.
	// Returns ErrNotFound when absent or owned by someone else.
	GetConversation(ctx context.Context, ownerID, id string) (*Conversation, error)

	// ListConversations returns conversation summaries (no messages) ordered
	// by updated_at descending.
	ListConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error)

	// AppendMessage appends a message, advances updated_at, and on the very
	// first append sets the title from the message content. Returns the
	// conversation as persisted after the append.
	AppendMessage(ctx context.Context, ownerID, conversationID string, msg *Message) (*Conversation, error)

	// AssignThreadRef sets the external thread reference if none is set and
	// returns the effective reference. When a reference already exists it is
	// returned unchanged and ref is discarded.
	AssignThreadRef(ctx context.Context, ownerID, conversationID, ref string) (string, error)

	// Close releases any resources held by the store
	Close() error
}

// TitleFor derives a conversation title from the first user message.
func TitleFor(content string) string {
	if utf8.RuneCountInString(content) <= titlePrefixLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:titlePrefixLen])
}
