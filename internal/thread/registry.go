// ABOUTME: ThreadRegistry resolves a conversation's external generation session
// ABOUTME: Creates sessions lazily, exactly once per conversation, race-safe

package thread

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/shubhamAmrawat/ai-bot/internal/fault"
	"github.com/shubhamAmrawat/ai-bot/internal/store"
)

// RefStore defines what the registry needs from storage
type RefStore interface {
	AssignThreadRef(ctx context.Context, ownerID, conversationID, ref string) (string, error)
}

// ThreadCreator defines what the registry needs from the generation engine
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// Registry maps conversations to external thread references, creating them
// lazily and exactly once per conversation.
type Registry struct {
	store   RefStore
	creator ThreadCreator
	group   singleflight.Group
	logger  *slog.Logger
}

// New creates a Registry. Pass nil logger for default.
func New(refStore RefStore, creator ThreadCreator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   refStore,
		creator: creator,
		logger:  logger.With("component", "thread"),
	}
}

// ResolveOrCreate returns the conversation's thread reference, creating the
// external session on first use. Concurrent first calls for one conversation
// collapse into a single creation; losers adopt the winner's reference.
func (r *Registry) ResolveOrCreate(ctx context.Context, conv *store.Conversation) (string, error) {
	if conv.ThreadRef != "" {
		return conv.ThreadRef, nil
	}

	v, err, _ := r.group.Do(conv.ID, func() (interface{}, error) {
		ref, err := r.creator.CreateThread(ctx)
		if err != nil {
			return nil, fault.Wrap(fault.KindUpstream, "creating generation session", err)
		}

		effective, err := r.store.AssignThreadRef(ctx, conv.OwnerID, conv.ID, ref)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fault.Wrap(fault.KindNotFound, "conversation not found", err)
			}
			return nil, fault.Wrap(fault.KindPersistence, "saving thread reference", err)
		}

		if effective != ref {
			// Another process won the assignment; our session is abandoned
			r.logger.Debug("discarding losing thread ref",
				"conversation_id", conv.ID,
				"created", ref,
				"adopted", effective)
		}
		return effective, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}
