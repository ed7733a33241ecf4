// ABOUTME: StreamRelay drives one message turn through an explicit state machine
// ABOUTME: Persists the user turn, streams cumulative output, persists the reply once

package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shubhamAmrawat/ai-bot/internal/engine"
	"github.com/shubhamAmrawat/ai-bot/internal/fault"
	"github.com/shubhamAmrawat/ai-bot/internal/store"
	"github.com/shubhamAmrawat/ai-bot/internal/thread"
)

// persistTimeout bounds the final assistant save so a slow store cannot hang
// the turn after streaming has finished.
const persistTimeout = 5 * time.Second

// turnState tracks a turn through its lifecycle.
type turnState int

const (
	stateIdle turnState = iota
	stateAuthorizing
	stateThreadReady
	stateSending
	stateStreaming
	stateCompleted
	stateFailed
)

func (s turnState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAuthorizing:
		return "authorizing"
	case stateThreadReady:
		return "thread_ready"
	case stateSending:
		return "sending"
	case stateStreaming:
		return "streaming"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service orchestrates message turns: ownership check, thread resolution,
// user persistence, streaming, assistant persistence.
type Service struct {
	store    store.Store
	registry *thread.Registry
	engine   engine.Engine
	locks    *keyedMutex
	logger   *slog.Logger

	// assistantID is set once by InitAssistant before the server accepts
	// connections and is read-only afterwards. Empty means profile creation
	// failed and every turn reports the engine as unavailable.
	assistantID string
}

// New creates a relay Service. Pass nil logger for default.
func New(st store.Store, registry *thread.Registry, eng engine.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		registry: registry,
		engine:   eng,
		locks:    newKeyedMutex(),
		logger:   logger.With("component", "relay"),
	}
}

// InitAssistant creates the process-wide assistant profile. Called once at
// startup; a failure leaves the relay running but unable to start turns.
func (s *Service) InitAssistant(ctx context.Context, profile engine.Profile) error {
	id, err := s.engine.CreateAssistant(ctx, profile)
	if err != nil {
		s.logger.Error("assistant creation failed, turns unavailable", "error", err)
		return err
	}
	s.assistantID = id
	s.logger.Info("assistant ready", "assistant_id", id, "model", profile.Model)
	return nil
}

// Turn runs one full message turn for the authenticated owner. emit receives
// the complete accumulated text after every increment, in generation order.
// Returns nil on completion (including an empty result) or a classified error
// on failure; no partial assistant message is ever persisted.
//
// Turns on the same conversation are serialized: a second submission queues
// until the in-flight turn completes or fails.
func (s *Service) Turn(ctx context.Context, ownerID, conversationID, content string, emit func(cumulative string)) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	// The submitter may be gone by the time a queued turn gets its slot
	if err := ctx.Err(); err != nil {
		return fault.Wrap(fault.KindInternal, "connection closed", err)
	}

	t := &turn{
		svc:            s,
		state:          stateIdle,
		ownerID:        ownerID,
		conversationID: conversationID,
	}
	return t.run(ctx, content, emit)
}

type turn struct {
	svc            *Service
	state          turnState
	ownerID        string
	conversationID string
}

func (t *turn) to(next turnState) {
	t.svc.logger.Debug("turn transition",
		"conversation_id", t.conversationID,
		"from", t.state.String(),
		"to", next.String())
	t.state = next
}

func (t *turn) fail(err error) error {
	from := t.state
	t.to(stateFailed)
	kind, _ := fault.Classify(err)
	t.svc.logger.Warn("turn failed",
		"conversation_id", t.conversationID,
		"state", from.String(),
		"kind", string(kind),
		"error", err)
	return err
}

func (t *turn) run(ctx context.Context, content string, emit func(string)) error {
	// Authorizing: load the conversation scoped to the bound identity
	t.to(stateAuthorizing)
	conv, err := t.svc.store.GetConversation(ctx, t.ownerID, t.conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return t.fail(fault.Wrap(fault.KindNotFound, "conversation not found", err))
		}
		return t.fail(fault.Wrap(fault.KindPersistence, "loading conversation", err))
	}

	if t.svc.assistantID == "" {
		return t.fail(fault.New(fault.KindUpstream, "assistant unavailable"))
	}

	// ThreadReady: resolve or create the generation session
	t.to(stateThreadReady)
	threadRef, err := t.svc.registry.ResolveOrCreate(ctx, conv)
	if err != nil {
		return t.fail(err)
	}

	// Sending: the user turn is made durable before any generation call
	t.to(stateSending)
	userMsg := &store.Message{Role: store.RoleUser, Content: content}
	if _, err := t.svc.store.AppendMessage(ctx, t.ownerID, t.conversationID, userMsg); err != nil {
		return t.fail(fault.Wrap(fault.KindPersistence, "saving message", err))
	}

	if err := t.svc.engine.AddUserMessage(ctx, threadRef, content); err != nil {
		return t.fail(fault.Wrap(fault.KindUpstream, "forwarding message", err))
	}

	// Streaming: consume increments, emitting the complete-so-far text each time
	t.to(stateStreaming)
	stream, err := t.svc.engine.StreamRun(ctx, threadRef, t.svc.assistantID)
	if err != nil {
		return t.fail(fault.Wrap(fault.KindUpstream, "starting generation", err))
	}

	var accumulated string
	for stream.Next() {
		accumulated += stream.Current()
		emit(accumulated)
	}
	if err := stream.Err(); err != nil {
		return t.fail(fault.Wrap(fault.KindUpstream, "generation interrupted", err))
	}
	if err := ctx.Err(); err != nil {
		return t.fail(fault.Wrap(fault.KindUpstream, "generation abandoned", err))
	}

	// Persist the reply only after clean exhaustion, only if non-empty. A
	// detached context so a disconnect at this point cannot lose a full reply.
	if accumulated != "" {
		saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		assistantMsg := &store.Message{Role: store.RoleAssistant, Content: accumulated}
		if _, err := t.svc.store.AppendMessage(saveCtx, t.ownerID, t.conversationID, assistantMsg); err != nil {
			return t.fail(fault.Wrap(fault.KindPersistence, "saving reply", err))
		}
	}

	t.to(stateCompleted)
	t.svc.logger.Debug("turn completed",
		"conversation_id", t.conversationID,
		"reply_chars", len(accumulated))
	return nil
}
