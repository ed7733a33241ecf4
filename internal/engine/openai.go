// ABOUTME: OpenAI-backed Engine implementation using chat completion streaming
// ABOUTME: Keeps per-thread transcripts so thread references carry conversational memory

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIEngine implements Engine against the OpenAI API. The chat completion
// endpoint is stateless, so the engine keeps each thread's transcript here and
// replays it on every run; the thread reference names that transcript.
type OpenAIEngine struct {
	client *openai.Client
	logger *slog.Logger

	mu       sync.Mutex
	profiles map[string]Profile
	threads  map[string]*thread
}

type thread struct {
	mu       sync.Mutex
	messages []openai.ChatCompletionMessageParamUnion
}

// NewOpenAIEngine creates an engine client. baseURL is optional and supports
// OpenAI-compatible endpoints.
func NewOpenAIEngine(apiKey, baseURL string, logger *slog.Logger) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIEngine{
		client:   &client,
		logger:   logger.With("component", "engine"),
		profiles: make(map[string]Profile),
		threads:  make(map[string]*thread),
	}, nil
}

func (e *OpenAIEngine) CreateAssistant(ctx context.Context, profile Profile) (string, error) {
	if profile.Model == "" {
		return "", fmt.Errorf("assistant profile requires a model")
	}

	id := "asst_" + uuid.New().String()
	e.mu.Lock()
	e.profiles[id] = profile
	e.mu.Unlock()

	e.logger.Info("assistant created", "assistant_id", id, "model", profile.Model)
	return id, nil
}

func (e *OpenAIEngine) CreateThread(ctx context.Context) (string, error) {
	ref := "thread_" + uuid.New().String()
	e.mu.Lock()
	e.threads[ref] = &thread{}
	e.mu.Unlock()

	e.logger.Debug("thread created", "thread_ref", ref)
	return ref, nil
}

// getThread resolves a thread, recreating an empty transcript for references
// issued by an earlier process. The reference stays valid; only the engine's
// memory of the conversation is lost across restarts.
func (e *OpenAIEngine) getThread(ref string) *thread {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.threads[ref]
	if !ok {
		t = &thread{}
		e.threads[ref] = t
	}
	return t
}

func (e *OpenAIEngine) AddUserMessage(ctx context.Context, threadRef, content string) error {
	t := e.getThread(threadRef)
	t.mu.Lock()
	t.messages = append(t.messages, openai.UserMessage(content))
	t.mu.Unlock()
	return nil
}

func (e *OpenAIEngine) StreamRun(ctx context.Context, threadRef, assistantID string) (Stream, error) {
	e.mu.Lock()
	profile, ok := e.profiles[assistantID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNoAssistant
	}

	t := e.getThread(threadRef)
	t.mu.Lock()
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(t.messages)+1)
	if profile.Instructions != "" {
		messages = append(messages, openai.SystemMessage(profile.Instructions))
	}
	messages = append(messages, t.messages...)
	t.mu.Unlock()

	params := openai.ChatCompletionNewParams{
		Model:    profile.Model,
		Messages: messages,
	}

	raw := e.client.Chat.Completions.NewStreaming(ctx, params)

	return &openAIStream{
		raw: raw,
		commit: func(full string) {
			if full == "" {
				return
			}
			t.mu.Lock()
			t.messages = append(t.messages, openai.AssistantMessage(full))
			t.mu.Unlock()
		},
	}, nil
}

// openAIStream adapts the SSE chunk stream to the Stream interface and commits
// the full reply back into the thread transcript on clean exhaustion.
type openAIStream struct {
	raw       *ssestream.Stream[openai.ChatCompletionChunk]
	commit    func(full string)
	acc       strings.Builder
	cur       string
	committed bool
}

func (s *openAIStream) Next() bool {
	for s.raw.Next() {
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		s.cur = delta
		s.acc.WriteString(delta)
		return true
	}

	if s.Err() == nil && !s.committed {
		s.committed = true
		s.commit(s.acc.String())
	}
	return false
}

func (s *openAIStream) Current() string {
	return s.cur
}

func (s *openAIStream) Err() error {
	if err := s.raw.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
