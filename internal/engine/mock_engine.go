// ABOUTME: Mock Engine implementation for testing
// ABOUTME: Scriptable increments, failure injection, and hooks for concurrency tests

package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockEngine is an in-memory Engine implementation for testing. Streams are
// scripted via Increments/StreamErr; CreateThreadHook lets concurrency tests
// insert a barrier inside thread creation.
type MockEngine struct {
	mu             sync.Mutex
	createdThreads []string
	messages       map[string][]string
	assistants     int

	// Failure injection
	CreateAssistantErr error
	CreateThreadErr    error
	AddMessageErr      error
	OpenErr            error // returned by StreamRun itself

	// Stream script: Increments are yielded in order, then StreamErr (which
	// may be nil for clean exhaustion) is surfaced.
	Increments []string
	StreamErr  error

	// BlockAfter, when >= 0, makes the stream wait for context cancellation
	// after yielding that many increments. Used for disconnect tests.
	BlockAfter int

	// CreateThreadHook runs inside CreateThread before the thread is recorded.
	CreateThreadHook func()
}

// NewMockEngine creates a MockEngine with no scripted increments.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		messages:   make(map[string][]string),
		BlockAfter: -1,
	}
}

func (m *MockEngine) CreateAssistant(ctx context.Context, profile Profile) (string, error) {
	if m.CreateAssistantErr != nil {
		return "", m.CreateAssistantErr
	}
	m.mu.Lock()
	m.assistants++
	m.mu.Unlock()
	return "asst_" + uuid.New().String(), nil
}

func (m *MockEngine) CreateThread(ctx context.Context) (string, error) {
	if m.CreateThreadHook != nil {
		m.CreateThreadHook()
	}
	if m.CreateThreadErr != nil {
		return "", m.CreateThreadErr
	}

	ref := "thread_" + uuid.New().String()
	m.mu.Lock()
	m.createdThreads = append(m.createdThreads, ref)
	m.mu.Unlock()
	return ref, nil
}

func (m *MockEngine) AddUserMessage(ctx context.Context, threadRef, content string) error {
	if m.AddMessageErr != nil {
		return m.AddMessageErr
	}
	m.mu.Lock()
	m.messages[threadRef] = append(m.messages[threadRef], content)
	m.mu.Unlock()
	return nil
}

func (m *MockEngine) StreamRun(ctx context.Context, threadRef, assistantID string) (Stream, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	return &mockStream{
		ctx:        ctx,
		increments: m.Increments,
		err:        m.StreamErr,
		blockAfter: m.BlockAfter,
	}, nil
}

// ThreadsCreated returns how many threads CreateThread has issued.
func (m *MockEngine) ThreadsCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.createdThreads)
}

// ThreadMessages returns the prompts forwarded into a thread.
func (m *MockEngine) ThreadMessages(threadRef string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages[threadRef]...)
}

type mockStream struct {
	ctx        context.Context
	increments []string
	err        error
	blockAfter int
	pos        int
	cur        string
	failed     bool
}

func (s *mockStream) Next() bool {
	if s.blockAfter >= 0 && s.pos == s.blockAfter {
		<-s.ctx.Done()
		s.failed = true
		return false
	}
	if s.pos >= len(s.increments) {
		return false
	}
	s.cur = s.increments[s.pos]
	s.pos++
	return true
}

func (s *mockStream) Current() string {
	return s.cur
}

func (s *mockStream) Err() error {
	if s.failed {
		return s.ctx.Err()
	}
	if s.pos >= len(s.increments) {
		return s.err
	}
	return nil
}
