// ABOUTME: Tests for HTTP API handlers for conversation management.
// ABOUTME: Verifies auth enforcement, request handling, and response shapes.

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubhamAmrawat/ai-bot/internal/auth"
	"github.com/shubhamAmrawat/ai-bot/internal/config"
	"github.com/shubhamAmrawat/ai-bot/internal/engine"
	"github.com/shubhamAmrawat/ai-bot/internal/relay"
	"github.com/shubhamAmrawat/ai-bot/internal/store"
	"github.com/shubhamAmrawat/ai-bot/internal/thread"
)

const testJWTSecret = "test-secret"

// newTestGateway builds a gateway over a temp store and a mock engine.
func newTestGateway(t *testing.T) (*Gateway, *engine.MockEngine) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng := engine.NewMockEngine()
	registry := thread.New(s, eng, nil)
	relaySvc := relay.New(s, registry, eng, nil)
	require.NoError(t, relaySvc.InitAssistant(context.Background(), engine.Profile{
		Name:         "Chatbot",
		Instructions: "be helpful",
		Model:        "test-model",
	}))

	gw := &Gateway{
		config: &config.Config{
			Server: config.ServerConfig{HTTPAddr: "localhost:0"},
			Auth:   config.AuthConfig{JWTSecret: testJWTSecret},
		},
		store:    s,
		engine:   eng,
		registry: registry,
		relay:    relaySvc,
		verifier: auth.NewJWTVerifier([]byte(testJWTSecret)),
		logger:   slog.Default(),
		ready:    true,
	}
	return gw, eng
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewJWTVerifier([]byte(testJWTSecret)).Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func authedRequest(t *testing.T, method, target, userID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, userID))
	return req
}

func TestHandleNewChat(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/chat/new", "user-1"))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp ConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, store.DefaultTitle, resp.Title)
	assert.Empty(t, resp.Messages)
}

func TestHandleNewChat_RequiresAuth(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/new", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleNewChat_RejectsGet(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/chat/new", "user-1"))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHistory(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()
	ctx := context.Background()

	first, err := gw.store.CreateConversation(ctx, "user-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = gw.store.CreateConversation(ctx, "user-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// Bump the first conversation so ordering is by activity, not creation
	_, err = gw.store.AppendMessage(ctx, "user-1", first.ID, &store.Message{Role: store.RoleUser, Content: "bump"})
	require.NoError(t, err)

	// Another user's conversation must not leak into the listing
	_, err = gw.store.CreateConversation(ctx, "user-2")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/chat/history", "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 2)
	assert.Equal(t, first.ID, resp.Conversations[0].ID)
}

func TestHandleChatByID(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()
	ctx := context.Background()

	conv, err := gw.store.CreateConversation(ctx, "user-1")
	require.NoError(t, err)
	_, err = gw.store.AppendMessage(ctx, "user-1", conv.ID, &store.Message{Role: store.RoleUser, Content: "hello"})
	require.NoError(t, err)
	_, err = gw.store.AppendMessage(ctx, "user-1", conv.ID, &store.Message{Role: store.RoleAssistant, Content: "hi!"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/chat/"+conv.ID, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, conv.ID, resp.ID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, store.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, resp.Messages[1].Role)
}

func TestHandleChatByID_NotFound(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/chat/nonexistent", "user-1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "conversation not found", errResp["error"])
}

func TestHandleChatByID_WrongOwner(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	conv, err := gw.store.CreateConversation(context.Background(), "user-1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/chat/"+conv.ID, "user-2"))

	// Indistinguishable from a missing conversation
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReady(t *testing.T) {
	gw, _ := newTestGateway(t)
	mux := gw.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	gw.ready = false
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
