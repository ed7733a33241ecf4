// ABOUTME: HTTP API handlers for conversation management.
// ABOUTME: Provides POST /api/chat/new plus history and single-conversation reads.

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shubhamAmrawat/ai-bot/internal/auth"
	"github.com/shubhamAmrawat/ai-bot/internal/store"
)

// ConversationResponse is the JSON shape for a conversation.
type ConversationResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Messages  []MessageResponse `json:"messages,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// MessageResponse is the JSON shape for a single message.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ConversationListResponse is the JSON response for GET /api/chat/history.
type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

func conversationToResponse(conv *store.Conversation, includeMessages bool) ConversationResponse {
	resp := ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: conv.UpdatedAt.Format(time.RFC3339Nano),
	}
	if includeMessages {
		resp.Messages = make([]MessageResponse, 0, len(conv.Messages))
		for _, m := range conv.Messages {
			resp.Messages = append(resp.Messages, MessageResponse{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
			})
		}
	}
	return resp
}

// handleNewChat handles POST /api/chat/new requests.
// Creates an empty conversation owned by the authenticated user.
func (g *Gateway) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		g.sendJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conv, err := g.store.CreateConversation(r.Context(), identity.UserID)
	if err != nil {
		g.logger.Error("failed to create conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.writeJSON(w, http.StatusCreated, conversationToResponse(conv, false))
}

// handleHistory handles GET /api/chat/history requests.
// Returns the caller's conversations, most recently active first.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		g.sendJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convs, err := g.store.ListConversations(r.Context(), identity.UserID, 0)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := ConversationListResponse{Conversations: make([]ConversationResponse, 0, len(convs))}
	for _, conv := range convs {
		resp.Conversations = append(resp.Conversations, conversationToResponse(conv, false))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleChatByID handles GET /api/chat/{id} requests.
// Returns the full conversation with messages in send order.
func (g *Gateway) handleChatByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		g.sendJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	if id == "" || strings.Contains(id, "/") {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}

	conv, err := g.store.GetConversation(r.Context(), identity.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		g.logger.Error("failed to load conversation", "id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	g.writeJSON(w, http.StatusOK, conversationToResponse(conv, true))
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
