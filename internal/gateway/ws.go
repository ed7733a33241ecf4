// ABOUTME: WebSocket endpoint carrying the realtime chat protocol.
// ABOUTME: Authenticates before upgrade, relays message turns, streams cumulative responses.

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/shubhamAmrawat/ai-bot/internal/auth"
	"github.com/shubhamAmrawat/ai-bot/internal/fault"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is the envelope for every message on the socket, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MessagePayload is the inbound "message" frame body.
type MessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// ResponsePayload is the outbound "response" frame body. Content carries the
// complete accumulated text so far, not a delta.
type ResponsePayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// ErrorPayload is the outbound "error" frame body.
type ErrorPayload struct {
	Message string `json:"message"`
}

// handleWS upgrades an authenticated request to a WebSocket connection and
// serves the chat protocol until the client disconnects.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	credential := auth.CredentialFromRequest(r)
	if credential == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	userID, err := g.verifier.Verify(credential)
	if err != nil {
		g.logger.Debug("websocket auth rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	logger := g.logger.With("component", "ws", "user_id", userID)
	logger.Info("websocket connected", "remote", conn.RemoteAddr().String())

	sess := &wsSession{
		gateway: g,
		conn:    conn,
		userID:  userID,
		logger:  logger,
	}
	sess.serve()
}

// wsSession serves one WebSocket connection. All writes happen on the serve
// goroutine, so emitted responses for a turn stay in generation order and
// never interleave with error frames.
type wsSession struct {
	gateway *Gateway
	conn    *websocket.Conn
	userID  string
	logger  *slog.Logger
}

func (s *wsSession) serve() {
	defer func() {
		_ = s.conn.Close()
		s.logger.Info("websocket disconnected")
	}()

	// The connection context is canceled when the read side sees the peer go
	// away, which aborts any in-flight turn.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame)
	go s.readLoop(ctx, frames, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(ctx, frame)
		}
	}
}

// readLoop reads frames off the wire and forwards them. On any read error it
// cancels the connection context so an in-flight turn stops streaming.
func (s *wsSession) readLoop(ctx context.Context, frames chan<- Frame, cancel context.CancelFunc) {
	defer close(frames)
	defer cancel()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Debug("discarding malformed frame", "error", err)
			continue
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame dispatches one inbound frame. Frames are processed one at a
// time, so turns submitted on the same connection run strictly in order.
func (s *wsSession) handleFrame(ctx context.Context, frame Frame) {
	switch frame.Event {
	case "message":
		var payload MessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			s.writeError("invalid message payload")
			return
		}
		s.handleMessage(ctx, payload)
	default:
		s.logger.Debug("ignoring unknown event", "event", frame.Event)
	}
}

func (s *wsSession) handleMessage(ctx context.Context, payload MessagePayload) {
	if payload.ConversationID == "" || strings.TrimSpace(payload.Content) == "" {
		s.writeError("conversation_id and content are required")
		return
	}

	emit := func(cumulative string) {
		s.writeFrame("response", ResponsePayload{
			ConversationID: payload.ConversationID,
			Content:        cumulative,
		})
	}

	err := s.gateway.relay.Turn(ctx, s.userID, payload.ConversationID, payload.Content, emit)
	if err != nil {
		if ctx.Err() != nil {
			// Peer is gone, nobody to report to
			return
		}
		_, msg := fault.Classify(err)
		s.writeError(msg)
	}
}

// writeError sends an error frame. The connection stays open; the client may
// retry or move on to another conversation.
func (s *wsSession) writeError(message string) {
	s.writeFrame("error", ErrorPayload{Message: message})
}

func (s *wsSession) writeFrame(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal frame data", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		s.logger.Error("failed to marshal frame", "event", event, "error", err)
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.logger.Debug("websocket write failed", "event", event, "error", err)
	}
}
