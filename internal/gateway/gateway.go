// ABOUTME: Gateway orchestrator that coordinates the HTTP and WebSocket servers
// ABOUTME: Wires store, engine, thread registry, and relay; manages lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/shubhamAmrawat/ai-bot/internal/auth"
	"github.com/shubhamAmrawat/ai-bot/internal/config"
	"github.com/shubhamAmrawat/ai-bot/internal/engine"
	"github.com/shubhamAmrawat/ai-bot/internal/relay"
	"github.com/shubhamAmrawat/ai-bot/internal/store"
	"github.com/shubhamAmrawat/ai-bot/internal/thread"
)

// Gateway orchestrates the chat server components. It owns the HTTP server
// that carries both the REST API and the WebSocket endpoint.
type Gateway struct {
	config     *config.Config
	store      store.Store
	engine     engine.Engine
	registry   *thread.Registry
	relay      *relay.Service
	verifier   auth.TokenVerifier
	httpServer *http.Server
	logger     *slog.Logger

	// ready flips once the assistant profile has been registered
	ready bool
}

// initStore creates the store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("AIBOT_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	eng, err := engine.NewOpenAIEngine(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger.With("component", "engine"))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	registry := thread.New(s, eng, logger.With("component", "thread-registry"))
	relaySvc := relay.New(s, registry, eng, logger)

	gw := &Gateway{
		config:   cfg,
		store:    s,
		engine:   eng,
		registry: registry,
		relay:    relaySvc,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP mux carrying health, REST, and WebSocket endpoints.
func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	authMiddleware := auth.Middleware(g.verifier)
	mux.Handle("/api/chat/new", authMiddleware(http.HandlerFunc(g.handleNewChat)))
	mux.Handle("/api/chat/history", authMiddleware(http.HandlerFunc(g.handleHistory)))
	mux.Handle("/api/chat/", authMiddleware(http.HandlerFunc(g.handleChatByID)))

	// The WebSocket endpoint authenticates before upgrading, not via middleware,
	// so a bad token gets a plain 401 instead of a failed upgrade.
	mux.HandleFunc("/ws", g.handleWS)

	return mux
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	// Register the assistant profile before accepting traffic. A failure is
	// logged and the server still comes up; turns report the engine as
	// unavailable until a restart fixes it.
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := g.relay.InitAssistant(initCtx, engine.Profile{
		Name:         g.config.Assistant.Name,
		Instructions: g.config.Assistant.Instructions,
		Model:        g.config.OpenAI.Model,
	}); err == nil {
		g.ready = true
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the assistant profile is registered.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("assistant not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
