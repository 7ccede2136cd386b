// ABOUTME: Gateway orchestrator that wires the store, agents and HTTP API
// ABOUTME: Manages the HTTP server lifecycle and health endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/mentor-gateway/internal/agent"
	"github.com/2389/mentor-gateway/internal/auth"
	"github.com/2389/mentor-gateway/internal/config"
	"github.com/2389/mentor-gateway/internal/conversation"
	"github.com/2389/mentor-gateway/internal/dedupe"
	"github.com/2389/mentor-gateway/internal/store"
)

// Gateway serves the mentor HTTP API.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	verifier     auth.TokenVerifier
	httpServer   *http.Server
	logger       *slog.Logger

	// replays holds completed POST /chat results keyed by owner and Idempotency-Key
	replays *dedupe.Replayer[*ChatResponse]

	// markdown renders message content for ?render=html
	markdown goldmark.Markdown
}

// Deps lets callers supply pre-built components. Nil fields are built from config.
type Deps struct {
	Store   store.Store
	Backend agent.Backend
}

func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.OpenSQLiteStore(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func initBackend(cfg *config.Config) (agent.Backend, error) {
	switch cfg.Agents.Backend {
	case "anthropic":
		return agent.NewAnthropicBackend(agent.AnthropicConfig{
			APIKey:    cfg.Agents.APIKey,
			BaseURL:   cfg.Agents.BaseURL,
			Model:     cfg.Agents.Model,
			MaxTokens: cfg.Agents.MaxTokens,
		})
	case "scripted", "":
		return agent.NewScriptedBackend(), nil
	default:
		return nil, fmt.Errorf("unknown agent backend %q", cfg.Agents.Backend)
	}
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithDeps(cfg, Deps{}, logger)
}

// NewWithDeps creates a Gateway, using any components supplied in deps.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	backend := deps.Backend
	if backend == nil {
		backend, err = initBackend(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating agent backend: %w", err)
		}
	}

	s := deps.Store
	if s == nil {
		s, err = initStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	agents := agent.NewGateway(backend, cfg.Agents.Timeout, logger)
	convService := conversation.New(s, agents, nil, conversation.Options{
		ContextWindow: cfg.History.ContextWindow,
		DisplayLimit:  cfg.History.DisplayLimit,
		MaxPageLimit:  cfg.History.MaxPageLimit,
	}, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		conversation: convService,
		verifier:     verifier,
		logger:       logger.With("component", "gateway"),
		replays:      dedupe.NewReplayer[*ChatResponse](cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries),
		markdown:     goldmark.New(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)
	gw.registerAPIRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway initialized",
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
		"driver", cfg.Database.Driver,
		"backend", cfg.Agents.Backend)

	return gw, nil
}

// registerAPIRoutes mounts the authenticated JSON API.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	authed := auth.HTTPAuthMiddleware(g.verifier, g.logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	handle("POST /chat", g.handleChat)
	handle("GET /conversations", g.handleListConversations)
	handle("DELETE /conversations", g.handleBulkDelete)
	handle("GET /conversations/{id}", g.handleGetConversation)
	handle("PATCH /conversations/{id}", g.handleUpdateConversation)
	handle("DELETE /conversations/{id}", g.handleDeleteConversation)
	handle("PUT /assessments/{domain}", g.handleSaveAssessment)
	handle("GET /assessments/{domain}", g.handleGetAssessment)
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until ctx is canceled or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled, then shuts down.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.conversation.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
