// ABOUTME: Gateway orchestrator that wires sessions, tools, and the HTTP server
// ABOUTME: Manages the audit store, chat WebSocket endpoint, and health endpoints lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/2389/helix-gateway/internal/auth"
	"github.com/2389/helix-gateway/internal/bookstore"
	"github.com/2389/helix-gateway/internal/builtins"
	"github.com/2389/helix-gateway/internal/config"
	"github.com/2389/helix-gateway/internal/conversation"
	"github.com/2389/helix-gateway/internal/credential"
	"github.com/2389/helix-gateway/internal/identity"
	"github.com/2389/helix-gateway/internal/packs"
	"github.com/2389/helix-gateway/internal/session"
	"github.com/2389/helix-gateway/internal/store"
)

// Gateway orchestrates the helix-gateway server components.
type Gateway struct {
	config     *config.Config
	controller *session.Controller
	sessions   *session.Registry
	store      *store.SQLiteStore // nil when the audit ledger is disabled
	httpServer *http.Server
	logger     *slog.Logger

	// sessionsCtx is canceled on shutdown; hijacked WebSocket connections do
	// not observe http.Server.Shutdown on their own.
	sessionsCtx    context.Context
	cancelSessions context.CancelFunc

	closeOnce sync.Once
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	engine conversation.Engine
}

// WithEngine replaces the configured text-generation engine.
func WithEngine(e conversation.Engine) Option {
	return func(o *options) { o.engine = e }
}

// initStore opens the audit ledger. An empty path disables it.
func initStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("HELIX_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		logger.Warn("audit ledger disabled - no database.path configured")
		return nil, nil
	}

	s, err := store.NewSQLiteStore(dbPath, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newEngine builds the configured provider.
func newEngine(cfg config.EngineConfig) (conversation.Engine, error) {
	engine, err := conversation.NewOpenAIEngine(conversation.OpenAIConfig{
		Provider:            cfg.Provider,
		Endpoint:            cfg.Endpoint,
		APIKey:              cfg.APIKey,
		APIVersion:          cfg.APIVersion,
		Model:               cfg.Model,
		MaxCompletionTokens: cfg.MaxCompletionTokens,
		Timeout:             cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// newToolGate selects the per-call VP oracle form.
func newToolGate(cfg config.CredentialsConfig) credential.Gate {
	if cfg.ToolGate == config.ToolGateToken {
		return credential.NewTokenClient(cfg.TokenVerifyURL, cfg.Timeout)
	}
	return credential.NewPresentationClient(cfg.VerifyURL, cfg.Timeout)
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	engine := o.engine
	if engine == nil {
		var err error
		if engine, err = newEngine(cfg.Engine); err != nil {
			return nil, err
		}
	}

	sqlStore, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := packs.NewRegistry(logger.With("component", "packs"))
	books := bookstore.NewClient(cfg.Bookstore.APIURL, cfg.Bookstore.Timeout)
	if err := registry.RegisterBuiltinPack(builtins.BookstorePack(books)); err != nil {
		closeStore(sqlStore)
		return nil, fmt.Errorf("registering bookstore pack: %w", err)
	}
	router := packs.NewRouter(packs.RouterConfig{
		Registry: registry,
		Logger:   logger.With("component", "router"),
		Timeout:  cfg.Bookstore.Timeout * 2,
	})

	sessions := session.NewRegistry(logger.With("component", "sessions"))

	// A typed nil store must not reach the controller as a non-nil Ledger.
	var ledger session.Ledger
	if sqlStore != nil {
		ledger = sqlStore
	}

	controller := session.NewController(session.ControllerConfig{
		Agent: session.Agent{DID: cfg.Agent.DID, Name: cfg.Agent.Name},
		Policy: session.Policy{
			AllowAnonymous:     cfg.Auth.AllowAnonymous,
			AllowInlineKeys:    cfg.Auth.AllowInlineKeys,
			DefaultPermissions: cfg.Agent.DefaultPermissions,
			ToolPolicy:         packs.Policy(cfg.Agent.ToolPolicy),
			ToolAuthTimeout:    cfg.Session.ToolAuthTimeout,
		},
		Verifier:  identity.NewVerifier(identity.NewHTTPDirectory(cfg.Identity.DirectoryURL, cfg.Identity.Timeout)),
		AgentGate: credential.NewPresentationClient(cfg.Credentials.VerifyURL, cfg.Credentials.Timeout),
		ToolGate:  newToolGate(cfg.Credentials),
		Tools:     registry,
		Router:    router,
		Engine:    engine,
		Sessions:  sessions,
		Ledger:    ledger,
		Logger:    logger,
	})

	sessionsCtx, cancelSessions := context.WithCancel(context.Background())
	gw := &Gateway{
		config:         cfg,
		controller:     controller,
		sessions:       sessions,
		store:          sqlStore,
		logger:         logger,
		sessionsCtx:    sessionsCtx,
		cancelSessions: cancelSessions,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)
	mux.HandleFunc("GET /ws/chat", gw.handleChat)
	mux.HandleFunc("GET /ws/chat/{session_id}", gw.handleChat)
	gw.registerHTTPAPIRoutes(mux, cfg, logger)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("gateway configured",
		"tools", registry.Names(),
		"tool_gate", cfg.Credentials.ToolGate,
		"tool_policy", cfg.Agent.ToolPolicy,
		"allow_anonymous", cfg.Auth.AllowAnonymous,
		"allow_inline_keys", cfg.Auth.AllowInlineKeys,
	)
	if cfg.Auth.AllowInlineKeys {
		logger.Warn("inline public keys accepted - do not enable in production")
	}

	return gw, nil
}

// registerHTTPAPIRoutes registers operator routes, behind JWT auth when a
// secret is configured.
func (g *Gateway) registerHTTPAPIRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) {
	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		logger.Info("HTTP auth middleware enabled")
	} else {
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	protect := auth.HTTPAuthMiddleware(verifier, logger.With("component", "auth"))

	mux.Handle("GET /api/sessions", protect(http.HandlerFunc(g.handleListSessions)))
	mux.Handle("GET /api/sessions/{session_id}/audit", protect(http.HandlerFunc(g.handleSessionAudit)))
	mux.Handle("GET /api/sessions/{session_id}/events", protect(http.HandlerFunc(g.handleSessionEvents)))
}

// Handler returns the HTTP handler, for embedding in tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Sessions returns the active session registry.
func (g *Gateway) Sessions() *session.Registry {
	return g.sessions
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting connections, ends active sessions, and closes
// the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "active_sessions", g.sessions.Count())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.cancelSessions()

	if g.store != nil {
		g.closeOnce.Do(func() {
			errs = appendCloseError(errs, "store close", g.store.Close())
		})
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func closeStore(s *store.SQLiteStore) {
	if s != nil {
		_ = s.Close()
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the audit ledger, if enabled, is reachable.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.store != nil {
		if err := g.store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Count())
}
