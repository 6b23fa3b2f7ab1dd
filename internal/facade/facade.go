// ABOUTME: Facade orchestrator that wires the store, auth, and tool pipeline
// ABOUTME: Manages the HTTP server, optional tsnet listener, and shutdown lifecycle

package facade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yuin/goldmark"
	"tailscale.com/tsnet"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/branding"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/controlplane"
	"github.com/2389/warden/internal/idempotency"
	"github.com/2389/warden/internal/invoker"
	"github.com/2389/warden/internal/replay"
	"github.com/2389/warden/internal/store"
	"github.com/2389/warden/internal/tools"
)

// Server orchestrates the warden facade components: the inbound S2S surface,
// the invoker resolver, and the tool dispatch pipeline.
type Server struct {
	config      *config.Config
	store       store.Store
	verifier    *auth.Verifier
	resolver    *invoker.Resolver
	dispatcher  *tools.Dispatcher
	defaults    branding.Branding
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// nonces backs signed-request replay detection
	nonces *replay.Cache

	// idem holds idempotency records for tool executions
	idem *idempotency.Cache
}

// initStore creates a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WARDEN_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildRegistry assembles the builtin tool registry with policy overrides
// applied.
func buildRegistry(cfg *config.Config, deps *tools.Deps) (*tools.Registry, error) {
	descs := tools.BuiltinDescriptors(deps)

	policy, err := tools.LoadPolicy(cfg.Tools.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading tool policy: %w", err)
	}
	descs, err = policy.Apply(descs)
	if err != nil {
		return nil, fmt.Errorf("applying tool policy: %w", err)
	}

	return tools.NewRegistry(descs)
}

// New creates a Server instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	nonces := replay.New(cfg.S2S.NonceTTL, 100_000)
	idem := idempotency.NewCache(cfg.S2S.IdempotencyTTL)

	defaults := branding.DefaultsFromConfig(cfg.Branding)
	deps := &tools.Deps{
		Store:        s,
		Control:      controlplane.NewClient(cfg.ControlPlane, logger),
		Runtime:      controlplane.NewRuntimeClient(cfg.Runtime, logger),
		Defaults:     defaults,
		Provisioning: cfg.Provisioning,
		Markdown:     goldmark.New(),
		Logger:       logger,
	}

	registry, err := buildRegistry(cfg, deps)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		config:   cfg,
		store:    s,
		verifier: auth.NewVerifier(cfg.S2S, nonces, logger),
		resolver: invoker.NewResolver(s, cfg.S2S.ProofMaxAge, logger),
		dispatcher: tools.NewDispatcher(
			registry,
			tools.NewAuthorizer(s, cfg.S2S.TrustedGroup, logger),
			idem,
			logger,
		),
		defaults: defaults,
		logger:   logger.With("component", "facade"),
		nonces:   nonces,
		idem:     idem,
	}

	mux := http.NewServeMux()

	// Health endpoint is unauthenticated.
	mux.HandleFunc("/health", srv.handleHealth)

	// S2S endpoints sit behind the auth middleware.
	mux.Handle("/s2s/warden/realm/branding", srv.verifier.Middleware(http.HandlerFunc(srv.handleBranding)))
	mux.Handle("/s2s/warden/tools/execute", srv.verifier.Middleware(http.HandlerFunc(srv.handleExecute)))

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// Handler returns the HTTP handler, including middleware. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the facade server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "warden", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet node and returns its HTTP listener.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	}
	s.logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "tailscale_ip", tsAddr)

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the facade server and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down facade")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	s.nonces.Close()
	s.idem.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server and its store are alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
