package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/callflow"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/telemetry/health"
	"mercator-hq/switchboard/pkg/telemetry/logging"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
)

// Compiler is the admin-facing compile surface. *compiler.Compiler
// implements it.
type Compiler interface {
	SaveAndCompile(ctx context.Context, tenantID string, raw *policy.RawPolicy) (*compiler.Result, error)
	CompileSaved(ctx context.Context, tenantID string) (*compiler.Result, error)
	Activate(ctx context.Context, tenantID, cacheKey string) error
}

// Calls is the per-turn surface. *callflow.Machine implements it.
type Calls interface {
	HandleTurn(ctx context.Context, req callflow.TurnRequest) (*callflow.TurnResult, error)
	State(ctx context.Context, callID string) (*callflow.CallTurnState, error)
	EndCall(ctx context.Context, callID string) error
}

// Artifacts reads published artifacts. *triage.ActiveSource implements it.
type Artifacts interface {
	Active(ctx context.Context, tenantID string) (*policy.Artifact, error)
	Load(ctx context.Context, key string) (*policy.Artifact, error)
}

// AuditLog queries audit records. Every audit.Store implements it.
type AuditLog interface {
	Query(ctx context.Context, q *audit.Query) ([]*audit.Record, error)
}

// BuildInfo is served on /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the components the API serves. Audit, Health and Metrics are
// optional.
type Deps struct {
	Compiler  Compiler
	Calls     Calls
	Artifacts Artifacts
	Audit     AuditLog
	Health    *health.Checker
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	Build     BuildInfo
}

// Server is the switchboard HTTP server.
type Server struct {
	cfg         config.ServerConfig
	metricsPath string
	deps        Deps
	logger      *slog.Logger
	router      chi.Router

	httpServer *http.Server
	mu         sync.Mutex
	running    bool
}

// New creates a server. Routes are built immediately so Handler can be used
// without starting a listener.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg.Server,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
	if cfg.Telemetry.Metrics.Enabled {
		s.metricsPath = cfg.Telemetry.Metrics.Path
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(tracing.HTTPMiddleware)
	if s.cfg.WriteTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.WriteTimeout))
	}

	if s.cfg.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: s.cfg.CORS.AllowedMethods,
			AllowedHeaders: s.cfg.CORS.AllowedHeaders,
			MaxAge:         s.cfg.CORS.MaxAge,
		}))
	}

	checker := s.deps.Health
	if checker == nil {
		checker = health.New(0)
	}
	r.Get("/healthz", checker.LivenessHandler())
	r.Get("/readyz", checker.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.deps.Build.Version, s.deps.Build.Commit, s.deps.Build.BuildTime))
	if s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Put("/policy", s.handleSavePolicy)
			r.Post("/compile", s.handleCompile)
			r.Put("/active", s.handleActivate)
			r.Get("/artifact", s.handleArtifact)
		})
		r.Route("/calls/{callID}", func(r chi.Router) {
			r.Post("/turns", s.handleTurn)
			r.Get("/", s.handleCallState)
			r.Delete("/", s.handleEndCall)
		})
		r.Get("/audit", s.handleAudit)
	})

	return r
}

// requestLogger logs each request with slog and carries the chi request ID
// into the logging context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.DebugContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// Start serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "address", s.cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.httpServer == nil {
		return nil
	}
	s.running = false

	s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.ShutdownTimeout.String())
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
