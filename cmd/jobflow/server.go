package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/api/handlers"
	"github.com/BaSui01/jobflow/config"
	"github.com/BaSui01/jobflow/events"
	"github.com/BaSui01/jobflow/hitl"
	"github.com/BaSui01/jobflow/internal/metrics"
	"github.com/BaSui01/jobflow/internal/server"
	"github.com/BaSui01/jobflow/internal/telemetry"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/jobstore"
	"github.com/BaSui01/jobflow/manager"
	"github.com/BaSui01/jobflow/runner"
)

// Server wires the job core to the HTTP surface and owns all lifecycles.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	stats    *metrics.Collector
	cache    *jobstore.MemoryJobStore
	repo     jobstore.Repository
	jobs     *manager.JobManager
	hitl     *hitl.Manager
	registry *events.Registry
	runner   *runner.Runner

	httpManager    *server.Manager
	metricsManager *server.Manager

	// workCtx parents all background work: launched runs, the cache sweep,
	// and the rate limiter cleanup. Cancelled first on shutdown.
	workCtx    context.Context
	workCancel context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger,
		otel:       otel,
		workCtx:    ctx,
		workCancel: cancel,
	}
}

// Start builds the component graph and brings up both listeners.
func (s *Server) Start() error {
	s.stats = metrics.NewCollector("jobflow", s.logger)

	s.cache = jobstore.NewMemoryJobStore(jobstore.MemoryConfig{
		MaxEntries: s.cfg.Cache.MaxEntries,
		MaxAge:     s.cfg.Cache.MaxAge,
		DefaultTTL: s.cfg.Cache.DefaultTTL,
	}, s.logger)

	repo, err := jobstore.NewRepository(repositoryConfig(s.cfg.Storage), s.logger)
	if err != nil {
		// A broken durable store degrades the service, it does not stop it.
		s.logger.Warn("durable store unavailable, running cache-only", zap.Error(err))
		repo = nil
	}
	s.repo = repo

	s.jobs = manager.New(s.cache, s.repo, manager.Config{
		CacheTTL:     s.cfg.Cache.DefaultTTL,
		FlushTimeout: s.cfg.Manager.FlushTimeout,
	}, s.logger, s.stats)
	s.hitl = hitl.NewManager(s.jobs, s.logger, s.stats)
	s.registry = events.NewRegistry(s.logger, s.stats)
	s.runner = runner.New(s.jobs, s.hitl, s.registry, s.logger)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	go s.sweepCache()

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("persistence", s.repo != nil),
		zap.Bool("auth", s.cfg.Auth.Enabled),
	)
	return nil
}

func repositoryConfig(cfg config.StorageConfig) jobstore.RepositoryConfig {
	return jobstore.RepositoryConfig{
		Backend: jobstore.Backend(cfg.Backend),
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN(),
		Redis: jobstore.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		},
	}
}

func (s *Server) startHTTPServer() error {
	jobHandler := handlers.NewJobHandler(s.jobs, s.hitl, s.launch, s.logger)
	streamHandler := handlers.NewStreamHandler(s.jobs, s.registry, s.logger)
	healthHandler := handlers.NewHealthHandler(s.repo, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler.HandleLiveness)
	mux.HandleFunc("GET /readyz", healthHandler.HandleReadiness)

	mux.HandleFunc("POST /v1/jobs", jobHandler.HandleSubmitJob)
	mux.HandleFunc("GET /v1/jobs/{id}", jobHandler.HandleGetJob)
	mux.HandleFunc("GET /v1/jobs/{id}/prompt", jobHandler.HandleGetPrompt)
	mux.HandleFunc("POST /v1/jobs/{id}/response", jobHandler.HandleSubmitResponse)
	mux.HandleFunc("GET /v1/jobs/{id}/events", streamHandler.HandleStream)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		RateLimiter(s.workCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst),
	}
	if s.cfg.Auth.Enabled {
		skipAuth := []string{"/healthz", "/readyz"}
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth.JWTSecret, skipAuth, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// launch starts the report workflow for a freshly submitted job.
func (s *Server) launch(jobID string) {
	s.runner.Start(s.workCtx, jobID, reportPhases())
}

// reportPhases is the built-in report-writing workflow: outline the task,
// pause for clarification, then draft with the answers folded in.
func reportPhases() []runner.Phase {
	return []runner.Phase{
		{Name: "outline", Run: func(ctx context.Context, rc *runner.RunContext) error {
			return rc.Progress(ctx, "outlining: "+rc.Task)
		}},
		{Name: "clarify", Run: func(ctx context.Context, rc *runner.RunContext) error {
			answers, err := rc.RequestInput(ctx, job.ClarifyPayload{
				Questions: []string{"Anything to emphasize or avoid for: " + rc.Task + "?"},
			})
			if err != nil {
				return err
			}
			return rc.Progress(ctx, fmt.Sprintf("incorporating %d answer field(s)", len(answers)))
		}},
		{Name: "draft", Run: func(ctx context.Context, rc *runner.RunContext) error {
			if err := rc.Progress(ctx, "drafting"); err != nil {
				return err
			}
			rc.SetResult(map[string]any{
				"task":     rc.Task,
				"document": "Draft for: " + rc.Task,
			})
			return nil
		}},
	}
}

// sweepCache periodically evicts expired and over-age cache entries.
func (s *Server) sweepCache() {
	interval := s.cfg.Cache.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.workCtx.Done():
			return
		case <-ticker.C:
			if n := s.jobs.CleanupCache(); n > 0 {
				s.logger.Debug("cache sweep", zap.Int("removed", n))
			}
		}
	}
}

// WaitForShutdown blocks until a signal or server failure, then shuts down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops background work, drains the servers, flushes pending job
// writes, and closes the durable store.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	s.workCancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}

	if s.jobs != nil {
		if err := s.jobs.Close(); err != nil {
			s.logger.Error("job manager close failed", zap.Error(err))
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.logger.Error("durable store close failed", zap.Error(err))
		}
	}

	if s.otel != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown complete")
}
