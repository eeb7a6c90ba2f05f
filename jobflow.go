// Package jobflow provides a top-level convenience entry point for embedding
// the job core with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/jobflow"
//
//	core, err := jobflow.New()
//	core, err := jobflow.New(jobflow.WithLogger(logger), jobflow.WithRepository(repo))
//
// New wires the in-memory store, job manager, checkpoint manager, event
// registry, and workflow runner together. Callers who need the HTTP surface
// should run cmd/jobflow instead; this package is for in-process use.
package jobflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/events"
	"github.com/BaSui01/jobflow/hitl"
	"github.com/BaSui01/jobflow/internal/metrics"
	"github.com/BaSui01/jobflow/jobstore"
	"github.com/BaSui01/jobflow/manager"
	"github.com/BaSui01/jobflow/runner"
)

// Core bundles the wired job subsystem.
type Core struct {
	Jobs   *manager.JobManager
	HITL   *hitl.Manager
	Events *events.Registry
	Runner *runner.Runner

	repo jobstore.Repository
}

// Option configures the core created by [New].
type Option func(*options)

type options struct {
	logger           *zap.Logger
	repo             jobstore.Repository
	cacheConfig      jobstore.MemoryConfig
	managerConfig    manager.Config
	metricsNamespace string
}

// WithLogger sets a custom zap logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRepository attaches a durable store. Without one the core runs
// cache-only and job records do not survive a restart.
func WithRepository(repo jobstore.Repository) Option {
	return func(o *options) { o.repo = repo }
}

// WithCacheConfig overrides the in-memory store bounds.
func WithCacheConfig(cfg jobstore.MemoryConfig) Option {
	return func(o *options) { o.cacheConfig = cfg }
}

// WithManagerConfig overrides the job manager's ttl and flush settings.
func WithManagerConfig(cfg manager.Config) Option {
	return func(o *options) { o.managerConfig = cfg }
}

// WithMetrics registers Prometheus collectors under the given namespace.
// Register at most once per process; the collectors use the default registry.
func WithMetrics(namespace string) Option {
	return func(o *options) { o.metricsNamespace = namespace }
}

// New creates a fully wired core. Close it when done to flush pending writes.
func New(opts ...Option) (*Core, error) {
	o := &options{
		cacheConfig:   jobstore.DefaultMemoryConfig(),
		managerConfig: manager.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	var stats *metrics.Collector
	if o.metricsNamespace != "" {
		stats = metrics.NewCollector(o.metricsNamespace, o.logger)
	}

	cache := jobstore.NewMemoryJobStore(o.cacheConfig, o.logger)
	jobs := manager.New(cache, o.repo, o.managerConfig, o.logger, stats)
	checkpoints := hitl.NewManager(jobs, o.logger, stats)
	registry := events.NewRegistry(o.logger, stats)

	return &Core{
		Jobs:   jobs,
		HITL:   checkpoints,
		Events: registry,
		Runner: runner.New(jobs, checkpoints, registry, o.logger),
		repo:   o.repo,
	}, nil
}

// Close drains pending background flushes and closes the durable store.
func (c *Core) Close() error {
	if err := c.Jobs.Close(); err != nil {
		return err
	}
	if c.repo != nil {
		return c.repo.Close()
	}
	return nil
}
