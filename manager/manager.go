package manager

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/jobflow/internal/metrics"
	"github.com/BaSui01/jobflow/job"
	"github.com/BaSui01/jobflow/jobstore"
)

// ErrNotFound is returned for unknown job ids. It aliases the store sentinel
// so callers can match either.
var ErrNotFound = jobstore.ErrNotFound

// Config configures the job manager.
type Config struct {
	// CacheTTL is the ttl applied to cache writes.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// FlushTimeout bounds background best-effort flushes of non-critical
	// fields (progress messages).
	FlushTimeout time.Duration `yaml:"flush_timeout" json:"flush_timeout"`
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:     time.Hour,
		FlushTimeout: 5 * time.Second,
	}
}

// JobManager orchestrates the memory cache and the durable repository.
//
// Consistency contract: the cache is the primary source of truth within the
// process. Critical patches (status, hitl fields, results, errors) are
// flushed to the repository synchronously before the call returns; progress
// patches are flushed in the background and may be lost on crash. Updates to
// one job id are serialized through a striped lock, so concurrent patches
// merge rather than overwrite each other. A cache warm from the repository is
// not atomic with a concurrent update to the same job; last write wins under
// partial-merge semantics.
type JobManager struct {
	cache  *jobstore.MemoryJobStore
	repo   jobstore.Repository
	config Config
	logger *zap.Logger
	stats  *metrics.Collector
	tracer trace.Tracer

	// warm deduplicates concurrent repository reads for the same job id
	// during cache rehydration.
	warm singleflight.Group

	// updateLocks serializes read-modify-write merges per job id (hashed
	// onto a fixed stripe set, so memory stays bounded). Durable writes for
	// one id ride the same stripe, which keeps them ordered; the redis
	// repository's read-modify-write Update relies on that ordering.
	updateLocks [updateLockStripes]sync.Mutex

	flushWG sync.WaitGroup
}

const updateLockStripes = 64

func (m *JobManager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.updateLocks[h.Sum32()%updateLockStripes]
}

// New creates a job manager. repo may be nil, which disables persistence;
// the manager then serves from the cache alone.
func New(cache *jobstore.MemoryJobStore, repo jobstore.Repository, config Config, logger *zap.Logger, stats *metrics.Collector) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultConfig().FlushTimeout
	}
	return &JobManager{
		cache:  cache,
		repo:   repo,
		config: config,
		logger: logger.With(zap.String("component", "job_manager")),
		stats:  stats,
		tracer: otel.Tracer("github.com/BaSui01/jobflow/manager"),
	}
}

// PersistenceEnabled reports whether a durable repository is wired.
func (m *JobManager) PersistenceEnabled() bool {
	return m.repo != nil
}

// CreateJob registers a new job. The cache write always succeeds; a failing
// durable write is logged and absorbed, since a flaky secondary store must never
// block the hot path. The job stays visible via the cache either way.
func (m *JobManager) CreateJob(ctx context.Context, rec *job.Record) error {
	ctx, span := m.tracer.Start(ctx, "JobManager.CreateJob")
	defer span.End()

	if rec == nil {
		return jobstore.ErrInvalidInput
	}
	if rec.Owner == "" {
		rec.Owner = job.DefaultOwner
	}
	if rec.Status == "" {
		rec.Status = job.StatusPending
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := rec.Validate(); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("job_id", rec.ID))

	m.cache.Set(rec.ID, rec, m.config.CacheTTL)
	m.stats.RecordJobCreated()

	if m.repo != nil {
		if err := m.repo.Create(ctx, rec); err != nil {
			m.stats.RecordRepoError("create")
			m.logger.Warn("durable create failed, job remains cache-only",
				zap.String("job_id", rec.ID),
				zap.Error(err),
			)
		}
	}

	m.logger.Info("job created",
		zap.String("job_id", rec.ID),
		zap.String("owner", rec.Owner),
	)
	return nil
}

// GetJob is the read-through lookup: cache hit wins; a miss consults the
// repository (when enabled), warms the cache with the durable record, and
// returns it. Repository errors are absorbed: the caller sees not-found,
// never a storage failure.
func (m *JobManager) GetJob(ctx context.Context, id string) (*job.Record, error) {
	ctx, span := m.tracer.Start(ctx, "JobManager.GetJob",
		trace.WithAttributes(attribute.String("job_id", id)))
	defer span.End()

	if id == "" {
		return nil, jobstore.ErrInvalidInput
	}

	if rec, ok := m.cache.Get(id); ok {
		m.stats.RecordCacheHit()
		return rec, nil
	}
	m.stats.RecordCacheMiss()

	if m.repo == nil {
		return nil, ErrNotFound
	}

	v, err, _ := m.warm.Do(id, func() (any, error) {
		// The flight is shared by every concurrent caller for this id;
		// detach from the first caller's ctx so its cancellation cannot
		// poison the shared result with a spurious not-found.
		rec, err := m.repo.GetByID(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		// Warm the cache before returning. Not atomic with a concurrent
		// update to the same id; last write wins.
		m.cache.Set(id, rec, m.config.CacheTTL)
		m.stats.RecordCacheWarmup()
		return rec, nil
	})
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		m.stats.RecordRepoError("get")
		m.logger.Warn("repository read failed, falling back to in-memory state",
			zap.String("job_id", id),
			zap.Error(err),
		)
		return nil, ErrNotFound
	}
	return v.(*job.Record).Clone(), nil
}

// GetJobStatus returns the current status of a job.
func (m *JobManager) GetJobStatus(ctx context.Context, id string) (job.Status, error) {
	rec, err := m.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// UpdateJob applies a partial-merge patch to both layers and returns the
// merged record. A record absent from memory but present in the repository
// is rehydrated first, so an update never creates a divergent in-memory
// record missing previously persisted fields.
//
// Critical patches are flushed to the repository before returning; progress
// patches are flushed in the background. Repository errors are absorbed.
func (m *JobManager) UpdateJob(ctx context.Context, id string, patch job.Patch) (*job.Record, error) {
	ctx, span := m.tracer.Start(ctx, "JobManager.UpdateJob",
		trace.WithAttributes(attribute.String("job_id", id)))
	defer span.End()

	if id == "" {
		return nil, jobstore.ErrInvalidInput
	}
	if patch.IsZero() {
		return m.GetJob(ctx, id)
	}

	// Hold the stripe across the whole merge and the synchronous flush, so
	// two patches to one job cannot interleave and drop each other's fields.
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := m.cache.Get(id)
	if !ok {
		rehydrated, err := m.rehydrate(ctx, id)
		if err != nil {
			return nil, err
		}
		rec = rehydrated
	}

	if patch.Status != nil && !rec.Status.CanTransitionTo(*patch.Status) {
		m.logger.Warn("irregular status transition",
			zap.String("job_id", id),
			zap.String("from", string(rec.Status)),
			zap.String("to", string(*patch.Status)),
		)
	}

	patch.Apply(rec)
	m.cache.Set(id, rec, m.config.CacheTTL)
	if patch.Status != nil {
		m.stats.RecordStatusTransition(string(*patch.Status))
	}

	if m.repo != nil {
		if patch.Critical() {
			m.flushSync(ctx, id, rec, patch)
		} else {
			m.flushAsync(id, patch)
		}
	}

	return rec.Clone(), nil
}

// CleanupCache sweeps expired cache entries and returns the count removed.
// Driven periodically by the owning server loop.
func (m *JobManager) CleanupCache() int {
	removed := m.cache.CleanupExpired()
	m.stats.RecordCacheEvictions(removed)
	return removed
}

// Close waits for in-flight background flushes to drain.
func (m *JobManager) Close() error {
	m.flushWG.Wait()
	return nil
}

// rehydrate loads a record from the repository after a cache miss during an
// update. Storage errors surface as not-found so callers never see them.
func (m *JobManager) rehydrate(ctx context.Context, id string) (*job.Record, error) {
	if m.repo == nil {
		return nil, ErrNotFound
	}
	rec, err := m.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		m.stats.RecordRepoError("get")
		m.logger.Warn("rehydration failed, treating job as unknown",
			zap.String("job_id", id),
			zap.Error(err),
		)
		return nil, ErrNotFound
	}
	m.stats.RecordCacheWarmup()
	return rec, nil
}

// flushSync pushes a critical patch to the repository before the originating
// call returns, so a crash during a HITL pause cannot lose the fact that
// input was requested. A job the repository never saw (its create failed in
// degraded mode) is repaired with a full upsert of the merged record.
func (m *JobManager) flushSync(ctx context.Context, id string, merged *job.Record, patch job.Patch) {
	err := m.repo.Update(ctx, id, patch)
	if errors.Is(err, jobstore.ErrNotFound) {
		err = m.repo.Create(ctx, merged)
	}
	if err != nil {
		m.stats.RecordRepoError("update")
		m.logger.Warn("durable flush failed, cache remains authoritative",
			zap.String("job_id", id),
			zap.Error(err),
		)
	}
}

// flushAsync pushes a low-stakes patch in the background. Losses are
// acceptable; the next critical flush carries the authoritative state.
func (m *JobManager) flushAsync(id string, patch job.Patch) {
	m.flushWG.Add(1)
	go func() {
		defer m.flushWG.Done()
		// Take the id's stripe so this write stays ordered with respect to
		// other durable writes for the same job.
		lock := m.lockFor(id)
		lock.Lock()
		defer lock.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), m.config.FlushTimeout)
		defer cancel()
		if err := m.repo.Update(ctx, id, patch); err != nil && !errors.Is(err, jobstore.ErrNotFound) {
			m.stats.RecordRepoError("update")
			m.logger.Debug("best-effort flush failed",
				zap.String("job_id", id),
				zap.Error(err),
			)
		}
	}()
}
