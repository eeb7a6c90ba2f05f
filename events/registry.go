package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/internal/metrics"
)

// Registry owns the per-job event queues. Producers publish through it;
// consumers look up the queue for the job they are streaming.
type Registry struct {
	logger *zap.Logger
	stats  *metrics.Collector

	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, stats *metrics.Collector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger.With(zap.String("component", "event_registry")),
		stats:  stats,
		queues: make(map[string]*Queue),
	}
}

// Register creates the queue for a job. Registering an already-registered
// job returns the existing queue unchanged; the duplicate call is logged
// because it usually signals a caller bug.
func (r *Registry) Register(jobID string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[jobID]; ok {
		r.logger.Warn("queue already registered", zap.String("job_id", jobID))
		return q
	}
	q := newQueue()
	r.queues[jobID] = q
	r.stats.SetQueuesRegistered(len(r.queues))
	return q
}

// Get looks up a job's queue without side effects.
func (r *Registry) Get(jobID string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[jobID]
	return q, ok
}

// Unregister removes a job's queue. Unread events are dropped; there is no
// replay. Unknown ids are a no-op.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[jobID]; !ok {
		return
	}
	delete(r.queues, jobID)
	r.stats.SetQueuesRegistered(len(r.queues))
}

// Publish pushes an event to the job's queue if one is registered. It
// reports whether a queue received the event; publishing to an unregistered
// job is a silent drop, matching the no-replay contract.
func (r *Registry) Publish(ev Event) bool {
	r.mu.RLock()
	q, ok := r.queues[ev.JobID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	q.Push(ev)
	r.stats.RecordEventPublished(string(ev.Type))
	return true
}

// Len reports the number of registered queues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}
