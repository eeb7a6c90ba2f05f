package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the Prometheus metrics of the job subsystem.
// All record methods are safe on a nil receiver so components can be wired
// without metrics in tests.
type Collector struct {
	jobsCreated       prometheus.Counter
	statusTransitions *prometheus.CounterVec

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheWarmups   prometheus.Counter

	repoErrors *prometheus.CounterVec

	checkpointsCreated  prometheus.Counter
	checkpointsResolved *prometheus.CounterVec
	responses           *prometheus.CounterVec

	queuesRegistered prometheus.Gauge
	eventsPublished  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates and registers the collectors under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.jobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_created_total",
		Help:      "Total number of jobs created",
	})

	c.statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_status_transitions_total",
		Help:      "Total number of job status transitions",
	}, []string{"to"})

	c.cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_cache_hits_total",
		Help:      "Total number of job cache hits",
	})

	c.cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_cache_misses_total",
		Help:      "Total number of job cache misses",
	})

	c.cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_cache_evictions_total",
		Help:      "Total number of job cache entries removed by sweeps",
	})

	c.cacheWarmups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_cache_warmups_total",
		Help:      "Total number of cache rehydrations from the durable store",
	})

	c.repoErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_repository_errors_total",
		Help:      "Total number of absorbed durable-store errors",
	}, []string{"op"})

	c.checkpointsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hitl_checkpoints_created_total",
		Help:      "Total number of HITL checkpoints created",
	})

	c.checkpointsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hitl_checkpoints_resolved_total",
		Help:      "Total number of HITL checkpoints resolved",
	}, []string{"status"})

	c.responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hitl_responses_total",
		Help:      "Total number of HITL response submissions by outcome",
	}, []string{"outcome"})

	c.queuesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_queues_registered",
		Help:      "Number of currently registered per-job event queues",
	})

	c.eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of job events published",
	}, []string{"type"})

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

func (c *Collector) RecordJobCreated() {
	if c == nil {
		return
	}
	c.jobsCreated.Inc()
}

func (c *Collector) RecordStatusTransition(to string) {
	if c == nil {
		return
	}
	c.statusTransitions.WithLabelValues(to).Inc()
}

func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

func (c *Collector) RecordCacheEvictions(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cacheEvictions.Add(float64(n))
}

func (c *Collector) RecordCacheWarmup() {
	if c == nil {
		return
	}
	c.cacheWarmups.Inc()
}

func (c *Collector) RecordRepoError(op string) {
	if c == nil {
		return
	}
	c.repoErrors.WithLabelValues(op).Inc()
}

func (c *Collector) RecordCheckpointCreated() {
	if c == nil {
		return
	}
	c.checkpointsCreated.Inc()
}

func (c *Collector) RecordCheckpointResolved(status string) {
	if c == nil {
		return
	}
	c.checkpointsResolved.WithLabelValues(status).Inc()
}

func (c *Collector) RecordResponse(outcome string) {
	if c == nil {
		return
	}
	c.responses.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetQueuesRegistered(n int) {
	if c == nil {
		return
	}
	c.queuesRegistered.Set(float64(n))
}

func (c *Collector) RecordEventPublished(eventType string) {
	if c == nil {
		return
	}
	c.eventsPublished.WithLabelValues(eventType).Inc()
}
