// Package jobstore provides the two storage layers behind the job manager:
// a bounded TTL+LRU in-memory cache of job records, and the durable
// Repository contract with SQL (GORM) and Redis implementations.
//
// The memory store is the primary source of truth within one process; the
// repository is a secondary, best-effort persistence layer used for crash
// recovery. Neither layer knows about the other; the manager package owns
// the read-through/write-through orchestration between them.
package jobstore
