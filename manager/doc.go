// Package manager provides the JobManager, the single logical view over the
// two storage layers: the in-memory job cache and the optional durable
// repository. It owns read-through/write-through orchestration, the
// degraded-mode contract (repository errors never escape to callers of
// read/update operations), and the crash-recovery flush rules.
package manager
