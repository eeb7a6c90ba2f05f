package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/jobflow/job"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Backend represents the durable storage backend type.
type Backend string

const (
	BackendNone  Backend = "none"
	BackendGorm  Backend = "gorm"
	BackendRedis Backend = "redis"
)

// Repository is the durable persistence contract for job records.
//
// Required semantics: Update is a partial merge (fields absent from the patch
// are left untouched), and Create/Update are idempotent with respect to
// retries: calling either twice with the same arguments is safe.
type Repository interface {
	// Create persists a new record. Re-creating an existing id overwrites it.
	Create(ctx context.Context, rec *job.Record) error

	// Update applies a partial-merge patch to an existing record.
	// Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, id string, patch job.Patch) error

	// GetByID retrieves a record. Returns ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*job.Record, error)

	// Close releases backend resources.
	Close() error

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

// MemoryConfig configures the in-memory job store.
type MemoryConfig struct {
	// MaxEntries is the count bound; exceeding it triggers LRU eviction.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// MaxAge is the hard age bound swept by CleanupExpired and applied
	// before LRU selection during eviction.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`

	// DefaultTTL is used when Set is called with a zero ttl.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
}

// DefaultMemoryConfig returns the default memory store configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries: 1000,
		MaxAge:     24 * time.Hour,
		DefaultTTL: time.Hour,
	}
}

// RedisConfig contains Redis-specific repository configuration.
type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`
	KeyPrefix    string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "jobflow:",
	}
}
