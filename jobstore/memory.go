package jobstore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/jobflow/job"
)

// cacheEntry wraps a job record with the timestamps driving expiry and LRU
// selection. Created on Set, refreshed on read, destroyed on eviction or
// explicit delete.
type cacheEntry struct {
	record     *job.Record
	insertedAt time.Time
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryJobStore is a bounded, TTL-aware cache of job records.
//
// All operations go through a single mutex: reads mutate state too (lazy
// expiry and last-access refresh), so there is no RWMutex split. Eviction
// order is age first (anything older than MaxAge), then least-recently-used
// by last access while still over MaxEntries.
type MemoryJobStore struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	config  MemoryConfig
	logger  *zap.Logger
}

// NewMemoryJobStore creates a new in-memory job store.
func NewMemoryJobStore(config MemoryConfig, logger *zap.Logger) *MemoryJobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMemoryConfig().MaxEntries
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMemoryConfig().MaxAge
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultMemoryConfig().DefaultTTL
	}
	return &MemoryJobStore{
		entries: make(map[string]*cacheEntry),
		config:  config,
		logger:  logger.With(zap.String("component", "memory_job_store")),
	}
}

// Set inserts or overwrites a record. A zero ttl falls back to DefaultTTL.
// If the store exceeds MaxEntries after insertion, eviction runs inline.
func (s *MemoryJobStore) Set(id string, rec *job.Record, ttl time.Duration) {
	if id == "" || rec == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.entries[id] = &cacheEntry{
		record:     rec.Clone(),
		insertedAt: now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}

	if len(s.entries) > s.config.MaxEntries {
		s.evictLocked(now)
	}
}

// Get returns the record if present and unexpired. An expired entry is
// deleted lazily and reported as absent; a hit refreshes its last-access
// timestamp. The returned record is a copy the caller may mutate freely.
func (s *MemoryJobStore) Get(id string) (*job.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		delete(s.entries, id)
		s.logger.Debug("entry expired on read", zap.String("job_id", id))
		return nil, false
	}

	entry.lastAccess = now
	return entry.record.Clone(), true
}

// Delete removes an entry explicitly.
func (s *MemoryJobStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of entries currently held, expired or not.
func (s *MemoryJobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CleanupExpired sweeps every entry whose age exceeds MaxAge or whose TTL has
// passed, and returns the count removed. The store never schedules this
// itself; the owning server loop drives it periodically.
func (s *MemoryJobStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for id, entry := range s.entries {
		if now.Sub(entry.insertedAt) > s.config.MaxAge || now.After(entry.expiresAt) {
			delete(s.entries, id)
			count++
		}
	}
	if count > 0 {
		s.logger.Debug("cleanup removed expired entries", zap.Int("count", count))
	}
	return count
}

// evictLocked applies the two-stage eviction policy. Callers hold s.mu.
func (s *MemoryJobStore) evictLocked(now time.Time) {
	// Stage 1: drop everything over the age bound.
	for id, entry := range s.entries {
		if now.Sub(entry.insertedAt) > s.config.MaxAge {
			delete(s.entries, id)
		}
	}

	// Stage 2: while still over the count bound, evict by oldest last access.
	// Linear scan per eviction; MaxEntries overruns are single-entry in
	// steady state since eviction runs on every insert.
	for len(s.entries) > s.config.MaxEntries {
		var victim string
		var oldest time.Time
		for id, entry := range s.entries {
			if victim == "" || entry.lastAccess.Before(oldest) {
				victim = id
				oldest = entry.lastAccess
			}
		}
		delete(s.entries, victim)
		s.logger.Debug("evicted least-recently-used entry", zap.String("job_id", victim))
	}
}
