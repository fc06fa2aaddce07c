// Package cache provides a keyed series cache mapping (product, granularity)
// to a fetched OHLCV series. Entries go stale after a fixed TTL and are
// lazily dropped on access; callers recompute on a miss.
package cache

import (
	"context"
	"sync"
	"time"

	"tradedeck/internal/model"
)

// Key identifies one cached series.
type Key struct {
	Product     string
	Granularity model.Granularity
}

func (k Key) String() string {
	return k.Product + ":" + string(k.Granularity)
}

// SeriesCache is the cache contract: explicit get/set/invalidate, no
// ambient storage. Implementations must be safe for concurrent use.
type SeriesCache interface {
	Get(ctx context.Context, key Key) ([]model.Bar, bool)
	Set(ctx context.Context, key Key, bars []model.Bar)
	Invalidate(ctx context.Context, key Key)
}

type memoryEntry struct {
	bars     []model.Bar
	storedAt time.Time
}

// Memory is an in-process SeriesCache with TTL expiry.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[Key]memoryEntry
}

// NewMemory creates a memory cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]memoryEntry),
	}
}

// Get returns the cached series if present and fresh.
func (m *Memory) Get(_ context.Context, key Key) ([]model.Bar, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().Sub(entry.storedAt) > m.ttl {
		// Stale — drop lazily so the caller refetches.
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.storedAt.Equal(entry.storedAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return entry.bars, true
}

// Set stores a series, resetting its TTL.
func (m *Memory) Set(_ context.Context, key Key, bars []model.Bar) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{bars: bars, storedAt: m.now()}
	m.mu.Unlock()
}

// Invalidate removes a series regardless of freshness.
func (m *Memory) Invalidate(_ context.Context, key Key) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}
