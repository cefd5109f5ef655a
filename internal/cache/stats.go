// Package cache provides a small TTL cache over aggregate store queries.
// It is read-mostly: writers invalidate affected keys after a flush rather
// than attempting live consistency.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is a cached value together with the instant it was computed.
type Entry struct {
	Value      any
	ComputedAt time.Time
	expiresAt  time.Time
}

// ComputeFunc produces a value for a cache key on miss or expiry.
type ComputeFunc func(ctx context.Context) (any, error)

// StatsCache is a TTL cache keyed by aggregate-query name.
type StatsCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an empty StatsCache.
func New(logger *slog.Logger) *StatsCache {
	return &StatsCache{
		entries: make(map[string]Entry),
		logger:  logger.With("component", "stats_cache"),
		now:     time.Now,
	}
}

// Get returns the cached entry for key. The second return value is false on
// miss or expiry; an expired entry is purged on the way out.
func (c *StatsCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// recomputed the entry in between.
		if cur, still := c.entries[key]; still && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Entry{}, false
	}
	return e, true
}

// ComputeAndCache returns the cached value for key, recomputing and storing
// it only on miss or expiry. A compute error is returned without caching.
func (c *StatsCache) ComputeAndCache(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) (any, error) {
	if e, ok := c.Get(key); ok {
		return e.Value, nil
	}

	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	computedAt := c.now()
	c.mu.Lock()
	c.entries[key] = Entry{
		Value:      value,
		ComputedAt: computedAt,
		expiresAt:  computedAt.Add(ttl),
	}
	c.mu.Unlock()

	c.logger.Debug("stats recomputed", "key", key, "ttl", ttl)
	return value, nil
}

// Invalidate drops one key.
func (c *StatsCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll drops every key. The batch persister calls this after a
// successful flush, since any aggregate may have been affected.
func (c *StatsCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	c.logger.Debug("stats cache invalidated")
}

// Len returns the number of live entries (expired ones included until read).
func (c *StatsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
