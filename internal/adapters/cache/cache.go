// Package cache provides a TTL response cache keyed by request digest, with
// at most one in-flight fetch per key under concurrent callers.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/harpastum/internal/adapters/provider"
	"github.com/okian/harpastum/pkg/metrics"
)

// defaultTTL bounds entry freshness when no TTL option is given.
const defaultTTL = 15 * time.Minute

// Entry is one cached response.
type Entry struct {
	Payload   []byte
	FetchedAt time.Time
	TTL       time.Duration
}

// Cache is a content-addressable response store. Entries older than their
// TTL are invalidated lazily on access; Sweep exists only to bound storage.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets the time-to-live applied to stored entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached payload for the descriptor if fresh,
// otherwise calls fetch, stores the result and returns it. Concurrent
// callers for the same key share a single fetch; fetch errors are not
// cached.
func (c *Cache) GetOrFetch(ctx context.Context, d provider.Descriptor, fetch provider.FetchFunc) ([]byte, error) {
	key := d.Digest()
	if payload, ok := c.lookup(key); ok {
		metrics.RecordCacheHit()
		return payload, nil
	}
	metrics.RecordCacheMiss()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A prior in-flight fetch may have populated the entry between the
		// miss and entering the group.
		if payload, ok := c.lookup(key); ok {
			return payload, nil
		}
		payload, err := fetch(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("fetch for cache key %s: %w", key[:12], err)
		}
		c.store(key, payload)
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// lookup returns a fresh entry's payload. An expired entry is removed.
func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.FetchedAt) >= e.TTL {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent refresh may have
		// stored a newer entry.
		if cur, ok := c.entries[key]; ok && c.now().Sub(cur.FetchedAt) >= cur.TTL {
			delete(c.entries, key)
			metrics.RecordCacheExpiry()
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.Payload, true
}

func (c *Cache) store(key string, payload []byte) {
	c.mu.Lock()
	c.entries[key] = Entry{Payload: payload, FetchedAt: c.now(), TTL: c.ttl}
	n := len(c.entries)
	c.mu.Unlock()
	metrics.UpdateCacheSize(n)
}

// Sweep removes all expired entries and returns how many were dropped.
// Correctness never requires calling it; it only bounds storage.
func (c *Cache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped int
	for key, e := range c.entries {
		if ctx.Err() != nil {
			break
		}
		if c.now().Sub(e.FetchedAt) >= e.TTL {
			delete(c.entries, key)
			dropped++
			metrics.RecordCacheExpiry()
		}
	}
	metrics.UpdateCacheSize(len(c.entries))
	return dropped
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
