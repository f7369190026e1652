// Package cache is the in-process overlay in front of the key-value backend.
// It is unbounded: entries leave only by TTL expiry, Invalidate or Clear.
package cache

import (
	"sync"
	"time"

	"clinic-booking/internal/metrics"
)

type entry struct {
	value     any
	writtenAt time.Time
	expiresAt time.Time // zero => no TTL
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type Option func(*Cache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached value while it is fresh. An expired entry is
// evicted and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.value, true
}

// Put overwrites any entry for key. ttl <= 0 means no expiry.
func (c *Cache) Put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := entry{value: value, writtenAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.entries[key] = e
}

// WrittenAt reports when key was last put, ignoring expiry.
func (c *Cache) WrittenAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e.writtenAt, ok
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
