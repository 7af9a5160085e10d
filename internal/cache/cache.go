package cache

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests substitute a controllable clock.
type Clock func() time.Time

// entry is a cached payload together with its validity window.
type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
}

// validAt reports whether the entry is still fresh at now.
func (e *entry[V]) validAt(now time.Time) bool {
	return now.Sub(e.createdAt) < e.ttl
}

// Cache is a concurrency-safe TTL store.
// Readers share a read lock; writers are serialized.
type Cache[K comparable, V any] struct {
	// entries holds every stored value, expired or not.
	entries map[K]*entry[V]
	// now is the time source used for creation and validation.
	now Clock
	// mu guards entries.
	mu sync.RWMutex
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New creates an empty cache.
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	return &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		now:     o.clock,
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, found := c.entries[key]
	if !found || !stored.validAt(c.now()) {
		var zero V

		return zero, false
	}

	return stored.value, true
}

// Put stores value under key for ttl, replacing any previous entry.
// A non-positive ttl stores an entry that is already expired.
func (c *Cache[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry[V]{
		value:     value,
		createdAt: c.now(),
		ttl:       ttl,
	}
}

// Len returns the number of stored entries, including expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed.
// Correctness never depends on it; it only releases memory.
func (c *Cache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for key, stored := range c.entries {
		if !stored.validAt(now) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}
