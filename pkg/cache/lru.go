// Package cache provides an in-memory LRU cache with TTL. It backs the query
// embedding cache of the retrieval service and the finished-result response
// cache of the job API.
package cache

import (
	"sync"
	"time"
)

// entry holds a cached value with its expiration time and last access time.
type entry[V any] struct {
	value     V
	expiresAt time.Time
	usedAt    time.Time
}

// LRU is a thread-safe in-memory cache with TTL and max-size eviction.
// When the cache reaches maxSize, the least recently used entry is evicted to
// make room for new entries. Expired entries are lazily evicted on Get.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*entry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRU creates a new LRU cache with the given maximum size and TTL.
// maxSize is raised to 1 and a non-positive ttl becomes 60s.
func NewLRU[K comparable, V any](maxSize int, ttl time.Duration) *LRU[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &LRU[K, V]{
		items:   make(map[K]*entry[V], maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached value by key. It returns the zero value and false if
// the key is missing or expired.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}

	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}

	e.usedAt = now
	return e.value, true
}

// Set stores a value in the cache. If the cache is at capacity, the least
// recently used entry is evicted before inserting.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = &entry[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
		usedAt:    now,
	}
}

// Invalidate removes a specific key from the cache.
func (c *LRU[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateAll removes all entries from the cache.
func (c *LRU[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[V], c.maxSize)
}

// Size returns the number of entries currently in the cache, including
// expired ones that have not been lazily cleaned.
func (c *LRU[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest usedAt timestamp.
// Must be called with c.mu held.
func (c *LRU[K, V]) evictOldest() {
	var oldestKey K
	var oldestTime time.Time
	first := true

	for k, e := range c.items {
		if first || e.usedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.usedAt
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}
