package builtin

import (
	"sync"
	"time"
)

type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

// cacheSweepInterval bounds how often Set scans for expired entries.
const cacheSweepInterval = time.Minute

// Cache is a small in-memory TTL cache safe for concurrent access. Expired
// entries are dropped on read and by a sweep that Set runs at most once per
// cacheSweepInterval, so keys that are never read again do not accumulate.
type Cache[V any] struct {
	mu        sync.RWMutex
	items     map[string]cacheItem[V]
	now       func() time.Time
	nextSweep time.Time
}

// NewCache constructs an empty cache.
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{items: make(map[string]cacheItem[V]), now: time.Now}
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
		c.nextSweep = now.Add(cacheSweepInterval)
	}
	c.items[key] = cacheItem[V]{value: value, expiration: now.Add(ttl)}
}

func (c *Cache[V]) sweepLocked(now time.Time) int {
	removed := 0
	for key, it := range c.items {
		if now.After(it.expiration) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Get returns the unexpired value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if now := c.now(); now.After(it.expiration) {
		c.mu.Lock()
		// A concurrent Set may have refreshed the key since the read.
		if current, ok := c.items[key]; ok && now.After(current.expiration) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return it.value, true
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
