// Package cache provides thread-safe in-memory caching with TTL support.
package cache

import (
	"sync"
	"time"
)

// sweepEvery bounds how often Set scans for expired entries.
const sweepEvery = 5 * time.Minute

// Entry holds a cached value with expiration. A zero expiration means the
// entry never expires.
type Entry struct {
	value      any
	expiration time.Time
}

// Cache provides thread-safe caching with TTL. Expired entries are dropped
// lazily on read and swept periodically on write; there is no background
// goroutine to stop.
type Cache struct {
	entries   map[string]Entry
	nextSweep time.Time
	mu        sync.RWMutex
	ttl       time.Duration
}

// New creates a new cache with the specified default TTL. A non-positive
// TTL means entries never expire.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries:   make(map[string]Entry),
		ttl:       ttl,
		nextSweep: time.Now().Add(sweepEvery),
	}
}

// Get retrieves a value from cache if not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}
	if entry.expired(time.Now()) {
		c.mu.Lock()
		// Re-check after lock upgrade; a writer may have refreshed the key
		if e, ok := c.entries[key]; ok && e.expired(time.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores a value in cache with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

func (e Entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// SetWithTTL stores a value in cache with a custom TTL. A non-positive TTL
// means the entry never expires.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	now := time.Now()
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{value: value, expiration: expiration}
	if now.After(c.nextSweep) {
		for k, e := range c.entries {
			if e.expired(now) {
				delete(c.entries, k)
			}
		}
		c.nextSweep = now.Add(sweepEvery)
	}
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries currently held, including any expired
// entries not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
