// Package memcache is an in-process TTL cache backing ports.Cache. The bot
// runs as a single process, so a mutex-guarded map is enough; entries expire
// lazily on read.
package memcache

import (
	"sync"
	"time"
)

type entry struct {
	value     interface{}
	expiresAt time.Time // zero means no expiry
}

// Cache is a thread-safe in-memory key-value store with per-entry TTLs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time // overridable in tests
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the live value for the key. An expired entry is removed and
// reported as absent.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value for the given TTL. A non-positive TTL stores the value
// without expiry.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// Delete removes an entry. Deleting a missing key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
