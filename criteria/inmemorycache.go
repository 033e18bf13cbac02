package criteria

import (
	"sync"
	"time"
)

// InMemoryCache keeps the active criteria list in process memory behind an
// RWMutex. Suitable for a single instance; multi-instance deployments need
// a shared backend behind the Cache interface instead.
type InMemoryCache struct {
	criteria []*Criteria
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryCache returns an empty cache; the first Get misses.
func NewInMemoryCache(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{
		config:  config,
		isValid: false,
	}
}

// Get returns the held list, or nil after Invalidate or once the TTL has
// elapsed.
func (c *InMemoryCache) Get() []*Criteria {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}

	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	// Callers get their own slice header; the shared backing entries are
	// pointers, so treat the criteria themselves as read-only.
	out := make([]*Criteria, len(c.criteria))
	copy(out, c.criteria)
	return out
}

// Set replaces the held list and restarts the TTL clock.
func (c *InMemoryCache) Set(criteria []*Criteria) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.criteria = make([]*Criteria, len(criteria))
	copy(c.criteria, criteria)
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate empties the cache.
func (c *InMemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.criteria = nil
}

// IsValid reports whether a Get right now would hit.
func (c *InMemoryCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}

	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}

	return true
}
