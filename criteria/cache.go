package criteria

import "time"

// Cache holds the list of active criteria between store reads. A backing
// store (SQL, file) satisfies reads through this; any implementation that
// honors the invalidate-on-write contract works, not just the in-memory one.
type Cache interface {
	// Get returns the cached list, or nil when nothing usable is held.
	Get() []*Criteria

	// Set replaces the cached list.
	Set(criteria []*Criteria)

	// Invalidate drops the cached list so the next Get misses.
	Invalidate()

	// IsValid reports whether Get would currently hit.
	IsValid() bool
}

// CacheConfig controls expiry behavior.
type CacheConfig struct {
	// TTL bounds how long a cached list is served. Zero means entries
	// never age out and only Invalidate empties the cache.
	TTL time.Duration

	// RefreshOnInvalidate asks the owner to repopulate right after an
	// Invalidate rather than lazily on the next Get.
	RefreshOnInvalidate bool
}

// DefaultCacheConfig suits the write-through usage in Service: mutations
// invalidate, so no TTL is needed.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:                 0,
		RefreshOnInvalidate: false,
	}
}
