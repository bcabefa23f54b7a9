package cache

// Cache is a bounded cache. Implementations must be safe for concurrent use.
type Cache[K comparable, V any] interface {
	// Get returns the cached value. ok=false if missing.
	Get(key K) (v V, ok bool)
	// Set caches v under key, evicting the least recently used entry when full.
	Set(key K, v V)
	// Remove drops key.
	Remove(key K)
	// Purge drops every entry.
	Purge()
	// Len returns the number of cached entries.
	Len() int
	// Stats returns hit and miss counts.
	Stats() Stats
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits   int64
	Misses int64
}
