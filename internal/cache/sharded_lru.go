package cache

const numShards = 16

// Sharded is a uint64-keyed Cache split across independent LRU shards.
type Sharded[V any] struct {
	shards [numShards]*LRU[uint64, V]
}

// NewSharded creates a sharded cache. The capacity is divided evenly across
// all shards; a capacity <= 0 disables caching.
func NewSharded[V any](capacity int) *Sharded[V] {
	per := 0
	if capacity > 0 {
		per = max(capacity/numShards, 1)
	}
	s := &Sharded[V]{}
	for i := range numShards {
		s.shards[i] = NewLRU[uint64, V](per)
	}
	return s
}

// splitmix64 finalizer; dense ids land on different shards.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func (s *Sharded[V]) shard(key uint64) *LRU[uint64, V] {
	return s.shards[mix(key)%numShards]
}

// Get returns a cached value.
func (s *Sharded[V]) Get(key uint64) (V, bool) { return s.shard(key).Get(key) }

// Set caches v.
func (s *Sharded[V]) Set(key uint64, v V) { s.shard(key).Set(key, v) }

// Remove drops key.
func (s *Sharded[V]) Remove(key uint64) { s.shard(key).Remove(key) }

// Purge drops every entry.
func (s *Sharded[V]) Purge() {
	for _, sh := range s.shards {
		sh.Purge()
	}
}

// Len returns the number of cached entries across shards.
func (s *Sharded[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

// Stats returns aggregated hit and miss counts.
func (s *Sharded[V]) Stats() Stats {
	var out Stats
	for _, sh := range s.shards {
		st := sh.Stats()
		out.Hits += st.Hits
		out.Misses += st.Misses
	}
	return out
}

var (
	_ Cache[string, int] = (*LRU[string, int])(nil)
	_ Cache[uint64, int] = (*Sharded[int])(nil)
)
