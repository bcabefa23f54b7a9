// Package cache provides bounded in-memory caches for decoded values.
//
// # LRU
//
// LRU is a generic, mutex-guarded least-recently-used cache bounded by entry
// count.
//
// # Sharded
//
// Sharded spreads uint64-keyed entries (dictionary ids) over 16 LRU shards
// selected by a splitmix64 mix of the key, so concurrent readers of different
// ids rarely share a lock.
package cache
