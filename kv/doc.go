// Package kv provides the persistent key-value substrate factdb is built on.
//
// A Store hands out namespaced Maps. Writes are buffered per namespace and only
// reach the backend on Commit, which applies all pending writes in one batch.
// Reads always observe pending writes, so every caller in the process sees its own
// (and everyone else's) uncommitted updates.
//
// # Built-in Backends
//
//   - Bolt: go.etcd.io/bbolt, one bucket per namespace, one transaction per Commit
//   - Badger: github.com/dgraph-io/badger/v4, namespace-prefixed keys
//   - Memory: process-local maps, used for tests and throwaway stores
//
// # Custom Backends
//
// Implement the Backend interface to plug in another engine:
//
//	type Backend interface {
//	    Get(ns string, key []byte) ([]byte, bool, error)
//	    ForEach(ns string, fn func(k, v []byte) error) error
//	    Apply(writes []Write) error
//	    Close() error
//	}
//
// Apply should be atomic where the engine supports it. A crash between two
// Commits leaves the previous commit intact.
package kv
