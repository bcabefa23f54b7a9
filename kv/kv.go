package kv

import (
	"errors"
)

var (
	// ErrClosed is returned when a store or backend is used after Close.
	ErrClosed = errors.New("kv: store closed")

	// ErrInvalidNamespace is returned for empty namespaces or namespaces containing NUL.
	ErrInvalidNamespace = errors.New("kv: invalid namespace")
)

// Map is a single persistent namespace.
//
// Returned slices must be treated as read-only. Implementations must be safe for
// concurrent use.
type Map interface {
	// Get returns the value stored under key. ok=false if the key is absent.
	Get(key []byte) (val []byte, ok bool, err error)
	// Put stores val under key, replacing any previous value.
	Put(key, val []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error
	// ForEach calls fn for every live entry. Iteration order is unspecified.
	// Returning an error from fn stops the iteration and returns that error.
	ForEach(fn func(key, val []byte) error) error
	// Namespace returns the namespace name.
	Namespace() string
}

// Store hands out namespaced maps and controls durability.
type Store interface {
	// Map returns the map for namespace, creating it on first use.
	Map(namespace string) (Map, error)
	// Stage buffers writes across namespaces as one unit: a concurrent Commit
	// applies either all of them or none.
	Stage(writes ...Write) error
	// Commit applies all pending writes to the backend.
	Commit() error
	// Close commits nothing; it releases the backend. Pending writes are dropped.
	Close() error
}

// Write is a single mutation applied by a Backend.
// A nil Value deletes the key.
type Write struct {
	Namespace string
	Key       []byte
	Value     []byte
}

// Backend is the raw engine behind a Store.
type Backend interface {
	Get(ns string, key []byte) ([]byte, bool, error)
	ForEach(ns string, fn func(key, val []byte) error) error
	Apply(writes []Write) error
	Close() error
}

// Stats describes the write buffer of a Store.
type Stats struct {
	PendingWrites int
	Commits       uint64
}

func validNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for i := 0; i < len(ns); i++ {
		if ns[i] == 0 {
			return false
		}
	}
	return true
}
