package kv

import (
	"sync"
)

// MemoryBackend is an in-memory Backend implementation for testing.
// It has no filesystem dependency. Thread-safe for concurrent reads and writes.
type MemoryBackend struct {
	mu     sync.RWMutex
	spaces map[string]map[string][]byte
	closed bool
}

// NewMemory creates a new in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		spaces: make(map[string]map[string][]byte),
	}
}

// Get returns the committed value for key in ns.
func (m *MemoryBackend) Get(ns string, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.spaces[ns][string(key)]
	return v, ok, nil
}

// ForEach iterates a snapshot of ns, so fn may write to the backend.
func (m *MemoryBackend) ForEach(ns string, fn func(key, val []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys := make([]string, 0, len(m.spaces[ns]))
	vals := make([][]byte, 0, len(m.spaces[ns]))
	for k, v := range m.spaces[ns] {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn([]byte(k), vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Apply applies writes atomically.
func (m *MemoryBackend) Apply(writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, w := range writes {
		space, ok := m.spaces[w.Namespace]
		if !ok {
			space = make(map[string][]byte)
			m.spaces[w.Namespace] = space
		}
		if w.Value == nil {
			delete(space, string(w.Key))
			continue
		}
		// Copy to prevent external mutation
		v := make([]byte, len(w.Value))
		copy(v, w.Value)
		space[string(w.Key)] = v
	}
	return nil
}

// Close marks the backend closed. Data is discarded.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.spaces = nil
	return nil
}
