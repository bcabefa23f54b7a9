package kv

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type pending struct {
	val     []byte
	deleted bool
}

// BufferedStore is a Store that holds writes in memory until Commit.
type BufferedStore struct {
	mu      sync.RWMutex
	backend Backend
	pending map[string]map[string]pending
	maps    map[string]*bufferedMap
	closed  bool

	commits atomic.Uint64
}

// NewStore wraps a backend with a per-namespace write buffer.
func NewStore(b Backend) *BufferedStore {
	return &BufferedStore{
		backend: b,
		pending: make(map[string]map[string]pending),
		maps:    make(map[string]*bufferedMap),
	}
}

// Map returns the map for namespace.
func (s *BufferedStore) Map(namespace string) (Map, error) {
	if !validNamespace(namespace) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if m, ok := s.maps[namespace]; ok {
		return m, nil
	}
	m := &bufferedMap{store: s, ns: namespace}
	s.maps[namespace] = m
	return m, nil
}

// Stage buffers writes under one lock, so Commit never splits them.
func (s *BufferedStore) Stage(writes ...Write) error {
	for _, w := range writes {
		if !validNamespace(w.Namespace) {
			return fmt.Errorf("%w: %q", ErrInvalidNamespace, w.Namespace)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, w := range writes {
		e := pending{deleted: true}
		if w.Value != nil {
			e = pending{val: append([]byte(nil), w.Value...)}
		}
		s.setLocked(w.Namespace, w.Key, e)
	}
	return nil
}

// Commit applies all pending writes to the backend in one batch.
func (s *BufferedStore) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	n := 0
	for _, p := range s.pending {
		n += len(p)
	}
	if n == 0 {
		s.commits.Add(1)
		return nil
	}

	writes := make([]Write, 0, n)
	for ns, entries := range s.pending {
		for k, e := range entries {
			w := Write{Namespace: ns, Key: []byte(k)}
			if !e.deleted {
				w.Value = e.val
			}
			writes = append(writes, w)
		}
	}

	if err := s.backend.Apply(writes); err != nil {
		return fmt.Errorf("kv: commit %d writes: %w", len(writes), err)
	}

	s.pending = make(map[string]map[string]pending)
	s.commits.Add(1)
	return nil
}

// Close releases the backend. Uncommitted writes are discarded.
func (s *BufferedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	return s.backend.Close()
}

// Stats returns write-buffer statistics.
func (s *BufferedStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.pending {
		n += len(p)
	}
	return Stats{PendingWrites: n, Commits: s.commits.Load()}
}

type bufferedMap struct {
	store *BufferedStore
	ns    string
}

func (m *bufferedMap) Namespace() string { return m.ns }

func (m *bufferedMap) Get(key []byte) ([]byte, bool, error) {
	s := m.store
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, ErrClosed
	}
	if e, ok := s.pending[m.ns][string(key)]; ok {
		s.mu.RUnlock()
		if e.deleted {
			return nil, false, nil
		}
		return e.val, true, nil
	}
	s.mu.RUnlock()

	return s.backend.Get(m.ns, key)
}

func (m *bufferedMap) Put(key, val []byte) error {
	// Own the value; callers commonly reuse encode buffers.
	cp := make([]byte, len(val))
	copy(cp, val)
	return m.set(key, pending{val: cp})
}

func (m *bufferedMap) Delete(key []byte) error {
	return m.set(key, pending{deleted: true})
}

func (m *bufferedMap) set(key []byte, e pending) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.setLocked(m.ns, key, e)
	return nil
}

func (s *BufferedStore) setLocked(ns string, key []byte, e pending) {
	p, ok := s.pending[ns]
	if !ok {
		p = make(map[string]pending)
		s.pending[ns] = p
	}
	p[string(key)] = e
}

func (m *bufferedMap) ForEach(fn func(key, val []byte) error) error {
	s := m.store
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	snapshot := make(map[string]pending, len(s.pending[m.ns]))
	for k, e := range s.pending[m.ns] {
		snapshot[k] = e
	}
	s.mu.RUnlock()

	err := s.backend.ForEach(m.ns, func(k, v []byte) error {
		if _, shadowed := snapshot[string(k)]; shadowed {
			return nil
		}
		return fn(k, v)
	})
	if err != nil {
		return err
	}

	for k, e := range snapshot {
		if e.deleted {
			continue
		}
		if err := fn([]byte(k), e.val); err != nil {
			return err
		}
	}
	return nil
}
