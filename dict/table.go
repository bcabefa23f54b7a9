package dict

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/internal/cache"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/value"
)

// Entry is one (id, value) pair yielded by All.
type Entry[T any] struct {
	ID    value.ID
	Value T
}

// Dictionary is a content-addressed bijection between values and dense ids.
type Dictionary[T any] interface {
	// Value returns the value stored under id. ok=false if id was never assigned.
	Value(id value.ID) (v T, ok bool, err error)
	// ID returns the id of v without allocating. ok=false if v was never
	// interned, including when a nested value of v was never interned.
	ID(v T) (id value.ID, ok bool, err error)
	// GetOrCreateID returns the id of v, allocating the next id on first use.
	GetOrCreateID(v T) (value.ID, error)
	// Len returns the number of assigned ids.
	Len() uint64
	// All iterates every entry in id order.
	All() iter.Seq2[Entry[T], error]
}

// Encoding turns values into content keys and back.
type Encoding[T any] interface {
	// Key returns the content key of v. With create=false it returns an error
	// wrapping codec.ErrAbsent when v depends on something not yet interned.
	Key(v T, create bool) ([]byte, error)
	// Decode reverses Key.
	Decode(key []byte) (T, error)
}

// Table implements Dictionary over two persistent maps kept in lock-step
// (id → key and key → id) and a counter persisted in the meta map.
type Table[T any] struct {
	name   string
	enc    Encoding[T]
	store  kv.Store
	ids    kv.Map // key → uvarint id
	values kv.Map // big-endian id → key
	meta   kv.Map

	mu    sync.Mutex // serializes allocate-or-reuse
	next  atomic.Uint64
	cache *cache.Sharded[T]
}

// NewTable opens a table named name. Namespaces are derived from prefix:
// prefix+"/ids" and prefix+"/values"; the counter is stored in meta under prefix.
func NewTable[T any](store kv.Store, prefix string, enc Encoding[T], cacheSize int) (*Table[T], error) {
	ids, err := store.Map(prefix + "/ids")
	if err != nil {
		return nil, err
	}
	values, err := store.Map(prefix + "/values")
	if err != nil {
		return nil, err
	}
	meta, err := store.Map(MetaNamespace)
	if err != nil {
		return nil, err
	}

	t := &Table[T]{
		name:   prefix,
		enc:    enc,
		store:  store,
		ids:    ids,
		values: values,
		meta:   meta,
		cache:  cache.NewSharded[T](cacheSize),
	}

	raw, ok, err := meta.Get([]byte(prefix))
	if err != nil {
		return nil, fmt.Errorf("dict %s: load counter: %w", prefix, err)
	}
	if ok {
		n, sz := binary.Uvarint(raw)
		if sz <= 0 {
			return nil, fmt.Errorf("dict %s: %w: malformed counter", prefix, codec.ErrCorrupt)
		}
		t.next.Store(n)
	}
	return t, nil
}

func idKey(id value.ID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

// Name returns the table's namespace prefix.
func (t *Table[T]) Name() string { return t.name }

// Len returns the number of assigned ids.
func (t *Table[T]) Len() uint64 { return t.next.Load() }

// CacheStats returns decoded-value cache counters.
func (t *Table[T]) CacheStats() cache.Stats { return t.cache.Stats() }

// Value returns the value stored under id.
func (t *Table[T]) Value(id value.ID) (T, bool, error) {
	var zero T
	if v, ok := t.cache.Get(uint64(id)); ok {
		return v, true, nil
	}
	if uint64(id) >= t.next.Load() {
		return zero, false, nil
	}

	key, ok, err := t.values.Get(idKey(id))
	if err != nil {
		return zero, false, fmt.Errorf("dict %s: get #%d: %w", t.name, id, err)
	}
	if !ok {
		return zero, false, fmt.Errorf("dict %s: %w: id #%d below counter has no value", t.name, codec.ErrCorrupt, id)
	}
	v, err := t.enc.Decode(key)
	if err != nil {
		return zero, false, fmt.Errorf("dict %s: decode #%d: %w", t.name, id, err)
	}
	t.cache.Set(uint64(id), v)
	return v, true, nil
}

// ID returns the id of v without allocating.
func (t *Table[T]) ID(v T) (value.ID, bool, error) {
	key, err := t.enc.Key(v, false)
	if errors.Is(err, codec.ErrAbsent) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return t.lookup(key)
}

func (t *Table[T]) lookup(key []byte) (value.ID, bool, error) {
	raw, ok, err := t.ids.Get(key)
	if err != nil || !ok {
		return 0, false, err
	}
	id, n := binary.Uvarint(raw)
	if n <= 0 {
		return 0, false, fmt.Errorf("dict %s: %w: malformed id", t.name, codec.ErrCorrupt)
	}
	return value.ID(id), true, nil
}

// GetOrCreateID returns the id of v, allocating one on first use.
func (t *Table[T]) GetOrCreateID(v T) (value.ID, error) {
	id, _, err := t.getOrCreate(v)
	return id, err
}

// getOrCreate also reports whether an id was allocated.
func (t *Table[T]) getOrCreate(v T) (value.ID, bool, error) {
	// Nested values are interned before taking the lock; they may live in
	// this same table.
	key, err := t.enc.Key(v, true)
	if err != nil {
		return 0, false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok, err := t.lookup(key); err != nil || ok {
		return id, false, err
	}

	// Both rows and the counter are staged together; a commit never persists
	// an id without the counter that covers it.
	id := value.ID(t.next.Load())
	err = t.store.Stage(
		kv.Write{Namespace: t.values.Namespace(), Key: idKey(id), Value: key},
		kv.Write{Namespace: t.ids.Namespace(), Key: key, Value: binary.AppendUvarint(nil, uint64(id))},
		kv.Write{Namespace: t.meta.Namespace(), Key: []byte(t.name), Value: binary.AppendUvarint(nil, uint64(id)+1)},
	)
	if err != nil {
		return 0, false, fmt.Errorf("dict %s: stage #%d: %w", t.name, id, err)
	}
	t.next.Store(uint64(id) + 1)
	t.cache.Set(uint64(id), v)
	return id, true, nil
}

// All iterates every entry in id order.
func (t *Table[T]) All() iter.Seq2[Entry[T], error] {
	return func(yield func(Entry[T], error) bool) {
		n := t.next.Load()
		for i := uint64(0); i < n; i++ {
			v, ok, err := t.Value(value.ID(i))
			if err == nil && !ok {
				err = fmt.Errorf("dict %s: %w: missing #%d", t.name, codec.ErrCorrupt, i)
			}
			if err != nil {
				yield(Entry[T]{ID: value.ID(i)}, err)
				return
			}
			if !yield(Entry[T]{ID: value.ID(i), Value: v}, nil) {
				return
			}
		}
	}
}

var _ Dictionary[value.Value] = (*Table[value.Value])(nil)
