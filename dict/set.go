package dict

import (
	"fmt"
	"sync"

	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// Options configures a Set.
type Options struct {
	// ValueCacheSize bounds the decoded values cached per sort dictionary.
	ValueCacheSize int
	// PropertyCacheSize bounds the cached property signatures.
	PropertyCacheSize int
}

// DefaultOptions returns the default cache sizes.
func DefaultOptions() Options {
	return Options{
		ValueCacheSize:    1 << 16,
		PropertyCacheSize: 1 << 12,
	}
}

// Set owns the property dictionary and one lazily created value dictionary
// per dictionary-backed sort. It implements codec.Resolver, so the codec it
// hands out resolves nested values through the same dictionaries.
type Set struct {
	reg   *schema.Registry
	store kv.Store
	opts  Options
	codec *codec.Codec
	props *PropertyDictionary

	mu     sync.RWMutex
	values map[schema.SortID]ValueDictionary
}

// NewSet opens the dictionaries stored in store.
func NewSet(reg *schema.Registry, store kv.Store, opts Options) (*Set, error) {
	props, err := NewPropertyDictionary(reg, store, opts.PropertyCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Set{
		reg:    reg,
		store:  store,
		opts:   opts,
		props:  props,
		values: make(map[schema.SortID]ValueDictionary),
	}
	s.codec = codec.New(s)
	return s, nil
}

// Sorts returns the sort registry.
func (s *Set) Sorts() *schema.Registry { return s.reg }

// Codec returns the codec bound to this set.
func (s *Set) Codec() *codec.Codec { return s.codec }

// Properties returns the property dictionary.
func (s *Set) Properties() *PropertyDictionary { return s.props }

// Dictionary returns the dictionary of sort, creating it on first use.
// ok=false for inline sorts.
func (s *Set) Dictionary(sort *schema.Sort) (ValueDictionary, bool, error) {
	s.mu.RLock()
	d, ok := s.values[sort.ID()]
	s.mu.RUnlock()
	if ok {
		return d, true, nil
	}
	if !sort.UseDictionary() {
		return nil, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := s.values[sort.ID()]; ok {
		return d, true, nil
	}
	d, ok, err := NewValueDictionary(sort, s.store, s.codec, s.opts.ValueCacheSize)
	if err != nil || !ok {
		return nil, ok, err
	}
	s.values[sort.ID()] = d
	return d, true, nil
}

// Loaded returns the dictionaries created so far.
func (s *Set) Loaded() []ValueDictionary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ValueDictionary, 0, len(s.values))
	for _, d := range s.values {
		out = append(out, d)
	}
	return out
}

func (s *Set) dictionaryFor(v value.Value) (ValueDictionary, error) {
	sort, err := s.codec.SortOf(v)
	if err != nil {
		return nil, err
	}
	d, ok, err := s.Dictionary(sort)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: sort %q is inline and has no dictionary", schema.ErrUnsupportedKind, sort.Name())
	}
	return d, nil
}

// ValueID implements codec.Resolver.
func (s *Set) ValueID(v value.Value, create bool) (value.ID, bool, error) {
	d, err := s.dictionaryFor(v)
	if err != nil {
		return 0, false, err
	}
	if !create {
		return d.ID(v)
	}
	id, err := d.GetOrCreateID(v)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Value implements codec.Resolver. An unassigned id is ErrUnknownID.
func (s *Set) Value(sort *schema.Sort, id value.ID) (value.Value, error) {
	d, ok, err := s.Dictionary(sort)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: sort %q is inline and has no dictionary", schema.ErrUnsupportedKind, sort.Name())
	}
	v, ok, err := d.Value(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s #%d", schema.ErrUnknownID, sort.Name(), id)
	}
	return v, nil
}

// PropertyID implements codec.Resolver.
func (s *Set) PropertyID(sig schema.PropertySignature, create bool) (value.ID, bool, error) {
	if !create {
		return s.props.ID(sig)
	}
	id, err := s.props.GetOrCreateID(sig)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Property implements codec.Resolver. An unassigned id is ErrUnknownID.
func (s *Set) Property(id value.ID) (schema.PropertySignature, error) {
	sig, ok, err := s.props.Value(id)
	if err != nil {
		return sig, err
	}
	if !ok {
		return sig, fmt.Errorf("%w: property #%d", schema.ErrUnknownID, id)
	}
	return sig, nil
}

var _ codec.Resolver = (*Set)(nil)
