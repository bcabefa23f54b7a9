package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hupe1980/factdb/kv"
)

// Registry owns every registered sort. It is constructed explicitly and passed
// to every component that needs schema decisions.
type Registry struct {
	mu     sync.RWMutex
	m      kv.Map
	byID   []*Sort
	byName map[string]*Sort
}

func sortKey(id SortID) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

// NewRegistry loads all sorts persisted in m.
func NewRegistry(m kv.Map) (*Registry, error) {
	r := &Registry{
		m:      m,
		byName: make(map[string]*Sort),
	}

	type loaded struct {
		id   SortID
		desc Descriptor
	}
	var all []loaded
	err := m.ForEach(func(k, v []byte) error {
		if len(k) != 4 {
			return fmt.Errorf("schema: malformed sort key %x", k)
		}
		var d Descriptor
		if err := msgpack.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("schema: decode sort %x: %w", k, err)
		}
		all = append(all, loaded{id: SortID(binary.BigEndian.Uint32(k)), desc: d})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(all, func(a, b loaded) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})

	for i, l := range all {
		if int(l.id) != i {
			return nil, fmt.Errorf("schema: sort ids are not dense: expected %d, found %d", i, l.id)
		}
		s, err := r.build(l.id, l.desc)
		if err != nil {
			return nil, fmt.Errorf("schema: reload sort %q: %w", l.desc.Name, err)
		}
		r.byID = append(r.byID, s)
		r.byName[s.Name()] = s
	}
	return r, nil
}

// RegisterOrGet registers d, or returns the existing sort when an identical
// descriptor is already registered under the same name.
func (r *Registry) RegisterOrGet(d Descriptor) (*Sort, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[d.Name]; ok {
		if !existing.desc.Equal(d) {
			return nil, fmt.Errorf("%w: %q", ErrSortRedefined, d.Name)
		}
		return existing, nil
	}

	if uint64(len(r.byID)) >= math.MaxUint32 {
		return nil, fmt.Errorf("schema: sort id space exhausted")
	}
	id := SortID(len(r.byID))
	s, err := r.build(id, d)
	if err != nil {
		return nil, err
	}

	payload, err := msgpack.Marshal(&s.desc)
	if err != nil {
		return nil, fmt.Errorf("schema: encode sort %q: %w", d.Name, err)
	}
	if err := r.m.Put(sortKey(id), payload); err != nil {
		return nil, fmt.Errorf("schema: persist sort %q: %w", d.Name, err)
	}

	r.byID = append(r.byID, s)
	r.byName[s.Name()] = s
	return s, nil
}

// build validates d against the already registered sorts.
// Caller must hold r.mu or be the only user (reload).
func (r *Registry) build(id SortID, d Descriptor) (*Sort, error) {
	if d.Name == "" {
		return nil, Mismatch("", -1, "empty sort name", "name", `""`)
	}
	if !d.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s for sort %q", ErrUnsupportedKind, d.Kind, d.Name)
	}

	s := &Sort{id: id, desc: d}
	s.desc.Ranges = slices.Clone(d.Ranges)

	switch d.Kind {
	case KindString, KindObject:
		if len(d.Ranges) > 0 {
			return nil, Mismatch(d.Name, -1, "only records declare property ranges",
				"0 ranges", fmt.Sprintf("%d ranges", len(d.Ranges)))
		}
		if d.Packed {
			return nil, Mismatch(d.Name, -1, "only records can be packed", KindRecord.String(), d.Kind.String())
		}
	case KindRecord:
		seen := make(map[string]struct{}, len(d.Ranges))
		s.ranges = make([]*Sort, len(d.Ranges))
		for i, pr := range d.Ranges {
			if pr.Property == "" {
				return nil, Mismatch(d.Name, i, "empty property name", "name", `""`)
			}
			if _, dup := seen[pr.Property]; dup {
				return nil, Mismatch(d.Name, i, "duplicate property", "unique name", pr.Property)
			}
			seen[pr.Property] = struct{}{}

			rs, ok := r.byName[pr.Range]
			if !ok {
				return nil, fmt.Errorf("%w: %q (range of %s.%s)", ErrUnknownSort, pr.Range, d.Name, pr.Property)
			}
			if d.Packed && rs.Kind() != KindString {
				return nil, Mismatch(d.Name, i, "packed records only hold strings", KindString.String(), rs.Kind().String())
			}
			s.ranges[i] = rs
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, d.Kind)
	}
	return s, nil
}

// ByName returns the sort registered under name.
func (r *Registry) ByName(name string) (*Sort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSort, name)
	}
	return s, nil
}

// ByID returns the sort with the given id.
func (r *Registry) ByID(id SortID) (*Sort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(id) >= len(r.byID) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownSort, id)
	}
	return r.byID[id], nil
}

// UseDictionary reports whether values of the named sort are interned.
func (r *Registry) UseDictionary(name string) (bool, error) {
	s, err := r.ByName(name)
	if err != nil {
		return false, err
	}
	return s.UseDictionary(), nil
}

// Sorts returns all sorts in id order.
func (r *Registry) Sorts() []*Sort {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.byID)
}

// Len returns the number of registered sorts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}
