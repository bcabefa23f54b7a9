// Package codec translates values and edge containers to and from compact byte
// layouts.
//
// The codec keeps no persistent state. Every decision ("is this sort
// dictionary-backed here?") is made by re-querying the sort registry through
// the Resolver, identically on encode and decode, so no schema is stored with
// the encoded bytes. Sorts therefore must never change after first use.
//
// Treat the layouts as a breaking-change boundary: bytes written by one layout
// version are not readable by another.
package codec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

var (
	// ErrAbsent is returned when encoding in lookup mode reaches a value or
	// property that has no id yet.
	ErrAbsent = errors.New("codec: not interned")

	// ErrCorrupt is returned when encoded bytes cannot be decoded.
	ErrCorrupt = errors.New("codec: corrupt encoding")
)

// Resolver gives the codec access to the sort registry and the dictionaries.
//
// The dictionaries themselves hold a Codec built over a Resolver, which keeps
// the dependency one-way: nothing in this package knows who owns them.
type Resolver interface {
	// Sorts returns the registry all decisions are made against.
	Sorts() *schema.Registry
	// ValueID returns the dictionary id of v. With create=false an unknown
	// value yields ok=false and no allocation.
	ValueID(v value.Value, create bool) (id value.ID, ok bool, err error)
	// Value returns the value with the given id in sort's dictionary.
	Value(sort *schema.Sort, id value.ID) (value.Value, error)
	// PropertyID returns the id of a property signature.
	PropertyID(sig schema.PropertySignature, create bool) (id value.ID, ok bool, err error)
	// Property returns the signature with the given id.
	Property(id value.ID) (schema.PropertySignature, error)
}

// Codec encodes and decodes values against a Resolver.
// A Codec is safe for concurrent use if its Resolver is.
type Codec struct {
	r Resolver
}

// New creates a codec.
func New(r Resolver) *Codec {
	return &Codec{r: r}
}

// Resolver returns the resolver the codec was built with.
func (c *Codec) Resolver() Resolver { return c.r }

// sortOf returns the registered sort for v and checks that v was built
// against it.
func (c *Codec) sortOf(v value.Value) (*schema.Sort, error) {
	if v == nil || v.Sort() == nil {
		return nil, schema.Mismatch("", -1, "value without sort", "sorted value", "nil")
	}
	s, err := c.r.Sorts().ByName(v.Sort().Name())
	if err != nil {
		return nil, err
	}
	if s.ID() != v.Sort().ID() || s.Kind() != v.Kind() {
		return nil, schema.Mismatch(s.Name(), -1, "value built against a foreign sort",
			s.String(), v.Sort().String())
	}
	return s, nil
}

// SortOf is the exported form of sortOf used by dictionaries and indexes.
func (c *Codec) SortOf(v value.Value) (*schema.Sort, error) {
	return c.sortOf(v)
}

func (c *Codec) property(id value.ID) (schema.PropertySignature, error) {
	sig, err := c.r.Property(id)
	if err != nil {
		return schema.PropertySignature{}, fmt.Errorf("resolve property %d: %w", id, err)
	}
	return sig, nil
}

func (c *Codec) propertyID(sig schema.PropertySignature, create bool) (value.ID, error) {
	id, ok, err := c.r.PropertyID(sig, create)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: property %s", ErrAbsent, sig)
	}
	return id, nil
}
