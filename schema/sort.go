package schema

import (
	"fmt"
	"slices"
)

// SortID identifies a registered sort. Ids are dense and allocated in
// registration order.
type SortID uint32

// PropertyRange is one positional field of a record sort.
type PropertyRange struct {
	Property string `msgpack:"p"`
	Range    string `msgpack:"r"`
}

// Descriptor describes a sort before registration.
type Descriptor struct {
	Name   string          `msgpack:"name"`
	Kind   Kind            `msgpack:"kind"`
	Ranges []PropertyRange `msgpack:"ranges,omitempty"`
	// Inline sorts are never interned; their values are encoded in place.
	Inline bool `msgpack:"inline,omitempty"`
	// Packed is only legal on records whose every range is a string sort.
	Packed bool `msgpack:"packed,omitempty"`
}

// StringSort describes a dictionary-backed string sort.
func StringSort(name string) Descriptor {
	return Descriptor{Name: name, Kind: KindString}
}

// InlineStringSort describes a string sort whose values are always inlined.
func InlineStringSort(name string) Descriptor {
	return Descriptor{Name: name, Kind: KindString, Inline: true}
}

// ObjectSort describes a dictionary-backed object sort.
func ObjectSort(name string) Descriptor {
	return Descriptor{Name: name, Kind: KindObject}
}

// RecordSort describes a dictionary-backed record sort.
func RecordSort(name string, ranges ...PropertyRange) Descriptor {
	return Descriptor{Name: name, Kind: KindRecord, Ranges: ranges}
}

// StringRecordSort describes a packed all-string record sort. inline selects
// whether the packed form is interned or written at every occurrence.
func StringRecordSort(name string, inline bool, ranges ...PropertyRange) Descriptor {
	return Descriptor{Name: name, Kind: KindRecord, Ranges: ranges, Packed: true, Inline: inline}
}

// Field is shorthand for a PropertyRange.
func Field(property, rangeSort string) PropertyRange {
	return PropertyRange{Property: property, Range: rangeSort}
}

// Equal reports whether two descriptors define the same sort.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Name == o.Name &&
		d.Kind == o.Kind &&
		d.Inline == o.Inline &&
		d.Packed == o.Packed &&
		slices.Equal(d.Ranges, o.Ranges)
}

// Sort is an immutable registered type descriptor.
type Sort struct {
	id     SortID
	desc   Descriptor
	ranges []*Sort
}

// ID returns the sort id.
func (s *Sort) ID() SortID { return s.id }

// Name returns the unique sort name.
func (s *Sort) Name() string { return s.desc.Name }

// Kind returns the sort kind.
func (s *Sort) Kind() Kind { return s.desc.Kind }

// Ranges returns the positional record schema. The slice must not be modified.
func (s *Sort) Ranges() []PropertyRange { return s.desc.Ranges }

// RangeSort returns the registered sort of record field i.
func (s *Sort) RangeSort(i int) *Sort { return s.ranges[i] }

// NumFields returns the number of record fields.
func (s *Sort) NumFields() int { return len(s.desc.Ranges) }

// UseDictionary reports whether values of this sort receive dictionary ids.
func (s *Sort) UseDictionary() bool { return !s.desc.Inline }

// IsPacked reports whether the sort is a packed string record.
func (s *Sort) IsPacked() bool { return s.desc.Packed }

// Descriptor returns a copy of the registered descriptor.
func (s *Sort) Descriptor() Descriptor {
	d := s.desc
	d.Ranges = slices.Clone(s.desc.Ranges)
	return d
}

func (s *Sort) String() string {
	return fmt.Sprintf("%s(%s#%d)", s.desc.Name, s.desc.Kind, s.id)
}

// PropertySignature is a relation name bound to a domain and range sort.
// The same name between different sort pairs is a different signature.
type PropertySignature struct {
	Name   string
	Domain SortID
	Range  SortID
}

func (p PropertySignature) String() string {
	return fmt.Sprintf("%s[%d->%d]", p.Name, p.Domain, p.Range)
}
