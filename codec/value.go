package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// Object slot tags.
const (
	slotRef    byte = 0
	slotInline byte = 1
)

// AppendValue appends v at a position whose sort is v's sort: the dictionary
// id for dictionary-backed sorts, the inline encoding otherwise.
//
// With create=false no ids are allocated and ErrAbsent is returned when v (or
// any nested dictionary-backed value) has not been interned.
func (c *Codec) AppendValue(dst []byte, v value.Value, create bool) ([]byte, error) {
	s, err := c.sortOf(v)
	if err != nil {
		return nil, err
	}
	if s.UseDictionary() {
		id, ok, err := c.r.ValueID(v, create)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s value %s", ErrAbsent, s.Name(), v)
		}
		return binary.AppendUvarint(dst, uint64(id)), nil
	}
	return c.appendInline(dst, s, v, create)
}

// AppendInline appends the inline encoding of v regardless of whether its sort
// is dictionary-backed. Dictionaries use it to build their content keys.
func (c *Codec) AppendInline(dst []byte, v value.Value, create bool) ([]byte, error) {
	s, err := c.sortOf(v)
	if err != nil {
		return nil, err
	}
	return c.appendInline(dst, s, v, create)
}

func (c *Codec) appendInline(dst []byte, s *schema.Sort, v value.Value, create bool) ([]byte, error) {
	switch s.Kind() {
	case schema.KindString:
		sv, ok := v.(*value.String)
		if !ok {
			return nil, schema.Mismatch(s.Name(), -1, "unexpected value type", "*value.String", fmt.Sprintf("%T", v))
		}
		return AppendString(dst, sv.String()), nil
	case schema.KindRecord:
		rv, ok := v.(*value.Record)
		if !ok {
			return nil, schema.Mismatch(s.Name(), -1, "unexpected value type", "*value.Record", fmt.Sprintf("%T", v))
		}
		return c.appendRecord(dst, s, rv, create)
	case schema.KindObject:
		ov, ok := v.(*value.Object)
		if !ok {
			return nil, schema.Mismatch(s.Name(), -1, "unexpected value type", "*value.Object", fmt.Sprintf("%T", v))
		}
		return c.appendObject(dst, s, ov, create)
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedKind, s.Kind())
	}
}

// appendRecord writes fields positionally; property names are implied by the
// sort. The record is re-validated so nothing is written for a mismatching one.
func (c *Codec) appendRecord(dst []byte, s *schema.Sort, rv *value.Record, create bool) ([]byte, error) {
	if rv.Len() != s.NumFields() {
		return nil, schema.Mismatch(s.Name(), -1, "field count",
			fmt.Sprintf("%d fields", s.NumFields()), fmt.Sprintf("%d fields", rv.Len()))
	}
	for i := 0; i < rv.Len(); i++ {
		p := rv.Pair(i)
		if err := value.CheckField(s, i, p.Property, p.Value); err != nil {
			return nil, err
		}
	}
	if s.IsPacked() {
		return appendPacked(dst, s, rv)
	}

	for i := 0; i < rv.Len(); i++ {
		var err error
		dst, err = c.AppendValue(dst, rv.Field(i), create)
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
	}
	return dst, nil
}

// appendObject writes: count, property ids, slot tags, reference ids, inline
// values. Same-kind data is grouped so each array stays homogeneous.
func (c *Codec) appendObject(dst []byte, s *schema.Sort, ov *value.Object, create bool) ([]byte, error) {
	n := ov.Len()
	pids := make([]value.ID, n)
	tags := make([]byte, n)
	var refs []value.ID
	var inline []byte

	// Resolve every slot's sort before allocating anything.
	sorts := make([]*schema.Sort, n)
	for i := 0; i < n; i++ {
		fs, err := c.sortOf(ov.Pair(i).Value)
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
		sorts[i] = fs
	}

	for i := 0; i < n; i++ {
		p := ov.Pair(i)
		fs := sorts[i]
		pid, err := c.propertyID(schema.PropertySignature{Name: p.Property, Domain: s.ID(), Range: fs.ID()}, create)
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
		pids[i] = pid

		if fs.UseDictionary() {
			id, ok, err := c.r.ValueID(p.Value, create)
			if err != nil {
				return nil, fieldErr(s, i, err)
			}
			if !ok {
				return nil, fieldErr(s, i, fmt.Errorf("%w: %s value %s", ErrAbsent, fs.Name(), p.Value))
			}
			tags[i] = slotRef
			refs = append(refs, id)
			continue
		}
		tags[i] = slotInline
		inline, err = c.appendInline(inline, fs, p.Value, create)
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
	}

	dst = binary.AppendUvarint(dst, uint64(n))
	for _, pid := range pids {
		dst = binary.AppendUvarint(dst, uint64(pid))
	}
	dst = append(dst, tags...)
	for _, id := range refs {
		dst = binary.AppendUvarint(dst, uint64(id))
	}
	return append(dst, inline...), nil
}

// DecodeValue decodes a value of sort s that spans all of b.
func (c *Codec) DecodeValue(b []byte, s *schema.Sort) (value.Value, error) {
	r := newReader(b, 0)
	v, err := c.readValue(&r, s)
	if err != nil {
		return nil, err
	}
	if !r.done() {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s value", ErrCorrupt, r.remaining(), s.Name())
	}
	return v, nil
}

// DecodeInline decodes an inline encoding of sort s that spans all of b.
func (c *Codec) DecodeInline(b []byte, s *schema.Sort) (value.Value, error) {
	r := newReader(b, 0)
	v, err := c.readInline(&r, s)
	if err != nil {
		return nil, err
	}
	if !r.done() {
		return nil, fmt.Errorf("%w: %d trailing bytes after inline %s", ErrCorrupt, r.remaining(), s.Name())
	}
	return v, nil
}

func (c *Codec) readValue(r *reader, s *schema.Sort) (value.Value, error) {
	if s.UseDictionary() {
		id, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		return c.r.Value(s, value.ID(id))
	}
	return c.readInline(r, s)
}

func (c *Codec) readInline(r *reader, s *schema.Sort) (value.Value, error) {
	switch s.Kind() {
	case schema.KindString:
		str, err := r.compactString()
		if err != nil {
			return nil, err
		}
		return value.NewString(s, str)
	case schema.KindRecord:
		if s.IsPacked() {
			return r.packed(s)
		}
		fields := make([]value.Value, s.NumFields())
		for i := range fields {
			f, err := c.readValue(r, s.RangeSort(i))
			if err != nil {
				return nil, fieldErr(s, i, err)
			}
			fields[i] = f
		}
		return value.NewRecordValues(s, fields...)
	case schema.KindObject:
		return c.readObject(r, s)
	default:
		return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedKind, s.Kind())
	}
}

func (c *Codec) readObject(r *reader, s *schema.Sort) (value.Value, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	pids := make([]value.ID, n)
	for i := range pids {
		id, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		pids[i] = value.ID(id)
	}
	tags, err := r.next(n)
	if err != nil {
		return nil, err
	}

	nrefs := 0
	for _, t := range tags {
		switch t {
		case slotRef:
			nrefs++
		case slotInline:
		default:
			return nil, fmt.Errorf("%w: unknown object slot tag %d", ErrCorrupt, t)
		}
	}
	refs := make([]value.ID, nrefs)
	for i := range refs {
		id, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		refs[i] = value.ID(id)
	}

	pairs := make([]value.PropertyValue, n)
	ref := 0
	for i := 0; i < n; i++ {
		sig, err := c.property(pids[i])
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
		if sig.Domain != s.ID() {
			return nil, fmt.Errorf("%w: property %s does not belong to %s", ErrCorrupt, sig, s.Name())
		}
		fs, err := c.r.Sorts().ByID(sig.Range)
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
		if (tags[i] == slotRef) != fs.UseDictionary() {
			return nil, fmt.Errorf("%w: slot %d of %s disagrees with sort %s", ErrCorrupt, i, s.Name(), fs.Name())
		}

		var v value.Value
		if tags[i] == slotRef {
			v, err = c.r.Value(fs, refs[ref])
			ref++
		} else {
			v, err = c.readInline(r, fs)
		}
		if err != nil {
			return nil, fieldErr(s, i, err)
		}
		pairs[i] = value.Pair(sig.Name, v)
	}
	return value.NewObject(s, pairs...)
}

// fieldErr adds position context without hiding the error class.
func fieldErr(s *schema.Sort, pos int, err error) error {
	var sm *schema.SchemaMismatchError
	if errors.As(err, &sm) {
		return err
	}
	return fmt.Errorf("%s field %d: %w", s.Name(), pos, err)
}
