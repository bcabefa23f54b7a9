package dict

import (
	"fmt"

	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// ValueDictionary is the dictionary of one dictionary-backed sort.
type ValueDictionary interface {
	Dictionary[value.Value]
	// Sort returns the sort whose values the dictionary holds.
	Sort() *schema.Sort
}

// valueEncoding keys values by their inline encoding. The same bytes that
// would be written in place become the dictionary key, so content-equal
// values always meet in the same row.
type valueEncoding struct {
	sort *schema.Sort
	c    *codec.Codec
}

func (e valueEncoding) Key(v value.Value, create bool) ([]byte, error) {
	s, err := e.c.SortOf(v)
	if err != nil {
		return nil, err
	}
	if s.ID() != e.sort.ID() {
		return nil, schema.Mismatch(e.sort.Name(), -1, "value of another sort", e.sort.Name(), s.Name())
	}
	return e.c.AppendInline(nil, v, create)
}

func (e valueEncoding) Decode(key []byte) (value.Value, error) {
	return e.c.DecodeInline(key, e.sort)
}

// ValueNamespace returns the namespace prefix of sort's dictionary.
func ValueNamespace(sort string) string {
	return "values/" + sort
}

type valueTable struct {
	*Table[value.Value]
	sort *schema.Sort
}

func (d valueTable) Sort() *schema.Sort { return d.sort }

func newValueTable(sort *schema.Sort, store kv.Store, c *codec.Codec, cacheSize int) (valueTable, error) {
	t, err := NewTable[value.Value](store, ValueNamespace(sort.Name()), valueEncoding{sort: sort, c: c}, cacheSize)
	if err != nil {
		return valueTable{}, err
	}
	return valueTable{Table: t, sort: sort}, nil
}

// StringValueDictionary interns plain strings. Keys are compact strings: raw
// bytes for ASCII, validated UTF-8 otherwise.
type StringValueDictionary struct {
	valueTable
}

// GetOrCreateString interns s as a value of the dictionary's sort.
func (d *StringValueDictionary) GetOrCreateString(s string) (value.ID, error) {
	v, err := value.NewString(d.sort, s)
	if err != nil {
		return 0, err
	}
	return d.GetOrCreateID(v)
}

// StringID looks s up without allocating.
func (d *StringValueDictionary) StringID(s string) (value.ID, bool, error) {
	v, err := value.NewString(d.sort, s)
	if err != nil {
		return 0, false, err
	}
	return d.ID(v)
}

// ObjectValueDictionary interns objects. Keys hold property ids, slot tags,
// reference ids and inline values as separate arrays.
type ObjectValueDictionary struct {
	valueTable
}

// Object returns the object stored under id.
func (d *ObjectValueDictionary) Object(id value.ID) (*value.Object, bool, error) {
	v, ok, err := d.Value(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v.(*value.Object), true, nil
}

// RecordValueDictionary interns records. Keys carry no property ids; each
// position holds a reference id or a nested inline value.
type RecordValueDictionary struct {
	valueTable
}

// Record returns the record stored under id.
func (d *RecordValueDictionary) Record(id value.ID) (*value.Record, bool, error) {
	v, ok, err := d.Value(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v.(*value.Record), true, nil
}

// StringRecordValueDictionary interns packed all-string records. Keys are the
// length-prefixed field strings in declared order.
type StringRecordValueDictionary struct {
	valueTable
}

// GetOrCreateFields interns the record built from fields in declared order.
func (d *StringRecordValueDictionary) GetOrCreateFields(fields ...string) (value.ID, error) {
	if len(fields) != d.sort.NumFields() {
		return 0, schema.Mismatch(d.sort.Name(), -1, "field count",
			fmt.Sprintf("%d fields", d.sort.NumFields()), fmt.Sprintf("%d fields", len(fields)))
	}
	vals := make([]value.Value, len(fields))
	for i, f := range fields {
		s, err := value.NewString(d.sort.RangeSort(i), f)
		if err != nil {
			return 0, err
		}
		vals[i] = s
	}
	rec, err := value.NewRecordValues(d.sort, vals...)
	if err != nil {
		return 0, err
	}
	return d.GetOrCreateID(rec)
}

// Fields returns the field strings of the record stored under id.
func (d *StringRecordValueDictionary) Fields(id value.ID) ([]string, bool, error) {
	v, ok, err := d.Value(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	rec := v.(*value.Record)
	out := make([]string, rec.Len())
	for i := range out {
		out[i] = rec.Field(i).String()
	}
	return out, true, nil
}

// NewValueDictionary creates the dictionary for sort. Inline sorts have no
// dictionary: ok=false and callers treat the sort as always-inline.
func NewValueDictionary(sort *schema.Sort, store kv.Store, c *codec.Codec, cacheSize int) (ValueDictionary, bool, error) {
	if !sort.UseDictionary() {
		return nil, false, nil
	}
	t, err := newValueTable(sort, store, c, cacheSize)
	if err != nil {
		return nil, false, err
	}

	switch sort.Kind() {
	case schema.KindString:
		return &StringValueDictionary{t}, true, nil
	case schema.KindObject:
		return &ObjectValueDictionary{t}, true, nil
	case schema.KindRecord:
		if sort.IsPacked() {
			return &StringRecordValueDictionary{t}, true, nil
		}
		return &RecordValueDictionary{t}, true, nil
	default:
		return nil, false, fmt.Errorf("%w: %s for sort %q", schema.ErrUnsupportedKind, sort.Kind(), sort.Name())
	}
}

var (
	_ ValueDictionary = (*StringValueDictionary)(nil)
	_ ValueDictionary = (*ObjectValueDictionary)(nil)
	_ ValueDictionary = (*RecordValueDictionary)(nil)
	_ ValueDictionary = (*StringRecordValueDictionary)(nil)
)
