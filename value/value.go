package value

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/factdb/schema"
)

// ID is a dictionary id. Ids are dense per sort and never reused.
type ID uint64

// Value is a sorted, content-compared value.
//
// Values are immutable once constructed; dictionaries may keep them as cache
// entries indefinitely.
type Value interface {
	Sort() *schema.Sort
	Kind() schema.Kind
	String() string
}

// PropertyValue is one (property, value) pair of an object, record or qualifier list.
type PropertyValue struct {
	Property string
	Value    Value
}

// Pair is shorthand for a PropertyValue.
func Pair(property string, v Value) PropertyValue {
	return PropertyValue{Property: property, Value: v}
}

// String is a plain string value.
type String struct {
	sort *schema.Sort
	s    string
}

// NewString creates a string value. sort must be a STRING sort and s must be
// valid UTF-8.
func NewString(sort *schema.Sort, s string) (*String, error) {
	if sort == nil || sort.Kind() != schema.KindString {
		return nil, wrongKind(sort, schema.KindString)
	}
	if !utf8.ValidString(s) {
		return nil, schema.Mismatch(sort.Name(), -1, "invalid utf-8", "utf-8 text", fmt.Sprintf("%q", s))
	}
	return &String{sort: sort, s: s}, nil
}

// MustString is like NewString but panics on error. Intended for tests and
// static fixtures.
func MustString(sort *schema.Sort, s string) *String {
	v, err := NewString(sort, s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *String) Sort() *schema.Sort { return v.sort }
func (v *String) Kind() schema.Kind  { return schema.KindString }
func (v *String) String() string     { return v.s }

// Object is an ordered list of (property, value) pairs. The property set is not
// fixed by the sort, and pairs may repeat a property.
type Object struct {
	sort  *schema.Sort
	pairs []PropertyValue
}

// NewObject creates an object value. sort must be an OBJECT sort.
func NewObject(sort *schema.Sort, pairs ...PropertyValue) (*Object, error) {
	if sort == nil || sort.Kind() != schema.KindObject {
		return nil, wrongKind(sort, schema.KindObject)
	}
	for i, p := range pairs {
		if p.Property == "" {
			return nil, schema.Mismatch(sort.Name(), i, "empty property name", "name", `""`)
		}
		if p.Value == nil || p.Value.Sort() == nil {
			return nil, schema.Mismatch(sort.Name(), i, "missing value", "value", "nil")
		}
	}
	cp := make([]PropertyValue, len(pairs))
	copy(cp, pairs)
	return &Object{sort: sort, pairs: cp}, nil
}

func (v *Object) Sort() *schema.Sort { return v.sort }
func (v *Object) Kind() schema.Kind  { return schema.KindObject }

// Len returns the number of pairs.
func (v *Object) Len() int { return len(v.pairs) }

// Pair returns pair i.
func (v *Object) Pair(i int) PropertyValue { return v.pairs[i] }

// Pairs returns the pairs. The slice must not be modified.
func (v *Object) Pairs() []PropertyValue { return v.pairs }

func (v *Object) String() string {
	return v.sort.Name() + formatPairs(v.pairs)
}

// Record is a positional value whose fields align 1:1 with the sort's
// property ranges.
type Record struct {
	sort   *schema.Sort
	fields []Value
}

// NewRecord creates a record value. Pairs must match the sort's declared ranges
// in count, order, property name and range-sort name.
func NewRecord(sort *schema.Sort, pairs ...PropertyValue) (*Record, error) {
	if sort == nil || sort.Kind() != schema.KindRecord {
		return nil, wrongKind(sort, schema.KindRecord)
	}
	ranges := sort.Ranges()
	if len(pairs) != len(ranges) {
		return nil, schema.Mismatch(sort.Name(), -1, "field count",
			fmt.Sprintf("%d fields", len(ranges)), fmt.Sprintf("%d fields", len(pairs)))
	}
	fields := make([]Value, len(pairs))
	for i, p := range pairs {
		if err := CheckField(sort, i, p.Property, p.Value); err != nil {
			return nil, err
		}
		fields[i] = p.Value
	}
	return &Record{sort: sort, fields: fields}, nil
}

// NewRecordValues creates a record from field values in declared order.
func NewRecordValues(sort *schema.Sort, fields ...Value) (*Record, error) {
	if sort == nil || sort.Kind() != schema.KindRecord {
		return nil, wrongKind(sort, schema.KindRecord)
	}
	ranges := sort.Ranges()
	pairs := make([]PropertyValue, len(fields))
	for i, f := range fields {
		name := ""
		if i < len(ranges) {
			name = ranges[i].Property
		}
		pairs[i] = PropertyValue{Property: name, Value: f}
	}
	return NewRecord(sort, pairs...)
}

// CheckField validates one record field against the sort's range at pos.
func CheckField(sort *schema.Sort, pos int, property string, v Value) error {
	ranges := sort.Ranges()
	if pos >= len(ranges) {
		return schema.Mismatch(sort.Name(), pos, "field out of range",
			fmt.Sprintf("< %d fields", len(ranges)), fmt.Sprintf("field %d", pos))
	}
	want := ranges[pos]
	if property != want.Property {
		return schema.Mismatch(sort.Name(), pos, "property name", want.Property, property)
	}
	if v == nil || v.Sort() == nil {
		return schema.Mismatch(sort.Name(), pos, "missing value", want.Range, "nil")
	}
	if v.Sort().Name() != want.Range {
		return schema.Mismatch(sort.Name(), pos, "range sort", want.Range, v.Sort().Name())
	}
	return nil
}

func (v *Record) Sort() *schema.Sort { return v.sort }
func (v *Record) Kind() schema.Kind  { return schema.KindRecord }

// Len returns the number of fields.
func (v *Record) Len() int { return len(v.fields) }

// Field returns field i.
func (v *Record) Field(i int) Value { return v.fields[i] }

// Pair returns field i together with its declared property name.
func (v *Record) Pair(i int) PropertyValue {
	return PropertyValue{Property: v.sort.Ranges()[i].Property, Value: v.fields[i]}
}

// Pairs returns all fields with their property names.
func (v *Record) Pairs() []PropertyValue {
	out := make([]PropertyValue, len(v.fields))
	for i := range v.fields {
		out[i] = v.Pair(i)
	}
	return out
}

func (v *Record) String() string {
	return v.sort.Name() + formatPairs(v.Pairs())
}

func formatPairs(pairs []PropertyValue) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Property)
		sb.WriteString(": ")
		if p.Value.Kind() == schema.KindString {
			fmt.Fprintf(&sb, "%q", p.Value.String())
		} else {
			sb.WriteString(p.Value.String())
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func wrongKind(sort *schema.Sort, want schema.Kind) error {
	if sort == nil {
		return schema.Mismatch("", -1, "missing sort", want.String(), "nil")
	}
	return schema.Mismatch(sort.Name(), -1, "wrong sort kind", want.String(), sort.Kind().String())
}

// Equal reports content equality: same sort name, same kind, same contents.
// Object pair order is significant.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.Sort().Name() != b.Sort().Name() {
		return false
	}
	switch av := a.(type) {
	case *String:
		bv, ok := b.(*String)
		return ok && av.s == bv.s
	case *Object:
		bv, ok := b.(*Object)
		if !ok || len(av.pairs) != len(bv.pairs) {
			return false
		}
		for i := range av.pairs {
			if av.pairs[i].Property != bv.pairs[i].Property || !Equal(av.pairs[i].Value, bv.pairs[i].Value) {
				return false
			}
		}
		return true
	case *Record:
		bv, ok := b.(*Record)
		if !ok || len(av.fields) != len(bv.fields) {
			return false
		}
		for i := range av.fields {
			if !Equal(av.fields[i], bv.fields[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
