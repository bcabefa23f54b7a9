package codec

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/hupe1980/factdb/internal/conv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// Compact strings: one uvarint header holding len<<1 | utf8flag, then the raw
// bytes. Pure ASCII (the common case for ids and codes) needs no validation on
// decode; anything else is checked to be valid UTF-8.
const utf8Flag = 1

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// AppendString appends the compact encoding of s.
func AppendString(dst []byte, s string) []byte {
	h := uint64(len(s)) << 1
	if !isASCII(s) {
		h |= utf8Flag
	}
	dst = binary.AppendUvarint(dst, h)
	return append(dst, s...)
}

func (r *reader) compactString() (string, error) {
	h, err := r.uvarint()
	if err != nil {
		return "", err
	}
	n, err := conv.Bounded(h>>1, r.remaining())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	b, err := r.next(n)
	if err != nil {
		return "", err
	}
	if h&utf8Flag != 0 {
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: invalid utf-8 string at offset %d", ErrCorrupt, r.off-len(b))
		}
	} else if !isASCII(string(b)) {
		return "", fmt.Errorf("%w: non-ascii bytes in ascii string at offset %d", ErrCorrupt, r.off-len(b))
	}
	return string(b), nil
}

// ReadString decodes a compact string that spans all of b.
func ReadString(b []byte) (string, error) {
	r := newReader(b, 0)
	s, err := r.compactString()
	if err != nil {
		return "", err
	}
	if !r.done() {
		return "", fmt.Errorf("%w: %d trailing bytes after string", ErrCorrupt, r.remaining())
	}
	return s, nil
}

// Packed string records are a sequence of length-prefixed field strings. The
// field count comes from the sort, so no delimiter or escape is needed and any
// byte sequence round-trips.
func appendPacked(dst []byte, sort *schema.Sort, rec *value.Record) ([]byte, error) {
	for i := 0; i < rec.Len(); i++ {
		f, ok := rec.Field(i).(*value.String)
		if !ok {
			return nil, schema.Mismatch(sort.Name(), i, "packed record field is not a string",
				schema.KindString.String(), rec.Field(i).Kind().String())
		}
		dst = appendPrefixed(dst, []byte(f.String()))
	}
	return dst, nil
}

func (r *reader) packed(sort *schema.Sort) (*value.Record, error) {
	pairs := make([]value.PropertyValue, sort.NumFields())
	for i, pr := range sort.Ranges() {
		b, err := r.prefixed()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("%w: invalid utf-8 in packed field %d of %s", ErrCorrupt, i, sort.Name())
		}
		s, err := value.NewString(sort.RangeSort(i), string(b))
		if err != nil {
			return nil, err
		}
		pairs[i] = value.Pair(pr.Property, s)
	}
	return value.NewRecord(sort, pairs...)
}
