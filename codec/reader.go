package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/factdb/internal/conv"
)

// reader walks a borrowed byte slice. It never copies.
type reader struct {
	b   []byte
	off int
}

func newReader(b []byte, off int) reader {
	return reader{b: b, off: off}
}

func (r *reader) remaining() int { return len(r.b) - r.off }

func (r *reader) done() bool { return r.off >= len(r.b) }

func (r *reader) uvarint() (uint64, error) {
	if r.off >= len(r.b) {
		return 0, fmt.Errorf("%w: short buffer at offset %d", ErrCorrupt, r.off)
	}
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: invalid uvarint at offset %d", ErrCorrupt, r.off)
	}
	r.off += n
	return v, nil
}

// count reads a uvarint that counts elements of at least one byte each.
func (r *reader) count() (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	n, err := conv.Bounded(v, r.remaining())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return n, nil
}

// offset reads a uvarint that addresses a position in a buffer of size limit.
func (r *reader) offset(limit int) (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	n, err := conv.Bounded(v, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return n, nil
}

func (r *reader) byte() (byte, error) {
	if r.off >= len(r.b) {
		return 0, fmt.Errorf("%w: short buffer at offset %d", ErrCorrupt, r.off)
	}
	c := r.b[r.off]
	r.off++
	return c, nil
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorrupt, n, r.off, r.remaining())
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

// prefixed reads a uvarint length followed by that many bytes.
func (r *reader) prefixed() ([]byte, error) {
	v, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	n, err := conv.Bounded(v, r.remaining())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return r.next(n)
}

func appendPrefixed(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}
