package conv

import (
	"fmt"
	"math"
)

// Uint64ToInt converts uint64 to int safely.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int (too large)", v)
	}
	return int(v), nil
}

// Uint64ToUint32 converts uint64 to uint32 safely.
func Uint64ToUint32(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (too large)", v)
	}
	return uint32(v), nil
}

// Bounded converts a decoded length or element count to int and checks it
// against the bytes left in the buffer. Every element occupies at least one
// byte, so a count larger than remaining is always corrupt.
func Bounded(v uint64, remaining int) (int, error) {
	n, err := Uint64ToInt(v)
	if err != nil {
		return 0, err
	}
	if n > remaining {
		return 0, fmt.Errorf("length %d exceeds remaining %d bytes", n, remaining)
	}
	return n, nil
}
