package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSort is returned when a sort name or id was never registered.
	ErrUnknownSort = errors.New("unknown sort")

	// ErrUnknownID is returned when a dictionary or property id was never assigned.
	ErrUnknownID = errors.New("unknown id")

	// ErrUnsupportedKind is returned when a kind has no strategy for an operation.
	ErrUnsupportedKind = errors.New("unsupported sort kind")

	// ErrSortRedefined is returned when a registered sort is registered again
	// with a different descriptor.
	ErrSortRedefined = errors.New("sort redefined")

	// ErrSchemaMismatch is the sentinel matched by every *SchemaMismatchError.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// SchemaMismatchError reports a value or descriptor whose shape disagrees with
// its sort. Position is the offending field index, or -1 when the mismatch is
// not positional.
type SchemaMismatchError struct {
	Sort     string
	Position int
	Expected string
	Actual   string
	Reason   string
}

func (e *SchemaMismatchError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("schema mismatch in sort %q: %s (expected %s, got %s)",
			e.Sort, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("schema mismatch in sort %q at position %d: %s (expected %s, got %s)",
		e.Sort, e.Position, e.Reason, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrSchemaMismatch) hold.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Mismatch is a shorthand constructor.
func Mismatch(sort string, pos int, reason, expected, actual string) *SchemaMismatchError {
	return &SchemaMismatchError{
		Sort:     sort,
		Position: pos,
		Expected: expected,
		Actual:   actual,
		Reason:   reason,
	}
}
