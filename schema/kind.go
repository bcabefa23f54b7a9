package schema

import "fmt"

// Kind is the storage shape of a sort.
type Kind uint8

const (
	// KindString is a plain string value.
	KindString Kind = iota + 1
	// KindObject is an ordered list of dynamic (property, value) pairs.
	KindObject
	// KindRecord is a fixed, positional (property, range) schema.
	KindRecord
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "STRING"
	case KindObject:
		return "OBJECT"
	case KindRecord:
		return "RECORD"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindObject, KindRecord:
		return true
	default:
		return false
	}
}

// ParseKind parses the String form of a kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "STRING":
		return KindString, nil
	case "OBJECT":
		return KindObject, nil
	case "RECORD":
		return KindRecord, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}
