package factdb

import (
	"errors"

	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/edge"
	"github.com/hupe1980/factdb/internal/rowframe"
	"github.com/hupe1980/factdb/schema"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("factdb: database closed")

	// ErrUnknownSort is returned when a sort name or id was never registered.
	ErrUnknownSort = schema.ErrUnknownSort

	// ErrUnknownID is returned when a value or property id was never assigned.
	ErrUnknownID = schema.ErrUnknownID

	// ErrSchemaMismatch matches every error about a value whose shape
	// disagrees with its sort. Use errors.As with *SchemaMismatchError for
	// the details.
	ErrSchemaMismatch = schema.ErrSchemaMismatch

	// ErrUnsupportedKind is returned when an operation has no strategy for a
	// sort, such as an edge index over an inline sort.
	ErrUnsupportedKind = schema.ErrUnsupportedKind

	// ErrSortRedefined is returned when a sort name is registered again with
	// a different descriptor.
	ErrSortRedefined = schema.ErrSortRedefined

	// ErrCorrupt is returned when stored bytes cannot be decoded.
	ErrCorrupt = codec.ErrCorrupt

	// ErrCorruptFrame is returned when a stored row fails its checksum.
	ErrCorruptFrame = rowframe.ErrCorrupt

	// ErrStaleView is returned by an edge view whose source was updated
	// before the view read its payload.
	ErrStaleView = edge.ErrStaleView
)

// SchemaMismatchError describes a schema mismatch.
type SchemaMismatchError = schema.SchemaMismatchError
