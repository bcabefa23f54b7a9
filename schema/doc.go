// Package schema provides the sort registry.
//
// A sort is a named type descriptor of one of three kinds:
//
//	STRING  a plain string
//	OBJECT  an ordered list of dynamic (property, value) pairs
//	RECORD  a fixed positional (property, range sort) schema
//
// The registry decides, per sort, whether values are interned in a dictionary or
// encoded inline. Encoders and decoders re-query the registry at every position,
// so a sort must never change after first use: RegisterOrGet rejects a second,
// different descriptor for a known name with ErrSortRedefined.
//
// Descriptors are persisted with msgpack in their own namespace and reloaded in
// id order by NewRegistry.
package schema
