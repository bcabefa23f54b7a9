// Package dict implements the content-addressed dictionaries that give values
// and property signatures their dense integer ids.
//
// Every dictionary is a Table: two namespaces kept in lock-step, one mapping
// big-endian ids to content keys and one mapping content keys back to ids,
// plus a counter in the "meta" namespace. Ids start at zero, grow by one and
// are never reused.
//
// A value's content key is its inline encoding (see package codec), which
// makes interning idempotent by construction. The per-kind dictionaries
// (StringValueDictionary, ObjectValueDictionary, RecordValueDictionary and
// StringRecordValueDictionary) differ only in that encoding and in a few typed
// helpers.
//
// Set ties the dictionaries together and implements codec.Resolver:
//
//	set, _ := dict.NewSet(reg, store, dict.DefaultOptions())
//	id, _, _ := set.ValueID(v, true)
package dict
