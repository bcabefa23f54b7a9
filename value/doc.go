// Package value provides the data model stored by factdb: string, object and
// record values, and the EdgeContainer adjacency model.
//
// Values carry their *schema.Sort and compare by content (Equal), never by
// identity. Dictionaries key their persistent maps by the deterministic
// encoding of a value, so two content-equal values always share one id.
//
// Records are validated at construction: NewRecord rejects a field list that
// does not align with the sort's declared ranges in count, order, property
// name and range-sort name.
package value
