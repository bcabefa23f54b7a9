// Package factdb is an embedded store for encyclopedic facts: entities linked
// by named properties to other entities or literal values, each link carrying
// optional qualifiers.
//
// Values belong to sorts. A sort is a string, a record (fixed, positional
// fields) or an object (free property/value pairs), and is either interned in
// a dictionary, which gives every distinct value a dense id, or encoded inline
// wherever it appears. Edges are stored per source value as three rows: a
// small skeleton of property ids and counts, the ids of referenced targets,
// and the encodings of inline targets. Reads decode lazily from those rows.
//
// # Quick Start
//
//	db, _ := factdb.Open("./data")
//	defer db.Close()
//
//	entity, _ := db.RegisterSort(schema.StringSort("entity"))
//	text, _ := db.RegisterSort(schema.InlineStringSort("text"))
//
//	q1 := value.MustString(entity, "Q1")
//	ec := value.NewEdgeContainer(q1).
//	    Add("bornIn", value.MustString(entity, "Q2"),
//	        value.Pair("since", value.MustString(text, "1990")))
//	_ = db.UpdateEdges(ec)
//	_ = db.Commit()
//
//	view, ok, _ := db.FetchEdgeContainer(q1)
//
// # Durability
//
// Writes are buffered and visible to all readers at once, but reach the
// backend only on Commit. A crash loses everything since the last Commit and
// nothing before it. Close commits.
//
// # Backends
//
// bbolt is the default. Badger and an in-memory backend are selected with
// WithBackend; any kv.Store can be supplied with WithStore.
package factdb
