// Package edge stores edge containers, the adjacency records of dictionary
// values, split into three rows per source.
//
// The skeleton row ("properties") lists the property ids and target counts of
// a source and is enough to answer "does X have P". The "refs" row holds the
// dictionary ids of referenced targets and qualifier values, and the "values"
// row the encodings of inline ones. Every row is framed with a checksum and,
// above a size threshold, compressed (see internal/rowframe).
//
// An Index also keeps a roaring posting list per property id, so the sources
// carrying a property can be enumerated without scanning rows:
//
//	x, _ := edge.NewIndex(person, store, set.Codec(), edge.Options{})
//	_, _ = x.Update(ec)
//	view, ok, _ := x.GetBySource(ec.Source)
//
// Preload pulls whole parts into memory for bulk traversal.
package edge
