package codec

import (
	"fmt"
	"math"

	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// EdgeReader is a lazy view over EdgeRows. Creating one parses only the
// skeleton header; the property table, the sections and both payload rows are
// walked on demand by the cursors it hands out.
//
// Cursors borrow the row buffers. The rows must not be modified while a reader
// or any of its cursors is in use. A reader is not safe for concurrent use.
type EdgeReader struct {
	c        *Codec
	domain   *schema.Sort
	rows     EdgeRows
	load     PayloadLoader
	loadErr  error
	sourceID value.ID
	props    int
	table    int // offset of the property table in the skeleton
	sections int // offset of the sections area in the skeleton
}

// PayloadLoader fetches the Refs and Values rows of an edge container.
type PayloadLoader func() (refs, values []byte, err error)

// NewEdgeReader parses the skeleton header of rows encoded for domain.
func (c *Codec) NewEdgeReader(domain *schema.Sort, rows EdgeRows) (*EdgeReader, error) {
	return c.newEdgeReader(domain, rows, nil)
}

// NewLazyEdgeReader is like NewEdgeReader but fetches the payload rows only
// when a target cursor is first created. Walking properties touches the
// skeleton alone.
func (c *Codec) NewLazyEdgeReader(domain *schema.Sort, skeleton []byte, load PayloadLoader) (*EdgeReader, error) {
	return c.newEdgeReader(domain, EdgeRows{Skeleton: skeleton}, load)
}

func (c *Codec) newEdgeReader(domain *schema.Sort, rows EdgeRows, load PayloadLoader) (*EdgeReader, error) {
	r := newReader(rows.Skeleton, 0)
	src, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	props, err := r.count()
	if err != nil {
		return nil, err
	}
	tableLen, err := r.count()
	if err != nil {
		return nil, err
	}
	return &EdgeReader{
		c:        c,
		domain:   domain,
		rows:     rows,
		load:     load,
		sourceID: value.ID(src),
		props:    props,
		table:    r.off,
		sections: r.off + tableLen,
	}, nil
}

// SourceID returns the dictionary id of the source value.
func (e *EdgeReader) SourceID() value.ID { return e.sourceID }

// Domain returns the sort of the source value.
func (e *EdgeReader) Domain() *schema.Sort { return e.domain }

// NumProperties returns the number of distinct outgoing properties.
func (e *EdgeReader) NumProperties() int { return e.props }

// Source resolves the source value through its dictionary.
func (e *EdgeReader) Source() (value.Value, error) {
	return e.c.r.Value(e.domain, e.sourceID)
}

// payload makes sure Refs and Values are present.
func (e *EdgeReader) payload() error {
	if e.load == nil {
		return e.loadErr
	}
	refs, values, err := e.load()
	e.load = nil
	if err != nil {
		e.loadErr = err
		return err
	}
	e.rows.Refs, e.rows.Values = refs, values
	return nil
}

// Properties returns a cursor over the property table in encoding order.
func (e *EdgeReader) Properties() *PropertyCursor {
	return &PropertyCursor{
		e:         e,
		rd:        newReader(e.rows.Skeleton[:e.sections], e.table),
		remaining: e.props,
	}
}

// Find walks only the property table and returns the targets of the first
// entry with the given property id.
func (e *EdgeReader) Find(propertyID value.ID) (*TargetCursor, bool, error) {
	pc := e.Properties()
	for pc.Next() {
		if pc.PropertyID() == propertyID {
			return pc.Targets(), true, nil
		}
	}
	return nil, false, pc.Err()
}

// PropertyIDs returns the property ids in encoding order.
func (e *EdgeReader) PropertyIDs() ([]value.ID, error) {
	ids := make([]value.ID, 0, e.props)
	pc := e.Properties()
	for pc.Next() {
		ids = append(ids, pc.PropertyID())
	}
	return ids, pc.Err()
}

type propEntry struct {
	id      value.ID
	targets int
	section int
	refs    int
	values  int
}

// PropertyCursor iterates the property table.
//
//	pc := reader.Properties()
//	for pc.Next() {
//	    tc := pc.Targets()
//	    ...
//	}
//	if err := pc.Err(); err != nil { ... }
type PropertyCursor struct {
	e         *EdgeReader
	rd        reader
	remaining int
	cur       propEntry
	sig       *schema.PropertySignature
	err       error
}

// Next advances to the next property.
func (pc *PropertyCursor) Next() bool {
	if pc.err != nil || pc.remaining == 0 {
		return false
	}
	var ent propEntry
	id, err := pc.rd.uvarint()
	if err != nil {
		pc.err = err
		return false
	}
	ent.id = value.ID(id)
	if ent.targets, err = pc.rd.offset(len(pc.e.rows.Skeleton)); err != nil {
		pc.err = err
		return false
	}
	if ent.section, err = pc.rd.offset(len(pc.e.rows.Skeleton) - pc.e.sections); err != nil {
		pc.err = err
		return false
	}
	// Payload offsets are checked against the rows once they are loaded.
	refsLimit, valuesLimit := len(pc.e.rows.Refs), len(pc.e.rows.Values)
	if pc.e.load != nil {
		refsLimit, valuesLimit = math.MaxInt, math.MaxInt
	}
	if ent.refs, err = pc.rd.offset(refsLimit); err != nil {
		pc.err = err
		return false
	}
	if ent.values, err = pc.rd.offset(valuesLimit); err != nil {
		pc.err = err
		return false
	}
	pc.cur = ent
	pc.sig = nil
	pc.remaining--
	return true
}

// PropertyID returns the current property id.
func (pc *PropertyCursor) PropertyID() value.ID { return pc.cur.id }

// NumTargets returns the number of targets of the current property.
func (pc *PropertyCursor) NumTargets() int { return pc.cur.targets }

// Signature resolves the current property signature.
func (pc *PropertyCursor) Signature() (schema.PropertySignature, error) {
	if pc.sig != nil {
		return *pc.sig, nil
	}
	sig, err := pc.e.c.property(pc.cur.id)
	if err != nil {
		return schema.PropertySignature{}, err
	}
	pc.sig = &sig
	return sig, nil
}

// Targets returns a cursor over the current property's targets. Each call
// returns a fresh cursor starting at the first target.
func (pc *PropertyCursor) Targets() *TargetCursor {
	tc := &TargetCursor{
		e:         pc.e,
		pid:       pc.cur.id,
		remaining: pc.cur.targets,
	}
	if err := pc.e.payload(); err != nil {
		tc.err = err
		return tc
	}
	if pc.cur.refs > len(pc.e.rows.Refs) || pc.cur.values > len(pc.e.rows.Values) {
		tc.err = fmt.Errorf("%w: payload offset beyond row", ErrCorrupt)
		return tc
	}
	tc.skel = newReader(pc.e.rows.Skeleton, pc.e.sections+pc.cur.section)
	tc.refs = newReader(pc.e.rows.Refs, pc.cur.refs)
	tc.vals = newReader(pc.e.rows.Values, pc.cur.values)

	sig, err := pc.Signature()
	if err != nil {
		tc.err = err
		return tc
	}
	if sig.Domain != pc.e.domain.ID() {
		tc.err = fmt.Errorf("%w: property %s does not belong to %s", ErrCorrupt, sig, pc.e.domain.Name())
		return tc
	}
	tc.sig = sig
	tc.sort, tc.err = pc.e.c.r.Sorts().ByID(sig.Range)
	return tc
}

// Err returns the first decode error.
func (pc *PropertyCursor) Err() error { return pc.err }

// slot is one decoded target or qualifier position.
type slot struct {
	sort   *schema.Sort
	ref    bool
	id     value.ID
	inline []byte
}

func (s slot) resolve(c *Codec) (value.Value, error) {
	if s.ref {
		return c.r.Value(s.sort, s.id)
	}
	return c.DecodeInline(s.inline, s.sort)
}

// TargetCursor iterates the targets of one property. Targets are decoded only
// when Target is called; qualifiers the caller does not visit are skipped
// without resolving their values.
type TargetCursor struct {
	e         *EdgeReader
	pid       value.ID
	sig       schema.PropertySignature
	sort      *schema.Sort
	remaining int

	skel, refs, vals reader

	cur   slot
	quals *QualifierCursor
	err   error
}

// Next advances to the next target.
func (tc *TargetCursor) Next() bool {
	if tc.err != nil || tc.remaining == 0 {
		return false
	}
	if tc.quals != nil {
		for tc.quals.Next() {
		}
		if err := tc.quals.Err(); err != nil {
			tc.err = err
			return false
		}
	}

	s, err := tc.readSlot(tc.sort)
	if err != nil {
		tc.err = err
		return false
	}
	nq, err := tc.skel.count()
	if err != nil {
		tc.err = err
		return false
	}
	tc.cur = s
	tc.quals = &QualifierCursor{t: tc, remaining: nq}
	tc.remaining--
	return true
}

func (tc *TargetCursor) readSlot(s *schema.Sort) (slot, error) {
	out := slot{sort: s, ref: s.UseDictionary()}
	if out.ref {
		id, err := tc.refs.uvarint()
		if err != nil {
			return slot{}, err
		}
		out.id = value.ID(id)
		return out, nil
	}
	b, err := tc.vals.prefixed()
	if err != nil {
		return slot{}, err
	}
	out.inline = b
	return out, nil
}

// PropertyID returns the id of the property being iterated.
func (tc *TargetCursor) PropertyID() value.ID { return tc.pid }

// Signature returns the signature of the property being iterated.
func (tc *TargetCursor) Signature() schema.PropertySignature { return tc.sig }

// Sort returns the range sort of the property.
func (tc *TargetCursor) Sort() *schema.Sort { return tc.sort }

// TargetID returns the dictionary id of the current target. ok=false when the
// target is stored inline.
func (tc *TargetCursor) TargetID() (value.ID, bool) {
	return tc.cur.id, tc.cur.ref
}

// Target decodes the current target.
func (tc *TargetCursor) Target() (value.Value, error) {
	return tc.cur.resolve(tc.e.c)
}

// NumQualifiers returns the number of qualifiers of the current target.
func (tc *TargetCursor) NumQualifiers() int {
	if tc.quals == nil {
		return 0
	}
	return tc.quals.total()
}

// Qualifiers returns the qualifier cursor of the current target. It shares
// position with the target cursor: advancing the target skips whatever is left.
func (tc *TargetCursor) Qualifiers() *QualifierCursor {
	if tc.quals == nil {
		return &QualifierCursor{t: tc}
	}
	return tc.quals
}

// Err returns the first decode error.
func (tc *TargetCursor) Err() error { return tc.err }

// QualifierCursor iterates the qualifiers of one target.
type QualifierCursor struct {
	t         *TargetCursor
	remaining int
	seen      int
	pid       value.ID
	sig       schema.PropertySignature
	cur       slot
	err       error
}

func (qc *QualifierCursor) total() int { return qc.seen + qc.remaining }

// Next advances to the next qualifier.
func (qc *QualifierCursor) Next() bool {
	if qc.err != nil || qc.remaining == 0 {
		return false
	}
	t := qc.t
	id, err := t.skel.uvarint()
	if err != nil {
		qc.err = err
		return false
	}
	sig, err := t.e.c.property(value.ID(id))
	if err != nil {
		qc.err = err
		return false
	}
	if sig.Domain != t.sort.ID() {
		qc.err = fmt.Errorf("%w: qualifier %s does not belong to %s", ErrCorrupt, sig, t.sort.Name())
		return false
	}
	s, err := t.e.c.r.Sorts().ByID(sig.Range)
	if err != nil {
		qc.err = err
		return false
	}
	sl, err := t.readSlot(s)
	if err != nil {
		qc.err = err
		return false
	}
	qc.pid = value.ID(id)
	qc.sig = sig
	qc.cur = sl
	qc.remaining--
	qc.seen++
	return true
}

// PropertyID returns the current qualifier property id.
func (qc *QualifierCursor) PropertyID() value.ID { return qc.pid }

// Property returns the current qualifier property name.
func (qc *QualifierCursor) Property() string { return qc.sig.Name }

// Signature returns the current qualifier signature.
func (qc *QualifierCursor) Signature() schema.PropertySignature { return qc.sig }

// ValueID returns the dictionary id of the current qualifier value. ok=false
// when it is stored inline.
func (qc *QualifierCursor) ValueID() (value.ID, bool) {
	return qc.cur.id, qc.cur.ref
}

// Value decodes the current qualifier value.
func (qc *QualifierCursor) Value() (value.Value, error) {
	return qc.cur.resolve(qc.t.e.c)
}

// Err returns the first decode error.
func (qc *QualifierCursor) Err() error { return qc.err }

// Materialize decodes everything into an EdgeContainer.
func (e *EdgeReader) Materialize() (*value.EdgeContainer, error) {
	src, err := e.Source()
	if err != nil {
		return nil, err
	}
	ec := &value.EdgeContainer{Source: src, Properties: make([]value.PropertyTargets, 0, e.props)}
	pc := e.Properties()
	for pc.Next() {
		tc := pc.Targets()
		pt := value.PropertyTargets{Property: tc.Signature().Name, Targets: make([]value.TargetQualifiers, 0, pc.NumTargets())}
		for tc.Next() {
			tgt, err := tc.Target()
			if err != nil {
				return nil, err
			}
			tq := value.TargetQualifiers{Target: tgt}
			qc := tc.Qualifiers()
			for qc.Next() {
				qv, err := qc.Value()
				if err != nil {
					return nil, err
				}
				tq.Qualifiers = append(tq.Qualifiers, value.Pair(qc.Property(), qv))
			}
			if err := qc.Err(); err != nil {
				return nil, err
			}
			pt.Targets = append(pt.Targets, tq)
		}
		if err := tc.Err(); err != nil {
			return nil, err
		}
		ec.Properties = append(ec.Properties, pt)
	}
	if err := pc.Err(); err != nil {
		return nil, err
	}
	return ec, nil
}
