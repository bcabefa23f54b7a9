package edge

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/internal/hash"
	"github.com/hupe1980/factdb/internal/rowframe"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// Row namespaces of one domain sort.
const (
	PartProperties = "properties"
	PartRefs       = "refs"
	PartValues     = "values"
	PartPostings   = "postings"
)

// Namespace returns the namespace of one part of sort's edge index.
func Namespace(sort, part string) string {
	return "edges/" + sort + "/" + part
}

// Options configures an Index.
type Options struct {
	// Framer frames every stored row. Nil frames without compression.
	Framer *rowframe.Framer
}

// Index stores the edge containers of one dictionary-backed domain sort.
//
// Each source has three rows keyed by its big-endian dictionary id: the
// skeleton, the reference payload and the inline payload. Payload rows start
// with the CRC32C of the skeleton they were written with, so a view that
// loads its payload late can tell whether the row was replaced meanwhile.
type Index struct {
	sort   *schema.Sort
	c      *codec.Codec
	framer *rowframe.Framer

	skeletons kv.Map
	refs      kv.Map
	values    kv.Map

	mu    sync.RWMutex
	cache *rowCache
	post  *postings
}

// NewIndex opens the index of sort. Inline sorts have no ids to key rows by
// and are rejected with ErrUnsupportedKind.
func NewIndex(sort *schema.Sort, store kv.Store, c *codec.Codec, opts Options) (*Index, error) {
	if !sort.UseDictionary() {
		return nil, fmt.Errorf("%w: edge index over inline sort %q", schema.ErrUnsupportedKind, sort.Name())
	}
	framer := opts.Framer
	if framer == nil {
		framer = rowframe.New(rowframe.DefaultOptions())
	}

	x := &Index{sort: sort, c: c, framer: framer}
	var err error
	if x.skeletons, err = store.Map(Namespace(sort.Name(), PartProperties)); err != nil {
		return nil, err
	}
	if x.refs, err = store.Map(Namespace(sort.Name(), PartRefs)); err != nil {
		return nil, err
	}
	if x.values, err = store.Map(Namespace(sort.Name(), PartValues)); err != nil {
		return nil, err
	}
	pm, err := store.Map(Namespace(sort.Name(), PartPostings))
	if err != nil {
		return nil, err
	}
	if x.post, err = loadPostings(pm); err != nil {
		return nil, fmt.Errorf("edge %s: %w", sort.Name(), err)
	}
	return x, nil
}

// Sort returns the domain sort.
func (x *Index) Sort() *schema.Sort { return x.sort }

func rowKey(id value.ID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

// stamp prefixes a payload row with the checksum of its skeleton.
func stamp(skeleton, payload []byte) []byte {
	out := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(out, hash.CRC32C(skeleton))
	return append(out, payload...)
}

// unstamp checks a payload row against its skeleton.
func unstamp(skeleton, row []byte) ([]byte, error) {
	if len(row) < 4 {
		return nil, fmt.Errorf("%w: payload row of %d bytes", codec.ErrCorrupt, len(row))
	}
	if binary.LittleEndian.Uint32(row) != hash.CRC32C(skeleton) {
		return nil, ErrStaleView
	}
	return row[4:], nil
}

// Update replaces every row of the container's source. Ids for the source,
// targets, qualifier values and properties are created as needed.
func (x *Index) Update(ec *value.EdgeContainer) (value.ID, error) {
	if ec == nil {
		return 0, schema.Mismatch(x.sort.Name(), -1, "nil edge container", "edge container", "nil")
	}
	s, err := x.c.SortOf(ec.Source)
	if err != nil {
		return 0, err
	}
	if s.ID() != x.sort.ID() {
		return 0, schema.Mismatch(x.sort.Name(), -1, "edge source of another sort", x.sort.Name(), s.Name())
	}
	// Sort errors surface here, before the source id is created.
	if err := x.c.CheckEdges(ec); err != nil {
		return 0, err
	}

	id, _, err := x.c.Resolver().ValueID(ec.Source, true)
	if err != nil {
		return 0, err
	}
	rows, err := x.c.EncodeEdges(id, ec, true)
	if err != nil {
		return 0, err
	}
	rd, err := x.c.NewEdgeReader(x.sort, rows)
	if err != nil {
		return 0, err
	}
	pids, err := rd.PropertyIDs()
	if err != nil {
		return 0, err
	}

	refs := stamp(rows.Skeleton, rows.Refs)
	vals := stamp(rows.Skeleton, rows.Values)

	frames := make([][]byte, 3)
	for i, row := range [][]byte{rows.Skeleton, refs, vals} {
		if frames[i], err = x.framer.Encode(row); err != nil {
			return 0, fmt.Errorf("edge %s: frame row: %w", x.sort.Name(), err)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	old, hadOld, err := x.skeletonLocked(id)
	if err != nil {
		return 0, err
	}
	var oldPids []value.ID
	if hadOld {
		ord, err := x.c.NewEdgeReader(x.sort, codec.EdgeRows{Skeleton: old})
		if err == nil {
			oldPids, err = ord.PropertyIDs()
		}
		if err != nil {
			// Unreadable predecessor: drop the source from every posting list.
			oldPids = nil
			x.post.removeEverywhere(id)
		}
	}

	key := rowKey(id)
	if err := x.skeletons.Put(key, frames[0]); err != nil {
		return 0, fmt.Errorf("edge %s: put skeleton #%d: %w", x.sort.Name(), id, err)
	}
	if err := x.refs.Put(key, frames[1]); err != nil {
		return 0, fmt.Errorf("edge %s: put refs #%d: %w", x.sort.Name(), id, err)
	}
	if err := x.values.Put(key, frames[2]); err != nil {
		return 0, fmt.Errorf("edge %s: put values #%d: %w", x.sort.Name(), id, err)
	}

	if x.cache != nil {
		x.cache.put(id, rows.Skeleton, refs, vals)
	}
	x.post.replace(id, oldPids, pids)
	return id, nil
}

// skeletonLocked returns the decoded skeleton row of id. Caller holds x.mu.
func (x *Index) skeletonLocked(id value.ID) ([]byte, bool, error) {
	if x.cache != nil {
		b, ok := x.cache.skeletons[id]
		return b, ok, nil
	}
	return x.loadRow(x.skeletons, PartProperties, id)
}

func (x *Index) loadRow(m kv.Map, part string, id value.ID) ([]byte, bool, error) {
	frame, ok, err := m.Get(rowKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("edge %s: get %s #%d: %w", x.sort.Name(), part, id, err)
	}
	if !ok {
		return nil, false, nil
	}
	row, err := rowframe.Decode(frame)
	if err != nil {
		return nil, false, fmt.Errorf("edge %s: %s #%d: %w", x.sort.Name(), part, id, err)
	}
	return row, true, nil
}

// payload returns the stamped refs and values rows of id.
func (x *Index) payload(id value.ID) (refs, vals []byte, err error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.cache != nil {
		refs, okR := x.cache.refs[id]
		vals, okV := x.cache.values[id]
		if okR && okV {
			return refs, vals, nil
		}
		if !x.cache.opts.Refs && okV {
			refs, _, err = x.loadRow(x.refs, PartRefs, id)
			return refs, vals, err
		}
		if !x.cache.opts.Values && okR {
			vals, _, err = x.loadRow(x.values, PartValues, id)
			return refs, vals, err
		}
	}

	refs, okR, err := x.loadRow(x.refs, PartRefs, id)
	if err != nil {
		return nil, nil, err
	}
	vals, okV, err := x.loadRow(x.values, PartValues, id)
	if err != nil {
		return nil, nil, err
	}
	if !okR || !okV {
		return nil, nil, fmt.Errorf("edge %s: %w: payload of #%d missing", x.sort.Name(), codec.ErrCorrupt, id)
	}
	return refs, vals, nil
}

// Get returns a lazy view of the container of the source with the given id.
// ok=false if the source has no rows.
func (x *Index) Get(id value.ID) (*View, bool, error) {
	x.mu.RLock()
	skel, ok, err := x.skeletonLocked(id)
	x.mu.RUnlock()
	if err != nil || !ok {
		return nil, false, err
	}

	rd, err := x.c.NewLazyEdgeReader(x.sort, skel, func() ([]byte, []byte, error) {
		refs, vals, err := x.payload(id)
		if err != nil {
			return nil, nil, err
		}
		if refs, err = unstamp(skel, refs); err != nil {
			return nil, nil, err
		}
		if vals, err = unstamp(skel, vals); err != nil {
			return nil, nil, err
		}
		return refs, vals, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("edge %s: read #%d: %w", x.sort.Name(), id, err)
	}
	if rd.SourceID() != id {
		return nil, false, fmt.Errorf("edge %s: %w: row #%d holds source #%d", x.sort.Name(), codec.ErrCorrupt, id, rd.SourceID())
	}
	return &View{r: rd}, true, nil
}

// GetBySource looks the source up without allocating an id.
func (x *Index) GetBySource(source value.Value) (*View, bool, error) {
	s, err := x.c.SortOf(source)
	if err != nil {
		return nil, false, err
	}
	if s.ID() != x.sort.ID() {
		return nil, false, schema.Mismatch(x.sort.Name(), -1, "edge source of another sort", x.sort.Name(), s.Name())
	}
	id, ok, err := x.c.Resolver().ValueID(source, false)
	if err != nil || !ok {
		return nil, false, err
	}
	return x.Get(id)
}

// HasProperty reports whether the source's row carries the property. Only
// the skeleton row is read.
func (x *Index) HasProperty(id, propertyID value.ID) (bool, error) {
	x.mu.RLock()
	skel, ok, err := x.skeletonLocked(id)
	x.mu.RUnlock()
	if err != nil || !ok {
		return false, err
	}
	rd, err := x.c.NewEdgeReader(x.sort, codec.EdgeRows{Skeleton: skel})
	if err != nil {
		return false, err
	}
	pids, err := rd.PropertyIDs()
	if err != nil {
		return false, err
	}
	for _, p := range pids {
		if p == propertyID {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of sources with rows.
func (x *Index) Len() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.post.sources.GetCardinality()
}

// Flush writes changed posting lists to the store's write buffer.
func (x *Index) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.post.flush(); err != nil {
		return fmt.Errorf("edge %s: flush postings: %w", x.sort.Name(), err)
	}
	return nil
}
