package edge

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/factdb/internal/rowframe"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/value"
)

// PreloadOptions selects the payload rows held in memory. Skeleton rows are
// always loaded.
type PreloadOptions struct {
	Refs   bool
	Values bool
}

// rowCache holds decoded rows of every source. Absent payload maps are
// loaded from the store on demand.
type rowCache struct {
	opts      PreloadOptions
	skeletons map[value.ID][]byte
	refs      map[value.ID][]byte
	values    map[value.ID][]byte
}

func (rc *rowCache) put(id value.ID, skel, refs, vals []byte) {
	rc.skeletons[id] = skel
	if rc.opts.Refs {
		rc.refs[id] = refs
	}
	if rc.opts.Values {
		rc.values[id] = vals
	}
}

// Stats describes the state of an index.
type Stats struct {
	Sources      uint64
	Preloaded    bool
	CachedRows   int
	PostingLists int
}

// Preload reads every row of the selected parts into memory, scanning the
// parts concurrently. Reads are then served from memory until Unload; writes
// go to both. Update blocks while a preload runs.
func (x *Index) Preload(ctx context.Context, opts PreloadOptions) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	rc := &rowCache{
		opts:      opts,
		skeletons: make(map[value.ID][]byte),
		refs:      make(map[value.ID][]byte),
		values:    make(map[value.ID][]byte),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	scan := func(m kv.Map, part string, dst map[value.ID][]byte) {
		g.Go(func() error {
			return m.ForEach(func(k, v []byte) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if len(k) != 8 {
					return fmt.Errorf("edge %s: %s key %x", x.sort.Name(), part, k)
				}
				row, err := rowframe.Decode(v)
				if err != nil {
					return fmt.Errorf("edge %s: %s %x: %w", x.sort.Name(), part, k, err)
				}
				dst[value.ID(binary.BigEndian.Uint64(k))] = row
				return nil
			})
		})
	}

	scan(x.skeletons, PartProperties, rc.skeletons)
	if opts.Refs {
		scan(x.refs, PartRefs, rc.refs)
	}
	if opts.Values {
		scan(x.values, PartValues, rc.values)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	x.cache = rc
	return nil
}

// Unload drops preloaded rows.
func (x *Index) Unload() {
	x.mu.Lock()
	x.cache = nil
	x.mu.Unlock()
}

// Preloaded reports whether rows are served from memory.
func (x *Index) Preloaded() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.cache != nil
}

// SourcesWithProperty returns the ids of the sources whose rows carry the
// property. The bitmap is a copy.
func (x *Index) SourcesWithProperty(propertyID value.ID) *roaring64.Bitmap {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.post.get(propertyID)
}

// Sources returns the ids of every source with rows. The bitmap is a copy.
func (x *Index) Sources() *roaring64.Bitmap {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.post.sources.Clone()
}

// Stats returns a snapshot of the index state.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s := Stats{
		Sources:      x.post.sources.GetCardinality(),
		Preloaded:    x.cache != nil,
		PostingLists: len(x.post.lists),
	}
	if x.cache != nil {
		s.CachedRows = len(x.cache.skeletons) + len(x.cache.refs) + len(x.cache.values)
	}
	return s
}
