package edge

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/value"
)

// sourcesKey holds the bitmap of every source with rows. Property posting
// lists use 8-byte keys, so the two never collide.
var sourcesKey = []byte("sources")

// postings maps property ids to the sources whose rows carry them.
type postings struct {
	m       kv.Map
	lists   map[value.ID]*roaring64.Bitmap
	sources *roaring64.Bitmap
	dirty   map[value.ID]struct{}
	srcDirt bool
}

func postingKey(pid value.ID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(pid))
}

func loadPostings(m kv.Map) (*postings, error) {
	p := &postings{
		m:       m,
		lists:   make(map[value.ID]*roaring64.Bitmap),
		sources: roaring64.New(),
		dirty:   make(map[value.ID]struct{}),
	}
	err := m.ForEach(func(k, v []byte) error {
		bm := roaring64.New()
		if err := bm.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("decode posting list %x: %w", k, err)
		}
		switch {
		case string(k) == string(sourcesKey):
			p.sources = bm
		case len(k) == 8:
			p.lists[value.ID(binary.BigEndian.Uint64(k))] = bm
		default:
			return fmt.Errorf("unexpected posting key %x", k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *postings) list(pid value.ID) *roaring64.Bitmap {
	bm, ok := p.lists[pid]
	if !ok {
		bm = roaring64.New()
		p.lists[pid] = bm
	}
	return bm
}

// replace moves source id from the lists of old to the lists of cur.
func (p *postings) replace(id value.ID, old, cur []value.ID) {
	for _, pid := range old {
		if bm, ok := p.lists[pid]; ok && bm.Contains(uint64(id)) {
			bm.Remove(uint64(id))
			p.dirty[pid] = struct{}{}
		}
	}
	for _, pid := range cur {
		p.list(pid).Add(uint64(id))
		p.dirty[pid] = struct{}{}
	}
	if !p.sources.Contains(uint64(id)) {
		p.sources.Add(uint64(id))
		p.srcDirt = true
	}
}

func (p *postings) removeEverywhere(id value.ID) {
	for pid, bm := range p.lists {
		if bm.Contains(uint64(id)) {
			bm.Remove(uint64(id))
			p.dirty[pid] = struct{}{}
		}
	}
}

// get returns a copy of the posting list of pid.
func (p *postings) get(pid value.ID) *roaring64.Bitmap {
	if bm, ok := p.lists[pid]; ok {
		return bm.Clone()
	}
	return roaring64.New()
}

func (p *postings) flush() error {
	for pid := range p.dirty {
		bm := p.lists[pid]
		bm.RunOptimize()
		if bm.IsEmpty() {
			if err := p.m.Delete(postingKey(pid)); err != nil {
				return err
			}
			delete(p.lists, pid)
		} else {
			b, err := bm.ToBytes()
			if err != nil {
				return err
			}
			if err := p.m.Put(postingKey(pid), b); err != nil {
				return err
			}
		}
		delete(p.dirty, pid)
	}
	if p.srcDirt {
		b, err := p.sources.ToBytes()
		if err != nil {
			return err
		}
		if err := p.m.Put(sourcesKey, b); err != nil {
			return err
		}
		p.srcDirt = false
	}
	return nil
}
