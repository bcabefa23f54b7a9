package codec

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// memResolver interns by inline encoding, the same content key the real
// dictionaries use.
type memResolver struct {
	mu    sync.Mutex
	reg   *schema.Registry
	c     *Codec
	ids   map[string]value.ID
	vals  map[schema.SortID][]value.Value
	props map[schema.PropertySignature]value.ID
	sigs  []schema.PropertySignature

	allocs int
}

func newMemResolver(t *testing.T) *memResolver {
	t.Helper()

	m, err := kv.NewStore(kv.NewMemory()).Map("sorts")
	require.NoError(t, err)
	reg, err := schema.NewRegistry(m)
	require.NoError(t, err)

	r := &memResolver{
		reg:   reg,
		ids:   make(map[string]value.ID),
		vals:  make(map[schema.SortID][]value.Value),
		props: make(map[schema.PropertySignature]value.ID),
	}
	r.c = New(r)
	return r
}

func (r *memResolver) register(t *testing.T, d schema.Descriptor) *schema.Sort {
	t.Helper()
	s, err := r.reg.RegisterOrGet(d)
	require.NoError(t, err)
	return s
}

func (r *memResolver) Sorts() *schema.Registry { return r.reg }

func (r *memResolver) ValueID(v value.Value, create bool) (value.ID, bool, error) {
	s, err := r.c.SortOf(v)
	if err != nil {
		return 0, false, err
	}
	enc, err := r.c.AppendInline(nil, v, create)
	if errors.Is(err, ErrAbsent) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%d/%s", s.ID(), enc)
	if id, ok := r.ids[key]; ok {
		return id, true, nil
	}
	if !create {
		return 0, false, nil
	}
	id := value.ID(len(r.vals[s.ID()]))
	r.ids[key] = id
	r.vals[s.ID()] = append(r.vals[s.ID()], v)
	r.allocs++
	return id, true, nil
}

func (r *memResolver) Value(s *schema.Sort, id value.ID) (value.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vals := r.vals[s.ID()]
	if uint64(id) >= uint64(len(vals)) {
		return nil, fmt.Errorf("%w: %s #%d", schema.ErrUnknownID, s.Name(), id)
	}
	return vals[id], nil
}

func (r *memResolver) PropertyID(sig schema.PropertySignature, create bool) (value.ID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.props[sig]; ok {
		return id, true, nil
	}
	if !create {
		return 0, false, nil
	}
	id := value.ID(len(r.sigs))
	r.props[sig] = id
	r.sigs = append(r.sigs, sig)
	r.allocs++
	return id, true, nil
}

func (r *memResolver) Property(id value.ID) (schema.PropertySignature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uint64(id) >= uint64(len(r.sigs)) {
		return schema.PropertySignature{}, fmt.Errorf("%w: property #%d", schema.ErrUnknownID, id)
	}
	return r.sigs[id], nil
}

// fixture is a small schema shared by the codec tests.
type fixture struct {
	r      *memResolver
	entity *schema.Sort // dictionary string
	text   *schema.Sort // inline string
	person *schema.Sort // record{name: entity, age: text}
	coord  *schema.Sort // packed inline string record
	doc    *schema.Sort // object
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := newMemResolver(t)
	f := &fixture{r: r}
	f.entity = r.register(t, schema.StringSort("entity"))
	f.text = r.register(t, schema.InlineStringSort("text"))
	f.person = r.register(t, schema.RecordSort("person",
		schema.Field("name", "entity"),
		schema.Field("age", "text"),
	))
	f.coord = r.register(t, schema.StringRecordSort("coord", true,
		schema.Field("lat", "text"),
		schema.Field("lon", "text"),
	))
	f.doc = r.register(t, schema.ObjectSort("doc"))
	return f
}

func (f *fixture) str(s *schema.Sort, v string) *value.String {
	return value.MustString(s, v)
}
