package edge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factdb/dict"
	"github.com/hupe1980/factdb/internal/rowframe"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

type env struct {
	backend *kv.MemoryBackend
	store   *kv.BufferedStore
	set     *dict.Set
	x       *Index

	entity, text *schema.Sort
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	e := &env{backend: kv.NewMemory()}
	e.open(t, opts)
	return e
}

func (e *env) open(t *testing.T, opts Options) {
	t.Helper()
	e.store = kv.NewStore(e.backend)
	m, err := e.store.Map("sorts")
	require.NoError(t, err)
	reg, err := schema.NewRegistry(m)
	require.NoError(t, err)
	e.entity, err = reg.RegisterOrGet(schema.StringSort("entity"))
	require.NoError(t, err)
	e.text, err = reg.RegisterOrGet(schema.InlineStringSort("text"))
	require.NoError(t, err)

	e.set, err = dict.NewSet(reg, e.store, dict.DefaultOptions())
	require.NoError(t, err)
	e.x, err = NewIndex(e.entity, e.store, e.set.Codec(), opts)
	require.NoError(t, err)
}

func (e *env) ent(s string) value.Value { return value.MustString(e.entity, s) }
func (e *env) txt(s string) value.Value { return value.MustString(e.text, s) }

func (e *env) pid(t *testing.T, name string, rng *schema.Sort) value.ID {
	t.Helper()
	id, ok, err := e.set.PropertyID(schema.PropertySignature{Name: name, Domain: e.entity.ID(), Range: rng.ID()}, false)
	require.NoError(t, err)
	require.True(t, ok)
	return id
}

func (e *env) container(src string) *value.EdgeContainer {
	return value.NewEdgeContainer(e.ent(src)).
		Add("bornIn", e.ent("Q2"), value.Pair("since", e.txt("1990"))).
		Add("label", e.txt(src+" label"))
}

func TestUpdateAndGet(t *testing.T) {
	e := newEnv(t, Options{})

	ec := e.container("Q1")
	id, err := e.x.Update(ec)
	require.NoError(t, err)

	view, ok, err := e.x.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, view.SourceID())
	src, err := view.Source()
	require.NoError(t, err)
	assert.Equal(t, "Q1", src.String())

	has, err := view.Has("bornIn")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = view.Has("diedIn")
	require.NoError(t, err)
	assert.False(t, has)

	tc, ok, err := view.Targets("bornIn")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, tc.Next())
	tgt, err := tc.Target()
	require.NoError(t, err)
	assert.Equal(t, "Q2", tgt.String())

	got, err := view.Materialize()
	require.NoError(t, err)
	assert.True(t, ec.Equal(got))

	view, ok, err = e.x.GetBySource(e.ent("Q1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, view.SourceID())

	// Unknown sources are not interned by a lookup.
	_, ok, err = e.x.GetBySource(e.ent("Q404"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = e.set.ValueID(e.ent("Q404"), false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateRejectsForeignSource(t *testing.T) {
	e := newEnv(t, Options{})

	_, err := e.x.Update(value.NewEdgeContainer(e.txt("x")).Add("p", e.ent("Q1")))
	require.ErrorIs(t, err, schema.ErrSchemaMismatch)
	assert.Zero(t, e.x.Len())

	_, err = NewIndex(e.text, e.store, e.set.Codec(), Options{})
	assert.ErrorIs(t, err, schema.ErrUnsupportedKind)
}

func TestUpdateChecksSortsBeforeCreatingIDs(t *testing.T) {
	e := newEnv(t, Options{})

	// Same name, different id: built against another registry.
	otherReg, err := schema.NewRegistry(mustMap(t, kv.NewStore(kv.NewMemory()), "sorts"))
	require.NoError(t, err)
	foreign, err := otherReg.RegisterOrGet(schema.StringSort("text"))
	require.NoError(t, err)

	ec := value.NewEdgeContainer(e.ent("Q9")).
		Add("p", e.ent("Q10")).
		Add("q", value.MustString(foreign, "x"))
	_, err = e.x.Update(ec)
	require.ErrorIs(t, err, schema.ErrSchemaMismatch)

	for _, v := range []value.Value{e.ent("Q9"), e.ent("Q10")} {
		_, ok, err := e.set.ValueID(v, false)
		require.NoError(t, err)
		assert.False(t, ok, "%s was interned", v)
	}
	assert.Zero(t, e.set.Properties().Len())
	assert.Zero(t, e.x.Len())

	_, err = e.x.Update(nil)
	assert.ErrorIs(t, err, schema.ErrSchemaMismatch)
}

func TestRepeatedPropertyEntries(t *testing.T) {
	e := newEnv(t, Options{})

	ec := &value.EdgeContainer{
		Source: e.ent("Q1"),
		Properties: []value.PropertyTargets{
			{Property: "p", Targets: []value.TargetQualifiers{{Target: e.ent("Q2")}}},
			{Property: "r", Targets: []value.TargetQualifiers{{Target: e.txt("mid")}}},
			{Property: "p", Targets: []value.TargetQualifiers{{Target: e.ent("Q3")}}},
		},
	}
	id, err := e.x.Update(ec)
	require.NoError(t, err)

	check := func(t *testing.T) {
		view, ok, err := e.x.Get(id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, view.NumProperties())

		got, err := view.Materialize()
		require.NoError(t, err)
		require.Len(t, got.Properties, 3)
		var names, targets []string
		for _, p := range got.Properties {
			names = append(names, p.Property)
			targets = append(targets, p.Targets[0].Target.String())
		}
		assert.Equal(t, []string{"p", "r", "p"}, names)
		assert.Equal(t, []string{"Q2", "mid", "Q3"}, targets)

		has, err := view.Has("p")
		require.NoError(t, err)
		assert.True(t, has)

		p := e.pid(t, "p", e.entity)
		assert.Equal(t, []uint64{uint64(id)}, e.x.SourcesWithProperty(p).ToArray())
	}
	t.Run("store", check)

	require.NoError(t, e.x.Preload(context.Background(), PreloadOptions{Refs: true}))
	t.Run("preloaded", check)

	// Dropping one of the two entries keeps the source in the posting list.
	_, err = e.x.Update(value.NewEdgeContainer(e.ent("Q1")).Add("p", e.ent("Q2")))
	require.NoError(t, err)
	assert.True(t, e.x.SourcesWithProperty(e.pid(t, "p", e.entity)).Contains(uint64(id)))
	assert.False(t, e.x.SourcesWithProperty(e.pid(t, "r", e.text)).Contains(uint64(id)))
}

func mustMap(t *testing.T, s kv.Store, ns string) kv.Map {
	t.Helper()
	m, err := s.Map(ns)
	require.NoError(t, err)
	return m
}

func TestPostingsFollowReplacement(t *testing.T) {
	e := newEnv(t, Options{})

	id, err := e.x.Update(e.container("Q1"))
	require.NoError(t, err)
	_, err = e.x.Update(e.container("Q3"))
	require.NoError(t, err)

	bornIn := e.pid(t, "bornIn", e.entity)
	label := e.pid(t, "label", e.text)
	assert.Equal(t, uint64(2), e.x.SourcesWithProperty(bornIn).GetCardinality())
	assert.Equal(t, uint64(2), e.x.Len())

	// Replace Q1's container with one that only has a label.
	_, err = e.x.Update(value.NewEdgeContainer(e.ent("Q1")).Add("label", e.txt("x")))
	require.NoError(t, err)

	assert.False(t, e.x.SourcesWithProperty(bornIn).Contains(uint64(id)))
	assert.True(t, e.x.SourcesWithProperty(label).Contains(uint64(id)))
	assert.Equal(t, uint64(2), e.x.Len())

	has, err := e.x.HasProperty(id, bornIn)
	require.NoError(t, err)
	assert.False(t, has)

	// Returned bitmaps are copies.
	e.x.SourcesWithProperty(label).Clear()
	assert.Equal(t, uint64(2), e.x.SourcesWithProperty(label).GetCardinality())
}

func TestPostingsSurviveReopen(t *testing.T) {
	e := newEnv(t, Options{})

	id, err := e.x.Update(e.container("Q1"))
	require.NoError(t, err)
	require.NoError(t, e.x.Flush())
	require.NoError(t, e.store.Commit())

	e.open(t, Options{})
	assert.Equal(t, uint64(1), e.x.Len())
	assert.True(t, e.x.SourcesWithProperty(e.pid(t, "bornIn", e.entity)).Contains(uint64(id)))

	view, ok, err := e.x.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := view.Materialize()
	require.NoError(t, err)
	assert.True(t, e.container("Q1").Equal(got))
}

func TestPreloadServesSameContainers(t *testing.T) {
	for _, opts := range []PreloadOptions{{}, {Refs: true}, {Values: true}, {Refs: true, Values: true}} {
		e := newEnv(t, Options{Framer: rowframe.New(rowframe.Options{Compression: rowframe.CompressionZSTD, Threshold: 1})})

		ids := make(map[string]value.ID)
		for _, s := range []string{"Q1", "Q3", "Q4"} {
			id, err := e.x.Update(e.container(s))
			require.NoError(t, err)
			ids[s] = id
		}

		require.NoError(t, e.x.Preload(context.Background(), opts))
		assert.True(t, e.x.Preloaded())
		assert.Positive(t, e.x.Stats().CachedRows)

		// Writes after the preload are visible.
		id, err := e.x.Update(e.container("Q5"))
		require.NoError(t, err)
		ids["Q5"] = id

		for s, id := range ids {
			view, ok, err := e.x.Get(id)
			require.NoError(t, err)
			require.True(t, ok)
			got, err := view.Materialize()
			require.NoError(t, err)
			assert.True(t, e.container(s).Equal(got), "%s with %+v", s, opts)
		}

		e.x.Unload()
		assert.False(t, e.x.Preloaded())
		view, ok, err := e.x.Get(ids["Q5"])
		require.NoError(t, err)
		require.True(t, ok)
		got, err := view.Materialize()
		require.NoError(t, err)
		assert.True(t, e.container("Q5").Equal(got))
	}
}

func TestPreloadCanceled(t *testing.T) {
	e := newEnv(t, Options{})
	_, err := e.x.Update(e.container("Q1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, e.x.Preload(ctx, PreloadOptions{Refs: true}), context.Canceled)
	assert.False(t, e.x.Preloaded())
}

func TestStaleViewDetected(t *testing.T) {
	e := newEnv(t, Options{})

	id, err := e.x.Update(e.container("Q1"))
	require.NoError(t, err)
	view, ok, err := e.x.Get(id)
	require.NoError(t, err)
	require.True(t, ok)

	// Replace the rows before the view touches its payload.
	_, err = e.x.Update(value.NewEdgeContainer(e.ent("Q1")).
		Add("bornIn", e.ent("Q7")).
		Add("label", e.txt("other")).
		Add("label", e.txt("more")))
	require.NoError(t, err)

	_, err = view.Materialize()
	assert.ErrorIs(t, err, ErrStaleView)
}

func TestCorruptRowSurfaces(t *testing.T) {
	e := newEnv(t, Options{})

	id, err := e.x.Update(e.container("Q1"))
	require.NoError(t, err)

	m, err := e.store.Map(Namespace("entity", PartValues))
	require.NoError(t, err)
	frame, ok, err := m.Get(rowKey(id))
	require.NoError(t, err)
	require.True(t, ok)
	bad := append([]byte(nil), frame...)
	bad[len(bad)-1] ^= 0xff
	require.NoError(t, m.Put(rowKey(id), bad))

	view, ok, err := e.x.Get(id)
	require.NoError(t, err, "the skeleton is intact")
	require.True(t, ok)
	has, err := view.Has("label")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = view.Materialize()
	assert.ErrorIs(t, err, rowframe.ErrCorrupt)
}

func TestGetMissing(t *testing.T) {
	e := newEnv(t, Options{})

	_, ok, err := e.x.Get(42)
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := e.x.HasProperty(42, 0)
	require.NoError(t, err)
	assert.False(t, has)
}

