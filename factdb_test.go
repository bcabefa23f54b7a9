package factdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factdb"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

type sorts struct {
	entity, text, person *schema.Sort
}

func registerSorts(t *testing.T, db *factdb.DB) sorts {
	t.Helper()
	var s sorts
	var err error
	s.entity, err = db.RegisterSort(schema.StringSort("entity"))
	require.NoError(t, err)
	s.text, err = db.RegisterSort(schema.InlineStringSort("text"))
	require.NoError(t, err)
	s.person, err = db.RegisterSort(schema.RecordSort("person",
		schema.Field("name", "entity"),
		schema.Field("age", "entity"),
	))
	require.NoError(t, err)
	return s
}

func openMemory(t *testing.T, opts ...factdb.Option) *factdb.DB {
	t.Helper()
	db, err := factdb.OpenMemory(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPersonScenario(t *testing.T) {
	db := openMemory(t)
	s := registerSorts(t, db)

	q1 := value.MustString(s.entity, "Q1")
	rec, err := value.NewRecordValues(s.person, q1, value.MustString(s.entity, "30"))
	require.NoError(t, err)

	r1, err := db.GetOrCreateValueID(rec)
	require.NoError(t, err)
	again, err := db.GetOrCreateValueID(rec)
	require.NoError(t, err)
	assert.Equal(t, r1, again)

	got, ok, err := db.ValueID(rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r1, got)

	fetched, err := db.FetchValue(r1, "person")
	require.NoError(t, err)
	assert.True(t, value.Equal(rec, fetched))

	ec := value.NewEdgeContainer(q1).
		Add("bornIn", value.MustString(s.entity, "Q2"), value.Pair("since", value.MustString(s.text, "1990")))
	require.NoError(t, db.UpdateEdges(ec))

	view, ok, err := db.FetchEdgeContainer(q1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, view.NumProperties())

	pc := view.Properties()
	require.True(t, pc.Next())
	sig, err := pc.Signature()
	require.NoError(t, err)
	assert.Equal(t, "bornIn", sig.Name)

	tc := pc.Targets()
	require.True(t, tc.Next())
	tgt, err := tc.Target()
	require.NoError(t, err)
	assert.Equal(t, "Q2", tgt.String())

	qc := tc.Qualifiers()
	require.True(t, qc.Next())
	assert.Equal(t, "since", qc.Property())
	qv, err := qc.Value()
	require.NoError(t, err)
	assert.Equal(t, "1990", qv.String())
	assert.False(t, qc.Next())
	assert.False(t, tc.Next())
	assert.False(t, pc.Next())
	require.NoError(t, pc.Err())
}

func TestUpdateEdgesReplaces(t *testing.T) {
	db := openMemory(t)
	s := registerSorts(t, db)

	q1 := value.MustString(s.entity, "Q1")
	require.NoError(t, db.UpdateEdges(value.NewEdgeContainer(q1).
		Add("bornIn", value.MustString(s.entity, "Q2")).
		Add("label", value.MustString(s.text, "one"))))

	second := value.NewEdgeContainer(q1).
		Add("label", value.MustString(s.text, "two")).
		Add("label", value.MustString(s.text, "two"))
	require.NoError(t, db.UpdateEdges(second))

	view, ok, err := db.FetchEdgeContainer(q1)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := view.Materialize()
	require.NoError(t, err)
	assert.True(t, second.Equal(got), "replace, not merge; duplicates kept")

	bornIn, err := db.SourcesWithProperty("entity", "bornIn", "entity")
	require.NoError(t, err)
	assert.True(t, bornIn.IsEmpty())
	label, err := db.SourcesWithProperty("entity", "label", "text")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), label.GetCardinality())

	id, ok, err := db.ValueID(q1)
	require.NoError(t, err)
	require.True(t, ok)
	byID, ok, err := db.FetchEdgeContainerByID("entity", id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, byID.SourceID())
}

func TestPropertyIDs(t *testing.T) {
	db := openMemory(t)
	registerSorts(t, db)

	a, err := db.GetOrCreatePropertyID("p", "entity", "text")
	require.NoError(t, err)
	b, err := db.GetOrCreatePropertyID("p", "person", "entity")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	got, ok, err := db.PropertyID("p", "entity", "text")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok, err = db.PropertyID("q", "entity", "text")
	require.NoError(t, err)
	assert.False(t, ok)

	sig, err := db.FetchPropertySignature(b)
	require.NoError(t, err)
	assert.Equal(t, "p", sig.Name)

	_, err = db.FetchPropertySignature(99)
	assert.ErrorIs(t, err, factdb.ErrUnknownID)
	_, err = db.GetOrCreatePropertyID("p", "nowhere", "text")
	assert.ErrorIs(t, err, factdb.ErrUnknownSort)
	assert.Equal(t, uint64(2), db.Properties().Len())
}

func TestSchemaViolations(t *testing.T) {
	db := openMemory(t)
	s := registerSorts(t, db)

	// A record field of the wrong sort never reaches a dictionary.
	_, err := value.NewRecordValues(s.person, value.MustString(s.text, "Q1"), value.MustString(s.entity, "30"))
	require.ErrorIs(t, err, factdb.ErrSchemaMismatch)

	_, err = db.RegisterSort(schema.StringRecordSort("person", true, schema.Field("name", "entity")))
	assert.ErrorIs(t, err, factdb.ErrSortRedefined)

	_, err = db.GetOrCreateValueID(value.MustString(s.text, "inline"))
	assert.ErrorIs(t, err, factdb.ErrUnsupportedKind)

	err = db.UpdateEdges(value.NewEdgeContainer(value.MustString(s.text, "x")).Add("p", value.MustString(s.entity, "Q1")))
	assert.ErrorIs(t, err, factdb.ErrUnsupportedKind)

	_, err = db.FetchValue(0, "nowhere")
	assert.ErrorIs(t, err, factdb.ErrUnknownSort)
	_, err = db.FetchValue(5, "entity")
	assert.ErrorIs(t, err, factdb.ErrUnknownID)

	st, err := db.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Dictionaries["entity"].Values)

	assert.ErrorIs(t, db.UpdateEdges(nil), factdb.ErrSchemaMismatch)
}

func TestValuesIteratesInIDOrder(t *testing.T) {
	db := openMemory(t)
	s := registerSorts(t, db)

	for _, q := range []string{"Q1", "Q2", "Q3"} {
		_, err := db.GetOrCreateValueID(value.MustString(s.entity, q))
		require.NoError(t, err)
	}

	var got []string
	for e, err := range db.Values("entity") {
		require.NoError(t, err)
		got = append(got, e.Value.String())
	}
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, got)

	for _, err := range db.Values("text") {
		assert.ErrorIs(t, err, factdb.ErrUnsupportedKind)
	}
}

func TestMetricsCollected(t *testing.T) {
	metrics := &factdb.BasicMetricsCollector{}
	db := openMemory(t, factdb.WithMetricsCollector(metrics))
	s := registerSorts(t, db)

	q1 := value.MustString(s.entity, "Q1")
	_, err := db.GetOrCreateValueID(q1)
	require.NoError(t, err)
	_, _, err = db.ValueID(value.MustString(s.entity, "Q404"))
	require.NoError(t, err)
	require.NoError(t, db.UpdateEdges(value.NewEdgeContainer(q1).Add("p", q1).Add("p", q1)))
	_, _, err = db.FetchEdgeContainer(q1)
	require.NoError(t, err)
	require.NoError(t, db.Commit())

	st := metrics.GetStats()
	assert.Equal(t, int64(1), st.InternCount)
	assert.Equal(t, int64(1), st.LookupMisses)
	assert.Equal(t, int64(2), st.EdgeUpdateEdges)
	assert.Equal(t, int64(1), st.EdgeFetchCount)
	assert.Equal(t, int64(1), st.CommitCount)
	assert.Positive(t, st.CommitWrites)
}
