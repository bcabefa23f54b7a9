package factdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factdb"
	"github.com/hupe1980/factdb/edge"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

func persistentBackends() []factdb.Backend {
	return []factdb.Backend{factdb.BackendBolt, factdb.BackendBadger}
}

func container(s sorts, src string) *value.EdgeContainer {
	return value.NewEdgeContainer(value.MustString(s.entity, src)).
		Add("bornIn", value.MustString(s.entity, "Q2"), value.Pair("since", value.MustString(s.text, "1990"))).
		Add("label", value.MustString(s.text, src+" label"))
}

// TestReopenPersistence verifies that sorts, ids, counters, edges and
// postings survive Close and Open on every persistent backend.
func TestReopenPersistence(t *testing.T) {
	for _, backend := range persistentBackends() {
		t.Run(backend.String(), func(t *testing.T) {
			dir := t.TempDir()
			opts := []factdb.Option{
				factdb.WithBackend(backend),
				factdb.WithSyncWrites(false),
				factdb.WithCompression(factdb.CompressionLZ4),
				factdb.WithCompressionThreshold(1),
			}

			db, err := factdb.Open(dir, opts...)
			require.NoError(t, err)
			s := registerSorts(t, db)

			rec, err := value.NewRecordValues(s.person, value.MustString(s.entity, "Q1"), value.MustString(s.entity, "30"))
			require.NoError(t, err)
			r1, err := db.GetOrCreateValueID(rec)
			require.NoError(t, err)
			require.NoError(t, db.UpdateEdges(container(s, "Q1")))
			pid, err := db.GetOrCreatePropertyID("bornIn", "entity", "entity")
			require.NoError(t, err)
			require.NoError(t, db.Close())

			db, err = factdb.Open(dir, opts...)
			require.NoError(t, err)
			defer db.Close()

			person, err := db.Sort("person")
			require.NoError(t, err)
			assert.Equal(t, s.person.Descriptor(), person.Descriptor())
			s = registerSorts(t, db)

			got, ok, err := db.ValueID(rec)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, r1, got)

			again, err := db.GetOrCreatePropertyID("bornIn", "entity", "entity")
			require.NoError(t, err)
			assert.Equal(t, pid, again)

			// Counters continue where they stopped.
			before := db.Properties().Len()
			_, err = db.GetOrCreatePropertyID("diedIn", "entity", "entity")
			require.NoError(t, err)
			assert.Equal(t, before+1, db.Properties().Len())

			view, ok, err := db.FetchEdgeContainer(value.MustString(s.entity, "Q1"))
			require.NoError(t, err)
			require.True(t, ok)
			ec, err := view.Materialize()
			require.NoError(t, err)
			assert.True(t, container(s, "Q1").Equal(ec))

			bm, err := db.SourcesWithProperty("entity", "bornIn", "entity")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), bm.GetCardinality())
		})
	}
}

func TestBackendParity(t *testing.T) {
	backends := append(persistentBackends(), factdb.BackendMemory)
	for _, backend := range backends {
		t.Run(backend.String(), func(t *testing.T) {
			db, err := factdb.Open(t.TempDir(), factdb.WithBackend(backend), factdb.WithSyncWrites(false))
			require.NoError(t, err)
			defer db.Close()
			s := registerSorts(t, db)

			for _, q := range []string{"Q1", "Q3", "Q4"} {
				require.NoError(t, db.UpdateEdges(container(s, q)))
			}
			require.NoError(t, db.Commit())

			// Dictionary ids are dense in first-seen order.
			var got []string
			for e, err := range db.Values("entity") {
				require.NoError(t, err)
				got = append(got, e.Value.String())
			}
			assert.Equal(t, []string{"Q1", "Q2", "Q3", "Q4"}, got)

			require.NoError(t, db.Preload(context.Background(), "entity", edge.PreloadOptions{Refs: true, Values: true}))
			for _, q := range []string{"Q1", "Q3", "Q4"} {
				view, ok, err := db.FetchEdgeContainer(value.MustString(s.entity, q))
				require.NoError(t, err)
				require.True(t, ok)
				ec, err := view.Materialize()
				require.NoError(t, err)
				assert.True(t, container(s, q).Equal(ec))
			}
			st, err := db.Stats()
			require.NoError(t, err)
			assert.True(t, st.Edges["entity"].Preloaded)
		})
	}
}

func TestCloseCommits(t *testing.T) {
	dir := t.TempDir()
	db, err := factdb.Open(dir, factdb.WithSyncWrites(false))
	require.NoError(t, err)
	s := registerSorts(t, db)
	require.NoError(t, db.Commit())

	_, err = db.GetOrCreateValueID(value.MustString(s.entity, "Q1"))
	require.NoError(t, err)
	st, err := db.Stats()
	require.NoError(t, err)
	require.Positive(t, st.PendingWrites)
	require.NoError(t, db.Close())

	db, err = factdb.Open(dir)
	require.NoError(t, err)
	defer db.Close()
	_, ok, err := db.ValueID(value.MustString(s.entity, "Q1"))
	require.NoError(t, err)
	assert.True(t, ok, "Close commits")
}

func TestCloseIsIdempotent(t *testing.T) {
	db, err := factdb.OpenMemory()
	require.NoError(t, err)
	s := registerSorts(t, db)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.GetOrCreateValueID(value.MustString(s.entity, "Q1"))
	assert.ErrorIs(t, err, factdb.ErrClosed)
	assert.ErrorIs(t, db.UpdateEdges(container(s, "Q1")), factdb.ErrClosed)
	_, _, err = db.FetchEdgeContainer(value.MustString(s.entity, "Q1"))
	assert.ErrorIs(t, err, factdb.ErrClosed)
	_, err = db.RegisterSort(schema.StringSort("other"))
	assert.ErrorIs(t, err, factdb.ErrClosed)
	assert.ErrorIs(t, db.Commit(), factdb.ErrClosed)
	_, err = db.Sorts()
	assert.ErrorIs(t, err, factdb.ErrClosed)
	_, err = db.Stats()
	assert.ErrorIs(t, err, factdb.ErrClosed)
}

func TestOpenRejectsLockedBoltFile(t *testing.T) {
	dir := t.TempDir()
	db, err := factdb.Open(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = factdb.Open(dir, factdb.WithLockTimeout(10*time.Millisecond))
	assert.Error(t, err)
}
