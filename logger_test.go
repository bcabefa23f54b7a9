package factdb_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factdb"
	"github.com/hupe1980/factdb/schema"
)

func TestLoggerRecordsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := factdb.NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := factdb.OpenMemory(factdb.WithLogger(logger))
	require.NoError(t, err)

	_, err = db.RegisterSort(schema.StringSort("entity"))
	require.NoError(t, err)
	require.NoError(t, db.Commit())
	require.NoError(t, db.Close())

	out := buf.String()
	assert.Contains(t, out, "sort registered")
	assert.Contains(t, out, "sort=entity")
	assert.Contains(t, out, "commit completed")
	assert.Contains(t, out, "database closed")
}

func TestNoopLoggerIsSilent(t *testing.T) {
	db, err := factdb.OpenMemory(factdb.WithLogger(factdb.NoopLogger().WithSort("entity")))
	require.NoError(t, err)
	_, err = db.RegisterSort(schema.StringSort("entity"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
