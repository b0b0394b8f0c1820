package cmd

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
)

func TestImportEvents_CopiesJSONLIntoSQLite(t *testing.T) {
	// GIVEN a JSONL event log from a short run
	dir := t.TempDir()
	opts := corridorOptions(t)
	opts.eventLog = filepath.Join(dir, "run.jsonl")
	cfg := sim.DefaultConfig()
	cfg.Run.Horizon = 30
	require.NoError(t, runSimulation(context.Background(), cfg, opts, io.Discard))
	want, err := eventlog.ReadJSONL(opts.eventLog)
	require.NoError(t, err)

	// WHEN it is imported under a run id
	dbPath := filepath.Join(dir, "events.db")
	n, err := importEvents(context.Background(), opts.eventLog, dbPath, "first")
	require.NoError(t, err)

	// THEN every record is queryable from the database
	assert.Equal(t, len(want), n)
	db, err := eventlog.NewSQLiteSink(dbPath, "first")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	got, err := db.Query(context.Background(), eventlog.Query{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// AND importing the same run twice fails on the duplicate keys
	_, err = importEvents(context.Background(), opts.eventLog, dbPath, "first")
	assert.Error(t, err)
}
