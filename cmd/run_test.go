package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
)

// testdataPath resolves a file under the repository's testdata/ directory.
func testdataPath(t *testing.T, parts ...string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	root := filepath.Join(filepath.Dir(thisFile), "..", "testdata")
	return filepath.Join(append([]string{root}, parts...)...)
}

func corridorOptions(t *testing.T) runOptions {
	return runOptions{
		mapPath:      testdataPath(t, "maps", "corridor.yaml"),
		scenarioPath: testdataPath(t, "scenarios", "corridor.yaml"),
		preset:       "mixed",
		rate:         600,
	}
}

func TestRunSimulation_WritesEverySink(t *testing.T) {
	// GIVEN the corridor scenario with every output enabled
	dir := t.TempDir()
	opts := corridorOptions(t)
	opts.eventLog = filepath.Join(dir, "events", "run.jsonl")
	opts.eventDB = filepath.Join(dir, "events.db")
	opts.metricsOut = filepath.Join(dir, "metrics.prom")
	cfg := sim.DefaultConfig()
	cfg.Run.Horizon = 0
	cfg.Run.CheckInvariants = true

	// WHEN it runs until every trip ends
	var out bytes.Buffer
	require.NoError(t, runSimulation(context.Background(), cfg, opts, &out))

	// THEN the report lists both trips as finished
	report := out.String()
	assert.Contains(t, report, "=== Simulation Metrics ===")
	assert.Contains(t, report, "Trips Spawned        : 2")
	assert.Contains(t, report, "Trips Finished       : 2")
	assert.Contains(t, report, "=== Event Log ===")

	// AND the JSONL and SQLite stores hold the same records
	jsonl, err := eventlog.ReadJSONL(opts.eventLog)
	require.NoError(t, err)
	require.NotEmpty(t, jsonl)
	db, err := eventlog.NewSQLiteSink(opts.eventDB, eventlog.RunID("corridor-v1", cfg.Run.Seed))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	stored, err := db.Query(context.Background(), eventlog.Query{})
	require.NoError(t, err)
	assert.Equal(t, jsonl, stored)

	// AND the Prometheus textfile counts the finished trips
	prom, err := os.ReadFile(opts.metricsOut)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `trafficsim_trips_total{outcome="finished"} 2`)
}

func TestRunSimulation_SnapshotThenResume(t *testing.T) {
	// GIVEN a run stopped after 20 s with a snapshot
	dir := t.TempDir()
	opts := corridorOptions(t)
	opts.snapshotOut = filepath.Join(dir, "snap.json")
	cfg := sim.DefaultConfig()
	cfg.Run.Horizon = 20
	var first bytes.Buffer
	require.NoError(t, runSimulation(context.Background(), cfg, opts, &first))
	assert.Contains(t, first.String(), "Simulated Time       : 20.0 s")

	// WHEN the run resumes from it without reapplying the scenario
	resume := runOptions{mapPath: opts.mapPath, resume: opts.snapshotOut}
	cfg.Run.Horizon = 0
	var second bytes.Buffer
	require.NoError(t, runSimulation(context.Background(), cfg, resume, &second))

	// THEN the restored counters carry over and both trips finish
	assert.Contains(t, second.String(), "Trips Spawned        : 2")
	assert.Contains(t, second.String(), "Trips Finished       : 2")
}

func TestRunSimulation_ResumeRejectsNewDemand(t *testing.T) {
	// GIVEN a snapshot of the corridor scenario after 20 s
	dir := t.TempDir()
	opts := corridorOptions(t)
	opts.snapshotOut = filepath.Join(dir, "snap.json")
	cfg := sim.DefaultConfig()
	cfg.Run.Horizon = 20
	require.NoError(t, runSimulation(context.Background(), cfg, opts, &bytes.Buffer{}))

	tests := []struct {
		name string
		opts runOptions
	}{
		{"scenario", runOptions{mapPath: opts.mapPath, resume: opts.snapshotOut, scenarioPath: opts.scenarioPath}},
		{"random trips", runOptions{mapPath: opts.mapPath, resume: opts.snapshotOut, randomTrips: 3, preset: "mixed", rate: 600}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// WHEN resuming with demand of its own
			var out bytes.Buffer
			err := runSimulation(context.Background(), sim.DefaultConfig(), tc.opts, &out)

			// THEN the run is refused before anything is simulated
			assert.ErrorContains(t, err, "--resume cannot be combined")
			assert.Empty(t, out.String())
		})
	}
}

func TestRunSimulation_UntilIsAbsolute(t *testing.T) {
	opts := corridorOptions(t)
	opts.until = 12.5
	var out bytes.Buffer

	require.NoError(t, runSimulation(context.Background(), sim.DefaultConfig(), opts, &out))

	assert.Contains(t, out.String(), "Simulated Time       : 12.5 s")
}

func TestRunSimulation_ResumeOnOtherMapFails(t *testing.T) {
	snap := writeFile(t, "snap.json", `{"format": 1, "map_version": "elsewhere"}`)
	opts := runOptions{mapPath: testdataPath(t, "maps", "corridor.yaml"), resume: snap}

	err := runSimulation(context.Background(), sim.DefaultConfig(), opts, &bytes.Buffer{})

	assert.ErrorIs(t, err, sim.ErrMapVersionMismatch)
}

func TestBuildScenario(t *testing.T) {
	t.Run("nothing requested", func(t *testing.T) {
		sc, err := buildScenario(runOptions{})
		require.NoError(t, err)
		assert.Nil(t, sc)
	})
	t.Run("random only", func(t *testing.T) {
		sc, err := buildScenario(runOptions{randomTrips: 5, preset: "commute", rate: 60})
		require.NoError(t, err)
		require.NotNil(t, sc.Random)
		assert.Equal(t, 5, sc.Random.Persons)
		assert.Empty(t, sc.Persons)
	})
	t.Run("random merged into file", func(t *testing.T) {
		opts := corridorOptions(t)
		opts.randomTrips = 3
		sc, err := buildScenario(opts)
		require.NoError(t, err)
		assert.Len(t, sc.Persons, 2)
		assert.Equal(t, 3, sc.Random.Persons)
	})
	t.Run("unknown preset", func(t *testing.T) {
		_, err := buildScenario(runOptions{randomTrips: 5, preset: "rush"})
		assert.ErrorContains(t, err, `unknown preset "rush"`)
	})
	t.Run("scenario already random", func(t *testing.T) {
		path := writeFile(t, "sc.yaml", "random:\n  persons: 2\n  rate_per_hour: 60\n  modes: {walk: 1}\n")
		_, err := buildScenario(runOptions{scenarioPath: path, randomTrips: 5, preset: "mixed", rate: 60})
		assert.ErrorContains(t, err, "conflicts")
	})
}
