package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/metrics"
	"github.com/traffic-sim/traffic-sim/sim/workload"
)

// runOptions are the run inputs that are not part of sim.Config.
type runOptions struct {
	mapPath      string
	scenarioPath string
	until        float64 // absolute stop time in seconds, overrides the horizon
	eventLog     string
	eventDB      string
	snapshotOut  string
	resume       string
	metricsOut   string
	randomTrips  int
	preset       string
	rate         float64
}

var (
	runOpts    runOptions
	configPath string  // Optional koanf config file
	seed       int64   // Master seed for workload generation
	horizon    float64 // Seconds to simulate (0 = until every trip ends)
)

// idleStep is how far the clock moves per check when running until idle.
const idleStep = 60 * 1_000_000

// maxIdleRun bounds a run without horizon.
const maxIdleRun = 7 * 24 * 3600 * 1_000_000

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a traffic simulation",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		// CLI flags win over file and environment only when set explicitly.
		if cmd.Flags().Changed("seed") {
			cfg.Run.Seed = seed
		}
		if cmd.Flags().Changed("horizon") {
			cfg.Run.Horizon = horizon
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		startTime := time.Now()
		if err := runSimulation(cmd.Context(), cfg, runOpts, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// runSimulation builds or restores a simulator, applies the demand, runs it
// and writes the report to out.
func runSimulation(ctx context.Context, cfg sim.Config, opts runOptions, out io.Writer) (err error) {
	if opts.resume != "" && (opts.scenarioPath != "" || opts.randomTrips > 0) {
		return errors.New("--resume cannot be combined with --scenario or --random-trips: the snapshot carries its own trips")
	}
	m, err := mapmodel.LoadFile(opts.mapPath)
	if err != nil {
		return err
	}

	var s *sim.Simulator
	if opts.resume != "" {
		data, err := os.ReadFile(opts.resume)
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
		if s, err = sim.Restore(m, data); err != nil {
			return err
		}
		logrus.Infof("Resumed run %s at %.1f s", s.EventLog().RunID(), mapmodel.TicksToSeconds(s.Now()))
	} else {
		s = sim.NewSimulator(m, cfg)
		logrus.Infof("Starting run %s on map %s (seed=%d)", s.EventLog().RunID(), m.Version(), cfg.Run.Seed)
	}

	sinks, err := openSinks(opts, s.EventLog().RunID())
	if err != nil {
		return err
	}
	defer func() {
		for _, sink := range sinks {
			if cerr := sink.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing event sink: %w", cerr)
			}
		}
	}()
	for _, sink := range sinks {
		s.EventLog().Attach(sink)
	}

	reg := prometheus.NewRegistry()
	collectors, err := metrics.NewCollectors(reg)
	if err != nil {
		return err
	}
	s.Instrument(collectors)

	sc, err := buildScenario(opts)
	if err != nil {
		return err
	}
	if sc != nil {
		ids, err := sc.Apply(s)
		if err != nil {
			return err
		}
		logrus.Infof("Spawned %d trips", len(ids))
	}

	if err := advance(ctx, s, cfg.Run.Horizon, opts.until); err != nil {
		return err
	}

	if opts.snapshotOut != "" {
		data, err := s.Snapshot()
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.snapshotOut, data, 0o644); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		logrus.Infof("Snapshot written to %s", opts.snapshotOut)
	}
	if opts.metricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.metricsOut, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	s.Metrics().Print(out, s.Now())
	printEventSummary(out, eventlog.Summarize(s.EventLog().Records()))
	return nil
}

func openSinks(opts runOptions, runID string) ([]eventlog.Sink, error) {
	var sinks []eventlog.Sink
	if opts.eventLog != "" {
		js, err := eventlog.NewJSONLSink(opts.eventLog, 100, 3)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, js)
	}
	if opts.eventDB != "" {
		db, err := eventlog.NewSQLiteSink(opts.eventDB, runID)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}

// buildScenario merges the scenario file and the random preset. Returns nil
// when neither is given.
func buildScenario(opts runOptions) (*workload.Scenario, error) {
	var sc *workload.Scenario
	if opts.scenarioPath != "" {
		var err error
		if sc, err = workload.LoadScenario(opts.scenarioPath); err != nil {
			return nil, err
		}
	}
	if opts.randomTrips <= 0 {
		return sc, nil
	}
	preset, ok := workload.Presets[opts.preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", opts.preset)
	}
	random := preset(opts.randomTrips, opts.rate)
	if sc == nil {
		return random, random.Validate()
	}
	if sc.Random != nil {
		return nil, errors.New("--random-trips conflicts with the random section of the scenario")
	}
	sc.Random = random.Random
	return sc, sc.Validate()
}

// advance runs to the absolute until time if set, else for horizon seconds,
// else until every trip has ended.
func advance(ctx context.Context, s *sim.Simulator, horizonS, untilS float64) error {
	switch {
	case untilS > 0:
		return s.AdvanceTo(ctx, mapmodel.SecondsToTicks(untilS))
	case horizonS > 0:
		return s.Advance(ctx, mapmodel.SecondsToTicks(horizonS))
	}
	start := s.Now()
	for !s.Idle() {
		if s.Now()-start >= maxIdleRun {
			logrus.Warnf("Trips still running after %.0f s, stopping", mapmodel.TicksToSeconds(maxIdleRun))
			return nil
		}
		if err := s.Advance(ctx, idleStep); err != nil {
			return err
		}
	}
	return nil
}

func printEventSummary(w io.Writer, sum *eventlog.Summary) {
	fmt.Fprintln(w, "=== Event Log ===")
	fmt.Fprintf(w, "Records              : %d\n", sum.Records)
	fmt.Fprintf(w, "Agents               : %d\n", sum.Agents)
	for k := eventlog.Kind(0); int(k) < eventlog.NumKinds; k++ {
		if n := sum.ByKind[k]; n > 0 {
			fmt.Fprintf(w, "  %-19s: %d\n", k, n)
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runOpts.mapPath, "map", "", "Road network YAML")
	runCmd.Flags().StringVar(&runOpts.scenarioPath, "scenario", "", "Scenario YAML listing persons and trips")
	runCmd.Flags().StringVar(&configPath, "config", "", "Simulator config file (yaml or json); TRAFFICSIM_* env vars override it")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for random trip generation")
	runCmd.Flags().Float64Var(&horizon, "horizon", 3600, "Seconds to simulate (0 = until every trip ends)")
	runCmd.Flags().Float64Var(&runOpts.until, "until", 0, "Absolute simulated time to stop at, in seconds (overrides --horizon)")

	runCmd.Flags().StringVar(&runOpts.eventLog, "event-log", "", "Write the event log as rotating JSONL to this path")
	runCmd.Flags().StringVar(&runOpts.eventDB, "event-db", "", "Write the event log to this SQLite database")
	runCmd.Flags().StringVar(&runOpts.metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this path")
	runCmd.Flags().StringVar(&runOpts.snapshotOut, "snapshot-out", "", "Write a snapshot of the final state to this path")
	runCmd.Flags().StringVar(&runOpts.resume, "resume", "", "Continue from a snapshot taken on the same map")

	runCmd.Flags().IntVar(&runOpts.randomTrips, "random-trips", 0, "Number of persons to generate from --preset")
	runCmd.Flags().StringVar(&runOpts.preset, "preset", "mixed", "Random demand preset (commute, mixed)")
	runCmd.Flags().Float64Var(&runOpts.rate, "rate", 600, "Generated departures per hour")

	_ = runCmd.MarkFlagRequired("map")
}
