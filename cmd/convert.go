package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/workload"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert maps, demand presets and event logs",
	Long:  "Convert between the formats the simulator reads and writes. YAML output is written to stdout for piping.",
}

// --- traffic-sim convert map ---

var convertMapPath string

var convertMapCmd = &cobra.Command{
	Use:   "map",
	Short: "Rewrite a map as canonical YAML with derived compatibility and restrictions applied",
	Run: func(cmd *cobra.Command, args []string) {
		m, err := mapmodel.LoadFile(convertMapPath)
		if err != nil {
			logrus.Fatalf("Map conversion failed: %v", err)
		}
		data, err := mapmodel.DocumentFromMap(m).Marshal()
		if err != nil {
			logrus.Fatalf("YAML marshal failed: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(data)
	},
}

// --- traffic-sim convert preset ---

var (
	presetName    string
	presetPersons int
	presetRate    float64
)

var convertPresetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Write a named demand preset as a scenario file",
	Run: func(cmd *cobra.Command, args []string) {
		preset, ok := workload.Presets[presetName]
		if !ok {
			logrus.Fatalf("Unknown preset %q. Available: commute, mixed.", presetName)
		}
		writeYAML(cmd.OutOrStdout(), preset(presetPersons, presetRate))
	},
}

// --- traffic-sim convert events ---

var (
	eventsIn  string
	eventsOut string
	eventsRun string
)

var convertEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Load a JSONL event log into a SQLite database",
	Run: func(cmd *cobra.Command, args []string) {
		n, err := importEvents(cmd.Context(), eventsIn, eventsOut, eventsRun)
		if err != nil {
			logrus.Fatalf("Event conversion failed: %v", err)
		}
		logrus.Infof("Imported %d records into %s", n, eventsOut)
	},
}

// importEvents copies the records of a JSONL log into the SQLite store under
// runID.
func importEvents(ctx context.Context, in, out, runID string) (n int, err error) {
	records, err := eventlog.ReadJSONL(in)
	if err != nil {
		return 0, err
	}
	db, err := eventlog.NewSQLiteSink(out, runID)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for _, r := range records {
		if err := db.Append(ctx, r); err != nil {
			return n, fmt.Errorf("record %d: %w", r.Seq, err)
		}
		n++
	}
	return n, nil
}

// writeYAML marshals v to YAML and writes it to w.
func writeYAML(w io.Writer, v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		logrus.Fatalf("YAML marshal failed: %v", err)
	}
	_, _ = w.Write(data)
}

func init() {
	convertMapCmd.Flags().StringVar(&convertMapPath, "map", "", "Road network YAML")
	_ = convertMapCmd.MarkFlagRequired("map")

	convertPresetCmd.Flags().StringVar(&presetName, "name", "", "Preset name (commute, mixed)")
	convertPresetCmd.Flags().IntVar(&presetPersons, "persons", 100, "Number of generated persons")
	convertPresetCmd.Flags().Float64Var(&presetRate, "rate", 600, "Departures per hour")
	_ = convertPresetCmd.MarkFlagRequired("name")

	convertEventsCmd.Flags().StringVar(&eventsIn, "in", "", "JSONL event log")
	convertEventsCmd.Flags().StringVar(&eventsOut, "out", "", "SQLite database to write")
	convertEventsCmd.Flags().StringVar(&eventsRun, "run-id", "imported", "Run id to store the records under")
	_ = convertEventsCmd.MarkFlagRequired("in")
	_ = convertEventsCmd.MarkFlagRequired("out")

	convertCmd.AddCommand(convertMapCmd)
	convertCmd.AddCommand(convertPresetCmd)
	convertCmd.AddCommand(convertEventsCmd)
}
