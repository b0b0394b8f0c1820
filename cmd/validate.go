package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/workload"
)

var (
	validateMap      string
	validateScenario string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Build a map (and optionally a scenario) and report what it contains",
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateFiles(cmd.OutOrStdout(), validateMap, validateScenario); err != nil {
			logrus.Fatalf("Validation failed: %v", err)
		}
	},
}

func validateFiles(w io.Writer, mapPath, scenarioPath string) error {
	m, err := mapmodel.LoadFile(mapPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Map %s (%s coordinates)\n", m.Version(), m.CoordSystem())
	fmt.Fprintf(w, "Intersections        : %d\n", m.NumIntersections())
	fmt.Fprintf(w, "Roads                : %d\n", m.NumRoads())
	fmt.Fprintf(w, "Lanes                : %d\n", m.NumLanes())
	fmt.Fprintf(w, "Turns                : %d\n", m.NumTurns())
	fmt.Fprintf(w, "Compatible Pairs     : %d\n", len(m.CompatiblePairs()))
	fmt.Fprintf(w, "Parking Lots         : %d (%d spots)\n", m.NumParkingLots(), m.NumSpots())
	fmt.Fprintf(w, "Bus Routes           : %d (%d stops)\n", m.NumBusRoutes(), m.NumBusStops())
	if scenarioPath == "" {
		return nil
	}
	sc, err := workload.LoadScenario(scenarioPath)
	if err != nil {
		return err
	}
	trips := 0
	for _, p := range sc.Persons {
		trips += len(p.Trips)
		for i, t := range p.Trips {
			for _, pos := range []mapmodel.Position{t.Start, t.End} {
				if !m.HasLane(pos.Lane) {
					return fmt.Errorf("person %d trip %d: %s is not on the map", p.ID, i, pos.Lane)
				}
			}
		}
	}
	fmt.Fprintf(w, "Scenario             : %d persons, %d trips\n", len(sc.Persons), trips)
	if sc.Random != nil {
		fmt.Fprintf(w, "Random Persons       : %d\n", sc.Random.Persons)
	}
	return nil
}

func init() {
	validateCmd.Flags().StringVar(&validateMap, "map", "", "Road network YAML")
	validateCmd.Flags().StringVar(&validateScenario, "scenario", "", "Scenario YAML to check against the map")
	_ = validateCmd.MarkFlagRequired("map")
}
