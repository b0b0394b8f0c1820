package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

var (
	routeMap  string
	routeFrom string
	routeTo   string
	routeMode string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Print the cheapest path between two positions",
	Run: func(cmd *cobra.Command, args []string) {
		if err := printRoute(cmd.OutOrStdout(), routeMap, routeFrom, routeTo, routeMode); err != nil {
			logrus.Fatalf("Route failed: %v", err)
		}
	},
}

// parsePosition parses "lane:dist", e.g. "12:40.5".
func parsePosition(s string) (mapmodel.Position, error) {
	laneStr, distStr, ok := strings.Cut(s, ":")
	if !ok {
		return mapmodel.Position{}, fmt.Errorf("position %q: want lane:dist", s)
	}
	lane, err := strconv.Atoi(laneStr)
	if err != nil {
		return mapmodel.Position{}, fmt.Errorf("position %q: bad lane: %w", s, err)
	}
	dist, err := strconv.ParseFloat(distStr, 64)
	if err != nil {
		return mapmodel.Position{}, fmt.Errorf("position %q: bad distance: %w", s, err)
	}
	return mapmodel.Position{Lane: mapmodel.LaneID(lane), Dist: dist}, nil
}

func printRoute(w io.Writer, mapPath, from, to, modeName string) error {
	m, err := mapmodel.LoadFile(mapPath)
	if err != nil {
		return err
	}
	src, err := parsePosition(from)
	if err != nil {
		return err
	}
	dst, err := parsePosition(to)
	if err != nil {
		return err
	}
	mode, err := pathfind.ParseMode(modeName)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	p, err := pathfind.New(m, cfg.Movement.Speeds).Route(src, dst, mode)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, p)
	fmt.Fprintf(w, "Expected time: %.1f s over %d lanes and %d turns\n",
		mapmodel.TicksToSeconds(p.Cost), len(p.Lanes()), len(p.Turns()))
	return nil
}

func init() {
	routeCmd.Flags().StringVar(&routeMap, "map", "", "Road network YAML")
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "Source position as lane:dist")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "Destination position as lane:dist")
	routeCmd.Flags().StringVar(&routeMode, "mode", "car", "Travel mode (pedestrian, car, bike, bus)")
	routeCmd.Flags().StringVar(&configPath, "config", "", "Simulator config file for mode speeds")
	for _, f := range []string{"map", "from", "to"} {
		_ = routeCmd.MarkFlagRequired(f)
	}
}
