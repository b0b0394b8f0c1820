// Package metrics aggregates run statistics for final reporting and exports
// live counters to Prometheus.
package metrics

import (
	"fmt"
	"io"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Metrics aggregates statistics about a run for final reporting.
type Metrics struct {
	TripsSpawned   int `json:"trips_spawned"`
	TripsFinished  int `json:"trips_finished"`
	TripsCancelled int `json:"trips_cancelled"`
	TripsFailed    int `json:"trips_failed"`

	TurnsGranted      int `json:"turns_granted"`
	TurnsDeferred     int `json:"turns_deferred"`
	ParkingRejections int `json:"parking_rejections"`
	Reroutes          int `json:"reroutes"`
	BusesDispatched   int `json:"buses_dispatched"`
	Boardings         int `json:"boardings"`

	// IntersectionWait is the total time agents spent queued at intersections.
	IntersectionWait int64 `json:"intersection_wait"`
	PeakAgents       int   `json:"peak_agents"`

	// TripDurations maps finished trips to their door-to-door time in ticks.
	TripDurations map[agent.TripID]int64 `json:"trip_durations"`
}

// NewMetrics creates empty metrics.
func NewMetrics() *Metrics {
	return &Metrics{TripDurations: make(map[agent.TripID]int64)}
}

// ObserveAgents tracks the peak number of live agents.
func (m *Metrics) ObserveAgents(n int) {
	m.PeakAgents = max(m.PeakAgents, n)
}

// Summary describes finished trip durations in seconds.
type Summary struct {
	Finished int     `json:"finished"`
	Mean     float64 `json:"mean_s"`
	StdDev   float64 `json:"stddev_s"`
	P50      float64 `json:"p50_s"`
	P90      float64 `json:"p90_s"`
	P99      float64 `json:"p99_s"`
	Max      float64 `json:"max_s"`
}

// Summarize computes the trip duration summary. Zero-valued with no finished trips.
func (m *Metrics) Summarize() Summary {
	if len(m.TripDurations) == 0 {
		return Summary{}
	}
	xs := make([]float64, 0, len(m.TripDurations))
	for _, d := range m.TripDurations {
		xs = append(xs, mapmodel.TicksToSeconds(d))
	}
	slices.Sort(xs)
	s := Summary{
		Finished: len(xs),
		Mean:     stat.Mean(xs, nil),
		P50:      stat.Quantile(0.5, stat.Empirical, xs, nil),
		P90:      stat.Quantile(0.9, stat.Empirical, xs, nil),
		P99:      stat.Quantile(0.99, stat.Empirical, xs, nil),
		Max:      xs[len(xs)-1],
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	return s
}

// Print writes the end-of-run report.
func (m *Metrics) Print(w io.Writer, now int64) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Simulated Time       : %.1f s\n", mapmodel.TicksToSeconds(now))
	fmt.Fprintf(w, "Trips Spawned        : %d\n", m.TripsSpawned)
	fmt.Fprintf(w, "Trips Finished       : %d\n", m.TripsFinished)
	fmt.Fprintf(w, "Trips Cancelled      : %d\n", m.TripsCancelled)
	fmt.Fprintf(w, "Trips Failed         : %d\n", m.TripsFailed)
	fmt.Fprintf(w, "Turns Granted        : %d (%d deferred)\n", m.TurnsGranted, m.TurnsDeferred)
	fmt.Fprintf(w, "Parking Rejections   : %d\n", m.ParkingRejections)
	fmt.Fprintf(w, "Reroutes             : %d\n", m.Reroutes)
	fmt.Fprintf(w, "Peak Agents          : %d\n", m.PeakAgents)
	if m.BusesDispatched > 0 {
		fmt.Fprintf(w, "Buses Dispatched     : %d (%d boardings)\n", m.BusesDispatched, m.Boardings)
	}
	if m.TurnsGranted > 0 {
		fmt.Fprintf(w, "Average Turn Wait    : %.2f s\n", mapmodel.TicksToSeconds(m.IntersectionWait)/float64(m.TurnsGranted))
	}
	if s := m.Summarize(); s.Finished > 0 {
		fmt.Fprintf(w, "Trip Duration        : mean %.1f s, p50 %.1f s, p90 %.1f s, p99 %.1f s, max %.1f s\n",
			s.Mean, s.P50, s.P90, s.P99, s.Max)
	}
}
