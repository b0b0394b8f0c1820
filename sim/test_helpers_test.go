package sim

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/testutil"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// newCrossroadsSim builds a simulator on a generated crossroads that checks
// its invariants after every event.
func newCrossroadsSim(t *testing.T, opts testutil.CrossroadsOptions) (*Simulator, *testutil.Crossroads) {
	t.Helper()
	c := testutil.NewCrossroads(opts)
	cfg := DefaultConfig()
	cfg.Run.CheckInvariants = true
	return NewSimulator(c.Map, cfg), c
}

func tripSpec(mode agent.TripMode, from, to mapmodel.Position, departS float64) agent.TripSpec {
	return agent.TripSpec{Mode: mode, Start: from, End: to, Departure: mapmodel.SecondsToTicks(departS)}
}

func spawn(t *testing.T, s *Simulator, person agent.PersonID, specs ...agent.TripSpec) []agent.TripID {
	t.Helper()
	ids, err := s.SpawnTrip(person, specs)
	require.NoError(t, err)
	return ids
}

func runUntil(t *testing.T, s *Simulator, seconds float64) {
	t.Helper()
	require.NoError(t, s.AdvanceTo(context.Background(), mapmodel.SecondsToTicks(seconds)))
}

func tripOf(t *testing.T, s *Simulator, id agent.TripID) agent.Trip {
	t.Helper()
	tr, err := s.TripState(id)
	require.NoError(t, err)
	return tr
}

// tripCar is the last car that carried a trip.
func tripCar(t *testing.T, s *Simulator, id agent.TripID) agent.AgentID {
	t.Helper()
	tr := tripOf(t, s, id)
	require.True(t, tr.Car != agent.CarID{} || tr.HasCar, "%s never had a car", id)
	return tr.Car.Agent()
}

func phasesOf(tr agent.Trip) []agent.TripPhase {
	return lo.Map(tr.Timeline, func(p agent.PhaseChange, _ int) agent.TripPhase { return p.Phase })
}

// recordsFor returns the records of one kind that name the agent.
func recordsFor(s *Simulator, kind eventlog.Kind, id agent.AgentID) []eventlog.Record {
	return lo.Filter(s.EventLog().Records(), func(r eventlog.Record, _ int) bool {
		return r.Kind == kind && r.Agent != nil && *r.Agent == id
	})
}

func recordsOfKind(s *Simulator, kind eventlog.Kind) []eventlog.Record {
	return lo.Filter(s.EventLog().Records(), func(r eventlog.Record, _ int) bool { return r.Kind == kind })
}

// mixedScenario spawns one trip per mode plus a person who drives, parks and
// later drives on from the parked car.
func mixedScenario(t *testing.T, s *Simulator, c *testutil.Crossroads) []agent.TripID {
	t.Helper()
	var ids []agent.TripID
	ids = append(ids, spawn(t, s, 1, tripSpec(agent.Walk, c.WalkInPos(testutil.West, 10), c.WalkOutPos(testutil.East, 50), 0))...)
	ids = append(ids, spawn(t, s, 2, tripSpec(agent.Bike, c.InPos(testutil.East, 0), c.OutPos(testutil.West, 60), 1))...)
	ids = append(ids, spawn(t, s, 3, tripSpec(agent.Transit, c.WalkInPos(testutil.North, 10), c.WalkOutPos(testutil.South, 80), 2))...)
	ids = append(ids, spawn(t, s, 4, tripSpec(agent.Drive, c.InPos(testutil.South, 0), c.WalkOutPos(testutil.North, 90), 0.5))...)
	ids = append(ids, spawn(t, s, 5,
		tripSpec(agent.Drive, c.InPos(testutil.West, 20), c.WalkOutPos(testutil.South, 60), 0),
		tripSpec(agent.Drive, c.WalkOutPos(testutil.South, 60), c.WalkOutPos(testutil.North, 20), 0),
	)...)
	return ids
}
