package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/testutil"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

// rideSouth is a transit trip from the north sidewalk to the south one, served
// by the north-south route.
func rideSouth(c *testutil.Crossroads, departS float64) agent.TripSpec {
	return tripSpec(agent.Transit, c.WalkInPos(testutil.North, 10), c.WalkOutPos(testutil.South, 80), departS)
}

func newTransitSim(t *testing.T, capacity int) (*Simulator, *testutil.Crossroads) {
	t.Helper()
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())
	cfg := DefaultConfig()
	cfg.Transit.Capacity = capacity
	cfg.Run.CheckInvariants = true
	return NewSimulator(c.Map, cfg), c
}

func TestSimulator_Transit_WalksWaitsRidesAndWalks(t *testing.T) {
	// GIVEN a transit trip requested at 10s with a 300s headway
	s, c := newCrossroadsSim(t, testutil.DefaultCrossroadsOptions())
	ids := spawn(t, s, 1, rideSouth(c, 10))

	// WHEN the rider has had time to walk to the stop
	runUntil(t, s, 100)

	// THEN it waits at the north stop for a ride to the south stop
	tr := tripOf(t, s, ids[0])
	assert.Equal(t, agent.WaitingForBus, tr.Phase)
	assert.Equal(t, c.InStop[testutil.North], tr.BoardStop)
	assert.Equal(t, c.OutStop[testutil.South], tr.AlightStop)
	// 30 m at 1.4 m/s
	assert.InDelta(t, 10+30/1.4, mapmodel.TicksToSeconds(tr.Timeline[2].Time), 0.01)

	// WHEN the run passes the next departure
	runUntil(t, s, 600)

	// THEN the rider boarded the 300s bus, got off at the south stop and walked on
	tr = tripOf(t, s, ids[0])
	assert.Equal(t, []agent.TripPhase{
		agent.DelayedStart, agent.Walking, agent.WaitingForBus, agent.RidingBus, agent.Walking, agent.Finished,
	}, phasesOf(tr), tr.Reason)
	assert.Equal(t, mapmodel.SecondsToTicks(300), tr.Timeline[3].Time)
	require.Len(t, tr.Legs, 3)
	assert.Equal(t, []agent.TripMode{agent.Walk, agent.Transit, agent.Walk},
		[]agent.TripMode{tr.Legs[0].Mode, tr.Legs[1].Mode, tr.Legs[2].Mode})
	assert.Equal(t, c.Map.BusStop(c.OutStop[testutil.South]).Sidewalk(), tr.Legs[2].Start)
	assert.False(t, tr.OnBus)

	// AND the bus left service at the last stop without another departure
	assert.Empty(t, s.AgentStates())
	assert.Empty(t, s.queue.Pending(scheduler.RouteActor(c.NorthSouth)))
	assert.Equal(t, 1, s.Metrics().BusesDispatched)
	assert.Equal(t, 1, s.Metrics().Boardings)
	assert.Empty(t, recordsOfKind(s, eventlog.TripFailed))
}

func TestSimulator_Transit_RidersShareABus(t *testing.T) {
	// GIVEN two riders who reach the north stop well before the 300s departure
	s, c := newCrossroadsSim(t, testutil.DefaultCrossroadsOptions())
	first := spawn(t, s, 1, rideSouth(c, 10))[0]
	second := spawn(t, s, 2, rideSouth(c, 100))[0]

	// WHEN the bus has come and gone
	runUntil(t, s, 600)

	// THEN both boarded the same bus at the same time and finished
	a, b := tripOf(t, s, first), tripOf(t, s, second)
	require.Equal(t, agent.Finished, a.Phase, a.Reason)
	require.Equal(t, agent.Finished, b.Phase, b.Reason)
	assert.Equal(t, a.Bus, b.Bus)
	assert.Equal(t, mapmodel.SecondsToTicks(300), a.Timeline[3].Time)
	assert.Equal(t, mapmodel.SecondsToTicks(300), b.Timeline[3].Time)

	// AND the log shows one bus taking both on and letting both off, in
	// order of arrival at the stop
	boarded := recordsOfKind(s, eventlog.BusBoarded)
	require.Len(t, boarded, 2)
	assert.Equal(t, a.Bus.Agent(), *boarded[0].Agent)
	assert.Equal(t, a.Bus.Agent(), *boarded[1].Agent)
	assert.Equal(t, first, *boarded[0].Trip)
	assert.Equal(t, second, *boarded[1].Trip)
	assert.Len(t, recordsFor(s, eventlog.BusAlighted, a.Bus.Agent()), 2)
	assert.Equal(t, 1, s.Metrics().BusesDispatched)
}

func TestSimulator_Transit_FullBusLeavesRiderForTheNext(t *testing.T) {
	// GIVEN single-seat buses and two waiting riders
	s, c := newTransitSim(t, 1)
	first := spawn(t, s, 1, rideSouth(c, 10))[0]
	second := spawn(t, s, 2, rideSouth(c, 100))[0]

	// WHEN two departures have passed
	runUntil(t, s, 900)

	// THEN the first rider took the 300s bus and the second the 600s one
	a, b := tripOf(t, s, first), tripOf(t, s, second)
	require.Equal(t, agent.Finished, a.Phase, a.Reason)
	require.Equal(t, agent.Finished, b.Phase, b.Reason)
	assert.Equal(t, mapmodel.SecondsToTicks(300), a.Timeline[3].Time)
	assert.Equal(t, mapmodel.SecondsToTicks(600), b.Timeline[3].Time)
	assert.NotEqual(t, a.Bus, b.Bus)
	assert.Equal(t, 2, s.Metrics().BusesDispatched)
	assert.Empty(t, s.AgentStates())
}

func TestSimulator_Transit_BoardsDwellingBus(t *testing.T) {
	// GIVEN a rider who reaches the stop just after the 300s bus pulled in
	s, c := newCrossroadsSim(t, testutil.DefaultCrossroadsOptions())
	id := spawn(t, s, 1, rideSouth(c, 280))[0]

	// WHEN the run continues past the dwell
	runUntil(t, s, 900)

	// THEN the rider got on the waiting bus the moment it arrived
	tr := tripOf(t, s, id)
	require.Equal(t, agent.Finished, tr.Phase, tr.Reason)
	assert.Equal(t, tr.Timeline[2].Time, tr.Timeline[3].Time)
	assert.Less(t, tr.Timeline[3].Time, mapmodel.SecondsToTicks(300+s.Config().Transit.Dwell))
	dispatched := recordsFor(s, eventlog.BusDispatched, tr.Bus.Agent())
	require.Len(t, dispatched, 1)
	assert.Equal(t, mapmodel.SecondsToTicks(300), dispatched[0].Time)
	assert.Empty(t, s.AgentStates())
}

func TestSimulator_Transit_CancelWhileRiding(t *testing.T) {
	// GIVEN a rider on a bus dwelling at the first stop
	s, c := newCrossroadsSim(t, testutil.DefaultCrossroadsOptions())
	id := spawn(t, s, 1, rideSouth(c, 10))[0]
	runUntil(t, s, 305)
	require.Equal(t, agent.RidingBus, tripOf(t, s, id).Phase)

	// WHEN the trip is cancelled
	require.NoError(t, s.CancelTrip(id))

	// THEN the rider is off the bus, which still runs to the end of its route
	tr := tripOf(t, s, id)
	assert.Equal(t, agent.Cancelled, tr.Phase)
	assert.False(t, tr.OnBus)
	require.NoError(t, s.CheckInvariants())
	st, err := s.GetAgentState(tr.Bus.Agent())
	require.NoError(t, err)
	assert.Equal(t, agent.NoPerson, st.Owner)
	runUntil(t, s, 600)
	assert.Empty(t, s.AgentStates())
	assert.Empty(t, recordsFor(s, eventlog.BusAlighted, tr.Bus.Agent()))
}

func TestSimulator_Transit_FailsWithoutRoute(t *testing.T) {
	// GIVEN a crossroads without bus service
	opts := testutil.DefaultCrossroadsOptions()
	opts.WithoutTransit = true
	s, c := newCrossroadsSim(t, opts)

	// WHEN a transit trip starts
	id := spawn(t, s, 1, rideSouth(c, 0))[0]
	runUntil(t, s, 10)

	// THEN it fails without halting the run
	tr := tripOf(t, s, id)
	assert.Equal(t, agent.Failed, tr.Phase)
	assert.Contains(t, tr.Reason, ErrNoTransitRoute.Error())
	assert.NoError(t, s.Err())
	assert.Zero(t, s.Metrics().BusesDispatched)
}

func TestSimulator_Transit_SnapshotMidRide(t *testing.T) {
	// GIVEN two riders, one on a bus between stops and one walking away
	s, c := newCrossroadsSim(t, testutil.DefaultCrossroadsOptions())
	spawn(t, s, 1, rideSouth(c, 10))
	spawn(t, s, 2, rideSouth(c, 100))
	runUntil(t, s, 312)
	data, err := s.Snapshot()
	require.NoError(t, err)
	mark := s.EventLog().NextSeq()

	// WHEN restored and both runs finish
	restored, err := Restore(c.Map, data)
	require.NoError(t, err)
	runUntil(t, s, 900)
	runUntil(t, restored, 900)

	// THEN they agree record for record
	assert.Equal(t, s.EventLog().Since(mark), restored.EventLog().Records())
	assert.Equal(t, s.Metrics().Boardings, restored.Metrics().Boardings)
	assert.True(t, restored.Idle())
}
