package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/agent"
)

func carActor(i uint32) Actor { return AgentActor(agent.CarID{Index: i}.Agent()) }

func mustSchedule(t *testing.T, q *Queue, e Event) Event {
	t.Helper()
	got, err := q.Schedule(e)
	require.NoError(t, err)
	return got
}

func drain(q *Queue) []Event {
	var out []Event
	for {
		e, ok := q.Next()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func TestQueue_TimestampOrdering(t *testing.T) {
	q := NewQueue()
	mustSchedule(t, q, Event{Time: 100, Kind: LaneEndReached, Actor: carActor(1)})
	mustSchedule(t, q, Event{Time: 50, Kind: LaneEndReached, Actor: carActor(2)})
	mustSchedule(t, q, Event{Time: 150, Kind: LaneEndReached, Actor: carActor(3)})

	got := drain(q)

	require.Len(t, got, 3)
	assert.Equal(t, []int64{50, 100, 150}, []int64{got[0].Time, got[1].Time, got[2].Time})
	assert.Equal(t, int64(150), q.Now())
}

func TestQueue_ActorThenKindRankThenSeq(t *testing.T) {
	// GIVEN same-time events from several actors in scrambled order
	q := NewQueue()
	ped := AgentActor(agent.PedestrianID{Index: 0}.Agent())
	mustSchedule(t, q, Event{Time: 10, Kind: LaneEndReached, Actor: ped})
	mustSchedule(t, q, Event{Time: 10, Kind: TurnRequested, Actor: carActor(4)})
	mustSchedule(t, q, Event{Time: 10, Kind: TurnCleared, Actor: carActor(4)})
	mustSchedule(t, q, Event{Time: 10, Kind: TripSpawned, Actor: TripActor(9)})
	mustSchedule(t, q, Event{Time: 10, Kind: SignalPhaseAdvance, Actor: IntersectionActor(3)})
	mustSchedule(t, q, Event{Time: 10, Kind: TurnRequested, Actor: carActor(4)})
	mustSchedule(t, q, Event{Time: 10, Kind: BusDwellEnded, Actor: carActor(4)})
	mustSchedule(t, q, Event{Time: 10, Kind: BusDispatched, Actor: RouteActor(1)})

	// WHEN drained
	got := drain(q)

	// THEN signals, routes, trips, cars and pedestrians run in that order; one
	// actor's events follow kind rank, then insertion order
	var seen []string
	for _, e := range got {
		seen = append(seen, e.Actor.String()+" "+e.Kind.String())
	}
	assert.Equal(t, []string{
		"intersection 3 signal_phase_advance",
		"route 1 bus_dispatched",
		"trip 9 trip_spawned",
		"car 4.0 turn_cleared",
		"car 4.0 bus_dwell_ended",
		"car 4.0 turn_requested",
		"car 4.0 turn_requested",
		"pedestrian 0.0 lane_end_reached",
	}, seen)
	assert.Less(t, got[5].Seq, got[6].Seq)
}

func TestQueue_RejectsPastEvents(t *testing.T) {
	// GIVEN a queue that has advanced to t=100
	q := NewQueue()
	mustSchedule(t, q, Event{Time: 100, Kind: TripSpawned, Actor: TripActor(1)})
	_, ok := q.Next()
	require.True(t, ok)

	// WHEN something is scheduled in the past
	_, err := q.Schedule(Event{Time: 99, Kind: TripSpawned, Actor: TripActor(2)})

	// THEN it is refused, while "now" is still allowed
	assert.ErrorIs(t, err, ErrNonMonotonicTime)
	mustSchedule(t, q, Event{Time: 100, Kind: TripSpawned, Actor: TripActor(2)})
}

func TestQueue_CancelActorKeepsRemainderOrder(t *testing.T) {
	// GIVEN interleaved events of two cars
	q := NewQueue()
	for i := int64(0); i < 6; i++ {
		mustSchedule(t, q, Event{Time: i * 10, Kind: LaneEndReached, Actor: carActor(uint32(i % 2))})
	}

	// WHEN car 1 is cancelled, and then cancelled again
	removed := q.CancelActor(carActor(1))
	again := q.CancelActor(carActor(1))

	// THEN only car 0 remains, in time order
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, again)
	assert.Empty(t, q.Pending(carActor(1)))
	got := drain(q)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, carActor(0), e.Actor)
		assert.Equal(t, int64(i*20), e.Time)
	}
}

func TestQueue_SnapshotRestorePreservesOrderAndSeq(t *testing.T) {
	// GIVEN a partly drained queue
	q := NewQueue()
	for i := uint32(0); i < 5; i++ {
		mustSchedule(t, q, Event{Time: int64(5 - i), Kind: LaneEndReached, Actor: carActor(i), Turn: 7})
	}
	_, _ = q.Next()

	// WHEN snapshotted through JSON and restored
	b, err := json.Marshal(q.Snapshot())
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(b, &st))
	r, err := Restore(st)
	require.NoError(t, err)

	// THEN both continue identically, including new sequence numbers
	assert.Equal(t, q.Now(), r.Now())
	e1 := mustSchedule(t, q, Event{Time: 3, Kind: TurnRequested, Actor: carActor(9)})
	e2 := mustSchedule(t, r, Event{Time: 3, Kind: TurnRequested, Actor: carActor(9)})
	assert.Equal(t, e1.Seq, e2.Seq)
	assert.Equal(t, drain(q), drain(r))
}

func TestRestore_RejectsInconsistentState(t *testing.T) {
	_, err := Restore(State{Now: 10, NextSeq: 5, Events: []Event{{Time: 9, Seq: 1}}})
	assert.ErrorIs(t, err, ErrNonMonotonicTime)

	_, err = Restore(State{Now: 0, NextSeq: 1, Events: []Event{{Time: 9, Seq: 1}}})
	assert.Error(t, err)
}

func TestKind_EveryKindHasRankAndName(t *testing.T) {
	ranks := map[int]bool{}
	for _, k := range AllKinds() {
		r, ok := KindRank[k]
		require.True(t, ok, "%s has no rank", k)
		assert.False(t, ranks[r], "rank %d used twice", r)
		ranks[r] = true

		b, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	assert.Len(t, KindRank, len(AllKinds()))
}

func TestActor_AgentRoundTrip(t *testing.T) {
	id := agent.PedestrianID{Index: 3, Gen: 2}.Agent()
	got, ok := AgentActor(id).Agent()
	require.True(t, ok)
	assert.Equal(t, id, got)
	_, ok = TripActor(1).Agent()
	assert.False(t, ok)
}
