package workload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/internal/testutil"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

func commuteYAML(c *testutil.Crossroads) string {
	return fmt.Sprintf(`
version: "1"
persons:
  - id: 7
    trips:
      - mode: drive
        start: {lane: %d, dist: 0}
        end: {lane: %d, dist: 90}
        depart_s: 5
      - mode: drive
        start: {lane: %d, dist: 90}
        end: {lane: %d, dist: 60}
        depart_s: 600
  - id: 3
    trips:
      - mode: walk
        start: {lane: %d, dist: 10}
        end: {lane: %d, dist: 50}
        depart_s: 0
`, c.In[testutil.South], c.WalkOut[testutil.North], c.WalkOut[testutil.North], c.WalkOut[testutil.South],
		c.WalkIn[testutil.West], c.WalkOut[testutil.East])
}

func TestParseScenario_ExplicitPersons(t *testing.T) {
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())

	sc, err := ParseScenario([]byte(commuteYAML(c)))

	require.NoError(t, err)
	assert.Equal(t, "1", sc.Version)
	require.Len(t, sc.Persons, 2)
	p := sc.Persons[0]
	assert.Equal(t, agent.PersonID(7), p.ID)
	require.Len(t, p.Trips, 2)
	assert.Equal(t, agent.Drive, p.Trips[0].Mode)
	assert.Equal(t, mapmodel.Position{Lane: c.In[testutil.South], Dist: 0}, p.Trips[0].Start)
	assert.Equal(t, mapmodel.SecondsToTicks(600), p.Trips[1].Spec().Departure)
	assert.Nil(t, sc.Random)
}

func TestParseScenario_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseScenario([]byte(`
persons:
  - id: 1
    trips:
      - mode: walk
        start: {lane: 0, dist: 0}
        end: {lane: 0, dist: 5}
        depart: 3
`))
	assert.ErrorContains(t, err, "depart")
}

func TestParseScenario_RejectsUnknownMode(t *testing.T) {
	_, err := ParseScenario([]byte(`
persons:
  - id: 1
    trips:
      - mode: teleport
        start: {lane: 0, dist: 0}
        end: {lane: 0, dist: 5}
`))
	assert.ErrorContains(t, err, "teleport")
}

func TestScenario_Validate_ReportsEveryProblem(t *testing.T) {
	sc := &Scenario{
		Version: "2",
		Persons: []PersonSpec{
			{ID: 1, Trips: []TripEntry{{Mode: agent.Walk, DepartS: -1}}},
			{ID: 1},
		},
		Random: &RandomSpec{Persons: 0, RatePerHour: 10, Modes: map[string]float64{"hover": 1}},
	}

	err := sc.Validate()

	require.Error(t, err)
	for _, want := range []string{
		`unsupported scenario version "2"`,
		"persons[0].trips[0].depart_s",
		"persons[1]: duplicate person id 1",
		"persons[1]: no trips",
		"random.persons",
		"random.modes",
	} {
		assert.ErrorContains(t, err, want)
	}
	assert.Error(t, (&Scenario{Version: "1"}).Validate())
}

func TestLoadScenario_File(t *testing.T) {
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(commuteYAML(c)), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Len(t, sc.Persons, 2)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func newSim(c *testutil.Crossroads) *sim.Simulator {
	cfg := sim.DefaultConfig()
	cfg.Run.CheckInvariants = true
	return sim.NewSimulator(c.Map, cfg)
}

func TestScenario_Apply_SpawnsInPersonOrder(t *testing.T) {
	// GIVEN a scenario listing person 7 before person 3
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())
	sc, err := ParseScenario([]byte(commuteYAML(c)))
	require.NoError(t, err)
	s := newSim(c)

	// WHEN it is applied
	ids, err := sc.Apply(s)

	// THEN person 3's trip is issued first and every trip exists
	require.NoError(t, err)
	require.Len(t, ids, 3)
	first, err := s.TripState(ids[0])
	require.NoError(t, err)
	assert.Equal(t, agent.PersonID(3), first.Person)
	assert.Equal(t, agent.Walk, first.Spec.Mode)

	// AND the commute completes with the car reused on the way back
	require.NoError(t, s.AdvanceTo(context.Background(), mapmodel.SecondsToTicks(1800)))
	for _, id := range ids {
		tr, err := s.TripState(id)
		require.NoError(t, err)
		assert.Equal(t, agent.Finished, tr.Phase, "%s: %s", id, tr.Reason)
	}
}

func TestScenario_Apply_RandomPersonsNumberedAfterExplicit(t *testing.T) {
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())
	sc, err := ParseScenario([]byte(commuteYAML(c) + `
random:
  persons: 5
  rate_per_hour: 600
  modes: {walk: 1}
`))
	require.NoError(t, err)
	s := newSim(c)

	ids, err := sc.Apply(s)

	require.NoError(t, err)
	require.Len(t, ids, 8)
	last, err := s.TripState(ids[len(ids)-1])
	require.NoError(t, err)
	assert.Equal(t, agent.PersonID(12), last.Person)
}

func TestScenario_Apply_InvalidLaneFails(t *testing.T) {
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())
	sc := &Scenario{Version: "1", Persons: []PersonSpec{{
		ID:    1,
		Trips: []TripEntry{{Mode: agent.Walk, Start: mapmodel.Position{Lane: 500}, End: c.WalkOutPos(testutil.East, 5)}},
	}}}

	_, err := sc.Apply(newSim(c))

	assert.ErrorIs(t, err, sim.ErrInvalidTrip)
}

func TestScenario_Apply_RejectedScenarioSpawnsNothing(t *testing.T) {
	c := testutil.NewCrossroads(testutil.DefaultCrossroadsOptions())
	walk := TripEntry{Mode: agent.Walk, Start: c.WalkInPos(testutil.West, 10), End: c.WalkOutPos(testutil.East, 50)}
	tests := []struct {
		name string
		sc   *Scenario
		want string
	}{
		{
			name: "bad trip after good persons",
			sc: &Scenario{Version: "1", Persons: []PersonSpec{
				{ID: 1, Trips: []TripEntry{walk}},
				{ID: 2, Trips: []TripEntry{walk, {Mode: agent.Walk, Start: c.InPos(testutil.West, 10), End: walk.End}}},
			}},
			want: "person 2 trip 1",
		},
		{
			name: "generated person collides",
			sc: &Scenario{Version: "1",
				Persons: []PersonSpec{{ID: 1, Trips: []TripEntry{walk}}, {ID: 4, Trips: []TripEntry{walk}}},
				Random:  &RandomSpec{Persons: 3, RatePerHour: 600, Modes: map[string]float64{"walk": 1}, FirstPerson: 3},
			},
			want: "generated person 4 collides",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN a scenario whose later part cannot be spawned
			s := newSim(c)

			// WHEN it is applied
			ids, err := tc.sc.Apply(s)

			// THEN it is refused and the simulator holds no trips at all
			assert.ErrorContains(t, err, tc.want)
			assert.Empty(t, ids)
			assert.Empty(t, s.Trips())
			assert.NoError(t, s.Err())
		})
	}
}
