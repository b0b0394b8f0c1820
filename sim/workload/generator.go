package workload

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"golang.org/x/exp/rand"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

// RandomSpec configures generated demand.
type RandomSpec struct {
	// Seed overrides the run seed for generation.
	Seed *int64 `yaml:"seed,omitempty"`
	// Persons is the number of generated persons, one first departure each.
	Persons int `yaml:"persons"`
	// RatePerHour is the mean rate of first departures.
	RatePerHour float64     `yaml:"rate_per_hour"`
	Arrival     ArrivalSpec `yaml:"arrival"`
	// HorizonS stops generation at the first departure past it (0 = none).
	HorizonS float64 `yaml:"horizon_s,omitempty"`
	// Modes weighs each trip mode by name (walk, drive, bike, transit).
	Modes map[string]float64 `yaml:"modes"`
	// RoundTrip is the probability that a person travels back afterwards.
	RoundTrip float64 `yaml:"round_trip,omitempty"`
	// DwellS is the earliest departure of the way back after the first departure.
	DwellS      float64        `yaml:"dwell_s,omitempty"`
	FirstPerson agent.PersonID `yaml:"first_person,omitempty"`
}

func (r *RandomSpec) validate() error {
	var errs []error
	if r.Persons <= 0 {
		errs = append(errs, fmt.Errorf("random.persons must be positive, got %d", r.Persons))
	}
	if !(r.RatePerHour > 0) || math.IsInf(r.RatePerHour, 0) {
		errs = append(errs, fmt.Errorf("random.rate_per_hour must be a finite positive number, got %v", r.RatePerHour))
	}
	if !validArrivalProcesses[r.Arrival.Process] {
		errs = append(errs, fmt.Errorf("random.arrival.process %q unknown; valid: poisson, gamma, constant", r.Arrival.Process))
	}
	if r.Arrival.CV != nil && !(*r.Arrival.CV > 0) {
		errs = append(errs, fmt.Errorf("random.arrival.cv must be positive, got %v", *r.Arrival.CV))
	}
	if r.HorizonS < 0 || r.DwellS < 0 {
		errs = append(errs, errors.New("random.horizon_s and random.dwell_s must not be negative"))
	}
	if r.RoundTrip < 0 || r.RoundTrip > 1 {
		errs = append(errs, fmt.Errorf("random.round_trip must be in [0, 1], got %v", r.RoundTrip))
	}
	var total float64
	for name, w := range r.Modes {
		var m agent.TripMode
		if err := m.UnmarshalText([]byte(name)); err != nil {
			errs = append(errs, fmt.Errorf("random.modes: %w", err))
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Errorf("random.modes.%s must be a finite non-negative weight, got %v", name, w))
			continue
		}
		total += w
	}
	if total <= 0 {
		errs = append(errs, errors.New("random.modes needs at least one positive weight"))
	}
	return errors.Join(errs...)
}

// Plan is the generated itinerary of one person.
type Plan struct {
	Person agent.PersonID
	Trips  []agent.TripSpec
}

// lanePool holds the lanes a mode may start and end on.
type lanePool struct {
	starts, ends []mapmodel.LaneID
}

// Generator draws random itineraries over a map. Deterministic given the
// map, spec and seed.
type Generator struct {
	m     *mapmodel.Map
	spec  RandomSpec
	rng   *sim.PartitionedRNG
	pools map[agent.TripMode]lanePool
}

// NewGenerator prepares a generator; lanes are grouped per mode once.
func NewGenerator(m *mapmodel.Map, spec RandomSpec, seed int64) *Generator {
	lanes := lo.Map(lo.Range(m.NumLanes()), func(i int, _ int) mapmodel.LaneID { return mapmodel.LaneID(i) })
	usable := func(mode pathfind.Mode) []mapmodel.LaneID {
		return lo.Filter(lanes, func(l mapmodel.LaneID, _ int) bool { return mode.CanUseLane(m.Lane(l).Type()) })
	}
	sidewalks := usable(pathfind.Pedestrian)
	pools := map[agent.TripMode]lanePool{
		agent.Walk:    {starts: sidewalks, ends: sidewalks},
		agent.Drive:   {starts: usable(pathfind.Car), ends: sidewalks},
		agent.Bike:    {starts: usable(pathfind.Bike), ends: usable(pathfind.Bike)},
		agent.Transit: {starts: sidewalks, ends: sidewalks},
	}
	return &Generator{
		m:     m,
		spec:  spec,
		rng:   sim.NewPartitionedRNG(seed),
		pools: pools,
	}
}

// Generate returns one plan per person in person order. Departures are
// increasing; modes the map cannot serve are left out.
func (g *Generator) Generate() ([]Plan, error) {
	if err := g.spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid random spec: %w", err)
	}
	modes, weights := g.modeWeights()
	if len(modes) == 0 {
		return nil, errors.New("no requested mode can travel on this map")
	}
	pick := g.rng.Stream(sim.StreamWorkload)
	gaps := g.rng.Stream(sim.StreamDeparture)
	sampler := NewDepartureSampler(g.spec.Arrival, g.spec.RatePerHour)
	horizon := mapmodel.SecondsToTicks(g.spec.HorizonS)

	plans := make([]Plan, 0, g.spec.Persons)
	var t int64
	for i := 0; i < g.spec.Persons; i++ {
		t += sampler.SampleGap(gaps)
		if horizon > 0 && t >= horizon {
			break
		}
		mode := modes[discrete(pick, weights)]
		pool := g.pools[mode]
		out := agent.TripSpec{
			Mode:      mode,
			Start:     g.position(pick, pool.starts),
			End:       g.position(pick, pool.ends),
			Departure: t,
		}
		id := g.spec.FirstPerson + agent.PersonID(i)
		plan := Plan{Person: id, Trips: []agent.TripSpec{out}}

		own := g.rng.Stream(sim.PersonStream(id))
		if own.Float64() < g.spec.RoundTrip {
			back := agent.TripSpec{
				Mode:      mode,
				Start:     out.End,
				End:       out.Start,
				Departure: t + mapmodel.SecondsToTicks(g.spec.DwellS),
			}
			if mode == agent.Drive {
				// The car waits near the first destination; the driver ends on foot.
				back.End = g.position(own, g.pools[agent.Walk].ends)
			}
			plan.Trips = append(plan.Trips, back)
		}
		plans = append(plans, plan)
	}
	log.Infof("generated %d persons (%d trips) up to %.0fs", len(plans),
		lo.SumBy(plans, func(p Plan) int { return len(p.Trips) }), mapmodel.TicksToSeconds(t))
	return plans, nil
}

// modeWeights lists the servable modes with positive weight in mode order,
// so that map iteration order never reaches the random streams.
func (g *Generator) modeWeights() ([]agent.TripMode, []float64) {
	var modes []agent.TripMode
	var weights []float64
	for _, m := range agent.AllTripModes() {
		w := g.spec.Modes[m.String()]
		if w <= 0 {
			continue
		}
		if p := g.pools[m]; len(p.starts) == 0 || len(p.ends) == 0 {
			log.Warnf("no lanes for %s trips on map %s; dropping the mode", m, g.m.Version())
			continue
		}
		modes = append(modes, m)
		weights = append(weights, w)
	}
	return modes, weights
}

// position draws a uniform lane of the pool and a uniform distance along it.
func (g *Generator) position(rng *rand.Rand, pool []mapmodel.LaneID) mapmodel.Position {
	l := pool[rng.Intn(len(pool))]
	return mapmodel.Position{Lane: l, Dist: rng.Float64() * g.m.Lane(l).Length()}
}

// discrete draws an index with probability proportional to its weight.
func discrete(rng *rand.Rand, weights []float64) int {
	r := lo.Sum(weights) * rng.Float64()
	var acc float64
	for i, w := range weights {
		acc += w
		if acc > r {
			return i
		}
	}
	return len(weights) - 1
}
