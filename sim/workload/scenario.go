// Package workload turns scenario files and random trip generators into
// calls to Simulator.SpawnTrip.
package workload

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/traffic-sim/traffic-sim/sim"
	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Scenario is the demand of a run: explicit itineraries and, optionally,
// randomly generated ones. Loaded from YAML via LoadScenario(path).
type Scenario struct {
	Version string       `yaml:"version"`
	Persons []PersonSpec `yaml:"persons,omitempty"`
	Random  *RandomSpec  `yaml:"random,omitempty"`
}

// PersonSpec is one person's itinerary, run in order.
type PersonSpec struct {
	ID    agent.PersonID `yaml:"id"`
	Trips []TripEntry    `yaml:"trips"`
}

// TripEntry is one trip of a scenario file.
type TripEntry struct {
	Mode    agent.TripMode    `yaml:"mode"`
	Start   mapmodel.Position `yaml:"start"`
	End     mapmodel.Position `yaml:"end"`
	DepartS float64           `yaml:"depart_s"`
}

// Spec converts the entry to what the simulator takes.
func (e TripEntry) Spec() agent.TripSpec {
	return agent.TripSpec{Mode: e.Mode, Start: e.Start, End: e.End, Departure: mapmodel.SecondsToTicks(e.DepartS)}
}

// ArrivalSpec configures the process generated departures follow.
type ArrivalSpec struct {
	Process string   `yaml:"process"`
	CV      *float64 `yaml:"cv,omitempty"`
}

var validArrivalProcesses = map[string]bool{"": true, "poisson": true, "gamma": true, "constant": true}

// LoadScenario reads a YAML scenario. Unknown keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if sc.Version == "" {
		sc.Version = "1"
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario without a map. Lane references are checked
// by the simulator when trips are spawned.
func (sc *Scenario) Validate() error {
	var errs []error
	if sc.Version != "1" {
		errs = append(errs, fmt.Errorf("unsupported scenario version %q", sc.Version))
	}
	if len(sc.Persons) == 0 && sc.Random == nil {
		errs = append(errs, errors.New("scenario has neither persons nor a random section"))
	}
	seen := make(map[agent.PersonID]bool, len(sc.Persons))
	for i, p := range sc.Persons {
		prefix := fmt.Sprintf("persons[%d]", i)
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate person id %d", prefix, p.ID))
		}
		seen[p.ID] = true
		if len(p.Trips) == 0 {
			errs = append(errs, fmt.Errorf("%s: no trips", prefix))
		}
		for j, t := range p.Trips {
			if math.IsNaN(t.DepartS) || math.IsInf(t.DepartS, 0) || t.DepartS < 0 {
				errs = append(errs, fmt.Errorf("%s.trips[%d].depart_s must be a finite non-negative number, got %v", prefix, j, t.DepartS))
			}
		}
	}
	if sc.Random != nil {
		errs = append(errs, sc.Random.validate())
	}
	return errors.Join(errs...)
}

// Apply spawns the scenario into a simulator: explicit persons in id order,
// then the generated ones. Generated persons are numbered after the highest
// explicit id unless the random section sets first_person. Every trip is
// checked against the simulator first, so a rejected scenario spawns nothing.
func (sc *Scenario) Apply(s *sim.Simulator) ([]agent.TripID, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	plans, err := sc.plans(s)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		for i, spec := range p.Trips {
			if err := s.CheckTrip(spec); err != nil {
				return nil, fmt.Errorf("person %d trip %d: %w", p.Person, i, err)
			}
		}
	}

	var ids []agent.TripID
	for _, p := range plans {
		got, err := s.SpawnTrip(p.Person, p.Trips)
		if err != nil {
			return ids, fmt.Errorf("person %d: %w", p.Person, err)
		}
		ids = append(ids, got...)
	}
	log.Infof("scenario applied: %d trips for %d persons", len(ids), len(plans))
	return ids, nil
}

// plans lists the itineraries of the scenario in spawn order.
func (sc *Scenario) plans(s *sim.Simulator) ([]Plan, error) {
	persons := slices.Clone(sc.Persons)
	slices.SortFunc(persons, func(a, b PersonSpec) int { return cmp.Compare(a.ID, b.ID) })

	plans := make([]Plan, 0, len(persons))
	explicit := make(map[agent.PersonID]bool, len(persons))
	for _, p := range persons {
		explicit[p.ID] = true
		specs := make([]agent.TripSpec, len(p.Trips))
		for i, t := range p.Trips {
			specs[i] = t.Spec()
		}
		plans = append(plans, Plan{Person: p.ID, Trips: specs})
	}
	if sc.Random == nil {
		return plans, nil
	}

	spec := *sc.Random
	if spec.FirstPerson == 0 && len(persons) > 0 {
		spec.FirstPerson = persons[len(persons)-1].ID + 1
	}
	seed := s.Config().Run.Seed
	if spec.Seed != nil {
		seed = *spec.Seed
	}
	generated, err := NewGenerator(s.Map(), spec, seed).Generate()
	if err != nil {
		return nil, err
	}
	for _, p := range generated {
		if explicit[p.Person] {
			return nil, fmt.Errorf("generated person %d collides with an explicit one", p.Person)
		}
	}
	return append(plans, generated...), nil
}
