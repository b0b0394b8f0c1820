package sim

import (
	"errors"
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

// RunConfig groups run identity and extent.
type RunConfig struct {
	Seed    int64   `yaml:"seed" json:"seed"`           // master seed for workload generation
	Horizon float64 `yaml:"horizon_s" json:"horizon_s"` // seconds to simulate in the CLI (0 = until idle)
	// CheckInvariants re-verifies parking and arbiter invariants after every
	// event; a violation halts the run. Costly; meant for tests and debugging.
	CheckInvariants bool `yaml:"check_invariants" json:"check_invariants"`
}

// MovementConfig groups agent speeds and maneuver durations.
type MovementConfig struct {
	Speeds          pathfind.Speeds `yaml:"speeds" json:"speeds"`                         // top speed per mode (m/s), capped by lane limits
	ParkingManeuver float64         `yaml:"parking_maneuver_s" json:"parking_maneuver_s"` // seconds from reservation to occupied spot
}

// ParkingConfig groups the parking search around a drive trip's destination.
type ParkingConfig struct {
	InitialRadius float64 `yaml:"initial_radius_m" json:"initial_radius_m"` // first search radius (meters)
	MaxRadius     float64 `yaml:"max_radius_m" json:"max_radius_m"`         // the radius doubles up to this bound
}

// TransitConfig groups bus service parameters. Bus speed lives in MovementConfig.Speeds.Bus.
type TransitConfig struct {
	Headway  float64 `yaml:"headway_s" json:"headway_s"` // seconds between departures of a route that sets none
	Capacity int     `yaml:"capacity" json:"capacity"`   // riders per bus
	Dwell    float64 `yaml:"dwell_s" json:"dwell_s"`     // seconds a bus waits at each stop
}

// ArbiterConfig groups intersection arbitration parameters.
type ArbiterConfig struct {
	DefaultOccupancyCap int `yaml:"default_occupancy_cap" json:"default_occupancy_cap"` // concurrent grants when the map sets none
}

// TripConfig groups itinerary parameters.
type TripConfig struct {
	Gap float64 `yaml:"gap_s" json:"gap_s"` // minimum seconds between a trip ending and the next starting
}

// Config is the complete simulator configuration.
type Config struct {
	Run      RunConfig      `yaml:"run" json:"run"`
	Movement MovementConfig `yaml:"movement" json:"movement"`
	Parking  ParkingConfig  `yaml:"parking" json:"parking"`
	Transit  TransitConfig  `yaml:"transit" json:"transit"`
	Arbiter  ArbiterConfig  `yaml:"arbiter" json:"arbiter"`
	Trip     TripConfig     `yaml:"trip" json:"trip"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Run: RunConfig{Seed: 42, Horizon: 3600},
		Movement: MovementConfig{
			Speeds:          pathfind.Speeds{Pedestrian: 1.4, Car: 13.9, Bike: 5, Bus: 11},
			ParkingManeuver: 10,
		},
		Parking: ParkingConfig{InitialRadius: 100, MaxRadius: 800},
		Transit: TransitConfig{Headway: 300, Capacity: 40, Dwell: 10},
		Arbiter: ArbiterConfig{DefaultOccupancyCap: 16},
		Trip:    TripConfig{Gap: 0},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Run.Horizon >= 0, "run.horizon_s must be >= 0, got %v", c.Run.Horizon)
	for _, m := range pathfind.AllModes() {
		v := c.Movement.Speeds.For(m)
		check(v > 0, "movement.speeds.%s must be > 0, got %v", m, v)
	}
	check(c.Movement.ParkingManeuver >= 0, "movement.parking_maneuver_s must be >= 0, got %v", c.Movement.ParkingManeuver)
	check(c.Parking.InitialRadius > 0, "parking.initial_radius_m must be > 0, got %v", c.Parking.InitialRadius)
	check(c.Parking.MaxRadius >= c.Parking.InitialRadius,
		"parking.max_radius_m (%v) must be >= parking.initial_radius_m (%v)", c.Parking.MaxRadius, c.Parking.InitialRadius)
	check(c.Transit.Headway > 0, "transit.headway_s must be > 0, got %v", c.Transit.Headway)
	check(c.Transit.Capacity > 0, "transit.capacity must be > 0, got %d", c.Transit.Capacity)
	check(c.Transit.Dwell >= 0, "transit.dwell_s must be >= 0, got %v", c.Transit.Dwell)
	check(c.Arbiter.DefaultOccupancyCap > 0, "arbiter.default_occupancy_cap must be > 0, got %d", c.Arbiter.DefaultOccupancyCap)
	check(c.Trip.Gap >= 0, "trip.gap_s must be >= 0, got %v", c.Trip.Gap)
	return errors.Join(errs...)
}
