package agent

import (
	"fmt"
	"slices"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

// VehicleType distinguishes kinds of cars.
type VehicleType uint8

const (
	VehicleCar VehicleType = iota
	VehicleBike
	VehicleBus
)

var vehicleTypeNames = [...]string{"car", "bike", "bus"}

func (v VehicleType) String() string {
	if int(v) < len(vehicleTypeNames) {
		return vehicleTypeNames[v]
	}
	return fmt.Sprintf("VehicleType(%d)", uint8(v))
}

func (v VehicleType) MarshalText() ([]byte, error) {
	if int(v) >= len(vehicleTypeNames) {
		return nil, fmt.Errorf("invalid vehicle type %d", uint8(v))
	}
	return []byte(vehicleTypeNames[v]), nil
}

func (v *VehicleType) UnmarshalText(b []byte) error {
	for i, n := range vehicleTypeNames {
		if n == string(b) {
			*v = VehicleType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown vehicle type %q", b)
}

// AllVehicleTypes lists every VehicleType.
func AllVehicleTypes() []VehicleType { return []VehicleType{VehicleCar, VehicleBike, VehicleBus} }

// PathMode is the routing mode of the vehicle.
func (v VehicleType) PathMode() pathfind.Mode {
	switch v {
	case VehicleBike:
		return pathfind.Bike
	case VehicleBus:
		return pathfind.Bus
	}
	return pathfind.Car
}

// Movement is the state shared by cars and pedestrians: where the agent is,
// what it is doing and the path it follows.
type Movement struct {
	Pos    mapmodel.Position `json:"pos"`
	Status Status            `json:"status"`
	Path   *pathfind.Path    `json:"path,omitempty"`
	// Cursor indexes the path step being traversed.
	Cursor int    `json:"cursor"`
	Trip   TripID `json:"trip"`
	// Turn is the turn requested or held at the end of the current lane.
	Turn    mapmodel.TurnID `json:"turn"`
	HasTurn bool            `json:"has_turn"`
	Granted bool            `json:"granted"`
	// Since is when the agent entered its current step.
	Since int64 `json:"since"`
}

// Apply fires a state machine event.
func (m *Movement) Apply(e Event) error {
	next, err := Next(m.Status, e)
	if err != nil {
		return err
	}
	m.Status = next
	return nil
}

// Step returns the path step being traversed.
func (m *Movement) Step() (pathfind.Step, bool) {
	if m.Path == nil || m.Cursor < 0 || m.Cursor >= len(m.Path.Steps) {
		return pathfind.Step{}, false
	}
	return m.Path.Steps[m.Cursor], true
}

// Follow starts a new path from its first step.
func (m *Movement) Follow(p *pathfind.Path, now int64) {
	m.Path = p
	m.Cursor = 0
	m.Pos = p.Start
	m.Since = now
	m.HasTurn = false
	m.Granted = false
}

// LastLane reports whether the cursor is on the final step of the path.
func (m *Movement) LastLane() bool {
	return m.Path != nil && m.Cursor == len(m.Path.Steps)-1
}

// Car is a vehicle on the road network.
type Car struct {
	ID      CarID       `json:"id"`
	Owner   PersonID    `json:"owner"`
	Vehicle VehicleType `json:"vehicle"`
	Movement
	// Spot is the spot the car is parked in or maneuvering into.
	Spot    mapmodel.SpotID `json:"spot"`
	HasSpot bool            `json:"has_spot"`
	// A route bus serves the stop at StopIndex of Route, carrying Riders in
	// boarding order.
	Route     mapmodel.BusRouteID `json:"route,omitempty"`
	HasRoute  bool                `json:"has_route,omitempty"`
	StopIndex int                 `json:"stop_index,omitempty"`
	Riders    []TripID            `json:"riders,omitempty"`
}

// DropRider removes a trip from the riders, reporting whether it was aboard.
func (c *Car) DropRider(id TripID) bool {
	i := slices.Index(c.Riders, id)
	if i < 0 {
		return false
	}
	c.Riders = slices.Delete(c.Riders, i, i+1)
	return true
}

// Pedestrian is a person walking on sidewalks.
type Pedestrian struct {
	ID    PedestrianID `json:"id"`
	Owner PersonID     `json:"owner"`
	Movement
}

// Person owns an ordered itinerary of trips and at most one car.
type Person struct {
	ID    PersonID `json:"id"`
	Trips []TripID `json:"trips"`
	// Next is the index in Trips of the next trip to start.
	Next   int   `json:"next"`
	Active bool  `json:"active"`
	Car    CarID `json:"car"`
	HasCar bool  `json:"has_car"`
}

// Pending returns the next trip not yet started.
func (p *Person) Pending() (TripID, bool) {
	if p.Next >= len(p.Trips) {
		return 0, false
	}
	return p.Trips[p.Next], true
}

// State is the externally visible snapshot of one agent.
type State struct {
	ID      AgentID           `json:"id"`
	Owner   PersonID          `json:"owner"`
	Vehicle *VehicleType      `json:"vehicle,omitempty"`
	Pos     mapmodel.Position `json:"pos"`
	Status  Status            `json:"status"`
	Trip    TripID            `json:"trip"`
}

// State returns the visible state of the car.
func (c *Car) State() State {
	v := c.Vehicle
	return State{ID: c.ID.Agent(), Owner: c.Owner, Vehicle: &v, Pos: c.Pos, Status: c.Status, Trip: c.Trip}
}

// State returns the visible state of the pedestrian.
func (p *Pedestrian) State() State {
	return State{ID: p.ID.Agent(), Owner: p.Owner, Pos: p.Pos, Status: p.Status, Trip: p.Trip}
}
