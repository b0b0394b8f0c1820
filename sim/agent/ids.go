// Package agent holds the agent and trip model: identifiers, cars,
// pedestrians, persons, trips and their explicit state machines.
//
// The package is pure data plus transition tables; the simulator drives it.
package agent

import (
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
)

// AgentType distinguishes the agent registries.
type AgentType uint8

const (
	AgentCar AgentType = iota
	AgentPedestrian
)

var agentTypeNames = [...]string{"car", "pedestrian"}

func (t AgentType) String() string {
	if int(t) < len(agentTypeNames) {
		return agentTypeNames[t]
	}
	return fmt.Sprintf("AgentType(%d)", uint8(t))
}

func (t AgentType) MarshalText() ([]byte, error) {
	if int(t) >= len(agentTypeNames) {
		return nil, fmt.Errorf("invalid agent type %d", uint8(t))
	}
	return []byte(agentTypeNames[t]), nil
}

func (t *AgentType) UnmarshalText(b []byte) error {
	for i, n := range agentTypeNames {
		if n == string(b) {
			*t = AgentType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown agent type %q", b)
}

// CarID addresses a car in the car arena. A retired car's id goes stale.
type CarID arena.Handle

func (id CarID) String() string { return fmt.Sprintf("Car #%s", arena.Handle(id)) }

// Agent returns the generic agent id of the car.
func (id CarID) Agent() AgentID {
	return AgentID{Type: AgentCar, Index: id.Index, Gen: id.Gen}
}

// PedestrianID addresses a pedestrian in the pedestrian arena.
type PedestrianID arena.Handle

func (id PedestrianID) String() string { return fmt.Sprintf("Pedestrian #%s", arena.Handle(id)) }

// Agent returns the generic agent id of the pedestrian.
func (id PedestrianID) Agent() AgentID {
	return AgentID{Type: AgentPedestrian, Index: id.Index, Gen: id.Gen}
}

// AgentID identifies any moving agent. Agent ids are totally ordered by
// (type, index, generation).
type AgentID struct {
	Type  AgentType `json:"type"`
	Index uint32    `json:"index"`
	Gen   uint32    `json:"gen"`
}

func (id AgentID) String() string {
	if id.Type == AgentCar {
		return id.Car().String()
	}
	return id.Pedestrian().String()
}

// Less orders agent ids.
func (id AgentID) Less(o AgentID) bool {
	if id.Type != o.Type {
		return id.Type < o.Type
	}
	if id.Index != o.Index {
		return id.Index < o.Index
	}
	return id.Gen < o.Gen
}

// Compare returns -1, 0 or 1.
func (id AgentID) Compare(o AgentID) int {
	switch {
	case id.Less(o):
		return -1
	case o.Less(id):
		return 1
	}
	return 0
}

// Car converts the id back to a CarID. Only meaningful when Type is AgentCar.
func (id AgentID) Car() CarID { return CarID{Index: id.Index, Gen: id.Gen} }

// Pedestrian converts the id back to a PedestrianID.
func (id AgentID) Pedestrian() PedestrianID { return PedestrianID{Index: id.Index, Gen: id.Gen} }

// PersonID identifies a person. Assigned by the caller.
type PersonID int64

func (id PersonID) String() string { return fmt.Sprintf("Person #%d", int64(id)) }

// TripID identifies a trip. Assigned monotonically by the simulator.
type TripID int64

// NoPerson and NoTrip mark a vehicle that belongs to no person, such as a
// route bus.
const (
	NoPerson PersonID = -1
	NoTrip   TripID   = -1
)

func (id TripID) String() string { return fmt.Sprintf("Trip #%d", int64(id)) }
