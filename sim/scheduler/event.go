package scheduler

import (
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Kind identifies what an event asks the simulator to do.
type Kind uint8

const (
	TripSpawned Kind = iota
	TripPhaseChanged
	LaneEndReached
	TurnRequested
	TurnGranted
	TurnCleared
	ParkingCompleted
	SignalPhaseAdvance
	BusDispatched
	BusDwellEnded
)

var kindNames = [...]string{
	"trip_spawned", "trip_phase_changed", "lane_end_reached", "turn_requested",
	"turn_granted", "turn_cleared", "parking_completed", "signal_phase_advance",
	"bus_dispatched", "bus_dwell_ended",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid event kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// AllKinds lists every Kind.
func AllKinds() []Kind {
	return []Kind{
		TripSpawned, TripPhaseChanged, LaneEndReached, TurnRequested, TurnGranted,
		TurnCleared, ParkingCompleted, SignalPhaseAdvance, BusDispatched, BusDwellEnded,
	}
}

// KindRank orders events of one actor at one timestamp. Lower runs first:
// exits before entries, entries before new arrivals.
var KindRank = map[Kind]int{
	SignalPhaseAdvance: 0,
	TurnCleared:        1,
	TurnGranted:        2,
	ParkingCompleted:   3,
	BusDwellEnded:      4,
	LaneEndReached:     5,
	TurnRequested:      6,
	TripPhaseChanged:   7,
	BusDispatched:      8,
	TripSpawned:        9,
}

// ActorClass groups actor keys. Signals run first, then bus routes, trips,
// cars and pedestrians.
type ActorClass uint8

const (
	ActorIntersection ActorClass = iota
	ActorRoute
	ActorTrip
	ActorCar
	ActorPedestrian
)

var actorClassNames = [...]string{"intersection", "route", "trip", "car", "pedestrian"}

func (c ActorClass) String() string {
	if int(c) < len(actorClassNames) {
		return actorClassNames[c]
	}
	return fmt.Sprintf("ActorClass(%d)", uint8(c))
}

func (c ActorClass) MarshalText() ([]byte, error) {
	if int(c) >= len(actorClassNames) {
		return nil, fmt.Errorf("invalid actor class %d", uint8(c))
	}
	return []byte(actorClassNames[c]), nil
}

func (c *ActorClass) UnmarshalText(b []byte) error {
	for i, n := range actorClassNames {
		if n == string(b) {
			*c = ActorClass(i)
			return nil
		}
	}
	return fmt.Errorf("unknown actor class %q", b)
}

// Actor is the deterministic key of whoever an event belongs to.
type Actor struct {
	Class ActorClass `json:"class"`
	ID    int64      `json:"id"`
	Gen   uint32     `json:"gen,omitempty"`
}

// AgentActor keys the events of a car or pedestrian.
func AgentActor(id agent.AgentID) Actor {
	c := ActorCar
	if id.Type == agent.AgentPedestrian {
		c = ActorPedestrian
	}
	return Actor{Class: c, ID: int64(id.Index), Gen: id.Gen}
}

// TripActor keys the events of a trip.
func TripActor(id agent.TripID) Actor { return Actor{Class: ActorTrip, ID: int64(id)} }

// IntersectionActor keys the events of a signal.
func IntersectionActor(id mapmodel.IntersectionID) Actor {
	return Actor{Class: ActorIntersection, ID: int64(id)}
}

// RouteActor keys the departures of a bus route.
func RouteActor(id mapmodel.BusRouteID) Actor { return Actor{Class: ActorRoute, ID: int64(id)} }

// Agent converts a car or pedestrian actor back to its agent id.
func (a Actor) Agent() (agent.AgentID, bool) {
	switch a.Class {
	case ActorCar:
		return agent.AgentID{Type: agent.AgentCar, Index: uint32(a.ID), Gen: a.Gen}, true
	case ActorPedestrian:
		return agent.AgentID{Type: agent.AgentPedestrian, Index: uint32(a.ID), Gen: a.Gen}, true
	}
	return agent.AgentID{}, false
}

func (a Actor) Less(o Actor) bool {
	if a.Class != o.Class {
		return a.Class < o.Class
	}
	if a.ID != o.ID {
		return a.ID < o.ID
	}
	return a.Gen < o.Gen
}

func (a Actor) String() string {
	if a.Class == ActorCar || a.Class == ActorPedestrian {
		return fmt.Sprintf("%s %d.%d", a.Class, a.ID, a.Gen)
	}
	return fmt.Sprintf("%s %d", a.Class, a.ID)
}

// Event is one scheduled state transition. Events are plain data: the
// simulator dispatches on Kind and reads the payload fields it needs.
type Event struct {
	Time  int64  `json:"time"`
	Kind  Kind   `json:"kind"`
	Actor Actor  `json:"actor"`
	Seq   uint64 `json:"seq"`

	Turn  mapmodel.TurnID `json:"turn,omitempty"`
	Spot  mapmodel.SpotID `json:"spot,omitempty"`
	Phase int             `json:"phase,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%d[%s #%d]", e.Kind, e.Time, e.Actor, e.Seq)
}

// Less is the total event order: time, actor, kind rank, sequence number.
func (e Event) Less(o Event) bool {
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	if e.Actor != o.Actor {
		return e.Actor.Less(o.Actor)
	}
	if ri, rj := KindRank[e.Kind], KindRank[o.Kind]; ri != rj {
		return ri < rj
	}
	return e.Seq < o.Seq
}
