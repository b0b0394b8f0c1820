package mapmodel

import "fmt"

// Map-level identifiers are dense indices into the Map's slices. They are stable
// for one map version.
type (
	RoadID         int32
	LaneID         int32
	IntersectionID int32
	TurnID         int32
	ParkingLotID   int32
	SpotID         int32
	BusStopID      int32
	BusRouteID     int32
)

func (id RoadID) String() string { return fmt.Sprintf("Road #%d", id) }
func (id LaneID) String() string { return fmt.Sprintf("Lane #%d", id) }
func (id IntersectionID) String() string { return fmt.Sprintf("Intersection #%d", id) }
func (id TurnID) String() string { return fmt.Sprintf("Turn #%d", id) }
func (id ParkingLotID) String() string { return fmt.Sprintf("Lot #%d", id) }
func (id SpotID) String() string { return fmt.Sprintf("Spot #%d", id) }
func (id BusStopID) String() string { return fmt.Sprintf("Bus Stop #%d", id) }
func (id BusRouteID) String() string { return fmt.Sprintf("Bus Route #%d", id) }

// TicksPerSecond is the simulation clock resolution: one tick is a microsecond.
const TicksPerSecond int64 = 1_000_000

// SecondsToTicks converts seconds to ticks, rounding to the nearest tick.
func SecondsToTicks(s float64) int64 {
	if s < 0 {
		return -int64(-s*float64(TicksPerSecond) + 0.5)
	}
	return int64(s*float64(TicksPerSecond) + 0.5)
}

// TicksToSeconds converts ticks to seconds.
func TicksToSeconds(t int64) float64 {
	return float64(t) / float64(TicksPerSecond)
}

// Position is the canonical location of any agent: a lane and a distance in
// meters from the lane's start.
type Position struct {
	Lane LaneID  `json:"lane" yaml:"lane"`
	Dist float64 `json:"dist" yaml:"dist"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s@%.1fm", p.Lane, p.Dist)
}
