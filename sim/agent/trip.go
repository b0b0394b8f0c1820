package agent

import (
	"fmt"
	"slices"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

// TripMode is how a trip, or one leg of it, travels.
type TripMode uint8

const (
	Walk TripMode = iota
	Drive
	Bike
	Transit
)

var tripModeNames = [...]string{"walk", "drive", "bike", "transit"}

func (m TripMode) String() string {
	if int(m) < len(tripModeNames) {
		return tripModeNames[m]
	}
	return fmt.Sprintf("TripMode(%d)", uint8(m))
}

func (m TripMode) MarshalText() ([]byte, error) {
	if int(m) >= len(tripModeNames) {
		return nil, fmt.Errorf("invalid trip mode %d", uint8(m))
	}
	return []byte(tripModeNames[m]), nil
}

func (m *TripMode) UnmarshalText(b []byte) error {
	for i, n := range tripModeNames {
		if n == string(b) {
			*m = TripMode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trip mode %q", b)
}

// AllTripModes lists every TripMode.
func AllTripModes() []TripMode { return []TripMode{Walk, Drive, Bike, Transit} }

// PathMode is the routing mode of a leg travelled this way.
func (m TripMode) PathMode() pathfind.Mode {
	switch m {
	case Drive:
		return pathfind.Car
	case Bike:
		return pathfind.Bike
	case Transit:
		return pathfind.Bus
	}
	return pathfind.Pedestrian
}

// TripPhase is where a trip is in its lifecycle.
type TripPhase uint8

const (
	DelayedStart TripPhase = iota
	Walking
	Driving
	Biking
	Parking
	WaitingForBus
	RidingBus
	Finished
	Cancelled
	Failed
)

var tripPhaseNames = [...]string{
	"delayed_start", "walking", "driving", "biking", "parking",
	"waiting_for_bus", "riding_bus", "finished", "cancelled", "failed",
}

func (p TripPhase) String() string {
	if int(p) < len(tripPhaseNames) {
		return tripPhaseNames[p]
	}
	return fmt.Sprintf("TripPhase(%d)", uint8(p))
}

func (p TripPhase) MarshalText() ([]byte, error) {
	if int(p) >= len(tripPhaseNames) {
		return nil, fmt.Errorf("invalid trip phase %d", uint8(p))
	}
	return []byte(tripPhaseNames[p]), nil
}

func (p *TripPhase) UnmarshalText(b []byte) error {
	for i, n := range tripPhaseNames {
		if n == string(b) {
			*p = TripPhase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trip phase %q", b)
}

// AllTripPhases lists every TripPhase.
func AllTripPhases() []TripPhase {
	return []TripPhase{DelayedStart, Walking, Driving, Biking, Parking, WaitingForBus, RidingBus, Finished, Cancelled, Failed}
}

// Terminal reports whether no further phase can follow.
func (p TripPhase) Terminal() bool {
	return p == Finished || p == Cancelled || p == Failed
}

// phaseSuccessors lists the non-terminal phases each phase may move to.
// Any live phase may additionally end as Cancelled or Failed.
var phaseSuccessors = map[TripPhase][]TripPhase{
	DelayedStart:  {Walking, Driving, Biking},
	Walking:       {Driving, WaitingForBus, Finished},
	Driving:       {Parking, Finished},
	Biking:        {Finished},
	Parking:       {Driving, Walking},
	WaitingForBus: {RidingBus},
	RidingBus:     {Walking},
}

// CanAdvance reports whether a trip may move from one phase to another.
func CanAdvance(from, to TripPhase) bool {
	if from.Terminal() {
		return false
	}
	if to == Cancelled || to == Failed {
		return true
	}
	for _, s := range phaseSuccessors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TripSpec is what a caller asks for: travel from Start to End by Mode,
// leaving no earlier than Departure (ticks).
type TripSpec struct {
	Mode      TripMode          `json:"mode" yaml:"mode"`
	Start     mapmodel.Position `json:"start" yaml:"start"`
	End       mapmodel.Position `json:"end" yaml:"end"`
	Departure int64             `json:"departure" yaml:"departure"`
}

// Leg is one single-mode stretch of a trip.
type Leg struct {
	Mode  TripMode          `json:"mode"`
	Start mapmodel.Position `json:"start"`
	End   mapmodel.Position `json:"end"`
}

// PhaseChange is one entry of a trip's timeline.
type PhaseChange struct {
	Time  int64     `json:"time"`
	Phase TripPhase `json:"phase"`
}

// Trip is one journey of a person. The simulator owns it and keeps the
// references to the agents currently carrying it.
type Trip struct {
	ID       TripID        `json:"id"`
	Person   PersonID      `json:"person"`
	Spec     TripSpec      `json:"spec"`
	Phase    TripPhase     `json:"phase"`
	Timeline []PhaseChange `json:"timeline"`
	Legs     []Leg         `json:"legs"`
	// Leg is the index of the leg in progress.
	Leg int `json:"leg"`

	Car           CarID        `json:"car"`
	HasCar        bool         `json:"has_car"`
	Pedestrian    PedestrianID `json:"pedestrian"`
	HasPedestrian bool         `json:"has_pedestrian"`

	// Target spot of a drive trip and the current search radius around End.
	TargetSpot    mapmodel.SpotID `json:"target_spot"`
	HasTarget     bool            `json:"has_target"`
	ParkingRadius float64         `json:"parking_radius"`

	// Stops a transit trip boards and leaves its bus at, and the bus while aboard.
	BoardStop  mapmodel.BusStopID `json:"board_stop,omitempty"`
	AlightStop mapmodel.BusStopID `json:"alight_stop,omitempty"`
	Bus        CarID              `json:"bus"`
	OnBus      bool               `json:"on_bus,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// NewTrip creates a trip in DelayedStart at time now.
func NewTrip(id TripID, person PersonID, spec TripSpec, now int64) *Trip {
	return &Trip{
		ID:       id,
		Person:   person,
		Spec:     spec,
		Phase:    DelayedStart,
		Timeline: []PhaseChange{{Time: now, Phase: DelayedStart}},
	}
}

// Advance moves the trip to a new phase at time now.
func (t *Trip) Advance(to TripPhase, now int64) error {
	if !CanAdvance(t.Phase, to) {
		return fmt.Errorf("%w: %s from %s to %s", ErrIllegalTransition, t.ID, t.Phase, to)
	}
	t.Phase = to
	t.Timeline = append(t.Timeline, PhaseChange{Time: now, Phase: to})
	return nil
}

// AddLeg appends a leg and makes it current.
func (t *Trip) AddLeg(mode TripMode, start, end mapmodel.Position) {
	t.Legs = append(t.Legs, Leg{Mode: mode, Start: start, End: end})
	t.Leg = len(t.Legs) - 1
}

// HasLeg reports whether the trip has begun a leg of the given mode.
func (t *Trip) HasLeg(mode TripMode) bool {
	return slices.ContainsFunc(t.Legs, func(l Leg) bool { return l.Mode == mode })
}

// Started returns the time the trip left DelayedStart, if it has.
func (t *Trip) Started() (int64, bool) {
	if len(t.Timeline) < 2 {
		return 0, false
	}
	return t.Timeline[1].Time, true
}

// Ended returns the time the trip reached a terminal phase, if it has.
func (t *Trip) Ended() (int64, bool) {
	if !t.Phase.Terminal() {
		return 0, false
	}
	return t.Timeline[len(t.Timeline)-1].Time, true
}
