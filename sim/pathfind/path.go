// Package pathfind computes mode-aware routes over the lane graph.
//
// A Path is a sequence of lane traversals and turns. Costs are expected
// traversal times in ticks under the current cost overlay; a Path remembers the
// overlay version it was computed against so callers can tell when it has
// gone stale.
package pathfind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// ErrNoPathFound is returned when no route exists for the mode, or an endpoint
// lane cannot be used by the mode.
var ErrNoPathFound = errors.New("no path found")

// Mode is the set of path constraints a traveler is subject to.
type Mode uint8

const (
	Pedestrian Mode = iota
	Car
	Bike
	Bus
)

var modeNames = [...]string{"pedestrian", "car", "bike", "bus"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	if int(m) >= len(modeNames) {
		return nil, fmt.Errorf("invalid mode %d", uint8(m))
	}
	return []byte(modeNames[m]), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	*m = v
	return err
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (want one of %v)", s, modeNames)
}

// AllModes lists every Mode.
func AllModes() []Mode { return []Mode{Pedestrian, Car, Bike, Bus} }

// CanUseLane reports whether the mode may travel along a lane of type t.
func (m Mode) CanUseLane(t mapmodel.LaneType) bool {
	switch m {
	case Pedestrian:
		return t == mapmodel.LaneSidewalk
	case Car:
		return t == mapmodel.LaneDriving
	case Bike:
		return t == mapmodel.LaneBike || t == mapmodel.LaneDriving
	case Bus:
		return t == mapmodel.LaneTransit || t == mapmodel.LaneDriving
	}
	return false
}

// CanUseTurn reports whether the mode may take a turn of type t. Banned turns
// are filtered separately.
func (m Mode) CanUseTurn(t mapmodel.TurnType) bool {
	if m == Pedestrian {
		return t.IsPedestrian()
	}
	return !t.IsPedestrian()
}

// StepKind says what a path step traverses.
type StepKind uint8

const (
	StepLane StepKind = iota
	StepTurn
)

var stepKindNames = [...]string{"lane", "turn"}

func (k StepKind) String() string {
	if int(k) < len(stepKindNames) {
		return stepKindNames[k]
	}
	return fmt.Sprintf("StepKind(%d)", uint8(k))
}

func (k StepKind) MarshalText() ([]byte, error) {
	if int(k) >= len(stepKindNames) {
		return nil, fmt.Errorf("invalid step kind %d", uint8(k))
	}
	return []byte(stepKindNames[k]), nil
}

func (k *StepKind) UnmarshalText(b []byte) error {
	for i, n := range stepKindNames {
		if n == string(b) {
			*k = StepKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown step kind %q", b)
}

// Step is one traversal: a lane (Kind == StepLane) or a turn.
type Step struct {
	Kind StepKind        `json:"kind"`
	Lane mapmodel.LaneID `json:"lane,omitempty"`
	Turn mapmodel.TurnID `json:"turn,omitempty"`
}

func (s Step) String() string {
	if s.Kind == StepTurn {
		return s.Turn.String()
	}
	return s.Lane.String()
}

// Path is an ordered route. The first step is the start lane and the last the
// destination lane; turns always sit between two lane steps.
type Path struct {
	Steps []Step            `json:"steps"`
	Mode  Mode              `json:"mode"`
	Start mapmodel.Position `json:"start"`
	End   mapmodel.Position `json:"end"`
	// Cost is the expected traversal time in ticks.
	Cost int64 `json:"cost"`
	// OverlayVersion is the cost overlay version the path was computed against.
	OverlayVersion uint64 `json:"overlay_version"`
}

// Lanes returns the lanes of the path in order.
func (p *Path) Lanes() []mapmodel.LaneID {
	var out []mapmodel.LaneID
	for _, s := range p.Steps {
		if s.Kind == StepLane {
			out = append(out, s.Lane)
		}
	}
	return out
}

// Turns returns the turns of the path in order.
func (p *Path) Turns() []mapmodel.TurnID {
	var out []mapmodel.TurnID
	for _, s := range p.Steps {
		if s.Kind == StepTurn {
			out = append(out, s.Turn)
		}
	}
	return out
}

func (p *Path) String() string {
	parts := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s path %s -> %s (%s) cost=%d", p.Mode, p.Start, p.End, strings.Join(parts, ", "), p.Cost)
}
