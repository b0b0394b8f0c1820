package pathfind

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Overlay holds the mutable cost inputs layered on top of the frozen map:
// per-lane congestion weights and retimed signal phase durations. Every change
// bumps Version.
type Overlay struct {
	m          *mapmodel.Map
	version    uint64
	congestion map[mapmodel.LaneID]float64
	timings    map[mapmodel.IntersectionID][]int64
	minWeight  float64
}

// NewOverlay creates an empty overlay (all weights 1, map signal timings).
func NewOverlay(m *mapmodel.Map) *Overlay {
	return &Overlay{
		m:          m,
		congestion: make(map[mapmodel.LaneID]float64),
		timings:    make(map[mapmodel.IntersectionID][]int64),
		minWeight:  1,
	}
}

// Version increases on every overlay change.
func (o *Overlay) Version() uint64 { return o.version }

// Congestion returns the weight of a lane (1 when unset).
func (o *Overlay) Congestion(l mapmodel.LaneID) float64 {
	if w, ok := o.congestion[l]; ok {
		return w
	}
	return 1
}

// SetCongestion sets a lane's cost multiplier. Weight must be positive.
func (o *Overlay) SetCongestion(l mapmodel.LaneID, weight float64) error {
	if !o.m.HasLane(l) {
		return fmt.Errorf("set congestion: unknown lane %d", l)
	}
	if !(weight > 0) {
		return fmt.Errorf("set congestion on %s: weight %v must be > 0", l, weight)
	}
	if weight == 1 {
		delete(o.congestion, l)
	} else {
		o.congestion[l] = weight
	}
	o.minWeight = min(1, lo.Min(lo.Values(o.congestion)))
	if len(o.congestion) == 0 {
		o.minWeight = 1
	}
	o.version++
	log.Debugf("congestion %s = %.3f (overlay v%d)", l, weight, o.version)
	return nil
}

// PhaseDurations returns the current phase durations of a signal in ticks.
func (o *Overlay) PhaseDurations(id mapmodel.IntersectionID) []int64 {
	if d, ok := o.timings[id]; ok {
		return slices.Clone(d)
	}
	return lo.Map(o.m.Intersection(id).Phases(), func(p mapmodel.Phase, _ int) int64 { return p.Duration })
}

// RetimeSignal replaces the phase durations of a signalized intersection. The
// phase count must match the map's program and every duration must be positive.
func (o *Overlay) RetimeSignal(id mapmodel.IntersectionID, durations []int64) error {
	if !o.m.HasIntersection(id) {
		return fmt.Errorf("retime signal: unknown intersection %d", id)
	}
	in := o.m.Intersection(id)
	if in.Control() != mapmodel.ControlSignal {
		return fmt.Errorf("retime signal: %s is %s, not a signal", id, in.Control())
	}
	if n := len(in.Phases()); len(durations) != n {
		return fmt.Errorf("retime signal %s: got %d durations for %d phases", id, len(durations), n)
	}
	for i, d := range durations {
		if d <= 0 {
			return fmt.Errorf("retime signal %s: phase %d duration %d must be > 0", id, i, d)
		}
	}
	o.timings[id] = slices.Clone(durations)
	o.version++
	log.Debugf("retimed %s to %v (overlay v%d)", id, durations, o.version)
	return nil
}

// SignalDelay is the expected wait in seconds for a turn at a signalized
// intersection under uniform arrivals: (cycle-green)^2 / (2*cycle). The second
// result is false when the turn is never green.
func (o *Overlay) SignalDelay(t mapmodel.TurnID) (float64, bool) {
	turn := o.m.Turn(t)
	in := o.m.Intersection(turn.Intersection())
	if in.Control() != mapmodel.ControlSignal {
		return 0, true
	}
	durations := o.PhaseDurations(in.ID())
	var cycle, green int64
	for i, p := range in.Phases() {
		cycle += durations[i]
		if ok, _ := p.Allows(t); ok {
			green += durations[i]
		}
	}
	if green == 0 {
		return 0, false
	}
	red := float64(cycle - green)
	return mapmodel.TicksToSeconds(int64(red * red / (2 * float64(cycle)))), true
}

// LaneWeight is one congestion entry of an OverlayState.
type LaneWeight struct {
	Lane   mapmodel.LaneID `json:"lane"`
	Weight float64         `json:"weight"`
}

// SignalTiming is one retimed signal of an OverlayState.
type SignalTiming struct {
	Intersection mapmodel.IntersectionID `json:"intersection"`
	Durations    []int64                 `json:"durations"`
}

// OverlayState is the serialized overlay, sorted by id.
type OverlayState struct {
	Version    uint64         `json:"version"`
	Congestion []LaneWeight   `json:"congestion"`
	Signals    []SignalTiming `json:"signals"`
}

// Export returns the overlay state.
func (o *Overlay) Export() OverlayState {
	st := OverlayState{Version: o.version, Congestion: []LaneWeight{}, Signals: []SignalTiming{}}
	lanes := lo.Keys(o.congestion)
	slices.Sort(lanes)
	for _, l := range lanes {
		st.Congestion = append(st.Congestion, LaneWeight{Lane: l, Weight: o.congestion[l]})
	}
	ids := lo.Keys(o.timings)
	slices.Sort(ids)
	for _, id := range ids {
		st.Signals = append(st.Signals, SignalTiming{Intersection: id, Durations: slices.Clone(o.timings[id])})
	}
	return st
}

// Import replaces the overlay with st, validating it against the map.
func (o *Overlay) Import(st OverlayState) error {
	fresh := NewOverlay(o.m)
	for _, lw := range st.Congestion {
		if err := fresh.SetCongestion(lw.Lane, lw.Weight); err != nil {
			return err
		}
	}
	for _, s := range st.Signals {
		if err := fresh.RetimeSignal(s.Intersection, s.Durations); err != nil {
			return err
		}
	}
	*o = *fresh
	o.version = st.Version
	return nil
}
