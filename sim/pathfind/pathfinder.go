package pathfind

import (
	"container/heap"
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Speeds are the maximum speeds of each mode in m/s. A traveler moves at the
// lower of its mode speed and the lane's speed limit.
type Speeds struct {
	Pedestrian float64 `yaml:"pedestrian" json:"pedestrian"`
	Car        float64 `yaml:"car" json:"car"`
	Bike       float64 `yaml:"bike" json:"bike"`
	Bus        float64 `yaml:"bus" json:"bus"`
}

// For returns the speed of a mode.
func (s Speeds) For(m Mode) float64 {
	switch m {
	case Pedestrian:
		return s.Pedestrian
	case Car:
		return s.Car
	case Bike:
		return s.Bike
	case Bus:
		return s.Bus
	}
	return 0
}

// Pathfinder routes over one map under a mutable cost overlay.
// Thread-safety: NOT thread-safe.
type Pathfinder struct {
	m       *mapmodel.Map
	speeds  Speeds
	overlay *Overlay
	usage   *Usage
}

// New creates a pathfinder. Panics if m is nil or any mode speed is not positive.
func New(m *mapmodel.Map, speeds Speeds) *Pathfinder {
	if m == nil {
		panic("pathfind.New: map must not be nil")
	}
	for _, mode := range AllModes() {
		if !(speeds.For(mode) > 0) {
			panic(fmt.Sprintf("pathfind.New: %s speed must be > 0, got %v", mode, speeds.For(mode)))
		}
	}
	return &Pathfinder{m: m, speeds: speeds, overlay: NewOverlay(m), usage: newUsage()}
}

func (pf *Pathfinder) Map() *mapmodel.Map { return pf.m }
func (pf *Pathfinder) Overlay() *Overlay  { return pf.overlay }
func (pf *Pathfinder) Usage() *Usage      { return pf.usage }
func (pf *Pathfinder) Speeds() Speeds     { return pf.speeds }

// Stale reports whether p was computed against an older overlay.
func (pf *Pathfinder) Stale(p *Path) bool {
	return p.OverlayVersion != pf.overlay.Version()
}

// Speed is the travel speed of the mode on a lane.
func (pf *Pathfinder) Speed(l mapmodel.LaneID, mode Mode) float64 {
	return min(pf.m.Lane(l).SpeedLimit(), pf.speeds.For(mode))
}

func (pf *Pathfinder) laneSeconds(l mapmodel.LaneID, mode Mode, from, to float64) float64 {
	if to <= from {
		return 0
	}
	return (to - from) / pf.Speed(l, mode) * pf.overlay.Congestion(l)
}

func (pf *Pathfinder) turnSeconds(t mapmodel.TurnID, mode Mode) float64 {
	turn := pf.m.Turn(t)
	return turn.Length() / pf.Speed(turn.To(), mode)
}

// LaneTime is the time in ticks to travel a lane from one distance to another,
// congestion included.
func (pf *Pathfinder) LaneTime(l mapmodel.LaneID, mode Mode, from, to float64) int64 {
	return mapmodel.SecondsToTicks(pf.laneSeconds(l, mode, from, to))
}

// TurnTime is the time in ticks to cross an intersection along a turn, not
// counting any wait for the right of way.
func (pf *Pathfinder) TurnTime(t mapmodel.TurnID, mode Mode) int64 {
	return mapmodel.SecondsToTicks(pf.turnSeconds(t, mode))
}

// usableTurn reports whether mode may take t; the returned cost includes the
// expected signal delay.
func (pf *Pathfinder) usableTurn(t mapmodel.TurnID, mode Mode) (float64, bool) {
	turn := pf.m.Turn(t)
	if turn.Priority() == mapmodel.BannedClass || !mode.CanUseTurn(turn.Type()) || !mode.CanUseLane(pf.m.Lane(turn.To()).Type()) {
		return 0, false
	}
	delay, ok := pf.overlay.SignalDelay(t)
	if !ok {
		return 0, false
	}
	return pf.turnSeconds(t, mode) + delay, true
}

func (pf *Pathfinder) checkEndpoint(p mapmodel.Position, mode Mode, what string) error {
	if !pf.m.HasLane(p.Lane) {
		return fmt.Errorf("%w: %s lane %d does not exist", ErrNoPathFound, what, p.Lane)
	}
	lane := pf.m.Lane(p.Lane)
	if !mode.CanUseLane(lane.Type()) {
		return fmt.Errorf("%w: %s %s is a %s lane, unusable by %s", ErrNoPathFound, what, p, lane.Type(), mode)
	}
	if p.Dist < 0 || p.Dist > lane.Length() {
		return fmt.Errorf("%w: %s %s outside lane length %.1f", ErrNoPathFound, what, p, lane.Length())
	}
	return nil
}

type searchNode struct {
	f, g  float64
	lane  mapmodel.LaneID
	goal  bool
	index int
}

// searchQueue orders by f, then g, then LaneID, with goal entries first.
type searchQueue []*searchNode

func (q searchQueue) Len() int { return len(q) }

func (q searchQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.g != b.g {
		return a.g < b.g
	}
	if a.lane != b.lane {
		return a.lane < b.lane
	}
	return a.goal && !b.goal
}

func (q searchQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *searchQueue) Push(x any) {
	n := x.(*searchNode)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// via records how a lane was entered: from the start position or from the end
// of prev, optionally through a turn.
type via struct {
	prev      mapmodel.LaneID
	turn      mapmodel.TurnID
	hasTurn   bool
	fromStart bool
}

// Route computes the cheapest path from one position to another for a mode.
// Ties on total estimate are broken by cost so far, then by LaneID, so the
// result is a pure function of the map, the overlay and the arguments.
// The path is counted in the usage statistics.
func (pf *Pathfinder) Route(from, to mapmodel.Position, mode Mode) (*Path, error) {
	p, err := pf.search(from, to, mode)
	if err != nil {
		return nil, err
	}
	pf.usage.record(pf.m, p)
	log.Debugf("route %s", p)
	return p, nil
}

// Cost is the expected travel time in ticks of the path Route would return,
// without counting it as used.
func (pf *Pathfinder) Cost(from, to mapmodel.Position, mode Mode) (int64, error) {
	p, err := pf.search(from, to, mode)
	if err != nil {
		return 0, err
	}
	return p.Cost, nil
}

func (pf *Pathfinder) search(from, to mapmodel.Position, mode Mode) (*Path, error) {
	if err := pf.checkEndpoint(from, mode, "source"); err != nil {
		return nil, err
	}
	if err := pf.checkEndpoint(to, mode, "destination"); err != nil {
		return nil, err
	}
	target := pf.m.PointAt(to)
	vmax := min(pf.m.MaxSpeedLimit(), pf.speeds.For(mode))
	hScale := pf.overlay.minWeight / vmax
	heuristic := func(l mapmodel.LaneID) float64 {
		return pf.m.Distance(pf.m.LaneStartPoint(l), target) * hScale
	}

	best := make(map[mapmodel.LaneID]float64)
	parent := make(map[mapmodel.LaneID]via)
	done := make(map[mapmodel.LaneID]bool)
	q := &searchQueue{}
	goalG := -1.0
	var goalVia via

	pushGoal := func(g float64, v via) {
		if goalG >= 0 && goalG <= g {
			return
		}
		goalG, goalVia = g, v
		heap.Push(q, &searchNode{f: g, g: g, lane: to.Lane, goal: true})
	}
	relax := func(l mapmodel.LaneID, g float64, v via) {
		if done[l] {
			return
		}
		if old, ok := best[l]; ok && old <= g {
			return
		}
		best[l] = g
		parent[l] = v
		heap.Push(q, &searchNode{f: g + heuristic(l), g: g, lane: l})
	}
	expand := func(l mapmodel.LaneID, g float64, v via) {
		lane := pf.m.Lane(l)
		for _, t := range lane.OutgoingTurns() {
			cost, ok := pf.usableTurn(t, mode)
			if !ok {
				continue
			}
			relax(pf.m.Turn(t).To(), g+cost, via{prev: l, turn: t, hasTurn: true, fromStart: v.fromStart})
		}
		if next, ok := lane.Next(); ok && mode.CanUseLane(pf.m.Lane(next).Type()) {
			relax(next, g, via{prev: l, fromStart: v.fromStart})
		}
	}

	if from.Lane == to.Lane && to.Dist >= from.Dist {
		pushGoal(pf.laneSeconds(from.Lane, mode, from.Dist, to.Dist), via{fromStart: true})
	}
	startLen := pf.m.Lane(from.Lane).Length()
	expand(from.Lane, pf.laneSeconds(from.Lane, mode, from.Dist, startLen), via{fromStart: true})

	for q.Len() > 0 {
		n := heap.Pop(q).(*searchNode)
		if n.goal {
			if n.g != goalG {
				continue
			}
			return pf.buildPath(from, to, mode, goalG, goalVia, parent), nil
		}
		if done[n.lane] || n.g > best[n.lane] {
			continue
		}
		done[n.lane] = true
		if n.lane == to.Lane {
			pushGoal(n.g+pf.laneSeconds(to.Lane, mode, 0, to.Dist), via{prev: to.Lane})
		}
		full := pf.laneSeconds(n.lane, mode, 0, pf.m.Lane(n.lane).Length())
		expand(n.lane, n.g+full, via{})
	}
	return nil, fmt.Errorf("%w: %s -> %s for %s", ErrNoPathFound, from, to, mode)
}

func (pf *Pathfinder) buildPath(from, to mapmodel.Position, mode Mode, g float64, goal via, parent map[mapmodel.LaneID]via) *Path {
	var rev []Step
	if !goal.fromStart {
		cur := to.Lane
		for {
			v := parent[cur]
			rev = append(rev, Step{Kind: StepLane, Lane: cur})
			if v.hasTurn {
				rev = append(rev, Step{Kind: StepTurn, Turn: v.turn})
			}
			if v.fromStart {
				break
			}
			cur = v.prev
		}
	}
	rev = append(rev, Step{Kind: StepLane, Lane: from.Lane})
	steps := make([]Step, len(rev))
	for i, s := range rev {
		steps[len(rev)-1-i] = s
	}
	return &Path{
		Steps:          steps,
		Mode:           mode,
		Start:          from,
		End:            to,
		Cost:           mapmodel.SecondsToTicks(g),
		OverlayVersion: pf.overlay.Version(),
	}
}
