// Package arbiter decides who may enter an intersection and when.
//
// Each intersection runs its own rule set (stop sign, signal, uncontrolled
// priority) over one shared contract: agents request a turn, are granted or
// deferred, and report when they clear the intersection. Releases, withdrawals
// and signal phase changes hand out the grants that became possible.
package arbiter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

var (
	// ErrInvalidTurnRequest rejects requests for unknown or banned turns and
	// requests by agents already waiting or holding a grant.
	ErrInvalidTurnRequest = errors.New("invalid turn request")
	// ErrConflictingGrant means two conflicting turns would be granted at once.
	ErrConflictingGrant = errors.New("conflicting grant")
)

// DefaultOccupancyCap bounds concurrent occupants of an intersection that
// does not set its own cap.
const DefaultOccupancyCap = 16

// Decision is the answer to a turn request.
type Decision uint8

const (
	Defer Decision = iota
	Granted
)

func (d Decision) String() string {
	if d == Granted {
		return "granted"
	}
	return "deferred"
}

// Request is a pending wish to take a turn.
type Request struct {
	Agent agent.AgentID   `json:"agent"`
	Turn  mapmodel.TurnID `json:"turn"`
	Time  int64           `json:"time"`
}

// Grant is an agent's right to occupy an intersection along a turn.
type Grant struct {
	Agent agent.AgentID   `json:"agent"`
	Turn  mapmodel.TurnID `json:"turn"`
	Since int64           `json:"since"`
}

type intersection struct {
	id      mapmodel.IntersectionID
	control mapmodel.ControlType
	phases  []mapmodel.Phase
	cap     int
	phase   int
	waiting []Request
	granted []Grant
}

type holding struct {
	at      mapmodel.IntersectionID
	granted bool
}

// Arbiter holds the right-of-way state of every intersection of a map.
// Thread-safety: NOT thread-safe.
type Arbiter struct {
	m       *mapmodel.Map
	states  []*intersection
	holders map[agent.AgentID]holding
}

// New creates an arbiter with empty queues and every signal in its first
// phase. Intersections without a cap use defaultCap. Panics if m is nil or
// defaultCap < 1.
func New(m *mapmodel.Map, defaultCap int) *Arbiter {
	if m == nil {
		panic("arbiter.New: map must not be nil")
	}
	if defaultCap < 1 {
		panic(fmt.Sprintf("arbiter.New: defaultCap must be >= 1, got %d", defaultCap))
	}
	a := &Arbiter{m: m, holders: make(map[agent.AgentID]holding)}
	for i := 0; i < m.NumIntersections(); i++ {
		in := m.Intersection(mapmodel.IntersectionID(i))
		c := in.OccupancyCap()
		if c <= 0 {
			c = defaultCap
		}
		a.states = append(a.states, &intersection{id: in.ID(), control: in.Control(), phases: in.Phases(), cap: c})
	}
	return a
}

// before orders waiting requests: arrival time, then priority class ahead of
// yield, then turn type rank, then agent id.
func (a *Arbiter) before(x, y Request) bool {
	if x.Time != y.Time {
		return x.Time < y.Time
	}
	tx, ty := a.m.Turn(x.Turn), a.m.Turn(y.Turn)
	if tx.Priority() != ty.Priority() {
		return tx.Priority() < ty.Priority()
	}
	if tx.Type().Rank() != ty.Type().Rank() {
		return tx.Type().Rank() < ty.Type().Rank()
	}
	return x.Agent.Less(y.Agent)
}

func (a *Arbiter) compare(x, y Request) int {
	switch {
	case a.before(x, y):
		return -1
	case a.before(y, x):
		return 1
	}
	return 0
}

// conflictsWithGrant reports whether t conflicts with an active grant,
// optionally only with priority-class ones.
func (a *Arbiter) conflictsWithGrant(st *intersection, t mapmodel.TurnID, priorityOnly bool) bool {
	for _, g := range st.granted {
		if priorityOnly && a.m.Turn(g.Turn).Priority() != mapmodel.PriorityClass {
			continue
		}
		if a.m.Conflicts(t, g.Turn) {
			return true
		}
	}
	return false
}

func (a *Arbiter) conflictsWithAny(t mapmodel.TurnID, reqs []Request, keep func(Request) bool) bool {
	for _, r := range reqs {
		if keep(r) && a.m.Conflicts(t, r.Turn) {
			return true
		}
	}
	return false
}

// grantable applies the intersection's rule set. ahead holds the waiting
// requests ordered before r that are still blocked; others holds every other
// waiting request.
func (a *Arbiter) grantable(st *intersection, r Request, ahead, others []Request) bool {
	if len(st.granted) >= st.cap {
		return false
	}
	turn := a.m.Turn(r.Turn)
	if a.conflictsWithGrant(st, r.Turn, false) {
		return false
	}
	switch st.control {
	case mapmodel.ControlStopSign:
		if turn.Priority() == mapmodel.PriorityClass {
			return true
		}
		return !a.conflictsWithAny(r.Turn, ahead, func(Request) bool { return true })
	case mapmodel.ControlSignal:
		phase := st.phases[st.phase]
		green, protected := phase.Allows(r.Turn)
		if !green {
			return false
		}
		if protected {
			return true
		}
		return !a.conflictsWithAny(r.Turn, others, func(o Request) bool {
			g, p := phase.Allows(o.Turn)
			return g && p
		})
	default:
		if turn.Priority() == mapmodel.PriorityClass {
			return true
		}
		return !a.conflictsWithAny(r.Turn, others, func(o Request) bool {
			return a.m.Turn(o.Turn).Priority() == mapmodel.PriorityClass
		})
	}
}

// grant records a grant after checking it against every active one.
func (a *Arbiter) grant(st *intersection, r Request, now int64) (Grant, error) {
	for _, g := range st.granted {
		if a.m.Conflicts(r.Turn, g.Turn) {
			return Grant{}, fmt.Errorf("%w: %s on turn %d against %s on turn %d at intersection %d",
				ErrConflictingGrant, r.Agent, r.Turn, g.Agent, g.Turn, st.id)
		}
	}
	g := Grant{Agent: r.Agent, Turn: r.Turn, Since: now}
	st.granted = append(st.granted, g)
	a.holders[r.Agent] = holding{at: st.id, granted: true}
	return g, nil
}

// Request asks for the right to take turn t at time now. A deferred agent
// waits until a later Release, Withdraw or AdvancePhase grants it.
func (a *Arbiter) Request(id agent.AgentID, t mapmodel.TurnID, now int64) (Decision, error) {
	if !a.m.HasTurn(t) {
		return Defer, fmt.Errorf("%w: turn %d does not exist", ErrInvalidTurnRequest, t)
	}
	turn := a.m.Turn(t)
	if turn.Priority() == mapmodel.BannedClass {
		return Defer, fmt.Errorf("%w: turn %d is banned", ErrInvalidTurnRequest, t)
	}
	if h, ok := a.holders[id]; ok {
		return Defer, fmt.Errorf("%w: %s already queued or granted at intersection %d (granted=%t)", ErrInvalidTurnRequest, id, h.at, h.granted)
	}
	st := a.states[turn.Intersection()]
	r := Request{Agent: id, Turn: t, Time: now}
	pos, _ := slices.BinarySearchFunc(st.waiting, r, a.compare)
	if a.grantable(st, r, st.waiting[:pos], st.waiting) {
		if _, err := a.grant(st, r, now); err != nil {
			return Defer, err
		}
		log.Debugf("[tick %012d] %s granted turn %d at intersection %d", now, id, t, st.id)
		return Granted, nil
	}
	st.waiting = slices.Insert(st.waiting, pos, r)
	a.holders[id] = holding{at: st.id}
	log.Debugf("[tick %012d] %s waits for turn %d at intersection %d", now, id, t, st.id)
	return Defer, nil
}

// reevaluate grants waiting requests in order until no more can go.
func (a *Arbiter) reevaluate(st *intersection, now int64) ([]Grant, error) {
	var granted []Grant
	var blocked []Request
	for i := 0; i < len(st.waiting); {
		r := st.waiting[i]
		others := make([]Request, 0, len(st.waiting)-1)
		others = append(append(others, st.waiting[:i]...), st.waiting[i+1:]...)
		if !a.grantable(st, r, blocked, others) {
			blocked = append(blocked, r)
			i++
			continue
		}
		g, err := a.grant(st, r, now)
		if err != nil {
			return granted, err
		}
		st.waiting = slices.Delete(st.waiting, i, i+1)
		granted = append(granted, g)
	}
	return granted, nil
}

// Release reports that an agent cleared the intersection and returns the
// grants it made possible.
func (a *Arbiter) Release(id agent.AgentID, now int64) ([]Grant, error) {
	h, ok := a.holders[id]
	if !ok || !h.granted {
		return nil, fmt.Errorf("%w: %s holds no grant", ErrInvalidTurnRequest, id)
	}
	st := a.states[h.at]
	st.granted = slices.DeleteFunc(st.granted, func(g Grant) bool { return g.Agent == id })
	delete(a.holders, id)
	return a.reevaluate(st, now)
}

// Withdraw drops an agent's pending request or grant, if any. Withdrawing an
// agent unknown to the arbiter is a no-op.
func (a *Arbiter) Withdraw(id agent.AgentID, now int64) ([]Grant, error) {
	h, ok := a.holders[id]
	if !ok {
		return nil, nil
	}
	st := a.states[h.at]
	if h.granted {
		st.granted = slices.DeleteFunc(st.granted, func(g Grant) bool { return g.Agent == id })
	} else {
		st.waiting = slices.DeleteFunc(st.waiting, func(r Request) bool { return r.Agent == id })
	}
	delete(a.holders, id)
	return a.reevaluate(st, now)
}

// AdvancePhase moves a signal to its next phase and returns the new phase
// index and the grants the change made possible.
func (a *Arbiter) AdvancePhase(id mapmodel.IntersectionID, now int64) (int, []Grant, error) {
	st := a.states[id]
	if st.control != mapmodel.ControlSignal {
		return 0, nil, fmt.Errorf("intersection %d is a %s, not a signal", id, st.control)
	}
	st.phase = (st.phase + 1) % len(st.phases)
	granted, err := a.reevaluate(st, now)
	return st.phase, granted, err
}

// Phase returns the current phase index of a signal.
func (a *Arbiter) Phase(id mapmodel.IntersectionID) int { return a.states[id].phase }

// Granted returns the active grants of an intersection in grant order.
func (a *Arbiter) Granted(id mapmodel.IntersectionID) []Grant {
	return slices.Clone(a.states[id].granted)
}

// Waiting returns the queued requests of an intersection in service order.
func (a *Arbiter) Waiting(id mapmodel.IntersectionID) []Request {
	return slices.Clone(a.states[id].waiting)
}

// Holding reports whether an agent is waiting at or granted into an intersection.
func (a *Arbiter) Holding(id agent.AgentID) (mapmodel.IntersectionID, bool, bool) {
	h, ok := a.holders[id]
	return h.at, h.granted, ok
}

// CheckInvariants verifies that no two active grants at one intersection
// conflict and that occupancy caps hold.
func (a *Arbiter) CheckInvariants() error {
	for _, st := range a.states {
		if len(st.granted) > st.cap {
			return fmt.Errorf("%w: intersection %d has %d occupants, cap %d", ErrConflictingGrant, st.id, len(st.granted), st.cap)
		}
		for i, g := range st.granted {
			for _, h := range st.granted[i+1:] {
				if a.m.Conflicts(g.Turn, h.Turn) {
					return fmt.Errorf("%w: turns %d and %d both granted at intersection %d", ErrConflictingGrant, g.Turn, h.Turn, st.id)
				}
			}
		}
	}
	return nil
}
