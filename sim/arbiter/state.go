package arbiter

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// IntersectionState is the serialized right-of-way state of one intersection.
type IntersectionState struct {
	ID      mapmodel.IntersectionID `json:"id"`
	Phase   int                     `json:"phase"`
	Waiting []Request               `json:"waiting,omitempty"`
	Granted []Grant                 `json:"granted,omitempty"`
}

// State is the serialized arbiter. Only intersections with a queue, a grant
// or a signal past its first phase are listed.
type State struct {
	Intersections []IntersectionState `json:"intersections"`
}

// Export snapshots every intersection in id order.
func (a *Arbiter) Export() State {
	busy := lo.Filter(a.states, func(st *intersection, _ int) bool {
		return st.phase != 0 || len(st.waiting) > 0 || len(st.granted) > 0
	})
	return State{Intersections: lo.Map(busy, func(st *intersection, _ int) IntersectionState {
		return IntersectionState{
			ID:      st.id,
			Phase:   st.phase,
			Waiting: slices.Clone(st.waiting),
			Granted: slices.Clone(st.granted),
		}
	})}
}

// Import replaces all queues, grants and signal phases with a snapshot.
// Grants are re-checked for conflicts.
func (a *Arbiter) Import(s State) error {
	fresh := New(a.m, 1)
	for i, st := range fresh.states {
		st.cap = a.states[i].cap
	}
	for _, is := range s.Intersections {
		if !a.m.HasIntersection(is.ID) {
			return fmt.Errorf("importing arbiter: intersection %d does not exist", is.ID)
		}
		st := fresh.states[is.ID]
		if is.Phase < 0 || (is.Phase > 0 && is.Phase >= len(st.phases)) {
			return fmt.Errorf("importing arbiter: intersection %d has no phase %d", is.ID, is.Phase)
		}
		st.phase = is.Phase
		for _, g := range is.Granted {
			if err := fresh.checkImported(st, g.Agent, g.Turn); err != nil {
				return err
			}
			if _, err := fresh.grant(st, Request{Agent: g.Agent, Turn: g.Turn}, g.Since); err != nil {
				return fmt.Errorf("importing arbiter: %w", err)
			}
		}
		for _, r := range is.Waiting {
			if err := fresh.checkImported(st, r.Agent, r.Turn); err != nil {
				return err
			}
			st.waiting = append(st.waiting, r)
			fresh.holders[r.Agent] = holding{at: st.id}
		}
		slices.SortStableFunc(st.waiting, a.compare)
	}
	a.states, a.holders = fresh.states, fresh.holders
	return nil
}

func (a *Arbiter) checkImported(st *intersection, id agent.AgentID, t mapmodel.TurnID) error {
	if !a.m.HasTurn(t) || a.m.Turn(t).Intersection() != st.id {
		return fmt.Errorf("importing arbiter: %w: turn %d is not at intersection %d", ErrInvalidTurnRequest, t, st.id)
	}
	if _, dup := a.holders[id]; dup {
		return fmt.Errorf("importing arbiter: %w: %s listed twice", ErrInvalidTurnRequest, id)
	}
	return nil
}
