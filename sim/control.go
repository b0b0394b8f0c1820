package sim

import (
	"context"
	"fmt"
	"slices"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

// AgentStates returns every live agent, sorted by AgentID. Arena iteration is
// in index order and cars sort before pedestrians, so no sort is needed.
func (s *Simulator) AgentStates() []agent.State {
	out := make([]agent.State, 0, s.cars.Len()+s.peds.Len())
	s.cars.Each(func(_ arena.Handle, c *agent.Car) { out = append(out, c.State()) })
	s.peds.Each(func(_ arena.Handle, p *agent.Pedestrian) { out = append(out, p.State()) })
	return out
}

// GetAgentState returns the state of one agent. Retired agents yield
// ErrStaleAgentReference.
func (s *Simulator) GetAgentState(id agent.AgentID) (agent.State, error) {
	switch id.Type {
	case agent.AgentCar:
		if c, ok := s.cars.Get(arena.Handle(id.Car())); ok {
			return c.State(), nil
		}
	case agent.AgentPedestrian:
		if p, ok := s.peds.Get(arena.Handle(id.Pedestrian())); ok {
			return p.State(), nil
		}
	}
	return agent.State{}, fmt.Errorf("%w: %s", ErrStaleAgentReference, id)
}

// TripState returns a copy of a trip.
func (s *Simulator) TripState(id agent.TripID) (agent.Trip, error) {
	t, ok := s.trips[id]
	if !ok {
		return agent.Trip{}, fmt.Errorf("%w: %s", ErrUnknownTrip, id)
	}
	cp := *t
	cp.Timeline = slices.Clone(t.Timeline)
	cp.Legs = slices.Clone(t.Legs)
	return cp, nil
}

// Trips returns the ids of every trip issued so far, in issue order.
func (s *Simulator) Trips() []agent.TripID {
	ids := make([]agent.TripID, 0, len(s.trips))
	for id := agent.TripID(0); id < s.tripSeq; id++ {
		if _, ok := s.trips[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// PathUsage returns how many computed paths used each road and intersection.
func (s *Simulator) PathUsage() pathfind.UsageState {
	return s.pf.Usage().Export()
}

// SetCongestion scales the travel time of a lane. Agents already travelling
// replan at their next lane end; the lane they are on keeps its old timing.
func (s *Simulator) SetCongestion(lane mapmodel.LaneID, weight float64) error {
	if s.err != nil {
		return s.err
	}
	if err := s.pf.Overlay().SetCongestion(lane, weight); err != nil {
		return err
	}
	s.record(context.Background(), s.newRecord(eventlog.CongestionChanged).Withf("lane %d weight %.3f", lane, weight))
	return nil
}

// RetimeSignal replaces the phase durations (ticks) of a signal. The phase
// running now keeps its scheduled end.
func (s *Simulator) RetimeSignal(id mapmodel.IntersectionID, durations []int64) error {
	if s.err != nil {
		return s.err
	}
	if err := s.pf.Overlay().RetimeSignal(id, durations); err != nil {
		return err
	}
	s.record(context.Background(), s.newRecord(eventlog.SignalRetimed).Withf("intersection %d durations %v", id, durations))
	return nil
}
