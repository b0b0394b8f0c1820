package sim

import (
	"context"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

// dispatch runs the handler of one event. A returned error is fatal.
func (s *Simulator) dispatch(ctx context.Context, e scheduler.Event) error {
	switch e.Kind {
	case scheduler.TripSpawned:
		return s.onTripSpawned(ctx, e)
	case scheduler.TripPhaseChanged:
		return s.onTripPhaseChanged(ctx, e)
	case scheduler.LaneEndReached:
		return s.onAgent(e, func(a mover) error { return s.reachLaneEnd(ctx, a) })
	case scheduler.TurnRequested:
		return s.onAgent(e, func(a mover) error {
			if !a.mv.HasTurn || a.mv.Turn != e.Turn || a.mv.Granted {
				return s.stale(e)
			}
			return s.requestTurn(ctx, a, e.Turn)
		})
	case scheduler.TurnGranted:
		return s.onAgent(e, func(a mover) error {
			if a.mv.Status != agent.IntersectionQueue || a.mv.Turn != e.Turn {
				return s.stale(e)
			}
			return s.crossTurn(ctx, a, e.Turn)
		})
	case scheduler.TurnCleared:
		return s.onAgent(e, func(a mover) error {
			if !a.mv.Granted || a.mv.Turn != e.Turn {
				return s.stale(e)
			}
			return s.clearTurn(ctx, a, e.Turn)
		})
	case scheduler.ParkingCompleted:
		return s.onParkingCompleted(ctx, e)
	case scheduler.SignalPhaseAdvance:
		return s.onSignalPhaseAdvance(ctx, e)
	case scheduler.BusDispatched:
		return s.onBusDispatched(ctx, e)
	case scheduler.BusDwellEnded:
		return s.onBusDwellEnded(ctx, e)
	}
	return invariantf("unknown event kind %s", e.Kind)
}

// stale drops an event that no longer matches its actor's state.
func (s *Simulator) stale(e scheduler.Event) error {
	log.Debugf("[tick %012d] dropping stale %s", s.now, e)
	return nil
}

// onAgent resolves the agent an event belongs to and runs fn on it. Events
// of retired agents are dropped.
func (s *Simulator) onAgent(e scheduler.Event, fn func(mover) error) error {
	id, ok := e.Actor.Agent()
	if !ok {
		return invariantf("%s is not addressed to an agent", e)
	}
	a, live := s.lookup(id)
	if !live {
		return s.stale(e)
	}
	return fn(a)
}

func (s *Simulator) tripOf(e scheduler.Event) (*agent.Trip, bool) {
	if e.Actor.Class != scheduler.ActorTrip {
		return nil, false
	}
	t, ok := s.trips[agent.TripID(e.Actor.ID)]
	return t, ok
}

func (s *Simulator) onTripSpawned(ctx context.Context, e scheduler.Event) error {
	t, ok := s.tripOf(e)
	if !ok {
		return invariantf("%s for unknown trip", e)
	}
	if t.Phase != agent.DelayedStart {
		return s.stale(e)
	}
	return s.beginTrip(ctx, t)
}

// onTripPhaseChanged fires when a transit rider reaches its stop. A bus
// already dwelling there takes it on; otherwise it waits for the next one.
func (s *Simulator) onTripPhaseChanged(ctx context.Context, e scheduler.Event) error {
	t, ok := s.tripOf(e)
	if !ok {
		return invariantf("%s for unknown trip", e)
	}
	if t.Phase != agent.WaitingForBus {
		return s.stale(e)
	}
	bus, ok := s.dwellingBus(t)
	if !ok {
		return nil
	}
	return s.board(ctx, bus, t)
}

func (s *Simulator) onParkingCompleted(ctx context.Context, e scheduler.Event) error {
	id, ok := e.Actor.Agent()
	if !ok || id.Type != agent.AgentCar {
		return invariantf("%s is not addressed to a car", e)
	}
	c, live := s.cars.Get(arena.Handle(id.Car()))
	if !live || c.Status != agent.ParkingRequest || !c.HasSpot || c.Spot != e.Spot {
		return s.stale(e)
	}
	return s.completeParking(ctx, c, e.Spot)
}

func (s *Simulator) onSignalPhaseAdvance(ctx context.Context, e scheduler.Event) error {
	id := mapmodel.IntersectionID(e.Actor.ID)
	phase, grants, err := s.arb.AdvancePhase(id, s.now)
	if err != nil {
		return asInvariant(err)
	}
	s.record(ctx, s.newRecord(eventlog.SignalPhase).Withf("intersection %d phase %d", id, phase))
	if err := s.wake(grants); err != nil {
		return err
	}
	d := s.pf.Overlay().PhaseDurations(id)
	return s.schedule(scheduler.Event{
		Time:  s.now + d[phase],
		Kind:  scheduler.SignalPhaseAdvance,
		Actor: e.Actor,
		Phase: (phase + 1) % len(d),
	})
}
