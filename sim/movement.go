package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/arbiter"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/parking"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

// mover is a live agent as the movement handlers see it.
type mover struct {
	id   agent.AgentID
	mv   *agent.Movement
	mode pathfind.Mode
}

// lookup resolves an agent id; ok is false for retired agents.
func (s *Simulator) lookup(id agent.AgentID) (mover, bool) {
	switch id.Type {
	case agent.AgentCar:
		if c, ok := s.cars.Get(arena.Handle(id.Car())); ok {
			return mover{id: id, mv: &c.Movement, mode: c.Vehicle.PathMode()}, true
		}
	case agent.AgentPedestrian:
		if p, ok := s.peds.Get(arena.Handle(id.Pedestrian())); ok {
			return mover{id: id, mv: &p.Movement, mode: pathfind.Pedestrian}, true
		}
	}
	return mover{}, false
}

func (s *Simulator) spawnCar(t *agent.Trip, v agent.VehicleType, pos mapmodel.Position) *agent.Car {
	c := &agent.Car{Owner: t.Person, Vehicle: v}
	c.Pos, c.Status, c.Trip, c.Since = pos, agent.Idle, t.ID, s.now
	c.ID = agent.CarID(s.cars.Insert(c))
	t.Car, t.HasCar = c.ID, true
	return c
}

func (s *Simulator) spawnPedestrian(t *agent.Trip, pos mapmodel.Position) *agent.Pedestrian {
	p := &agent.Pedestrian{Owner: t.Person}
	p.Pos, p.Status, p.Trip, p.Since = pos, agent.Idle, t.ID, s.now
	p.ID = agent.PedestrianID(s.peds.Insert(p))
	t.Pedestrian, t.HasPedestrian = p.ID, true
	return p
}

// retire removes an agent together with its queued events, its turn request
// or grant and any parking it holds. The arena bumps the slot generation, so
// every outstanding reference to the agent turns stale.
func (s *Simulator) retire(ctx context.Context, id agent.AgentID) error {
	s.queue.CancelActor(scheduler.AgentActor(id))
	grants, err := s.arb.Withdraw(id, s.now)
	if err != nil {
		return asInvariant(err)
	}
	switch id.Type {
	case agent.AgentCar:
		if c, ok := s.cars.Get(arena.Handle(id.Car())); ok {
			if p := s.persons[c.Owner]; p != nil && p.HasCar && p.Car == c.ID {
				p.HasCar = false
			}
		}
		s.park.ReleaseCar(id.Car())
		s.cars.Remove(arena.Handle(id.Car()))
	case agent.AgentPedestrian:
		s.peds.Remove(arena.Handle(id.Pedestrian()))
	}
	log.Debugf("[tick %012d] %s retired", s.now, id)
	return s.wake(grants)
}

// wake schedules the wake-up of agents granted by an arbiter state change.
func (s *Simulator) wake(grants []arbiter.Grant) error {
	for _, g := range grants {
		if err := s.schedule(scheduler.Event{
			Time:  s.now,
			Kind:  scheduler.TurnGranted,
			Actor: scheduler.AgentActor(g.Agent),
			Turn:  g.Turn,
		}); err != nil {
			return err
		}
	}
	return nil
}

// depart sets an idle or parked agent moving along p.
func (s *Simulator) depart(ctx context.Context, id agent.AgentID, mv *agent.Movement, mode pathfind.Mode, p *pathfind.Path) error {
	mv.Follow(p, s.now)
	if err := mv.Apply(agent.Depart); err != nil {
		return asInvariant(fmt.Errorf("%s: %w", id, err))
	}
	s.record(ctx, withTrip(s.newRecord(eventlog.Departed).WithAgent(id), mv.Trip).WithPos(mv.Pos).Withf("%s", p))
	return s.travelLane(mover{id: id, mv: mv, mode: mode})
}

// withTrip names the trip an agent carries; route buses carry none.
func withTrip(rec eventlog.Record, id agent.TripID) eventlog.Record {
	if id == agent.NoTrip {
		return rec
	}
	return rec.WithTrip(id)
}

// laneSpan is the stretch of the current lane step an agent travels.
func laneSpan(m *mapmodel.Map, mv *agent.Movement, lane mapmodel.LaneID) (from, to float64) {
	to = m.Lane(lane).Length()
	if mv.Cursor == 0 {
		from = mv.Path.Start.Dist
	}
	if mv.LastLane() {
		to = mv.Path.End.Dist
	}
	return from, to
}

// travelLane schedules the end of the current lane step.
func (s *Simulator) travelLane(a mover) error {
	step, ok := a.mv.Step()
	if !ok || step.Kind != pathfind.StepLane {
		return invariantf("%s is not on a lane step (cursor %d)", a.id, a.mv.Cursor)
	}
	from, to := laneSpan(s.m, a.mv, step.Lane)
	a.mv.Pos = mapmodel.Position{Lane: step.Lane, Dist: from}
	a.mv.Since = s.now
	return s.schedule(scheduler.Event{
		Time:  s.now + s.pf.LaneTime(step.Lane, a.mode, from, to),
		Kind:  scheduler.LaneEndReached,
		Actor: scheduler.AgentActor(a.id),
	})
}

// reachLaneEnd moves an agent past the end of its current lane step: it
// arrives, replans if congestion changed, queues for a turn or enters the
// next lane.
func (s *Simulator) reachLaneEnd(ctx context.Context, a mover) error {
	step, ok := a.mv.Step()
	if !ok || step.Kind != pathfind.StepLane {
		return invariantf("%s reached a lane end off a lane step", a.id)
	}
	_, to := laneSpan(s.m, a.mv, step.Lane)
	a.mv.Pos = mapmodel.Position{Lane: step.Lane, Dist: to}
	if a.mv.LastLane() {
		return s.arrive(ctx, a)
	}
	if s.pf.Stale(a.mv.Path) {
		p, err := s.pf.Route(a.mv.Pos, a.mv.Path.End, a.mode)
		switch {
		case err == nil:
			a.mv.Follow(p, s.now)
			s.stats.Reroutes++
			s.record(ctx, withTrip(s.newRecord(eventlog.Rerouted).WithAgent(a.id), a.mv.Trip).WithPos(a.mv.Pos).Withf("%s", p))
			return s.travelLane(a)
		case !errors.Is(err, pathfind.ErrNoPathFound):
			return err
		}
		// No way to the destination under the new costs: keep the old path.
	}
	a.mv.Cursor++
	next, _ := a.mv.Step()
	if next.Kind == pathfind.StepTurn {
		a.mv.Turn, a.mv.HasTurn, a.mv.Granted = next.Turn, true, false
		return s.schedule(scheduler.Event{
			Time:  s.now,
			Kind:  scheduler.TurnRequested,
			Actor: scheduler.AgentActor(a.id),
			Turn:  next.Turn,
		})
	}
	s.record(ctx, s.newRecord(eventlog.LaneEntered).WithAgent(a.id).WithPos(mapmodel.Position{Lane: next.Lane}))
	return s.travelLane(a)
}

// requestTurn asks the arbiter for the turn ahead.
func (s *Simulator) requestTurn(ctx context.Context, a mover, t mapmodel.TurnID) error {
	s.record(ctx, s.newRecord(eventlog.TurnRequested).WithAgent(a.id).WithPos(a.mv.Pos).Withf("turn %d", t))
	d, err := s.arb.Request(a.id, t, s.now)
	if err != nil {
		return asInvariant(err)
	}
	if d == arbiter.Defer {
		if err := a.mv.Apply(agent.QueueAtTurn); err != nil {
			return asInvariant(fmt.Errorf("%s: %w", a.id, err))
		}
		a.mv.Since = s.now
		s.stats.TurnsDeferred++
		s.record(ctx, s.newRecord(eventlog.TurnDeferred).WithAgent(a.id).Withf("turn %d", t))
		return nil
	}
	return s.crossTurn(ctx, a, t)
}

// crossTurn starts crossing an intersection the agent was granted.
func (s *Simulator) crossTurn(ctx context.Context, a mover, t mapmodel.TurnID) error {
	if a.mv.Status == agent.IntersectionQueue {
		s.stats.IntersectionWait += s.now - a.mv.Since
	}
	if err := a.mv.Apply(agent.Grant); err != nil {
		return asInvariant(fmt.Errorf("%s: %w", a.id, err))
	}
	a.mv.Granted = true
	a.mv.Since = s.now
	s.stats.TurnsGranted++
	s.record(ctx, s.newRecord(eventlog.TurnGranted).WithAgent(a.id).Withf("turn %d", t))
	return s.schedule(scheduler.Event{
		Time:  s.now + s.pf.TurnTime(t, a.mode),
		Kind:  scheduler.TurnCleared,
		Actor: scheduler.AgentActor(a.id),
		Turn:  t,
	})
}

// clearTurn releases the intersection and enters the lane after the turn.
func (s *Simulator) clearTurn(ctx context.Context, a mover, t mapmodel.TurnID) error {
	grants, err := s.arb.Release(a.id, s.now)
	if err != nil {
		return asInvariant(err)
	}
	s.record(ctx, s.newRecord(eventlog.TurnCleared).WithAgent(a.id).Withf("turn %d", t))
	a.mv.HasTurn, a.mv.Granted = false, false
	a.mv.Cursor++
	if err := s.wake(grants); err != nil {
		return err
	}
	next, _ := a.mv.Step()
	s.record(ctx, s.newRecord(eventlog.LaneEntered).WithAgent(a.id).WithPos(mapmodel.Position{Lane: next.Lane}))
	return s.travelLane(a)
}

// arrive handles an agent at the end of its path.
func (s *Simulator) arrive(ctx context.Context, a mover) error {
	if a.id.Type == agent.AgentCar {
		if bus, _ := s.cars.Get(arena.Handle(a.id.Car())); bus.HasRoute {
			return s.serveStop(ctx, bus)
		}
	}
	t, ok := s.trips[a.mv.Trip]
	if !ok {
		return invariantf("%s carries unknown %s", a.id, a.mv.Trip)
	}
	if a.id.Type == agent.AgentCar {
		c, _ := s.cars.Get(arena.Handle(a.id.Car()))
		if c.Vehicle == agent.VehicleCar {
			return s.beginParking(ctx, t, c)
		}
	}
	if err := a.mv.Apply(agent.Arrive); err != nil {
		return asInvariant(fmt.Errorf("%s: %w", a.id, err))
	}
	s.record(ctx, s.newRecord(eventlog.Arrived).WithAgent(a.id).WithTrip(t.ID).WithPos(a.mv.Pos))
	if err := s.retire(ctx, a.id); err != nil {
		return err
	}
	if a.id.Type == agent.AgentCar {
		t.HasCar = false
		return s.finishTrip(ctx, t)
	}
	t.HasPedestrian = false
	switch {
	case t.Spec.Mode == agent.Drive && !t.HasLeg(agent.Drive):
		return s.unpark(ctx, t)
	case t.Spec.Mode == agent.Transit && !t.HasLeg(agent.Transit):
		return s.reachBusStop(ctx, t)
	}
	return s.finishTrip(ctx, t)
}

// findParking searches around the trip's destination, doubling the radius up
// to the configured maximum.
func (s *Simulator) findParking(t *agent.Trip) (mapmodel.SpotID, error) {
	r := t.ParkingRadius
	if r <= 0 {
		r = s.cfg.Parking.InitialRadius
	}
	for {
		spot, err := s.park.FindNearestAvailable(t.Spec.End, r, pathfind.Car)
		if err == nil {
			t.ParkingRadius = r
			return spot, nil
		}
		if !errors.Is(err, parking.ErrNoParkingFound) || r >= s.cfg.Parking.MaxRadius {
			return 0, err
		}
		r = min(2*r, s.cfg.Parking.MaxRadius)
	}
}

// driveToParking picks a target spot near the destination and routes the car
// to its access position. The spot is only reserved on arrival.
func (s *Simulator) driveToParking(ctx context.Context, t *agent.Trip, c *agent.Car, reroute bool) error {
	spot, err := s.findParking(t)
	if err != nil {
		return s.failTrip(ctx, t, err)
	}
	access := s.m.Spot(spot).Access
	p, err := s.pf.Route(c.Pos, access, pathfind.Car)
	if err != nil {
		if recoverable(err) {
			return s.failTrip(ctx, t, err)
		}
		return err
	}
	t.TargetSpot, t.HasTarget = spot, true
	s.record(ctx, s.newRecord(eventlog.ParkingTargeted).WithAgent(c.ID.Agent()).WithTrip(t.ID).WithPos(access).Withf("spot %d", spot))
	if !reroute {
		return s.depart(ctx, c.ID.Agent(), &c.Movement, pathfind.Car, p)
	}
	c.Follow(p, s.now)
	s.stats.Reroutes++
	s.record(ctx, s.newRecord(eventlog.Rerouted).WithAgent(c.ID.Agent()).WithTrip(t.ID).WithPos(c.Pos).Withf("%s", p))
	return s.travelLane(mover{id: c.ID.Agent(), mv: &c.Movement, mode: pathfind.Car})
}

// beginParking tries to reserve the target spot of a car that reached it.
// A spot taken in the meantime sends the car to the next-nearest one.
func (s *Simulator) beginParking(ctx context.Context, t *agent.Trip, c *agent.Car) error {
	if !t.HasTarget {
		return invariantf("%s arrived without a parking target", c.ID)
	}
	if err := c.Apply(agent.BeginParking); err != nil {
		return asInvariant(fmt.Errorf("%s: %w", c.ID, err))
	}
	if err := s.advanceTrip(ctx, t, agent.Parking); err != nil {
		return err
	}
	err := s.park.Reserve(t.TargetSpot, c.ID)
	switch {
	case errors.Is(err, parking.ErrNoParkingFound):
		s.stats.ParkingRejections++
		s.record(ctx, s.newRecord(eventlog.ParkingRejected).WithAgent(c.ID.Agent()).WithTrip(t.ID).WithPos(c.Pos).Withf("%v", err))
		if err := c.Apply(agent.ParkingFailed); err != nil {
			return asInvariant(fmt.Errorf("%s: %w", c.ID, err))
		}
		if err := s.advanceTrip(ctx, t, agent.Driving); err != nil {
			return err
		}
		t.HasTarget = false
		return s.driveToParking(ctx, t, c, true)
	case err != nil:
		return asInvariant(err)
	}
	c.Spot, c.HasSpot = t.TargetSpot, true
	s.record(ctx, s.newRecord(eventlog.ParkingReserved).WithAgent(c.ID.Agent()).WithTrip(t.ID).Withf("spot %d", c.Spot))
	return s.schedule(scheduler.Event{
		Time:  s.now + mapmodel.SecondsToTicks(s.cfg.Movement.ParkingManeuver),
		Kind:  scheduler.ParkingCompleted,
		Actor: scheduler.AgentActor(c.ID.Agent()),
		Spot:  c.Spot,
	})
}

// completeParking turns a reservation into occupancy and sends the driver
// walking to the destination.
func (s *Simulator) completeParking(ctx context.Context, c *agent.Car, spot mapmodel.SpotID) error {
	if err := s.park.Occupy(spot, c.ID); err != nil {
		return asInvariant(err)
	}
	if err := c.Apply(agent.Park); err != nil {
		return asInvariant(fmt.Errorf("%s: %w", c.ID, err))
	}
	t := s.trips[c.Trip]
	s.record(ctx, s.newRecord(eventlog.Parked).WithAgent(c.ID.Agent()).WithTrip(t.ID).WithPos(c.Pos).Withf("spot %d", spot))
	t.HasCar, t.HasTarget = false, false
	if err := s.advanceTrip(ctx, t, agent.Walking); err != nil {
		return err
	}
	return s.walk(ctx, t, s.m.Spot(spot).Sidewalk, t.Spec.End)
}

// unpark hands the person's parked car to a drive trip whose driver reached it.
func (s *Simulator) unpark(ctx context.Context, t *agent.Trip) error {
	p := s.persons[t.Person]
	c, ok := s.cars.Get(arena.Handle(p.Car))
	if !p.HasCar || !ok || c.Status != agent.Parked {
		return invariantf("%s reached a car %s does not have parked", t.ID, p.ID)
	}
	s.park.Release(c.Spot)
	s.record(ctx, s.newRecord(eventlog.Unparked).WithAgent(c.ID.Agent()).WithTrip(t.ID).WithPos(c.Pos).Withf("spot %d", c.Spot))
	c.HasSpot = false
	c.Trip = t.ID
	t.Car, t.HasCar = c.ID, true
	t.ParkingRadius = 0
	if err := s.advanceTrip(ctx, t, agent.Driving); err != nil {
		return err
	}
	t.AddLeg(agent.Drive, c.Pos, t.Spec.End)
	return s.driveToParking(ctx, t, c, false)
}
