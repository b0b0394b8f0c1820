package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/parking"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

// SpawnTrip appends trips to a person's itinerary and returns their ids.
// Trips run one after another; the first starts at its departure time, or
// now if that has passed. Either every spec is accepted or none is.
func (s *Simulator) SpawnTrip(person agent.PersonID, specs []agent.TripSpec) ([]agent.TripID, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no trips for %s", ErrInvalidTrip, person)
	}
	for i, spec := range specs {
		if err := s.validateTrip(spec); err != nil {
			return nil, fmt.Errorf("trip %d of %s: %w", i, person, err)
		}
	}
	p, ok := s.persons[person]
	if !ok {
		p = &agent.Person{ID: person}
		s.persons[person] = p
	}
	ids := make([]agent.TripID, len(specs))
	for i, spec := range specs {
		id := s.tripSeq
		s.tripSeq++
		s.trips[id] = agent.NewTrip(id, person, spec, s.now)
		p.Trips = append(p.Trips, id)
		ids[i] = id
	}
	if !p.Active {
		if err := s.startNext(p, s.now); err != nil {
			return ids, s.halt(err)
		}
	}
	log.Debugf("[tick %012d] %s: %d trips queued", s.now, person, len(ids))
	return ids, nil
}

// CheckTrip reports whether SpawnTrip would accept a spec, without spawning
// anything.
func (s *Simulator) CheckTrip(spec agent.TripSpec) error {
	return s.validateTrip(spec)
}

func (s *Simulator) validateTrip(spec agent.TripSpec) error {
	if int(spec.Mode) >= len(agent.AllTripModes()) {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidTrip, spec.Mode)
	}
	if spec.Departure < 0 {
		return fmt.Errorf("%w: negative departure %d", ErrInvalidTrip, spec.Departure)
	}
	for _, p := range []mapmodel.Position{spec.Start, spec.End} {
		if !s.m.HasLane(p.Lane) {
			return fmt.Errorf("%w: lane %d does not exist", ErrInvalidTrip, p.Lane)
		}
		if l := s.m.Lane(p.Lane).Length(); p.Dist < 0 || p.Dist > l {
			return fmt.Errorf("%w: %s outside lane length %.1f", ErrInvalidTrip, p, l)
		}
	}
	startType, endType := s.m.Lane(spec.Start.Lane).Type(), s.m.Lane(spec.End.Lane).Type()
	var startOK, endOK bool
	switch spec.Mode {
	case agent.Transit:
		// A ride is walked to and from the stops.
		startOK, endOK = pathfind.Pedestrian.CanUseLane(startType), pathfind.Pedestrian.CanUseLane(endType)
	case agent.Drive:
		// A drive starts at the wheel of a new car or on foot toward a parked
		// one, and always ends on foot.
		startOK = pathfind.Car.CanUseLane(startType) || pathfind.Pedestrian.CanUseLane(startType)
		endOK = pathfind.Pedestrian.CanUseLane(endType)
	default:
		m := spec.Mode.PathMode()
		startOK, endOK = m.CanUseLane(startType), m.CanUseLane(endType)
	}
	if !startOK || !endOK {
		return fmt.Errorf("%w: %s trip cannot go from a %s lane to a %s lane", ErrInvalidTrip, spec.Mode, startType, endType)
	}
	return nil
}

// startNext schedules the person's next live trip no earlier than earliest.
func (s *Simulator) startNext(p *agent.Person, earliest int64) error {
	p.Active = false
	for {
		id, ok := p.Pending()
		if !ok {
			return nil
		}
		t := s.trips[id]
		if t.Phase.Terminal() {
			p.Next++
			continue
		}
		p.Active = true
		return s.schedule(scheduler.Event{
			Time:  max(t.Spec.Departure, earliest),
			Kind:  scheduler.TripSpawned,
			Actor: scheduler.TripActor(id),
		})
	}
}

func (s *Simulator) afterTrip(t *agent.Trip) error {
	return s.startNext(s.persons[t.Person], s.now+mapmodel.SecondsToTicks(s.cfg.Trip.Gap))
}

// CancelTrip stops a trip. Its agents are retired with everything they hold;
// a car already parked stays parked. Cancelling a finished trip is a no-op.
func (s *Simulator) CancelTrip(id agent.TripID) error {
	if s.err != nil {
		return s.err
	}
	t, ok := s.trips[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrip, id)
	}
	if t.Phase.Terminal() {
		return nil
	}
	p := s.persons[t.Person]
	pending, _ := p.Pending()
	current := t.Phase != agent.DelayedStart || pending == id
	ctx := context.Background()

	s.queue.CancelActor(scheduler.TripActor(id))
	if err := s.dropAgents(ctx, t); err != nil {
		return s.halt(err)
	}
	if err := t.Advance(agent.Cancelled, s.now); err != nil {
		return s.halt(err)
	}
	s.stats.TripsCancelled++
	s.record(ctx, s.newRecord(eventlog.TripCancelled).WithTrip(id))
	log.Infof("[tick %012d] %s cancelled", s.now, id)
	if current {
		if err := s.afterTrip(t); err != nil {
			return s.halt(err)
		}
	}
	return nil
}

// advanceTrip moves a trip to a new phase and logs it.
func (s *Simulator) advanceTrip(ctx context.Context, t *agent.Trip, to agent.TripPhase) error {
	if err := t.Advance(to, s.now); err != nil {
		return asInvariant(err)
	}
	s.record(ctx, s.newRecord(eventlog.TripPhase).WithTrip(t.ID).Withf("%s", to))
	return nil
}

func (s *Simulator) finishTrip(ctx context.Context, t *agent.Trip) error {
	if err := t.Advance(agent.Finished, s.now); err != nil {
		return asInvariant(err)
	}
	start, _ := t.Started()
	d := s.now - start
	s.stats.TripsFinished++
	s.stats.TripDurations[t.ID] = d
	if s.prom != nil {
		s.prom.ObserveTrip(mapmodel.TicksToSeconds(d))
	}
	s.record(ctx, s.newRecord(eventlog.TripFinished).WithTrip(t.ID).Withf("%.1fs", mapmodel.TicksToSeconds(d)))
	log.Debugf("[tick %012d] %s finished in %.1fs", s.now, t.ID, mapmodel.TicksToSeconds(d))
	return s.afterTrip(t)
}

// failTrip ends a trip that cannot go on. Routing and parking failures land
// here; only bookkeeping errors while tearing down are fatal.
func (s *Simulator) failTrip(ctx context.Context, t *agent.Trip, reason error) error {
	if err := s.dropAgents(ctx, t); err != nil {
		return err
	}
	t.Reason = reason.Error()
	if err := t.Advance(agent.Failed, s.now); err != nil {
		return asInvariant(err)
	}
	s.stats.TripsFailed++
	s.record(ctx, s.newRecord(eventlog.TripFailed).WithTrip(t.ID).Withf("%v", reason))
	log.Infof("[tick %012d] %s failed: %v", s.now, t.ID, reason)
	return s.afterTrip(t)
}

// recoverable reports whether a failure should end the trip rather than the run.
func recoverable(err error) bool {
	return errors.Is(err, pathfind.ErrNoPathFound) || errors.Is(err, parking.ErrNoParkingFound)
}

// dropAgents retires the agents currently carrying a trip.
func (s *Simulator) dropAgents(ctx context.Context, t *agent.Trip) error {
	if t.HasCar {
		if err := s.retire(ctx, t.Car.Agent()); err != nil {
			return err
		}
		t.HasCar = false
	}
	if t.HasPedestrian {
		if err := s.retire(ctx, t.Pedestrian.Agent()); err != nil {
			return err
		}
		t.HasPedestrian = false
	}
	if t.OnBus {
		if bus, ok := s.cars.Get(arena.Handle(t.Bus)); ok {
			bus.DropRider(t.ID)
		}
		t.OnBus = false
	}
	t.HasTarget = false
	return nil
}

// beginTrip runs when a trip leaves DelayedStart.
func (s *Simulator) beginTrip(ctx context.Context, t *agent.Trip) error {
	p := s.persons[t.Person]
	p.Next++
	s.stats.TripsSpawned++
	s.record(ctx, s.newRecord(eventlog.TripSpawned).WithTrip(t.ID).Withf("%s %s -> %s", t.Spec.Mode, t.Spec.Start, t.Spec.End))

	spec := t.Spec
	switch spec.Mode {
	case agent.Walk:
		if err := s.advanceTrip(ctx, t, agent.Walking); err != nil {
			return err
		}
		return s.walk(ctx, t, spec.Start, spec.End)

	case agent.Drive:
		onFoot := pathfind.Pedestrian.CanUseLane(s.m.Lane(spec.Start.Lane).Type())
		switch {
		case p.HasCar && onFoot:
			c, ok := s.cars.Get(arena.Handle(p.Car))
			if !ok {
				return invariantf("%s owns %s which no longer exists", p.ID, p.Car)
			}
			if err := s.advanceTrip(ctx, t, agent.Walking); err != nil {
				return err
			}
			return s.walk(ctx, t, spec.Start, s.m.Spot(c.Spot).Sidewalk)
		case p.HasCar:
			return s.failTrip(ctx, t, fmt.Errorf("%s starts on the road but %s is parked", t.ID, p.Car))
		case onFoot:
			return s.failTrip(ctx, t, fmt.Errorf("%s starts on foot but %s has no parked car", t.ID, p.ID))
		}
		if err := s.advanceTrip(ctx, t, agent.Driving); err != nil {
			return err
		}
		t.AddLeg(agent.Drive, spec.Start, spec.End)
		c := s.spawnCar(t, agent.VehicleCar, spec.Start)
		p.Car, p.HasCar = c.ID, true
		return s.driveToParking(ctx, t, c, false)

	case agent.Bike:
		if err := s.advanceTrip(ctx, t, agent.Biking); err != nil {
			return err
		}
		t.AddLeg(agent.Bike, spec.Start, spec.End)
		c := s.spawnCar(t, agent.VehicleBike, spec.Start)
		return s.departOn(ctx, t, c.ID.Agent(), &c.Movement, pathfind.Bike, spec.End)

	case agent.Transit:
		board, alight, err := s.planRide(spec)
		if errors.Is(err, ErrNoTransitRoute) {
			return s.failTrip(ctx, t, err)
		}
		if err != nil {
			return err
		}
		t.BoardStop, t.AlightStop = board, alight
		if err := s.advanceTrip(ctx, t, agent.Walking); err != nil {
			return err
		}
		if err := s.walk(ctx, t, spec.Start, s.m.BusStop(board).Sidewalk()); err != nil {
			return err
		}
		if t.Phase.Terminal() {
			return nil
		}
		return s.ensureDispatch(t)
	}
	return invariantf("%s has unknown mode %d", t.ID, spec.Mode)
}

// walk sends a new pedestrian of the trip from one sidewalk position to another.
func (s *Simulator) walk(ctx context.Context, t *agent.Trip, from, to mapmodel.Position) error {
	t.AddLeg(agent.Walk, from, to)
	ped := s.spawnPedestrian(t, from)
	return s.departOn(ctx, t, ped.ID.Agent(), &ped.Movement, pathfind.Pedestrian, to)
}

// departOn routes an idle agent to dest and sets it moving. A missing route
// fails the trip.
func (s *Simulator) departOn(ctx context.Context, t *agent.Trip, id agent.AgentID, mv *agent.Movement, mode pathfind.Mode, dest mapmodel.Position) error {
	p, err := s.pf.Route(mv.Pos, dest, mode)
	if err != nil {
		if recoverable(err) {
			return s.failTrip(ctx, t, err)
		}
		return err
	}
	return s.depart(ctx, id, mv, mode, p)
}
