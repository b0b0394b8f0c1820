package sim

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

// planRoutes computes the bus travel time between consecutive stops of every
// route on the unloaded network. A route with an unreachable stop gets no
// entry and never runs.
func planRoutes(m *mapmodel.Map, pf *pathfind.Pathfinder) [][]int64 {
	legs := make([][]int64, m.NumBusRoutes())
	for i := range legs {
		r := m.BusRoute(mapmodel.BusRouteID(i))
		costs := make([]int64, r.NumStops()-1)
		for k := range costs {
			from, to := m.BusStop(r.Stop(k)).Curb(), m.BusStop(r.Stop(k+1)).Curb()
			c, err := pf.Cost(from, to, pathfind.Bus)
			if err != nil {
				log.Warnf("%s %q is out of service: %v", r.ID(), r.Name(), err)
				costs = nil
				break
			}
			costs[k] = c
		}
		legs[i] = costs
	}
	return legs
}

// planRide picks the stops a transit trip boards and leaves the bus at: the
// pair on a running route with the least walking plus riding time. Ties go to
// the lower route, then the earlier stops.
func (s *Simulator) planRide(spec agent.TripSpec) (board, alight mapmodel.BusStopID, err error) {
	walkTo := make(map[mapmodel.BusStopID]int64)
	walkFrom := make(map[mapmodel.BusStopID]int64)
	cost := func(cache map[mapmodel.BusStopID]int64, stop mapmodel.BusStopID, from, to mapmodel.Position) (int64, bool, error) {
		if c, ok := cache[stop]; ok {
			return c, c >= 0, nil
		}
		c, err := s.pf.Cost(from, to, pathfind.Pedestrian)
		switch {
		case errors.Is(err, pathfind.ErrNoPathFound):
			c = -1
		case err != nil:
			return 0, false, err
		}
		cache[stop] = c
		return c, c >= 0, nil
	}

	best := int64(-1)
	for r, legs := range s.rideLegs {
		if legs == nil {
			continue
		}
		route := s.m.BusRoute(mapmodel.BusRouteID(r))
		for i := 0; i < route.NumStops()-1; i++ {
			on := route.Stop(i)
			in, ok, err := cost(walkTo, on, spec.Start, s.m.BusStop(on).Sidewalk())
			if err != nil {
				return 0, 0, err
			}
			if !ok {
				continue
			}
			var ride int64
			for j := i + 1; j < route.NumStops(); j++ {
				ride += legs[j-1]
				off := route.Stop(j)
				if off == on {
					continue
				}
				out, ok, err := cost(walkFrom, off, s.m.BusStop(off).Sidewalk(), spec.End)
				if err != nil {
					return 0, 0, err
				}
				if total := in + ride + out; ok && (best < 0 || total < best) {
					best, board, alight = total, on, off
				}
			}
		}
	}
	if best < 0 {
		return 0, 0, fmt.Errorf("%w: %s -> %s", ErrNoTransitRoute, spec.Start, spec.End)
	}
	return board, alight, nil
}

// servingRoutes lists the running routes that carry a rider between two stops.
func (s *Simulator) servingRoutes(board, alight mapmodel.BusStopID) []mapmodel.BusRouteID {
	var out []mapmodel.BusRouteID
	for r, legs := range s.rideLegs {
		id := mapmodel.BusRouteID(r)
		if legs != nil && s.m.BusRoute(id).Serves(board, alight) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Simulator) headway(r *mapmodel.BusRoute) int64 {
	if h := r.Headway(); h > 0 {
		return h
	}
	return mapmodel.SecondsToTicks(s.cfg.Transit.Headway)
}

// ensureDispatch puts the routes serving a trip's ride into service. A route
// that is idle runs its next bus at the first multiple of its headway.
func (s *Simulator) ensureDispatch(t *agent.Trip) error {
	for _, id := range s.servingRoutes(t.BoardStop, t.AlightStop) {
		actor := scheduler.RouteActor(id)
		if len(s.queue.Pending(actor)) > 0 {
			continue
		}
		h := s.headway(s.m.BusRoute(id))
		if err := s.schedule(scheduler.Event{
			Time:  (s.now + h - 1) / h * h,
			Kind:  scheduler.BusDispatched,
			Actor: actor,
		}); err != nil {
			return err
		}
	}
	return nil
}

// demand reports whether any live trip is heading for, or waiting at, a stop
// the route can carry it from.
func (s *Simulator) demand(id mapmodel.BusRouteID) bool {
	route := s.m.BusRoute(id)
	for _, t := range s.trips {
		if t.Spec.Mode != agent.Transit {
			continue
		}
		toStop := t.Phase == agent.Walking && !t.HasLeg(agent.Transit)
		if (toStop || t.Phase == agent.WaitingForBus) && route.Serves(t.BoardStop, t.AlightStop) {
			return true
		}
	}
	return false
}

// onBusDispatched puts a new bus of the route at its first stop. The route
// keeps running on its headway while it has demand.
func (s *Simulator) onBusDispatched(ctx context.Context, e scheduler.Event) error {
	id := mapmodel.BusRouteID(e.Actor.ID)
	if int(id) >= len(s.rideLegs) || s.rideLegs[id] == nil {
		return invariantf("%s for a route out of service", e)
	}
	route := s.m.BusRoute(id)
	bus := &agent.Car{Owner: agent.NoPerson, Vehicle: agent.VehicleBus, Route: id, HasRoute: true}
	bus.Pos, bus.Status, bus.Trip, bus.Since = s.m.BusStop(route.Stop(0)).Curb(), agent.Idle, agent.NoTrip, s.now
	bus.ID = agent.CarID(s.cars.Insert(bus))
	s.stats.BusesDispatched++
	s.record(ctx, s.newRecord(eventlog.BusDispatched).WithAgent(bus.ID.Agent()).WithPos(bus.Pos).Withf("%s", route.Name()))
	log.Debugf("[tick %012d] %s dispatched on %s", s.now, bus.ID, id)

	if err := s.serveStop(ctx, bus); err != nil {
		return err
	}
	if !s.demand(id) {
		return nil
	}
	return s.schedule(scheduler.Event{
		Time:  s.now + s.headway(route),
		Kind:  scheduler.BusDispatched,
		Actor: e.Actor,
	})
}

// serveStop lets riders off and on at the stop the bus is at. At the last
// stop the bus is taken out of service instead of boarding.
func (s *Simulator) serveStop(ctx context.Context, bus *agent.Car) error {
	route := s.m.BusRoute(bus.Route)
	k := bus.StopIndex
	stop := s.m.BusStop(route.Stop(k))

	var off []*agent.Trip
	for _, id := range bus.Riders {
		if t := s.trips[id]; t.AlightStop == stop.ID() {
			off = append(off, t)
		}
	}
	for _, t := range off {
		bus.DropRider(t.ID)
		t.OnBus = false
		if err := s.advanceTrip(ctx, t, agent.Walking); err != nil {
			return err
		}
		s.record(ctx, s.newRecord(eventlog.BusAlighted).WithAgent(bus.ID.Agent()).WithTrip(t.ID).WithPos(stop.Sidewalk()))
		if err := s.walk(ctx, t, stop.Sidewalk(), t.Spec.End); err != nil {
			return err
		}
	}

	if k == route.NumStops()-1 {
		if len(bus.Riders) > 0 {
			return invariantf("%s reached the end of %s with %d riders", bus.ID, route.ID(), len(bus.Riders))
		}
		if err := bus.Apply(agent.Arrive); err != nil {
			return asInvariant(fmt.Errorf("%s: %w", bus.ID, err))
		}
		s.record(ctx, s.newRecord(eventlog.Arrived).WithAgent(bus.ID.Agent()).WithPos(bus.Pos))
		return s.retire(ctx, bus.ID.Agent())
	}

	if bus.Status == agent.Moving {
		if err := bus.Apply(agent.Halt); err != nil {
			return asInvariant(fmt.Errorf("%s: %w", bus.ID, err))
		}
		bus.Since = s.now
	}
	for _, t := range s.waitingAt(stop.ID()) {
		if len(bus.Riders) >= s.cfg.Transit.Capacity {
			break
		}
		if _, ok := route.StopAfter(t.AlightStop, k); !ok {
			continue
		}
		if err := s.board(ctx, bus, t); err != nil {
			return err
		}
	}
	return s.schedule(scheduler.Event{
		Time:  s.now + mapmodel.SecondsToTicks(s.cfg.Transit.Dwell),
		Kind:  scheduler.BusDwellEnded,
		Actor: scheduler.AgentActor(bus.ID.Agent()),
		Phase: k,
	})
}

// waitingAt returns the riders waiting at a stop, longest wait first.
func (s *Simulator) waitingAt(stop mapmodel.BusStopID) []*agent.Trip {
	var out []*agent.Trip
	for _, t := range s.trips {
		if t.Phase == agent.WaitingForBus && t.BoardStop == stop {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *agent.Trip) int {
		wa, wb := a.Timeline[len(a.Timeline)-1].Time, b.Timeline[len(b.Timeline)-1].Time
		if c := cmp.Compare(wa, wb); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Simulator) board(ctx context.Context, bus *agent.Car, t *agent.Trip) error {
	if err := s.advanceTrip(ctx, t, agent.RidingBus); err != nil {
		return err
	}
	t.Bus, t.OnBus = bus.ID, true
	bus.Riders = append(bus.Riders, t.ID)
	s.stats.Boardings++
	s.record(ctx, s.newRecord(eventlog.BusBoarded).WithAgent(bus.ID.Agent()).WithTrip(t.ID).WithPos(bus.Pos))
	return nil
}

// dwellingBus finds a bus halted at the trip's stop that will take it where it
// is going and has room.
func (s *Simulator) dwellingBus(t *agent.Trip) (*agent.Car, bool) {
	var found *agent.Car
	s.cars.Each(func(_ arena.Handle, c *agent.Car) {
		if found != nil || !c.HasRoute || (c.Status != agent.Idle && c.Status != agent.AtStop) {
			return
		}
		route := s.m.BusRoute(c.Route)
		if route.Stop(c.StopIndex) != t.BoardStop || len(c.Riders) >= s.cfg.Transit.Capacity {
			return
		}
		if _, ok := route.StopAfter(t.AlightStop, c.StopIndex); ok {
			found = c
		}
	})
	return found, found != nil
}

// reachBusStop starts the wait of a rider that walked to its stop.
func (s *Simulator) reachBusStop(ctx context.Context, t *agent.Trip) error {
	if err := s.advanceTrip(ctx, t, agent.WaitingForBus); err != nil {
		return err
	}
	t.AddLeg(agent.Transit, s.m.BusStop(t.BoardStop).Curb(), s.m.BusStop(t.AlightStop).Curb())
	if err := s.ensureDispatch(t); err != nil {
		return err
	}
	return s.schedule(scheduler.Event{
		Time:  s.now,
		Kind:  scheduler.TripPhaseChanged,
		Actor: scheduler.TripActor(t.ID),
	})
}

// leaveStop sends a bus whose dwell ended on to its next stop. A route cut by
// new turn restrictions strands the bus and fails its riders.
func (s *Simulator) leaveStop(ctx context.Context, bus *agent.Car) error {
	route := s.m.BusRoute(bus.Route)
	next := s.m.BusStop(route.Stop(bus.StopIndex + 1)).Curb()
	p, err := s.pf.Route(bus.Pos, next, pathfind.Bus)
	if err != nil {
		if !errors.Is(err, pathfind.ErrNoPathFound) {
			return err
		}
		log.Warnf("[tick %012d] %s stranded on %s: %v", s.now, bus.ID, route.ID(), err)
		for _, id := range slices.Clone(bus.Riders) {
			if err := s.failTrip(ctx, s.trips[id], fmt.Errorf("%s stranded: %w", route.ID(), err)); err != nil {
				return err
			}
		}
		return s.retire(ctx, bus.ID.Agent())
	}
	bus.StopIndex++
	return s.depart(ctx, bus.ID.Agent(), &bus.Movement, pathfind.Bus, p)
}

func (s *Simulator) onBusDwellEnded(ctx context.Context, e scheduler.Event) error {
	id, ok := e.Actor.Agent()
	if !ok || id.Type != agent.AgentCar {
		return invariantf("%s is not addressed to a car", e)
	}
	bus, live := s.cars.Get(arena.Handle(id.Car()))
	if !live || !bus.HasRoute || bus.StopIndex != e.Phase || (bus.Status != agent.Idle && bus.Status != agent.AtStop) {
		return s.stale(e)
	}
	return s.leaveStop(ctx, bus)
}

// checkBus verifies a bus against the trips it carries.
func (s *Simulator) checkBus(bus *agent.Car) error {
	if len(bus.Riders) > s.cfg.Transit.Capacity {
		return invariantf("%s carries %d riders, capacity %d", bus.ID, len(bus.Riders), s.cfg.Transit.Capacity)
	}
	for _, id := range bus.Riders {
		t, ok := s.trips[id]
		if !ok || !t.OnBus || t.Bus != bus.ID || t.Phase != agent.RidingBus {
			return invariantf("%s carries %s which is not riding it", bus.ID, id)
		}
	}
	return nil
}
