package sim

import (
	"context"
	"fmt"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/arbiter"
	"github.com/traffic-sim/traffic-sim/sim/eventlog"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/metrics"
	"github.com/traffic-sim/traffic-sim/sim/parking"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

// Simulator runs one deterministic traffic simulation over an immutable map.
//
// All state changes happen inside event handlers invoked by the scheduler in
// (time, actor, kind rank, sequence) order, so a map, a config and a sequence
// of control calls fully determine the event log.
//
// Thread-safety: NOT thread-safe.
type Simulator struct {
	cfg Config
	m   *mapmodel.Map

	pf    *pathfind.Pathfinder
	arb   *arbiter.Arbiter
	park  *parking.Allocator
	queue *scheduler.Queue

	log   *eventlog.Log
	stats *metrics.Metrics
	prom  *metrics.Collectors

	cars    *arena.Arena[*agent.Car]
	peds    *arena.Arena[*agent.Pedestrian]
	persons map[agent.PersonID]*agent.Person
	trips   map[agent.TripID]*agent.Trip
	tripSeq agent.TripID
	// rideLegs[r] holds the bus time between consecutive stops of route r,
	// nil for a route out of service.
	rideLegs [][]int64

	now int64
	// err is the fatal error that halted the run, if any.
	err error
}

// newSimulator wires the components without scheduling anything.
func newSimulator(m *mapmodel.Map, cfg Config) *Simulator {
	s := &Simulator{
		cfg:     cfg,
		m:       m,
		pf:      pathfind.New(m, cfg.Movement.Speeds),
		arb:     arbiter.New(m, cfg.Arbiter.DefaultOccupancyCap),
		park:    parking.New(m),
		queue:   scheduler.NewQueue(),
		log:     eventlog.NewLog(eventlog.RunID(m.Version(), cfg.Run.Seed)),
		stats:   metrics.NewMetrics(),
		cars:    arena.New[*agent.Car](),
		peds:    arena.New[*agent.Pedestrian](),
		persons: make(map[agent.PersonID]*agent.Person),
		trips:   make(map[agent.TripID]*agent.Trip),
	}
	s.rideLegs = planRoutes(m, s.pf)
	return s
}

// NewSimulator creates a simulator at time zero with every signal running its
// first phase. It panics on a nil map or an invalid config.
func NewSimulator(m *mapmodel.Map, cfg Config) *Simulator {
	if m == nil {
		panic("NewSimulator: map must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("NewSimulator: invalid config: %v", err))
	}
	s := newSimulator(m, cfg)
	for i := 0; i < m.NumIntersections(); i++ {
		id := mapmodel.IntersectionID(i)
		if m.Intersection(id).Control() != mapmodel.ControlSignal {
			continue
		}
		d := s.pf.Overlay().PhaseDurations(id)
		if err := s.schedule(scheduler.Event{
			Time:  d[0],
			Kind:  scheduler.SignalPhaseAdvance,
			Actor: scheduler.IntersectionActor(id),
			Phase: 1 % len(d),
		}); err != nil {
			panic(fmt.Sprintf("NewSimulator: %v", err))
		}
	}
	log.Infof("simulator ready: map %s, %d signals, run %s", m.Version(), s.queue.Len(), s.log.RunID())
	return s
}

// Now is the current simulation time in ticks.
func (s *Simulator) Now() int64 { return s.now }

// Err returns the fatal error that halted the simulator, or nil.
func (s *Simulator) Err() error { return s.err }

// Map returns the road network the simulator runs on.
func (s *Simulator) Map() *mapmodel.Map { return s.m }

// Config returns the configuration the simulator runs with.
func (s *Simulator) Config() Config { return s.cfg }

// EventLog returns the append-only event log.
func (s *Simulator) EventLog() *eventlog.Log { return s.log }

// Metrics returns the aggregated run statistics.
func (s *Simulator) Metrics() *metrics.Metrics { return s.stats }

// Instrument streams the run to Prometheus collectors.
func (s *Simulator) Instrument(c *metrics.Collectors) {
	s.prom = c
	s.log.Attach(c)
}

// PendingEvents is the number of scheduled events.
func (s *Simulator) PendingEvents() int { return s.queue.Len() }

// Idle reports whether every trip has reached a terminal phase.
func (s *Simulator) Idle() bool {
	for _, t := range s.trips {
		if !t.Phase.Terminal() {
			return false
		}
	}
	return true
}

// Advance runs every event up to and including now+d.
func (s *Simulator) Advance(ctx context.Context, d int64) error {
	return s.AdvanceTo(ctx, s.now+d)
}

// AdvanceTo runs every event up to and including time until, then sets the
// clock to until. The context is checked between events; a cancelled context
// stops the run without halting the simulator.
func (s *Simulator) AdvanceTo(ctx context.Context, until int64) error {
	if s.err != nil {
		return s.err
	}
	if until < s.now {
		return fmt.Errorf("%w: cannot advance to %d, clock is at %d", scheduler.ErrNonMonotonicTime, until, s.now)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := s.queue.Peek()
		if !ok || e.Time > until {
			break
		}
		s.queue.Next()
		if e.Time < s.now {
			return s.halt(invariantf("event %s before clock %d", e, s.now))
		}
		s.now = e.Time
		log.Tracef("[tick %012d] Executing %s", e.Time, e)
		if err := s.dispatch(ctx, e); err != nil {
			return s.halt(err)
		}
		if err := s.afterEvent(); err != nil {
			return s.halt(err)
		}
	}
	s.now = until
	return nil
}

func (s *Simulator) afterEvent() error {
	s.stats.ObserveAgents(s.cars.Len() + s.peds.Len())
	if s.prom != nil {
		s.prom.SetAgents(s.cars.Len(), s.peds.Len())
	}
	if !s.cfg.Run.CheckInvariants {
		return nil
	}
	return s.CheckInvariants()
}

// CheckInvariants verifies spot exclusivity, conflict-free grants, that every
// car's parking bookkeeping agrees with the allocator and that buses carry
// exactly the trips riding them.
func (s *Simulator) CheckInvariants() error {
	if err := s.park.CheckInvariants(); err != nil {
		return asInvariant(err)
	}
	if err := s.arb.CheckInvariants(); err != nil {
		return asInvariant(err)
	}
	var err error
	s.cars.Each(func(_ arena.Handle, c *agent.Car) {
		spot, held := s.park.SpotOf(c.ID)
		if err == nil && (held != c.HasSpot || (held && spot != c.Spot)) {
			err = invariantf("%s believes it holds spot %d (%t), allocator says %d (%t)", c.ID, c.Spot, c.HasSpot, spot, held)
		}
		if err == nil && c.HasRoute {
			err = s.checkBus(c)
		}
	})
	return err
}

// halt records a fatal error; the simulator refuses to run afterwards.
func (s *Simulator) halt(err error) error {
	s.err = asInvariant(err)
	log.Errorf("[tick %012d] simulation halted: %v", s.now, s.err)
	return s.err
}

func (s *Simulator) schedule(e scheduler.Event) error {
	if e.Time < s.now {
		return invariantf("%s scheduled before clock %d", e, s.now)
	}
	if _, err := s.queue.Schedule(e); err != nil {
		return asInvariant(err)
	}
	return nil
}

// record appends to the event log. Sink failures are logged, never fatal:
// the in-memory log stays complete.
func (s *Simulator) record(ctx context.Context, rec eventlog.Record) {
	if _, err := s.log.Append(ctx, rec); err != nil {
		log.Warnf("[tick %012d] %v", s.now, err)
	}
}

func (s *Simulator) newRecord(kind eventlog.Kind) eventlog.Record {
	return eventlog.New(s.now, kind)
}
