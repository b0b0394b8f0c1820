package sim

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/arbiter"
	"github.com/traffic-sim/traffic-sim/sim/internal/arena"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/metrics"
	"github.com/traffic-sim/traffic-sim/sim/parking"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
	"github.com/traffic-sim/traffic-sim/sim/scheduler"
)

const snapshotFormat = 1

// snapshot is the persisted form of a Simulator. Collections are sorted so
// that equal states encode to equal bytes.
type snapshot struct {
	Format      int                            `json:"format"`
	RunID       string                         `json:"run_id"`
	MapVersion  string                         `json:"map_version"`
	Config      Config                         `json:"config"`
	Now         int64                          `json:"now"`
	Queue       scheduler.State                `json:"queue"`
	Cars        arena.State[*agent.Car]        `json:"cars"`
	Pedestrians arena.State[*agent.Pedestrian] `json:"pedestrians"`
	Persons     []*agent.Person                `json:"persons"`
	Trips       []*agent.Trip                  `json:"trips"`
	NextTrip    agent.TripID                   `json:"next_trip"`
	Parking     parking.State                  `json:"parking"`
	Arbiter     arbiter.State                  `json:"arbiter"`
	Overlay     pathfind.OverlayState          `json:"overlay"`
	Usage       pathfind.UsageState            `json:"usage"`
	Metrics     *metrics.Metrics               `json:"metrics"`
	LogSeq      uint64                         `json:"log_seq"`
}

// Snapshot serializes the complete simulation state. Restoring it against the
// same map and continuing produces the same events as never stopping.
func (s *Simulator) Snapshot() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	persons := lo.Values(s.persons)
	slices.SortFunc(persons, func(a, b *agent.Person) int { return cmp.Compare(a.ID, b.ID) })
	trips := lo.Values(s.trips)
	slices.SortFunc(trips, func(a, b *agent.Trip) int { return cmp.Compare(a.ID, b.ID) })
	snap := snapshot{
		Format:      snapshotFormat,
		RunID:       s.log.RunID(),
		MapVersion:  s.m.Version(),
		Config:      s.cfg,
		Now:         s.now,
		Queue:       s.queue.Snapshot(),
		Cars:        s.cars.Export(),
		Pedestrians: s.peds.Export(),
		Persons:     persons,
		Trips:       trips,
		NextTrip:    s.tripSeq,
		Parking:     s.park.Export(),
		Arbiter:     s.arb.Export(),
		Overlay:     s.pf.Overlay().Export(),
		Usage:       s.pf.Usage().Export(),
		Metrics:     s.stats,
		LogSeq:      s.log.NextSeq(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	log.Infof("[tick %012d] snapshot taken: %d cars, %d pedestrians, %d pending events", s.now, s.cars.Len(), s.peds.Len(), s.queue.Len())
	return data, nil
}

// Restore rebuilds a simulator from a snapshot taken on map m. The event log
// of the restored simulator continues the numbering of the original; sinks
// must be attached again.
func Restore(m *mapmodel.Map, data []byte) (*Simulator, error) {
	if m == nil {
		panic("Restore: map must not be nil")
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if snap.Format != snapshotFormat {
		return nil, fmt.Errorf("restore: unsupported snapshot format %d", snap.Format)
	}
	if snap.MapVersion != m.Version() {
		return nil, fmt.Errorf("%w: snapshot taken on %q, map is %q", ErrMapVersionMismatch, snap.MapVersion, m.Version())
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	s := newSimulator(m, snap.Config)
	if snap.RunID != s.log.RunID() {
		return nil, fmt.Errorf("restore: run id %s does not match map and seed (%s)", snap.RunID, s.log.RunID())
	}
	var err error
	if s.queue, err = scheduler.Restore(snap.Queue); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if s.cars, err = arena.Import(snap.Cars); err != nil {
		return nil, fmt.Errorf("restore cars: %w", err)
	}
	if s.peds, err = arena.Import(snap.Pedestrians); err != nil {
		return nil, fmt.Errorf("restore pedestrians: %w", err)
	}
	for _, p := range snap.Persons {
		s.persons[p.ID] = p
	}
	for _, t := range snap.Trips {
		if _, ok := s.persons[t.Person]; !ok {
			return nil, fmt.Errorf("restore: %s belongs to unknown %s", t.ID, t.Person)
		}
		s.trips[t.ID] = t
	}
	s.tripSeq = snap.NextTrip
	if err := s.park.Import(snap.Parking); err != nil {
		return nil, fmt.Errorf("restore parking: %w", err)
	}
	if err := s.arb.Import(snap.Arbiter); err != nil {
		return nil, fmt.Errorf("restore arbiter: %w", err)
	}
	if err := s.pf.Overlay().Import(snap.Overlay); err != nil {
		return nil, fmt.Errorf("restore overlay: %w", err)
	}
	s.pf.Usage().Import(snap.Usage)
	if snap.Metrics != nil {
		s.stats = snap.Metrics
		if s.stats.TripDurations == nil {
			s.stats.TripDurations = make(map[agent.TripID]int64)
		}
	}
	s.log.Resume(snap.LogSeq)
	s.now = snap.Now
	if err := s.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	log.Infof("[tick %012d] restored run %s", s.now, s.log.RunID())
	return s, nil
}
