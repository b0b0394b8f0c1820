package mapmodel

import (
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// IntersectionSpec describes one intersection to add to a Builder.
type IntersectionSpec struct {
	Name    string
	Control ControlType
	Point   orb.Point
	// OccupancyCap bounds concurrently granted agents; 0 uses the simulator default.
	OccupancyCap int
}

// LaneSpec describes one lane of a road. Geometry runs in travel direction.
type LaneSpec struct {
	Type       LaneType
	Direction  Direction
	SpeedLimit float64
	Geometry   orb.LineString
	// Length overrides the measured geometry length when > 0.
	Length float64
}

// RoadSpec describes a road and its lanes, in order.
type RoadSpec struct {
	Name  string
	From  IntersectionID
	To    IntersectionID
	Lanes []LaneSpec
}

// TurnSpec describes a movement. Geometry defaults to the chord from the end of
// the from-lane to the start of the to-lane.
type TurnSpec struct {
	From     LaneID
	To       LaneID
	Type     TurnType
	Priority TurnPriority
	Geometry orb.LineString
}

// ParkingLotSpec describes a group of Capacity spots sharing one access point.
type ParkingLotSpec struct {
	Name     string
	Kind     SpotKind
	Capacity int
	Access   Position
	Sidewalk Position
}

// BusStopSpec describes a stop: the curb position on a driving or transit
// lane where buses halt and the sidewalk position where riders wait.
type BusStopSpec struct {
	Name     string
	Curb     Position
	Sidewalk Position
}

// BusRouteSpec describes a route as the ordered stops its buses visit.
type BusRouteSpec struct {
	Name  string
	Stops []BusStopID
	// Headway in ticks between departures; 0 uses the simulator default.
	Headway int64
}

// Builder accumulates a road network and freezes it into a Map.
// IDs are handed out densely in insertion order.
type Builder struct {
	version       string
	coords        CoordSystem
	intersections []IntersectionSpec
	roads         []RoadSpec
	laneSpecs     []LaneSpec
	next          map[LaneID]LaneID
	turns         []TurnSpec
	compatible    [][2]TurnID
	programs      map[IntersectionID][]Phase
	restrictions  []TurnRestriction
	lots          []ParkingLotSpec
	busStops      []BusStopSpec
	busRoutes     []BusRouteSpec
}

// NewBuilder starts an empty map with the given version id.
func NewBuilder(version string, coords CoordSystem) *Builder {
	return &Builder{
		version:  version,
		coords:   coords,
		next:     make(map[LaneID]LaneID),
		programs: make(map[IntersectionID][]Phase),
	}
}

func (b *Builder) AddIntersection(s IntersectionSpec) IntersectionID {
	b.intersections = append(b.intersections, s)
	return IntersectionID(len(b.intersections) - 1)
}

// AddRoad adds a road and returns its id together with the ids of its lanes.
func (b *Builder) AddRoad(s RoadSpec) (RoadID, []LaneID) {
	id := RoadID(len(b.roads))
	b.roads = append(b.roads, s)
	lanes := make([]LaneID, len(s.Lanes))
	for i, ls := range s.Lanes {
		lanes[i] = LaneID(len(b.laneSpecs))
		b.laneSpecs = append(b.laneSpecs, ls)
	}
	return id, lanes
}

// SetNext declares that lane `to` continues lane `from` without an intersection.
func (b *Builder) SetNext(from, to LaneID) {
	b.next[from] = to
}

func (b *Builder) AddTurn(s TurnSpec) TurnID {
	b.turns = append(b.turns, s)
	return TurnID(len(b.turns) - 1)
}

// AddCompatible declares that two turns may be granted together even if their
// geometry overlaps.
func (b *Builder) AddCompatible(t1, t2 TurnID) {
	b.compatible = append(b.compatible, [2]TurnID{t1, t2})
}

// SetSignalProgram sets the fixed phase cycle of a signalized intersection.
func (b *Builder) SetSignalProgram(id IntersectionID, phases []Phase) {
	b.programs[id] = phases
}

func (b *Builder) AddRestriction(r TurnRestriction) {
	b.restrictions = append(b.restrictions, r)
}

func (b *Builder) AddParkingLot(s ParkingLotSpec) ParkingLotID {
	b.lots = append(b.lots, s)
	return ParkingLotID(len(b.lots) - 1)
}

func (b *Builder) AddBusStop(s BusStopSpec) BusStopID {
	b.busStops = append(b.busStops, s)
	return BusStopID(len(b.busStops) - 1)
}

func (b *Builder) AddBusRoute(s BusRouteSpec) BusRouteID {
	b.busRoutes = append(b.busRoutes, s)
	return BusRouteID(len(b.busRoutes) - 1)
}

// Build validates every reference, derives lengths, applies restrictions,
// computes the conflict table and returns the frozen Map. All validation
// problems are reported together.
func (b *Builder) Build() (*Map, error) {
	if b.version == "" {
		return nil, fmt.Errorf("%w: map version must not be empty", ErrInvalidMap)
	}
	m := &Map{version: b.version, coords: b.coords}
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidMap}, args...)...))
	}

	m.intersections = make([]Intersection, len(b.intersections))
	for i, s := range b.intersections {
		if s.OccupancyCap < 0 {
			fail("%s: occupancy cap %d must be >= 0", IntersectionID(i), s.OccupancyCap)
		}
		m.intersections[i] = Intersection{
			id:           IntersectionID(i),
			name:         s.Name,
			control:      s.Control,
			point:        s.Point,
			occupancyCap: s.OccupancyCap,
		}
	}

	m.roads = make([]Road, len(b.roads))
	m.lanes = make([]Lane, 0, len(b.laneSpecs))
	for r, s := range b.roads {
		rid := RoadID(r)
		if !m.HasIntersection(s.From) || !m.HasIntersection(s.To) {
			fail("%s: endpoints %d -> %d reference unknown intersections", rid, s.From, s.To)
			s.From, s.To = NoIntersection, NoIntersection
		}
		road := Road{id: rid, name: s.Name, from: s.From, to: s.To}
		for _, ls := range s.Lanes {
			lid := LaneID(len(m.lanes))
			road.lanes = append(road.lanes, lid)
			m.lanes = append(m.lanes, b.buildLane(lid, rid, s, ls, fail))
		}
		m.roads[r] = road
	}

	froms := lo.Keys(b.next)
	slices.Sort(froms)
	for _, from := range froms {
		to := b.next[from]
		if !m.HasLane(from) || !m.HasLane(to) {
			fail("lane continuation %d -> %d references unknown lanes", from, to)
			continue
		}
		if m.lanes[from].laneType != m.lanes[to].laneType {
			fail("lane continuation %s -> %s joins %s to %s", from, to, m.lanes[from].laneType, m.lanes[to].laneType)
			continue
		}
		m.lanes[from].next = to
	}

	for i := range m.lanes {
		l := &m.lanes[i]
		if l.end != NoIntersection {
			m.intersections[l.end].incoming = append(m.intersections[l.end].incoming, l.id)
		}
		if l.start != NoIntersection {
			m.intersections[l.start].outgoing = append(m.intersections[l.start].outgoing, l.id)
		}
		m.maxSpeed = max(m.maxSpeed, l.speedLimit)
	}

	m.turns = make([]Turn, len(b.turns))
	seen := make(map[[2]LaneID]TurnID)
	for i, s := range b.turns {
		tid := TurnID(i)
		t := Turn{id: tid, intersection: NoIntersection, from: s.From, to: s.To, turnType: s.Type, priority: s.Priority}
		m.turns[i] = t
		if !m.HasLane(s.From) || !m.HasLane(s.To) {
			fail("%s references unknown lanes %d -> %d", tid, s.From, s.To)
			continue
		}
		if prev, dup := seen[[2]LaneID{s.From, s.To}]; dup {
			fail("%s duplicates %s (%s -> %s)", tid, prev, s.From, s.To)
			continue
		}
		seen[[2]LaneID{s.From, s.To}] = tid
		from, to := &m.lanes[s.From], &m.lanes[s.To]
		if from.end == NoIntersection || from.end != to.start {
			fail("%s: %s ends at %d but %s starts at %d", tid, s.From, from.end, s.To, to.start)
			continue
		}
		if err := checkTurnLanes(s.Type, from.laneType, to.laneType); err != nil {
			fail("%s: %v", tid, err)
			continue
		}
		t.intersection = from.end
		t.geom = s.Geometry
		if len(t.geom) == 0 {
			t.geom = orb.LineString{m.LaneEndPoint(s.From), m.LaneStartPoint(s.To)}
		}
		t.length = m.coords.Length(t.geom)
		m.turns[i] = t
		from.turnsOut = append(from.turnsOut, tid)
		m.intersections[t.intersection].turns = append(m.intersections[t.intersection].turns, tid)
	}

	m.restrictions = append([]TurnRestriction(nil), b.restrictions...)
	for _, r := range m.restrictions {
		if int(r.FromRoad) >= len(m.roads) || int(r.ToRoad) >= len(m.roads) || r.FromRoad < 0 || r.ToRoad < 0 {
			fail("restriction %s %d -> %d references unknown roads", r.Type, r.FromRoad, r.ToRoad)
			continue
		}
		applyRestriction(m, r)
	}

	compat, err := b.compatiblePairs(m)
	if err != nil {
		errs = append(errs, err)
	}
	haveConflicts := len(errs) == 0
	if haveConflicts {
		m.conflicts = buildConflicts(m, compat)
	} else {
		m.conflicts = make([][]TurnID, len(m.turns))
	}

	for id, phases := range b.programs {
		if !m.HasIntersection(id) {
			fail("signal program for unknown intersection %d", id)
			continue
		}
		m.intersections[id].phases = clonePhases(phases)
	}
	for i := range m.intersections {
		errs = append(errs, validateSignal(m, &m.intersections[i], haveConflicts)...)
	}

	m.lots = make([]ParkingLot, len(b.lots))
	for i, s := range b.lots {
		lid := ParkingLotID(i)
		if err := checkLot(m, s); err != nil {
			fail("%s: %v", lid, err)
		}
		lot := ParkingLot{id: lid, name: s.Name, kind: s.Kind, access: s.Access, sidewalk: s.Sidewalk}
		for k := 0; k < s.Capacity; k++ {
			sid := SpotID(len(m.spots))
			lot.spots = append(lot.spots, sid)
			m.spots = append(m.spots, Spot{ID: sid, Lot: lid, Kind: s.Kind, Access: s.Access, Sidewalk: s.Sidewalk})
		}
		m.lots[i] = lot
	}

	m.busStops = make([]BusStop, len(b.busStops))
	for i, s := range b.busStops {
		id := BusStopID(i)
		if err := checkBusStop(m, s); err != nil {
			fail("%s: %v", id, err)
		}
		m.busStops[i] = BusStop{id: id, name: s.Name, curb: s.Curb, sidewalk: s.Sidewalk}
	}
	m.busRoutes = make([]BusRoute, len(b.busRoutes))
	for i, s := range b.busRoutes {
		id := BusRouteID(i)
		if err := checkBusRoute(m, s); err != nil {
			fail("%s: %v", id, err)
		}
		m.busRoutes[i] = BusRoute{id: id, name: s.Name, stops: slices.Clone(s.Stops), headway: s.Headway}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	log.Infof("built map %q: %d roads, %d lanes, %d intersections, %d turns, %d spots, %d bus routes",
		m.version, len(m.roads), len(m.lanes), len(m.intersections), len(m.turns), len(m.spots), len(m.busRoutes))
	return m, nil
}

func (b *Builder) buildLane(id LaneID, road RoadID, rs RoadSpec, s LaneSpec, fail func(string, ...any)) Lane {
	l := Lane{
		id:         id,
		road:       road,
		laneType:   s.Type,
		dir:        s.Direction,
		speedLimit: s.SpeedLimit,
		geom:       s.Geometry.Clone(),
		next:       NoLane,
		start:      rs.From,
		end:        rs.To,
	}
	if s.Direction == Backward {
		l.start, l.end = rs.To, rs.From
	}
	if s.SpeedLimit <= 0 {
		fail("%s: speed limit %.2f must be > 0", id, s.SpeedLimit)
	}
	if len(s.Geometry) < 2 {
		fail("%s: geometry needs at least 2 points, got %d", id, len(s.Geometry))
		l.geom = orb.LineString{{0, 0}, {0, 0}}
		return l
	}
	l.length = s.Length
	if l.length <= 0 {
		l.length = b.coords.Length(s.Geometry)
	}
	if l.length <= 0 {
		fail("%s: zero length", id)
	}
	return l
}

func checkTurnLanes(tt TurnType, from, to LaneType) error {
	if tt.IsPedestrian() {
		if from != LaneSidewalk || to != LaneSidewalk {
			return fmt.Errorf("%s turn must join sidewalks, got %s -> %s", tt, from, to)
		}
		return nil
	}
	if from == LaneSidewalk || to == LaneSidewalk || from == LaneParking || to == LaneParking {
		return fmt.Errorf("%s turn cannot use %s -> %s lanes", tt, from, to)
	}
	return nil
}

// applyRestriction marks turns banned. It only acts at intersections the
// target road touches.
func applyRestriction(m *Map, r TurnRestriction) {
	target := &m.roads[r.ToRoad]
	for _, lid := range m.roads[r.FromRoad].lanes {
		for _, tid := range m.lanes[lid].turnsOut {
			t := &m.turns[tid]
			if t.turnType.IsPedestrian() || (t.intersection != target.from && t.intersection != target.to) {
				continue
			}
			toRoad := m.lanes[t.to].road
			switch r.Type {
			case BanTurns:
				if toRoad == r.ToRoad {
					t.priority = BannedClass
				}
			case OnlyAllowTurns:
				if toRoad != r.ToRoad {
					t.priority = BannedClass
				}
			}
		}
	}
}

func (b *Builder) compatiblePairs(m *Map) (map[[2]TurnID]bool, error) {
	out := make(map[[2]TurnID]bool, len(b.compatible))
	var errs []error
	for _, p := range b.compatible {
		if !m.HasTurn(p[0]) || !m.HasTurn(p[1]) {
			errs = append(errs, fmt.Errorf("%w: compatible pair %d/%d references unknown turns", ErrInvalidMap, p[0], p[1]))
			continue
		}
		if m.turns[p[0]].intersection != m.turns[p[1]].intersection {
			errs = append(errs, fmt.Errorf("%w: compatible pair %s/%s spans intersections", ErrInvalidMap, p[0], p[1]))
			continue
		}
		out[pairKey(p[0], p[1])] = true
	}
	m.compatible = lo.Keys(out)
	slices.SortFunc(m.compatible, func(a, b [2]TurnID) int {
		if a[0] != b[0] {
			return int(a[0] - b[0])
		}
		return int(a[1] - b[1])
	})
	return out, errors.Join(errs...)
}

func validateSignal(m *Map, in *Intersection, checkConflicts bool) []error {
	var errs []error
	if in.control != ControlSignal {
		if len(in.phases) > 0 {
			errs = append(errs, fmt.Errorf("%w: %s has a signal program but control %s", ErrInvalidMap, in.id, in.control))
		}
		return errs
	}
	if len(in.phases) == 0 {
		return append(errs, fmt.Errorf("%w: signalized %s has no phases", ErrInvalidMap, in.id))
	}
	for k, p := range in.phases {
		if p.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s phase %d duration %d must be > 0", ErrInvalidMap, in.id, k, p.Duration))
		}
		for _, t := range slices.Concat(p.Protected, p.Permitted) {
			if !m.HasTurn(t) || m.turns[t].intersection != in.id {
				errs = append(errs, fmt.Errorf("%w: %s phase %d names turn %d not at this intersection", ErrInvalidMap, in.id, k, t))
			}
		}
		if len(errs) > 0 || !checkConflicts {
			continue
		}
		for x, a := range p.Protected {
			for _, c := range p.Protected[x+1:] {
				if m.Conflicts(a, c) {
					errs = append(errs, fmt.Errorf("%w: %s phase %d protects conflicting %s and %s", ErrInvalidMap, in.id, k, a, c))
				}
			}
		}
	}
	return errs
}

func checkLot(m *Map, s ParkingLotSpec) error {
	if s.Capacity < 1 {
		return fmt.Errorf("capacity %d must be >= 1", s.Capacity)
	}
	if !m.HasLane(s.Access.Lane) || !m.HasLane(s.Sidewalk.Lane) {
		return fmt.Errorf("access %s / sidewalk %s reference unknown lanes", s.Access, s.Sidewalk)
	}
	access := m.lanes[s.Access.Lane].laneType
	allowed := []LaneType{LaneDriving}
	if s.Kind == SpotBikeRack {
		allowed = []LaneType{LaneBike, LaneDriving}
	}
	if !lo.Contains(allowed, access) {
		return fmt.Errorf("%s spot cannot be reached from a %s lane", s.Kind, access)
	}
	if m.lanes[s.Sidewalk.Lane].laneType != LaneSidewalk {
		return fmt.Errorf("sidewalk position %s is not on a sidewalk", s.Sidewalk)
	}
	for _, p := range []Position{s.Access, s.Sidewalk} {
		if p.Dist < 0 || p.Dist > m.lanes[p.Lane].length {
			return fmt.Errorf("position %s outside lane length %.1f", p, m.lanes[p.Lane].length)
		}
	}
	return nil
}

func checkBusStop(m *Map, s BusStopSpec) error {
	if !m.HasLane(s.Curb.Lane) || !m.HasLane(s.Sidewalk.Lane) {
		return fmt.Errorf("curb %s / sidewalk %s reference unknown lanes", s.Curb, s.Sidewalk)
	}
	if t := m.lanes[s.Curb.Lane].laneType; t != LaneDriving && t != LaneTransit {
		return fmt.Errorf("buses cannot halt on a %s lane", t)
	}
	if m.lanes[s.Sidewalk.Lane].laneType != LaneSidewalk {
		return fmt.Errorf("sidewalk position %s is not on a sidewalk", s.Sidewalk)
	}
	for _, p := range []Position{s.Curb, s.Sidewalk} {
		if p.Dist < 0 || p.Dist > m.lanes[p.Lane].length {
			return fmt.Errorf("position %s outside lane length %.1f", p, m.lanes[p.Lane].length)
		}
	}
	return nil
}

func checkBusRoute(m *Map, s BusRouteSpec) error {
	if len(s.Stops) < 2 {
		return fmt.Errorf("needs at least 2 stops, got %d", len(s.Stops))
	}
	if s.Headway < 0 {
		return fmt.Errorf("headway %d must be >= 0", s.Headway)
	}
	for k, stop := range s.Stops {
		if !m.HasBusStop(stop) {
			return fmt.Errorf("stop %d references unknown bus stop %d", k, stop)
		}
		if k > 0 && s.Stops[k-1] == stop {
			return fmt.Errorf("stop %d repeats %s", k, stop)
		}
	}
	return nil
}

func clonePhases(in []Phase) []Phase {
	return lo.Map(in, func(p Phase, _ int) Phase {
		return Phase{
			Protected: slices.Clone(p.Protected),
			Permitted: slices.Clone(p.Permitted),
			Duration:  p.Duration,
		}
	})
}
