// Package mapmodel holds the immutable road network: roads, lanes,
// intersections, turns, signal programs and parking inventory, plus the
// derived turn conflict table.
//
// Bus stops and routes describe the fixed transit network on top of it.
//
// A Map is produced once by Builder.Build (or LoadFile) and never mutated
// afterwards, so it may be shared freely between simulators.
package mapmodel

import (
	"sort"

	"github.com/paulmach/orb"
)

// NoLane marks an absent lane reference.
const NoLane LaneID = -1

// NoIntersection marks an absent intersection reference.
const NoIntersection IntersectionID = -1

// Lane is one directed lane of a road.
type Lane struct {
	id         LaneID
	road       RoadID
	laneType   LaneType
	dir        Direction
	speedLimit float64
	length     float64
	geom       orb.LineString
	next       LaneID
	start, end IntersectionID
	turnsOut   []TurnID
}

func (l *Lane) ID() LaneID { return l.id }
func (l *Lane) Road() RoadID { return l.road }
func (l *Lane) Type() LaneType { return l.laneType }
func (l *Lane) Direction() Direction { return l.dir }
func (l *Lane) SpeedLimit() float64 { return l.speedLimit }
func (l *Lane) Length() float64 { return l.length }
func (l *Lane) Geometry() orb.LineString {
	return l.geom.Clone()
}

// Next returns the lane that directly continues this one without an
// intersection, if any.
func (l *Lane) Next() (LaneID, bool) { return l.next, l.next != NoLane }

// StartIntersection is the intersection the lane leaves from.
func (l *Lane) StartIntersection() IntersectionID { return l.start }

// EndIntersection is the intersection the lane runs into.
func (l *Lane) EndIntersection() IntersectionID { return l.end }

// OutgoingTurns lists the turns whose from-lane is this lane, ordered by TurnID.
func (l *Lane) OutgoingTurns() []TurnID { return append([]TurnID(nil), l.turnsOut...) }

// Road is an ordered group of lanes between two intersections.
type Road struct {
	id       RoadID
	name     string
	lanes    []LaneID
	from, to IntersectionID
}

func (r *Road) ID() RoadID { return r.id }
func (r *Road) Name() string { return r.name }
func (r *Road) Lanes() []LaneID { return append([]LaneID(nil), r.lanes...) }
func (r *Road) From() IntersectionID { return r.from }
func (r *Road) To() IntersectionID { return r.to }

// Phase is one step of a fixed signal cycle.
type Phase struct {
	Protected []TurnID
	Permitted []TurnID
	// Duration in ticks.
	Duration int64
}

// Allows reports whether t is green in this phase, and whether it is protected.
func (p Phase) Allows(t TurnID) (green, protected bool) {
	for _, id := range p.Protected {
		if id == t {
			return true, true
		}
	}
	for _, id := range p.Permitted {
		if id == t {
			return true, false
		}
	}
	return false, false
}

// Intersection joins roads and owns the turns between their lanes.
type Intersection struct {
	id           IntersectionID
	name         string
	control      ControlType
	point        orb.Point
	incoming     []LaneID
	outgoing     []LaneID
	turns        []TurnID
	phases       []Phase
	occupancyCap int
}

func (i *Intersection) ID() IntersectionID { return i.id }
func (i *Intersection) Name() string { return i.name }
func (i *Intersection) Control() ControlType { return i.control }
func (i *Intersection) Point() orb.Point { return i.point }
func (i *Intersection) Incoming() []LaneID { return append([]LaneID(nil), i.incoming...) }
func (i *Intersection) Outgoing() []LaneID { return append([]LaneID(nil), i.outgoing...) }
func (i *Intersection) Turns() []TurnID { return append([]TurnID(nil), i.turns...) }

// Phases returns a copy of the signal program. Empty unless Control is ControlSignal.
func (i *Intersection) Phases() []Phase {
	return clonePhases(i.phases)
}

// OccupancyCap is the maximum number of concurrently granted agents; 0 means
// the simulator default applies.
func (i *Intersection) OccupancyCap() int { return i.occupancyCap }

// Turn is a legal movement from one lane to another through an intersection.
type Turn struct {
	id           TurnID
	intersection IntersectionID
	from, to     LaneID
	turnType     TurnType
	priority     TurnPriority
	geom         orb.LineString
	length       float64
}

func (t *Turn) ID() TurnID { return t.id }
func (t *Turn) Intersection() IntersectionID { return t.intersection }
func (t *Turn) From() LaneID { return t.from }
func (t *Turn) To() LaneID { return t.to }
func (t *Turn) Type() TurnType { return t.turnType }
func (t *Turn) Priority() TurnPriority { return t.priority }
func (t *Turn) Length() float64 { return t.length }
func (t *Turn) Geometry() orb.LineString { return t.geom.Clone() }

// TurnRestriction forbids (BanTurns) or exclusively allows (OnlyAllowTurns)
// movements from one road to another.
type TurnRestriction struct {
	Type     RestrictionType
	FromRoad RoadID
	ToRoad   RoadID
}

// ParkingLot groups spots that share an access position.
type ParkingLot struct {
	id       ParkingLotID
	name     string
	kind     SpotKind
	access   Position
	sidewalk Position
	spots    []SpotID
}

func (p *ParkingLot) ID() ParkingLotID { return p.id }
func (p *ParkingLot) Name() string { return p.name }
func (p *ParkingLot) Kind() SpotKind { return p.kind }
func (p *ParkingLot) Access() Position { return p.access }
func (p *ParkingLot) Sidewalk() Position { return p.sidewalk }
func (p *ParkingLot) Spots() []SpotID { return append([]SpotID(nil), p.spots...) }
func (p *ParkingLot) Capacity() int { return len(p.spots) }

// Spot is a single parking place.
type Spot struct {
	ID       SpotID
	Lot      ParkingLotID
	Kind     SpotKind
	Access   Position
	Sidewalk Position
}

// BusStop is where buses halt and riders wait.
type BusStop struct {
	id       BusStopID
	name     string
	curb     Position
	sidewalk Position
}

func (b *BusStop) ID() BusStopID { return b.id }
func (b *BusStop) Name() string { return b.name }

// Curb is where the bus halts, on a driving or transit lane.
func (b *BusStop) Curb() Position { return b.curb }

// Sidewalk is where riders wait for the bus.
func (b *BusStop) Sidewalk() Position { return b.sidewalk }

// BusRoute is a fixed sequence of stops. Buses leave the first stop every
// headway and are taken out of service at the last one.
type BusRoute struct {
	id      BusRouteID
	name    string
	stops   []BusStopID
	headway int64
}

func (r *BusRoute) ID() BusRouteID { return r.id }
func (r *BusRoute) Name() string { return r.name }
func (r *BusRoute) Stops() []BusStopID { return append([]BusStopID(nil), r.stops...) }
func (r *BusRoute) NumStops() int { return len(r.stops) }

// Stop returns the i-th stop of the route.
func (r *BusRoute) Stop(i int) BusStopID { return r.stops[i] }

// Headway is the time in ticks between departures; 0 means the simulator
// default applies.
func (r *BusRoute) Headway() int64 { return r.headway }

// StopAfter returns the index of the first visit of stop after index i.
func (r *BusRoute) StopAfter(stop BusStopID, i int) (int, bool) {
	for k := i + 1; k < len(r.stops); k++ {
		if r.stops[k] == stop {
			return k, true
		}
	}
	return 0, false
}

// Serves reports whether a bus of the route can carry a rider from one stop
// to another.
func (r *BusRoute) Serves(from, to BusStopID) bool {
	for i, s := range r.stops {
		if s == from {
			if _, ok := r.StopAfter(to, i); ok {
				return true
			}
		}
	}
	return false
}

// Map is the frozen road network.
type Map struct {
	version       string
	coords        CoordSystem
	roads         []Road
	lanes         []Lane
	intersections []Intersection
	turns         []Turn
	restrictions  []TurnRestriction
	lots          []ParkingLot
	spots         []Spot
	busStops      []BusStop
	busRoutes     []BusRoute
	// conflicts[t] is the sorted list of turns that conflict with t.
	conflicts  [][]TurnID
	compatible [][2]TurnID
	maxSpeed   float64
}

func (m *Map) Version() string { return m.version }
func (m *Map) CoordSystem() CoordSystem { return m.coords }
func (m *Map) NumRoads() int { return len(m.roads) }
func (m *Map) NumLanes() int { return len(m.lanes) }
func (m *Map) NumIntersections() int { return len(m.intersections) }
func (m *Map) NumTurns() int { return len(m.turns) }
func (m *Map) NumParkingLots() int { return len(m.lots) }
func (m *Map) NumSpots() int { return len(m.spots) }
func (m *Map) NumBusStops() int { return len(m.busStops) }
func (m *Map) NumBusRoutes() int { return len(m.busRoutes) }

// Restrictions returns the turn restrictions applied at build time.
func (m *Map) Restrictions() []TurnRestriction {
	return append([]TurnRestriction(nil), m.restrictions...)
}

// MaxSpeedLimit is the highest speed limit on any lane, in m/s.
func (m *Map) MaxSpeedLimit() float64 { return m.maxSpeed }

func (m *Map) HasLane(id LaneID) bool { return id >= 0 && int(id) < len(m.lanes) }
func (m *Map) HasTurn(id TurnID) bool { return id >= 0 && int(id) < len(m.turns) }
func (m *Map) HasIntersection(id IntersectionID) bool {
	return id >= 0 && int(id) < len(m.intersections)
}
func (m *Map) HasSpot(id SpotID) bool { return id >= 0 && int(id) < len(m.spots) }
func (m *Map) HasBusStop(id BusStopID) bool { return id >= 0 && int(id) < len(m.busStops) }

// Road panics on an unknown id, like a slice index.
func (m *Map) Road(id RoadID) *Road { return &m.roads[id] }
func (m *Map) Lane(id LaneID) *Lane { return &m.lanes[id] }
func (m *Map) Intersection(id IntersectionID) *Intersection { return &m.intersections[id] }
func (m *Map) Turn(id TurnID) *Turn { return &m.turns[id] }
func (m *Map) ParkingLot(id ParkingLotID) *ParkingLot { return &m.lots[id] }
func (m *Map) Spot(id SpotID) Spot { return m.spots[id] }
func (m *Map) BusStop(id BusStopID) *BusStop { return &m.busStops[id] }
func (m *Map) BusRoute(id BusRouteID) *BusRoute { return &m.busRoutes[id] }

// Conflicts reports whether two turns may not be granted at the same time.
// Turns at different intersections never conflict.
func (m *Map) Conflicts(a, b TurnID) bool {
	if a == b {
		return false
	}
	list := m.conflicts[a]
	i := sort.Search(len(list), func(i int) bool { return list[i] >= b })
	return i < len(list) && list[i] == b
}

// CompatiblePairs returns the explicitly declared compatible turn pairs.
func (m *Map) CompatiblePairs() [][2]TurnID {
	return append([][2]TurnID(nil), m.compatible...)
}

// ConflictingTurns returns the sorted list of turns that conflict with t.
func (m *Map) ConflictingTurns(t TurnID) []TurnID {
	return append([]TurnID(nil), m.conflicts[t]...)
}

// TurnBetween returns the turn from one lane into another, if one exists.
func (m *Map) TurnBetween(from, to LaneID) (TurnID, bool) {
	for _, t := range m.lanes[from].turnsOut {
		if m.turns[t].to == to {
			return t, true
		}
	}
	return 0, false
}

// LaneEndPoint returns the coordinate at the end of the lane.
func (m *Map) LaneEndPoint(id LaneID) orb.Point {
	g := m.lanes[id].geom
	return g[len(g)-1]
}

// LaneStartPoint returns the coordinate at the start of the lane.
func (m *Map) LaneStartPoint(id LaneID) orb.Point {
	return m.lanes[id].geom[0]
}
