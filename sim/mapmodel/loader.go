package mapmodel

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a map. IDs must be listed densely and in order
// so that they survive a round trip unchanged.
type Document struct {
	Version       string                 `yaml:"version"`
	Coordinates   CoordSystem            `yaml:"coordinates"`
	Intersections []IntersectionDocument `yaml:"intersections"`
	Roads         []RoadDocument         `yaml:"roads"`
	Turns         []TurnDocument         `yaml:"turns"`
	Compatible    [][2]TurnID            `yaml:"compatible"`
	Signals       []SignalDocument       `yaml:"signals"`
	Restrictions  []RestrictionDocument  `yaml:"restrictions"`
	Parking       []ParkingLotDocument   `yaml:"parking"`
	BusStops      []BusStopDocument      `yaml:"bus_stops,omitempty"`
	BusRoutes     []BusRouteDocument     `yaml:"bus_routes,omitempty"`
}

type IntersectionDocument struct {
	ID           IntersectionID `yaml:"id"`
	Name         string         `yaml:"name"`
	Control      ControlType    `yaml:"control"`
	Point        [2]float64     `yaml:"point"`
	OccupancyCap int            `yaml:"occupancy_cap"`
}

type RoadDocument struct {
	ID    RoadID         `yaml:"id"`
	Name  string         `yaml:"name"`
	From  IntersectionID `yaml:"from"`
	To    IntersectionID `yaml:"to"`
	Lanes []LaneDocument `yaml:"lanes"`
}

type LaneDocument struct {
	ID         LaneID       `yaml:"id"`
	Type       LaneType     `yaml:"type"`
	Direction  Direction    `yaml:"direction"`
	SpeedLimit float64      `yaml:"speed_limit"`
	Geometry   [][2]float64 `yaml:"geometry"`
	Length     float64      `yaml:"length,omitempty"`
	Next       *LaneID      `yaml:"next,omitempty"`
}

type TurnDocument struct {
	ID       TurnID       `yaml:"id"`
	From     LaneID       `yaml:"from"`
	To       LaneID       `yaml:"to"`
	Type     TurnType     `yaml:"type"`
	Priority TurnPriority `yaml:"priority"`
	Geometry [][2]float64 `yaml:"geometry,omitempty"`
}

type SignalDocument struct {
	Intersection IntersectionID  `yaml:"intersection"`
	Phases       []PhaseDocument `yaml:"phases"`
}

type PhaseDocument struct {
	Protected []TurnID `yaml:"protected"`
	Permitted []TurnID `yaml:"permitted,omitempty"`
	// DurationS is the phase length in seconds.
	DurationS float64 `yaml:"duration_s"`
}

type RestrictionDocument struct {
	Type     RestrictionType `yaml:"type"`
	FromRoad RoadID          `yaml:"from_road"`
	ToRoad   RoadID          `yaml:"to_road"`
}

type ParkingLotDocument struct {
	ID       ParkingLotID `yaml:"id"`
	Name     string       `yaml:"name"`
	Kind     SpotKind     `yaml:"kind"`
	Capacity int          `yaml:"capacity"`
	Access   Position     `yaml:"access"`
	Sidewalk Position     `yaml:"sidewalk"`
}

type BusStopDocument struct {
	ID       BusStopID `yaml:"id"`
	Name     string    `yaml:"name"`
	Curb     Position  `yaml:"curb"`
	Sidewalk Position  `yaml:"sidewalk"`
}

type BusRouteDocument struct {
	ID    BusRouteID  `yaml:"id"`
	Name  string      `yaml:"name"`
	Stops []BusStopID `yaml:"stops"`
	// HeadwayS is the time between departures in seconds; 0 or absent uses
	// the simulator default.
	HeadwayS float64 `yaml:"headway_s,omitempty"`
}

// LoadFile reads and builds a YAML map file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a YAML map document and builds it.
func Parse(data []byte) (*Map, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing map: %w", err)
	}
	return doc.Build()
}

// Build feeds the document into a Builder and builds the Map.
func (d *Document) Build() (*Map, error) {
	b, err := d.Builder()
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// Builder feeds the document into a new Builder without building it, so that
// callers can add to it first.
func (d *Document) Builder() (*Builder, error) {
	b := NewBuilder(d.Version, d.Coordinates)
	for i, in := range d.Intersections {
		if int(in.ID) != i {
			return nil, fmt.Errorf("%w: intersections[%d] has id %d; ids must be dense and in order", ErrInvalidMap, i, in.ID)
		}
		b.AddIntersection(IntersectionSpec{
			Name:         in.Name,
			Control:      in.Control,
			Point:        orb.Point(in.Point),
			OccupancyCap: in.OccupancyCap,
		})
	}
	laneCount := 0
	for i, r := range d.Roads {
		if int(r.ID) != i {
			return nil, fmt.Errorf("%w: roads[%d] has id %d; ids must be dense and in order", ErrInvalidMap, i, r.ID)
		}
		spec := RoadSpec{Name: r.Name, From: r.From, To: r.To}
		for _, l := range r.Lanes {
			if int(l.ID) != laneCount {
				return nil, fmt.Errorf("%w: road %d lane has id %d, want %d", ErrInvalidMap, r.ID, l.ID, laneCount)
			}
			laneCount++
			spec.Lanes = append(spec.Lanes, LaneSpec{
				Type:       l.Type,
				Direction:  l.Direction,
				SpeedLimit: l.SpeedLimit,
				Geometry:   toLineString(l.Geometry),
				Length:     l.Length,
			})
			if l.Next != nil {
				b.SetNext(l.ID, *l.Next)
			}
		}
		b.AddRoad(spec)
	}
	for i, t := range d.Turns {
		if int(t.ID) != i {
			return nil, fmt.Errorf("%w: turns[%d] has id %d; ids must be dense and in order", ErrInvalidMap, i, t.ID)
		}
		b.AddTurn(TurnSpec{From: t.From, To: t.To, Type: t.Type, Priority: t.Priority, Geometry: toLineString(t.Geometry)})
	}
	for _, c := range d.Compatible {
		b.AddCompatible(c[0], c[1])
	}
	for _, s := range d.Signals {
		phases := make([]Phase, len(s.Phases))
		for k, p := range s.Phases {
			phases[k] = Phase{Protected: p.Protected, Permitted: p.Permitted, Duration: SecondsToTicks(p.DurationS)}
		}
		b.SetSignalProgram(s.Intersection, phases)
	}
	for _, r := range d.Restrictions {
		b.AddRestriction(TurnRestriction{Type: r.Type, FromRoad: r.FromRoad, ToRoad: r.ToRoad})
	}
	for i, p := range d.Parking {
		if int(p.ID) != i {
			return nil, fmt.Errorf("%w: parking[%d] has id %d; ids must be dense and in order", ErrInvalidMap, i, p.ID)
		}
		b.AddParkingLot(ParkingLotSpec{Name: p.Name, Kind: p.Kind, Capacity: p.Capacity, Access: p.Access, Sidewalk: p.Sidewalk})
	}
	for i, st := range d.BusStops {
		if int(st.ID) != i {
			return nil, fmt.Errorf("%w: bus_stops[%d] has id %d; ids must be dense and in order", ErrInvalidMap, i, st.ID)
		}
		b.AddBusStop(BusStopSpec{Name: st.Name, Curb: st.Curb, Sidewalk: st.Sidewalk})
	}
	for i, r := range d.BusRoutes {
		if int(r.ID) != i {
			return nil, fmt.Errorf("%w: bus_routes[%d] has id %d; ids must be dense and in order", ErrInvalidMap, i, r.ID)
		}
		b.AddBusRoute(BusRouteSpec{Name: r.Name, Stops: r.Stops, Headway: SecondsToTicks(r.HeadwayS)})
	}
	return b, nil
}

// DocumentFromMap exports a built map. Building the result yields an
// equivalent map; restrictions are exported already applied.
func DocumentFromMap(m *Map) *Document {
	d := &Document{Version: m.version, Coordinates: m.coords, Compatible: m.CompatiblePairs(), Restrictions: []RestrictionDocument{}}
	for i := range m.intersections {
		in := &m.intersections[i]
		d.Intersections = append(d.Intersections, IntersectionDocument{
			ID: in.id, Name: in.name, Control: in.control, Point: in.point, OccupancyCap: in.occupancyCap,
		})
		if len(in.phases) > 0 {
			sig := SignalDocument{Intersection: in.id}
			for _, p := range in.phases {
				sig.Phases = append(sig.Phases, PhaseDocument{
					Protected: slices.Clone(p.Protected),
					Permitted: slices.Clone(p.Permitted),
					DurationS: TicksToSeconds(p.Duration),
				})
			}
			d.Signals = append(d.Signals, sig)
		}
	}
	for i := range m.roads {
		r := &m.roads[i]
		rd := RoadDocument{ID: r.id, Name: r.name, From: r.from, To: r.to}
		for _, lid := range r.lanes {
			l := &m.lanes[lid]
			ld := LaneDocument{
				ID:         l.id,
				Type:       l.laneType,
				Direction:  l.dir,
				SpeedLimit: l.speedLimit,
				Geometry:   fromLineString(l.geom),
				Length:     l.length,
			}
			if next, ok := l.Next(); ok {
				ld.Next = &next
			}
			rd.Lanes = append(rd.Lanes, ld)
		}
		d.Roads = append(d.Roads, rd)
	}
	for i := range m.turns {
		t := &m.turns[i]
		d.Turns = append(d.Turns, TurnDocument{
			ID: t.id, From: t.from, To: t.to, Type: t.turnType, Priority: t.priority, Geometry: fromLineString(t.geom),
		})
	}
	for _, r := range m.restrictions {
		d.Restrictions = append(d.Restrictions, RestrictionDocument{Type: r.Type, FromRoad: r.FromRoad, ToRoad: r.ToRoad})
	}
	for i := range m.lots {
		p := &m.lots[i]
		d.Parking = append(d.Parking, ParkingLotDocument{
			ID: p.id, Name: p.name, Kind: p.kind, Capacity: len(p.spots), Access: p.access, Sidewalk: p.sidewalk,
		})
	}
	for i := range m.busStops {
		st := &m.busStops[i]
		d.BusStops = append(d.BusStops, BusStopDocument{ID: st.id, Name: st.name, Curb: st.curb, Sidewalk: st.sidewalk})
	}
	for i := range m.busRoutes {
		r := &m.busRoutes[i]
		d.BusRoutes = append(d.BusRoutes, BusRouteDocument{
			ID: r.id, Name: r.name, Stops: slices.Clone(r.stops), HeadwayS: TicksToSeconds(r.headway),
		})
	}
	return d
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding map: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding map: %w", err)
	}
	return buf.Bytes(), nil
}

func fromLineString(ls orb.LineString) [][2]float64 {
	return lo.Map(ls, func(p orb.Point, _ int) [2]float64 { return p })
}

func toLineString(pts [][2]float64) orb.LineString {
	if len(pts) == 0 {
		return nil
	}
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = orb.Point(p)
	}
	return ls
}
