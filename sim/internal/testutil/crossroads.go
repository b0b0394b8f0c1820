// Package testutil provides shared test infrastructure for the traffic
// simulator: small road networks built in code, testdata loaders and
// assertion helpers used across sim/ and its sub-package tests.
package testutil

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Arms of the crossroads, indexed clockwise from north.
const (
	North = iota
	East
	South
	West
)

// ArmLength is the length in meters of every lane of the crossroads.
const ArmLength = 96.0

// LaneSpeed is the speed limit in m/s of every crossroads lane.
const LaneSpeed = 10.0

var armDir = [4]orb.Point{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}

// CrossroadsOptions tune the generated network.
type CrossroadsOptions struct {
	Control mapmodel.ControlType
	// NearLotCapacity is the capacity of the lot closest to each arm's far end.
	// The second lot on each arm always holds 10 cars.
	NearLotCapacity int
	// PhaseSeconds is the duration of each of the two signal phases.
	PhaseSeconds float64
	// WithoutTransit leaves out the bus stops and routes.
	WithoutTransit bool
}

// Crossroads is a four-arm intersection (#0 at the origin) with a dead-end
// intersection at the far end of each arm (#1..#4, clockwise from north).
// Each arm is one road with an inbound and an outbound driving lane and an
// inbound and an outbound sidewalk. Vehicles can U-turn at the dead ends and
// at the center; pedestrians can cross between any two arms.
//
// Each arm has a bus stop on its inbound lane at 40 m and one on its outbound
// lane at 60 m. A north-south route runs from the north inbound stop to the
// south outbound stop and an east-west route likewise.
type Crossroads struct {
	Map *mapmodel.Map
	// Driving lanes per arm: In runs toward the center, Out away from it.
	In, Out [4]mapmodel.LaneID
	// Sidewalks per arm.
	WalkIn, WalkOut [4]mapmodel.LaneID
	// Drive[a][b] is the center turn from arm a into arm b.
	Drive [4][4]mapmodel.TurnID
	// Cross[a][b] is the center pedestrian movement from arm a to arm b.
	Cross [4][4]mapmodel.TurnID
	// NearLot[a] is at 90 m along Out[a]; FarLot[a] at 50 m.
	NearLot, FarLot [4]mapmodel.ParkingLotID
	Center          mapmodel.IntersectionID
	Ends            [4]mapmodel.IntersectionID
	// InStop[a] halts on In[a] at 40 m, OutStop[a] on Out[a] at 60 m.
	InStop, OutStop      [4]mapmodel.BusStopID
	NorthSouth, EastWest mapmodel.BusRouteID
}

// DefaultCrossroadsOptions is a stop-sign crossroads with single-spot near lots.
func DefaultCrossroadsOptions() CrossroadsOptions {
	return CrossroadsOptions{Control: mapmodel.ControlStopSign, NearLotCapacity: 1, PhaseSeconds: 30}
}

func scale(p orb.Point, k float64) orb.Point { return orb.Point{p[0] * k, p[1] * k} }
func add(a, b orb.Point) orb.Point { return orb.Point{a[0] + b[0], a[1] + b[1]} }

// rightOfInbound is the right-hand side for traffic heading to the center.
func rightOfInbound(u orb.Point) orb.Point { return orb.Point{-u[1], u[0]} }

// rightOfOutbound is the right-hand side for traffic leaving the center.
func rightOfOutbound(u orb.Point) orb.Point { return orb.Point{u[1], -u[0]} }

// turnType classifies the movement from arm a into arm b (right-hand traffic).
func turnType(a, b int) mapmodel.TurnType {
	switch (b - a + 4) % 4 {
	case 0:
		return mapmodel.TurnUTurn
	case 2:
		return mapmodel.TurnStraight
	case 3:
		return mapmodel.TurnRight
	}
	return mapmodel.TurnLeft
}

// NewCrossroads builds the crossroads network, panicking on build errors.
func NewCrossroads(opts CrossroadsOptions) *Crossroads {
	if opts.NearLotCapacity <= 0 {
		opts.NearLotCapacity = 1
	}
	if opts.PhaseSeconds <= 0 {
		opts.PhaseSeconds = 30
	}
	version := fmt.Sprintf("crossroads-%s-%d", opts.Control, opts.NearLotCapacity)
	if opts.WithoutTransit {
		version += "-notransit"
	}
	b := mapmodel.NewBuilder(version, mapmodel.Planar)
	c := &Crossroads{}
	c.Center = b.AddIntersection(mapmodel.IntersectionSpec{Name: "center", Control: opts.Control})
	for a := 0; a < 4; a++ {
		c.Ends[a] = b.AddIntersection(mapmodel.IntersectionSpec{
			Name:    fmt.Sprintf("end-%d", a),
			Control: mapmodel.ControlUncontrolled,
			Point:   scale(armDir[a], 100),
		})
	}
	for a := 0; a < 4; a++ {
		u := armDir[a]
		rin, rout := rightOfInbound(u), rightOfOutbound(u)
		far, near := scale(u, 100), scale(u, 4)
		_, lanes := b.AddRoad(mapmodel.RoadSpec{
			Name: fmt.Sprintf("arm-%d", a),
			From: c.Ends[a],
			To:   c.Center,
			Lanes: []mapmodel.LaneSpec{
				{Type: mapmodel.LaneDriving, Direction: mapmodel.Forward, SpeedLimit: LaneSpeed,
					Geometry: orb.LineString{add(far, scale(rin, 2)), add(near, scale(rin, 2))}},
				{Type: mapmodel.LaneDriving, Direction: mapmodel.Backward, SpeedLimit: LaneSpeed,
					Geometry: orb.LineString{add(near, scale(rout, 2)), add(far, scale(rout, 2))}},
				{Type: mapmodel.LaneSidewalk, Direction: mapmodel.Forward, SpeedLimit: LaneSpeed,
					Geometry: orb.LineString{add(far, scale(rin, 6)), add(near, scale(rin, 6))}},
				{Type: mapmodel.LaneSidewalk, Direction: mapmodel.Backward, SpeedLimit: LaneSpeed,
					Geometry: orb.LineString{add(near, scale(rin, 6)), add(far, scale(rin, 6))}},
			},
		})
		c.In[a], c.Out[a], c.WalkIn[a], c.WalkOut[a] = lanes[0], lanes[1], lanes[2], lanes[3]
	}

	for a := 0; a < 4; a++ {
		for bb := 0; bb < 4; bb++ {
			c.Drive[a][bb] = b.AddTurn(mapmodel.TurnSpec{
				From:     c.In[a],
				To:       c.Out[bb],
				Type:     turnType(a, bb),
				Priority: centerPriority(opts.Control, a, bb),
			})
		}
	}
	for a := 0; a < 4; a++ {
		for bb := 0; bb < 4; bb++ {
			spec := mapmodel.TurnSpec{From: c.WalkIn[a], To: c.WalkOut[bb], Priority: mapmodel.YieldClass}
			if a == bb {
				spec.Type = mapmodel.TurnSidewalkCorner
			} else {
				spec.Type = mapmodel.TurnCrosswalk
				start := add(scale(armDir[a], 4), scale(rightOfInbound(armDir[a]), 6))
				end := add(scale(armDir[bb], 4), scale(rightOfInbound(armDir[bb]), 6))
				spec.Geometry = orb.LineString{start, {0, 0}, end}
			}
			c.Cross[a][bb] = b.AddTurn(spec)
		}
	}
	for a := 0; a < 4; a++ {
		b.AddTurn(mapmodel.TurnSpec{From: c.Out[a], To: c.In[a], Type: mapmodel.TurnUTurn, Priority: mapmodel.PriorityClass})
		b.AddTurn(mapmodel.TurnSpec{From: c.WalkOut[a], To: c.WalkIn[a], Type: mapmodel.TurnSidewalkCorner, Priority: mapmodel.PriorityClass})
	}

	if opts.Control == mapmodel.ControlSignal {
		b.SetSignalProgram(c.Center, c.signalPhases(mapmodel.SecondsToTicks(opts.PhaseSeconds)))
	}

	for a := 0; a < 4; a++ {
		c.NearLot[a] = b.AddParkingLot(mapmodel.ParkingLotSpec{
			Name:     fmt.Sprintf("near-%d", a),
			Kind:     mapmodel.SpotLot,
			Capacity: opts.NearLotCapacity,
			Access:   mapmodel.Position{Lane: c.Out[a], Dist: 90},
			Sidewalk: mapmodel.Position{Lane: c.WalkOut[a], Dist: 90},
		})
		c.FarLot[a] = b.AddParkingLot(mapmodel.ParkingLotSpec{
			Name:     fmt.Sprintf("far-%d", a),
			Kind:     mapmodel.SpotLot,
			Capacity: 10,
			Access:   mapmodel.Position{Lane: c.Out[a], Dist: 50},
			Sidewalk: mapmodel.Position{Lane: c.WalkOut[a], Dist: 50},
		})
		b.AddParkingLot(mapmodel.ParkingLotSpec{
			Name:     fmt.Sprintf("rack-%d", a),
			Kind:     mapmodel.SpotBikeRack,
			Capacity: 4,
			Access:   mapmodel.Position{Lane: c.Out[a], Dist: 70},
			Sidewalk: mapmodel.Position{Lane: c.WalkOut[a], Dist: 70},
		})
	}

	if !opts.WithoutTransit {
		c.addTransit(b)
	}

	m, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("NewCrossroads: %v", err))
	}
	c.Map = m
	return c
}

func (c *Crossroads) addTransit(b *mapmodel.Builder) {
	for a := 0; a < 4; a++ {
		c.InStop[a] = b.AddBusStop(mapmodel.BusStopSpec{
			Name:     fmt.Sprintf("in-%d", a),
			Curb:     mapmodel.Position{Lane: c.In[a], Dist: 40},
			Sidewalk: mapmodel.Position{Lane: c.WalkIn[a], Dist: 40},
		})
		c.OutStop[a] = b.AddBusStop(mapmodel.BusStopSpec{
			Name:     fmt.Sprintf("out-%d", a),
			Curb:     mapmodel.Position{Lane: c.Out[a], Dist: 60},
			Sidewalk: mapmodel.Position{Lane: c.WalkOut[a], Dist: 60},
		})
	}
	c.NorthSouth = b.AddBusRoute(mapmodel.BusRouteSpec{
		Name:  "north-south",
		Stops: []mapmodel.BusStopID{c.InStop[North], c.OutStop[South]},
	})
	c.EastWest = b.AddBusRoute(mapmodel.BusRouteSpec{
		Name:  "east-west",
		Stops: []mapmodel.BusStopID{c.InStop[East], c.OutStop[West]},
	})
}

// centerPriority gives the north-south road right of way (a two-way stop or
// a priority road); signals treat every approach alike.
func centerPriority(control mapmodel.ControlType, from, _ int) mapmodel.TurnPriority {
	if control != mapmodel.ControlSignal && (from == East || from == West) {
		return mapmodel.YieldClass
	}
	return mapmodel.PriorityClass
}

// signalPhases returns a north-south phase then an east-west phase. Straight
// and right movements are protected, lefts, U-turns and pedestrian movements
// are permitted.
func (c *Crossroads) signalPhases(d int64) []mapmodel.Phase {
	phase := func(a, b int) mapmodel.Phase {
		p := mapmodel.Phase{Duration: d}
		for _, arm := range []int{a, b} {
			opp := (arm + 2) % 4
			right := (arm + 3) % 4
			left := (arm + 1) % 4
			p.Protected = append(p.Protected, c.Drive[arm][opp], c.Drive[arm][right])
			p.Permitted = append(p.Permitted, c.Drive[arm][left], c.Drive[arm][arm])
		}
		for x := 0; x < 4; x++ {
			for y := 0; y < 4; y++ {
				p.Permitted = append(p.Permitted, c.Cross[x][y])
			}
		}
		return p
	}
	return []mapmodel.Phase{phase(North, South), phase(East, West)}
}

// InPos is a position on the inbound driving lane of an arm.
func (c *Crossroads) InPos(arm int, dist float64) mapmodel.Position {
	return mapmodel.Position{Lane: c.In[arm], Dist: dist}
}

// OutPos is a position on the outbound driving lane of an arm.
func (c *Crossroads) OutPos(arm int, dist float64) mapmodel.Position {
	return mapmodel.Position{Lane: c.Out[arm], Dist: dist}
}

// WalkInPos is a position on the inbound sidewalk of an arm.
func (c *Crossroads) WalkInPos(arm int, dist float64) mapmodel.Position {
	return mapmodel.Position{Lane: c.WalkIn[arm], Dist: dist}
}

// WalkOutPos is a position on the outbound sidewalk of an arm.
func (c *Crossroads) WalkOutPos(arm int, dist float64) mapmodel.Position {
	return mapmodel.Position{Lane: c.WalkOut[arm], Dist: dist}
}
