// Package parking tracks the occupancy of every parking spot on a map and
// finds free spots near a destination.
package parking

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/traffic-sim/traffic-sim/sim/agent"
	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
	"github.com/traffic-sim/traffic-sim/sim/pathfind"
)

var (
	// ErrNoParkingFound is returned when no free spot matches a search, or the
	// spot asked for is no longer free.
	ErrNoParkingFound = errors.New("no parking found")
	// ErrSpotConflict is returned when an operation would put two cars in one
	// spot, or one car in two spots.
	ErrSpotConflict = errors.New("parking spot conflict")
)

// Occupancy is the state of a single spot.
type Occupancy uint8

const (
	Empty Occupancy = iota
	Reserved
	Occupied
)

var occupancyNames = [...]string{"empty", "reserved", "occupied"}

func (o Occupancy) String() string {
	if int(o) < len(occupancyNames) {
		return occupancyNames[o]
	}
	return fmt.Sprintf("Occupancy(%d)", uint8(o))
}

func (o Occupancy) MarshalText() ([]byte, error) {
	if int(o) >= len(occupancyNames) {
		return nil, fmt.Errorf("invalid occupancy %d", uint8(o))
	}
	return []byte(occupancyNames[o]), nil
}

func (o *Occupancy) UnmarshalText(b []byte) error {
	for i, n := range occupancyNames {
		if n == string(b) {
			*o = Occupancy(i)
			return nil
		}
	}
	return fmt.Errorf("unknown occupancy %q", b)
}

// UsableBy reports whether a mode can park in a spot of kind k.
func UsableBy(k mapmodel.SpotKind, mode pathfind.Mode) bool {
	switch mode {
	case pathfind.Car:
		return k == mapmodel.SpotOnStreet || k == mapmodel.SpotLot
	case pathfind.Bike:
		return k == mapmodel.SpotBikeRack
	}
	return false
}

type slot struct {
	state Occupancy
	car   agent.CarID
}

// Allocator owns parking occupancy for one map.
// Thread-safety: NOT thread-safe. Mutated only from scheduler event handling.
type Allocator struct {
	m     *mapmodel.Map
	spots []slot
	byCar map[agent.CarID]mapmodel.SpotID
}

// New creates an allocator with every spot empty. Panics if m is nil.
func New(m *mapmodel.Map) *Allocator {
	if m == nil {
		panic("parking.New: map must not be nil")
	}
	return &Allocator{
		m:     m,
		spots: make([]slot, m.NumSpots()),
		byCar: make(map[agent.CarID]mapmodel.SpotID),
	}
}

// FindNearestAvailable returns the empty spot usable by mode whose sidewalk
// position lies closest to pos, within radius meters. Ties go to the lower
// SpotID. Nothing is reserved.
func (a *Allocator) FindNearestAvailable(pos mapmodel.Position, radius float64, mode pathfind.Mode) (mapmodel.SpotID, error) {
	if !a.m.HasLane(pos.Lane) {
		return 0, fmt.Errorf("%w: lane %d does not exist", ErrNoParkingFound, pos.Lane)
	}
	origin := a.m.PointAt(pos)
	best, bestDist := mapmodel.SpotID(-1), math.Inf(1)
	for i, s := range a.spots {
		if s.state != Empty {
			continue
		}
		spot := a.m.Spot(mapmodel.SpotID(i))
		if !UsableBy(spot.Kind, mode) {
			continue
		}
		d := a.m.Distance(origin, a.m.PointAt(spot.Sidewalk))
		if d <= radius && d < bestDist {
			best, bestDist = spot.ID, d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: no free %s spot within %.0fm of %s", ErrNoParkingFound, mode, radius, pos)
	}
	return best, nil
}

// Reserve holds an empty spot for a car on its way to park.
func (a *Allocator) Reserve(id mapmodel.SpotID, car agent.CarID) error {
	if !a.m.HasSpot(id) {
		return fmt.Errorf("%w: spot %d does not exist", ErrNoParkingFound, id)
	}
	if held, ok := a.byCar[car]; ok {
		return fmt.Errorf("%w: %s already holds spot %d", ErrSpotConflict, car, held)
	}
	s := &a.spots[id]
	if s.state != Empty {
		return fmt.Errorf("%w: spot %d is %s by %s", ErrNoParkingFound, id, s.state, s.car)
	}
	s.state, s.car = Reserved, car
	a.byCar[car] = id
	log.Debugf("spot %d reserved by %s", id, car)
	return nil
}

// Occupy turns the car's reservation into occupancy.
func (a *Allocator) Occupy(id mapmodel.SpotID, car agent.CarID) error {
	if !a.m.HasSpot(id) {
		return fmt.Errorf("%w: spot %d does not exist", ErrSpotConflict, id)
	}
	s := &a.spots[id]
	if s.state != Reserved || s.car != car {
		return fmt.Errorf("%w: %s cannot occupy spot %d (%s by %s)", ErrSpotConflict, car, id, s.state, s.car)
	}
	s.state = Occupied
	log.Debugf("spot %d occupied by %s", id, car)
	return nil
}

// Release empties a spot. Releasing an empty spot is a no-op.
func (a *Allocator) Release(id mapmodel.SpotID) {
	if !a.m.HasSpot(id) {
		return
	}
	s := &a.spots[id]
	if s.state == Empty {
		return
	}
	delete(a.byCar, s.car)
	*s = slot{}
}

// ReleaseCar drops whatever reservation or occupancy a car holds.
func (a *Allocator) ReleaseCar(car agent.CarID) {
	if id, ok := a.byCar[car]; ok {
		a.Release(id)
	}
}

// SpotOf returns the spot a car has reserved or occupies.
func (a *Allocator) SpotOf(car agent.CarID) (mapmodel.SpotID, bool) {
	id, ok := a.byCar[car]
	return id, ok
}

// State returns the occupancy of a spot and the car holding it.
func (a *Allocator) State(id mapmodel.SpotID) (Occupancy, agent.CarID) {
	s := a.spots[id]
	return s.state, s.car
}

// Free counts the empty spots of a lot.
func (a *Allocator) Free(lot mapmodel.ParkingLotID) int {
	return lo.CountBy(a.m.ParkingLot(lot).Spots(), func(id mapmodel.SpotID) bool {
		return a.spots[id].state == Empty
	})
}

// Held counts reserved and occupied spots.
func (a *Allocator) Held() int { return len(a.byCar) }

// CheckInvariants verifies that no spot holds more than one car and that the
// car index agrees with the spots.
func (a *Allocator) CheckInvariants() error {
	held := 0
	for i, s := range a.spots {
		if s.state == Empty {
			continue
		}
		held++
		if got, ok := a.byCar[s.car]; !ok || got != mapmodel.SpotID(i) {
			return fmt.Errorf("%w: spot %d holds %s but the car index says %d (%t)", ErrSpotConflict, i, s.car, got, ok)
		}
	}
	if held != len(a.byCar) {
		return fmt.Errorf("%w: %d spots held but %d cars indexed", ErrSpotConflict, held, len(a.byCar))
	}
	return nil
}

// SpotState is the serialized form of one non-empty spot.
type SpotState struct {
	Spot  mapmodel.SpotID `json:"spot"`
	State Occupancy       `json:"state"`
	Car   agent.CarID     `json:"car"`
}

// State is the serialized occupancy of all held spots, in SpotID order.
type State struct {
	Spots []SpotState `json:"spots"`
}

// Export snapshots the occupancy.
func (a *Allocator) Export() State {
	st := State{Spots: []SpotState{}}
	for i, s := range a.spots {
		if s.state != Empty {
			st.Spots = append(st.Spots, SpotState{Spot: mapmodel.SpotID(i), State: s.state, Car: s.car})
		}
	}
	return st
}

// Import replaces the occupancy with a snapshot.
func (a *Allocator) Import(st State) error {
	spots := make([]slot, a.m.NumSpots())
	byCar := make(map[agent.CarID]mapmodel.SpotID, len(st.Spots))
	for _, s := range st.Spots {
		if !a.m.HasSpot(s.Spot) || s.State == Empty {
			return fmt.Errorf("importing parking: bad entry for spot %d", s.Spot)
		}
		if spots[s.Spot].state != Empty {
			return fmt.Errorf("importing parking: %w: spot %d listed twice", ErrSpotConflict, s.Spot)
		}
		if _, dup := byCar[s.Car]; dup {
			return fmt.Errorf("importing parking: %w: %s holds two spots", ErrSpotConflict, s.Car)
		}
		spots[s.Spot] = slot{state: s.State, car: s.Car}
		byCar[s.Car] = s.Spot
	}
	a.spots, a.byCar = spots, byCar
	return nil
}
