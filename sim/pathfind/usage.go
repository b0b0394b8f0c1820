package pathfind

import (
	"slices"

	"github.com/samber/lo"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// Usage counts how many computed paths cross each road and intersection.
// A path crossing the same road twice counts once for it.
type Usage struct {
	roads         map[mapmodel.RoadID]int64
	intersections map[mapmodel.IntersectionID]int64
	paths         int64
}

func newUsage() *Usage {
	return &Usage{
		roads:         make(map[mapmodel.RoadID]int64),
		intersections: make(map[mapmodel.IntersectionID]int64),
	}
}

func (u *Usage) record(m *mapmodel.Map, p *Path) {
	u.paths++
	roads := lo.Uniq(lo.Map(p.Lanes(), func(l mapmodel.LaneID, _ int) mapmodel.RoadID { return m.Lane(l).Road() }))
	for _, r := range roads {
		u.roads[r]++
	}
	crossings := lo.Uniq(lo.Map(p.Turns(), func(t mapmodel.TurnID, _ int) mapmodel.IntersectionID { return m.Turn(t).Intersection() }))
	for _, i := range crossings {
		u.intersections[i]++
	}
}

// RoadCount is the usage count of one road.
type RoadCount struct {
	Road  mapmodel.RoadID `json:"road"`
	Count int64           `json:"count"`
}

// IntersectionCount is the usage count of one intersection.
type IntersectionCount struct {
	Intersection mapmodel.IntersectionID `json:"intersection"`
	Count        int64                   `json:"count"`
}

// UsageState is the serialized form of Usage, sorted by id.
type UsageState struct {
	Paths         int64               `json:"paths"`
	Roads         []RoadCount         `json:"roads"`
	Intersections []IntersectionCount `json:"intersections"`
}

// Paths is the number of paths recorded.
func (u *Usage) Paths() int64 { return u.paths }

// Export returns the counts sorted by id.
func (u *Usage) Export() UsageState {
	st := UsageState{Paths: u.paths, Roads: []RoadCount{}, Intersections: []IntersectionCount{}}
	roads := lo.Keys(u.roads)
	slices.Sort(roads)
	for _, r := range roads {
		st.Roads = append(st.Roads, RoadCount{Road: r, Count: u.roads[r]})
	}
	ids := lo.Keys(u.intersections)
	slices.Sort(ids)
	for _, i := range ids {
		st.Intersections = append(st.Intersections, IntersectionCount{Intersection: i, Count: u.intersections[i]})
	}
	return st
}

// Import replaces the counts with st.
func (u *Usage) Import(st UsageState) {
	*u = *newUsage()
	u.paths = st.Paths
	for _, r := range st.Roads {
		u.roads[r.Road] = r.Count
	}
	for _, i := range st.Intersections {
		u.intersections[i.Intersection] = i.Count
	}
}
