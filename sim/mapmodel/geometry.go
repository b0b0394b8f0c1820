package mapmodel

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Distance is the straight-line distance in meters between two points in the
// given coordinate system.
func (c CoordSystem) Distance(a, b orb.Point) float64 {
	if c == WGS84 {
		return geo.Distance(a, b)
	}
	return planar.Distance(a, b)
}

// Length is the length in meters of a polyline in the given coordinate system.
func (c CoordSystem) Length(ls orb.LineString) float64 {
	if c == WGS84 {
		return geo.Length(ls)
	}
	return planar.Length(ls)
}

// Distance is the straight-line distance between two points of this map.
func (m *Map) Distance(a, b orb.Point) float64 {
	return m.coords.Distance(a, b)
}

// PointAt returns the coordinate of a position, interpolated along the lane's
// polyline. Distances past either end clamp to that end.
func (m *Map) PointAt(p Position) orb.Point {
	l := &m.lanes[p.Lane]
	if l.length <= 0 || p.Dist <= 0 {
		return l.geom[0]
	}
	// Lane length may be declared rather than measured; scale to the geometry.
	want := p.Dist / l.length * m.coords.Length(l.geom)
	for i := 1; i < len(l.geom); i++ {
		a, b := l.geom[i-1], l.geom[i]
		seg := m.coords.Distance(a, b)
		if seg >= want && seg > 0 {
			f := want / seg
			return orb.Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f}
		}
		want -= seg
	}
	return l.geom[len(l.geom)-1]
}

// PositionDistance is the straight-line distance between two positions.
func (m *Map) PositionDistance(a, b Position) float64 {
	return m.coords.Distance(m.PointAt(a), m.PointAt(b))
}

// degenerate reports whether a polyline cannot be used for overlap tests.
func degenerate(ls orb.LineString) bool {
	if len(ls) < 2 {
		return true
	}
	for i := 1; i < len(ls); i++ {
		if ls[i] != ls[0] {
			return false
		}
	}
	return true
}

// polylinesIntersect reports whether any segment of a touches or crosses any
// segment of b.
func polylinesIntersect(a, b orb.LineString) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for i := 1; i < len(a); i++ {
		for j := 1; j < len(b); j++ {
			if segmentsIntersect(a[i-1], a[i], b[j-1], b[j]) {
				return true
			}
		}
	}
	return false
}

const orientEps = 1e-12

func orient(a, b, c orb.Point) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > orientEps:
		return 1
	case v < -orientEps:
		return -1
	}
	return 0
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	o1 := orient(p1, p2, q1)
	o2 := orient(p1, p2, q2)
	o3 := orient(q1, q2, p1)
	o4 := orient(q1, q2, p2)
	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, p2, q2):
		return true
	case o3 == 0 && onSegment(q1, q2, p1):
		return true
	case o4 == 0 && onSegment(q1, q2, p2):
		return true
	}
	return false
}
