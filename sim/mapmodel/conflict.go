package mapmodel

import "slices"

func pairKey(a, b TurnID) [2]TurnID {
	if a > b {
		a, b = b, a
	}
	return [2]TurnID{a, b}
}

// turnsConflict applies the compatibility rules in order; the first rule that
// matches decides. Geometry that cannot be tested counts as a conflict.
func turnsConflict(a, b *Turn, compatible map[[2]TurnID]bool) bool {
	switch {
	case a.intersection != b.intersection:
		return false
	case compatible[pairKey(a.id, b.id)]:
		return false
	case a.turnType == TurnSidewalkCorner || b.turnType == TurnSidewalkCorner:
		return false
	case a.from == b.from:
		return false
	case a.to == b.to:
		return true
	case a.turnType == TurnCrosswalk && b.turnType == TurnCrosswalk:
		return false
	case degenerate(a.geom) || degenerate(b.geom):
		return true
	}
	return polylinesIntersect(a.geom, b.geom)
}

func buildConflicts(m *Map, compatible map[[2]TurnID]bool) [][]TurnID {
	out := make([][]TurnID, len(m.turns))
	for i := range m.intersections {
		turns := m.intersections[i].turns
		for x, a := range turns {
			for _, b := range turns[x+1:] {
				if turnsConflict(&m.turns[a], &m.turns[b], compatible) {
					out[a] = append(out[a], b)
					out[b] = append(out[b], a)
				}
			}
		}
	}
	for i := range out {
		slices.Sort(out[i])
	}
	return out
}
