package mapmodel

import (
	"encoding"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textEnum interface {
	encoding.TextMarshaler
	String() string
}

func assertTextRoundTrip[T textEnum](t *testing.T, values []T, parse func(string) (T, error)) {
	t.Helper()
	seen := map[string]bool{}
	for _, v := range values {
		b, err := v.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, v.String(), string(b))
		assert.False(t, seen[string(b)], "duplicate name %q", b)
		seen[string(b)] = true
		got, err := parse(string(b))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := parse("no-such-value")
	assert.Error(t, err)
}

func TestEnums_TextRoundTrip(t *testing.T) {
	assertTextRoundTrip(t, AllLaneTypes(), func(s string) (LaneType, error) {
		var v LaneType
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, []Direction{Forward, Backward}, func(s string) (Direction, error) {
		var v Direction
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, AllControlTypes(), func(s string) (ControlType, error) {
		var v ControlType
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, AllTurnTypes(), func(s string) (TurnType, error) {
		var v TurnType
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, AllTurnPriorities(), func(s string) (TurnPriority, error) {
		var v TurnPriority
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, []SpotKind{SpotOnStreet, SpotLot, SpotBikeRack}, func(s string) (SpotKind, error) {
		var v SpotKind
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, []RestrictionType{BanTurns, OnlyAllowTurns}, func(s string) (RestrictionType, error) {
		var v RestrictionType
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
	assertTextRoundTrip(t, []CoordSystem{Planar, WGS84}, func(s string) (CoordSystem, error) {
		var v CoordSystem
		err := v.UnmarshalText([]byte(s))
		return v, err
	})
}

func TestEnums_OutOfRangeDoesNotMarshal(t *testing.T) {
	_, err := TurnType(200).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "TurnType(200)", TurnType(200).String())
}

func TestTurnType_RankOrdersYieldRule(t *testing.T) {
	order := []TurnType{TurnStraight, TurnRight, TurnLeft, TurnUTurn, TurnCrosswalk}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1].Rank(), order[i].Rank(), "%s before %s", order[i-1], order[i])
	}
	assert.True(t, TurnCrosswalk.IsPedestrian())
	assert.False(t, TurnUTurn.IsPedestrian())
}

func TestSegmentsIntersect(t *testing.T) {
	tests := []struct {
		name           string
		p1, p2, q1, q2 [2]float64
		want           bool
	}{
		{"crossing", [2]float64{0, 0}, [2]float64{2, 2}, [2]float64{0, 2}, [2]float64{2, 0}, true},
		{"parallel", [2]float64{0, 0}, [2]float64{2, 0}, [2]float64{0, 1}, [2]float64{2, 1}, false},
		{"touching endpoint", [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 0}, [2]float64{1, 5}, true},
		{"collinear overlap", [2]float64{0, 0}, [2]float64{3, 0}, [2]float64{2, 0}, [2]float64{5, 0}, true},
		{"collinear apart", [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{2, 0}, [2]float64{3, 0}, false},
		{"line hits extension only", [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{2, -1}, [2]float64{2, 1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, segmentsIntersect(tc.p1, tc.p2, tc.q1, tc.q2))
		})
	}
}

func TestSecondsToTicks(t *testing.T) {
	assert.Equal(t, int64(500_000), SecondsToTicks(0.5))
	assert.Equal(t, int64(-1_500_000), SecondsToTicks(-1.5))
	assert.Equal(t, 2.5, TicksToSeconds(2_500_000))
}
