package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    mapmodel.Position
		wantErr string
	}{
		{in: "12:40.5", want: mapmodel.Position{Lane: 12, Dist: 40.5}},
		{in: "0:0", want: mapmodel.Position{}},
		{in: "12", wantErr: "want lane:dist"},
		{in: "x:1", wantErr: "bad lane"},
		{in: "3:far", wantErr: "bad distance"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parsePosition(tc.in)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPrintRoute_UTurnAtEastEnd(t *testing.T) {
	// GIVEN the corridor, whose only way back is the east U-turn
	mapPath := testdataPath(t, "maps", "corridor.yaml")
	var out bytes.Buffer

	// WHEN a car routes from the westbound start to the eastbound return lane
	err := printRoute(&out, mapPath, "0:10", "1:150", "car")

	// THEN the path crosses one turn over two lanes
	require.NoError(t, err)
	assert.Contains(t, out.String(), "car path")
	assert.Contains(t, out.String(), "over 2 lanes and 1 turns")
}

func TestPrintRoute_Errors(t *testing.T) {
	mapPath := testdataPath(t, "maps", "corridor.yaml")

	assert.ErrorContains(t, printRoute(&bytes.Buffer{}, mapPath, "0:10", "1:150", "tram"), "unknown mode")
	assert.Error(t, printRoute(&bytes.Buffer{}, mapPath, "2:10", "1:150", "car"), "sidewalk is not a car lane")
	assert.Error(t, printRoute(&bytes.Buffer{}, "missing.yaml", "0:10", "1:150", "car"))
}
