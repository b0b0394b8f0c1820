package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFiles_ReportsCounts(t *testing.T) {
	var out bytes.Buffer

	err := validateFiles(&out, testdataPath(t, "maps", "corridor.yaml"), testdataPath(t, "scenarios", "corridor.yaml"))

	require.NoError(t, err)
	report := out.String()
	assert.Contains(t, report, "Map corridor-v1 (planar coordinates)")
	assert.Contains(t, report, "Lanes                : 4")
	assert.Contains(t, report, "Turns                : 4")
	assert.Contains(t, report, "Parking Lots         : 2 (3 spots)")
	assert.Contains(t, report, "Bus Routes           : 1 (2 stops)")
	assert.Contains(t, report, "Scenario             : 2 persons, 2 trips")
}

func TestValidateFiles_ScenarioOffMap(t *testing.T) {
	sc := writeFile(t, "sc.yaml", `
persons:
  - id: 4
    trips:
      - mode: walk
        start: {lane: 2, dist: 0}
        end: {lane: 40, dist: 5}
`)

	err := validateFiles(&bytes.Buffer{}, testdataPath(t, "maps", "corridor.yaml"), sc)

	assert.ErrorContains(t, err, "person 4 trip 0: Lane #40 is not on the map")
}
