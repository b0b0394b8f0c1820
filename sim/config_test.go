package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate_ReportsEveryInvalidField(t *testing.T) {
	// GIVEN a config with several bad fields
	cfg := DefaultConfig()
	cfg.Movement.Speeds.Bike = 0
	cfg.Parking.MaxRadius = cfg.Parking.InitialRadius / 2
	cfg.Arbiter.DefaultOccupancyCap = 0

	// WHEN validated
	err := cfg.Validate()

	// THEN all of them are named
	require.Error(t, err)
	assert.Contains(t, err.Error(), "movement.speeds.bike")
	assert.Contains(t, err.Error(), "parking.max_radius_m")
	assert.Contains(t, err.Error(), "arbiter.default_occupancy_cap")
	assert.NotContains(t, err.Error(), "transit")
}

func TestConfig_YAMLOverlayKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	doc := `
run:
  seed: 7
parking:
  max_radius_m: 1600
movement:
  speeds:
    car: 20
`
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	assert.Equal(t, int64(7), cfg.Run.Seed)
	assert.Equal(t, 1600.0, cfg.Parking.MaxRadius)
	assert.Equal(t, 20.0, cfg.Movement.Speeds.Car)
	assert.Equal(t, DefaultConfig().Movement.Speeds.Pedestrian, cfg.Movement.Speeds.Pedestrian)
	assert.Equal(t, DefaultConfig().Transit, cfg.Transit)
}

func TestValidate_TransitService(t *testing.T) {
	// GIVEN buses that hold nobody and dwell for negative time
	cfg := DefaultConfig()
	cfg.Transit.Capacity = 0
	cfg.Transit.Dwell = -1

	// WHEN validated
	err := cfg.Validate()

	// THEN both are named
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transit.capacity")
	assert.Contains(t, err.Error(), "transit.dwell_s")
}
