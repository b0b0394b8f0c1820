package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_NoFileIsDefault(t *testing.T) {
	cfg, err := loadConfig("")

	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig(), cfg)
}

func TestLoadConfig_FileOverlaysDefaults(t *testing.T) {
	// GIVEN a file setting only two nested keys
	path := writeFile(t, "cfg.yaml", `
parking:
  max_radius_m: 400
movement:
  speeds:
    car: 10
`)

	// WHEN it is loaded
	cfg, err := loadConfig(path)

	// THEN those keys change and everything else keeps its default
	require.NoError(t, err)
	want := sim.DefaultConfig()
	want.Parking.MaxRadius = 400
	want.Movement.Speeds.Car = 10
	assert.Equal(t, want, cfg)
}

func TestLoadConfig_JSONFile(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"transit": {"headway_s": 120}}`)

	cfg, err := loadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 120.0, cfg.Transit.Headway)
}

func TestLoadConfig_EnvironmentWinsOverFile(t *testing.T) {
	// GIVEN a file and an environment override of the same key
	path := writeFile(t, "cfg.yaml", "run:\n  seed: 7\n  horizon_s: 60\n")
	t.Setenv("TRAFFICSIM_RUN__SEED", "99")

	// WHEN the config is loaded
	cfg, err := loadConfig(path)

	// THEN the environment value is used and the rest of the file still applies
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Run.Seed)
	assert.Equal(t, 60.0, cfg.Run.Horizon)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want string
	}{
		{"unsupported extension", func(t *testing.T) string { return writeFile(t, "cfg.toml", "") }, "unsupported config format"},
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.yaml") }, "loading config"},
		{"invalid value", func(t *testing.T) string {
			return writeFile(t, "cfg.yaml", "transit:\n  headway_s: 0\n")
		}, "headway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadConfig(tc.path(t))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
