package testutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/traffic-sim/traffic-sim/sim/mapmodel"
)

// TestdataPath resolves a file under the repository's testdata/ directory.
// The path is resolved relative to this source file: sim/internal/testutil/ -> testdata/.
func TestdataPath(t *testing.T, parts ...string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	root := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata")
	return filepath.Join(append([]string{root}, parts...)...)
}

// LoadMap loads testdata/maps/<name>.
func LoadMap(t *testing.T, name string) *mapmodel.Map {
	t.Helper()
	m, err := mapmodel.LoadFile(TestdataPath(t, "maps", name))
	if err != nil {
		t.Fatalf("Failed to load map %s: %v", name, err)
	}
	return m
}
