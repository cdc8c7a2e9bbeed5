package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("robots:\n  - name: epuck0\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, "json", cfg.Global.WireFormat)
	assert.Equal(t, 5, cfg.Flock.Size)
	assert.Equal(t, 64, cfg.Flock.TickMs)
	assert.Equal(t, Point{X: 3, Y: 0}, cfg.Flock.MigrationTarget)
	assert.Equal(t, 0.06, cfg.Flock.Weights.Cohesion)
	assert.Equal(t, 1000, cfg.Flock.Weights.Iterations)
	assert.Equal(t, 800, cfg.Flock.MaxSpeed)
	assert.Len(t, cfg.Flock.Placements, 5)

	r := cfg.Robots[0]
	assert.Equal(t, 115200, r.BaseBaud)
	assert.Equal(t, 9600, r.RadioBaud)
	assert.Equal(t, "localizer", r.Odometry)
	assert.Equal(t, uint8(10), cfg.Coordinator.FPort)
}

func TestParseConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := ParseConfig([]byte("flock: {size: 2, migration_target: {x: 0, y: 0}, weights: {cohesion_weight: 0.05}}"))
	require.NoError(t, err)
	assert.Equal(t, Point{}, cfg.Flock.MigrationTarget)

	want := DefaultWeights()
	want.Cohesion = 0.05
	assert.Equal(t, want, cfg.Flock.Weights)

	cfg, err = ParseConfig([]byte("flock:\n  weights:\n    migration_weight: 0\n    iterations: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Flock.Weights.Migration)
	assert.Equal(t, 0, cfg.Flock.Weights.Iterations)
	assert.Equal(t, 0.06, cfg.Flock.Weights.Cohesion)
	assert.Equal(t, DefaultMigrationTarget, cfg.Flock.MigrationTarget)
}

func TestFlockApplyDefaultsProgrammatic(t *testing.T) {
	f := FlockConfig{Size: 2}
	f.ApplyDefaults()
	assert.Equal(t, DefaultMigrationTarget, f.MigrationTarget)
	assert.Equal(t, DefaultWeights(), f.Weights)
}

func TestDefaultPlacements(t *testing.T) {
	two := DefaultPlacements(2)
	assert.Equal(t, map[int]Placement{
		0: {X: -2.9, Y: 0},
		1: {X: -2.9, Y: 0.1},
	}, two)

	seven := DefaultPlacements(7)
	require.Len(t, seven, 7)
	wantY := []float64{0, 0.1, -0.1, 0.2, -0.2, 0.30000000000000004, -0.30000000000000004}
	for id, y := range wantY {
		assert.Equal(t, -2.9, seven[id].X)
		assert.InDelta(t, y, seven[id].Y, 1e-12, "robot %d", id)
		assert.Equal(t, 0.0, seven[id].Heading)
	}
}

func TestValidate(t *testing.T) {
	for name, doc := range map[string]string{
		"size":          "flock:\n  size: -1\n",
		"migration":     "flock:\n  migration_mode: north\n",
		"alignment":     "flock:\n  alignment: sideways\n",
		"ping":          "flock:\n  ping_format: morse\n",
		"placement":     "flock:\n  size: 2\n  placements:\n    2: {x: 0, y: 0}\n",
		"wire":          "global:\n  wire_format: xml\n",
		"unnamed robot": "robots:\n  - base_device: /dev/null\n",
		"duplicate":     "robots:\n  - name: epuck0\n  - name: epuck0\n",
		"odometry":      "robots:\n  - name: epuck0\n    odometry: gps\n",
		"yaml":          "flock: [",
	} {
		_, err := ParseConfig([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	doc := `
flock:
  size: 3
  tick_ms: 32
  migration_target: {x: 1, y: -1}
  placements:
    0: {x: 0, y: 0, heading: 1.5}
    1: {x: 0.2, y: 0}
    2: {x: 0.4, y: 0}
robots:
  - name: epuck2
    base_device: /dev/ttyUSB0
    radio_device: /dev/ttyUSB1
    odometry: encoders
    accel_calibration: 20
monitor:
  addr: ":9000"
  token: s3cret
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Flock.Size)
	assert.Equal(t, 32, cfg.Flock.TickMs)
	assert.Equal(t, Point{X: 1, Y: -1}, cfg.Flock.MigrationTarget)
	assert.Equal(t, 1.5, cfg.Flock.Placements[0].Heading)
	assert.Equal(t, 20, cfg.Robots[0].AccelCalibration)
	assert.Equal(t, "s3cret", cfg.Monitor.Token)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestWeightUpdatePayload(t *testing.T) {
	u := WeightUpdate{Cohesion: 0.6, Separation: 0.02, SeparationThreshold: 0.15, Iterations: 1000}
	assert.Equal(t, WeightPayload{0.6, 0.02, 0.15, 1000}, u.Payload())
}
