package sim

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoboFlock/internal/flock"
	"RoboFlock/internal/model"
)

func newFlock(t *testing.T, opts Options, useEncoders bool) (*World, []*flock.Controller) {
	t.Helper()
	w, err := NewWorld(opts)
	require.NoError(t, err)

	f := opts.Flock
	f.ApplyDefaults()
	settings, err := flock.SettingsFromConfig(f)
	require.NoError(t, err)
	settings.UseEncoders = useEncoders

	var ctrls []*flock.Controller
	for i := 0; i < w.Size(); i++ {
		id, err := flock.ParseIdentity(w.Name(i), w.Size())
		require.NoError(t, err)
		c, err := flock.NewController(settings, id, w.Hardware(i))
		require.NoError(t, err)
		ctrls = append(ctrls, c)
	}
	return w, ctrls
}

func TestNewWorldRejectsBadNames(t *testing.T) {
	_, err := NewWorld(Options{Flock: model.FlockConfig{Size: 2}, Names: []string{"epuck1", "epuck0"}})
	assert.Error(t, err)
	_, err = NewWorld(Options{Flock: model.FlockConfig{Size: 2}, Names: []string{"epuck0"}})
	assert.Error(t, err)
}

func TestPingGeometry(t *testing.T) {
	w, err := NewWorld(Options{Flock: model.FlockConfig{
		Size: 2,
		Placements: map[int]model.Placement{
			0: {X: 0, Y: 0, Heading: 0.7},
			1: {X: 0.3, Y: -0.2, Heading: 2},
		},
	}})
	require.NoError(t, err)

	hw0, hw1 := w.Hardware(0), w.Hardware(1)
	require.NoError(t, hw1.Radio.SendPing([]byte("7:epuck01,")))
	assert.Empty(t, hw0.Radio.DrainPings(), "pings arrive one tick later")
	w.Advance()

	frames := hw0.Radio.DrainPings()
	require.Len(t, frames, 1)
	assert.InDelta(t, 1/0.13, frames[0].Strength, 1e-9)

	tr := flock.NewTracker(0, 2, 0.064)
	require.NoError(t, tr.Ingest(1, frames[0].Direction, frames[0].Strength, w.Pose(0).Heading, 1))
	n, ok := tr.Neighbor(1)
	require.True(t, ok)
	// the flock frame stores relative y inverted
	assert.InDelta(t, 0.3, n.RelX, 1e-9)
	assert.InDelta(t, 0.2, n.RelY, 1e-9)
}

func TestProximityReadings(t *testing.T) {
	w, err := NewWorld(Options{Flock: model.FlockConfig{
		Size: 2,
		Placements: map[int]model.Placement{
			0: {X: 0, Y: 0},
			1: {X: 2*BodyRadius + SensorRange/2, Y: 0},
		},
	}})
	require.NoError(t, err)

	dst := make([]int, flock.NumSensors)
	require.NoError(t, w.Hardware(0).Sensors.ReadDistances(dst))
	assert.InDelta(t, flock.MaxSens/2, dst[0], 1)
	assert.InDelta(t, flock.MaxSens/2, dst[7], 1)
	assert.Zero(t, dst[2])
	assert.Zero(t, dst[4])

	w.Place(1, flock.Pose{X: 1})
	require.NoError(t, w.Hardware(0).Sensors.ReadDistances(dst))
	assert.Equal(t, make([]int, flock.NumSensors), dst)
}

func TestLocalizerOverride(t *testing.T) {
	w, ctrls := newFlock(t, Options{Flock: model.FlockConfig{Size: 3}, LocalizeEvery: 1}, false)
	ctx := context.Background()
	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 100})

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Step(ctx, ctrls))
	}
	truth := w.Pose(1)
	require.NoError(t, ctrls[1].Tick(ctx))
	got := ctrls[1].Snapshot().Pose
	assert.InDelta(t, truth.X, got.X, 1e-12)
	assert.InDelta(t, truth.Y, got.Y, 1e-12)
	assert.InDelta(t, truth.Heading, got.Heading, 1e-12)
}

func TestEncoderOdometryTracksTruth(t *testing.T) {
	w, ctrls := newFlock(t, Options{Flock: model.FlockConfig{Size: 2}}, true)
	ctx := context.Background()
	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 100})

	for i := 0; i < 30; i++ {
		require.NoError(t, w.Step(ctx, ctrls))
	}
	truth := w.Pose(0)
	require.NoError(t, ctrls[0].Tick(ctx))
	got := ctrls[0].Snapshot().Pose
	assert.InDelta(t, truth.X, got.X, 1e-9)
	assert.InDelta(t, truth.Y, got.Y, 1e-9)
	assert.InDelta(t, truth.Heading, got.Heading, 1e-9)
}

func TestResetDiscardsEncoderTravel(t *testing.T) {
	w, ctrls := newFlock(t, Options{Flock: model.FlockConfig{Size: 2}}, true)
	ctx := context.Background()
	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 5})
	for i := 0; i < 6; i++ {
		require.NoError(t, w.Step(ctx, ctrls))
	}
	require.Equal(t, flock.Idle, ctrls[0].Snapshot().State)

	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 5})
	truth := w.Pose(0)
	require.NoError(t, ctrls[0].Tick(ctx))
	got := ctrls[0].Snapshot().Pose
	assert.InDelta(t, truth.X, got.X, 1e-12)
	assert.InDelta(t, truth.Y, got.Y, 1e-12)
	assert.InDelta(t, truth.Heading, got.Heading, 1e-12)
}

func TestBoundedRunMigrates(t *testing.T) {
	w, ctrls := newFlock(t, Options{Flock: model.FlockConfig{Size: 2}, LocalizeEvery: 1}, false)
	ctx := context.Background()

	startX := (w.Pose(0).X + w.Pose(1).X) / 2
	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 50})

	for i := 0; i < 50; i++ {
		require.NoError(t, w.Step(ctx, ctrls))
	}
	for _, c := range ctrls {
		s := c.Snapshot()
		assert.Equal(t, flock.Idle, s.State)
		assert.Equal(t, 0, s.Remaining)
		assert.InDelta(t, 0.06, s.Weights.Cohesion, 1e-12)
		assert.InDelta(t, 0.002, s.Weights.Separation, 1e-12)
	}
	endX := (w.Pose(0).X + w.Pose(1).X) / 2
	assert.Greater(t, endX, startX+0.05)

	// idle robots hold still
	require.NoError(t, w.Step(ctx, ctrls))
	before := w.Pose(0)
	require.NoError(t, w.Step(ctx, ctrls))
	assert.Equal(t, before, w.Pose(0))
}

func TestBroadcastResetsPoses(t *testing.T) {
	w, ctrls := newFlock(t, Options{Flock: model.FlockConfig{Size: 2}, LocalizeEvery: 1}, false)
	ctx := context.Background()
	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 5})
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Step(ctx, ctrls))
	}
	moved := w.Pose(0)
	w.BroadcastWeights(model.WeightPayload{0.6, 0.02, 0.15, 5})
	start := w.Pose(0)
	assert.NotEqual(t, moved, start)
	assert.InDelta(t, -2.9, start.X, 1e-12)
	assert.False(t, math.IsNaN(start.Heading))
}
