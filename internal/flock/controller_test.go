package flock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoboFlock/internal/model"
	"RoboFlock/internal/parser"
)

// fakeHW is a single-goroutine hardware double recording every actuation.
type fakeHW struct {
	readings []int
	pings    []model.PingFrame
	poses    []model.PoseReport
	weights  []model.WeightPayload
	deltas   [2]float64

	sent      [][]byte
	motors    [][2]float64
	published []model.Telemetry
	steps     int
}

func (f *fakeHW) ReadDistances(dst []int) error {
	copy(dst, f.readings)
	return nil
}

func (f *fakeHW) WheelDeltas() (float64, float64, error) { return f.deltas[0], f.deltas[1], nil }

func (f *fakeHW) SetWheelVelocity(l, r float64) error {
	f.motors = append(f.motors, [2]float64{l, r})
	return nil
}

func (f *fakeHW) SendPing(p []byte) error {
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeHW) DrainPings() []model.PingFrame {
	out := f.pings
	f.pings = nil
	return out
}

func (f *fakeHW) DrainPoses(max int) []model.PoseReport {
	if max <= 0 || max > len(f.poses) {
		max = len(f.poses)
	}
	out := f.poses[:max]
	f.poses = f.poses[max:]
	return out
}

func (f *fakeHW) DrainWeights() []model.WeightPayload {
	out := f.weights
	f.weights = nil
	return out
}

func (f *fakeHW) Step(ctx context.Context) error {
	f.steps++
	return ctx.Err()
}

func (f *fakeHW) Publish(t model.Telemetry) { f.published = append(f.published, t) }

func (f *fakeHW) lastMotor() [2]float64 { return f.motors[len(f.motors)-1] }

func (f *fakeHW) hardware() Hardware {
	return Hardware{
		Sensors:   f,
		Encoders:  f,
		Motors:    f,
		Radio:     f,
		Localizer: f,
		Params:    f,
		Clock:     f,
		Telemetry: f,
	}
}

func testSettings(t *testing.T, size int) Settings {
	t.Helper()
	fc := model.FlockConfig{Size: size}
	fc.ApplyDefaults()
	s, err := SettingsFromConfig(fc)
	require.NoError(t, err)
	return s
}

func newTestController(t *testing.T, name string, size int) (*Controller, *fakeHW) {
	t.Helper()
	id, err := ParseIdentity(name, size)
	require.NoError(t, err)
	hw := &fakeHW{readings: make([]int, NumSensors)}
	c, err := NewController(testSettings(t, size), id, hw.hardware())
	require.NoError(t, err)
	return c, hw
}

func TestNewControllerValidates(t *testing.T) {
	s := testSettings(t, 3)
	hw := &fakeHW{}
	_, err := NewController(s, Identity{Name: "epuck1", UniqueID: 1, RobotID: 1}, Hardware{Sensors: hw})
	assert.Error(t, err)
	_, err = NewController(s, Identity{Name: "epuck3", UniqueID: 3, RobotID: 3}, hw.hardware())
	assert.ErrorIs(t, err, ErrUnknownRobot)
	s.Tick = 0
	_, err = NewController(s, Identity{Name: "epuck1", UniqueID: 1, RobotID: 1}, hw.hardware())
	assert.Error(t, err)
}

func TestIdleUntilWeights(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 3)
	ctx := context.Background()

	hw.pings = []model.PingFrame{{Payload: parser.FramedPing{}.Encode("epuck1"), Direction: [3]float64{1, 0, 0}, Strength: 4}}
	hw.poses = []model.PoseReport{{Robot: 0, X: 9, Z: 9}}
	require.NoError(t, c.Tick(ctx))

	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, Pose{X: -2.9, Y: 0}, snap.Pose)
	assert.Empty(t, hw.sent)
	assert.Empty(t, hw.published)
	assert.Equal(t, [2]float64{0, 0}, hw.lastMotor())
	// idle drained everything, nothing stale is left for the next run
	assert.Empty(t, hw.pings)
	assert.Empty(t, hw.poses)
	n, _ := c.tracker.Neighbor(1)
	assert.False(t, n.Seen)
	assert.Equal(t, 1, hw.steps)
}

func TestBoundedRun(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 1)
	ctx := context.Background()

	hw.weights = []model.WeightPayload{{0.6, 0.02, 0.15, 3}}
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Tick(ctx))
		if i < 2 {
			assert.Equal(t, Running, c.Snapshot().State)
		}
	}
	assert.Equal(t, Idle, c.Snapshot().State)
	assert.Len(t, hw.sent, 3)
	assert.Equal(t, parser.FramedPing{}.Encode("epuck0"), hw.sent[0])
	require.Len(t, hw.published, 3)
	assert.Equal(t, "running", hw.published[0].State)
	assert.Equal(t, uint64(0), hw.published[0].Tick)
	assert.Equal(t, uint64(2), hw.published[2].Tick)

	// migration toward (3, 0) from (-2.9, 0): forward at full blend
	assert.Greater(t, hw.published[0].Left, 0)
	assert.Equal(t, hw.published[0].Left+6, hw.published[0].Right)

	require.NoError(t, c.Tick(ctx))
	assert.Equal(t, [2]float64{0, 0}, hw.lastMotor())
	assert.Len(t, hw.published, 3)
}

func TestZeroBudgetStaysIdle(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 2)
	hw.weights = []model.WeightPayload{{0.6, 0.02, 0.15, 0}}
	require.NoError(t, c.Tick(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, 0.15, snap.Weights.SeparationThreshold)
	assert.Empty(t, hw.published)
}

func TestPendingPayloadsAreFIFO(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 1)
	ctx := context.Background()

	hw.weights = []model.WeightPayload{{0.6, 0.02, 0.15, 2}, {0.5, 0.01, 0.2, 1}}
	require.NoError(t, c.Tick(ctx))
	snap := c.Snapshot()
	assert.Equal(t, 0.15, snap.Weights.SeparationThreshold)
	assert.Equal(t, 1, snap.Pending)

	// a payload arriving mid-run waits behind the queued one
	hw.weights = []model.WeightPayload{{0.4, 0.01, 0.3, 1}}
	require.NoError(t, c.Tick(ctx))
	snap = c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, 2, snap.Pending)

	require.NoError(t, c.Tick(ctx))
	assert.Equal(t, 0.2, c.Snapshot().Weights.SeparationThreshold)
	require.NoError(t, c.Tick(ctx))
	assert.Equal(t, 0.3, c.Snapshot().Weights.SeparationThreshold)
	assert.Equal(t, 0, c.Snapshot().Pending)
}

func TestInvalidPayloadIsSkipped(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 1)
	hw.weights = []model.WeightPayload{{0.6}, {0.6, 0.02, 0.15, 2}}
	require.NoError(t, c.Tick(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, Running, snap.State)
	assert.Equal(t, 1, snap.Remaining)
}

func TestResetIsIdempotent(t *testing.T) {
	c, hw := newTestController(t, "epuck1", 3)
	ctx := context.Background()

	hw.weights = []model.WeightPayload{{0.6, 0.02, 0.15, 100}}
	for i := 0; i < 5; i++ {
		hw.pings = []model.PingFrame{{Payload: parser.FramedPing{}.Encode("epuck2"), Direction: [3]float64{1, 0, 0}, Strength: 4}}
		hw.poses = []model.PoseReport{{Robot: 1, X: -2.5, Z: -0.2, Heading: 0.3}}
		require.NoError(t, c.Tick(ctx))
	}
	require.NotEqual(t, Pose{X: -2.9, Y: 0.1}, c.Snapshot().Pose)

	p := model.WeightPayload{0.6, 0.02, 0.15, 10}
	require.NoError(t, c.ApplyWeightUpdate(p))
	first := c.Snapshot()
	require.NoError(t, c.ApplyWeightUpdate(p))
	second := c.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, Pose{X: -2.9, Y: 0.1}, first.Pose)
	assert.Equal(t, Pose{}, first.PrevPose)
	assert.Equal(t, model.Vec2{}, first.SelfVel)
	for _, n := range first.Neighbors {
		assert.Equal(t, NeighborState{}, n.NeighborState)
	}
	assert.Equal(t, 10, first.Remaining)
	assert.Equal(t, Running, first.State)

	assert.Error(t, c.ApplyWeightUpdate(model.WeightPayload{1, 2}))
}

func TestRunningTickUsesPingsAndOverrides(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 3)
	ctx := context.Background()
	hw.weights = []model.WeightPayload{{0.6, 0.02, 0.15, 10}}

	hw.pings = []model.PingFrame{
		{Payload: parser.FramedPing{}.Encode("epuck1"), Direction: [3]float64{1, 0, 0}, Strength: 4},
		{Payload: parser.FramedPing{}.Encode("epuck0"), Direction: [3]float64{1, 0, 0}, Strength: 4},
		{Payload: []byte("garbage"), Direction: [3]float64{1, 0, 0}, Strength: 4},
	}
	hw.poses = []model.PoseReport{
		{Robot: 2, X: 5, Z: 5},
		{Robot: 0, X: -2.8, Z: -0.05, Heading: 0},
		{Robot: 7, X: 1, Z: 1},
		{Robot: 0, X: 8, Z: 8},
	}
	require.NoError(t, c.Tick(ctx))

	snap := c.Snapshot()
	n, _ := c.tracker.Neighbor(1)
	assert.True(t, n.Seen)
	assert.InDelta(t, 0.5, n.RelX, 1e-12)
	// at most flock-size records are drained per tick
	assert.Equal(t, Pose{X: -2.8, Y: 0.05}, snap.Pose)
	assert.Len(t, hw.poses, 1)
	assert.InDelta(t, 0.1/c.dt, snap.SelfVel.X, 1e-9)
	assert.InDelta(t, 0.05/c.dt, snap.SelfVel.Y, 1e-9)
	require.Len(t, hw.published, 1)
	require.Len(t, hw.published[0].Neighbors, 2)
	assert.True(t, hw.published[0].Neighbors[0].Seen)
	assert.False(t, hw.published[0].Neighbors[1].Seen)
}

func TestTwoRobotCohesionSteadyState(t *testing.T) {
	s := testSettings(t, 2)
	s.DefaultWeights.Migration = 0
	hw := &fakeHW{readings: make([]int, NumSensors)}
	c, err := NewController(s, Identity{Name: "epuck0", RobotID: 0}, hw.hardware())
	require.NoError(t, err)
	ctx := context.Background()

	// cohesion 0.06 after scaling, every other weight 0
	hw.weights = []model.WeightPayload{{0.6, 0, 0, 10}}
	ping := model.PingFrame{Payload: parser.FramedPing{}.Encode("epuck1"), Direction: [3]float64{1, 0, 0}, Strength: 1}
	for i := 0; i < 4; i++ {
		hw.pings = []model.PingFrame{ping}
		require.NoError(t, c.Tick(ctx))

		n, _ := c.tracker.Neighbor(1)
		assert.InDelta(t, 1, n.RelX, 1e-12)
		assert.InDelta(t, 0, n.RelY, 1e-12)
		if i == 0 {
			assert.InDelta(t, 1/0.064, n.RelVX, 1e-9)
		} else {
			assert.InDelta(t, 0, n.RelVX, 1e-12)
		}

		snap := c.Snapshot()
		assert.Equal(t, Running, snap.State)
		assert.Equal(t, 0.0, snap.Pose.Heading)
		assert.InDelta(t, 0.06, snap.Desired.X, 1e-12)
		assert.InDelta(t, 0, snap.Desired.Y, 1e-12)
		assert.Equal(t, WheelCommand{Left: 585, Right: 585}, snap.Flocking)
	}
}

func TestEncoderOdometry(t *testing.T) {
	s := testSettings(t, 1)
	s.UseEncoders = true
	hw := &fakeHW{readings: make([]int, NumSensors), deltas: [2]float64{1, 1}}
	c, err := NewController(s, Identity{Name: "epuck0", RobotID: 0}, hw.hardware())
	require.NoError(t, err)

	hw.weights = []model.WeightPayload{{0, 0, 0, 2}}
	require.NoError(t, c.Tick(context.Background()))
	assert.InDelta(t, -2.9+0.0205, c.Snapshot().Pose.X, 1e-12)
	require.NoError(t, c.Tick(context.Background()))
	assert.InDelta(t, -2.9+0.041, c.Snapshot().Pose.X, 1e-12)
}

func TestRunStopsOnCancel(t *testing.T) {
	c, hw := newTestController(t, "epuck0", 1)
	ctx, cancel := context.WithCancel(context.Background())
	hw.weights = []model.WeightPayload{{0.6, 0.02, 0.15, 1000}}
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
