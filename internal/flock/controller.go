package flock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"RoboFlock/internal/model"
	"RoboFlock/internal/parser"
)

// RunState is the outer loop state.
type RunState int

const (
	// Idle holds the wheels still until a coordinator payload arrives.
	Idle RunState = iota
	// Running executes the control loop for a bounded number of ticks.
	Running
)

func (s RunState) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Settings is the immutable configuration of one controller.
type Settings struct {
	FlockSize      int
	Tick           time.Duration
	Geometry       Geometry
	Rules          RuleConfig
	Motion         MotionConfig
	Safety         SafetyConfig
	DefaultWeights RuleWeights
	Placements     map[int]Pose
	Ping           PingCodec
	UseEncoders    bool
}

// SettingsFromConfig derives controller settings from the flock section.
func SettingsFromConfig(f model.FlockConfig) (Settings, error) {
	align, err := ParseAlignmentMode(f.Alignment)
	if err != nil {
		return Settings{}, err
	}
	migr, err := ParseMigrationMode(f.MigrationMode)
	if err != nil {
		return Settings{}, err
	}
	var ping PingCodec = parser.FramedPing{}
	if f.PingFormat == "legacy" {
		ping = parser.LegacyPing{}
	}
	placements := make(map[int]Pose, len(f.Placements))
	for id, p := range f.Placements {
		placements[id] = Pose{X: p.X, Y: p.Y, Heading: NormalizeHeading(p.Heading)}
	}
	geom := Geometry{AxleLength: f.AxleLength, WheelRadius: f.WheelRadius}
	return Settings{
		FlockSize: f.Size,
		Tick:      time.Duration(f.TickMs) * time.Millisecond,
		Geometry:  geom,
		Rules: RuleConfig{
			FlockSize: f.Size,
			Alignment: align,
			Migration: migr,
			Target:    f.MigrationTarget,
		},
		Motion: MotionConfig{
			Ku:          f.Ku,
			Kw:          f.Kw,
			AxleLength:  f.AxleLength,
			WheelRadius: f.WheelRadius,
			MaxSpeed:    f.MaxSpeed,
		},
		Safety: DefaultSafety(f.MaxSpeed),
		DefaultWeights: RuleWeights{
			Cohesion:            f.Weights.Cohesion,
			Separation:          f.Weights.Separation,
			SeparationThreshold: f.Weights.SeparationThreshold,
			Alignment:           f.Weights.Alignment,
			Migration:           f.Weights.Migration,
			Iterations:          f.Weights.Iterations,
		},
		Placements: placements,
		Ping:       ping,
	}, nil
}

// MemberState is the per-robot flock state as exposed by Snapshot.
type MemberState struct {
	Identity  Identity
	Pose      Pose
	PrevPose  Pose
	SelfVel   model.Vec2
	Weights   RuleWeights
	Neighbors []Neighbor
}

// Snapshot is a copy of the controller state for inspection.
type Snapshot struct {
	MemberState
	State     RunState
	Remaining int
	Tick      uint64
	Pending   int
	Desired   model.Vec2
	Flocking  WheelCommand // motion controller output
	Command   WheelCommand // after the sensor blend
	AccelPose Pose
}

// Controller runs the per-robot tick: drain, estimate, decide, actuate, wait.
type Controller struct {
	cfg     Settings
	hw      Hardware
	dt      float64
	id      Identity
	initial Pose

	pose     Pose
	prevPose Pose
	selfVel  model.Vec2
	weights  RuleWeights
	tracker  *Tracker
	accel    *AccelOdometry
	readings []int

	state     RunState
	remaining int
	pending   []model.WeightPayload
	tick      uint64

	desired model.Vec2
	command WheelCommand
	applied WheelCommand

	log *zap.SugaredLogger
}

// NewController builds the controller of robot id. Sensors, Motors, Radio,
// Params and Clock are required.
func NewController(cfg Settings, id Identity, hw Hardware) (*Controller, error) {
	if hw.Sensors == nil || hw.Motors == nil || hw.Radio == nil || hw.Params == nil || hw.Clock == nil {
		return nil, errors.New("controller needs sensors, motors, radio, params and clock")
	}
	if cfg.FlockSize < 1 || id.RobotID < 0 || id.RobotID >= cfg.FlockSize {
		return nil, fmt.Errorf("%w: robot %d in flock of %d", ErrUnknownRobot, id.RobotID, cfg.FlockSize)
	}
	if cfg.Tick <= 0 {
		return nil, fmt.Errorf("tick %v", cfg.Tick)
	}
	if cfg.Ping == nil {
		cfg.Ping = parser.FramedPing{}
	}
	dt := cfg.Tick.Seconds()
	c := &Controller{
		cfg:      cfg,
		hw:       hw,
		dt:       dt,
		id:       id,
		tracker:  NewTracker(id.RobotID, cfg.FlockSize, dt),
		accel:    NewAccelOdometry(cfg.Geometry, dt),
		readings: make([]int, NumSensors),
		weights:  cfg.DefaultWeights,
		log:      zap.S(),
	}
	initial, ok := cfg.Placements[id.RobotID]
	if !ok {
		c.log.Warnf("[robot %s] no placement for slot %d, starting at origin", id.Name, id.RobotID)
	}
	c.initial = initial
	c.pose = initial
	c.accel.Reset(initial)
	return c, nil
}

// Identity returns the robot identity.
func (c *Controller) Identity() Identity { return c.id }

// SetAccelBias installs the accelerometer mean measured at calibration.
func (c *Controller) SetAccelBias(mean [3]float64) { c.accel.SetBias(mean) }

// Run ticks until ctx is cancelled or the clock fails.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
}

// Tick advances the robot by one control period. Coordinator payloads are
// drained in both states; an idle robot starts a bounded run from the oldest
// pending payload. The only blocking point is the clock step at the end.
func (c *Controller) Tick(ctx context.Context) error {
	c.pending = append(c.pending, c.hw.Params.DrainWeights()...)

	if c.state == Idle {
		for len(c.pending) > 0 && c.state == Idle {
			p := c.pending[0]
			c.pending = c.pending[1:]
			c.apply(p)
		}
	}

	if c.state == Running {
		c.step()
		c.remaining--
		if c.remaining <= 0 {
			c.state = Idle
			c.log.Infof("[robot %s] run complete at tick %d", c.id.Name, c.tick)
		}
	} else {
		c.idle()
	}

	c.tick++
	return c.hw.Clock.Step(ctx)
}

// ApplyWeightUpdate resets the robot and arms a run from payload, exactly as
// if it had arrived over the parameter channel while idle.
func (c *Controller) ApplyWeightUpdate(p model.WeightPayload) error {
	w, err := DecodeWeights(p, c.weights)
	if err != nil {
		return err
	}
	c.reset(w)
	return nil
}

func (c *Controller) apply(p model.WeightPayload) {
	if err := c.ApplyWeightUpdate(p); err != nil {
		c.log.Warnf("[robot %s] rejected weight payload: %v", c.id.Name, err)
		return
	}
	c.log.Infof("[robot %s] weights: cohesion %g, separation %g, threshold %g, alignment %g, migration %g, budget %d",
		c.id.Name, c.weights.Cohesion, c.weights.Separation, c.weights.SeparationThreshold,
		c.weights.Alignment, c.weights.Migration, c.weights.Iterations)
}

// reset clears all estimator state, restores the initial placement and
// installs w. Nothing else runs between the field writes.
func (c *Controller) reset(w RuleWeights) {
	c.tracker.Reset()
	c.pose = c.initial
	c.prevPose = Pose{}
	c.selfVel = model.Vec2{}
	c.desired = model.Vec2{}
	c.command = WheelCommand{}
	c.applied = WheelCommand{}
	c.accel.Reset(c.initial)
	if c.cfg.UseEncoders && c.hw.Encoders != nil {
		// wheel travel counted before the reset belongs to the old run
		_, _, _ = c.hw.Encoders.WheelDeltas()
	}
	c.weights = w
	c.remaining = w.Iterations
	if c.remaining > 0 {
		c.state = Running
	} else {
		c.state = Idle
	}
}

func (c *Controller) idle() {
	// queues keep draining so nothing stale survives into the next run
	if n := len(c.hw.Radio.DrainPings()); n > 0 {
		c.log.Debugf("[robot %s] idle, dropped %d pings", c.id.Name, n)
	}
	if c.hw.Localizer != nil {
		c.hw.Localizer.DrainPoses(0)
	}
	c.applied = WheelCommand{}
	if err := c.hw.Motors.SetWheelVelocity(0, 0); err != nil {
		c.log.Warnf("[robot %s] motor write: %v", c.id.Name, err)
	}
}

func (c *Controller) step() {
	if err := c.hw.Radio.SendPing(c.cfg.Ping.Encode(c.id.Name)); err != nil {
		c.log.Warnf("[robot %s] send ping: %v", c.id.Name, err)
	}
	if err := c.hw.Sensors.ReadDistances(c.readings); err != nil {
		c.log.Debugf("[robot %s] sensors: %v", c.id.Name, err)
	}

	c.prevPose = c.pose
	c.ingestPings()
	c.updateOdometry()
	c.applyOverrides()
	c.selfVel = model.Vec2{
		X: (c.pose.X - c.prevPose.X) / c.dt,
		Y: (c.pose.Y - c.prevPose.Y) / c.dt,
	}

	neighbors := c.tracker.Neighbors()
	c.desired, _ = ComputeDesiredVelocity(c.pose, neighbors, c.weights, c.cfg.Rules)
	c.command = ComputeWheelSpeeds(c.desired, c.pose.Heading, c.cfg.Motion)
	c.applied = BlendWithSensors(c.command, c.readings, c.cfg.Safety)

	if err := c.hw.Motors.SetWheelVelocity(WheelVelocity(c.applied.Left), WheelVelocity(c.applied.Right)); err != nil {
		c.log.Warnf("[robot %s] motor write: %v", c.id.Name, err)
	}
	if c.hw.Telemetry != nil {
		c.hw.Telemetry.Publish(c.telemetry(neighbors))
	}
}

func (c *Controller) ingestPings() {
	for _, f := range c.hw.Radio.DrainPings() {
		uid, err := c.cfg.Ping.Decode(f.Payload)
		if err != nil {
			c.log.Debugf("[robot %s] drop ping: %v", c.id.Name, err)
			continue
		}
		sender := uid % c.cfg.FlockSize
		if err := c.tracker.Ingest(sender, f.Direction, f.Strength, c.pose.Heading, c.tick); err != nil {
			c.log.Debugf("[robot %s] drop ping from %d: %v", c.id.Name, uid, err)
		}
	}
}

func (c *Controller) updateOdometry() {
	if !c.cfg.UseEncoders {
		return
	}
	var dl, dr float64
	if c.hw.Encoders != nil {
		var err error
		dl, dr, err = c.hw.Encoders.WheelDeltas()
		if err != nil {
			c.log.Debugf("[robot %s] encoders: %v", c.id.Name, err)
			return
		}
	} else {
		// no encoders: integrate the speeds commanded on the previous tick
		dl, dr = WheelDeltasFromSpeeds(c.applied.Left, c.applied.Right, c.dt)
	}
	c.pose = UpdateSelfPose(c.pose, dl, dr, c.cfg.Geometry)

	if c.hw.Accel != nil {
		if acc, err := c.hw.Accel.Acceleration(); err == nil {
			c.accel.Update(acc, dl, dr)
		}
	}
}

func (c *Controller) applyOverrides() {
	if c.hw.Localizer == nil {
		return
	}
	for _, r := range c.hw.Localizer.DrainPoses(c.cfg.FlockSize) {
		if r.Robot < 0 || r.Robot >= c.cfg.FlockSize {
			c.log.Debugf("[robot %s] drop pose: %v %d", c.id.Name, ErrUnknownRobot, r.Robot)
			continue
		}
		if r.Robot != c.id.RobotID {
			continue
		}
		if !finite(r.X) || !finite(r.Z) {
			continue
		}
		c.pose = PoseFromReport(r)
	}
}

func (c *Controller) telemetry(neighbors []Neighbor) model.Telemetry {
	t := model.Telemetry{
		Robot:   c.id.Name,
		RobotID: c.id.RobotID,
		Tick:    c.tick,
		State:   c.state.String(),
		X:       c.pose.X,
		Y:       c.pose.Y,
		Heading: c.pose.Heading,
		SelfVel: c.selfVel,
		Desired: c.desired,
		Left:    c.applied.Left,
		Right:   c.applied.Right,
	}
	for _, n := range neighbors {
		t.Neighbors = append(t.Neighbors, model.NeighborTelemetry{
			Robot: n.ID,
			Seen:  n.Seen,
			Pos:   model.Vec2{X: n.RelX, Y: n.RelY},
			Vel:   model.Vec2{X: n.RelVX, Y: n.RelVY},
		})
	}
	return t
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		MemberState: MemberState{
			Identity:  c.id,
			Pose:      c.pose,
			PrevPose:  c.prevPose,
			SelfVel:   c.selfVel,
			Weights:   c.weights,
			Neighbors: c.tracker.Neighbors(),
		},
		State:     c.state,
		Remaining: c.remaining,
		Tick:      c.tick,
		Pending:   len(c.pending),
		Desired:   c.desired,
		Flocking:  c.command,
		Command:   c.applied,
		AccelPose: c.accel.Pose(),
	}
}
