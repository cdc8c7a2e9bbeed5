// Package sim is an in-memory kinematic arena for a whole flock. Each robot
// gets a flock.Hardware whose devices are backed by the world state, so the
// real controllers run unchanged in lockstep.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"RoboFlock/internal/flock"
	"RoboFlock/internal/model"
)

// Simulated device limits.
const (
	MaxWheelRads = 6.28  // motor saturation [rad/s]
	BodyRadius   = 0.037 // e-puck shell
	SensorRange  = 0.07  // proximity sensing distance beyond the shell
	sensorFOV    = 0.5   // half aperture of one proximity sensor [rad]
	gravity      = 9.81
)

// sensorAngles are the proximity sensor bearings relative to the heading,
// ps0..ps7; ps0-ps3 sit on the right side.
var sensorAngles = [flock.NumSensors]float64{-0.30, -0.80, -1.57, -2.64, 2.64, 1.57, 0.80, 0.30}

// Options configures a World.
type Options struct {
	Flock model.FlockConfig
	// Names are the robot device names in robot id order; defaults to epuck0..
	Names []string
	// LocalizeEvery is the number of ticks between localizer broadcasts; 0 disables them.
	LocalizeEvery int
}

type body struct {
	name  string
	pose  flock.Pose
	wl    float64 // commanded wheel velocity [rad/s]
	wr    float64
	encL  float64
	encR  float64
	speed float64 // forward speed of the previous step [m/s]
	accel [3]float64

	outbox  [][]byte
	inbox   []model.PingFrame
	poses   []model.PoseReport
	weights []model.WeightPayload
}

// World owns every robot body. All methods are safe for concurrent use.
type World struct {
	mu     sync.Mutex
	opts   Options
	geom   flock.Geometry
	dt     float64
	tick   uint64
	bodies []*body
	start  map[int]flock.Pose
}

// NewWorld places every robot at its configured placement.
func NewWorld(opts Options) (*World, error) {
	opts.Flock.ApplyDefaults()
	if err := opts.Flock.Validate(); err != nil {
		return nil, err
	}
	n := opts.Flock.Size
	if len(opts.Names) == 0 {
		for i := 0; i < n; i++ {
			opts.Names = append(opts.Names, fmt.Sprintf("epuck%d", i))
		}
	}
	if len(opts.Names) != n {
		return nil, fmt.Errorf("%d names for a flock of %d", len(opts.Names), n)
	}
	w := &World{
		opts:  opts,
		geom:  flock.Geometry{AxleLength: opts.Flock.AxleLength, WheelRadius: opts.Flock.WheelRadius},
		dt:    float64(opts.Flock.TickMs) / 1000,
		start: make(map[int]flock.Pose, n),
	}
	for i, name := range opts.Names {
		id, err := flock.ParseIdentity(name, n)
		if err != nil {
			return nil, err
		}
		if id.RobotID != i {
			return nil, fmt.Errorf("robot %s maps to slot %d, listed at %d", name, id.RobotID, i)
		}
		p := opts.Flock.Placements[i]
		w.start[i] = flock.Pose{X: p.X, Y: p.Y, Heading: flock.NormalizeHeading(p.Heading)}
		w.bodies = append(w.bodies, &body{name: name, pose: w.start[i], accel: [3]float64{0, 0, gravity}})
	}
	return w, nil
}

// Size returns the number of robots.
func (w *World) Size() int { return len(w.bodies) }

// Name returns the device name of robot i.
func (w *World) Name(i int) string { return w.bodies[i].name }

// Pose returns the true pose of robot i.
func (w *World) Pose(i int) flock.Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bodies[i].pose
}

// Tick returns the number of completed Advance calls.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// Place teleports robot i.
func (w *World) Place(i int, p flock.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.bodies[i]
	b.pose = p
	b.speed = 0
}

// BroadcastWeights moves every robot back to its start pose and queues the
// payload on every robot's parameter channel.
func (w *World) BroadcastWeights(p model.WeightPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, b := range w.bodies {
		b.pose = w.start[i]
		b.speed = 0
		b.inbox = nil
		b.weights = append(b.weights, append(model.WeightPayload(nil), p...))
	}
	zap.S().Infof("[sim] weights broadcast to %d robots: %v", len(w.bodies), p)
}

// Advance moves every robot by one tick under its current wheel command,
// then delivers the pings sent during the tick and the localizer records.
func (w *World) Advance() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range w.bodies {
		w.move(b)
	}
	for from, src := range w.bodies {
		for _, payload := range src.outbox {
			w.deliver(from, payload)
		}
		src.outbox = nil
	}
	w.tick++
	if w.opts.LocalizeEvery > 0 && w.tick%uint64(w.opts.LocalizeEvery) == 0 {
		w.localize()
	}
}

func (w *World) move(b *body) {
	vl := b.wl * w.geom.WheelRadius
	vr := b.wr * w.geom.WheelRadius
	speed := (vl + vr) / 2
	omega := (vr - vl) / w.geom.AxleLength

	b.pose.X += speed * w.dt * math.Cos(b.pose.Heading)
	b.pose.Y += speed * w.dt * math.Sin(b.pose.Heading)
	b.pose.Heading = flock.NormalizeHeading(b.pose.Heading + omega*w.dt)
	b.encL += b.wl * w.dt
	b.encR += b.wr * w.dt

	// sensor y is forward, sensor x points right
	b.accel = [3]float64{0, (speed - b.speed) / w.dt, gravity}
	b.speed = speed
}

// deliver queues a ping at every other robot, with the emitter direction in
// the receiver's body frame (x forward, z to the right) and an
// inverse-square signal strength.
func (w *World) deliver(from int, payload []byte) {
	src := w.bodies[from]
	for to, dst := range w.bodies {
		if to == from {
			continue
		}
		dx := src.pose.X - dst.pose.X
		dy := src.pose.Y - dst.pose.Y
		d2 := dx*dx + dy*dy
		if d2 == 0 {
			continue
		}
		phi := math.Atan2(dy, dx) - dst.pose.Heading
		dst.inbox = append(dst.inbox, model.PingFrame{
			Payload:   append([]byte(nil), payload...),
			Direction: [3]float64{math.Cos(phi), 0, -math.Sin(phi)},
			Strength:  1 / d2,
		})
	}
}

func (w *World) localize() {
	for i, b := range w.bodies {
		r := model.PoseReport{Robot: i, X: b.pose.X, Z: -b.pose.Y, Heading: b.pose.Heading}
		for _, dst := range w.bodies {
			dst.poses = append(dst.poses, r)
		}
	}
}

// proximity models the IR ring: each sensor sees the nearest robot shell
// inside its aperture, reading MaxSens at contact and falling linearly to 0
// at SensorRange.
func (w *World) proximity(i int, dst []int) {
	self := w.bodies[i]
	for s := range dst {
		dst[s] = 0
	}
	for j, other := range w.bodies {
		if j == i {
			continue
		}
		dx := other.pose.X - self.pose.X
		dy := other.pose.Y - self.pose.Y
		gap := math.Hypot(dx, dy) - 2*BodyRadius
		if gap >= SensorRange {
			continue
		}
		reading := flock.MaxSens
		if gap > 0 {
			reading = int(float64(flock.MaxSens) * (1 - gap/SensorRange))
		}
		bearing := math.Atan2(dy, dx) - self.pose.Heading
		for s := 0; s < len(dst) && s < len(sensorAngles); s++ {
			diff := math.Remainder(bearing-sensorAngles[s], 2*math.Pi)
			if math.Abs(diff) <= sensorFOV && reading > dst[s] {
				dst[s] = reading
			}
		}
	}
}

// Hardware returns the device bundle of robot i. The clock does not block;
// pacing is up to the caller of Advance.
func (w *World) Hardware(i int) flock.Hardware {
	io := &robotIO{w: w, i: i}
	return flock.Hardware{
		Sensors:   io,
		Encoders:  io,
		Accel:     io,
		Motors:    io,
		Radio:     io,
		Localizer: io,
		Params:    io,
		Clock:     io,
	}
}

// Step ticks every controller once and then advances the world.
func (w *World) Step(ctx context.Context, ctrls []*flock.Controller) error {
	for _, c := range ctrls {
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
	w.Advance()
	return nil
}
