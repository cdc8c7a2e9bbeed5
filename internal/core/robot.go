package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"RoboFlock/internal/device"
	"RoboFlock/internal/flock"
	"RoboFlock/internal/model"
	"RoboFlock/pkg/lorapkg"
)

const calibrationTimeout = 10 * time.Second

// Robot is one robot agent: its base board and radio links plus the flocking
// controller loop running on its own goroutine.
type Robot struct {
	Name string
	cfg  model.RobotConfig

	base   *device.BaseBoard
	radio  *device.Radio
	params *paramMux
	clock  *device.TickClock
	ctrl   *flock.Controller

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewRobot opens the robot's serial links and builds its controller.
func NewRobot(settings flock.Settings, rc model.RobotConfig, lora *lorapkg.LoRaWANContext, sink flock.TelemetrySink) (*Robot, error) {
	baseDev, err := device.NewSerialDevice(rc.BaseDev, rc.BaseBaud)
	if err != nil {
		return nil, fmt.Errorf("robot %s base: %w", rc.Name, err)
	}
	radioDev, err := device.NewSerialDevice(rc.RadioDev, rc.RadioBaud)
	if err != nil {
		_ = baseDev.Close()
		return nil, fmt.Errorf("robot %s radio: %w", rc.Name, err)
	}
	r, err := newRobot(settings, rc, baseDev, radioDev, lora, sink)
	if err != nil {
		_ = baseDev.Close()
		_ = radioDev.Close()
		return nil, err
	}
	return r, nil
}

func newRobot(settings flock.Settings, rc model.RobotConfig, baseDev, radioDev device.Device, lora *lorapkg.LoRaWANContext, sink flock.TelemetrySink) (*Robot, error) {
	id, err := flock.ParseIdentity(rc.Name, settings.FlockSize)
	if err != nil {
		return nil, fmt.Errorf("robot %s: %w", rc.Name, err)
	}
	r := &Robot{
		Name:  rc.Name,
		cfg:   rc,
		base:  device.NewBaseBoard(rc.Name, baseDev),
		radio: device.NewRadio(rc.Name, radioDev, lora),
		clock: device.NewTickClock(settings.Tick),
	}
	r.params = &paramMux{src: r.radio}

	settings.UseEncoders = rc.Odometry == "encoders"
	hw := flock.Hardware{
		Sensors:   r.base,
		Encoders:  r.base,
		Accel:     r.base,
		Motors:    r.base,
		Radio:     r.radio,
		Localizer: r.radio,
		Params:    r.params,
		Clock:     r.clock,
		Telemetry: sink,
	}
	r.ctrl, err = flock.NewController(settings, id, hw)
	if err != nil {
		r.clock.Stop()
		return nil, err
	}
	return r, nil
}

// PushWeights queues a coordinator payload as if it had arrived by radio.
func (r *Robot) PushWeights(p model.WeightPayload) {
	r.params.Push(p)
}

// Start launches the device readers and the control loop.
func (r *Robot) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil || r.stopped {
		return errors.New("robot already started")
	}
	r.base.Start()
	r.radio.Start()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		if n := r.cfg.AccelCalibration; n > 0 {
			r.calibrate(ctx, n)
		}
		zap.S().Infof("[robot %s] control loop started, waiting for weights", r.Name)
		if err := r.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.S().Errorf("[robot %s] control loop stopped: %v", r.Name, err)
		}
	}()
	return nil
}

func (r *Robot) calibrate(ctx context.Context, n int) {
	ctx, cancel := context.WithTimeout(ctx, calibrationTimeout)
	defer cancel()
	mean, err := r.base.CalibrateAccel(ctx, n)
	if err != nil {
		zap.S().Warnf("[robot %s] accelerometer calibration: %v", r.Name, err)
		return
	}
	r.ctrl.SetAccelBias(mean)
	zap.S().Infof("[robot %s] accelerometer bias %v", r.Name, mean)
}

// Stop ends the control loop, halts the wheels and closes both links.
func (r *Robot) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	if err := r.base.SetWheelVelocity(0, 0); err != nil {
		zap.S().Debugf("[robot %s] halt: %v", r.Name, err)
	}
	r.clock.Stop()
	r.radio.Stop()
	r.base.Stop()
	if n := r.radio.Dropped(); n > 0 {
		zap.S().Warnf("[robot %s] radio queues dropped %d messages", r.Name, n)
	}
}

// paramMux merges the radio parameter channel with payloads pushed locally.
type paramMux struct {
	src flock.ParamSource

	mu    sync.Mutex
	local []model.WeightPayload
}

func (m *paramMux) Push(p model.WeightPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local = append(m.local, append(model.WeightPayload(nil), p...))
}

func (m *paramMux) DrainWeights() []model.WeightPayload {
	out := m.src.DrainWeights()
	m.mu.Lock()
	defer m.mu.Unlock()
	out = append(out, m.local...)
	m.local = nil
	return out
}
