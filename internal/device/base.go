package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"RoboFlock/internal/parser"
)

// pollInterval bounds how long a reader loop waits before rechecking stop.
const pollInterval = 250 * time.Millisecond

// BaseBoard is the robot's motor/sensor board behind a line device. A
// background loop keeps the latest sensor, encoder and accelerometer values;
// the controller reads them without blocking.
type BaseBoard struct {
	Name string
	dev  Device

	mu        sync.Mutex
	sensors   []int
	encLeft   float64
	encRight  float64
	takenL    float64
	takenR    float64
	haveEnc   bool
	accel     [3]float64
	haveAccel bool
	calib     chan [3]float64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewBaseBoard wraps dev. Call Start to begin reading.
func NewBaseBoard(name string, dev Device) *BaseBoard {
	return &BaseBoard{Name: name, dev: dev, stop: make(chan struct{})}
}

// Start launches the reader loop.
func (b *BaseBoard) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		lineLoop("base "+b.Name, b.dev, b.stop, b.handle)
	}()
}

// Stop ends the reader loop and closes the device.
func (b *BaseBoard) Stop() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	_ = b.dev.Close()
	b.wg.Wait()
}

func (b *BaseBoard) handle(line string) {
	msg, err := parser.ParseBaseLine(line)
	if err != nil {
		zap.S().Debugf("[base %s] %v (%s)", b.Name, err, line)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch msg.Kind {
	case parser.BaseSensors:
		b.sensors = msg.Sensors
	case parser.BaseEncoders:
		if !b.haveEnc {
			b.takenL, b.takenR = msg.Left, msg.Right
			b.haveEnc = true
		}
		b.encLeft, b.encRight = msg.Left, msg.Right
	case parser.BaseAccel:
		b.accel = msg.Accel
		b.haveAccel = true
		if b.calib != nil {
			select {
			case b.calib <- msg.Accel:
			default:
			}
		}
	}
}

// ReadDistances copies the latest proximity readings into dst. Sensors the
// last line did not report read as 0.
func (b *BaseBoard) ReadDistances(dst []int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sensors == nil {
		return ErrNoData
	}
	clear(dst)
	copy(dst, b.sensors)
	return nil
}

// WheelDeltas returns the wheel angles travelled since the previous call.
func (b *BaseBoard) WheelDeltas() (left, right float64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.haveEnc {
		return 0, 0, ErrNoData
	}
	left, right = b.encLeft-b.takenL, b.encRight-b.takenR
	b.takenL, b.takenR = b.encLeft, b.encRight
	return left, right, nil
}

// Acceleration returns the latest accelerometer sample.
func (b *BaseBoard) Acceleration() ([3]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.haveAccel {
		return [3]float64{}, ErrNoData
	}
	return b.accel, nil
}

// SetWheelVelocity sends a motor command in rad/s.
func (b *BaseBoard) SetWheelVelocity(left, right float64) error {
	return b.dev.WriteLine(parser.FormatMotorLine(left, right))
}

// CalibrateAccel averages the next n accelerometer samples. The robot must
// stand still meanwhile.
func (b *BaseBoard) CalibrateAccel(ctx context.Context, n int) ([3]float64, error) {
	if n <= 0 {
		return [3]float64{}, errors.New("calibration needs at least one sample")
	}
	ch := make(chan [3]float64, n)
	b.mu.Lock()
	b.calib = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.calib = nil
		b.mu.Unlock()
	}()

	var sum [3]float64
	for i := 0; i < n; i++ {
		select {
		case a := <-ch:
			for k := range sum {
				sum[k] += a[k]
			}
		case <-ctx.Done():
			return [3]float64{}, ctx.Err()
		}
	}
	for k := range sum {
		sum[k] /= float64(n)
	}
	return sum, nil
}

// lineLoop feeds every non-empty line read from dev to handle until stop is
// closed or the device is closed.
func lineLoop(name string, dev Device, stop <-chan struct{}, handle func(string)) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		line, err := dev.ReadLine(pollInterval)
		switch {
		case err == nil:
			if line = strings.TrimSpace(line); line != "" {
				handle(line)
			}
		case errors.Is(err, ErrReadTimeout):
		case errors.Is(err, ErrNotOpen):
			return
		default:
			zap.S().Debugf("[%s] read: %v", name, err)
			select {
			case <-stop:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}
