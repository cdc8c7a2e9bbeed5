package sim

import (
	"context"
	"math"

	"RoboFlock/internal/model"
)

// robotIO is one robot's view of the world. It implements every device
// interface of flock.Hardware.
type robotIO struct {
	w *World
	i int
}

func (r *robotIO) body() *body { return r.w.bodies[r.i] }

func (r *robotIO) ReadDistances(dst []int) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.proximity(r.i, dst)
	return nil
}

func (r *robotIO) WheelDeltas() (left, right float64, err error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	b := r.body()
	left, right = b.encL, b.encR
	b.encL, b.encR = 0, 0
	return left, right, nil
}

func (r *robotIO) Acceleration() ([3]float64, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	return r.body().accel, nil
}

func (r *robotIO) SetWheelVelocity(left, right float64) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	b := r.body()
	b.wl = clampWheel(left)
	b.wr = clampWheel(right)
	return nil
}

func clampWheel(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-MaxWheelRads, math.Min(MaxWheelRads, v))
}

func (r *robotIO) SendPing(payload []byte) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	b := r.body()
	b.outbox = append(b.outbox, append([]byte(nil), payload...))
	return nil
}

func (r *robotIO) DrainPings() []model.PingFrame {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	b := r.body()
	out := b.inbox
	b.inbox = nil
	return out
}

func (r *robotIO) DrainPoses(max int) []model.PoseReport {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	b := r.body()
	n := len(b.poses)
	if max > 0 && n > max {
		n = max
	}
	out := append([]model.PoseReport(nil), b.poses[:n]...)
	b.poses = b.poses[n:]
	return out
}

func (r *robotIO) DrainWeights() []model.WeightPayload {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	b := r.body()
	out := b.weights
	b.weights = nil
	return out
}

// Step returns at once; the world advances only when Advance is called.
func (r *robotIO) Step(ctx context.Context) error {
	return ctx.Err()
}
