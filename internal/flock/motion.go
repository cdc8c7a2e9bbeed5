package flock

import (
	"math"

	"RoboFlock/internal/model"
)

// MotionConfig holds the proportional range/bearing controller parameters.
type MotionConfig struct {
	Ku          float64 // forward gain
	Kw          float64 // rotational gain
	AxleLength  float64
	WheelRadius float64
	MaxSpeed    int // speed units
}

// WheelCommand is a pair of wheel speeds in speed units.
type WheelCommand struct {
	Left  int
	Right int
}

// ComputeWheelSpeeds turns a desired world-frame velocity into clamped wheel speeds.
//
// The vector is rotated by -heading into the robot frame, where z points
// forward and x points to the robot's right. Each wheel saturates on its own.
func ComputeWheelSpeeds(v model.Vec2, heading float64, mc MotionConfig) WheelCommand {
	if !finite(v.X) || !finite(v.Y) || !finite(heading) {
		return WheelCommand{}
	}
	sin, cos := math.Sincos(heading)
	z := v.X*cos + v.Y*sin
	x := v.X*sin - v.Y*cos

	rng := math.Sqrt(x*x + z*z)
	bearing := -math.Atan2(x, z)

	u := mc.Ku * rng * math.Cos(bearing)
	w := mc.Kw * bearing

	unit := 1000.0 / mc.WheelRadius
	left := (u - mc.AxleLength*w/2) * unit
	right := (u + mc.AxleLength*w/2) * unit

	return WheelCommand{
		Left:  toSpeed(left, mc.MaxSpeed),
		Right: toSpeed(right, mc.MaxSpeed),
	}
}

// Limit keeps n within [-limit, limit].
func Limit(n, limit int) int {
	if n > limit {
		return limit
	}
	if n < -limit {
		return -limit
	}
	return n
}

// WheelVelocity converts speed units to motor angular velocity [rad/s].
func WheelVelocity(units int) float64 {
	return float64(units) * SpeedUnitRads
}

// toSpeed clamps f to ±limit, then truncates toward zero.
func toSpeed(f float64, limit int) int {
	lim := float64(limit)
	if f > lim {
		return limit
	}
	if f < -lim {
		return -limit
	}
	return int(f)
}
