// Package flock implements the per-robot estimation and control core of the
// flocking controller: dead-reckoned pose, neighbor tracking from ranging pings,
// Reynolds rules, the differential-drive motion controller, the reactive
// sensor blend and the parameter/reset run loop.
package flock

import (
	"math"

	"RoboFlock/internal/model"
)

const (
	// SpeedUnitRads converts one wheel speed unit to rad/s.
	SpeedUnitRads = 0.00628
	twoPi         = 2 * math.Pi
)

// Pose is a position in the shared world frame plus a heading in [0, 2π).
type Pose struct {
	X       float64
	Y       float64
	Heading float64
}

// Geometry is the differential drive layout.
type Geometry struct {
	AxleLength  float64
	WheelRadius float64
}

// NormalizeHeading wraps h into [0, 2π). Non-finite headings collapse to 0.
func NormalizeHeading(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, twoPi)
	if h < 0 {
		h += twoPi
	}
	if h >= twoPi {
		h = 0
	}
	return h
}

// UpdateSelfPose integrates wheel angle deltas [rad] with forward Euler: the
// position step uses the heading held at the start of the step.
func UpdateSelfPose(prev Pose, leftDelta, rightDelta float64, g Geometry) Pose {
	if !finite(leftDelta) || !finite(rightDelta) {
		return prev
	}
	dl := leftDelta * g.WheelRadius
	dr := rightDelta * g.WheelRadius
	du := (dl + dr) / 2
	dtheta := (dr - dl) / g.AxleLength

	return Pose{
		X:       prev.X + du*math.Cos(prev.Heading),
		Y:       prev.Y + du*math.Sin(prev.Heading),
		Heading: NormalizeHeading(prev.Heading + dtheta),
	}
}

// WheelDeltasFromSpeeds converts commanded speed units held for dt seconds
// into wheel angle deltas.
func WheelDeltasFromSpeeds(msl, msr int, dt float64) (left, right float64) {
	return float64(msl) * SpeedUnitRads * dt, float64(msr) * SpeedUnitRads * dt
}

// PoseFromReport converts a localizer record into the flock frame (z axis inverted).
func PoseFromReport(r model.PoseReport) Pose {
	return Pose{X: r.X, Y: -r.Z, Heading: NormalizeHeading(r.Heading)}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
