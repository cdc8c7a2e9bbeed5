package flock

import "math"

// AccelOdometry is a second, independent pose estimate obtained by double
// integration of the bias-corrected accelerometer, with the heading rate
// taken from the wheel encoders. It is reported for comparison only.
type AccelOdometry struct {
	geom Geometry
	dt   float64
	bias [3]float64
	pose Pose
	vx   float64
	vy   float64
}

// NewAccelOdometry returns an estimator integrating over steps of dt seconds.
func NewAccelOdometry(g Geometry, dt float64) *AccelOdometry {
	return &AccelOdometry{geom: g, dt: dt}
}

// SetBias stores the accelerometer mean measured while standing still.
func (a *AccelOdometry) SetBias(mean [3]float64) { a.bias = mean }

// Reset restarts integration from origin with zero velocity.
func (a *AccelOdometry) Reset(origin Pose) {
	a.pose = origin
	a.vx, a.vy = 0, 0
}

// Pose returns the current estimate.
func (a *AccelOdometry) Pose() Pose { return a.pose }

// Update integrates one sample. acc is in the sensor frame; leftDelta and
// rightDelta are the wheel angle deltas [rad] of the same step.
func (a *AccelOdometry) Update(acc [3]float64, leftDelta, rightDelta float64) Pose {
	if !finite(acc[0]) || !finite(acc[1]) || !finite(leftDelta) || !finite(rightDelta) {
		return a.pose
	}
	// body frame, 1-D motion assumption: sensor y is forward
	bx := acc[1] - a.bias[1]
	by := -(acc[0] - a.bias[0])

	h := a.pose.Heading
	wx := bx*math.Cos(h) - by*math.Sin(h)
	wy := bx*math.Sin(h) + by*math.Cos(h)

	dl := leftDelta * a.geom.WheelRadius
	dr := rightDelta * a.geom.WheelRadius
	omega := (dr - dl) / (a.geom.AxleLength * a.dt)

	a.vx += wx * a.dt
	a.vy += wy * a.dt
	a.pose.X += a.vx * a.dt
	a.pose.Y += a.vy * a.dt
	a.pose.Heading = NormalizeHeading(h + omega*a.dt)
	return a.pose
}
