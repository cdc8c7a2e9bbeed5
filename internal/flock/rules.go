package flock

import (
	"fmt"
	"math"

	"RoboFlock/internal/model"
)

// AlignmentMode selects the alignment (velocity matching) behavior.
type AlignmentMode int

const (
	// AlignmentOff keeps the alignment weight slot but contributes a zero vector.
	AlignmentOff AlignmentMode = iota
	// AlignmentMatchVelocity steers toward the average relative velocity.
	AlignmentMatchVelocity
)

// ParseAlignmentMode maps the configuration string to a mode.
func ParseAlignmentMode(s string) (AlignmentMode, error) {
	switch s {
	case "", "off":
		return AlignmentOff, nil
	case "match_velocity":
		return AlignmentMatchVelocity, nil
	}
	return 0, fmt.Errorf("unknown alignment mode %q", s)
}

// MigrationMode selects the common-direction bias. The two modes are exclusive.
type MigrationMode int

const (
	// MigrateToTarget biases every robot toward the fixed migration target.
	MigrateToTarget MigrationMode = iota
	// MigrateWander pushes each robot along its own heading.
	MigrateWander
)

// ParseMigrationMode maps the configuration string to a mode.
func ParseMigrationMode(s string) (MigrationMode, error) {
	switch s {
	case "", "target":
		return MigrateToTarget, nil
	case "wander":
		return MigrateWander, nil
	}
	return 0, fmt.Errorf("unknown migration mode %q", s)
}

// wanderSpeed is the fixed push of the wander migration mode.
const wanderSpeed = 0.01

// minSeparationCoord skips separation contributions of coordinates this close
// to zero, whose reciprocal would dominate or overflow.
const minSeparationCoord = 1e-3

// RuleWeights are the coordinator-tunable Reynolds parameters.
type RuleWeights struct {
	Cohesion            float64
	Separation          float64
	SeparationThreshold float64
	Alignment           float64
	Migration           float64
	Iterations          int
}

// RuleConfig is the fixed part of the rule engine setup.
type RuleConfig struct {
	FlockSize int
	Alignment AlignmentMode
	Migration MigrationMode
	Target    model.Point
}

// Terms are the weighted contributions before the y inversion.
type Terms struct {
	Cohesion   model.Vec2
	Separation model.Vec2
	Alignment  model.Vec2
	Migration  model.Vec2
}

// ComputeDesiredVelocity applies the Reynolds rules for this robot only.
// It is a pure function of its inputs; the result is not saturated.
func ComputeDesiredVelocity(self Pose, neighbors []Neighbor, w RuleWeights, rc RuleConfig) (model.Vec2, Terms) {
	var avgPos, avgVel model.Vec2
	if rc.FlockSize > 1 {
		for _, n := range neighbors {
			avgPos.X += n.RelX
			avgPos.Y += n.RelY
			avgVel.X += n.RelVX
			avgVel.Y += n.RelVY
		}
		others := float64(rc.FlockSize - 1)
		avgPos.X /= others
		avgPos.Y /= others
		avgVel.X /= others
		avgVel.Y /= others
	}

	var sep model.Vec2
	for _, n := range neighbors {
		if n.RelX*n.RelX+n.RelY*n.RelY >= w.SeparationThreshold {
			continue
		}
		// reciprocal per coordinate, not of the distance
		if math.Abs(n.RelX) >= minSeparationCoord {
			sep.X -= 1 / n.RelX
		}
		if math.Abs(n.RelY) >= minSeparationCoord {
			sep.Y -= 1 / n.RelY
		}
	}

	var align model.Vec2
	if rc.Alignment == AlignmentMatchVelocity {
		align = avgVel
	}

	terms := Terms{
		Cohesion:   scale(avgPos, w.Cohesion),
		Separation: scale(sep, w.Separation),
		Alignment:  scale(align, w.Alignment),
	}

	v := model.Vec2{
		X: terms.Cohesion.X + terms.Separation.X + terms.Alignment.X,
		Y: terms.Cohesion.Y + terms.Separation.Y + terms.Alignment.Y,
	}
	v.Y = -v.Y

	switch rc.Migration {
	case MigrateWander:
		terms.Migration = model.Vec2{
			X: wanderSpeed * math.Cos(self.Heading+math.Pi/2),
			Y: wanderSpeed * math.Sin(self.Heading+math.Pi/2),
		}
	default:
		terms.Migration = model.Vec2{
			X: (rc.Target.X - self.X) * w.Migration,
			Y: -(rc.Target.Y - self.Y) * w.Migration,
		}
	}
	v.X += terms.Migration.X
	v.Y += terms.Migration.Y

	if !finite(v.X) || !finite(v.Y) {
		return model.Vec2{}, terms
	}
	return v, terms
}

func scale(v model.Vec2, k float64) model.Vec2 {
	return model.Vec2{X: v.X * k, Y: v.Y * k}
}
