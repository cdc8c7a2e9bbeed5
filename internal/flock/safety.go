package flock

// Proximity sensor constants of the e-puck ring.
const (
	NumSensors = 8
	MinSens    = 350  // sensor activation floor
	MaxSens    = 4096 // sensor saturation
)

// BraitenbergMatrix weights each sensor reading per wheel: the first
// NumSensors entries feed the right wheel, the rest the left wheel.
var BraitenbergMatrix = [2 * NumSensors]int{
	17, 29, 34, 10, 8, -38, -56, -76,
	-72, -58, -36, 8, 10, 36, 28, 18,
}

// SafetyConfig parametrizes the reactive sensor blend.
type SafetyConfig struct {
	Matrix      [2 * NumSensors]int
	OffsetLeft  int
	OffsetRight int
	MaxSpeed    int
}

// DefaultSafety returns the empirically tuned e-puck blend.
func DefaultSafety(maxSpeed int) SafetyConfig {
	return SafetyConfig{
		Matrix:      BraitenbergMatrix,
		OffsetLeft:  66,
		OffsetRight: 72,
		MaxSpeed:    maxSpeed,
	}
}

// BlendWithSensors adds the Braitenberg avoidance term to the flocking wheel
// speeds. When the summed activation exceeds NumSensors*MinSens both flocking
// speeds are first reduced in proportion to the strongest reading.
func BlendWithSensors(cmd WheelCommand, readings []int, sc SafetyConfig) WheelCommand {
	var bl, br, sum, maxSens int
	for i := 0; i < NumSensors && i < len(readings); i++ {
		d := readings[i]
		if d < 0 {
			d = 0
		}
		if d > MaxSens {
			d = MaxSens
		}
		sum += d
		if d > maxSens {
			maxSens = d
		}
		br += sc.Matrix[i] * d
		bl += sc.Matrix[i+NumSensors] * d
	}
	bl = bl/MinSens + sc.OffsetLeft
	br = br/MinSens + sc.OffsetRight

	left, right := cmd.Left, cmd.Right
	if sum > NumSensors*MinSens {
		left -= left * maxSens / (2 * MaxSens)
		right -= right * maxSens / (2 * MaxSens)
	}
	return WheelCommand{
		Left:  Limit(left+bl, sc.MaxSpeed),
		Right: Limit(right+br, sc.MaxSpeed),
	}
}

