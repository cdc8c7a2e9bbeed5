// Package model defines shared message structures for RoboFlock.
package model

// PingFrame is one received identity ping as delivered by the ranging receiver.
// Direction is the emitter direction in the receiver body frame; Strength is the
// inverse-square signal strength.
type PingFrame struct {
	Payload   []byte
	Direction [3]float64
	Strength  float64
}

// PoseReport is an authoritative pose broadcast by the external localizer.
// Z is the localizer's second planar axis (inverted with respect to the flock y axis).
type PoseReport struct {
	Robot   int     `json:"robot"`
	X       float64 `json:"x"`
	Z       float64 `json:"z"`
	Heading float64 `json:"heading"`
}

// WeightPayload is the raw numeric payload pushed by the coordinator:
// [cohesion_raw, separation_raw, separation_threshold, iterations, ...].
type WeightPayload []float64

// WeightUpdate is the JSON/CSV form of a coordinator push. Cohesion and
// Separation are raw values; robots scale them by 1/10 on receipt.
type WeightUpdate struct {
	Cohesion            float64 `json:"cohesion"`
	Separation          float64 `json:"separation"`
	SeparationThreshold float64 `json:"separation_threshold"`
	Iterations          int     `json:"iterations"`
}

// Payload converts the update to the raw radio payload.
func (w WeightUpdate) Payload() WeightPayload {
	return WeightPayload{w.Cohesion, w.Separation, w.SeparationThreshold, float64(w.Iterations)}
}

// Vec2 is a planar vector.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NeighborTelemetry is the tracked state of one flockmate.
type NeighborTelemetry struct {
	Robot int  `json:"robot"`
	Seen  bool `json:"seen"`
	Pos   Vec2 `json:"pos"`
	Vel   Vec2 `json:"vel"`
}

// Telemetry is published by a robot after each running tick.
type Telemetry struct {
	Robot     string              `json:"robot"`
	RobotID   int                 `json:"robot_id"`
	Tick      uint64              `json:"tick"`
	State     string              `json:"state"`
	X         float64             `json:"x"`
	Y         float64             `json:"y"`
	Heading   float64             `json:"heading"`
	SelfVel   Vec2                `json:"self_vel"`
	Desired   Vec2                `json:"desired"`
	Left      int                 `json:"left"`
	Right     int                 `json:"right"`
	Neighbors []NeighborTelemetry `json:"neighbors,omitempty"`
}
