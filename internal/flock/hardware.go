package flock

import (
	"context"

	"RoboFlock/internal/model"
)

// Sensors reads the proximity ring. Readings are written into dst.
type Sensors interface {
	ReadDistances(dst []int) error
}

// Encoders reports wheel angle deltas [rad] accumulated since the previous call.
type Encoders interface {
	WheelDeltas() (left, right float64, err error)
}

// Accelerometer returns the latest acceleration sample in the sensor frame.
type Accelerometer interface {
	Acceleration() ([3]float64, error)
}

// Motors accepts wheel angular velocities [rad/s].
type Motors interface {
	SetWheelVelocity(left, right float64) error
}

// Radio broadcasts identity pings and drains every ping queued since the last call.
type Radio interface {
	SendPing(payload []byte) error
	DrainPings() []model.PingFrame
}

// Localizer drains at most max queued authoritative pose records; max <= 0 drains all.
type Localizer interface {
	DrainPoses(max int) []model.PoseReport
}

// ParamSource drains coordinator weight payloads.
type ParamSource interface {
	DrainWeights() []model.WeightPayload
}

// Clock blocks until the next tick boundary.
type Clock interface {
	Step(ctx context.Context) error
}

// TelemetrySink receives one record per running tick.
type TelemetrySink interface {
	Publish(t model.Telemetry)
}

// PingCodec frames this robot's identity and decodes a sender's unique id.
type PingCodec interface {
	Encode(name string) []byte
	Decode(payload []byte) (int, error)
}

// Hardware bundles the collaborators of one robot. Encoders, Accel,
// Localizer and Telemetry are optional.
type Hardware struct {
	Sensors   Sensors
	Encoders  Encoders
	Accel     Accelerometer
	Motors    Motors
	Radio     Radio
	Localizer Localizer
	Params    ParamSource
	Clock     Clock
	Telemetry TelemetrySink
}
