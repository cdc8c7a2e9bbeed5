// Package parser implements the CSVParser which handles encoding and decoding
// of telemetry and weight updates using comma-separated values format.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"RoboFlock/internal/model"
)

const telemetryFields = 13

// CSVParser implements Parser interface using CSV format.
// Neighbor state is not carried on the CSV wire.
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeTelemetry converts Telemetry into a CSV line.
func (p *CSVParser) EncodeTelemetry(t model.Telemetry) (string, error) {
	if strings.Contains(t.Robot, ",") {
		return "", fmt.Errorf("robot name %q contains a comma", t.Robot)
	}
	line := fmt.Sprintf("%s,%d,%d,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%d",
		t.Robot, t.RobotID, t.Tick, t.State, t.X, t.Y, t.Heading,
		t.SelfVel.X, t.SelfVel.Y, t.Desired.X, t.Desired.Y, t.Left, t.Right)
	return line, nil
}

// DecodeTelemetry parses a CSV telemetry line.
func (p *CSVParser) DecodeTelemetry(line string) (model.Telemetry, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != telemetryFields {
		return model.Telemetry{}, fmt.Errorf("expected %d fields, got %d", telemetryFields, len(fields))
	}

	robotID, err := strconv.Atoi(fields[1])
	if err != nil {
		return model.Telemetry{}, errors.New("invalid robot_id")
	}
	tick, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return model.Telemetry{}, errors.New("invalid tick")
	}
	floats := make([]float64, 7)
	names := []string{"x", "y", "heading", "self_vx", "self_vy", "desired_vx", "desired_vy"}
	for i := range floats {
		floats[i], err = strconv.ParseFloat(fields[4+i], 64)
		if err != nil {
			return model.Telemetry{}, fmt.Errorf("invalid %s", names[i])
		}
	}
	left, err := strconv.Atoi(fields[11])
	if err != nil {
		return model.Telemetry{}, errors.New("invalid left")
	}
	right, err := strconv.Atoi(fields[12])
	if err != nil {
		return model.Telemetry{}, errors.New("invalid right")
	}

	return model.Telemetry{
		Robot:   fields[0],
		RobotID: robotID,
		Tick:    tick,
		State:   fields[3],
		X:       floats[0],
		Y:       floats[1],
		Heading: floats[2],
		SelfVel: model.Vec2{X: floats[3], Y: floats[4]},
		Desired: model.Vec2{X: floats[5], Y: floats[6]},
		Left:    left,
		Right:   right,
	}, nil
}

// EncodeWeights converts a WeightUpdate into a CSV line.
func (p *CSVParser) EncodeWeights(w model.WeightUpdate) (string, error) {
	return fmt.Sprintf("W,%g,%g,%g,%d", w.Cohesion, w.Separation, w.SeparationThreshold, w.Iterations), nil
}

// DecodeWeights parses a CSV weight line.
func (p *CSVParser) DecodeWeights(line string) (model.WeightUpdate, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 5 || fields[0] != "W" {
		return model.WeightUpdate{}, fmt.Errorf("malformed weight line %q", line)
	}
	cohesion, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.WeightUpdate{}, errors.New("invalid cohesion")
	}
	separation, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return model.WeightUpdate{}, errors.New("invalid separation")
	}
	threshold, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return model.WeightUpdate{}, errors.New("invalid separation_threshold")
	}
	iterations, err := strconv.Atoi(fields[4])
	if err != nil {
		return model.WeightUpdate{}, errors.New("invalid iterations")
	}
	return model.WeightUpdate{
		Cohesion:            cohesion,
		Separation:          separation,
		SeparationThreshold: threshold,
		Iterations:          iterations,
	}, nil
}
