// Package parser converts the RoboFlock wire formats to structured types and vice-versa.
//
// CSV telemetry wire format (robot -> monitor):
//
//	ROBOT,ROBOT_ID,TICK,STATE,X,Y,HEAD,SELF_VX,SELF_VY,DES_VX,DES_VY,LEFT,RIGHT
//
// CSV weight wire format (coordinator -> robot):
//
//	W,COHESION,SEPARATION,THRESHOLD,ITERATIONS
package parser

import (
	"fmt"

	"RoboFlock/internal/model"
)

// Parser encodes and decodes telemetry and weight updates in one wire format.
type Parser interface {
	EncodeTelemetry(t model.Telemetry) (string, error)
	DecodeTelemetry(line string) (model.Telemetry, error)
	EncodeWeights(w model.WeightUpdate) (string, error)
	DecodeWeights(line string) (model.WeightUpdate, error)
}

// New returns the parser registered for format (csv/json).
func New(format string) (Parser, error) {
	switch format {
	case "csv":
		return NewCSVParser(), nil
	case "json":
		return NewJSONParser(), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}
