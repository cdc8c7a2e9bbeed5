// Package parser implements the JSONParser which encodes and decodes telemetry
// and weight updates in JSON format.
package parser

import (
	"encoding/json"

	"RoboFlock/internal/model"
)

// JSONParser implements Parser interface using JSON serialization.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// EncodeTelemetry encodes Telemetry into JSON string.
func (p *JSONParser) EncodeTelemetry(t model.Telemetry) (string, error) {
	b, err := json.Marshal(t)
	return string(b), err
}

// DecodeTelemetry decodes JSON string into Telemetry.
func (p *JSONParser) DecodeTelemetry(s string) (model.Telemetry, error) {
	var t model.Telemetry
	err := json.Unmarshal([]byte(s), &t)
	return t, err
}

// EncodeWeights encodes a WeightUpdate into JSON string.
func (p *JSONParser) EncodeWeights(w model.WeightUpdate) (string, error) {
	b, err := json.Marshal(w)
	return string(b), err
}

// DecodeWeights decodes JSON string into a WeightUpdate.
func (p *JSONParser) DecodeWeights(s string) (model.WeightUpdate, error) {
	var w model.WeightUpdate
	err := json.Unmarshal([]byte(s), &w)
	return w, err
}
