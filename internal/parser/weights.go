package parser

import (
	"encoding/binary"
	"fmt"
	"math"

	"RoboFlock/internal/model"
)

// WeightPayloadLen is the number of values in a coordinator payload.
const WeightPayloadLen = 4

// EncodeWeightPayload packs the payload as little-endian float64 values,
// the layout the coordinator radio sends.
func EncodeWeightPayload(p model.WeightPayload) []byte {
	b := make([]byte, 8*len(p))
	for i, v := range p {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

// DecodeWeightPayload unpacks a little-endian float64 payload.
func DecodeWeightPayload(b []byte) (model.WeightPayload, error) {
	if len(b)%8 != 0 || len(b) < 8*WeightPayloadLen {
		return nil, fmt.Errorf("weight payload of %d bytes", len(b))
	}
	p := make(model.WeightPayload, len(b)/8)
	for i := range p {
		p[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return p, nil
}
