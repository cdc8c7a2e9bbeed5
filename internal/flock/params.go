package flock

import (
	"errors"
	"fmt"

	"RoboFlock/internal/model"
)

// ErrInvalidPayload is returned for coordinator payloads that cannot be applied.
var ErrInvalidPayload = errors.New("invalid weight payload")

// maxIterations bounds a single run to about 2 years of 64 ms ticks.
const maxIterations = 1 << 30

// DecodeWeights applies a raw coordinator payload on top of current.
// Cohesion and separation arrive scaled by 10; the threshold and iteration
// budget are taken as is. Alignment and migration weights are kept.
func DecodeWeights(p model.WeightPayload, current RuleWeights) (RuleWeights, error) {
	if len(p) < 4 {
		return current, fmt.Errorf("%w: %d values", ErrInvalidPayload, len(p))
	}
	for i := 0; i < 4; i++ {
		if !finite(p[i]) {
			return current, fmt.Errorf("%w: value %d not finite", ErrInvalidPayload, i)
		}
	}
	if p[2] < 0 {
		return current, fmt.Errorf("%w: negative separation threshold", ErrInvalidPayload)
	}
	if p[3] < 0 || p[3] > maxIterations {
		return current, fmt.Errorf("%w: iteration budget %g", ErrInvalidPayload, p[3])
	}
	w := current
	w.Cohesion = p[0] / 10
	w.Separation = p[1] / 10
	w.SeparationThreshold = p[2]
	w.Iterations = int(p[3])
	return w, nil
}
