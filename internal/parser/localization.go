package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"RoboFlock/internal/model"
)

// ParseLocalization parses a localizer record: INDEX#X#Z#THETA.
func ParseLocalization(line string) (model.PoseReport, error) {
	fields := strings.Split(strings.TrimSpace(line), "#")
	if len(fields) != 4 {
		return model.PoseReport{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	robot, err := strconv.Atoi(fields[0])
	if err != nil {
		return model.PoseReport{}, errors.New("invalid robot index")
	}
	var vals [3]float64
	for i, name := range []string{"x", "z", "theta"} {
		vals[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil || math.IsNaN(vals[i]) || math.IsInf(vals[i], 0) {
			return model.PoseReport{}, fmt.Errorf("invalid %s", name)
		}
	}
	return model.PoseReport{Robot: robot, X: vals[0], Z: vals[1], Heading: vals[2]}, nil
}

// FormatLocalization is the inverse of ParseLocalization.
func FormatLocalization(r model.PoseReport) string {
	return fmt.Sprintf("%d#%f#%f#%f", r.Robot, r.X, r.Z, r.Heading)
}
