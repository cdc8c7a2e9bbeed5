// Package device implements the line-oriented serial links of a robot and the
// adapters that expose them to the flocking controller.
package device

import (
	"errors"
	"time"
)

// Errors shared by the line devices.
var (
	ErrReadTimeout = errors.New("read timeout")
	ErrNotOpen     = errors.New("device not open")
	ErrNoData      = errors.New("no data received yet")
)

// Device defines an abstract interface for line-based communication devices
// (base board serial, radio board serial).
type Device interface {
	// ReadLine reads a single line terminated by '\n' without the terminator.
	// If timeout > 0, it returns ErrReadTimeout after timeout when no line is available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}
