package flock

import (
	"fmt"

	"RoboFlock/internal/parser"
)

// Identity fixes who a robot is inside the flock. RobotID indexes every
// per-member table; UniqueID comes from the device name and may exceed the flock size.
type Identity struct {
	Name     string
	UniqueID int
	RobotID  int
}

// ParseIdentity resolves a device name such as "epuck7" into an Identity.
func ParseIdentity(name string, flockSize int) (Identity, error) {
	if flockSize < 1 {
		return Identity{}, fmt.Errorf("flock size %d", flockSize)
	}
	_, uid, err := parser.ParseRobotName(name)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Name: name, UniqueID: uid, RobotID: uid % flockSize}, nil
}
