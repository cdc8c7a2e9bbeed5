package flock

import (
	"errors"
	"fmt"
	"math"
)

// Rejections for a single ping; the drain continues with the next one.
var (
	ErrUnknownRobot = errors.New("robot id outside flock")
	ErrSelfPing     = errors.New("ping from self")
	ErrWeakSignal   = errors.New("signal strength too weak")
	ErrBadDirection = errors.New("non-finite ping direction")
)

// MinSignalStrength bounds the range estimate sqrt(1/strength) to 1000 m.
const MinSignalStrength = 1e-6

// velocityMemory weights the previous velocity estimate. Zero means every
// ping fully replaces the estimate.
const velocityMemory = 0.0

// NeighborState is the relative pose/velocity estimate of one flockmate.
type NeighborState struct {
	RelX, RelY   float64
	RelVX, RelVY float64
	PrevX, PrevY float64
	Seen         bool
	LastTick     uint64
}

// Neighbor pairs a flockmate's robot id with its state.
type Neighbor struct {
	ID int
	NeighborState
}

// Tracker holds one NeighborState per flockmate, excluding self.
type Tracker struct {
	self    int
	size    int
	dt      float64
	members []Neighbor
}

// NewTracker builds the table for a flock of size robots seen from robot self.
// dt is the tick duration in seconds used for finite differences.
func NewTracker(self, size int, dt float64) *Tracker {
	t := &Tracker{self: self, size: size, dt: dt}
	for id := 0; id < size; id++ {
		if id == self {
			continue
		}
		t.members = append(t.members, Neighbor{ID: id})
	}
	return t
}

func (t *Tracker) slot(id int) (int, error) {
	switch {
	case id < 0 || id >= t.size:
		return 0, fmt.Errorf("%w: %d", ErrUnknownRobot, id)
	case id == t.self:
		return 0, ErrSelfPing
	case id < t.self:
		return id, nil
	default:
		return id - 1, nil
	}
}

// Ingest updates sender's estimate from one ping. dir is the emitter direction
// in this robot's body frame, strength the inverse-square signal strength and
// heading this robot's current heading.
func (t *Tracker) Ingest(sender int, dir [3]float64, strength, heading float64, tick uint64) error {
	i, err := t.slot(sender)
	if err != nil {
		return err
	}
	if !finite(dir[0]) || !finite(dir[2]) || !finite(heading) {
		return ErrBadDirection
	}
	if !finite(strength) || strength < MinSignalStrength {
		return fmt.Errorf("%w: %g", ErrWeakSignal, strength)
	}

	theta := -math.Atan2(dir[2], dir[0]) + heading
	rng := math.Sqrt(1 / strength)

	n := &t.members[i]
	n.PrevX, n.PrevY = n.RelX, n.RelY
	n.RelX = rng * math.Cos(theta)
	n.RelY = -rng * math.Sin(theta)
	n.RelVX = n.RelVX*velocityMemory + (1-velocityMemory)*(n.RelX-n.PrevX)/t.dt
	n.RelVY = n.RelVY*velocityMemory + (1-velocityMemory)*(n.RelY-n.PrevY)/t.dt
	n.Seen = true
	n.LastTick = tick
	return nil
}

// Neighbor returns the state tracked for id.
func (t *Tracker) Neighbor(id int) (NeighborState, bool) {
	i, err := t.slot(id)
	if err != nil {
		return NeighborState{}, false
	}
	return t.members[i].NeighborState, true
}

// Neighbors returns a copy of every flockmate's state ordered by id.
func (t *Tracker) Neighbors() []Neighbor {
	out := make([]Neighbor, len(t.members))
	copy(out, t.members)
	return out
}

// Reset zeroes every estimate.
func (t *Tracker) Reset() {
	for i := range t.members {
		t.members[i].NeighborState = NeighborState{}
	}
}
