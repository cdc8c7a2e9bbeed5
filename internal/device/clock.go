package device

import (
	"context"
	"time"
)

// TickClock paces the control loop on a wall clock ticker. A tick that
// overruns its period is not made up; the next Step returns on the following
// boundary.
type TickClock struct {
	t *time.Ticker
}

// NewTickClock starts a ticker with period d.
func NewTickClock(d time.Duration) *TickClock {
	return &TickClock{t: time.NewTicker(d)}
}

// Step blocks until the next tick or ctx is done.
func (c *TickClock) Step(ctx context.Context) error {
	select {
	case <-c.t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the ticker.
func (c *TickClock) Stop() { c.t.Stop() }
