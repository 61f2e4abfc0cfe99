package eventlog

import (
	"sync"
	"time"
)

// Cooldown admits at most one event per window. The first event always
// passes.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	primed bool
}

// NewCooldown returns a gate with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window}
}

// Allow reports whether an event at ts passes the gate and, if so, records ts
// as the last admitted time.
func (c *Cooldown) Allow(ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.primed && ts.Sub(c.last) <= c.window {
		return false
	}
	c.last = ts
	c.primed = true
	return true
}

// Last returns the last admitted time.
func (c *Cooldown) Last() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.primed
}
