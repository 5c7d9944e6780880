// Package clock implements a small Lamport-style logical clock used to order
// answer submissions and break score ties deterministically regardless of
// wall-clock skew between clients.
package clock

import "sync"

// Clock is safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	current uint64
}

// New returns a Clock starting at zero.
func New() *Clock {
	return &Clock{}
}

// Tick advances the clock by one and returns the new value, for events the
// server itself originates (e.g. room creation).
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Observe merges an externally reported timestamp into the clock: the clock
// advances past whichever is larger, then ticks once, and returns the result.
// This is the standard Lamport receive rule.
func (c *Clock) Observe(remote uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.current {
		c.current = remote
	}
	c.current++
	return c.current
}

// Current returns the clock's present value without advancing it.
func (c *Clock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
