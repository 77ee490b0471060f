// Package testutil provides shared helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// ManualClock is a thread-safe simulated wall clock for tests.
//
// Unlike clock.System, ManualClock only moves when told to. This lets TTL
// expiry and due-reminder tests advance time deterministically instead of
// sleeping.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock frozen at the given instant.
func NewManualClock(at time.Time) *ManualClock {
	return &ManualClock{now: at.UTC()}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to the given instant.
func (c *ManualClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}
