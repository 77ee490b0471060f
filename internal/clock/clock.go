// Package clock provides the injectable wall clock used by every service.
//
// Services never call time.Now directly: TTL expiry, time-window filters,
// and due-reminder checks all read through a Clock so tests can advance a
// simulated clock deterministically.
package clock

import "time"

// Clock yields the current UTC time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the real wall clock, truncated to UTC.
func System() Clock { return systemClock{} }

// Func adapts a function to the Clock interface.
type Func func() time.Time

// Now implements Clock.
func (f Func) Now() time.Time { return f() }
