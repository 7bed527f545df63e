// Package clock provides an injectable time source so deadline checks
// (OTP expiry, cancellation window) are testable.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Func adapts a function to the Clock interface.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }
