package generic

import "time"

// Clock provides the wall-clock instant. Injected wherever "now" changes a
// result so tests can pin it.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the pinned time.
func (c FixedClock) Now() time.Time {
	return c.At
}
