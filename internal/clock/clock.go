// Package clock provides imagesearch.Clock implementations.
package clock

import "time"

// System reads the wall clock in UTC.
type System struct{}

// New creates a System clock.
func New() System {
	return System{}
}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns T. Tests use it to pin timestamps.
type Fixed struct {
	T time.Time
}

// Now returns the pinned time.
func (f Fixed) Now() time.Time {
	return f.T
}
