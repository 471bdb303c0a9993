// Package clock provides jobs.Clock implementations.
package clock

import "time"

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant; snapshot names derived from it are
// therefore stable in tests and replays.
type Fixed struct {
	At time.Time
}

// Now returns f.At in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}
