package spacetime

import "time"

// Clock abstracts the system clock for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host's wall clock.
type SystemClock struct{}

// Now returns the current time using the system clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}
