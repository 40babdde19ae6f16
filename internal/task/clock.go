package task

import "time"

// Clock abstracts the wall-clock time source used for timestamps,
// timeout checks, and retention windows, so tests can control time.
type Clock interface {
	// Now returns the current time
	Now() time.Time
}

// systemClock is the default Clock backed by time.Now
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
