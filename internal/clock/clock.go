// Package clock supplies the current time to components that reason about
// expiry, so tests can substitute a controllable source.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns the wall-clock backed Clock used in production.
func System() Clock {
	return systemClock{}
}
