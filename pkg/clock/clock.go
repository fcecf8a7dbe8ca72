// Package clock abstracts timer scheduling so playback can run on wall-clock
// time in production and on a manually advanced timeline in tests.
package clock

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Scheduler schedules a callback after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Clock is a Scheduler that can also tell the time.
type Clock interface {
	Scheduler
	Now() time.Time
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
