package collab

import (
	"time"
)

// Clock abstracts timer scheduling so time-driven behavior, like the save
// debounce, can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(timeout time.Duration, f func()) ClockTimer
}

type ClockTimer interface {
	// Stop cancels the timer. It reports whether the timer had not yet fired.
	Stop() bool
}

func SystemClock() Clock {
	return &systemClock{}
}

type systemClock struct{}

func (self *systemClock) Now() time.Time {
	return time.Now()
}

func (self *systemClock) AfterFunc(timeout time.Duration, f func()) ClockTimer {
	return time.AfterFunc(timeout, f)
}
