package flukso

import "time"

// Timer is a pending callback. Stop reports whether it prevented the callback from running; stopping a timer that
// already fired or was already stopped is a no-op.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay. Callbacks run on their own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules callbacks with time.AfterFunc.
var SystemScheduler Scheduler = systemScheduler{}
