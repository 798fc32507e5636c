package scheduler

import "time"

// Timer is a pending single-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// TimerFactory creates timers. Tests substitute one that fires on demand.
type TimerFactory interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemTimers backs timers with time.AfterFunc.
type SystemTimers struct{}

func (SystemTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// TimerState is the lifecycle of a tenant's wake-up for the current day.
type TimerState int

const (
	Unscheduled TimerState = iota
	Scheduled
	Fired
)

func (s TimerState) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Fired:
		return "fired"
	default:
		return "unscheduled"
	}
}

// slot is the scheduler's record for one tenant. gen identifies the timer
// that may move it to Fired; any other callback is stale.
type slot struct {
	state  TimerState
	fireAt time.Time
	timer  Timer
	gen    uint64
}
