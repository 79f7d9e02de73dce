// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier

import (
	"time"
)

// Timer is a pending delayed call.
// It is satisfied by *time.Timer.
type Timer interface {
	// Stop prevents the call from happening.
	// It returns false if the call already happened or the timer was stopped.
	Stop() bool
}

// TimerFactory schedules delayed calls.
// Calls happen on a goroutine of the factory's choosing.
type TimerFactory interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemTimers is a TimerFactory backed by time.AfterFunc.
var SystemTimers TimerFactory = systemTimers{}

type systemTimers struct{}

func (systemTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
