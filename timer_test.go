// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package courier_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mellium.im/courier"
)

// manualTimers is a TimerFactory whose timers only fire when told to.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	parent  *manualTimers
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) courier.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{parent: m, d: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// active returns the timers that have neither fired nor been stopped.
func (m *manualTimers) active() []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			active = append(active, t)
		}
	}
	return active
}

// fire runs every active timer and returns how many ran.
func (m *manualTimers) fire() int {
	active := m.active()
	m.mu.Lock()
	for _, t := range active {
		t.fired = true
	}
	m.mu.Unlock()
	for _, t := range active {
		t.f()
	}
	return len(active)
}

func TestSystemTimersStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := courier.SystemTimers.AfterFunc(time.Hour, func() { fired <- struct{}{} })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	courier.SystemTimers.AfterFunc(time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
}
