// Package fluksotest provides a deterministic flukso.Scheduler for tests.
package fluksotest

import (
	"sync"
	"time"

	"github.com/nlowe/flukso-hass/flukso"
)

// ManualScheduler only runs callbacks when Advance moves its clock past their deadline. Callbacks run on the goroutine
// calling Advance.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

var _ flukso.Scheduler = &ManualScheduler{}

type manualTimer struct {
	s *ManualScheduler

	at  time.Duration
	seq int
	f   func()

	pending bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	wasPending := t.pending
	t.pending = false
	return wasPending
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) flukso.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{s: m, at: m.now + d, seq: m.seq, f: f, pending: true}
	m.timers = append(m.timers, t)

	return t
}

// Advance moves the clock forward by d, running every timer that becomes due in deadline order. Timers scheduled by a
// callback run in the same call if they fall due before the new time.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}

		next.pending = false
		m.now = next.at
		m.mu.Unlock()

		next.f()
	}
}

func (m *ManualScheduler) nextDue(target time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if !t.pending || t.at > target {
			continue
		}

		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}

	return next
}

// Pending returns how many timers have neither fired nor been stopped.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if t.pending {
			n++
		}
	}

	return n
}
