package controller

import (
	"sync"
	"time"
)

// Clock is the time source of a controller. Values returned by Now must
// carry a monotonic reading so that Sub is immune to wall-clock changes.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the process monotonic clock.
func SystemClock() Clock {
	return systemClock{}
}

// ManualClock only moves when told to. Used by offline simulation and tests.
type ManualClock struct {
	now   time.Time
	mutex sync.Mutex
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

func (m *ManualClock) Advance(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = m.now.Add(d)
}
