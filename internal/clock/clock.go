package clock

import "time"

// Clock supplies the current time. Services and reconciliation jobs take a
// Clock instead of calling time.Now directly so that time-driven behavior
// (overdue detection, session cleanup) is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// New returns a Clock backed by the system wall clock.
func New() Clock { return realClock{} }

// Fixed is a Clock pinned to a single instant. Tests move it by assigning T.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }
