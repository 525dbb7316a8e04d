// Package clock abstracts wall-clock time so that polling stages, stability
// checks and OCR timeouts can be driven by a virtual clock in tests.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of clockwork.Clock the pipeline depends on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return clockwork.NewRealClock()
}

// Fake is a manually advanced clock. Channels returned by After fire when
// Advance moves the clock past their deadline.
type Fake = clockwork.FakeClock

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return clockwork.NewFakeClockAt(t)
}
