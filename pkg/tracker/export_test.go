package tracker

import (
	"context"
	"time"
)

// WithClock replaces the time source and the pacing sleep.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(t *Tracker) {
		t.now = now
		t.sleep = sleep
	}
}

// SetClock replaces the selector's time source.
func (s *Selector) SetClock(now func() time.Time) {
	s.now = now
}
