package tracker

import (
	"context"
	"time"
)

// claimPacer remembers when the last real claim was sent.
// It is guarded by the owning Tracker's mutex.
type claimPacer struct {
	last time.Time
}

// remaining returns delay minus the time since the last claim. A positive
// value is how long to wait; a negative one is how late the caller already is.
// Before the first claim there is nothing to wait for.
func (p *claimPacer) remaining(delay time.Duration, now time.Time) time.Duration {
	if p.last.IsZero() {
		return 0
	}
	return delay - now.Sub(p.last)
}

func (p *claimPacer) mark(now time.Time) {
	p.last = now
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
