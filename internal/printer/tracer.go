package printer

import (
	"time"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// ConsoleTracer prints tracker events to Stderr with colors.
// Request-level events are only shown when Verbose is set.
type ConsoleTracer struct {
	Verbose bool
}

var _ tracker.Tracer = ConsoleTracer{}

func (c ConsoleTracer) RequestStart(ev tracker.Event) {
	if c.Verbose {
		faint.Fprintf(Stderr, "  → %s %s %s\n", ev.Op, ev.Method, ev.URL)
	}
}

func (c ConsoleTracer) RequestEnd(ev tracker.Event) {
	if !c.Verbose {
		return
	}
	line := green
	if ev.StatusCode >= 400 {
		line = yellow
	}
	line.Fprintf(Stderr, "  ← %s %d (%s)\n", ev.Op, ev.StatusCode, ev.Duration.Round(time.Millisecond))
}

func (c ConsoleTracer) RequestError(ev tracker.Event) {
	red.Fprintf(Stderr, "  ✗ %s failed after %s: %v\n", ev.Op, ev.Duration.Round(time.Millisecond), ev.Err)
}

func (c ConsoleTracer) ClaimPacing(wait, delay time.Duration) {
	if wait > 0 {
		cyan.Fprintf(Stderr, "  … slowing down %.2fs (qos %.2fs)\n", wait.Seconds(), delay.Seconds())
		return
	}
	if c.Verbose {
		faint.Fprintf(Stderr, "  … %.2fs late (qos %.2fs)\n", (-wait).Seconds(), delay.Seconds())
	}
}

func (c ConsoleTracer) EndpointSelected(r tracker.Ranking) {
	if c.Verbose {
		for _, m := range r {
			if m.Healthy() {
				faint.Fprintf(Stderr, "  ping %s %s\n", m.URL, m.Latency.Round(time.Millisecond))
			} else {
				yellow.Fprintf(Stderr, "  ping %s failed: %v\n", m.URL, m.Err)
			}
		}
	}
	if best, ok := r.Best(); ok {
		cyan.Fprintf(Stderr, "→ Using tracker %s\n", best.URL)
	}
}
