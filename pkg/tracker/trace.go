package tracker

import (
	"log"
	"time"
)

// Event describes one request to a tracker endpoint.
type Event struct {
	Op         string // fetch_project, list_projects, claim_task, update_task, insert_item, ping
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Tracer receives structured events from a Tracker. Implementations must be
// cheap; they are called inline on the request path.
type Tracer interface {
	RequestStart(ev Event)
	RequestEnd(ev Event)
	RequestError(ev Event)
	// ClaimPacing is called before a paced claim. wait > 0 means the client
	// is about to sleep for wait; wait < 0 means the claim is late by -wait.
	ClaimPacing(wait, delay time.Duration)
	EndpointSelected(r Ranking)
}

// NopTracer discards every event.
type NopTracer struct{}

func (NopTracer) RequestStart(Event) {}
func (NopTracer) RequestEnd(Event) {}
func (NopTracer) RequestError(Event) {}
func (NopTracer) ClaimPacing(wait, delay time.Duration) {}
func (NopTracer) EndpointSelected(Ranking) {}

// LogTracer writes events through a *log.Logger (log.Default() when nil).
type LogTracer struct {
	Logger *log.Logger
}

func (l LogTracer) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.Default()
}

func (l LogTracer) RequestStart(ev Event) {
	l.logger().Printf("[DEBUG] [client->tracker] %s %s %s", ev.Op, ev.Method, ev.URL)
}

func (l LogTracer) RequestEnd(ev Event) {
	l.logger().Printf("[DEBUG] [client<-tracker] %s status=%d time=%s", ev.Op, ev.StatusCode, ev.Duration.Round(time.Millisecond))
}

func (l LogTracer) RequestError(ev Event) {
	l.logger().Printf("[ERROR] [client<-tracker] %s failed after %s: %v", ev.Op, ev.Duration.Round(time.Millisecond), ev.Err)
}

func (l LogTracer) ClaimPacing(wait, delay time.Duration) {
	if wait > 0 {
		l.logger().Printf("[INFO] [tracker] slow down %.2fs, qos: %.2fs", wait.Seconds(), delay.Seconds())
		return
	}
	l.logger().Printf("[DEBUG] [tracker] %.2fs late, qos: %.2fs", (-wait).Seconds(), delay.Seconds())
}

func (l LogTracer) EndpointSelected(r Ranking) {
	for _, m := range r {
		if m.Healthy() {
			l.logger().Printf("[DEBUG] [client->tracker(%s)] ping ok %s", m.URL, m.Latency.Round(time.Millisecond))
		} else {
			l.logger().Printf("[DEBUG] [client->tracker(%s)] ping failed: %v", m.URL, m.Err)
		}
	}
	if best, ok := r.Best(); ok {
		l.logger().Printf("[INFO] tracker selected: %s", best.URL)
	}
}
