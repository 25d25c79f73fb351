// Package archivist runs the claim → archive → report loop against a tracker.
package archivist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/saveweb/solar-tracker/internal/journal"
	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Client is the part of *tracker.Tracker the engine drives.
type Client interface {
	Project(ctx context.Context) (tracker.Project, error)
	ClaimTask(ctx context.Context, opts ...tracker.ClaimOption) (*tracker.Task, error)
	UpdateTask(ctx context.Context, id tracker.ID, status string) (tracker.Result, error)
	InsertItem(ctx context.Context, id tracker.ID, status tracker.ItemStatus, payload any) (tracker.Result, error)
}

// Journal records claimed tasks until they are reported back.
// *journal.Journal implements it.
type Journal interface {
	Record(ctx context.Context, id tracker.ID, task *tracker.Task) error
	Complete(ctx context.Context, id tracker.ID, outcome string) error
	Pending(ctx context.Context) ([]*journal.Entry, error)
}

// Options control the claim loop. Zero values are replaced by the defaults
// below.
type Options struct {
	IdleInterval  time.Duration // wait after "no task" or a failed claim
	DoneStatus    string
	FailStatus    string
	RequeueStatus string
	MaxTasks      int  // stop after this many claimed tasks, 0 = unlimited
	ExitWhenIdle  bool // return instead of waiting when the queue is empty
	Journal       Journal
}

// Defaults for Options.
const (
	DefaultIdleInterval  = 30 * time.Second
	DefaultDoneStatus    = "DONE"
	DefaultFailStatus    = "FAIL"
	DefaultRequeueStatus = "TODO"
)

// reportTimeout bounds the final update of a task after shutdown was requested.
const reportTimeout = 30 * time.Second

// Stats counts what the engine has done since it was created.
type Stats struct {
	Claimed  int64 `json:"claimed"`
	Done     int64 `json:"done"`
	Failed   int64 `json:"failed"`
	Requeued int64 `json:"requeued"`
	Idle     int64 `json:"idle"`
}

// Engine claims tasks one at a time and hands them to a Handler.
type Engine struct {
	client  Client
	handler Handler
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error

	claimed, done, failed, requeued, idle atomic.Int64
}

// New creates an engine. It does not contact the tracker until Run or Recover.
func New(client Client, handler Handler, opts Options) *Engine {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = DefaultIdleInterval
	}
	if opts.DoneStatus == "" {
		opts.DoneStatus = DefaultDoneStatus
	}
	if opts.FailStatus == "" {
		opts.FailStatus = DefaultFailStatus
	}
	if opts.RequeueStatus == "" {
		opts.RequeueStatus = DefaultRequeueStatus
	}
	return &Engine{
		client:  client,
		handler: handler,
		opts:    opts,
		sleep:   sleepContext,
	}
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Claimed:  e.claimed.Load(),
		Done:     e.done.Load(),
		Failed:   e.failed.Load(),
		Requeued: e.requeued.Load(),
		Idle:     e.idle.Load(),
	}
}

// Run claims and processes tasks until ctx is cancelled, MaxTasks tasks have
// been processed, or (with ExitWhenIdle) the queue is empty.
//
// Claim failures are logged and retried after IdleInterval. Validation and
// version-mismatch errors cannot succeed on retry and end the loop.
// Cancellation is a clean shutdown and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[INFO] Archivist engine starting (idle_interval=%s, max_tasks=%d)", e.opts.IdleInterval, e.opts.MaxTasks)
	defer func() {
		s := e.Stats()
		log.Printf("[INFO] Archivist engine stopped: claimed=%d done=%d failed=%d requeued=%d", s.Claimed, s.Done, s.Failed, s.Requeued)
	}()

	processed := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if e.opts.MaxTasks > 0 && processed >= e.opts.MaxTasks {
			log.Printf("[INFO] Reached max_tasks=%d", e.opts.MaxTasks)
			return nil
		}

		task, err := e.client.ClaimTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if fatalClaimError(err) {
				return fmt.Errorf("claim task: %w", err)
			}
			log.Printf("[WARN] Claim failed, retrying in %s: %v", e.opts.IdleInterval, err)
			if e.sleep(ctx, e.opts.IdleInterval) != nil {
				return nil
			}
			continue
		}

		if task == nil {
			e.idle.Add(1)
			if e.opts.ExitWhenIdle {
				log.Printf("[INFO] No task available, exiting")
				return nil
			}
			log.Printf("[DEBUG] No task available, sleeping %s", e.opts.IdleInterval)
			if e.sleep(ctx, e.opts.IdleInterval) != nil {
				return nil
			}
			continue
		}

		e.claimed.Add(1)
		processed++
		if err := e.process(ctx, task); err != nil {
			log.Printf("[ERROR] %v", err)
		}
	}
}

// process runs the handler on one task and reports the result. Once a task is
// claimed it is always reported, even if ctx is cancelled mid-way, so it does
// not stay PROCESSING on the tracker.
func (e *Engine) process(ctx context.Context, task *tracker.Task) error {
	project, err := e.client.Project(ctx)
	if err != nil {
		e.failed.Add(1)
		return fmt.Errorf("task claimed but project unavailable, cannot read its id: %w", err)
	}
	id, err := task.ID(project.Mongodb.DocIDName())
	if err != nil {
		e.failed.Add(1)
		return fmt.Errorf("task claimed without a usable %q field: %w", project.Mongodb.DocIDName(), err)
	}

	report, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if e.opts.Journal != nil {
		if err := e.opts.Journal.Record(report, id, task); err != nil {
			log.Printf("[WARN] Failed to journal task %s: %v", id, err)
		}
	}

	log.Printf("[INFO] Processing task %s", id)
	outcome, herr := e.handler.Handle(ctx, task)

	status, result := e.opts.DoneStatus, journal.OutcomeDone
	switch {
	case herr != nil && ctx.Err() != nil:
		log.Printf("[WARN] Task %s interrupted by shutdown, handing it back: %v", id, herr)
		status, result = e.opts.RequeueStatus, journal.OutcomeRequeued
	case herr != nil:
		log.Printf("[WARN] Handler failed on task %s: %v", id, herr)
		status, result = e.opts.FailStatus, journal.OutcomeFailed
	case outcome.Item != nil:
		itemID := outcome.Item.ID
		if !itemID.Valid() {
			itemID = id
		}
		if _, err := e.client.InsertItem(report, itemID, outcome.Item.Status, outcome.Item.Payload); err != nil {
			log.Printf("[WARN] Failed to insert item %s for task %s: %v", itemID, id, err)
			status, result = e.opts.FailStatus, journal.OutcomeFailed
		}
	}

	if _, err := e.client.UpdateTask(report, id, status); err != nil {
		// The journal entry stays so Recover can hand the task back later.
		e.failed.Add(1)
		return fmt.Errorf("failed to update task %s to %s: %w", id, status, err)
	}
	log.Printf("[INFO] Task %s -> %s", id, status)

	switch result {
	case journal.OutcomeDone:
		e.done.Add(1)
	case journal.OutcomeFailed:
		e.failed.Add(1)
	case journal.OutcomeRequeued:
		e.requeued.Add(1)
	}

	if e.opts.Journal != nil {
		if err := e.opts.Journal.Complete(report, id, result); err != nil {
			log.Printf("[WARN] Failed to complete journal entry %s: %v", id, err)
		}
	}
	return nil
}

// Recover hands every journaled task back to the tracker with RequeueStatus.
// Entries the tracker no longer knows (404) are dropped. It returns how many
// entries were cleared.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.opts.Journal == nil {
		return 0, nil
	}

	entries, err := e.opts.Journal.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read journal: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	log.Printf("[INFO] Recovering %d in-flight task(s) from the journal", len(entries))

	recovered := 0
	for _, entry := range entries {
		_, err := e.client.UpdateTask(ctx, entry.ID, e.opts.RequeueStatus)
		switch {
		case err == nil:
			log.Printf("[INFO] Task %s -> %s (recovered)", entry.ID, e.opts.RequeueStatus)
		case tracker.IsRemoteStatus(err, http.StatusNotFound):
			log.Printf("[WARN] Task %s no longer exists on the tracker, dropping it", entry.ID)
		default:
			return recovered, fmt.Errorf("failed to requeue task %s: %w", entry.ID, err)
		}
		if err := e.opts.Journal.Complete(ctx, entry.ID, journal.OutcomeRequeued); err != nil {
			return recovered, err
		}
		e.requeued.Add(1)
		recovered++
	}
	return recovered, nil
}

func fatalClaimError(err error) bool {
	var (
		verr     *tracker.ValidationError
		mismatch *tracker.ConfigMismatchError
	)
	return errors.As(err, &verr) || errors.As(err, &mismatch)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
