package archivist

import (
	"context"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Handler archives one claimed task.
//
// A nil error marks the task done; the engine then inserts Outcome.Item, if
// set, before updating the task. A non-nil error marks the task failed and
// nothing is inserted.
type Handler interface {
	Handle(ctx context.Context, task *tracker.Task) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *tracker.Task) (Outcome, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task *tracker.Task) (Outcome, error) {
	return f(ctx, task)
}

// Outcome is what a handler produced for a task.
type Outcome struct {
	Item *Item // nil means nothing to insert
}

// Item is inserted into the project's item collection.
type Item struct {
	ID      tracker.ID // zero value means the task's own id
	Status  tracker.ItemStatus
	Payload any
}

// EchoHandler stores every task document as its own item payload.
// It is the handler behind `archivist run` and is handy for smoke tests.
func EchoHandler() Handler {
	return HandlerFunc(func(ctx context.Context, task *tracker.Task) (Outcome, error) {
		return Outcome{Item: &Item{Payload: task.Raw()}}, nil
	})
}
