package journal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Entry is a task claimed by this archivist and not yet reported back.
type Entry struct {
	ID        tracker.ID
	ClaimedAt time.Time
	Task      *tracker.Task
}

// EntryToHash converts an entry to Redis hash fields.
func EntryToHash(e *Entry) (map[string]interface{}, error) {
	if !e.ID.Valid() {
		return nil, fmt.Errorf("entry id is not set")
	}
	if e.Task == nil {
		return nil, fmt.Errorf("entry task is nil")
	}
	taskJSON, err := json.Marshal(e.Task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	return map[string]interface{}{
		"id":            e.ID.String(),
		"id_type":       e.ID.Tag(),
		"claimed_at_ms": e.ClaimedAt.UnixMilli(),
		"task":          string(taskJSON),
	}, nil
}

// HashToEntry converts Redis hash fields back to an entry.
func HashToEntry(hash map[string]string) (*Entry, error) {
	id, err := tracker.ParseID(hash["id"], hash["id_type"])
	if err != nil {
		return nil, fmt.Errorf("invalid id field: %w", err)
	}

	claimedAtMs, err := strconv.ParseInt(hash["claimed_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid claimed_at_ms field: %w", err)
	}

	task, err := tracker.NewTask([]byte(hash["task"]))
	if err != nil {
		return nil, fmt.Errorf("invalid task field: %w", err)
	}

	return &Entry{
		ID:        id,
		ClaimedAt: time.UnixMilli(claimedAtMs),
		Task:      task,
	}, nil
}
