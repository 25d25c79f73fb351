// Package journal keeps a Redis record of the tasks an archivist has claimed
// but not yet reported back, so a crashed archivist can hand them back to the
// tracker on restart instead of leaving them stuck in PROCESSING.
package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Outcomes counted in the stats hash.
const (
	OutcomeDone     = "done"
	OutcomeFailed   = "failed"
	OutcomeRequeued = "requeued"
)

// Journal is scoped to one project and one archivist. It is safe for
// concurrent use.
type Journal struct {
	rdb       *redis.Client
	project   string
	archivist string
	now       func() time.Time
}

// New creates a journal for project and archivist. Both must be non-empty.
func New(redisOpts *redis.Options, project, archivist string) (*Journal, error) {
	if project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}
	if archivist == "" {
		return nil, fmt.Errorf("archivist cannot be empty")
	}

	return &Journal{
		rdb:       redis.NewClient(redisOpts),
		project:   project,
		archivist: archivist,
		now:       time.Now,
	}, nil
}

// Open parses a redis:// URL and creates a journal.
func Open(redisURL, project, archivist string) (*Journal, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(opts, project, archivist)
}

// Close closes the Redis connection.
func (j *Journal) Close() error {
	return j.rdb.Close()
}

// Ping verifies Redis connectivity.
func (j *Journal) Ping(ctx context.Context) error {
	return j.rdb.Ping(ctx).Err()
}

// Record stores a freshly claimed task. Recording the same id twice
// overwrites the entry and its claim time.
func (j *Journal) Record(ctx context.Context, id tracker.ID, task *tracker.Task) error {
	entry := &Entry{ID: id, ClaimedAt: j.now(), Task: task}
	hash, err := EntryToHash(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}

	idKey := IDKey(id)
	pipe := j.rdb.TxPipeline()
	pipe.HSet(ctx, TaskKey(j.project, j.archivist, idKey), hash)
	pipe.ZAdd(ctx, InflightKey(j.project, j.archivist), redis.Z{
		Score:  float64(entry.ClaimedAt.UnixMilli()),
		Member: idKey,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record task in Redis: %w", err)
	}
	return nil
}

// Complete removes the entry for id and counts outcome. Completing an id
// that is not recorded still counts the outcome.
func (j *Journal) Complete(ctx context.Context, id tracker.ID, outcome string) error {
	if outcome == "" {
		return fmt.Errorf("outcome cannot be empty")
	}

	idKey := IDKey(id)
	pipe := j.rdb.TxPipeline()
	pipe.Del(ctx, TaskKey(j.project, j.archivist, idKey))
	pipe.ZRem(ctx, InflightKey(j.project, j.archivist), idKey)
	pipe.HIncrBy(ctx, StatsKey(j.project, j.archivist), outcome, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete task in Redis: %w", err)
	}
	return nil
}

// Pending returns the in-flight entries, oldest claim first. Index members
// whose entry hash has disappeared are skipped.
func (j *Journal) Pending(ctx context.Context) ([]*Entry, error) {
	idKeys, err := j.rdb.ZRange(ctx, InflightKey(j.project, j.archivist), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read in-flight index: %w", err)
	}

	entries := make([]*Entry, 0, len(idKeys))
	for _, idKey := range idKeys {
		hash, err := j.rdb.HGetAll(ctx, TaskKey(j.project, j.archivist, idKey)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", idKey, err)
		}
		if len(hash) == 0 {
			continue
		}
		entry, err := HashToEntry(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize entry %s: %w", idKey, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Stats returns the outcome counters.
func (j *Journal) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := j.rdb.HGetAll(ctx, StatsKey(j.project, j.archivist)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for outcome, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter %s: %w", outcome, err)
		}
		stats[outcome] = n
	}
	return stats, nil
}
