package journal

import (
	"fmt"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Redis key layout
//
// Every key is namespaced by project and archivist so several archivists can
// share one Redis server.
//
//	solar:{project}:{archivist}:inflight        ZSET  member=id key, score=claimed_at_ms
//	solar:{project}:{archivist}:task:{id key}   HASH  one in-flight entry
//	solar:{project}:{archivist}:stats           HASH  outcome -> count

// InflightKey returns the key of the in-flight index.
func InflightKey(project, archivist string) string {
	return fmt.Sprintf("solar:%s:%s:inflight", project, archivist)
}

// TaskKey returns the key holding one in-flight entry.
func TaskKey(project, archivist, idKey string) string {
	return fmt.Sprintf("solar:%s:%s:task:%s", project, archivist, idKey)
}

// StatsKey returns the key of the outcome counters.
func StatsKey(project, archivist string) string {
	return fmt.Sprintf("solar:%s:%s:stats", project, archivist)
}

// IDKey encodes id with its type tag so int 1 and string "1" never collide.
func IDKey(id tracker.ID) string {
	return id.Tag() + ":" + id.String()
}
