package tracker

import "time"

// ProjectTTL is how long a fetched project is served before it is refetched.
const ProjectTTL = 60 * time.Second

// projectCache holds the only mutable copy of the project. Callers get clones.
// It is guarded by the owning Tracker's mutex.
type projectCache struct {
	ttl       time.Duration
	value     Project
	fetchedAt time.Time
	loaded    bool
}

func (c *projectCache) fresh(now time.Time) bool {
	return c.loaded && now.Sub(c.fetchedAt) <= c.ttl
}

func (c *projectCache) store(p Project, at time.Time) {
	c.value = p.Clone()
	c.fetchedAt = at
	c.loaded = true
}

func (c *projectCache) snapshot() Project {
	return c.value.Clone()
}
