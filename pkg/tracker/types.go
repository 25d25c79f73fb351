package tracker

import (
	"fmt"
	"time"
)

// DefaultDocIDName is the task/item id field used when a project does not
// declare a custom one.
const DefaultDocIDName = "id"

// ProjectMeta describes a project for humans.
type ProjectMeta struct {
	Identifier string `json:"identifier"`
	Slug       string `json:"slug"`     // one-line description
	Icon       string `json:"icon"`     // icon URL
	Deadline   string `json:"deadline"` // free-form timestamp
}

// ProjectStatus controls visibility and whether new claims are accepted.
// A paused project still accepts update_task and insert_item.
type ProjectStatus struct {
	Public bool `json:"public"`
	Paused bool `json:"paused"`
}

// ProjectClient carries client compatibility and pacing info.
type ProjectClient struct {
	Version        string  `json:"version"`
	ClaimTaskDelay float64 `json:"claim_task_delay"` // seconds between claims, soft limit
}

// Delay returns ClaimTaskDelay as a duration. Negative values count as zero.
func (c ProjectClient) Delay() time.Duration {
	if c.ClaimTaskDelay <= 0 {
		return 0
	}
	return time.Duration(c.ClaimTaskDelay * float64(time.Second))
}

// ProjectMongodb routes tasks and items inside the tracker's document store.
type ProjectMongodb struct {
	DBName          string `json:"db_name"`
	ItemCollection  string `json:"item_collection"`
	QueueCollection string `json:"queue_collection"`
	CustomDocIDName string `json:"custom_doc_id_name"`
}

// DocIDName returns the field holding a task's primary id.
func (m ProjectMongodb) DocIDName() string {
	if m.CustomDocIDName != "" {
		return m.CustomDocIDName
	}
	return DefaultDocIDName
}

// Project is a snapshot of a project's configuration as served by the tracker.
// Projects are values: the tracker client hands out clones and never shares
// its cached baseline.
type Project struct {
	Meta    ProjectMeta    `json:"meta"`
	Status  ProjectStatus  `json:"status"`
	Client  ProjectClient  `json:"client"`
	Mongodb ProjectMongodb `json:"mongodb"`
}

// Clone returns an independent copy of p.
func (p Project) Clone() Project {
	// Every field is a value today; keep the copy explicit so a future
	// slice or map field cannot leak the cached baseline.
	return Project{
		Meta:    p.Meta,
		Status:  p.Status,
		Client:  p.Client,
		Mongodb: p.Mongodb,
	}
}

// Validate checks the fields the client relies on.
func (p *Project) Validate() error {
	if err := ValidateIdentifier("meta.identifier", p.Meta.Identifier); err != nil {
		return err
	}
	if p.Client.ClaimTaskDelay < 0 {
		return fmt.Errorf("invalid client.claim_task_delay: must be >= 0, got %v", p.Client.ClaimTaskDelay)
	}
	return nil
}

// Result is the decoded JSON body of a successful update_task or insert_item.
type Result map[string]any

// Msg returns the tracker's human-readable message, if any.
func (r Result) Msg() string {
	s, _ := r["msg"].(string)
	return s
}
