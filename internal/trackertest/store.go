package trackertest

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Task statuses used by the tracker queue.
const (
	StatusTodo       = "TODO"
	StatusProcessing = "PROCESSING"
)

// Item is an item stored through insert_item.
type Item struct {
	ID         any    // int64 or string, per ItemIDType
	IDType     string // str, int
	Status     any    // nil, int64 or string, per StatusType
	StatusType string // None, str, int
	Payload    string // JSON text as received
	Archivist  string
}

// PayloadValue decodes the stored payload.
func (i Item) PayloadValue() (any, error) {
	var v any
	if err := json.Unmarshal([]byte(i.Payload), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Store is the fake tracker's state: projects, one task queue and one item
// collection per project. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	projects map[string]tracker.Project
	queues   map[string][]map[string]any
	items    map[string][]Item
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		projects: make(map[string]tracker.Project),
		queues:   make(map[string][]map[string]any),
		items:    make(map[string][]Item),
	}
}

// PutProject adds or replaces a project.
func (s *Store) PutProject(p tracker.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.Meta.Identifier] = p.Clone()
}

// Project returns a project by identifier.
func (s *Store) Project(identifier string) (tracker.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[identifier]
	return p.Clone(), ok
}

// Projects returns all projects sorted by identifier.
func (s *Store) Projects() []tracker.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tracker.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Meta.Identifier < out[j].Meta.Identifier
	})
	return out
}

// AddTask queues a task document. The document must hold the project's id
// field as an int64 or a string; status defaults to TODO.
func (s *Store) AddTask(project string, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		task[k] = normalizeID(v)
	}
	if _, ok := task["status"]; !ok {
		task["status"] = StatusTodo
	}
	s.queues[project] = append(s.queues[project], task)
}

// Task returns a copy of the queued task whose id field equals id.
func (s *Store) Task(project string, id any) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := s.findTask(project, normalizeID(id))
	if task == nil {
		return nil, false
	}
	return copyDoc(task), true
}

// Items returns the items inserted into a project, in insertion order.
func (s *Store) Items(project string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items[project]...)
}

func (s *Store) claim(project, archivist string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.queues[project] {
		if task["status"] == StatusTodo {
			now := time.Now().UTC().Format(time.RFC3339Nano)
			task["status"] = StatusProcessing
			task["archivist"] = archivist
			task["claimed_at"] = now
			task["updated_at"] = now
			return copyDoc(task)
		}
	}
	return nil
}

func (s *Store) update(project string, id any, status, archivist string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, task := range s.queues[project] {
		if task[s.docIDName(project)] == id {
			task["status"] = status
			task["archivist"] = archivist
			task["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
			return i, true
		}
	}
	return 0, false
}

func (s *Store) insert(project string, item Item) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items[project] {
		if existing.ID == item.ID {
			return 0, fmt.Errorf("duplicate key %v", item.ID)
		}
	}
	s.items[project] = append(s.items[project], item)
	return len(s.items[project]) - 1, nil
}

func (s *Store) findTask(project string, id any) map[string]any {
	name := s.docIDName(project)
	for _, task := range s.queues[project] {
		if task[name] == id {
			return task
		}
	}
	return nil
}

func (s *Store) docIDName(project string) string {
	return s.projects[project].Mongodb.DocIDName()
}

func normalizeID(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	}
	return v
}

func copyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
