// Package trackertest runs an in-memory tracker for tests. It serves the same
// routes as the production tracker and mirrors its status codes and bodies.
package trackertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Route names used by Hits and Fail.
const (
	RoutePing       = "ping"
	RouteProjects   = "projects"
	RouteProject    = "project"
	RouteClaimTask  = "claim_task"
	RouteUpdateTask = "update_task"
	RouteInsertItem = "insert_item"
)

type forced struct {
	code int
	body string
}

// Server is a fake tracker listening on a local httptest server.
type Server struct {
	*Store
	HTTP *httptest.Server

	mu      sync.Mutex
	hits    map[string]int
	forced  map[string]forced
	latency time.Duration
}

// New starts a fake tracker and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := NewServer()
	s.HTTP = httptest.NewServer(s.Handler())
	t.Cleanup(s.HTTP.Close)
	return s
}

// NewServer returns an unstarted fake tracker. Serve Handler() yourself.
func NewServer() *Server {
	return &Server{
		Store:  NewStore(),
		hits:   make(map[string]int),
		forced: make(map[string]forced),
	}
}

// URL returns the base URL with a trailing slash, as tracker nodes are written.
func (s *Server) URL() string {
	return tracker.NormalizeBaseURL(s.HTTP.URL)
}

// Hits returns how many requests a route has received.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Fail makes every request to route answer code with body until Recover.
func (s *Server) Fail(route string, code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[route] = forced{code: code, body: body}
}

// Recover undoes Fail for route.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.forced, route)
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Handler returns the tracker routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ping", s.wrap(RoutePing, s.ping))
	r.Head("/ping", s.wrap(RoutePing, s.ping))

	r.Route("/"+tracker.APIVersion, func(r chi.Router) {
		r.Post("/projects", s.wrap(RouteProjects, s.listProjects))
		r.Post("/project/{identifier}", s.wrap(RouteProject, s.getProject))
		r.Route("/project/{identifier}/{client_version}/{archivist}", func(r chi.Router) {
			r.Post("/claim_task", s.wrap(RouteClaimTask, s.claimTask))
			r.Post("/update_task/{task_id}", s.wrap(RouteUpdateTask, s.updateTask))
			r.Post("/insert_item/{item_id}", s.wrap(RouteInsertItem, s.insertItem))
		})
	})
	return r
}

func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		f, isForced := s.forced[route]
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if isForced {
			w.WriteHeader(f.code)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.Projects()
	if r.URL.Query().Get("show_private") != "" {
		writeJSON(w, http.StatusOK, projects)
		return
	}
	public := []tracker.Project{}
	for _, p := range projects {
		if p.Status.Public {
			public = append(public, p)
		}
	}
	writeJSON(w, http.StatusOK, public)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	if identifier == "" || !tracker.IsSafe(identifier) {
		writeError(w, http.StatusBadRequest, "Invalid identifier")
		return
	}
	p, ok := s.Project(identifier)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Project %s not found", identifier))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// session validates the shared path parameters of the task routes and
// writes the error response itself when they are rejected.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (tracker.Project, string, bool) {
	identifier := chi.URLParam(r, "identifier")
	archivist := chi.URLParam(r, "archivist")
	if identifier == "" || archivist == "" || !tracker.IsSafe(identifier) || !tracker.IsSafe(archivist) {
		writeError(w, http.StatusBadRequest, "Invalid identifier or archivist")
		return tracker.Project{}, "", false
	}
	p, ok := s.Project(identifier)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Project %s not found", identifier))
		return tracker.Project{}, "", false
	}
	if chi.URLParam(r, "client_version") != p.Client.Version {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Client version not supported",
			"msg":   fmt.Sprintf("Please update to version %s", p.Client.Version),
		})
		return tracker.Project{}, "", false
	}
	return p, archivist, true
}

func (s *Server) claimTask(w http.ResponseWriter, r *http.Request) {
	p, archivist, ok := s.session(w, r)
	if !ok {
		return
	}
	if p.Status.Paused {
		writeError(w, http.StatusBadRequest, "Project paused")
		return
	}
	task := s.claim(p.Meta.Identifier, archivist)
	if task == nil {
		writeError(w, http.StatusNotFound, "No task available")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	p, archivist, ok := s.session(w, r)
	if !ok {
		return
	}
	id, err := tracker.ParseID(pathParam(r, "task_id"), r.PostFormValue("task_id_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task_id_type")
		return
	}
	idx, found := s.update(p.Meta.Identifier, storedID(id), r.PostFormValue("status"), archivist)
	if !found {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_id": idx,
		"msg": "Task updated successfully",
	})
}

type insertBody struct {
	ItemID         string `json:"item_id"`
	ItemIDType     string `json:"item_id_type"`
	ItemStatus     string `json:"item_status"`
	ItemStatusType string `json:"item_status_type"`
	Payload        string `json:"payload"`
}

func (s *Server) insertItem(w http.ResponseWriter, r *http.Request) {
	itemID := pathParam(r, "item_id")

	var body insertBody
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if body.ItemID != itemID {
			writeError(w, http.StatusBadRequest, "item_id in URL does not match item_id in JSON")
			return
		}
	} else {
		body = insertBody{
			ItemID:         itemID,
			ItemIDType:     r.PostFormValue("item_id_type"),
			ItemStatus:     r.PostFormValue("item_status"),
			ItemStatusType: r.PostFormValue("item_status_type"),
			Payload:        r.PostFormValue("payload"),
		}
	}

	p, archivist, ok := s.session(w, r)
	if !ok {
		return
	}

	id, err := tracker.ParseID(itemID, body.ItemIDType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item_id")
		return
	}
	status, err := tracker.ParseItemStatus(body.ItemStatus, body.ItemStatusType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item_status")
		return
	}
	if !json.Valid([]byte(body.Payload)) {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	item := Item{
		ID:         storedID(id),
		IDType:     id.Tag(),
		StatusType: status.Tag(),
		Payload:    body.Payload,
		Archivist:  archivist,
	}
	switch status.Tag() {
	case tracker.TagStr:
		item.Status = status.FormValue()
	case tracker.TagInt:
		n, _ := strconv.ParseInt(status.FormValue(), 10, 64)
		item.Status = n
	}

	idx, err := s.insert(p.Meta.Identifier, item)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to insert item, duplicate key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_id": idx,
		"msg": "Item inserted successfully",
	})
}

// pathParam returns an unescaped route parameter. chi matches on the raw
// path, so ids containing "/" arrive percent-encoded.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func storedID(id tracker.ID) any {
	if n, ok := id.Int(); ok {
		return n
	}
	return id.String()
}
