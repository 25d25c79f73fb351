package archivist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
)

// Check is one dependency probed by /healthz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthServer serves /healthz for process supervisors and /stats for
// dashboards. The archivist is healthy when every check passes.
type HealthServer struct {
	server  *http.Server
	checks  []Check
	stats   func() Stats
	timeout time.Duration
}

// HealthResponse is the JSON body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stats  *Stats `json:"stats,omitempty"`
}

// NewHealthServer creates a health server listening on port (0 picks a free
// port). stats may be nil.
func NewHealthServer(port int, stats func() Stats, checks ...Check) *HealthServer {
	hs := &HealthServer{
		checks:  checks,
		stats:   stats,
		timeout: 5 * time.Second,
	}
	hs.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      hs.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return hs
}

// StatsResponse is the /stats output.
type StatsResponse struct {
	Body Stats
}

// Handler returns the health routes.
func (hs *HealthServer) Handler() http.Handler {
	r := chi.NewMux()
	r.Get("/healthz", hs.handleHealthz)
	r.Head("/healthz", hs.handleHealthz)

	api := humachi.New(r, huma.DefaultConfig("Archivist", "1.0.0"))
	huma.Register(api, huma.Operation{
		OperationID: "archivist-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Engine counters",
		Description: "Tasks claimed, done, failed and requeued since the archivist started",
		Tags:        []string{"health"},
	}, hs.handleStats)
	return r
}

func (hs *HealthServer) handleStats(ctx context.Context, input *struct{}) (*StatsResponse, error) {
	if hs.stats == nil {
		return nil, huma.Error404NotFound("No engine running")
	}
	return &StatsResponse{Body: hs.stats()}, nil
}

// Start binds the port and serves in a background goroutine. It returns the
// bound address, or an error if the port cannot be bound.
func (hs *HealthServer) Start() (string, error) {
	ln, err := net.Listen("tcp", hs.server.Addr)
	if err != nil {
		return "", fmt.Errorf("health server: %w", err)
	}
	go func() {
		log.Printf("[DEBUG] Health server listening on %s", ln.Addr())
		if err := hs.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] Health server error: %v", err)
		}
	}()
	return ln.Addr().String(), nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	log.Printf("[DEBUG] Shutting down health server...")
	return hs.server.Shutdown(ctx)
}

// handleHealthz returns 200 {"status":"healthy"} or 503 with the first failing
// check.
func (hs *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), hs.timeout)
	defer cancel()

	response := HealthResponse{Status: "healthy"}
	statusCode := http.StatusOK
	for _, check := range hs.checks {
		if err := check.Ping(ctx); err != nil {
			response = HealthResponse{
				Status: "unhealthy",
				Error:  fmt.Sprintf("%s: %v", check.Name, err),
			}
			statusCode = http.StatusServiceUnavailable
			break
		}
	}
	if hs.stats != nil {
		s := hs.stats()
		response.Stats = &s
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[ERROR] Failed to encode health response: %v", err)
	}
}
