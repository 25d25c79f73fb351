package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultRequestTimeout bounds every functional call.
const DefaultRequestTimeout = 60 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// Config identifies an archivist session against one project.
type Config struct {
	// ProjectID and Archivist must only contain [A-Za-z0-9_-].
	ProjectID string
	Archivist string

	// ClientVersion must equal the version the project declares.
	ClientVersion string

	// Nodes are the candidate base URLs (ProductionNodes when empty).
	Nodes []string

	// HTTPClient is owned by the caller (http.DefaultClient when nil).
	HTTPClient *http.Client

	// RequestTimeout bounds each functional call (DefaultRequestTimeout when zero).
	RequestTimeout time.Duration
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithBaseURL pins the tracker endpoint and skips endpoint selection.
func WithBaseURL(base string) Option {
	return func(t *Tracker) {
		t.baseURL = NormalizeBaseURL(base)
		t.skipSelect = true
	}
}

// WithTracer sends request and pacing events to tr.
func WithTracer(tr Tracer) Option {
	return func(t *Tracker) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// WithSelector replaces the default HTTP endpoint selector.
func WithSelector(s *Selector) Option {
	return func(t *Tracker) {
		if s != nil {
			t.selector = s
		}
	}
}

// WithProjectTTL changes how long the cached project is served.
func WithProjectTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.cache.ttl = ttl
		}
	}
}

// Tracker is a client session for one project and one archivist.
//
// Every method blocks until the tracker answers or the context ends. A
// Tracker is meant to be driven by one goroutine; its internal state is
// mutex-guarded so accidental sharing stays memory-safe, but concurrent
// claims are not paced against each other.
type Tracker struct {
	cfg        Config
	http       *http.Client
	tracer     Tracer
	selector   *Selector
	skipSelect bool

	mu      sync.Mutex
	baseURL string
	cache   projectCache
	pacer   claimPacer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates cfg, selects an endpoint, fetches the project and checks
// that the tracker still accepts cfg.ClientVersion. A *ValidationError or
// *ConfigMismatchError means the archivist cannot run as configured.
func New(ctx context.Context, cfg Config, opts ...Option) (*Tracker, error) {
	if err := ValidateIdentifier("project_id", cfg.ProjectID); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("archivist", cfg.Archivist); err != nil {
		return nil, err
	}
	if cfg.ClientVersion == "" {
		return nil, &ValidationError{Field: "client_version", Reason: "cannot be empty"}
	}
	if len(cfg.Nodes) == 0 {
		cfg.Nodes = ProductionNodes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	t := &Tracker{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		tracer: NopTracer{},
		cache:  projectCache{ttl: ProjectTTL},
		now:    time.Now,
		sleep:  sleepContext,
	}
	if t.http == nil {
		t.http = http.DefaultClient
	}
	t.baseURL = NormalizeBaseURL(cfg.Nodes[0])
	for _, opt := range opts {
		opt(t)
	}
	if t.selector == nil {
		t.selector = NewSelector(HTTPProber{Client: t.http})
	}

	if !t.skipSelect {
		if _, err := t.SelectBestTracker(ctx); err != nil {
			return nil, err
		}
	}

	project, err := t.FetchProject(ctx)
	if err != nil {
		return nil, err
	}
	if project.Client.Version != cfg.ClientVersion {
		return nil, &ConfigMismatchError{Local: cfg.ClientVersion, Remote: project.Client.Version}
	}
	return t, nil
}

// ProjectID returns the project this session works on.
func (t *Tracker) ProjectID() string { return t.cfg.ProjectID }

// Archivist returns the archivist name sent with every task request.
func (t *Tracker) Archivist() string { return t.cfg.Archivist }

// ClientVersion returns the configured client version.
func (t *Tracker) ClientVersion() string { return t.cfg.ClientVersion }

// BaseURL returns the active tracker endpoint.
func (t *Tracker) BaseURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseURL
}

// SelectBestTracker probes the configured nodes and switches to the fastest.
func (t *Tracker) SelectBestTracker(ctx context.Context) (Ranking, error) {
	ranking, err := t.selector.Select(ctx, t.cfg.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to select tracker: %w", err)
	}
	best, _ := ranking.Best()
	t.mu.Lock()
	t.baseURL = best.URL
	t.mu.Unlock()
	t.tracer.EndpointSelected(ranking)
	return ranking, nil
}

// Ping probes the active endpoint and returns the round-trip time.
func (t *Tracker) Ping(ctx context.Context) (time.Duration, error) {
	base := t.BaseURL()
	pctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	start := t.now()
	if err := t.selector.Prober.Probe(pctx, base); err != nil {
		return 0, &TransportError{Op: "ping", URL: base + "ping", Err: err}
	}
	return t.now().Sub(start), nil
}

// Project returns the cached project, refetching it first when the cache is
// older than the TTL. A failed refetch returns the error and keeps the old
// cache, so the next call tries again.
func (t *Tracker) Project(ctx context.Context) (Project, error) {
	t.mu.Lock()
	if t.cache.fresh(t.now()) {
		p := t.cache.snapshot()
		t.mu.Unlock()
		return p, nil
	}
	t.mu.Unlock()
	return t.FetchProject(ctx)
}

// FetchProject always asks the tracker for the project and refreshes the cache.
func (t *Tracker) FetchProject(ctx context.Context) (Project, error) {
	const op = "fetch_project"
	status, body, err := t.post(ctx, op, "project/"+t.cfg.ProjectID, nil)
	if err != nil {
		return Project{}, err
	}
	if status < 200 || status > 299 {
		return Project{}, remoteError(op, status, body)
	}
	var p Project
	if err := json.Unmarshal(body, &p); err != nil {
		return Project{}, fmt.Errorf("%s: failed to decode project: %w", op, err)
	}

	t.mu.Lock()
	t.cache.store(p, t.now())
	t.mu.Unlock()
	return p.Clone(), nil
}

// ListOption customises ListProjects.
type ListOption func(url.Values)

// IncludePrivate also lists projects that are not public.
func IncludePrivate() ListOption {
	return func(q url.Values) { q.Set("show_private", "1") }
}

// ListProjects returns every project the tracker lists.
func (t *Tracker) ListProjects(ctx context.Context, opts ...ListOption) ([]Project, error) {
	const op = "list_projects"
	path := "projects"
	if len(opts) > 0 {
		q := url.Values{}
		for _, opt := range opts {
			opt(q)
		}
		path += "?" + q.Encode()
	}
	status, body, err := t.post(ctx, op, path, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, remoteError(op, status, body)
	}
	var projects []Project
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, fmt.Errorf("%s: failed to decode projects: %w", op, err)
	}
	return projects, nil
}

type claimOptions struct {
	noDelay bool
}

// ClaimOption customises ClaimTask.
type ClaimOption func(*claimOptions)

// WithoutDelay skips claim pacing for this call.
func WithoutDelay() ClaimOption {
	return func(o *claimOptions) { o.noDelay = true }
}

// ClaimWait returns how long a paced ClaimTask would sleep right now.
// Zero or negative means a claim can be sent immediately.
func (t *Tracker) ClaimWait(ctx context.Context) (time.Duration, error) {
	project, err := t.Project(ctx)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pacer.remaining(project.Client.Delay(), t.now()), nil
}

// ClaimTask asks the tracker for the next task. Unless WithoutDelay is given
// it first waits until claim_task_delay has passed since the previous claim.
// It returns (nil, nil) when the tracker has no task available.
func (t *Tracker) ClaimTask(ctx context.Context, opts ...ClaimOption) (*Task, error) {
	const op = "claim_task"
	var o claimOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.noDelay {
		project, err := t.Project(ctx)
		if err != nil {
			return nil, err
		}
		delay := project.Client.Delay()
		t.mu.Lock()
		wait := t.pacer.remaining(delay, t.now())
		t.mu.Unlock()
		if wait != 0 {
			t.tracer.ClaimPacing(wait, delay)
		}
		if wait > 0 {
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	// Stamp before sending so pacing holds while the request is in flight.
	t.mu.Lock()
	t.pacer.mark(t.now())
	t.mu.Unlock()

	status, body, err := t.post(ctx, op, t.archivistPath("claim_task"), nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		task, err := NewTask(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return task, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, remoteError(op, status, body)
	}
}

// UpdateTask sets the status of a claimed task. The id's type is sent along
// so the tracker can tell "42" from 42.
func (t *Tracker) UpdateTask(ctx context.Context, id ID, status string) (Result, error) {
	const op = "update_task"
	if err := id.validate("task_id"); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("status", status)
	form.Set("task_id_type", id.Tag())

	code, body, err := t.post(ctx, op, t.archivistPath("update_task/"+url.PathEscape(id.String())), form)
	if err != nil {
		return nil, err
	}
	return decodeResult(op, code, body)
}

// InsertItem stores a processed item. payload may be any JSON-encodable value;
// see EncodePayload for how it is rendered.
func (t *Tracker) InsertItem(ctx context.Context, id ID, status ItemStatus, payload any) (Result, error) {
	const op = "insert_item"
	if err := id.validate("item_id"); err != nil {
		return nil, err
	}
	encoded, err := EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	form := url.Values{}
	form.Set("item_id_type", id.Tag())
	form.Set("item_status", status.FormValue())
	form.Set("item_status_type", status.Tag())
	form.Set("payload", encoded)

	code, body, err := t.post(ctx, op, t.archivistPath("insert_item/"+url.PathEscape(id.String())), form)
	if err != nil {
		return nil, err
	}
	return decodeResult(op, code, body)
}

func (t *Tracker) archivistPath(tail string) string {
	return fmt.Sprintf("project/%s/%s/%s/%s",
		t.cfg.ProjectID, url.PathEscape(t.cfg.ClientVersion), t.cfg.Archivist, tail)
}

// post sends one functional request and returns the status and body.
// Only transport failures are returned as errors.
func (t *Tracker) post(ctx context.Context, op, path string, form url.Values) (int, []byte, error) {
	endpoint := t.BaseURL() + APIVersion + "/" + path

	rctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, nil, &TransportError{Op: op, URL: endpoint, Err: err}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	ev := Event{Op: op, Method: http.MethodPost, URL: endpoint}
	t.tracer.RequestStart(ev)
	start := t.now()

	resp, err := t.http.Do(req)
	if err != nil {
		ev.Duration = t.now().Sub(start)
		ev.Err = err
		t.tracer.RequestError(ev)
		return 0, nil, &TransportError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	ev.Duration = t.now().Sub(start)
	ev.StatusCode = resp.StatusCode
	if err != nil {
		ev.Err = err
		t.tracer.RequestError(ev)
		return 0, nil, &TransportError{Op: op, URL: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	t.tracer.RequestEnd(ev)
	return resp.StatusCode, data, nil
}

func decodeResult(op string, status int, body []byte) (Result, error) {
	if status != http.StatusOK {
		return nil, remoteError(op, status, body)
	}
	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return r, nil
}

func remoteError(op string, status int, body []byte) *RemoteError {
	return &RemoteError{Op: op, StatusCode: status, Body: strings.TrimSpace(string(body))}
}
