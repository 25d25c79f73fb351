package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"
)

// Probe timeouts. The warm-up probe only primes DNS and connections.
const (
	WarmupTimeout = 50 * time.Millisecond
	ProbeTimeout  = 5 * time.Second
)

// Unreachable is the latency recorded for a failed probe.
const Unreachable = time.Duration(math.MaxInt64)

// Prober checks whether a tracker endpoint is alive.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// HTTPProber sends GET {baseURL}ping; any 2xx is healthy.
type HTTPProber struct {
	Client *http.Client
}

// Probe implements Prober.
func (p HTTPProber) Probe(ctx context.Context, baseURL string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeBaseURL(baseURL)+"ping", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ping returned %d", resp.StatusCode)
	}
	return nil
}

// Measurement is the probe result for one endpoint.
type Measurement struct {
	URL     string
	Latency time.Duration
	Err     error
}

// Healthy reports whether the measurement probe succeeded.
func (m Measurement) Healthy() bool { return m.Latency != Unreachable }

// Ranking lists measurements from fastest to slowest.
type Ranking []Measurement

// Best returns the first entry. ok is false only for an empty ranking.
func (r Ranking) Best() (Measurement, bool) {
	if len(r) == 0 {
		return Measurement{}, false
	}
	return r[0], true
}

// Selector picks the lowest-latency endpoint from a fixed list.
// Probes run one after another so latencies are comparable.
type Selector struct {
	Prober        Prober
	Warmup        bool
	WarmupTimeout time.Duration
	ProbeTimeout  time.Duration

	now func() time.Time
}

// NewSelector returns a selector with the default timeouts and warm-up enabled.
func NewSelector(p Prober) *Selector {
	return &Selector{
		Prober:        p,
		Warmup:        true,
		WarmupTimeout: WarmupTimeout,
		ProbeTimeout:  ProbeTimeout,
		now:           time.Now,
	}
}

// Select probes every node and returns them ranked by latency. Ties keep the
// order of nodes. If every probe fails the ranking is still returned; the
// first real request against the chosen node will surface the outage.
func (s *Selector) Select(ctx context.Context, nodes []string) (Ranking, error) {
	if len(nodes) == 0 {
		return nil, errors.New("no tracker nodes to select from")
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	if s.Warmup {
		for _, node := range nodes {
			s.probe(ctx, node, s.WarmupTimeout)
		}
	}

	ranking := make(Ranking, 0, len(nodes))
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := now()
		err := s.probe(ctx, node, s.ProbeTimeout)
		m := Measurement{URL: NormalizeBaseURL(node), Latency: now().Sub(start)}
		if err != nil {
			m.Latency = Unreachable
			m.Err = err
		}
		ranking = append(ranking, m)
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Latency < ranking[j].Latency
	})
	return ranking, nil
}

func (s *Selector) probe(ctx context.Context, node string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = ProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Prober.Probe(pctx, node)
}
