package chain

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultMaxConsecutiveErrors = 3
	defaultRecoveryInterval     = 30 * time.Second
	ewmaAlpha                   = 0.3
	// unmeasured endpoints sort behind measured fast ones
	defaultInitialLatency = 100 * time.Millisecond
)

// EndpointStatus is a point-in-time view of one RPC endpoint.
type EndpointStatus struct {
	URL             string        `json:"url"`
	Latency         time.Duration `json:"latency"`
	ConsecutiveErrs int           `json:"consecutive_errors"`
	LastSuccess     time.Time     `json:"last_success"`
	LastError       time.Time     `json:"last_error"`
	Healthy         bool          `json:"healthy"`
}

type endpoint struct {
	EndpointStatus
	samples int
}

// Endpoints ranks a set of RPC URLs by health and EWMA latency so the client
// can fail over between providers.
type Endpoints struct {
	mu        sync.RWMutex
	endpoints []*endpoint
	maxErrors int
	recovery  time.Duration
	now       func() time.Time
}

// NewEndpoints tracks urls, all starting healthy. Duplicate URLs are dropped.
func NewEndpoints(urls []string) *Endpoints {
	seen := make(map[string]bool, len(urls))
	e := &Endpoints{
		maxErrors: defaultMaxConsecutiveErrors,
		recovery:  defaultRecoveryInterval,
		now:       time.Now,
	}
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		e.endpoints = append(e.endpoints, &endpoint{EndpointStatus: EndpointStatus{
			URL:     u,
			Healthy: true,
			Latency: defaultInitialLatency,
		}})
	}
	return e
}

// RecordSuccess resets the error streak of url and folds latency into its EWMA.
func (e *Endpoints) RecordSuccess(url string, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ep := e.find(url)
	if ep == nil {
		return
	}

	ep.ConsecutiveErrs = 0
	ep.LastSuccess = e.now()
	ep.Healthy = true

	if ep.samples == 0 {
		ep.Latency = latency
	} else {
		ep.Latency = time.Duration(ewmaAlpha*float64(latency) + (1-ewmaAlpha)*float64(ep.Latency))
	}
	ep.samples++
}

// RecordError counts a failed call; enough consecutive failures mark url unhealthy.
func (e *Endpoints) RecordError(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ep := e.find(url)
	if ep == nil {
		return
	}

	ep.ConsecutiveErrs++
	ep.LastError = e.now()
	if ep.ConsecutiveErrs >= e.maxErrors {
		ep.Healthy = false
	}
}

// Ranked returns healthy URLs fastest first, followed by unhealthy URLs whose
// recovery interval has elapsed.
func (e *Endpoints) Ranked() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()

	type candidate struct {
		url     string
		latency time.Duration
		probe   bool
	}

	var candidates []candidate
	for _, ep := range e.endpoints {
		switch {
		case ep.Healthy:
			candidates = append(candidates, candidate{url: ep.URL, latency: ep.Latency})
		case now.Sub(ep.LastError) >= e.recovery:
			candidates = append(candidates, candidate{url: ep.URL, latency: ep.Latency, probe: true})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].probe != candidates[j].probe {
			return !candidates[i].probe
		}
		return candidates[i].latency < candidates[j].latency
	})

	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.url
	}
	return urls
}

// Next returns the best ranked URL other than exclude.
func (e *Endpoints) Next(exclude string) (string, bool) {
	for _, u := range e.Ranked() {
		if u != exclude {
			return u, true
		}
	}
	return "", false
}

// Snapshot copies the status of every endpoint in configuration order.
func (e *Endpoints) Snapshot() []EndpointStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]EndpointStatus, len(e.endpoints))
	for i, ep := range e.endpoints {
		out[i] = ep.EndpointStatus
	}
	return out
}

// Len returns the number of tracked endpoints.
func (e *Endpoints) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.endpoints)
}

// must hold lock
func (e *Endpoints) find(url string) *endpoint {
	for _, ep := range e.endpoints {
		if ep.URL == url {
			return ep
		}
	}
	return nil
}
