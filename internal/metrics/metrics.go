package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates ledger read and staking action metrics
type Collector struct {
	// Read counts and failures by contract method
	readCounts   map[string]*uint64
	readErrors   map[string]*uint64
	readCountsMu sync.RWMutex

	// Read latencies by method (stored as nanoseconds)
	latencies   map[string]*LatencyHistogram
	latenciesMu sync.RWMutex

	// Action outcomes keyed by action then outcome
	actions   map[string]map[string]uint64
	actionsMu sync.Mutex

	// Open websocket subscribers
	activeConnections int64

	// Start time for uptime calculation
	startTime time.Time
}

// LatencyHistogram tracks request latencies in buckets
type LatencyHistogram struct {
	// Bucket boundaries in milliseconds
	// Buckets: [0-1ms], [1-5ms], [5-10ms], [10-25ms], [25-50ms], [50-100ms], [100-250ms], [250-500ms], [500-1000ms], [1000ms+]
	buckets [10]uint64
	sum     uint64 // Total latency in nanoseconds
	count   uint64 // Total count
	mu      sync.Mutex
}

// bucket boundaries in milliseconds
var bucketBoundaries = []int64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

var bucketLabels = []string{
	"0-1ms", "1-5ms", "5-10ms", "10-25ms", "25-50ms",
	"50-100ms", "100-250ms", "250-500ms", "500-1000ms", "1000ms+",
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		readCounts: make(map[string]*uint64),
		readErrors: make(map[string]*uint64),
		latencies:  make(map[string]*LatencyHistogram),
		actions:    make(map[string]map[string]uint64),
		startTime:  time.Now(),
	}
}

// RecordRead records a ledger read for the given method
func (c *Collector) RecordRead(method string, failed bool) {
	c.readCountsMu.Lock()
	counter := counterFor(c.readCounts, method)
	var errCounter *uint64
	if failed {
		errCounter = counterFor(c.readErrors, method)
	}
	c.readCountsMu.Unlock()

	atomic.AddUint64(counter, 1)
	if errCounter != nil {
		atomic.AddUint64(errCounter, 1)
	}
}

func counterFor(m map[string]*uint64, key string) *uint64 {
	counter, exists := m[key]
	if !exists {
		var val uint64
		counter = &val
		m[key] = counter
	}
	return counter
}

// RecordLatency records the latency for a read
func (c *Collector) RecordLatency(method string, duration time.Duration) {
	c.latenciesMu.Lock()
	hist, exists := c.latencies[method]
	if !exists {
		hist = &LatencyHistogram{}
		c.latencies[method] = hist
	}
	c.latenciesMu.Unlock()

	hist.Record(duration)
}

// RecordAction records the outcome of a staking action
func (c *Collector) RecordAction(action, outcome string) {
	c.actionsMu.Lock()
	defer c.actionsMu.Unlock()
	byOutcome, ok := c.actions[action]
	if !ok {
		byOutcome = make(map[string]uint64)
		c.actions[action] = byOutcome
	}
	byOutcome[outcome]++
}

// Record records a latency value in the histogram
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ms := d.Milliseconds()

	bucketIdx := len(bucketBoundaries) // overflow
	for i, boundary := range bucketBoundaries {
		if ms < boundary {
			bucketIdx = i
			break
		}
	}

	h.buckets[bucketIdx]++
	h.sum += uint64(d.Nanoseconds())
	h.count++
}

// IncrementConnections increments the websocket subscriber count
func (c *Collector) IncrementConnections() {
	atomic.AddInt64(&c.activeConnections, 1)
}

// DecrementConnections decrements the websocket subscriber count
func (c *Collector) DecrementConnections() {
	atomic.AddInt64(&c.activeConnections, -1)
}

// Metrics represents the current state of all metrics
type Metrics struct {
	Uptime            string                       `json:"uptime"`
	UptimeSeconds     float64                      `json:"uptime_seconds"`
	ReadCounts        map[string]uint64            `json:"read_counts"`
	ReadErrors        map[string]uint64            `json:"read_errors"`
	ReadLatencies     map[string]LatencyStats      `json:"read_latencies"`
	Actions           map[string]map[string]uint64 `json:"actions"`
	ActiveConnections int64                        `json:"active_connections"`
	CollectedAt       time.Time                    `json:"collected_at"`
}

// LatencyStats contains latency statistics for a method
type LatencyStats struct {
	Count   uint64            `json:"count"`
	SumMs   float64           `json:"sum_ms"`
	AvgMs   float64           `json:"avg_ms"`
	Buckets map[string]uint64 `json:"buckets"`
}

// GetMetrics returns the current metrics as a Metrics struct
func (c *Collector) GetMetrics() *Metrics {
	uptime := time.Since(c.startTime)

	readCounts := make(map[string]uint64)
	readErrors := make(map[string]uint64)
	c.readCountsMu.RLock()
	for method, counter := range c.readCounts {
		readCounts[method] = atomic.LoadUint64(counter)
	}
	for method, counter := range c.readErrors {
		readErrors[method] = atomic.LoadUint64(counter)
	}
	c.readCountsMu.RUnlock()

	latencies := make(map[string]LatencyStats)
	c.latenciesMu.RLock()
	for method, hist := range c.latencies {
		hist.mu.Lock()
		stats := LatencyStats{
			Count:   hist.count,
			SumMs:   float64(hist.sum) / float64(time.Millisecond),
			Buckets: make(map[string]uint64),
		}
		if hist.count > 0 {
			stats.AvgMs = float64(hist.sum) / float64(hist.count) / float64(time.Millisecond)
		}
		for i, count := range hist.buckets {
			if count > 0 {
				stats.Buckets[bucketLabels[i]] = count
			}
		}
		hist.mu.Unlock()
		latencies[method] = stats
	}
	c.latenciesMu.RUnlock()

	actions := make(map[string]map[string]uint64)
	c.actionsMu.Lock()
	for action, byOutcome := range c.actions {
		cp := make(map[string]uint64, len(byOutcome))
		for k, v := range byOutcome {
			cp[k] = v
		}
		actions[action] = cp
	}
	c.actionsMu.Unlock()

	return &Metrics{
		Uptime:            uptime.Round(time.Second).String(),
		UptimeSeconds:     uptime.Seconds(),
		ReadCounts:        readCounts,
		ReadErrors:        readErrors,
		ReadLatencies:     latencies,
		Actions:           actions,
		ActiveConnections: atomic.LoadInt64(&c.activeConnections),
		CollectedAt:       time.Now(),
	}
}

// GetMetricsJSON returns the current metrics as JSON
func (c *Collector) GetMetricsJSON() ([]byte, error) {
	return json.Marshal(c.GetMetrics())
}

// Reset resets all metrics (useful for testing)
func (c *Collector) Reset() {
	c.readCountsMu.Lock()
	c.readCounts = make(map[string]*uint64)
	c.readErrors = make(map[string]*uint64)
	c.readCountsMu.Unlock()

	c.latenciesMu.Lock()
	c.latencies = make(map[string]*LatencyHistogram)
	c.latenciesMu.Unlock()

	c.actionsMu.Lock()
	c.actions = make(map[string]map[string]uint64)
	c.actionsMu.Unlock()

	atomic.StoreInt64(&c.activeConnections, 0)
	c.startTime = time.Now()
}
