package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stakedeck"

// PrometheusCollector wraps the Collector and mirrors its metrics into
// Prometheus format. It satisfies both the gateway's read observer and the
// orchestrator's action observer.
type PrometheusCollector struct {
	collector *Collector
	registry  *prometheus.Registry

	readCount      *prometheus.CounterVec
	readErrors     *prometheus.CounterVec
	readDuration   *prometheus.HistogramVec
	actionCount    *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec

	activeConnections prometheus.Gauge
	goroutineCount    prometheus.Gauge
	uptimeSeconds     prometheus.Gauge

	startTime time.Time
}

// NewPrometheusCollector creates a PrometheusCollector that wraps an existing
// Collector. Metrics are registered in a dedicated registry so they do not
// interfere with the default global registry.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	reg := prometheus.NewRegistry()

	p := &PrometheusCollector{
		collector: c,
		registry:  reg,
		readCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_reads_total",
			Help:      "Total number of ledger reads by contract method.",
		}, []string{"method"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_read_errors_total",
			Help:      "Failed ledger reads by contract method.",
		}, []string{"method"}),
		readDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_read_duration_seconds",
			Help:      "Ledger read latency histogram by contract method.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"method"}),
		actionCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Staking actions by action and outcome.",
		}, []string{"action", "outcome"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "End-to-end staking action latency including confirmation.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Number of open websocket subscribers.",
		}),
		goroutineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutine_count",
			Help:      "Number of goroutines.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the process started in seconds.",
		}),
		startTime: time.Now(),
	}

	reg.MustRegister(
		p.readCount,
		p.readErrors,
		p.readDuration,
		p.actionCount,
		p.actionDuration,
		p.httpRequests,
		p.activeConnections,
		p.goroutineCount,
		p.uptimeSeconds,
	)

	return p
}

// Registry returns the Prometheus registry used by this collector.
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveRead records a ledger read in both collectors.
func (p *PrometheusCollector) ObserveRead(method string, duration time.Duration, err error) {
	p.collector.RecordRead(method, err != nil)
	p.collector.RecordLatency(method, duration)

	p.readCount.WithLabelValues(method).Inc()
	if err != nil {
		p.readErrors.WithLabelValues(method).Inc()
	}
	p.readDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveAction records a finished staking action in both collectors.
func (p *PrometheusCollector) ObserveAction(action, outcome string, duration time.Duration) {
	p.collector.RecordAction(action, outcome)
	p.actionCount.WithLabelValues(action, outcome).Inc()
	p.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordHTTP counts an API response.
func (p *PrometheusCollector) RecordHTTP(route, code string) {
	p.httpRequests.WithLabelValues(route, code).Inc()
}

// IncrementConnections increments connections in both collectors.
func (p *PrometheusCollector) IncrementConnections() {
	p.collector.IncrementConnections()
	p.activeConnections.Inc()
}

// DecrementConnections decrements connections in both collectors.
func (p *PrometheusCollector) DecrementConnections() {
	p.collector.DecrementConnections()
	p.activeConnections.Dec()
}

// Sync refreshes the process gauges. Counters are updated on the write path.
func (p *PrometheusCollector) Sync() {
	p.goroutineCount.Set(float64(runtime.NumGoroutine()))
	p.uptimeSeconds.Set(time.Since(p.startTime).Seconds())
}

// GetMetrics returns the JSON metrics from the underlying Collector.
func (p *PrometheusCollector) GetMetrics() *Metrics {
	return p.collector.GetMetrics()
}

// GetMetricsJSON returns JSON-encoded metrics from the underlying Collector.
func (p *PrometheusCollector) GetMetricsJSON() ([]byte, error) {
	return p.collector.GetMetricsJSON()
}

// Collector returns the underlying custom Collector.
func (p *PrometheusCollector) Collector() *Collector {
	return p.collector
}

// PrometheusHandler returns an http.Handler that serves metrics in the
// Prometheus text exposition format, syncing gauges before each scrape.
func (p *PrometheusCollector) PrometheusHandler() http.Handler {
	inner := promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Sync()
		inner.ServeHTTP(w, r)
	})
}
