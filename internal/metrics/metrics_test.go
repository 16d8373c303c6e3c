package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.readCounts == nil || c.readErrors == nil {
		t.Error("expected initialized read maps")
	}
	if c.latencies == nil {
		t.Error("expected initialized latencies map")
	}
	if c.startTime.IsZero() {
		t.Error("expected non-zero start time")
	}
}

func TestRecordRead(t *testing.T) {
	c := NewCollector()

	c.RecordRead("getUserProfile", false)
	c.RecordRead("getUserProfile", true)
	c.RecordRead("stakingTier1", false)

	m := c.GetMetrics()
	if m.ReadCounts["getUserProfile"] != 2 {
		t.Errorf("expected getUserProfile count 2, got %d", m.ReadCounts["getUserProfile"])
	}
	if m.ReadErrors["getUserProfile"] != 1 {
		t.Errorf("expected getUserProfile errors 1, got %d", m.ReadErrors["getUserProfile"])
	}
	if m.ReadCounts["stakingTier1"] != 1 {
		t.Errorf("expected stakingTier1 count 1, got %d", m.ReadCounts["stakingTier1"])
	}
	if _, ok := m.ReadErrors["stakingTier1"]; ok {
		t.Error("successful reads must not create an error entry")
	}
}

func TestRecordReadConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordRead("levelPercents", i%4 == 0)
		}(i)
	}
	wg.Wait()

	m := c.GetMetrics()
	if m.ReadCounts["levelPercents"] != 100 {
		t.Errorf("expected count 100, got %d", m.ReadCounts["levelPercents"])
	}
	if m.ReadErrors["levelPercents"] != 25 {
		t.Errorf("expected errors 25, got %d", m.ReadErrors["levelPercents"])
	}
}

func TestRecordAction(t *testing.T) {
	c := NewCollector()

	c.RecordAction("stake", "confirmed")
	c.RecordAction("stake", "confirmed")
	c.RecordAction("stake", "validation failed")
	c.RecordAction("withdraw", "action failed")

	m := c.GetMetrics()
	if m.Actions["stake"]["confirmed"] != 2 {
		t.Errorf("expected 2 confirmed stakes, got %d", m.Actions["stake"]["confirmed"])
	}
	if m.Actions["stake"]["validation failed"] != 1 {
		t.Errorf("expected 1 failed stake, got %d", m.Actions["stake"]["validation failed"])
	}
	if m.Actions["withdraw"]["action failed"] != 1 {
		t.Errorf("expected 1 failed withdraw, got %d", m.Actions["withdraw"]["action failed"])
	}

	// Snapshot is a copy.
	m.Actions["stake"]["confirmed"] = 99
	if c.GetMetrics().Actions["stake"]["confirmed"] != 2 {
		t.Error("GetMetrics must copy action counts")
	}
}

func TestRecordLatency(t *testing.T) {
	c := NewCollector()

	c.RecordLatency("getUserStakes", 500*time.Microsecond)
	c.RecordLatency("getUserStakes", 3*time.Millisecond)
	c.RecordLatency("getUserStakes", 50*time.Millisecond)

	stats, ok := c.GetMetrics().ReadLatencies["getUserStakes"]
	if !ok {
		t.Fatal("expected latency stats")
	}
	if stats.Count != 3 {
		t.Errorf("expected count 3, got %d", stats.Count)
	}
	if stats.AvgMs <= 0 {
		t.Error("expected positive average latency")
	}
	if stats.SumMs <= 0 {
		t.Error("expected positive sum")
	}
	if stats.Buckets["0-1ms"] != 1 || stats.Buckets["1-5ms"] != 1 || stats.Buckets["50-100ms"] != 1 {
		t.Errorf("unexpected buckets: %v", stats.Buckets)
	}
}

func TestLatencyHistogramBuckets(t *testing.T) {
	h := &LatencyHistogram{}

	tests := []struct {
		duration       time.Duration
		expectedBucket int
	}{
		{500 * time.Microsecond, 0},  // 0-1ms
		{2 * time.Millisecond, 1},    // 1-5ms
		{7 * time.Millisecond, 2},    // 5-10ms
		{15 * time.Millisecond, 3},   // 10-25ms
		{30 * time.Millisecond, 4},   // 25-50ms
		{75 * time.Millisecond, 5},   // 50-100ms
		{200 * time.Millisecond, 6},  // 100-250ms
		{400 * time.Millisecond, 7},  // 250-500ms
		{800 * time.Millisecond, 8},  // 500-1000ms
		{2000 * time.Millisecond, 9}, // 1000ms+
	}

	for _, tt := range tests {
		h.Record(tt.duration)
	}

	for i, tc := range tests {
		if h.buckets[tc.expectedBucket] != 1 {
			t.Errorf("test %d: expected one sample in bucket %d for duration %v",
				i, tc.expectedBucket, tc.duration)
		}
	}

	if h.count != uint64(len(tests)) {
		t.Errorf("expected count %d, got %d", len(tests), h.count)
	}
}

func TestLatencyHistogramConcurrent(t *testing.T) {
	h := &LatencyHistogram{}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Record(time.Duration(i) * time.Millisecond)
		}(i)
	}
	wg.Wait()

	if h.count != 100 {
		t.Errorf("expected count 100, got %d", h.count)
	}
}

func TestIncrementDecrementConnections(t *testing.T) {
	c := NewCollector()

	c.IncrementConnections()
	c.IncrementConnections()
	c.DecrementConnections()

	if got := c.GetMetrics().ActiveConnections; got != 1 {
		t.Errorf("expected 1 active connection, got %d", got)
	}
}

func TestGetMetricsJSON(t *testing.T) {
	c := NewCollector()
	c.RecordRead("getContractStats", false)
	c.RecordAction("claim", "confirmed")

	data, err := c.GetMetricsJSON()
	if err != nil {
		t.Fatalf("GetMetricsJSON error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"uptime", "read_counts", "read_errors", "read_latencies", "actions", "active_connections"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in JSON output", key)
		}
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()

	c.RecordRead("getUserProfile", true)
	c.RecordLatency("getUserProfile", 10*time.Millisecond)
	c.RecordAction("stake", "confirmed")
	c.IncrementConnections()

	c.Reset()

	m := c.GetMetrics()
	if len(m.ReadCounts) != 0 || len(m.ReadErrors) != 0 {
		t.Errorf("expected no read counts after reset, got %v / %v", m.ReadCounts, m.ReadErrors)
	}
	if len(m.ReadLatencies) != 0 {
		t.Errorf("expected 0 latencies after reset, got %d", len(m.ReadLatencies))
	}
	if len(m.Actions) != 0 {
		t.Errorf("expected no actions after reset, got %v", m.Actions)
	}
	if m.ActiveConnections != 0 {
		t.Errorf("expected 0 connections after reset, got %d", m.ActiveConnections)
	}
}

func TestLatencyStatsAverage(t *testing.T) {
	c := NewCollector()

	c.RecordLatency("test", 10*time.Millisecond)
	c.RecordLatency("test", 20*time.Millisecond)
	c.RecordLatency("test", 30*time.Millisecond)

	stats := c.GetMetrics().ReadLatencies["test"]

	if stats.AvgMs < 19 || stats.AvgMs > 21 {
		t.Errorf("expected average ~20ms, got %fms", stats.AvgMs)
	}
	if stats.SumMs < 59 || stats.SumMs > 61 {
		t.Errorf("expected sum ~60ms, got %fms", stats.SumMs)
	}
}

func TestBucketBoundaries(t *testing.T) {
	if len(bucketBoundaries) != len(bucketLabels)-1 {
		t.Errorf("expected %d boundaries for %d labels, got %d", len(bucketLabels)-1, len(bucketLabels), len(bucketBoundaries))
	}
	for i := 0; i < len(bucketBoundaries)-1; i++ {
		if bucketBoundaries[i] >= bucketBoundaries[i+1] {
			t.Errorf("bucket boundaries not sorted at index %d", i)
		}
	}
}

func TestMetricsUptime(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)

	if m := c.GetMetrics(); m.UptimeSeconds < 0.01 {
		t.Errorf("expected measurable uptime, got %f", m.UptimeSeconds)
	}
}
