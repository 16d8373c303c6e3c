package chain

import (
	"testing"
	"time"
)

const (
	rpc1 = "https://rpc1.example.com"
	rpc2 = "https://rpc2.example.com"
)

func TestEndpoints_New(t *testing.T) {
	e := NewEndpoints([]string{rpc1, rpc2, rpc1, ""})

	if e.Len() != 2 {
		t.Fatalf("expected 2 endpoints after dedup, got %d", e.Len())
	}
	if got := e.Ranked(); len(got) != 2 {
		t.Fatalf("expected 2 ranked endpoints, got %v", got)
	}
}

func TestEndpoints_EWMALatency(t *testing.T) {
	e := NewEndpoints([]string{rpc1})

	e.RecordSuccess(rpc1, 100*time.Millisecond)
	e.RecordSuccess(rpc1, 200*time.Millisecond)

	// first sample seeds the average: 0.3*200 + 0.7*100 = 130ms
	lat := e.Snapshot()[0].Latency
	if lat < 120*time.Millisecond || lat > 140*time.Millisecond {
		t.Errorf("expected EWMA latency ~130ms, got %v", lat)
	}
}

func TestEndpoints_RankedByLatency(t *testing.T) {
	e := NewEndpoints([]string{rpc1, rpc2})
	e.RecordSuccess(rpc1, 300*time.Millisecond)
	e.RecordSuccess(rpc2, 20*time.Millisecond)

	got := e.Ranked()
	if got[0] != rpc2 {
		t.Errorf("expected fastest endpoint first, got %v", got)
	}
}

func TestEndpoints_ErrorsMarkUnhealthy(t *testing.T) {
	e := NewEndpoints([]string{rpc1, rpc2})

	for i := 0; i < defaultMaxConsecutiveErrors; i++ {
		e.RecordError(rpc1)
	}

	got := e.Ranked()
	if len(got) != 1 || got[0] != rpc2 {
		t.Fatalf("expected only rpc2, got %v", got)
	}

	next, ok := e.Next(rpc2)
	if ok {
		t.Errorf("expected no alternative to rpc2, got %s", next)
	}
}

func TestEndpoints_SuccessResetsErrors(t *testing.T) {
	e := NewEndpoints([]string{rpc1})

	e.RecordError(rpc1)
	e.RecordError(rpc1)
	e.RecordSuccess(rpc1, 50*time.Millisecond)
	e.RecordError(rpc1)

	status := e.Snapshot()[0]
	if !status.Healthy || status.ConsecutiveErrs != 1 {
		t.Errorf("expected healthy with 1 error, got %+v", status)
	}
}

func TestEndpoints_RecoveryProbe(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := NewEndpoints([]string{rpc1, rpc2})
	e.now = func() time.Time { return now }

	for i := 0; i < defaultMaxConsecutiveErrors; i++ {
		e.RecordError(rpc1)
	}
	if got := e.Ranked(); len(got) != 1 {
		t.Fatalf("expected rpc1 excluded before recovery, got %v", got)
	}

	now = now.Add(defaultRecoveryInterval)
	got := e.Ranked()
	if len(got) != 2 || got[1] != rpc1 {
		t.Fatalf("expected rpc1 as trailing recovery probe, got %v", got)
	}
}

func TestEndpoints_UnknownURLIgnored(t *testing.T) {
	e := NewEndpoints([]string{rpc1})
	e.RecordError("https://unknown.example.com")
	e.RecordSuccess("https://unknown.example.com", time.Second)

	if e.Len() != 1 {
		t.Errorf("unknown URL should not be tracked")
	}
}
