package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

func newTestService(t *testing.T) (*Service, *ledger.MockPlatform) {
	t.Helper()
	m := ledger.NewMockPlatform(common.HexToAddress("0x01"))
	if err := m.SeedUser(types.MustUserID("3ABCD"), common.HexToAddress("0x02"), types.UserID{}); err != nil {
		t.Fatal(err)
	}
	start := t0.Add(-40 * day)
	if err := m.AddStake(types.MustUserID("3ABCD"), units.MustFixedPoint("100"), start, start.Add(30*day)); err != nil {
		t.Fatal(err)
	}
	if err := m.AddStake(types.MustUserID("3ABCD"), units.MustFixedPoint("200"), t0, t0.Add(30*day)); err != nil {
		t.Fatal(err)
	}
	svc := NewService(ledger.NewGateway(m), WithClock(func() time.Time { return t0 }))
	return svc, m
}

func TestServiceLoad(t *testing.T) {
	svc, _ := newTestService(t)
	id := types.MustUserID("3ABCD")

	d, err := svc.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.ReadyToClaim) != 1 || len(d.InProgress) != 1 {
		t.Fatalf("ready=%d in-progress=%d, want 1/1", len(d.ReadyToClaim), len(d.InProgress))
	}
	if d.ReadyToClaim[0].Index != 0 || d.InProgress[0].Index != 1 {
		t.Errorf("unexpected partition indexes")
	}

	snap, ok := svc.Snapshot(id)
	if !ok || snap != d {
		t.Error("expected snapshot of the loaded dashboard")
	}
}

func TestServiceLoadErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Load(ctx, types.UserID{}); !errors.Is(err, ledger.ErrNotEnabled) {
		t.Errorf("zero ID: expected ErrNotEnabled, got %v", err)
	}
	if _, err := svc.Load(ctx, types.MustUserID("NOONE")); !errors.Is(err, ledger.ErrNotRegistered) {
		t.Errorf("unknown ID: expected ErrNotRegistered, got %v", err)
	}
}

func TestServiceInvalidate(t *testing.T) {
	svc, _ := newTestService(t)
	id := types.MustUserID("3ABCD")

	if _, err := svc.Load(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	var got []types.UserID
	cancel := svc.Subscribe(func(u types.UserID) { got = append(got, u) })

	svc.Invalidate(id)
	if _, ok := svc.Snapshot(id); ok {
		t.Error("snapshot should be dropped on invalidate")
	}
	if len(got) != 1 || got[0] != id {
		t.Errorf("subscriber saw %v", got)
	}

	cancel()
	svc.Invalidate(id)
	if len(got) != 1 {
		t.Errorf("cancelled subscriber still notified: %v", got)
	}
}
