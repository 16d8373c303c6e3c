package guard

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/units"
)

var owner = common.HexToAddress("0x1000000000000000000000000000000000000001")

func TestAllowanceGating(t *testing.T) {
	m := ledger.NewMockPlatform(owner)
	m.SetNativeBalance(owner, units.MustFixedPoint("1"))
	ctx := context.Background()

	a := NewAllowance(m, owner, ledger.MockPlatformAddress)
	amount := units.MustFixedPoint("100")

	if a.Current() != nil {
		t.Fatal("allowance should start unknown")
	}
	if !a.NeedsApproval(amount) {
		t.Fatal("unknown allowance must need approval")
	}

	if err := a.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if a.Current().Sign() != 0 || !a.NeedsApproval(amount) {
		t.Fatal("zero allowance must need approval")
	}

	if !a.Approve(ctx, amount) {
		t.Fatal("approve should succeed")
	}
	if a.Current().Cmp(amount) != 0 {
		t.Fatalf("allowance = %s, want exactly %s", a.Current(), amount)
	}
	if a.NeedsApproval(amount) {
		t.Error("approval of exactly amount should satisfy amount")
	}
	if !a.NeedsApproval(new(big.Int).Add(amount, big.NewInt(1))) {
		t.Error("amount+1 should still need approval")
	}
	if a.NeedsApproval(units.MustFixedPoint("50")) {
		t.Error("smaller amount should not need approval")
	}
}

func TestAllowanceApproveFailure(t *testing.T) {
	m := ledger.NewMockPlatform(owner)
	m.SetNativeBalance(owner, units.MustFixedPoint("1"))
	ctx := context.Background()
	a := NewAllowance(m, owner, ledger.MockPlatformAddress)

	m.FailNext("approve", errors.New("user rejected"))
	if a.Approve(ctx, big.NewInt(5)) {
		t.Fatal("approve should report failure")
	}

	m.FailNext("allowance", errors.New("timeout"))
	if a.Approve(ctx, big.NewInt(5)) {
		t.Fatal("approve must fail when the post-confirmation refetch fails")
	}
	if a.Current() != nil {
		t.Error("failed refresh should leave the allowance unknown")
	}
}

func TestAllowanceApproveReceipt(t *testing.T) {
	tests := []struct {
		name        string
		fail        string
		wantOK      bool
		wantReceipt bool
	}{
		{name: "confirmed", wantOK: true, wantReceipt: true},
		{name: "rejected", fail: "approve", wantOK: false, wantReceipt: false},
		{name: "mined but refetch failed", fail: "allowance", wantOK: false, wantReceipt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ledger.NewMockPlatform(owner)
			m.SetNativeBalance(owner, units.MustFixedPoint("1"))
			a := NewAllowance(m, owner, ledger.MockPlatformAddress)
			if tt.fail != "" {
				m.FailNext(tt.fail, errors.New("boom"))
			}

			receipt, ok := a.ApproveReceipt(context.Background(), big.NewInt(7))
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if (receipt != nil) != tt.wantReceipt {
				t.Fatalf("receipt = %+v, want present=%v", receipt, tt.wantReceipt)
			}
			if receipt != nil && receipt.TxHash == (common.Hash{}) {
				t.Error("receipt has no tx hash")
			}
		})
	}
}

func TestBalancesFailClosed(t *testing.T) {
	m := ledger.NewMockPlatform(owner)
	b := NewBalances(m, m, owner, nil)
	ctx := context.Background()

	if b.HasEnoughGas() || b.HasEnoughStable(big.NewInt(0)) {
		t.Fatal("unknown balances must fail closed")
	}
	if b.MinGasReserve().Cmp(units.MustFixedPoint("0.003")) != 0 {
		t.Errorf("default reserve = %s", b.MinGasReserve())
	}

	m.SetNativeBalance(owner, units.MustFixedPoint("0.003"))
	m.SetStableBalance(owner, units.MustFixedPoint("100"))
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if !b.HasEnoughGas() {
		t.Error("balance equal to reserve should be enough")
	}
	if !b.HasEnoughStable(units.MustFixedPoint("100")) || b.HasEnoughStable(units.MustFixedPoint("100.01")) {
		t.Error("stable comparison wrong")
	}

	m.SetNativeBalance(owner, units.MustFixedPoint("0.0029"))
	m.FailNext("balanceOf", errors.New("connection refused"))
	if err := b.Refresh(ctx); err == nil {
		t.Fatal("expected stable read error")
	}
	if b.HasEnoughGas() {
		t.Error("native below reserve should not be enough")
	}
	if b.Stable() != nil || b.HasEnoughStable(big.NewInt(0)) {
		t.Error("failed stable read must leave the balance unknown")
	}
	if b.Native() == nil {
		t.Error("native balance should still be known")
	}
}

func TestBalancesCustomReserve(t *testing.T) {
	m := ledger.NewMockPlatform(owner)
	m.SetNativeBalance(owner, big.NewInt(10))
	b := NewBalances(m, m, owner, big.NewInt(11))
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.HasEnoughGas() {
		t.Error("10 wei should not cover an 11 wei reserve")
	}
}
