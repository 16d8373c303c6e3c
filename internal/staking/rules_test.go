package staking

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

func history(amounts ...string) []types.Stake {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.Stake, len(amounts))
	for i, a := range amounts {
		out[i] = types.Stake{
			ID:        uint64(i),
			Amount:    units.MustFixedPoint(a),
			StartTime: start.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestMinimumNextStake(t *testing.T) {
	cfg := ledger.DefaultMockConfig()

	tests := []struct {
		name    string
		history []types.Stake
		want    string
	}{
		{"no stakes uses tier1", nil, "5"},
		{"latest stake wins", history("5", "10", "25"), "25"},
		{"ratchet is not a maximum", history("25", "10", "5"), "5"},
		{"single stake", history("100"), "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinimumNextStake(tt.history, &cfg)
			if got.Cmp(units.MustFixedPoint(tt.want)) != 0 {
				t.Errorf("MinimumNextStake = %s, want %s", units.FormatFixed(got), tt.want)
			}
		})
	}
}

func TestMinimumNextStakeOrdersByID(t *testing.T) {
	cfg := ledger.DefaultMockConfig()
	h := history("5", "10", "25")
	h[0], h[2] = h[2], h[0]

	if got := MinimumNextStake(h, &cfg); got.Cmp(units.MustFixedPoint("25")) != 0 {
		t.Errorf("expected the highest ID to win regardless of slice order, got %s", units.FormatFixed(got))
	}

	got := MinimumNextStake(h, &cfg)
	got.SetInt64(0)
	if h[0].Amount.Sign() == 0 {
		t.Error("result must not alias the stake amount")
	}
}

func TestEffectiveMinimum(t *testing.T) {
	cfg := ledger.DefaultMockConfig()

	if got := EffectiveMinimum(history("25"), &cfg, TierCustom); got.Cmp(cfg.Tier3Min) != 0 {
		t.Errorf("custom tier floor should be Tier3Min, got %s", units.FormatFixed(got))
	}
	if got := EffectiveMinimum(history("800"), &cfg, TierCustom); got.Cmp(units.MustFixedPoint("800")) != 0 {
		t.Errorf("custom tier floor should keep a larger ratchet, got %s", units.FormatFixed(got))
	}
	if got := EffectiveMinimum(history("25"), &cfg, Tier1); got.Cmp(units.MustFixedPoint("25")) != 0 {
		t.Errorf("tier1 floor should be the ratchet, got %s", units.FormatFixed(got))
	}
}

func TestTiers(t *testing.T) {
	cfg := ledger.DefaultMockConfig()

	parse := map[string]Tier{"": TierAuto, "auto": TierAuto, "1": Tier1, "Tier2": Tier2, "custom": TierCustom, "3": TierCustom}
	for in, want := range parse {
		got, err := ParseTier(in)
		if err != nil || got != want {
			t.Errorf("ParseTier(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseTier("gold"); err == nil {
		t.Error("expected error for unknown tier")
	}

	band := []struct {
		tier   Tier
		amount string
		ok     bool
	}{
		{TierAuto, "5", true},
		{TierAuto, "4.99", false},
		{Tier2, "99", false},
		{Tier2, "100", true},
		{TierCustom, "499", false},
		{TierCustom, "50000", true},
		{TierCustom, "50000.01", false},
	}
	for _, b := range band {
		if got := InBand(&cfg, b.tier, units.MustFixedPoint(b.amount)); got != b.ok {
			t.Errorf("InBand(%s, %s) = %v, want %v", b.tier, b.amount, got, b.ok)
		}
	}
}

func TestRestakePlan(t *testing.T) {
	payout := units.MustFixedPoint("150")

	p, err := NewRestakePlan(payout, units.MustFixedPoint("100"), units.MustFixedPoint("25"))
	if err != nil {
		t.Fatal(err)
	}
	if p.NewStakeTotal.Cmp(units.MustFixedPoint("125")) != 0 {
		t.Errorf("new stake total = %s", units.FormatFixed(p.NewStakeTotal))
	}
	if p.ToAvailable.Cmp(units.MustFixedPoint("50")) != 0 {
		t.Errorf("to available = %s", units.FormatFixed(p.ToAvailable))
	}
	if p.PureClaim() {
		t.Error("plan restakes, not a pure claim")
	}

	zero, err := NewRestakePlan(payout, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !zero.PureClaim() || zero.ToAvailable.Cmp(payout) != 0 {
		t.Errorf("zero restake should credit the whole payout, got %+v", zero)
	}

	if _, err := NewRestakePlan(payout, units.MustFixedPoint("150.01"), nil); !errors.Is(err, ErrRestakeExceedsPayout) {
		t.Errorf("expected ErrRestakeExceedsPayout, got %v", err)
	}
	if _, err := NewRestakePlan(payout, big.NewInt(-1), nil); !errors.Is(err, units.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
