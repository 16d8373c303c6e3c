package types

import (
	"encoding/json"
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

func TestEncodeUserID(t *testing.T) {
	tests := []struct {
		in      string
		want    UserID
		wantErr bool
	}{
		{"3ABCD", UserID{'3', 'A', 'B', 'C', 'D'}, false},
		{"ab", UserID{'a', 'b', 0, 0, 0}, false},
		{"Z", UserID{'Z', 0, 0, 0, 0}, false},
		{"", UserID{}, true},
		{"ABCDEF", UserID{}, true},
		{"AB-C", UserID{}, true},
		{"AB C", UserID{}, true},
		{"é", UserID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := EncodeUserID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidUserID) {
					t.Fatalf("expected ErrInvalidUserID, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeUserID(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("round trip: got %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestUserID_ZeroAndValid(t *testing.T) {
	var zero UserID
	if !zero.IsZero() || zero.Valid() {
		t.Error("zero id should be IsZero and not Valid")
	}
	if zero.String() != "" {
		t.Errorf("zero id should decode to empty string, got %q", zero.String())
	}

	if !MustUserID("3ABCD").Valid() {
		t.Error("encoded id should be valid")
	}

	gap := UserID{'A', 0, 'B', 0, 0}
	if gap.Valid() {
		t.Error("id with interior padding should not be valid")
	}
}

func TestUserID_JSON(t *testing.T) {
	in := struct {
		ID UserID `json:"id"`
	}{ID: MustUserID("x9Y")}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"x9Y"}` {
		t.Errorf("unexpected json: %s", data)
	}

	var out struct {
		ID UserID `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"id":"bad id"}`), &out); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestIncomeLedger_SumRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		parts := make([]*big.Int, 4)
		want := new(big.Int)
		for j := range parts {
			parts[j] = new(big.Int).Mul(big.NewInt(rng.Int63n(1_000_000)), big.NewInt(1e12))
			want.Add(want, parts[j])
		}
		withdrawn := new(big.Int).Div(want, big.NewInt(3))
		available := new(big.Int).Sub(want, withdrawn)

		l := IncomeLedger{
			DirectIncome:         parts[0],
			LevelIncome:          parts[1],
			StakingIncome:        parts[2],
			LifetimeRewardIncome: parts[3],
			TotalIncome:          new(big.Int).Set(want),
			TotalWithdrawn:       withdrawn,
			AvailableBalance:     available,
		}
		if l.Sum().Cmp(want) != 0 {
			t.Fatalf("case %d: Sum() = %s, want %s", i, l.Sum(), want)
		}
		if !l.Consistent() {
			t.Fatalf("case %d: ledger should be consistent", i)
		}
	}
}

func TestIncomeLedger_Inconsistent(t *testing.T) {
	l := IncomeLedger{
		DirectIncome:     big.NewInt(10),
		TotalIncome:      big.NewInt(10),
		TotalWithdrawn:   big.NewInt(4),
		AvailableBalance: big.NewInt(7),
	}
	if l.Consistent() {
		t.Error("available balance above headroom should be inconsistent")
	}

	l.AvailableBalance = big.NewInt(6)
	l.TotalIncome = big.NewInt(11)
	if l.Consistent() {
		t.Error("total income not matching sum should be inconsistent")
	}

	var empty IncomeLedger
	if empty.Sum().Sign() != 0 || !empty.Consistent() {
		t.Error("empty ledger should sum to zero and be consistent")
	}
}

func completeConfig() *ContractConfig {
	one := big.NewInt(1)
	c := &ContractConfig{
		Tier1: one, Tier2: one, Tier3Min: one, MaxStake: one,
		DirectIncomePercent: one, DirectIncomeMinStake: one,
		LevelUnlockDirects: one, LevelUnlockMinStake: one, MinWithdrawal: one,
	}
	for i := range c.LevelIncomePercents {
		c.LevelIncomePercents[i] = one
	}
	for i := range c.LifetimeRewardTiers {
		c.LifetimeRewardTiers[i] = LifetimeRewardTier{RequiredBusiness: one, Reward: one}
	}
	for i := range c.Durations {
		c.Durations[i] = one
		c.InterestRates[i] = one
	}
	return c
}

func TestContractConfig_Complete(t *testing.T) {
	var nilCfg *ContractConfig
	if nilCfg.Complete() {
		t.Error("nil config should not be complete")
	}

	if !completeConfig().Complete() {
		t.Fatal("fully populated config should be complete")
	}

	tests := map[string]func(c *ContractConfig){
		"scalar":        func(c *ContractConfig) { c.MinWithdrawal = nil },
		"last level":    func(c *ContractConfig) { c.LevelIncomePercents[19] = nil },
		"reward reward": func(c *ContractConfig) { c.LifetimeRewardTiers[5].Reward = nil },
		"interest rate": func(c *ContractConfig) { c.InterestRates[3] = nil },
	}
	for name, mutate := range tests {
		c := completeConfig()
		mutate(c)
		if c.Complete() {
			t.Errorf("%s: config missing a field should not be complete", name)
		}
	}
}

func TestTimeFromChain(t *testing.T) {
	if !TimeFromChain(nil).IsZero() || !TimeFromChain(big.NewInt(0)).IsZero() {
		t.Error("nil and zero should map to zero time")
	}
	if got := TimeFromChain(big.NewInt(1_700_000_000)).Unix(); got != 1_700_000_000 {
		t.Errorf("unexpected unix time %d", got)
	}
}
