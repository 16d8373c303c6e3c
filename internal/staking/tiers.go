package staking

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/stakedeck/stakedeck/pkg/types"
)

// Tier selects the lower bound of the stake amount band.
type Tier int

const (
	// TierAuto accepts any amount between the tier-1 minimum and the maximum.
	TierAuto Tier = iota
	Tier1
	Tier2
	// TierCustom is the free-amount tier starting at Tier3Min.
	TierCustom
)

func (t Tier) String() string {
	switch t {
	case TierAuto:
		return "auto"
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case TierCustom:
		return "custom"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier accepts auto, 1, 2, 3, tier1, tier2, tier3 and custom.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return TierAuto, nil
	case "1", "tier1":
		return Tier1, nil
	case "2", "tier2":
		return Tier2, nil
	case "3", "tier3", "custom":
		return TierCustom, nil
	default:
		return TierAuto, fmt.Errorf("unknown tier %q", s)
	}
}

// TierMinimum returns the lower bound of the band for t.
func TierMinimum(cfg *types.ContractConfig, t Tier) *big.Int {
	switch t {
	case Tier2:
		return cfg.Tier2
	case TierCustom:
		return cfg.Tier3Min
	default:
		return cfg.Tier1
	}
}

// InBand reports whether amount lies in [TierMinimum(t), MaxStake].
func InBand(cfg *types.ContractConfig, t Tier, amount *big.Int) bool {
	return amount.Cmp(TierMinimum(cfg, t)) >= 0 && amount.Cmp(cfg.MaxStake) <= 0
}
