package staking

import (
	"math/big"

	"github.com/stakedeck/stakedeck/pkg/types"
)

// MinimumNextStake returns the smallest amount the next stake may have: the
// tier-1 minimum for a user without stakes, otherwise the amount of the most
// recently created stake. The ratchet ignores whether that stake is still
// active.
func MinimumNextStake(history []types.Stake, cfg *types.ContractConfig) *big.Int {
	if len(history) == 0 {
		return new(big.Int).Set(cfg.Tier1)
	}

	latest := history[0]
	for _, s := range history[1:] {
		if s.ID > latest.ID || (s.ID == latest.ID && s.StartTime.After(latest.StartTime)) {
			latest = s
		}
	}
	if latest.Amount == nil {
		return new(big.Int).Set(cfg.Tier1)
	}
	return new(big.Int).Set(latest.Amount)
}

// EffectiveMinimum is the carry-forward floor for an entry in tier t. For
// custom amounts the floor is at least Tier3Min.
func EffectiveMinimum(history []types.Stake, cfg *types.ContractConfig, t Tier) *big.Int {
	floor := MinimumNextStake(history, cfg)
	if t == TierCustom && cfg.Tier3Min.Cmp(floor) > 0 {
		return new(big.Int).Set(cfg.Tier3Min)
	}
	return floor
}
