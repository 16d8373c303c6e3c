package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// LevelCount is the depth of the level income table.
	LevelCount = 20
	// RewardTierCount is the number of lifetime reward tiers.
	RewardTierCount = 6
	// DurationCount is the number of duration/interest-rate options.
	DurationCount = 4
)

// LifetimeRewardTier is one row of the lifetime reward table.
type LifetimeRewardTier struct {
	RequiredBusiness *big.Int `json:"required_business"`
	Reward           *big.Int `json:"reward"`
}

// ContractConfig is the global platform configuration set by admin
// transactions. Percent fields use the contract's own scale.
type ContractConfig struct {
	Tier1                *big.Int `json:"tier1"`
	Tier2                *big.Int `json:"tier2"`
	Tier3Min             *big.Int `json:"tier3_min"`
	MaxStake             *big.Int `json:"max_stake"`
	DirectIncomePercent  *big.Int `json:"direct_income_percent"`
	DirectIncomeMinStake *big.Int `json:"direct_income_min_stake"`
	LevelUnlockDirects   *big.Int `json:"level_unlock_directs"`
	LevelUnlockMinStake  *big.Int `json:"level_unlock_min_stake"`
	MinWithdrawal        *big.Int `json:"min_withdrawal"`

	LevelIncomePercents [LevelCount]*big.Int                `json:"level_income_percents"`
	LifetimeRewardTiers [RewardTierCount]LifetimeRewardTier `json:"lifetime_reward_tiers"`
	Durations           [DurationCount]*big.Int             `json:"durations"`
	InterestRates       [DurationCount]*big.Int             `json:"interest_rates"`
}

// Complete reports whether every field has been loaded. A config that is
// not complete must be treated as still loading, never as zero.
func (c *ContractConfig) Complete() bool {
	if c == nil {
		return false
	}
	for _, v := range []*big.Int{
		c.Tier1, c.Tier2, c.Tier3Min, c.MaxStake,
		c.DirectIncomePercent, c.DirectIncomeMinStake,
		c.LevelUnlockDirects, c.LevelUnlockMinStake, c.MinWithdrawal,
	} {
		if v == nil {
			return false
		}
	}
	for _, v := range c.LevelIncomePercents {
		if v == nil {
			return false
		}
	}
	for _, t := range c.LifetimeRewardTiers {
		if t.RequiredBusiness == nil || t.Reward == nil {
			return false
		}
	}
	for i := range c.Durations {
		if c.Durations[i] == nil || c.InterestRates[i] == nil {
			return false
		}
	}
	return true
}

// ValidDuration reports whether idx selects one of the duration options.
func (c *ContractConfig) ValidDuration(idx uint8) bool {
	return int(idx) < DurationCount
}

// ContractStats are platform-wide totals.
type ContractStats struct {
	TotalUsers           *big.Int `json:"total_users"`
	TotalStaked          *big.Int `json:"total_staked"`
	TotalWithdrawn       *big.Int `json:"total_withdrawn"`
	TotalDirectIncome    *big.Int `json:"total_direct_income"`
	TotalLevelIncome     *big.Int `json:"total_level_income"`
	TotalStakingIncome   *big.Int `json:"total_staking_income"`
	TotalLifetimeRewards *big.Int `json:"total_lifetime_rewards"`
	ContractBalance      *big.Int `json:"contract_balance"`
}

// Partner is a revenue-share recipient.
type Partner struct {
	Address common.Address `json:"address"`
	Share   *big.Int       `json:"share"`
}

// LevelsSummary holds per-level member counts and business volume.
type LevelsSummary struct {
	Counts   [LevelCount]uint64   `json:"counts"`
	Business [LevelCount]*big.Int `json:"business"`
}

// LevelUsers lists the members of one level of a user's tree.
type LevelUsers struct {
	Level         uint8      `json:"level"`
	UserIDs       []UserID   `json:"user_ids"`
	StakedAmounts []*big.Int `json:"staked_amounts"`
}

// RewardTierProgress is one tier of a user's lifetime reward progress.
type RewardTierProgress struct {
	Tier     int      `json:"tier"`
	Required *big.Int `json:"required"`
	Reward   *big.Int `json:"reward"`
	Claimed  bool     `json:"claimed"`
	Eligible bool     `json:"eligible"`
}

// RewardProgress is a user's lifetime reward progress across all tiers.
type RewardProgress struct {
	Tiers []RewardTierProgress `json:"tiers"`
}
