// Package ledger is the boundary to the staking platform contract and its
// stable token: ABI bindings, an in-memory mock ledger, and the read gateway
// that turns raw contract reads into typed records.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/pkg/types"
)

var (
	// ErrNotEnabled marks a read skipped because its key was malformed.
	ErrNotEnabled = errors.New("read not enabled")
	// ErrPending marks a composite read that has not fully resolved yet.
	ErrPending = errors.New("still loading")
	// ErrNotRegistered is returned for user IDs the contract does not know.
	ErrNotRegistered = errors.New("user not registered")
)

// Config getter names on the platform contract.
const (
	GetterTier1                = "stakingTier1"
	GetterTier2                = "stakingTier2"
	GetterTier3Min             = "stakingTier3Min"
	GetterMaxStake             = "stakingMax"
	GetterDirectIncomePercent  = "directIncomePercent"
	GetterDirectIncomeMinStake = "directIncomeMinStake"
	GetterLevelUnlockDirects   = "levelUnlockDirects"
	GetterLevelUnlockMinStake  = "levelUnlockMinStake"
	GetterMinWithdrawal        = "minWithdrawal"

	GetterLevelIncomePercent = "levelIncomePercent"
	GetterDurations          = "durations"
	GetterInterestRates      = "interestRates"
)

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

// Reader is the raw read surface of the platform contract. Every method is
// a single contract call without side effects.
type Reader interface {
	UserDashboard(ctx context.Context, id types.UserID) (*types.RawDashboard, error)
	ContractStats(ctx context.Context) (*types.ContractStats, error)
	Partners(ctx context.Context) ([]types.Partner, error)
	UserIDByAddress(ctx context.Context, addr common.Address) (types.UserID, error)
	AddressByUserID(ctx context.Context, id types.UserID) (common.Address, error)
	LevelsSummary(ctx context.Context, id types.UserID) (*types.LevelsSummary, error)
	LevelUsers(ctx context.Context, id types.UserID, level uint8) (*types.LevelUsers, error)
	LifetimeRewardProgress(ctx context.Context, id types.UserID) (*types.RewardProgress, error)
	StakePayout(ctx context.Context, id types.UserID, index uint64) (*big.Int, error)

	// ConfigValue reads a scalar getter such as GetterTier1.
	ConfigValue(ctx context.Context, getter string) (*big.Int, error)
	// ConfigIndexed reads an indexed getter such as GetterDurations.
	ConfigIndexed(ctx context.Context, getter string, index int) (*big.Int, error)
	LifetimeRewardTier(ctx context.Context, index int) (types.LifetimeRewardTier, error)
}

// Transactor submits the value-moving user actions. Each call sends one
// transaction and returns once it is confirmed.
type Transactor interface {
	Register(ctx context.Context, referrer types.UserID, amount *big.Int, duration uint8) (*Receipt, error)
	Stake(ctx context.Context, id types.UserID, amount *big.Int, duration uint8) (*Receipt, error)
	ClaimStake(ctx context.Context, id types.UserID, index uint64) (*Receipt, error)
	ClaimAndRestake(ctx context.Context, id types.UserID, index uint64, fromPayout, fromWallet *big.Int, duration uint8) (*Receipt, error)
	Withdraw(ctx context.Context, id types.UserID, amount *big.Int) (*Receipt, error)
}

// Admin is the owner-only configuration surface.
type Admin interface {
	SetDurations(ctx context.Context, durations [types.DurationCount]*big.Int) (*Receipt, error)
	SetInterestRates(ctx context.Context, rates [types.DurationCount]*big.Int) (*Receipt, error)
	SetStakingTiers(ctx context.Context, tier1, tier2, tier3Min, maxStake *big.Int) (*Receipt, error)
	SetDirectIncomeConfig(ctx context.Context, percent, minStake *big.Int) (*Receipt, error)
	SetLevelUnlockConfig(ctx context.Context, directs, minStake *big.Int) (*Receipt, error)
	SetMinWithdrawal(ctx context.Context, amount *big.Int) (*Receipt, error)
	SetPartners(ctx context.Context, partners []common.Address, shares []*big.Int) (*Receipt, error)
	TransferFirstUser(ctx context.Context, wallet common.Address) (*Receipt, error)
	SetLevelIncomePercents(ctx context.Context, percents [types.LevelCount]*big.Int) (*Receipt, error)
	SetLifetimeRewardTier(ctx context.Context, index int, requiredBusiness, reward *big.Int) (*Receipt, error)
	EmergencyWithdraw(ctx context.Context, amount *big.Int) (*Receipt, error)
}

// Token is the stable token used to fund stakes.
type Token interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (*Receipt, error)
}

// ParseAddress validates a hex address string. Malformed and zero
// addresses are ErrNotEnabled.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: malformed address %q", ErrNotEnabled, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrNotEnabled)
	}
	return addr, nil
}

// ParseUserID validates a user ID string, mapping failures to ErrNotEnabled.
func ParseUserID(s string) (types.UserID, error) {
	id, err := types.EncodeUserID(s)
	if err != nil {
		return types.UserID{}, fmt.Errorf("%w: %w", ErrNotEnabled, err)
	}
	return id, nil
}
