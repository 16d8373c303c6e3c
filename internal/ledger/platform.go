package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/pkg/types"
)

// PlatformContract binds the staking platform contract.
type PlatformContract struct {
	*boundContract
}

var (
	_ Reader     = (*PlatformContract)(nil)
	_ Transactor = (*PlatformContract)(nil)
	_ Admin      = (*PlatformContract)(nil)
)

// NewPlatformContract binds the platform contract at address.
func NewPlatformContract(backend Backend, address common.Address) (*PlatformContract, error) {
	bc, err := newBoundContract("platform", backend, address, StakingPlatformABI)
	if err != nil {
		return nil, err
	}
	return &PlatformContract{boundContract: bc}, nil
}

// Address returns the platform contract address (the token spender).
func (p *PlatformContract) Address() common.Address {
	return p.address
}

// ABI returns the parsed platform ABI, used to decode event logs.
func (p *PlatformContract) ABI() abi.ABI {
	return p.abi
}

// tuple layouts of getUserDashboard; field names follow the ABI components

type userInfoTuple struct {
	UserId           [5]byte
	Wallet           common.Address
	Referrer         common.Address
	RegistrationTime *big.Int
	IsActive         bool
}

type teamTuple struct {
	DirectReferrals         [][5]byte
	DirectCount             *big.Int
	QualifiedDirectCount    *big.Int
	DirectBusiness          *big.Int
	QualifiedDirectBusiness *big.Int
	TeamSize                *big.Int
	TeamBusiness            *big.Int
	UnlockedLevels          *big.Int
}

type incomeTuple struct {
	DirectIncome          *big.Int
	LevelIncome           *big.Int
	StakingIncome         *big.Int
	LifetimeRewardIncome  *big.Int
	TotalIncome           *big.Int
	AvailableBalance      *big.Int
	TotalWithdrawn        *big.Int
	LastClaimedRewardTier *big.Int
}

type statsTuple struct {
	TotalStaked        *big.Int
	ActiveStakedAmount *big.Int
	StakeCount         *big.Int
}

type stakeTuple struct {
	Id           *big.Int
	Amount       *big.Int
	Duration     *big.Int
	InterestRate *big.Int
	StartTime    *big.Int
	EndTime      *big.Int
	IsActive     bool
	IsClaimed    bool
}

// UserDashboard reads getUserDashboard.
func (p *PlatformContract) UserDashboard(ctx context.Context, id types.UserID) (*types.RawDashboard, error) {
	out, err := p.call(ctx, "getUserDashboard", [5]byte(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("getUserDashboard: expected 10 values, got %d", len(out))
	}

	info := *abi.ConvertType(out[0], new(userInfoTuple)).(*userInfoTuple)
	team := *abi.ConvertType(out[1], new(teamTuple)).(*teamTuple)
	income := *abi.ConvertType(out[2], new(incomeTuple)).(*incomeTuple)
	stats := *abi.ConvertType(out[3], new(statsTuple)).(*statsTuple)
	stakes := *abi.ConvertType(out[4], new([]stakeTuple)).(*[]stakeTuple)
	levels := *abi.ConvertType(out[6], new([20]bool)).(*[20]bool)

	raw := &types.RawDashboard{
		Profile: types.UserProfile{
			UserID:       types.UserID(info.UserId),
			Wallet:       info.Wallet,
			Referrer:     info.Referrer,
			RegisteredAt: types.TimeFromChain(info.RegistrationTime),
			IsActive:     info.IsActive,
		},
		Team: types.TeamSummary{
			DirectReferrals:         toUserIDs(team.DirectReferrals),
			DirectCount:             toUint64(team.DirectCount),
			QualifiedDirectCount:    toUint64(team.QualifiedDirectCount),
			DirectBusiness:          team.DirectBusiness,
			QualifiedDirectBusiness: team.QualifiedDirectBusiness,
			TeamSize:                toUint64(team.TeamSize),
			TeamBusiness:            team.TeamBusiness,
			UnlockedLevels:          toUint64(team.UnlockedLevels),
		},
		Income: types.IncomeLedger{
			DirectIncome:          income.DirectIncome,
			LevelIncome:           income.LevelIncome,
			StakingIncome:         income.StakingIncome,
			LifetimeRewardIncome:  income.LifetimeRewardIncome,
			TotalIncome:           income.TotalIncome,
			AvailableBalance:      income.AvailableBalance,
			TotalWithdrawn:        income.TotalWithdrawn,
			LastClaimedRewardTier: toUint64(income.LastClaimedRewardTier),
		},
		Stats: types.StakingStats{
			TotalStaked:        stats.TotalStaked,
			ActiveStakedAmount: stats.ActiveStakedAmount,
			StakeCount:         toUint64(stats.StakeCount),
		},
		UnlockedLevels: toUint64(bigOf(out[5])),
		LevelsUnlocked: levels,
		NextReward: types.RewardPreview{
			Tier:     toUint64(bigOf(out[7])),
			Eligible: boolOf(out[8]),
			Amount:   bigOf(out[9]),
		},
	}

	raw.Stakes = make([]types.Stake, len(stakes))
	for i, s := range stakes {
		raw.Stakes[i] = types.Stake{
			ID:           toUint64(s.Id),
			Amount:       s.Amount,
			Duration:     s.Duration,
			InterestRate: s.InterestRate,
			StartTime:    types.TimeFromChain(s.StartTime),
			EndTime:      types.TimeFromChain(s.EndTime),
			IsActive:     s.IsActive,
			IsClaimed:    s.IsClaimed,
		}
	}
	return raw, nil
}

// ContractStats reads getContractStats.
func (p *PlatformContract) ContractStats(ctx context.Context) (*types.ContractStats, error) {
	out, err := p.call(ctx, "getContractStats")
	if err != nil {
		return nil, err
	}
	if len(out) != 8 {
		return nil, fmt.Errorf("getContractStats: expected 8 values, got %d", len(out))
	}
	return &types.ContractStats{
		TotalUsers:           bigOf(out[0]),
		TotalStaked:          bigOf(out[1]),
		TotalWithdrawn:       bigOf(out[2]),
		TotalDirectIncome:    bigOf(out[3]),
		TotalLevelIncome:     bigOf(out[4]),
		TotalStakingIncome:   bigOf(out[5]),
		TotalLifetimeRewards: bigOf(out[6]),
		ContractBalance:      bigOf(out[7]),
	}, nil
}

// Partners reads getPartners.
func (p *PlatformContract) Partners(ctx context.Context) ([]types.Partner, error) {
	out, err := p.call(ctx, "getPartners")
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("getPartners: expected 2 values, got %d", len(out))
	}
	addrs := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	shares := *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)
	if len(addrs) != len(shares) {
		return nil, fmt.Errorf("getPartners: %d addresses but %d shares", len(addrs), len(shares))
	}

	partners := make([]types.Partner, len(addrs))
	for i := range addrs {
		partners[i] = types.Partner{Address: addrs[i], Share: shares[i]}
	}
	return partners, nil
}

// UserIDByAddress reads getUserIdByAddress. Unregistered wallets map to the zero ID.
func (p *PlatformContract) UserIDByAddress(ctx context.Context, addr common.Address) (types.UserID, error) {
	out, err := p.call(ctx, "getUserIdByAddress", addr)
	if err != nil {
		return types.UserID{}, err
	}
	return types.UserID(*abi.ConvertType(out[0], new([5]byte)).(*[5]byte)), nil
}

// AddressByUserID reads getUserByUserId.
func (p *PlatformContract) AddressByUserID(ctx context.Context, id types.UserID) (common.Address, error) {
	out, err := p.call(ctx, "getUserByUserId", [5]byte(id))
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// LevelsSummary reads getAllLevelsSummary.
func (p *PlatformContract) LevelsSummary(ctx context.Context, id types.UserID) (*types.LevelsSummary, error) {
	out, err := p.call(ctx, "getAllLevelsSummary", [5]byte(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("getAllLevelsSummary: expected 2 values, got %d", len(out))
	}
	counts := *abi.ConvertType(out[0], new([types.LevelCount]*big.Int)).(*[types.LevelCount]*big.Int)
	business := *abi.ConvertType(out[1], new([types.LevelCount]*big.Int)).(*[types.LevelCount]*big.Int)

	summary := &types.LevelsSummary{Business: business}
	for i, c := range counts {
		summary.Counts[i] = toUint64(c)
	}
	return summary, nil
}

// LevelUsers reads getLevelUsers.
func (p *PlatformContract) LevelUsers(ctx context.Context, id types.UserID, level uint8) (*types.LevelUsers, error) {
	out, err := p.call(ctx, "getLevelUsers", [5]byte(id), level)
	if err != nil {
		return nil, err
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("getLevelUsers: expected 2 values, got %d", len(out))
	}
	ids := *abi.ConvertType(out[0], new([][5]byte)).(*[][5]byte)
	amounts := *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)

	return &types.LevelUsers{
		Level:         level,
		UserIDs:       toUserIDs(ids),
		StakedAmounts: amounts,
	}, nil
}

// LifetimeRewardProgress reads getLifetimeRewardProgress.
func (p *PlatformContract) LifetimeRewardProgress(ctx context.Context, id types.UserID) (*types.RewardProgress, error) {
	out, err := p.call(ctx, "getLifetimeRewardProgress", [5]byte(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("getLifetimeRewardProgress: expected 4 values, got %d", len(out))
	}
	required := *abi.ConvertType(out[0], new([types.RewardTierCount]*big.Int)).(*[types.RewardTierCount]*big.Int)
	rewards := *abi.ConvertType(out[1], new([types.RewardTierCount]*big.Int)).(*[types.RewardTierCount]*big.Int)
	claimed := *abi.ConvertType(out[2], new([types.RewardTierCount]bool)).(*[types.RewardTierCount]bool)
	eligible := *abi.ConvertType(out[3], new([types.RewardTierCount]bool)).(*[types.RewardTierCount]bool)

	progress := &types.RewardProgress{Tiers: make([]types.RewardTierProgress, types.RewardTierCount)}
	for i := range progress.Tiers {
		progress.Tiers[i] = types.RewardTierProgress{
			Tier:     i + 1,
			Required: required[i],
			Reward:   rewards[i],
			Claimed:  claimed[i],
			Eligible: eligible[i],
		}
	}
	return progress, nil
}

// StakePayout reads getStakePayout: principal plus interest due on claim.
func (p *PlatformContract) StakePayout(ctx context.Context, id types.UserID, index uint64) (*big.Int, error) {
	return p.callUint(ctx, "getStakePayout", [5]byte(id), new(big.Int).SetUint64(index))
}

// ConfigValue reads a scalar config getter.
func (p *PlatformContract) ConfigValue(ctx context.Context, getter string) (*big.Int, error) {
	return p.callUint(ctx, getter)
}

// ConfigIndexed reads an indexed config getter.
func (p *PlatformContract) ConfigIndexed(ctx context.Context, getter string, index int) (*big.Int, error) {
	return p.callUint(ctx, getter, big.NewInt(int64(index)))
}

// LifetimeRewardTier reads lifetimeRewardTiers(index).
func (p *PlatformContract) LifetimeRewardTier(ctx context.Context, index int) (types.LifetimeRewardTier, error) {
	out, err := p.call(ctx, "lifetimeRewardTiers", big.NewInt(int64(index)))
	if err != nil {
		return types.LifetimeRewardTier{}, err
	}
	if len(out) != 2 {
		return types.LifetimeRewardTier{}, fmt.Errorf("lifetimeRewardTiers: expected 2 values, got %d", len(out))
	}
	return types.LifetimeRewardTier{RequiredBusiness: bigOf(out[0]), Reward: bigOf(out[1])}, nil
}

// Register registers the signer under referrer with a first stake.
func (p *PlatformContract) Register(ctx context.Context, referrer types.UserID, amount *big.Int, duration uint8) (*Receipt, error) {
	return p.transact(ctx, "register", [5]byte(referrer), amount, duration)
}

// Stake opens a new stake for id.
func (p *PlatformContract) Stake(ctx context.Context, id types.UserID, amount *big.Int, duration uint8) (*Receipt, error) {
	return p.transact(ctx, "stake", [5]byte(id), amount, duration)
}

// ClaimStake claims a matured stake into the available balance.
func (p *PlatformContract) ClaimStake(ctx context.Context, id types.UserID, index uint64) (*Receipt, error) {
	return p.transact(ctx, "claimStake", [5]byte(id), new(big.Int).SetUint64(index))
}

// ClaimAndRestake claims a matured stake and opens a new one funded from
// the payout and the wallet.
func (p *PlatformContract) ClaimAndRestake(ctx context.Context, id types.UserID, index uint64, fromPayout, fromWallet *big.Int, duration uint8) (*Receipt, error) {
	return p.transact(ctx, "claimAndRestake", [5]byte(id), new(big.Int).SetUint64(index), fromPayout, fromWallet, duration)
}

// Withdraw moves amount from the available balance to the wallet.
func (p *PlatformContract) Withdraw(ctx context.Context, id types.UserID, amount *big.Int) (*Receipt, error) {
	return p.transact(ctx, "withdraw", [5]byte(id), amount)
}

func (p *PlatformContract) SetDurations(ctx context.Context, durations [types.DurationCount]*big.Int) (*Receipt, error) {
	return p.transact(ctx, "setDurations", durations)
}

func (p *PlatformContract) SetInterestRates(ctx context.Context, rates [types.DurationCount]*big.Int) (*Receipt, error) {
	return p.transact(ctx, "setInterestRates", rates)
}

func (p *PlatformContract) SetStakingTiers(ctx context.Context, tier1, tier2, tier3Min, maxStake *big.Int) (*Receipt, error) {
	return p.transact(ctx, "setStakingTiers", tier1, tier2, tier3Min, maxStake)
}

func (p *PlatformContract) SetDirectIncomeConfig(ctx context.Context, percent, minStake *big.Int) (*Receipt, error) {
	return p.transact(ctx, "setDirectIncomeConfig", percent, minStake)
}

func (p *PlatformContract) SetLevelUnlockConfig(ctx context.Context, directs, minStake *big.Int) (*Receipt, error) {
	return p.transact(ctx, "setLevelUnlockConfig", directs, minStake)
}

func (p *PlatformContract) SetMinWithdrawal(ctx context.Context, amount *big.Int) (*Receipt, error) {
	return p.transact(ctx, "setMinWithdrawal", amount)
}

func (p *PlatformContract) SetPartners(ctx context.Context, partners []common.Address, shares []*big.Int) (*Receipt, error) {
	if len(partners) != len(shares) {
		return nil, fmt.Errorf("setPartners: %d partners but %d shares", len(partners), len(shares))
	}
	return p.transact(ctx, "setPartners", partners, shares)
}

func (p *PlatformContract) TransferFirstUser(ctx context.Context, wallet common.Address) (*Receipt, error) {
	return p.transact(ctx, "transferFirstUser", wallet)
}

func (p *PlatformContract) SetLevelIncomePercents(ctx context.Context, percents [types.LevelCount]*big.Int) (*Receipt, error) {
	return p.transact(ctx, "setLevelIncomePercents", percents)
}

func (p *PlatformContract) SetLifetimeRewardTier(ctx context.Context, index int, requiredBusiness, reward *big.Int) (*Receipt, error) {
	return p.transact(ctx, "setLifetimeRewardTier", big.NewInt(int64(index)), requiredBusiness, reward)
}

func (p *PlatformContract) EmergencyWithdraw(ctx context.Context, amount *big.Int) (*Receipt, error) {
	return p.transact(ctx, "emergencyWithdraw", amount)
}

func bigOf(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok {
		return b
	}
	return nil
}

func boolOf(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
