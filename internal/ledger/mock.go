package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// Default mock deployment addresses.
var (
	MockPlatformAddress = common.HexToAddress("0x00000000000000000000000000000000005a4b01")
	MockTokenAddress    = common.HexToAddress("0x00000000000000000000000000000000005a4b02")
)

// interest rates in the mock ledger are basis points of the principal
const mockRateScale = 10000

// MockPlatform is an in-memory platform contract and stable token acting for
// a single signer. It backs tests and --mock mode. Every write is recorded
// in Calls and can be made to fail with FailNext.
type MockPlatform struct {
	mu sync.RWMutex

	owner   common.Address
	now     func() time.Time
	gasCost *big.Int

	config   types.ContractConfig
	users    map[types.UserID]*mockUser
	byWallet map[common.Address]types.UserID
	order    []types.UserID
	partners []types.Partner
	stats    types.ContractStats
	nextID   int

	stable     map[common.Address]*big.Int
	native     map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	block uint64
	calls []string

	failMu   sync.Mutex
	failures map[string]error
}

type mockUser struct {
	profile types.UserProfile
	team    types.TeamSummary
	income  types.IncomeLedger
	stakes  []types.Stake
}

var (
	_ Reader     = (*MockPlatform)(nil)
	_ Transactor = (*MockPlatform)(nil)
	_ Admin      = (*MockPlatform)(nil)
	_ Token      = (*MockPlatform)(nil)
)

// DefaultMockConfig returns the configuration the mock ledger starts with.
func DefaultMockConfig() types.ContractConfig {
	day := int64(24 * 60 * 60)
	cfg := types.ContractConfig{
		Tier1:                units.MustFixedPoint("5"),
		Tier2:                units.MustFixedPoint("100"),
		Tier3Min:             units.MustFixedPoint("500"),
		MaxStake:             units.MustFixedPoint("50000"),
		DirectIncomePercent:  big.NewInt(5),
		DirectIncomeMinStake: units.MustFixedPoint("50"),
		LevelUnlockDirects:   big.NewInt(1),
		LevelUnlockMinStake:  units.MustFixedPoint("100"),
		MinWithdrawal:        units.MustFixedPoint("10"),
		Durations: [types.DurationCount]*big.Int{
			big.NewInt(30 * day), big.NewInt(90 * day), big.NewInt(180 * day), big.NewInt(365 * day),
		},
		InterestRates: [types.DurationCount]*big.Int{
			big.NewInt(300), big.NewInt(1000), big.NewInt(2200), big.NewInt(5000),
		},
	}
	levelPercents := []int64{10, 5, 3, 2, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	for i, p := range levelPercents {
		cfg.LevelIncomePercents[i] = big.NewInt(p)
	}
	rewardBusiness := []string{"5000", "25000", "100000", "500000", "2500000", "10000000"}
	rewardAmounts := []string{"100", "500", "2500", "10000", "50000", "250000"}
	for i := range cfg.LifetimeRewardTiers {
		cfg.LifetimeRewardTiers[i] = types.LifetimeRewardTier{
			RequiredBusiness: units.MustFixedPoint(rewardBusiness[i]),
			Reward:           units.MustFixedPoint(rewardAmounts[i]),
		}
	}
	return cfg
}

// NewMockPlatform creates an empty mock ledger whose transactions are signed by owner.
func NewMockPlatform(owner common.Address) *MockPlatform {
	return &MockPlatform{
		owner:      owner,
		now:        time.Now,
		gasCost:    units.MustFixedPoint("0.0005"),
		config:     DefaultMockConfig(),
		users:      make(map[types.UserID]*mockUser),
		byWallet:   make(map[common.Address]types.UserID),
		stable:     make(map[common.Address]*big.Int),
		native:     make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		failures:   make(map[string]error),
		nextID:     1,
		stats: types.ContractStats{
			TotalUsers:           new(big.Int),
			TotalStaked:          new(big.Int),
			TotalWithdrawn:       new(big.Int),
			TotalDirectIncome:    new(big.Int),
			TotalLevelIncome:     new(big.Int),
			TotalStakingIncome:   new(big.Int),
			TotalLifetimeRewards: new(big.Int),
			ContractBalance:      new(big.Int),
		},
	}
}

// Address returns the mock platform address, which is the token spender.
func (m *MockPlatform) Address() common.Address { return MockPlatformAddress }

// TokenAddress returns the mock stable token address.
func (m *MockPlatform) TokenAddress() common.Address { return MockTokenAddress }

// Owner returns the signer of mock transactions.
func (m *MockPlatform) Owner() common.Address { return m.owner }

// SetClock replaces the mock's notion of now.
func (m *MockPlatform) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetConfig replaces the contract configuration.
func (m *MockPlatform) SetConfig(cfg types.ContractConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// SetStableBalance sets the stable token balance of addr.
func (m *MockPlatform) SetStableBalance(addr common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stable[addr] = new(big.Int).Set(amount)
}

// SetNativeBalance sets the native coin balance of addr.
func (m *MockPlatform) SetNativeBalance(addr common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native[addr] = new(big.Int).Set(amount)
}

// SetAllowance sets the allowance of owner towards spender.
func (m *MockPlatform) SetAllowance(owner, spender common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAllowance(owner, spender, amount)
}

// SeedUser registers id for wallet without a transaction, optionally under
// referrer. Used to stand up a referral root.
func (m *MockPlatform) SeedUser(id types.UserID, wallet common.Address, referrer types.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[id]; exists {
		return fmt.Errorf("user %s already exists", id)
	}
	if _, exists := m.byWallet[wallet]; exists {
		return fmt.Errorf("wallet %s already registered", wallet.Hex())
	}
	if referrer.IsZero() {
		m.addUser(id, wallet, common.Address{})
		return nil
	}
	ref, ok := m.users[referrer]
	if !ok {
		return fmt.Errorf("referrer %s not found", referrer)
	}
	m.addUser(id, wallet, ref.profile.Wallet)
	ref.team.DirectReferrals = append(ref.team.DirectReferrals, id)
	ref.team.DirectCount++
	return nil
}

// AddStake appends a stake to id's history without a transaction.
func (m *MockPlatform) AddStake(id types.UserID, amount *big.Int, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	m.openStake(u, amount, end.Sub(start), big.NewInt(0), start)
	return nil
}

// FailNext makes the next call of method return err. method is the
// contract function name, e.g. "approve" or "stake".
func (m *MockPlatform) FailNext(method string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failures[method] = err
}

// Calls returns the contract functions invoked so far, in order.
func (m *MockPlatform) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// --- reads ---

// UserDashboard returns an empty record for unknown IDs, like the contract.
func (m *MockPlatform) UserDashboard(_ context.Context, id types.UserID) (*types.RawDashboard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("getUserDashboard"); err != nil {
		return nil, err
	}

	u, ok := m.users[id]
	if !ok {
		return &types.RawDashboard{}, nil
	}

	raw := &types.RawDashboard{
		Profile: u.profile,
		Team:    u.team,
		Income:  u.income,
		Stats: types.StakingStats{
			TotalStaked:        new(big.Int),
			ActiveStakedAmount: new(big.Int),
			StakeCount:         uint64(len(u.stakes)),
		},
		Stakes:         append([]types.Stake(nil), u.stakes...),
		UnlockedLevels: u.team.UnlockedLevels,
	}
	raw.Team.DirectReferrals = append([]types.UserID(nil), u.team.DirectReferrals...)
	for _, s := range u.stakes {
		raw.Stats.TotalStaked.Add(raw.Stats.TotalStaked, s.Amount)
		if s.IsActive {
			raw.Stats.ActiveStakedAmount.Add(raw.Stats.ActiveStakedAmount, s.Amount)
		}
	}
	for i := 0; i < int(u.team.UnlockedLevels) && i < types.LevelCount; i++ {
		raw.LevelsUnlocked[i] = true
	}

	next := int(u.income.LastClaimedRewardTier)
	if next < types.RewardTierCount {
		tier := m.config.LifetimeRewardTiers[next]
		raw.NextReward = types.RewardPreview{
			Tier:     uint64(next + 1),
			Eligible: tier.RequiredBusiness != nil && orZero(u.team.TeamBusiness).Cmp(tier.RequiredBusiness) >= 0,
			Amount:   tier.Reward,
		}
	}
	return raw, nil
}

func (m *MockPlatform) ContractStats(_ context.Context) (*types.ContractStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("getContractStats"); err != nil {
		return nil, err
	}
	s := m.stats
	return &s, nil
}

func (m *MockPlatform) Partners(_ context.Context) ([]types.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Partner(nil), m.partners...), nil
}

func (m *MockPlatform) UserIDByAddress(_ context.Context, addr common.Address) (types.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("getUserIdByAddress"); err != nil {
		return types.UserID{}, err
	}
	return m.byWallet[addr], nil
}

func (m *MockPlatform) AddressByUserID(_ context.Context, id types.UserID) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("getUserByUserId"); err != nil {
		return common.Address{}, err
	}
	if u, ok := m.users[id]; ok {
		return u.profile.Wallet, nil
	}
	return common.Address{}, nil
}

func (m *MockPlatform) LevelsSummary(_ context.Context, id types.UserID) (*types.LevelsSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := &types.LevelsSummary{}
	for i := range summary.Business {
		summary.Business[i] = new(big.Int)
	}
	for depth, members := range m.levels(id) {
		summary.Counts[depth] = uint64(len(members))
		for _, member := range members {
			summary.Business[depth].Add(summary.Business[depth], m.activeStake(member))
		}
	}
	return summary, nil
}

func (m *MockPlatform) LevelUsers(_ context.Context, id types.UserID, level uint8) (*types.LevelUsers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := &types.LevelUsers{Level: level}
	if level < 1 || level > types.LevelCount {
		return out, nil
	}
	for _, member := range m.levels(id)[level-1] {
		out.UserIDs = append(out.UserIDs, member)
		out.StakedAmounts = append(out.StakedAmounts, m.activeStake(member))
	}
	return out, nil
}

func (m *MockPlatform) LifetimeRewardProgress(_ context.Context, id types.UserID) (*types.RewardProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	progress := &types.RewardProgress{Tiers: make([]types.RewardTierProgress, types.RewardTierCount)}
	for i, tier := range m.config.LifetimeRewardTiers {
		p := types.RewardTierProgress{Tier: i + 1, Required: tier.RequiredBusiness, Reward: tier.Reward}
		if ok {
			p.Claimed = uint64(i) < u.income.LastClaimedRewardTier
			p.Eligible = !p.Claimed && tier.RequiredBusiness != nil &&
				orZero(u.team.TeamBusiness).Cmp(tier.RequiredBusiness) >= 0
		}
		progress.Tiers[i] = p
	}
	return progress, nil
}

func (m *MockPlatform) StakePayout(_ context.Context, id types.UserID, index uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("getStakePayout"); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok || index >= uint64(len(u.stakes)) {
		return nil, revert("invalid stake index")
	}
	return payoutOf(u.stakes[index]), nil
}

func (m *MockPlatform) ConfigValue(_ context.Context, getter string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure(getter); err != nil {
		return nil, err
	}
	var v *big.Int
	switch getter {
	case GetterTier1:
		v = m.config.Tier1
	case GetterTier2:
		v = m.config.Tier2
	case GetterTier3Min:
		v = m.config.Tier3Min
	case GetterMaxStake:
		v = m.config.MaxStake
	case GetterDirectIncomePercent:
		v = m.config.DirectIncomePercent
	case GetterDirectIncomeMinStake:
		v = m.config.DirectIncomeMinStake
	case GetterLevelUnlockDirects:
		v = m.config.LevelUnlockDirects
	case GetterLevelUnlockMinStake:
		v = m.config.LevelUnlockMinStake
	case GetterMinWithdrawal:
		v = m.config.MinWithdrawal
	default:
		return nil, fmt.Errorf("unknown getter %q", getter)
	}
	return copyBig(v), nil
}

func (m *MockPlatform) ConfigIndexed(_ context.Context, getter string, index int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure(getter); err != nil {
		return nil, err
	}
	switch getter {
	case GetterLevelIncomePercent:
		if index >= 0 && index < types.LevelCount {
			return copyBig(m.config.LevelIncomePercents[index]), nil
		}
	case GetterDurations:
		if index >= 0 && index < types.DurationCount {
			return copyBig(m.config.Durations[index]), nil
		}
	case GetterInterestRates:
		if index >= 0 && index < types.DurationCount {
			return copyBig(m.config.InterestRates[index]), nil
		}
	default:
		return nil, fmt.Errorf("unknown getter %q", getter)
	}
	return nil, revert("index out of range")
}

func (m *MockPlatform) LifetimeRewardTier(_ context.Context, index int) (types.LifetimeRewardTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("lifetimeRewardTiers"); err != nil {
		return types.LifetimeRewardTier{}, err
	}
	if index < 0 || index >= types.RewardTierCount {
		return types.LifetimeRewardTier{}, revert("index out of range")
	}
	t := m.config.LifetimeRewardTiers[index]
	return types.LifetimeRewardTier{RequiredBusiness: copyBig(t.RequiredBusiness), Reward: copyBig(t.Reward)}, nil
}

// --- token ---

func (m *MockPlatform) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("balanceOf"); err != nil {
		return nil, err
	}
	return copyBig(orZero(m.stable[account])), nil
}

func (m *MockPlatform) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("allowance"); err != nil {
		return nil, err
	}
	return copyBig(orZero(m.allowances[owner][spender])), nil
}

// Approve sets the signer's allowance for spender to exactly amount.
func (m *MockPlatform) Approve(_ context.Context, spender common.Address, amount *big.Int) (*Receipt, error) {
	return m.transact("approve", func() error {
		m.setAllowance(m.owner, spender, amount)
		return nil
	})
}

// NativeBalance returns the native coin balance of addr.
func (m *MockPlatform) NativeBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.takeFailure("eth_getBalance"); err != nil {
		return nil, err
	}
	return copyBig(orZero(m.native[addr])), nil
}

// --- user transactions ---

func (m *MockPlatform) Register(_ context.Context, referrer types.UserID, amount *big.Int, duration uint8) (*Receipt, error) {
	return m.transact("register", func() error {
		ref, ok := m.users[referrer]
		if !ok {
			return revert("invalid referrer")
		}
		if _, exists := m.byWallet[m.owner]; exists {
			return revert("already registered")
		}
		if err := m.checkStake(amount, duration); err != nil {
			return err
		}
		if err := m.pull(amount); err != nil {
			return err
		}

		id := m.allocateID()
		u := m.addUser(id, m.owner, ref.profile.Wallet)
		m.openStake(u, amount, m.durationOf(duration), m.config.InterestRates[duration], m.now())
		m.creditReferrer(ref, id, amount)
		return nil
	})
}

func (m *MockPlatform) Stake(_ context.Context, id types.UserID, amount *big.Int, duration uint8) (*Receipt, error) {
	return m.transact("stake", func() error {
		u, err := m.caller(id)
		if err != nil {
			return err
		}
		if err := m.checkStake(amount, duration); err != nil {
			return err
		}
		if err := m.pull(amount); err != nil {
			return err
		}
		m.openStake(u, amount, m.durationOf(duration), m.config.InterestRates[duration], m.now())
		m.addBusiness(u, amount)
		return nil
	})
}

func (m *MockPlatform) ClaimStake(_ context.Context, id types.UserID, index uint64) (*Receipt, error) {
	return m.transact("claimStake", func() error {
		u, err := m.caller(id)
		if err != nil {
			return err
		}
		payout, err := m.closeStake(u, index)
		if err != nil {
			return err
		}
		u.income.AvailableBalance.Add(u.income.AvailableBalance, payout)
		return nil
	})
}

func (m *MockPlatform) ClaimAndRestake(_ context.Context, id types.UserID, index uint64, fromPayout, fromWallet *big.Int, duration uint8) (*Receipt, error) {
	return m.transact("claimAndRestake", func() error {
		u, err := m.caller(id)
		if err != nil {
			return err
		}
		if err := m.checkClosable(u, index); err != nil {
			return err
		}
		payout := payoutOf(u.stakes[index])
		if fromPayout.Cmp(payout) > 0 {
			return revert("restake exceeds payout")
		}
		total := new(big.Int).Add(fromPayout, fromWallet)
		if total.Sign() > 0 {
			if err := m.checkStake(total, duration); err != nil {
				return err
			}
		}
		if fromWallet.Sign() > 0 {
			if err := m.pull(fromWallet); err != nil {
				return err
			}
		}
		if _, err := m.closeStake(u, index); err != nil {
			return err
		}

		u.income.AvailableBalance.Add(u.income.AvailableBalance, new(big.Int).Sub(payout, fromPayout))
		if total.Sign() > 0 {
			m.openStake(u, total, m.durationOf(duration), m.config.InterestRates[duration], m.now())
			m.addBusiness(u, total)
		}
		return nil
	})
}

func (m *MockPlatform) Withdraw(_ context.Context, id types.UserID, amount *big.Int) (*Receipt, error) {
	return m.transact("withdraw", func() error {
		u, err := m.caller(id)
		if err != nil {
			return err
		}
		if amount.Cmp(m.config.MinWithdrawal) < 0 {
			return revert("below minimum withdrawal")
		}
		if amount.Cmp(u.income.AvailableBalance) > 0 {
			return revert("insufficient available balance")
		}
		u.income.AvailableBalance.Sub(u.income.AvailableBalance, amount)
		u.income.TotalWithdrawn.Add(u.income.TotalWithdrawn, amount)
		m.stable[m.owner] = new(big.Int).Add(orZero(m.stable[m.owner]), amount)
		m.stats.TotalWithdrawn.Add(m.stats.TotalWithdrawn, amount)
		m.stats.ContractBalance.Sub(m.stats.ContractBalance, amount)
		return nil
	})
}

// --- admin transactions ---

func (m *MockPlatform) SetDurations(_ context.Context, durations [types.DurationCount]*big.Int) (*Receipt, error) {
	return m.transact("setDurations", func() error {
		m.config.Durations = durations
		return nil
	})
}

func (m *MockPlatform) SetInterestRates(_ context.Context, rates [types.DurationCount]*big.Int) (*Receipt, error) {
	return m.transact("setInterestRates", func() error {
		m.config.InterestRates = rates
		return nil
	})
}

func (m *MockPlatform) SetStakingTiers(_ context.Context, tier1, tier2, tier3Min, maxStake *big.Int) (*Receipt, error) {
	return m.transact("setStakingTiers", func() error {
		if tier1.Cmp(tier2) > 0 || tier2.Cmp(tier3Min) > 0 || tier3Min.Cmp(maxStake) > 0 {
			return revert("tiers must be ascending")
		}
		m.config.Tier1, m.config.Tier2, m.config.Tier3Min, m.config.MaxStake = tier1, tier2, tier3Min, maxStake
		return nil
	})
}

func (m *MockPlatform) SetDirectIncomeConfig(_ context.Context, percent, minStake *big.Int) (*Receipt, error) {
	return m.transact("setDirectIncomeConfig", func() error {
		m.config.DirectIncomePercent, m.config.DirectIncomeMinStake = percent, minStake
		return nil
	})
}

func (m *MockPlatform) SetLevelUnlockConfig(_ context.Context, directs, minStake *big.Int) (*Receipt, error) {
	return m.transact("setLevelUnlockConfig", func() error {
		m.config.LevelUnlockDirects, m.config.LevelUnlockMinStake = directs, minStake
		return nil
	})
}

func (m *MockPlatform) SetMinWithdrawal(_ context.Context, amount *big.Int) (*Receipt, error) {
	return m.transact("setMinWithdrawal", func() error {
		m.config.MinWithdrawal = amount
		return nil
	})
}

func (m *MockPlatform) SetPartners(_ context.Context, partners []common.Address, shares []*big.Int) (*Receipt, error) {
	return m.transact("setPartners", func() error {
		if len(partners) != len(shares) {
			return revert("length mismatch")
		}
		m.partners = make([]types.Partner, len(partners))
		for i := range partners {
			m.partners[i] = types.Partner{Address: partners[i], Share: shares[i]}
		}
		return nil
	})
}

func (m *MockPlatform) TransferFirstUser(_ context.Context, wallet common.Address) (*Receipt, error) {
	return m.transact("transferFirstUser", func() error {
		if len(m.order) == 0 {
			return revert("no users")
		}
		if _, exists := m.byWallet[wallet]; exists {
			return revert("wallet already registered")
		}
		first := m.users[m.order[0]]
		delete(m.byWallet, first.profile.Wallet)
		first.profile.Wallet = wallet
		m.byWallet[wallet] = first.profile.UserID
		return nil
	})
}

func (m *MockPlatform) SetLevelIncomePercents(_ context.Context, percents [types.LevelCount]*big.Int) (*Receipt, error) {
	return m.transact("setLevelIncomePercents", func() error {
		m.config.LevelIncomePercents = percents
		return nil
	})
}

func (m *MockPlatform) SetLifetimeRewardTier(_ context.Context, index int, requiredBusiness, reward *big.Int) (*Receipt, error) {
	return m.transact("setLifetimeRewardTier", func() error {
		if index < 0 || index >= types.RewardTierCount {
			return revert("index out of range")
		}
		m.config.LifetimeRewardTiers[index] = types.LifetimeRewardTier{RequiredBusiness: requiredBusiness, Reward: reward}
		return nil
	})
}

func (m *MockPlatform) EmergencyWithdraw(_ context.Context, amount *big.Int) (*Receipt, error) {
	return m.transact("emergencyWithdraw", func() error {
		if amount.Cmp(m.stats.ContractBalance) > 0 {
			return revert("insufficient contract balance")
		}
		m.stats.ContractBalance.Sub(m.stats.ContractBalance, amount)
		m.stable[m.owner] = new(big.Int).Add(orZero(m.stable[m.owner]), amount)
		return nil
	})
}

// --- internals (callers hold m.mu) ---

// transact records method, charges gas and applies fn atomically.
func (m *MockPlatform) transact(method string, fn func() error) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, method)
	if err := m.takeFailure(method); err != nil {
		return nil, err
	}

	native := orZero(m.native[m.owner])
	if native.Cmp(m.gasCost) < 0 {
		return nil, fmt.Errorf("insufficient funds for gas * price + value")
	}
	m.native[m.owner] = new(big.Int).Sub(native, m.gasCost)

	if err := fn(); err != nil {
		return nil, err
	}

	m.block++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d:%s", method, m.block, m.owner.Hex())))
	logging.Debug("mock transaction confirmed",
		logging.Method(method),
		logging.TxHash(hash.Hex()),
		logging.Component("ledger-mock"))
	return &Receipt{TxHash: hash, BlockNumber: m.block, GasUsed: 21000}, nil
}

// takeFailure pops an injected failure for method.
func (m *MockPlatform) takeFailure(method string) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	err, ok := m.failures[method]
	if !ok {
		return nil
	}
	delete(m.failures, method)
	return err
}

func (m *MockPlatform) caller(id types.UserID) (*mockUser, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, revert("user not registered")
	}
	if u.profile.Wallet != m.owner {
		return nil, revert("not user owner")
	}
	return u, nil
}

func (m *MockPlatform) checkStake(amount *big.Int, duration uint8) error {
	if int(duration) >= types.DurationCount {
		return revert("invalid duration")
	}
	if amount.Cmp(m.config.Tier1) < 0 || amount.Cmp(m.config.MaxStake) > 0 {
		return revert("amount out of range")
	}
	return nil
}

// pull moves amount of stable token from the signer into the contract.
func (m *MockPlatform) pull(amount *big.Int) error {
	allowance := orZero(m.allowances[m.owner][MockPlatformAddress])
	if allowance.Cmp(amount) < 0 {
		return revert("insufficient allowance")
	}
	balance := orZero(m.stable[m.owner])
	if balance.Cmp(amount) < 0 {
		return revert("transfer amount exceeds balance")
	}
	m.setAllowance(m.owner, MockPlatformAddress, new(big.Int).Sub(allowance, amount))
	m.stable[m.owner] = new(big.Int).Sub(balance, amount)
	m.stats.ContractBalance.Add(m.stats.ContractBalance, amount)
	m.stats.TotalStaked.Add(m.stats.TotalStaked, amount)
	return nil
}

func (m *MockPlatform) setAllowance(owner, spender common.Address, amount *big.Int) {
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[common.Address]*big.Int)
	}
	m.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (m *MockPlatform) allocateID() types.UserID {
	for {
		id := types.MustUserID(fmt.Sprintf("M%04d", m.nextID))
		m.nextID++
		if _, taken := m.users[id]; !taken {
			return id
		}
	}
}

func (m *MockPlatform) addUser(id types.UserID, wallet, referrer common.Address) *mockUser {
	u := &mockUser{
		profile: types.UserProfile{
			UserID:       id,
			Wallet:       wallet,
			Referrer:     referrer,
			RegisteredAt: m.now().UTC().Truncate(time.Second),
			IsActive:     true,
		},
		team: types.TeamSummary{
			DirectBusiness:          new(big.Int),
			QualifiedDirectBusiness: new(big.Int),
			TeamBusiness:            new(big.Int),
		},
		income: types.IncomeLedger{
			DirectIncome:         new(big.Int),
			LevelIncome:          new(big.Int),
			StakingIncome:        new(big.Int),
			LifetimeRewardIncome: new(big.Int),
			TotalIncome:          new(big.Int),
			AvailableBalance:     new(big.Int),
			TotalWithdrawn:       new(big.Int),
		},
	}
	m.users[id] = u
	m.byWallet[wallet] = id
	m.order = append(m.order, id)
	m.stats.TotalUsers.Add(m.stats.TotalUsers, big.NewInt(1))
	return u
}

func (m *MockPlatform) openStake(u *mockUser, amount *big.Int, length time.Duration, rate *big.Int, start time.Time) {
	start = start.UTC().Truncate(time.Second)
	u.stakes = append(u.stakes, types.Stake{
		ID:           uint64(len(u.stakes)),
		Amount:       new(big.Int).Set(amount),
		Duration:     big.NewInt(int64(length / time.Second)),
		InterestRate: copyBig(rate),
		StartTime:    start,
		EndTime:      start.Add(length),
		IsActive:     true,
	})
}

// closeStake marks a matured stake claimed and books the whole payout as
// staking income.
// checkClosable reports why stake index of u cannot be claimed yet.
func (m *MockPlatform) checkClosable(u *mockUser, index uint64) error {
	if index >= uint64(len(u.stakes)) {
		return revert("invalid stake index")
	}
	s := u.stakes[index]
	if !s.IsActive || s.IsClaimed {
		return revert("stake not active")
	}
	if m.now().Before(s.EndTime) {
		return revert("stake not matured")
	}
	return nil
}

func (m *MockPlatform) closeStake(u *mockUser, index uint64) (*big.Int, error) {
	if err := m.checkClosable(u, index); err != nil {
		return nil, err
	}
	s := &u.stakes[index]

	payout := payoutOf(*s)
	s.IsActive = false
	s.IsClaimed = true
	u.income.StakingIncome.Add(u.income.StakingIncome, payout)
	u.income.TotalIncome.Add(u.income.TotalIncome, payout)
	m.stats.TotalStakingIncome.Add(m.stats.TotalStakingIncome, payout)
	return payout, nil
}

func (m *MockPlatform) creditReferrer(ref *mockUser, newcomer types.UserID, amount *big.Int) {
	ref.team.DirectReferrals = append(ref.team.DirectReferrals, newcomer)
	ref.team.DirectCount++
	ref.team.DirectBusiness.Add(ref.team.DirectBusiness, amount)
	if amount.Cmp(m.config.LevelUnlockMinStake) >= 0 {
		ref.team.QualifiedDirectCount++
		ref.team.QualifiedDirectBusiness.Add(ref.team.QualifiedDirectBusiness, amount)
	}
	per := m.config.LevelUnlockDirects.Uint64()
	if per == 0 {
		per = 1
	}
	ref.team.UnlockedLevels = min(uint64(types.LevelCount), ref.team.QualifiedDirectCount/per)

	if amount.Cmp(m.config.DirectIncomeMinStake) >= 0 {
		income := new(big.Int).Mul(amount, m.config.DirectIncomePercent)
		income.Quo(income, big.NewInt(100))
		ref.income.DirectIncome.Add(ref.income.DirectIncome, income)
		ref.income.TotalIncome.Add(ref.income.TotalIncome, income)
		ref.income.AvailableBalance.Add(ref.income.AvailableBalance, income)
		m.stats.TotalDirectIncome.Add(m.stats.TotalDirectIncome, income)
	}

	m.addBusiness(m.users[newcomer], amount)
}

// addBusiness adds amount to the team business of every upline of u.
func (m *MockPlatform) addBusiness(u *mockUser, amount *big.Int) {
	seen := map[common.Address]bool{u.profile.Wallet: true}
	next := u.profile.Referrer
	for depth := 0; depth < types.LevelCount && next != (common.Address{}) && !seen[next]; depth++ {
		seen[next] = true
		upline, ok := m.users[m.byWallet[next]]
		if !ok {
			return
		}
		upline.team.TeamBusiness.Add(upline.team.TeamBusiness, amount)
		next = upline.profile.Referrer
	}
}

// levels returns the downline of id grouped by depth.
func (m *MockPlatform) levels(id types.UserID) [types.LevelCount][]types.UserID {
	var out [types.LevelCount][]types.UserID
	u, ok := m.users[id]
	if !ok {
		return out
	}
	frontier := u.team.DirectReferrals
	for depth := 0; depth < types.LevelCount && len(frontier) > 0; depth++ {
		out[depth] = append([]types.UserID(nil), frontier...)
		var next []types.UserID
		for _, member := range frontier {
			if mu, ok := m.users[member]; ok {
				next = append(next, mu.team.DirectReferrals...)
			}
		}
		frontier = next
	}
	return out
}

func (m *MockPlatform) activeStake(id types.UserID) *big.Int {
	total := new(big.Int)
	if u, ok := m.users[id]; ok {
		for _, s := range u.stakes {
			if s.IsActive {
				total.Add(total, s.Amount)
			}
		}
	}
	return total
}

func (m *MockPlatform) durationOf(idx uint8) time.Duration {
	return time.Duration(m.config.Durations[idx].Int64()) * time.Second
}

func payoutOf(s types.Stake) *big.Int {
	interest := new(big.Int).Mul(s.Amount, orZero(s.InterestRate))
	interest.Quo(interest, big.NewInt(mockRateScale))
	return interest.Add(interest, s.Amount)
}

func revert(reason string) error {
	return fmt.Errorf("execution reverted: %s", reason)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
