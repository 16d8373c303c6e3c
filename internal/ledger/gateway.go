package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// DefaultConcurrency bounds the parallel calls of one composite read.
const DefaultConcurrency = 8

// ReadObserver receives the outcome of every gateway read.
type ReadObserver interface {
	ObserveRead(method string, duration time.Duration, err error)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithRateLimit caps reads at rps per second with the given burst.
// A zero rps disables limiting.
func WithRateLimit(rps float64, burst int) GatewayOption {
	return func(g *Gateway) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithObserver reports every read to obs.
func WithObserver(obs ReadObserver) GatewayOption {
	return func(g *Gateway) { g.observer = obs }
}

// WithConcurrency bounds the fan-out of composite reads.
func WithConcurrency(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// Gateway validates read keys, paces and observes reads, and joins the
// composite configuration read. It holds no cache.
type Gateway struct {
	reader      Reader
	limiter     *rate.Limiter
	observer    ReadObserver
	concurrency int
}

// NewGateway wraps reader.
func NewGateway(reader Reader, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		reader:      reader,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reader returns the wrapped contract reader.
func (g *Gateway) Reader() Reader { return g.reader }

// observe paces, times and reports a single read.
func observe[T any](ctx context.Context, g *Gateway, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%s: %w", method, err)
		}
	}

	start := time.Now()
	v, err := fn(ctx)
	elapsed := time.Since(start)

	if g.observer != nil {
		g.observer.ObserveRead(method, elapsed, err)
	}
	if err != nil {
		logging.Debug("ledger read failed",
			logging.Method(method),
			"duration", elapsed,
			logging.Err(err))
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	logging.Debug("ledger read", logging.Method(method), "duration", elapsed)
	return v, nil
}

func validUserID(id types.UserID) error {
	if id.IsZero() || !id.Valid() {
		return fmt.Errorf("%w: %w", ErrNotEnabled, types.ErrInvalidUserID)
	}
	return nil
}

func validAddress(addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrNotEnabled)
	}
	return nil
}

// Dashboard reads the raw dashboard of id. An unknown ID is ErrNotRegistered.
func (g *Gateway) Dashboard(ctx context.Context, id types.UserID) (*types.RawDashboard, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	raw, err := observe(ctx, g, "getUserDashboard", func(ctx context.Context) (*types.RawDashboard, error) {
		return g.reader.UserDashboard(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.Profile.UserID.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return raw, nil
}

// ContractConfig gathers every configuration getter in parallel. The
// result is all-or-nothing: any failed or empty getter yields ErrPending.
func (g *Gateway) ContractConfig(ctx context.Context) (*types.ContractConfig, error) {
	cfg := &types.ContractConfig{}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	scalar := func(getter string, dst **big.Int) {
		eg.Go(func() error {
			v, err := observe(egCtx, g, getter, func(ctx context.Context) (*big.Int, error) {
				return g.reader.ConfigValue(ctx, getter)
			})
			*dst = v
			return err
		})
	}
	indexed := func(getter string, index int, dst **big.Int) {
		eg.Go(func() error {
			method := fmt.Sprintf("%s(%d)", getter, index)
			v, err := observe(egCtx, g, method, func(ctx context.Context) (*big.Int, error) {
				return g.reader.ConfigIndexed(ctx, getter, index)
			})
			*dst = v
			return err
		})
	}

	scalar(GetterTier1, &cfg.Tier1)
	scalar(GetterTier2, &cfg.Tier2)
	scalar(GetterTier3Min, &cfg.Tier3Min)
	scalar(GetterMaxStake, &cfg.MaxStake)
	scalar(GetterDirectIncomePercent, &cfg.DirectIncomePercent)
	scalar(GetterDirectIncomeMinStake, &cfg.DirectIncomeMinStake)
	scalar(GetterLevelUnlockDirects, &cfg.LevelUnlockDirects)
	scalar(GetterLevelUnlockMinStake, &cfg.LevelUnlockMinStake)
	scalar(GetterMinWithdrawal, &cfg.MinWithdrawal)

	for i := range cfg.LevelIncomePercents {
		indexed(GetterLevelIncomePercent, i, &cfg.LevelIncomePercents[i])
	}
	for i := range cfg.Durations {
		indexed(GetterDurations, i, &cfg.Durations[i])
		indexed(GetterInterestRates, i, &cfg.InterestRates[i])
	}
	for i := range cfg.LifetimeRewardTiers {
		eg.Go(func() error {
			method := fmt.Sprintf("lifetimeRewardTiers(%d)", i)
			tier, err := observe(egCtx, g, method, func(ctx context.Context) (types.LifetimeRewardTier, error) {
				return g.reader.LifetimeRewardTier(ctx, i)
			})
			cfg.LifetimeRewardTiers[i] = tier
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, errors.Join(ErrPending, err)
	}
	if !cfg.Complete() {
		return nil, fmt.Errorf("%w: configuration incomplete", ErrPending)
	}
	return cfg, nil
}

// LevelsSummary reads the per-level counts and business of all 20 levels.
func (g *Gateway) LevelsSummary(ctx context.Context, id types.UserID) (*types.LevelsSummary, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	return observe(ctx, g, "getAllLevelsSummary", func(ctx context.Context) (*types.LevelsSummary, error) {
		return g.reader.LevelsSummary(ctx, id)
	})
}

// LevelUsers lists the members of one downline level, numbered 1..20.
func (g *Gateway) LevelUsers(ctx context.Context, id types.UserID, level int) (*types.LevelUsers, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	if level < 1 || level > types.LevelCount {
		return nil, fmt.Errorf("%w: level %d out of range 1..%d", ErrNotEnabled, level, types.LevelCount)
	}
	return observe(ctx, g, "getLevelUsers", func(ctx context.Context) (*types.LevelUsers, error) {
		return g.reader.LevelUsers(ctx, id, uint8(level))
	})
}

// RewardProgress reads eligibility and claim state for each lifetime reward tier.
func (g *Gateway) RewardProgress(ctx context.Context, id types.UserID) (*types.RewardProgress, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	return observe(ctx, g, "getLifetimeRewardProgress", func(ctx context.Context) (*types.RewardProgress, error) {
		return g.reader.LifetimeRewardProgress(ctx, id)
	})
}

// ContractStats reads the platform-wide totals.
func (g *Gateway) ContractStats(ctx context.Context) (*types.ContractStats, error) {
	return observe(ctx, g, "getContractStats", g.reader.ContractStats)
}

// Partners lists the partner addresses and their income shares.
func (g *Gateway) Partners(ctx context.Context) ([]types.Partner, error) {
	return observe(ctx, g, "getPartners", g.reader.Partners)
}

// StakePayout reads the total payout (principal and interest) of one stake.
func (g *Gateway) StakePayout(ctx context.Context, id types.UserID, index uint64) (*big.Int, error) {
	if err := validUserID(id); err != nil {
		return nil, err
	}
	return observe(ctx, g, "getStakePayout", func(ctx context.Context) (*big.Int, error) {
		return g.reader.StakePayout(ctx, id, index)
	})
}

// ResolveUserID returns the user ID registered to addr, or the zero ID.
func (g *Gateway) ResolveUserID(ctx context.Context, addr common.Address) (types.UserID, error) {
	if err := validAddress(addr); err != nil {
		return types.UserID{}, err
	}
	return observe(ctx, g, "getUserIdByAddress", func(ctx context.Context) (types.UserID, error) {
		return g.reader.UserIDByAddress(ctx, addr)
	})
}

// ResolveAddress returns the wallet behind id, or the zero address.
func (g *Gateway) ResolveAddress(ctx context.Context, id types.UserID) (common.Address, error) {
	if err := validUserID(id); err != nil {
		return common.Address{}, err
	}
	return observe(ctx, g, "getUserByUserId", func(ctx context.Context) (common.Address, error) {
		return g.reader.AddressByUserID(ctx, id)
	})
}
