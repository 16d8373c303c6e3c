package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/dashboard"
	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// RegisterRequest registers the wallet under Referrer with a first stake.
type RegisterRequest struct {
	Referrer string
	Amount   *big.Int
	Tier     Tier
	Duration uint8
}

// StakeRequest opens a new stake.
type StakeRequest struct {
	Amount   *big.Int
	Tier     Tier
	Duration uint8
}

// ClaimRequest claims a matured stake to the available balance.
type ClaimRequest struct {
	StakeIndex uint64
}

// RestakeRequest claims a matured stake and reinvests part of the payout,
// optionally topped up from the wallet.
type RestakeRequest struct {
	StakeIndex uint64
	FromPayout *big.Int
	FromWallet *big.Int
	Tier       Tier
	Duration   uint8
}

// WithdrawRequest withdraws from the available balance.
type WithdrawRequest struct {
	Amount *big.Int
}

// validation is the fresh state every action validates against.
type validation struct {
	cfg *types.ContractConfig
}

// prepare refreshes the guards and loads the contract configuration.
func (o *Orchestrator) prepare(ctx context.Context) (*validation, *Failure) {
	if err := o.allowance.Refresh(ctx); err != nil {
		logging.Warn("allowance refresh failed, approval will be requested", logging.Err(err))
	}
	if err := o.balances.Refresh(ctx); err != nil {
		logging.Warn("balance refresh failed", logging.Err(err))
	}

	cfg, err := o.reads.ContractConfig(ctx)
	if err != nil {
		f := invalid("configuration still loading")
		f.Err = err
		return nil, f
	}
	return &validation{cfg: cfg}, nil
}

// caller resolves the wallet's user ID and its raw dashboard.
func (o *Orchestrator) caller(ctx context.Context) (types.UserID, *types.RawDashboard, *Failure) {
	id, err := o.reads.ResolveUserID(ctx, o.cc.Owner)
	if err != nil {
		return types.UserID{}, nil, &Failure{Kind: FailureValidation, Reason: "could not resolve wallet registration", Err: err}
	}
	if id.IsZero() {
		return types.UserID{}, nil, invalid("wallet %s is not registered", o.cc.Owner.Hex())
	}
	raw, err := o.reads.Dashboard(ctx, id)
	if err != nil {
		return types.UserID{}, nil, &Failure{Kind: FailureValidation, Reason: "could not load user record", Err: err}
	}
	return id, raw, nil
}

// checkAmount applies the band, carry-forward floor and stable balance
// guards, in that order.
func (o *Orchestrator) checkAmount(cfg *types.ContractConfig, history []types.Stake, tier Tier, amount, fromWallet *big.Int) *Failure {
	if !InBand(cfg, tier, amount) {
		return invalid("amount %s outside the %s range %s to %s",
			units.FormatFixed(amount), tier,
			units.FormatFixed(TierMinimum(cfg, tier)), units.FormatFixed(cfg.MaxStake))
	}
	if floor := EffectiveMinimum(history, cfg, tier); amount.Cmp(floor) < 0 {
		return invalid("amount %s is below the carry-forward minimum of %s",
			units.FormatFixed(amount), units.FormatFixed(floor))
	}
	if fromWallet.Sign() > 0 && !o.balances.HasEnoughStable(fromWallet) {
		return invalid("insufficient stable balance for %s", units.FormatFixed(fromWallet))
	}
	return nil
}

func (o *Orchestrator) checkGas() *Failure {
	if !o.balances.HasEnoughGas() {
		return invalid("insufficient native balance for gas (need at least %s)",
			units.FromFixedPoint(o.balances.MinGasReserve(), 4))
	}
	return nil
}

func checkDuration(cfg *types.ContractConfig, d uint8) *Failure {
	if !cfg.ValidDuration(d) {
		return invalid("invalid duration index %d", d)
	}
	return nil
}

func positive(amount *big.Int) *Failure {
	if amount == nil || amount.Sign() <= 0 {
		return invalid("amount must be positive")
	}
	return nil
}

// matured returns the stake at index if it can be claimed at now.
func (o *Orchestrator) matured(raw *types.RawDashboard, index uint64) (types.Stake, *Failure) {
	if index >= uint64(len(raw.Stakes)) {
		return types.Stake{}, invalid("stake %d not found", index)
	}
	s := raw.Stakes[index]
	if !s.IsActive || s.IsClaimed {
		return types.Stake{}, invalid("stake %d is not active", index)
	}
	if view := dashboard.NewStakeView(s, o.now()); !view.IsMatured {
		return types.Stake{}, invalid("stake %d has not matured (%d days left)", index, view.DaysLeft)
	}
	return s, nil
}

// Register validates and submits a registration with its first stake.
func (o *Orchestrator) Register(ctx context.Context, req RegisterRequest) *Result {
	return o.run(ctx, ActionRegister, func(ctx context.Context, v *validation) (*plan, *Failure) {
		referrer, err := types.EncodeUserID(req.Referrer)
		if err != nil {
			return nil, &Failure{Kind: FailureValidation, Reason: fmt.Sprintf("invalid referrer ID %q", req.Referrer), Err: err}
		}
		refAddr, err := o.reads.ResolveAddress(ctx, referrer)
		if err != nil {
			return nil, &Failure{Kind: FailureValidation, Reason: "could not resolve referrer", Err: err}
		}
		if refAddr == (common.Address{}) {
			return nil, invalid("referrer %s is not registered", referrer)
		}
		existing, err := o.reads.ResolveUserID(ctx, o.cc.Owner)
		if err != nil {
			return nil, &Failure{Kind: FailureValidation, Reason: "could not resolve wallet registration", Err: err}
		}
		if !existing.IsZero() {
			return nil, invalid("wallet is already registered as %s", existing)
		}

		if f := positive(req.Amount); f != nil {
			return nil, f
		}
		if f := checkDuration(v.cfg, req.Duration); f != nil {
			return nil, f
		}
		if f := o.checkAmount(v.cfg, nil, req.Tier, req.Amount, req.Amount); f != nil {
			return nil, f
		}
		if f := o.checkGas(); f != nil {
			return nil, f
		}

		return &plan{
			walletAmount: req.Amount,
			detail:       fmt.Sprintf("register under %s with %s", referrer, units.FormatFixed(req.Amount)),
			submit: func(ctx context.Context) (*ledger.Receipt, error) {
				return o.tx.Register(ctx, referrer, req.Amount, req.Duration)
			},
		}, nil
	})
}

// Stake validates and submits a new stake for a registered wallet.
func (o *Orchestrator) Stake(ctx context.Context, req StakeRequest) *Result {
	return o.run(ctx, ActionStake, func(ctx context.Context, v *validation) (*plan, *Failure) {
		id, raw, f := o.caller(ctx)
		if f != nil {
			return nil, f
		}
		if f := positive(req.Amount); f != nil {
			return nil, f
		}
		if f := checkDuration(v.cfg, req.Duration); f != nil {
			return nil, f
		}
		if f := o.checkAmount(v.cfg, raw.Stakes, req.Tier, req.Amount, req.Amount); f != nil {
			return nil, f
		}
		if f := o.checkGas(); f != nil {
			return nil, f
		}

		return &plan{
			user:         id,
			walletAmount: req.Amount,
			detail:       fmt.Sprintf("stake %s", units.FormatFixed(req.Amount)),
			submit: func(ctx context.Context) (*ledger.Receipt, error) {
				return o.tx.Stake(ctx, id, req.Amount, req.Duration)
			},
		}, nil
	})
}

// Claim validates and submits the claim of a matured stake.
func (o *Orchestrator) Claim(ctx context.Context, req ClaimRequest) *Result {
	return o.run(ctx, ActionClaim, func(ctx context.Context, v *validation) (*plan, *Failure) {
		id, raw, f := o.caller(ctx)
		if f != nil {
			return nil, f
		}
		if _, f := o.matured(raw, req.StakeIndex); f != nil {
			return nil, f
		}
		if f := o.checkGas(); f != nil {
			return nil, f
		}

		return &plan{
			user:   id,
			detail: fmt.Sprintf("claim stake %d", req.StakeIndex),
			submit: func(ctx context.Context) (*ledger.Receipt, error) {
				return o.tx.ClaimStake(ctx, id, req.StakeIndex)
			},
		}, nil
	})
}

// ClaimAndRestake validates and submits a claim that reinvests part of the
// payout. A zero total still goes through claimAndRestake as a pure claim.
func (o *Orchestrator) ClaimAndRestake(ctx context.Context, req RestakeRequest) *Result {
	return o.run(ctx, ActionClaimAndRestake, func(ctx context.Context, v *validation) (*plan, *Failure) {
		id, raw, f := o.caller(ctx)
		if f != nil {
			return nil, f
		}
		if _, f := o.matured(raw, req.StakeIndex); f != nil {
			return nil, f
		}

		payout, err := o.reads.StakePayout(ctx, id, req.StakeIndex)
		if err != nil {
			return nil, &Failure{Kind: FailureValidation, Reason: "could not read stake payout", Err: err}
		}
		rp, err := NewRestakePlan(payout, req.FromPayout, req.FromWallet)
		if err != nil {
			return nil, &Failure{Kind: FailureValidation, Reason: "restake amounts do not fit the payout", Err: err}
		}

		if !rp.PureClaim() {
			if f := checkDuration(v.cfg, req.Duration); f != nil {
				return nil, f
			}
			if f := o.checkAmount(v.cfg, raw.Stakes, req.Tier, rp.NewStakeTotal, rp.FromWallet); f != nil {
				return nil, f
			}
		}
		if f := o.checkGas(); f != nil {
			return nil, f
		}

		return &plan{
			user:         id,
			walletAmount: rp.FromWallet,
			detail: fmt.Sprintf("claim stake %d, restake %s, credit %s",
				req.StakeIndex, units.FormatFixed(rp.NewStakeTotal), units.FormatFixed(rp.ToAvailable)),
			submit: func(ctx context.Context) (*ledger.Receipt, error) {
				return o.tx.ClaimAndRestake(ctx, id, req.StakeIndex, rp.FromPayout, rp.FromWallet, req.Duration)
			},
		}, nil
	})
}

// Withdraw validates and submits a withdrawal from the available balance.
func (o *Orchestrator) Withdraw(ctx context.Context, req WithdrawRequest) *Result {
	return o.run(ctx, ActionWithdraw, func(ctx context.Context, v *validation) (*plan, *Failure) {
		id, raw, f := o.caller(ctx)
		if f != nil {
			return nil, f
		}
		if f := positive(req.Amount); f != nil {
			return nil, f
		}
		if req.Amount.Cmp(v.cfg.MinWithdrawal) < 0 {
			return nil, invalid("amount %s is below the minimum withdrawal of %s",
				units.FormatFixed(req.Amount), units.FormatFixed(v.cfg.MinWithdrawal))
		}
		available := raw.Income.AvailableBalance
		if available == nil || req.Amount.Cmp(available) > 0 {
			return nil, invalid("amount %s exceeds the available balance of %s",
				units.FormatFixed(req.Amount), units.FormatFixed(available))
		}
		if f := o.checkGas(); f != nil {
			return nil, f
		}

		return &plan{
			user:   id,
			detail: fmt.Sprintf("withdraw %s", units.FormatFixed(req.Amount)),
			submit: func(ctx context.Context) (*ledger.Receipt, error) {
				return o.tx.Withdraw(ctx, id, req.Amount)
			},
		}, nil
	})
}

// IsFailure reports whether err is an action failure of kind k.
func IsFailure(err error, k FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == k
}
