package staking

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/stakedeck/stakedeck/internal/units"
)

// ErrRestakeExceedsPayout is returned when more is restaked from the payout
// than the payout holds.
var ErrRestakeExceedsPayout = errors.New("restake amount exceeds payout")

// RestakePlan splits a matured stake's payout between a new stake and the
// available balance.
type RestakePlan struct {
	Payout        *big.Int `json:"payout"`
	FromPayout    *big.Int `json:"from_payout"`
	FromWallet    *big.Int `json:"from_wallet"`
	NewStakeTotal *big.Int `json:"new_stake_total"`
	ToAvailable   *big.Int `json:"to_available"`
}

// NewRestakePlan computes the new stake total and the remainder credited
// to the available balance. Nil amounts count as zero.
func NewRestakePlan(payout, fromPayout, fromWallet *big.Int) (*RestakePlan, error) {
	payout, fromPayout, fromWallet = orZero(payout), orZero(fromPayout), orZero(fromWallet)
	if payout.Sign() < 0 || fromPayout.Sign() < 0 || fromWallet.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", units.ErrInvalidAmount)
	}
	if fromPayout.Cmp(payout) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrRestakeExceedsPayout,
			units.FormatFixed(fromPayout), units.FormatFixed(payout))
	}
	return &RestakePlan{
		Payout:        new(big.Int).Set(payout),
		FromPayout:    new(big.Int).Set(fromPayout),
		FromWallet:    new(big.Int).Set(fromWallet),
		NewStakeTotal: new(big.Int).Add(fromPayout, fromWallet),
		ToAvailable:   new(big.Int).Sub(payout, fromPayout),
	}, nil
}

// PureClaim reports whether nothing is restaked.
func (p *RestakePlan) PureClaim() bool {
	return p.NewStakeTotal.Sign() == 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
