package guard

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/ledger"
)

// DefaultMinGasReserve is 0.003 of the native coin.
var DefaultMinGasReserve = big.NewInt(3_000_000_000_000_000)

// NativeReader reads native coin balances.
type NativeReader interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Balances holds native and stable balance snapshots of one wallet.
type Balances struct {
	native     NativeReader
	token      ledger.Token
	owner      common.Address
	minReserve *big.Int

	mu     sync.RWMutex
	gas    *big.Int
	stable *big.Int
}

// NewBalances creates a guard for owner. A nil minReserve uses DefaultMinGasReserve.
func NewBalances(native NativeReader, token ledger.Token, owner common.Address, minReserve *big.Int) *Balances {
	if minReserve == nil {
		minReserve = DefaultMinGasReserve
	}
	return &Balances{
		native:     native,
		token:      token,
		owner:      owner,
		minReserve: new(big.Int).Set(minReserve),
	}
}

// Refresh refetches both balances. A balance whose read fails becomes unknown.
func (b *Balances) Refresh(ctx context.Context) error {
	gas, gasErr := b.native.NativeBalance(ctx, b.owner)
	stable, stableErr := b.token.BalanceOf(ctx, b.owner)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.gas, b.stable = nil, nil
	if gasErr == nil {
		b.gas = gas
	}
	if stableErr == nil {
		b.stable = stable
	}

	var errs []error
	if gasErr != nil {
		errs = append(errs, fmt.Errorf("failed to read native balance: %w", gasErr))
	}
	if stableErr != nil {
		errs = append(errs, fmt.Errorf("failed to read stable balance: %w", stableErr))
	}
	return errors.Join(errs...)
}

// HasEnoughGas reports whether the native balance covers the gas reserve.
func (b *Balances) HasEnoughGas() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gas != nil && b.gas.Cmp(b.minReserve) >= 0
}

// HasEnoughStable reports whether the stable balance covers amount.
func (b *Balances) HasEnoughStable(amount *big.Int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stable != nil && b.stable.Cmp(amount) >= 0
}

// Native returns the last native balance, or nil when unknown.
func (b *Balances) Native() *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyOrNil(b.gas)
}

// Stable returns the last stable balance, or nil when unknown.
func (b *Balances) Stable() *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyOrNil(b.stable)
}

// MinGasReserve returns the configured native reserve.
func (b *Balances) MinGasReserve() *big.Int {
	return new(big.Int).Set(b.minReserve)
}

func copyOrNil(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
