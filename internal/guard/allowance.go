// Package guard holds the allowance and balance snapshots consulted before a
// value-moving transaction. Snapshots are refreshed explicitly; unknown
// values always fail closed.
package guard

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
)

// Allowance tracks how much of owner's stable token spender may move.
type Allowance struct {
	token   ledger.Token
	owner   common.Address
	spender common.Address

	mu      sync.RWMutex
	current *big.Int
}

// NewAllowance creates an Allowance with an unknown current value.
func NewAllowance(token ledger.Token, owner, spender common.Address) *Allowance {
	return &Allowance{token: token, owner: owner, spender: spender}
}

// Refresh refetches the allowance. On failure the previous value is
// forgotten so NeedsApproval fails closed.
func (a *Allowance) Refresh(ctx context.Context) error {
	v, err := a.token.Allowance(ctx, a.owner, a.spender)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.current = nil
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	a.current = v
	return nil
}

// Current returns the last fetched allowance, or nil when unknown.
func (a *Allowance) Current() *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return nil
	}
	return new(big.Int).Set(a.current)
}

// NeedsApproval reports whether amount exceeds the known allowance. An
// unknown allowance always needs approval.
func (a *Allowance) NeedsApproval(amount *big.Int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current == nil || a.current.Cmp(amount) < 0
}

// Approve sets the allowance to exactly amount, waits for confirmation and
// refetches the allowance before returning. Failures are logged and
// reported as false.
func (a *Allowance) Approve(ctx context.Context, amount *big.Int) bool {
	_, ok := a.ApproveReceipt(ctx, amount)
	return ok
}

// ApproveReceipt is Approve that also returns the confirmed approval
// receipt. The receipt is set whenever the approval was mined, even if the
// refetch afterwards failed.
func (a *Allowance) ApproveReceipt(ctx context.Context, amount *big.Int) (*ledger.Receipt, bool) {
	receipt, err := a.token.Approve(ctx, a.spender, amount)
	if err != nil {
		logging.Warn("approval failed",
			logging.Wallet(a.owner.Hex()),
			"spender", a.spender.Hex(),
			"amount", amount.String(),
			logging.Err(err))
		a.audit(amount, "failure", err.Error())
		return nil, false
	}

	logging.Info("approval confirmed",
		logging.Wallet(a.owner.Hex()),
		logging.TxHash(receipt.TxHash.Hex()),
		"amount", amount.String())
	a.audit(amount, "success", "tx "+receipt.TxHash.Hex())

	if err := a.Refresh(ctx); err != nil {
		logging.Warn("allowance refresh after approval failed", logging.Err(err))
		return receipt, false
	}
	return receipt, true
}

func (a *Allowance) audit(amount *big.Int, result, details string) {
	logging.Audit(logging.AuditEvent{
		Operation: "approve",
		Actor:     a.owner.Hex(),
		Target:    a.spender.Hex(),
		Result:    result,
		Details:   "amount " + amount.String() + ": " + details,
	})
}
