package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenContract binds the stable token.
type TokenContract struct {
	*boundContract
}

var _ Token = (*TokenContract)(nil)

// NewTokenContract binds the token at address.
func NewTokenContract(backend Backend, address common.Address) (*TokenContract, error) {
	bc, err := newBoundContract("token", backend, address, StableTokenABI)
	if err != nil {
		return nil, err
	}
	return &TokenContract{boundContract: bc}, nil
}

// Address returns the token contract address.
func (t *TokenContract) Address() common.Address {
	return t.address
}

// BalanceOf returns the token balance of account.
func (t *TokenContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.callUint(ctx, "balanceOf", account)
}

// Allowance returns how much spender may move on behalf of owner.
func (t *TokenContract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callUint(ctx, "allowance", owner, spender)
}

// Decimals returns the token's declared decimals.
func (t *TokenContract) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("token.decimals: unexpected return type %T", out[0])
	}
	return d, nil
}

// Approve sets spender's allowance to exactly amount and waits for confirmation.
func (t *TokenContract) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*Receipt, error) {
	return t.transact(ctx, "approve", spender, amount)
}
