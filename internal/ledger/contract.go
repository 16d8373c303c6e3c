package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// Backend is what the contract bindings need from the chain client.
type Backend interface {
	bind.ContractBackend
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	WaitForTransaction(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
	SyncNonce(ctx context.Context) error
}

// boundContract is the call/transact plumbing shared by the platform and
// token bindings.
type boundContract struct {
	name     string
	backend  Backend
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
}

func newBoundContract(name string, backend Backend, address common.Address, abiJSON string) (*boundContract, error) {
	if backend == nil {
		return nil, fmt.Errorf("%s: backend is required (use NewMockPlatform for testing)", name)
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%s: contract address is required", name)
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s ABI: %w", name, err)
	}

	return &boundContract{
		name:     name,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		abi:      parsed,
		address:  address,
	}, nil
}

func (b *boundContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("failed to call %s.%s: %w", b.name, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s returned no values", b.name, method)
	}
	return out, nil
}

func (b *boundContract) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := b.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected return type %T", b.name, method, out[0])
	}
	return v, nil
}

// transact sends exactly one transaction and waits for it to confirm.
func (b *boundContract) transact(ctx context.Context, method string, args ...interface{}) (*Receipt, error) {
	opts, err := b.backend.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction options: %w", err)
	}

	tx, err := b.contract.Transact(opts, method, args...)
	if err != nil {
		// the nonce was reserved locally but nothing reached the mempool
		if syncErr := b.backend.SyncNonce(ctx); syncErr != nil {
			logging.Warn("failed to resync nonce", logging.Err(syncErr), logging.Component("ledger"))
		}
		return nil, fmt.Errorf("failed to submit %s: %w", method, err)
	}

	logging.Info("transaction submitted",
		logging.Method(method),
		logging.TxHash(tx.Hash().Hex()),
		"contract", b.address.Hex(),
		logging.Component("ledger"))

	receipt, err := b.backend.WaitForTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%s transaction %s failed: %w", method, tx.Hash().Hex(), err)
	}
	return &Receipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func toUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func toUserIDs(raw [][5]byte) []types.UserID {
	ids := make([]types.UserID, len(raw))
	for i, r := range raw {
		ids[i] = types.UserID(r)
	}
	return ids
}
