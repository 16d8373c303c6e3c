package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Context is the wallet and chain a gateway, guard or orchestrator acts for.
// It is passed explicitly to constructors instead of living in a global.
type Context struct {
	Owner   common.Address
	ChainID int64
}

// NewContext returns a Context for owner on chainID.
func NewContext(owner common.Address, chainID int64) Context {
	return Context{Owner: owner, ChainID: chainID}
}

// Connected reports whether a wallet is attached.
func (c Context) Connected() bool {
	return c.Owner != (common.Address{})
}

func (c Context) String() string {
	if !c.Connected() {
		return fmt.Sprintf("chain %d (no wallet)", c.ChainID)
	}
	return fmt.Sprintf("%s@%d", c.Owner.Hex(), c.ChainID)
}
