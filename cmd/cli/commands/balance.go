package commands

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// BalanceOutput is the JSON shape of the balance command.
type BalanceOutput struct {
	Address       string       `json:"address"`
	UserID        types.UserID `json:"user_id"`
	Native        *big.Int     `json:"native"`
	Stable        *big.Int     `json:"stable"`
	Allowance     *big.Int     `json:"allowance"`
	MinGasReserve *big.Int     `json:"min_gas_reserve"`
	EnoughGas     bool         `json:"enough_gas"`
}

// NewBalanceCmd creates the wallet balance command.
func NewBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show gas, stable token balance and allowance",
		Long: `Display the wallet's native gas balance, stable token balance and the
allowance granted to the platform contract, together with the gas reserve
every action requires.`,
		Args: cobra.NoArgs,
		RunE: runBalance,
	}
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.Context.Connected() {
		return fmt.Errorf("no wallet configured; create one with: stakedeck wallet create")
	}

	allowance, balances := s.Guards()
	err = WithSpinner("Reading balances...", func() error {
		if err := balances.Refresh(ctx); err != nil {
			return err
		}
		return allowance.Refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to read balances: %w", err)
	}

	if token, ok := s.Token.(*ledger.TokenContract); ok {
		if d, err := token.Decimals(ctx); err == nil && int(d) != units.Decimals {
			logging.Warn("stable token decimals differ from display precision",
				"token", token.Address().Hex(),
				"decimals", d,
				"assumed", units.Decimals)
		}
	}

	id, err := s.Gateway.ResolveUserID(ctx, s.Context.Owner)
	if err != nil {
		logging.Debug("user id lookup failed", logging.Err(err))
	}

	res := BalanceOutput{
		Address:       s.Context.Owner.Hex(),
		UserID:        id,
		Native:        balances.Native(),
		Stable:        balances.Stable(),
		Allowance:     allowance.Current(),
		MinGasReserve: balances.MinGasReserve(),
		EnoughGas:     balances.HasEnoughGas(),
	}

	out := cmd.OutOrStdout()
	if JSONOutput {
		return printJSON(out, res)
	}
	fmt.Fprintln(out, StatusBox("Balance", [][2]string{
		{"Address", FormatAddress(res.Address)},
		{"User ID", userOrZero(id)},
		{"Gas", FormatNative(res.Native)},
		{"Stable", FormatStable(res.Stable)},
		{"Allowance", FormatStable(res.Allowance)},
		{"Gas reserve", FormatNative(res.MinGasReserve)},
	}))
	if !res.EnoughGas {
		Warning(fmt.Sprintf("Gas below the %s reserve; actions will be refused.", FormatNative(res.MinGasReserve)))
	}
	return nil
}

// userOrZero renders an optional user ID.
func userOrZero(id types.UserID) string {
	if id.IsZero() {
		return "not registered"
	}
	return id.String()
}
