package commands

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/staking"
	"github.com/stakedeck/stakedeck/internal/units"
)

// ActionOutput is the JSON shape of a value-moving command.
type ActionOutput struct {
	*staking.Result
	OK      bool   `json:"ok"`
	Failure string `json:"failure,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// stakeFlags are shared by register, stake and restake.
type stakeFlags struct {
	tier     string
	duration uint8
}

func (f *stakeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tier, "tier", "auto", "Amount band: auto, 1, 2 or custom")
	cmd.Flags().Uint8Var(&f.duration, "duration", 0, "Duration option index (see: stakedeck config)")
}

func (f *stakeFlags) parse() (staking.Tier, error) {
	return staking.ParseTier(f.tier)
}

// parseAmount parses a decimal token amount into fixed point.
func parseAmount(name, s string) (*big.Int, error) {
	v, err := units.ToFixedPoint(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

// stepPrinter reports action steps as they happen.
func stepPrinter(w io.Writer) staking.StepFunc {
	return func(st staking.Step) {
		if JSONOutput {
			return
		}
		line := fmt.Sprintf("  %-20s %s", st.State, st.Detail)
		if isTTY() {
			line = StyleMuted.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}

// runAction opens a signing session, confirms and runs one orchestrator
// action, then reports the result.
func runAction(cmd *cobra.Command, summary string, do func(ctx context.Context, o *staking.Orchestrator) *staking.Result) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := Confirm(summary, "Wallet "+s.Context.Owner.Hex())
	if err != nil {
		return err
	}
	if !ok {
		Info("Cancelled.")
		return nil
	}

	o := s.Orchestrator(stepPrinter(cmd.ErrOrStderr()))
	res := do(ctx, o)
	return reportAction(cmd.OutOrStdout(), res)
}

func reportAction(out io.Writer, res *staking.Result) error {
	if JSONOutput {
		outcome := ActionOutput{Result: res, OK: res.OK()}
		if f := res.Failure(); f != nil {
			outcome.Failure = f.Kind.String()
			outcome.Reason = f.Reason
		} else if res.Err != nil {
			outcome.Failure = res.Err.Error()
		}
		if err := printJSON(out, outcome); err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("%s failed", res.Action)
		}
		return nil
	}

	if !res.OK() {
		if f := res.Failure(); f != nil {
			return fmt.Errorf("%s: %s", f.Kind, f.Reason)
		}
		return res.Err
	}

	fields := [][2]string{
		{"Action", string(res.Action)},
		{"Status", StatusBadge("confirmed")},
	}
	if !res.UserID.IsZero() {
		fields = append(fields, [2]string{"User ID", res.UserID.String()})
	}
	if res.Approval != nil {
		fields = append(fields, [2]string{"Approval tx", res.Approval.TxHash.Hex()})
	}
	fields = append(fields,
		[2]string{"Tx", res.Receipt.TxHash.Hex()},
		[2]string{"Block", strconv.FormatUint(res.Receipt.BlockNumber, 10)},
	)
	fmt.Fprintln(out, StatusBox("Confirmed", fields))
	return nil
}

// NewRegisterCmd creates the register command.
func NewRegisterCmd() *cobra.Command {
	var amount string
	var sf stakeFlags

	cmd := &cobra.Command{
		Use:   "register <referrer-id>",
		Short: "Register the wallet under a referrer with a first stake",
		Long: `Register the configured wallet under an existing user and open the
first stake. The stable token allowance is raised first when it does not
cover the amount.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			tier, err := sf.parse()
			if err != nil {
				return err
			}
			req := staking.RegisterRequest{Referrer: args[0], Amount: amt, Tier: tier, Duration: sf.duration}
			summary := fmt.Sprintf("Register under %s with %s?", args[0], FormatStable(amt))
			return runAction(cmd, summary, func(ctx context.Context, o *staking.Orchestrator) *staking.Result {
				return o.Register(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "Stake amount (required)")
	sf.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// NewStakeCmd creates the stake command.
func NewStakeCmd() *cobra.Command {
	var sf stakeFlags

	cmd := &cobra.Command{
		Use:   "stake <amount>",
		Short: "Open a new stake",
		Long: `Open a new stake from the wallet. The amount must lie in the selected
tier band and may not be lower than the most recent stake.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount("amount", args[0])
			if err != nil {
				return err
			}
			tier, err := sf.parse()
			if err != nil {
				return err
			}
			req := staking.StakeRequest{Amount: amt, Tier: tier, Duration: sf.duration}
			return runAction(cmd, fmt.Sprintf("Stake %s?", FormatStable(amt)), func(ctx context.Context, o *staking.Orchestrator) *staking.Result {
				return o.Stake(ctx, req)
			})
		},
	}

	sf.register(cmd)
	return cmd
}

func parseStakeIndex(s string) (uint64, error) {
	index, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stake index %q", s)
	}
	return index, nil
}

// NewClaimCmd creates the claim command.
func NewClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <stake-index>",
		Short: "Claim a matured stake to the available balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseStakeIndex(args[0])
			if err != nil {
				return err
			}
			return runAction(cmd, fmt.Sprintf("Claim stake %d?", index), func(ctx context.Context, o *staking.Orchestrator) *staking.Result {
				return o.Claim(ctx, staking.ClaimRequest{StakeIndex: index})
			})
		},
	}
}

// NewRestakeCmd creates the claim-and-restake command.
func NewRestakeCmd() *cobra.Command {
	var fromPayout, fromWallet string
	var sf stakeFlags

	cmd := &cobra.Command{
		Use:   "restake <stake-index>",
		Short: "Claim a matured stake and reinvest part of the payout",
		Long: `Claim a matured stake and open a new one from part of its payout,
optionally topped up from the wallet. The rest of the payout is credited
to the available balance. With both amounts zero this is a plain claim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseStakeIndex(args[0])
			if err != nil {
				return err
			}
			payoutAmt, err := parseAmount("--from-payout", fromPayout)
			if err != nil {
				return err
			}
			walletAmt, err := parseAmount("--from-wallet", fromWallet)
			if err != nil {
				return err
			}
			tier, err := sf.parse()
			if err != nil {
				return err
			}
			req := staking.RestakeRequest{
				StakeIndex: index,
				FromPayout: payoutAmt,
				FromWallet: walletAmt,
				Tier:       tier,
				Duration:   sf.duration,
			}
			total := new(big.Int).Add(payoutAmt, walletAmt)
			summary := fmt.Sprintf("Claim stake %d and restake %s?", index, FormatStable(total))
			return runAction(cmd, summary, func(ctx context.Context, o *staking.Orchestrator) *staking.Result {
				return o.ClaimAndRestake(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&fromPayout, "from-payout", "0", "Amount of the payout to restake")
	cmd.Flags().StringVar(&fromWallet, "from-wallet", "0", "Amount to add from the wallet")
	sf.register(cmd)
	return cmd
}

// NewWithdrawCmd creates the withdraw command.
func NewWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Withdraw from the available balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount("amount", args[0])
			if err != nil {
				return err
			}
			return runAction(cmd, fmt.Sprintf("Withdraw %s?", FormatStable(amt)), func(ctx context.Context, o *staking.Orchestrator) *staking.Result {
				return o.Withdraw(ctx, staking.WithdrawRequest{Amount: amt})
			})
		},
	}
}

// ApproveOutput is the JSON shape of the approve command.
type ApproveOutput struct {
	Spender   string          `json:"spender"`
	Requested *big.Int        `json:"requested"`
	Allowance *big.Int        `json:"allowance"`
	Approved  bool            `json:"approved"`
	Receipt   *ledger.Receipt `json:"receipt,omitempty"`
}

// NewApproveCmd creates the standalone approve command.
func NewApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <amount>",
		Short: "Set the platform's stable token allowance to exactly amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount("amount", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			allowance, balances := s.Guards()
			if err := balances.Refresh(ctx); err != nil {
				return fmt.Errorf("failed to read balances: %w", err)
			}
			if !balances.HasEnoughGas() {
				return fmt.Errorf("insufficient gas: %s below the %s reserve",
					FormatNative(balances.Native()), FormatNative(balances.MinGasReserve()))
			}

			ok, err := Confirm(fmt.Sprintf("Approve %s?", FormatStable(amt)), "Spender "+s.Platform.Hex())
			if err != nil || !ok {
				return err
			}

			var (
				receipt  *ledger.Receipt
				approved bool
			)
			err = WithSpinner("Waiting for approval...", func() error {
				receipt, approved = allowance.ApproveReceipt(ctx, amt)
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				if err := printJSON(out, ApproveOutput{
					Spender:   s.Platform.Hex(),
					Requested: amt,
					Allowance: allowance.Current(),
					Approved:  approved,
					Receipt:   receipt,
				}); err != nil {
					return err
				}
			}
			if !approved {
				return fmt.Errorf("approval failed")
			}
			if !JSONOutput {
				fmt.Fprintln(out, StatusBox("Allowance", [][2]string{
					{"Spender", s.Platform.Hex()},
					{"Allowance", FormatStable(allowance.Current())},
				}))
			}
			return nil
		},
	}
}
