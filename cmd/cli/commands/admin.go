package commands

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/logging"
	"github.com/stakedeck/stakedeck/pkg/types"
)

const secondsPerDay = 24 * 60 * 60

// NewAdminCmd creates the owner-only admin command group.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Owner-only platform configuration",
		Long: `Submit owner-only configuration transactions to the platform contract.

The contract rejects these calls from any wallet other than its owner.
Every submission is recorded in the audit log.`,
	}

	cmd.AddCommand(newAdminSetMinWithdrawalCmd())
	cmd.AddCommand(newAdminSetStakingTiersCmd())
	cmd.AddCommand(newAdminSetDurationsCmd())
	cmd.AddCommand(newAdminSetInterestRatesCmd())
	cmd.AddCommand(newAdminSetDirectIncomeCmd())
	cmd.AddCommand(newAdminSetLevelUnlockCmd())
	cmd.AddCommand(newAdminSetLevelIncomeCmd())
	cmd.AddCommand(newAdminSetRewardTierCmd())
	cmd.AddCommand(newAdminSetPartnersCmd())
	cmd.AddCommand(newAdminTransferFirstUserCmd())
	cmd.AddCommand(newAdminEmergencyWithdrawCmd())

	return cmd
}

func auditResult(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// runAdmin confirms and submits one admin transaction and audits the outcome.
func runAdmin(cmd *cobra.Command, operation, details string, submit func(ctx context.Context, admin ledger.Admin) (*ledger.Receipt, error)) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := Confirm(fmt.Sprintf("Submit %s?", operation), details)
	if err != nil || !ok {
		return err
	}

	var receipt *ledger.Receipt
	err = WithSpinner("Submitting "+operation+"...", func() error {
		var err error
		receipt, err = submit(ctx, s.Admin)
		return err
	})
	logging.Audit(logging.AuditEvent{
		Operation: operation,
		Actor:     s.Context.Owner.Hex(),
		Target:    s.Platform.Hex(),
		Result:    auditResult(err == nil),
		Details:   details,
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	out := cmd.OutOrStdout()
	if JSONOutput {
		return printJSON(out, receipt)
	}
	fmt.Fprintln(out, StatusBox("Confirmed", [][2]string{
		{"Operation", operation},
		{"Tx", receipt.TxHash.Hex()},
		{"Block", strconv.FormatUint(receipt.BlockNumber, 10)},
	}))
	return nil
}

// parseAmounts parses token amounts, one per argument.
func parseAmounts(args []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(args))
	for i, a := range args {
		v, err := parseAmount("amount", a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parseIntegers parses plain non-negative integers such as percents.
func parseIntegers(args []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(args))
	for i, a := range args {
		v, ok := new(big.Int).SetString(a, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid integer %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func newAdminSetMinWithdrawalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-min-withdrawal <amount>",
		Short: "Set the minimum withdrawal amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount("amount", args[0])
			if err != nil {
				return err
			}
			return runAdmin(cmd, "set_min_withdrawal", FormatStable(amt), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetMinWithdrawal(ctx, amt)
			})
		},
	}
}

func newAdminSetStakingTiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-staking-tiers <tier1> <tier2> <tier3-min> <max>",
		Short: "Set the stake amount bands",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseAmounts(args)
			if err != nil {
				return err
			}
			for i := 1; i < len(v); i++ {
				if v[i].Cmp(v[i-1]) < 0 {
					return fmt.Errorf("tiers must be ascending: %s < %s", args[i], args[i-1])
				}
			}
			return runAdmin(cmd, "set_staking_tiers", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetStakingTiers(ctx, v[0], v[1], v[2], v[3])
			})
		},
	}
}

func newAdminSetDurationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-durations <days> <days> <days> <days>",
		Short: "Set the four lock durations, in days",
		Args:  cobra.ExactArgs(types.DurationCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := parseIntegers(args)
			if err != nil {
				return err
			}
			var durations [types.DurationCount]*big.Int
			for i, d := range days {
				if d.Sign() == 0 {
					return fmt.Errorf("duration %d must be at least one day", i)
				}
				durations[i] = new(big.Int).Mul(d, big.NewInt(secondsPerDay))
			}
			return runAdmin(cmd, "set_durations", strings.Join(args, " ")+" days", func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetDurations(ctx, durations)
			})
		},
	}
}

func newAdminSetInterestRatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-interest-rates <rate> <rate> <rate> <rate>",
		Short: "Set the interest rate of each duration option",
		Long:  "Set the interest rate of each duration option, in the contract's own scale.",
		Args:  cobra.ExactArgs(types.DurationCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseIntegers(args)
			if err != nil {
				return err
			}
			var rates [types.DurationCount]*big.Int
			copy(rates[:], v)
			return runAdmin(cmd, "set_interest_rates", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetInterestRates(ctx, rates)
			})
		},
	}
}

func newAdminSetDirectIncomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-direct-income <percent> <min-stake>",
		Short: "Set the direct income percent and qualifying stake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := parseIntegers(args[:1])
			if err != nil {
				return err
			}
			minStake, err := parseAmount("min-stake", args[1])
			if err != nil {
				return err
			}
			return runAdmin(cmd, "set_direct_income_config", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetDirectIncomeConfig(ctx, pct[0], minStake)
			})
		},
	}
}

func newAdminSetLevelUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-level-unlock <directs> <min-stake>",
		Short: "Set the level unlock thresholds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			directs, err := parseIntegers(args[:1])
			if err != nil {
				return err
			}
			minStake, err := parseAmount("min-stake", args[1])
			if err != nil {
				return err
			}
			return runAdmin(cmd, "set_level_unlock_config", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetLevelUnlockConfig(ctx, directs[0], minStake)
			})
		},
	}
}

func newAdminSetLevelIncomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-level-income <percent>...",
		Short: fmt.Sprintf("Set the %d level income percents", types.LevelCount),
		Args:  cobra.ExactArgs(types.LevelCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseIntegers(args)
			if err != nil {
				return err
			}
			var percents [types.LevelCount]*big.Int
			copy(percents[:], v)
			return runAdmin(cmd, "set_level_income_percents", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetLevelIncomePercents(ctx, percents)
			})
		},
	}
}

func newAdminSetRewardTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-reward-tier <tier> <required-business> <reward>",
		Short: "Set one lifetime reward tier (1-6)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := strconv.Atoi(args[0])
			if err != nil || tier < 1 || tier > types.RewardTierCount {
				return fmt.Errorf("tier must be between 1 and %d", types.RewardTierCount)
			}
			v, err := parseAmounts(args[1:])
			if err != nil {
				return err
			}
			return runAdmin(cmd, "set_lifetime_reward_tier", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetLifetimeRewardTier(ctx, tier-1, v[0], v[1])
			})
		},
	}
}

func newAdminSetPartnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-partners <address=share>...",
		Short: "Replace the revenue-share partners",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs := make([]string, len(args))
			shares := make([]string, len(args))
			for i, a := range args {
				addr, share, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("partner %q must be address=share", a)
				}
				addrs[i], shares[i] = addr, share
			}
			partners := make([]common.Address, len(addrs))
			for i, a := range addrs {
				addr, err := ledger.ParseAddress(a)
				if err != nil {
					return err
				}
				partners[i] = addr
			}
			v, err := parseIntegers(shares)
			if err != nil {
				return err
			}
			return runAdmin(cmd, "set_partners", strings.Join(args, " "), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.SetPartners(ctx, partners, v)
			})
		},
	}
}

func newAdminTransferFirstUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer-first-user <address>",
		Short: "Move the root user to another wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ledger.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return runAdmin(cmd, "transfer_first_user", addr.Hex(), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.TransferFirstUser(ctx, addr)
			})
		},
	}
}

func newAdminEmergencyWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emergency-withdraw <amount>",
		Short: "Withdraw stable tokens from the contract to the owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := parseAmount("amount", args[0])
			if err != nil {
				return err
			}
			return runAdmin(cmd, "emergency_withdraw", FormatStable(amt), func(ctx context.Context, a ledger.Admin) (*ledger.Receipt, error) {
				return a.EmergencyWithdraw(ctx, amt)
			})
		},
	}
}
