package commands

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/ledger"
	"github.com/stakedeck/stakedeck/internal/units"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// NewConfigCmd creates the contract configuration command.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the platform contract configuration",
		Long: `Show staking tiers, income settings, durations and interest rates
as currently set on the platform contract.

The configuration is read all-or-nothing; if any getter fails the command
reports that the configuration is still loading.`,
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	var cfg *types.ContractConfig
	err = WithSpinner("Reading contract configuration...", func() error {
		var err error
		cfg, err = s.Gateway.ContractConfig(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read contract configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if JSONOutput {
		return printJSON(out, cfg)
	}

	fmt.Fprintln(out, StatusBox("Staking", [][2]string{
		{"Tier 1", FormatStable(cfg.Tier1)},
		{"Tier 2", FormatStable(cfg.Tier2)},
		{"Tier 3 minimum", FormatStable(cfg.Tier3Min)},
		{"Maximum", FormatStable(cfg.MaxStake)},
		{"Min withdrawal", FormatStable(cfg.MinWithdrawal)},
	}))
	fmt.Fprintln(out, StatusBox("Income", [][2]string{
		{"Direct percent", cfg.DirectIncomePercent.String() + "%"},
		{"Direct min stake", FormatStable(cfg.DirectIncomeMinStake)},
		{"Unlock directs", cfg.LevelUnlockDirects.String()},
		{"Unlock min stake", FormatStable(cfg.LevelUnlockMinStake)},
	}))

	fmt.Fprintln(out, SectionHeader("Durations"))
	rows := make([][]string, 0, types.DurationCount)
	for i := range cfg.Durations {
		rows = append(rows, []string{
			strconv.Itoa(i),
			formatSeconds(cfg.Durations[i]),
			cfg.InterestRates[i].String(),
		})
	}
	fmt.Fprintln(out, RenderTable([]string{"Option", "Lock", "Rate"}, rows))

	fmt.Fprintln(out, SectionHeader("Level income"))
	rows = rows[:0]
	for i, p := range cfg.LevelIncomePercents {
		rows = append(rows, []string{strconv.Itoa(i + 1), p.String() + "%"})
	}
	fmt.Fprintln(out, RenderTable([]string{"Level", "Percent"}, rows))

	fmt.Fprintln(out, SectionHeader("Lifetime rewards"))
	rows = rows[:0]
	for i, t := range cfg.LifetimeRewardTiers {
		rows = append(rows, []string{strconv.Itoa(i + 1), FormatStable(t.RequiredBusiness), FormatStable(t.Reward)})
	}
	fmt.Fprintln(out, RenderTable([]string{"Tier", "Business", "Reward"}, rows))
	return nil
}

// formatSeconds renders a contract duration in whole days when possible.
func formatSeconds(v *big.Int) string {
	if v == nil {
		return "-"
	}
	d := time.Duration(v.Int64()) * time.Second
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int64(d/(24*time.Hour)))
	}
	return d.String()
}

// NewLevelsCmd creates the levels summary command.
func NewLevelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels [user-id]",
		Short: "Show member counts and business per downline level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.userArg(ctx, args, 0)
			if err != nil {
				return err
			}
			summary, err := s.Gateway.LevelsSummary(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to read levels: %w", err)
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, summary)
			}
			rows := make([][]string, 0, types.LevelCount)
			for i := range types.LevelCount {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					strconv.FormatUint(summary.Counts[i], 10),
					FormatStable(summary.Business[i]),
				})
			}
			fmt.Fprintln(out, RenderTable([]string{"Level", "Members", "Business"}, rows))
			return nil
		},
	}
}

// NewLevelUsersCmd creates the level member listing command.
func NewLevelUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "level-users <level> [user-id]",
		Short: "List the members of one downline level",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil || level < 1 || level > types.LevelCount {
				return fmt.Errorf("level must be a number between 1 and %d", types.LevelCount)
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.userArg(ctx, args, 1)
			if err != nil {
				return err
			}
			members, err := s.Gateway.LevelUsers(ctx, id, level)
			if err != nil {
				return fmt.Errorf("failed to read level %d: %w", level, err)
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, members)
			}
			if len(members.UserIDs) == 0 {
				fmt.Fprintln(out, Hint(fmt.Sprintf("No members on level %d.", level)))
				return nil
			}
			rows := make([][]string, 0, len(members.UserIDs))
			for i, uid := range members.UserIDs {
				staked := "-"
				if i < len(members.StakedAmounts) {
					staked = FormatStable(members.StakedAmounts[i])
				}
				rows = append(rows, []string{uid.String(), staked})
			}
			fmt.Fprintln(out, RenderTable([]string{"User", "Staked"}, rows))
			return nil
		},
	}
}

// NewRewardsCmd creates the lifetime reward progress command.
func NewRewardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rewards [user-id]",
		Short: "Show lifetime reward progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.userArg(ctx, args, 0)
			if err != nil {
				return err
			}
			progress, err := s.Gateway.RewardProgress(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to read reward progress: %w", err)
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, progress)
			}
			rows := make([][]string, 0, len(progress.Tiers))
			for _, t := range progress.Tiers {
				state := "locked"
				switch {
				case t.Claimed:
					state = "claimed"
				case t.Eligible:
					state = "eligible"
				}
				rows = append(rows, []string{
					strconv.Itoa(t.Tier),
					FormatStable(t.Required),
					FormatStable(t.Reward),
					StatusBadge(state),
				})
			}
			fmt.Fprintln(out, RenderTable([]string{"Tier", "Business", "Reward", "Status"}, rows))
			return nil
		},
	}
}

// StatsOutput is the JSON shape of the stats command.
type StatsOutput struct {
	Stats    *types.ContractStats `json:"stats"`
	Partners []types.Partner      `json:"partners"`
}

// NewStatsCmd creates the platform statistics command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show platform-wide totals and partners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.Gateway.ContractStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to read stats: %w", err)
			}
			partners, err := s.Gateway.Partners(ctx)
			if err != nil {
				return fmt.Errorf("failed to read partners: %w", err)
			}
			if partners == nil {
				partners = []types.Partner{}
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, StatsOutput{Stats: stats, Partners: partners})
			}
			fmt.Fprintln(out, StatusBox("Platform", [][2]string{
				{"Users", stats.TotalUsers.String()},
				{"Staked", FormatStable(stats.TotalStaked)},
				{"Withdrawn", FormatStable(stats.TotalWithdrawn)},
				{"Direct income", FormatStable(stats.TotalDirectIncome)},
				{"Level income", FormatStable(stats.TotalLevelIncome)},
				{"Staking income", FormatStable(stats.TotalStakingIncome)},
				{"Lifetime rewards", FormatStable(stats.TotalLifetimeRewards)},
				{"Contract balance", FormatStable(stats.ContractBalance)},
			}))
			if len(partners) > 0 {
				rows := make([][]string, 0, len(partners))
				for _, p := range partners {
					rows = append(rows, []string{p.Address.Hex(), p.Share.String()})
				}
				fmt.Fprintln(out, SectionHeader("Partners"))
				fmt.Fprintln(out, RenderTable([]string{"Address", "Share"}, rows))
			}
			return nil
		},
	}
}

// WhoisOutput maps a wallet to its user ID.
type WhoisOutput struct {
	Address common.Address `json:"address"`
	UserID  types.UserID   `json:"user_id"`
}

// NewWhoisCmd creates the address/user ID lookup command.
func NewWhoisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whois <address|user-id>",
		Short: "Map a wallet address to its user ID or back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			var res WhoisOutput
			if common.IsHexAddress(args[0]) {
				addr, err := ledger.ParseAddress(args[0])
				if err != nil {
					return err
				}
				id, err := s.Gateway.ResolveUserID(ctx, addr)
				if err != nil {
					return fmt.Errorf("failed to resolve %s: %w", addr.Hex(), err)
				}
				if id.IsZero() {
					return fmt.Errorf("%s is not registered", addr.Hex())
				}
				res = WhoisOutput{Address: addr, UserID: id}
			} else {
				id, err := ledger.ParseUserID(args[0])
				if err != nil {
					return err
				}
				addr, err := s.Gateway.ResolveAddress(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to resolve %s: %w", id, err)
				}
				if addr == (common.Address{}) {
					return fmt.Errorf("user %s is not registered", id)
				}
				res = WhoisOutput{Address: addr, UserID: id}
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, res)
			}
			fmt.Fprintln(out, StatusBox("Whois", [][2]string{
				{"User ID", res.UserID.String()},
				{"Address", res.Address.Hex()},
			}))
			return nil
		},
	}
}

// NewPayoutCmd shows the payout of one stake.
func NewPayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payout <stake-index> [user-id]",
		Short: "Show the payout (principal and interest) of a stake",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stake index %q", args[0])
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.userArg(ctx, args, 1)
			if err != nil {
				return err
			}
			payout, err := s.Gateway.StakePayout(ctx, id, index)
			if err != nil {
				return fmt.Errorf("failed to read payout of stake %d: %w", index, err)
			}

			out := cmd.OutOrStdout()
			if JSONOutput {
				return printJSON(out, map[string]any{
					"user_id": id,
					"index":   index,
					"payout":  payout,
					"whole":   units.Whole(payout),
				})
			}
			fmt.Fprintln(out, StatusBox(fmt.Sprintf("Stake %d", index), [][2]string{
				{"User ID", id.String()},
				{"Payout", FormatStable(payout)},
			}))
			return nil
		},
	}
}
