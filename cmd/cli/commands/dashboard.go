package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/staking"
	"github.com/stakedeck/stakedeck/pkg/types"
)

// NewDashboardCmd creates the dashboard command.
func NewDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard [user-id]",
		Short: "Show a user's dashboard",
		Long: `Show profile, team, income and stakes for a user.

Without an argument the dashboard of the configured wallet is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDashboard,
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
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

	var d *types.UserDashboard
	err = WithSpinner("Loading dashboard...", func() error {
		var err error
		d, err = s.Dashboards.Load(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to load dashboard: %w", err)
	}
	if d == nil {
		return fmt.Errorf("user %s is not registered", id)
	}

	out := cmd.OutOrStdout()
	if JSONOutput {
		return printJSON(out, d)
	}

	status := "inactive"
	if d.Profile.IsActive {
		status = "active"
	}
	fmt.Fprintln(out, StatusBox("User "+d.Profile.UserID.String(), [][2]string{
		{"Wallet", d.Profile.Wallet.Hex()},
		{"Referrer", d.Profile.Referrer.Hex()},
		{"Registered", d.Profile.RegisteredAt.Format(time.DateOnly)},
		{"Status", StatusBadge(status)},
	}))

	fmt.Fprintln(out, SectionHeader("Income"))
	fmt.Fprintln(out, StatusBox("Income", [][2]string{
		{"Direct", FormatStable(d.Income.DirectIncome)},
		{"Level", FormatStable(d.Income.LevelIncome)},
		{"Staking", FormatStable(d.Income.StakingIncome)},
		{"Lifetime rewards", FormatStable(d.Income.LifetimeRewardIncome)},
		{"Total", FormatStable(d.Income.TotalIncome)},
		{"Available", FormatStable(d.Income.AvailableBalance)},
		{"Withdrawn", FormatStable(d.Income.TotalWithdrawn)},
		{"Distributed", FormatStable(d.TotalDistributed)},
	}))

	fmt.Fprintln(out, SectionHeader("Team"))
	fmt.Fprintln(out, StatusBox("Team", [][2]string{
		{"Directs", fmt.Sprintf("%d (%d qualified)", d.Team.DirectCount, d.Team.QualifiedDirectCount)},
		{"Direct business", FormatStable(d.Team.DirectBusiness)},
		{"Team size", strconv.FormatUint(d.Team.TeamSize, 10)},
		{"Team business", FormatStable(d.Team.TeamBusiness)},
		{"Unlocked levels", fmt.Sprintf("%d/%d", d.UnlockedLevels, types.LevelCount)},
	}))

	fmt.Fprintln(out, SectionHeader("Stakes"))
	if len(d.Stakes) == 0 {
		fmt.Fprintln(out, Hint("No stakes yet."))
	} else {
		rows := make([][]string, 0, len(d.Stakes))
		for _, v := range d.Stakes {
			rows = append(rows, stakeRow(v))
		}
		fmt.Fprintln(out, RenderTable([]string{"#", "Amount", "Rate", "Ends", "Progress", "Status"}, rows))
	}

	if len(d.ReadyToClaim) > 0 {
		fmt.Fprintln(out, Hint(fmt.Sprintf("%d stake(s) ready: stakedeck claim <index> or stakedeck restake <index>", len(d.ReadyToClaim))))
	}
	if history := d.History(); len(history) > 0 {
		if next := staking.MinimumNextStake(history, nil); next.Sign() > 0 {
			fmt.Fprintln(out, Hint("Minimum next stake: "+FormatStable(next)))
		}
	}
	if d.NextReward.Amount != nil && d.NextReward.Amount.Sign() > 0 {
		state := "locked"
		if d.NextReward.Eligible {
			state = "eligible"
		}
		fmt.Fprintln(out, Hint(fmt.Sprintf("Next lifetime reward: tier %d, %s (%s)", d.NextReward.Tier, FormatStable(d.NextReward.Amount), state)))
	}
	return nil
}

func stakeRow(v types.StakeView) []string {
	status := "in progress"
	switch {
	case v.IsClaimed:
		status = "claimed"
	case v.IsMatured:
		status = "matured"
	}
	return []string{
		strconv.Itoa(v.Index),
		FormatStable(v.Amount),
		v.InterestRate.String(),
		v.EndTime.Format(time.DateOnly),
		fmt.Sprintf("%.0f%% (%dd left)", v.ProgressPercent, v.DaysLeft),
		StatusBadge(status),
	}
}
