package commands

import "github.com/spf13/cobra"

// Register adds the global flags and every command to root.
func Register(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&ConfigPath, "config", "", "Path to config file (default: ~/.stakedeck/config.yaml)")
	flags.BoolVar(&MockMode, "mock", false, "Use the in-memory mock ledger")
	flags.BoolVar(&JSONOutput, "json", false, "Print JSON instead of styled output")
	flags.BoolVarP(&AssumeYes, "yes", "y", false, "Do not ask for confirmation before sending transactions")

	root.AddCommand(
		NewInitCmd(),
		NewWalletCmd(),
		NewDashboardCmd(),
		NewConfigCmd(),
		NewLevelsCmd(),
		NewLevelUsersCmd(),
		NewRewardsCmd(),
		NewStatsCmd(),
		NewWhoisCmd(),
		NewPayoutCmd(),
		NewBalanceCmd(),
		NewRegisterCmd(),
		NewStakeCmd(),
		NewClaimCmd(),
		NewRestakeCmd(),
		NewWithdrawCmd(),
		NewApproveCmd(),
		NewAdminCmd(),
		NewShareCmd(),
		NewVerifyShareCmd(),
		NewVersionCmd(),
		NewCompletionCmd(),
		NewManCmd(),
	)
}
