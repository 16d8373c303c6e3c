package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCmd creates the completion command for shell auto-completion.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for stakedeck.

To load completions:

Bash:
  $ source <(stakedeck completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ stakedeck completion bash > /etc/bash_completion.d/stakedeck
  # macOS:
  $ stakedeck completion bash > $(brew --prefix)/etc/bash_completion.d/stakedeck

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ stakedeck completion zsh > "${fpath[1]}/_stakedeck"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ stakedeck completion fish | source
  # To load completions for each session, execute once:
  $ stakedeck completion fish > ~/.config/fish/completions/stakedeck.fish

PowerShell:
  PS> stakedeck completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, add the output to your profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(cmd.OutOrStdout(), true)
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
