package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/internal/config"
)

// initOptions holds the values init writes to config.yaml.
type initOptions struct {
	rpcURL         string
	chainID        string
	platform       string
	stableToken    string
	force          bool
	nonInteractive bool
}

func NewInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file",
		Long: `Create ~/.stakedeck/config.yaml (or --config) with the RPC endpoint,
chain ID and contract addresses, and create the keystore directory.

On a terminal the values are asked for interactively; otherwise pass them
as flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.rpcURL, "rpc-url", "", "JSON-RPC endpoint")
	cmd.Flags().StringVar(&opts.chainID, "chain-id", "56", "Chain ID")
	cmd.Flags().StringVar(&opts.platform, "platform", "", "Platform contract address")
	cmd.Flags().StringVar(&opts.stableToken, "stable-token", "", "Stable token address")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&opts.nonInteractive, "non-interactive", false, "Do not prompt")

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions) error {
	path := ConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.DefaultConfig()
	if opts.rpcURL == "" {
		opts.rpcURL = cfg.Chain.RPCURLs[0]
	}

	if !opts.nonInteractive && !JSONOutput && isStdinTTY() {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("RPC endpoint").Value(&opts.rpcURL).Validate(validateURL),
				huh.NewInput().Title("Chain ID").Value(&opts.chainID).Validate(validateChainID),
				huh.NewInput().Title("Platform contract").Value(&opts.platform).Validate(validateAddress),
				huh.NewInput().Title("Stable token").Value(&opts.stableToken).Validate(validateAddress),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
	}

	if err := validateURL(opts.rpcURL); err != nil {
		return err
	}
	if err := validateChainID(opts.chainID); err != nil {
		return err
	}
	chainID, _ := strconv.ParseInt(opts.chainID, 10, 64)

	cfg.Chain.RPCURLs = []string{opts.rpcURL}
	cfg.Chain.ChainID = chainID
	cfg.Contracts.Platform = opts.platform
	cfg.Contracts.StableToken = opts.stableToken
	if MockMode {
		cfg.Mock = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if JSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]string{"config": path, "keystore": cfg.Wallet.KeystoreDir})
	}
	Success("Configuration written to " + path)
	fmt.Println(Hint("Next: stakedeck wallet create"))
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL %q", s)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	}
	return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
}

func validateChainID(s string) error {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("chain ID must be a positive integer")
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return errors.New("must be a 0x-prefixed contract address")
	}
	return nil
}
