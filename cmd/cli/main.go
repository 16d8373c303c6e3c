package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stakedeck/stakedeck/cmd/cli/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stakedeck",
		Short:         "Staking platform dashboard and wallet client",
		Long:          "Read the staking platform contract, follow your dashboard and submit stakes, claims and withdrawals from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.Register(root)
	return root
}
