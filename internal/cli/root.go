// Package cli implements the agentgate command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is reported by --version.
const Version = "0.1.0"

// Execute runs the root command with os.Args.
func Execute(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "agentgate:", err)
		return 1
	}
	return 0
}

// NewRootCmd creates the root agentgate command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentgate",
		Short:         "Autonomy gating and agent handoffs",
		Long:          "agentgate decides what agents may do on their own, routes the rest to\nhuman approval and moves conversations between agents.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("agentgate {{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newSweepCmd(),
		newCheckCmd(),
		newBridgeCmd(),
		newWatchCmd(),
	)

	return cmd
}
