package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Time out pending approvals past their expiry once and exit",
		Long:  "sweep runs one approval expiry pass. Use it from cron or another external\nscheduler when the monitor in `serve` is disabled with SWEEP_INTERVAL=0.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.service.SweepExpiredApprovals(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "timed out %d approval(s)\n", n)
			return nil
		},
	}
}
