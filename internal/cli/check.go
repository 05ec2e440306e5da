package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

func newCheckCmd() *cobra.Command {
	var (
		agentID    string
		actionType string
		value      float64
	)

	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Ask whether an agent may perform an action",
		Example: "  agentgate check --agent sales --action issue_refund --value 250",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentID == "" || actionType == "" {
				return errors.New("--agent and --action are required")
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			in := domain.AutonomyCheckInput{AgentID: agentID, ActionType: actionType}
			if cmd.Flags().Changed("value") {
				in.Value = &value
			}
			res, err := a.service.CheckAutonomy(cmd.Context(), in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&actionType, "action", "", "action type, e.g. send_email")
	cmd.Flags().Float64Var(&value, "value", 0, "monetary value of the action")

	return cmd
}
