package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBaselineCmd() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Recompute an agent's behavioral baseline from its ledger history",
		Long: `Recompute an agent's behavioral baseline from its full ledger history.

Run this after a session has been scanned clean, so the drift detector
judges future sessions against trusted history only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			b, err := svc.UpdateBaseline(cmd.Context(), agent)
			if err != nil {
				return err
			}

			fmt.Printf("Baseline updated for agent %s\n", agent)
			fmt.Printf("  Sessions: %d\n", b.SessionCount)
			fmt.Printf("  Tools:    %d\n", len(b.ToolStats))
			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "agent ID (required)")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}
