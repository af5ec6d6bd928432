package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPopulateCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Project a session's ledger records into the knowledge graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.PopulateGraph(cmd.Context(), session)
			if err != nil {
				return err
			}

			fmt.Printf("Populated session %s\n", session)
			fmt.Printf("  Nodes created: %d\n", res.NodesCreated)
			fmt.Printf("  Edges created: %d\n", res.EdgesCreated)
			if res.Skipped > 0 {
				fmt.Printf("  Skipped:       %d (malformed records)\n", res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
