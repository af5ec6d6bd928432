package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "ingest <transcript.jsonl>",
		Short: "Append every event in a JSONL transcript to a session chain",
		Args:  cobra.ExactArgs(1),
		Example: `  inalign ingest session-0142.jsonl --session session-0142`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			appended, skipped, err := svc.Ingest(cmd.Context(), args[0], session)
			if err != nil {
				return err
			}

			fmt.Printf("Appended %d records to session %s\n", appended, session)
			if skipped > 0 {
				fmt.Printf("  Skipped %d malformed lines\n", skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
