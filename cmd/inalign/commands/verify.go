package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var session string
	var full bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a session's hash chain",
		Example: `  inalign verify --session session-0142
  inalign verify --session session-0142 --full`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := svc.Verify(cmd.Context(), session, full)
			if err != nil {
				return err
			}

			if rep.Valid {
				color.Green("Chain valid: %d records in session %s", rep.RecordCount, session)
				return nil
			}

			color.Red("Chain INVALID: session %s (%d records)", session, rep.RecordCount)
			for _, f := range rep.Failures {
				fmt.Printf("  [%d] %s: %s\n", f.Index, f.Kind, f.Detail)
			}
			return fmt.Errorf("%d integrity violation(s)", len(rep.Failures))
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	cmd.Flags().BoolVar(&full, "full", false, "report every violation instead of stopping at the first")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
