package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/archive"
)

func newArchiveCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Copy a verified session to the Postgres compliance archive",
		Long: `Copy a session's records and Merkle root to the Postgres archive.

The session must verify cleanly first; a tampered chain is never archived.
Requires archive.postgres_dsn in the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.Archive.PostgresDSN == "" {
				return fmt.Errorf("archive.postgres_dsn is not configured")
			}

			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := svc.Verify(cmd.Context(), session, false)
			if err != nil {
				return err
			}
			if !rep.Valid {
				return fmt.Errorf("session %s failed verification, refusing to archive", session)
			}

			root, err := svc.MerkleRoot(cmd.Context(), session)
			if err != nil {
				return err
			}
			records, err := svc.Ledger().Records(cmd.Context(), session)
			if err != nil {
				return err
			}

			arch, err := archive.New(cmd.Context(), cfg.Archive.PostgresDSN)
			if err != nil {
				return err
			}
			defer arch.Close()

			if err := arch.ArchiveSession(cmd.Context(), session, root, records); err != nil {
				return err
			}

			fmt.Printf("Archived session %s\n", session)
			fmt.Printf("  Records:     %d\n", len(records))
			fmt.Printf("  Merkle root: %s\n", root[:16]+"...")
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
