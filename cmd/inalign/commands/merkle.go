package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMerkleCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "merkle",
		Short: "Compute the Merkle root sealing a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			root, err := svc.MerkleRoot(cmd.Context(), session)
			if err != nil {
				return err
			}
			fmt.Println(root)
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session ID (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
