package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/identity"
)

func newKeygenCmd() *cobra.Command {
	var name string
	var outDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 keypair for record signing",
		Example: `  inalign keygen --out ./keys/
  inalign keygen --name ci-recorder --out ./keys/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := identity.GenerateKeypair(name)
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}
			if err := kp.Save(outDir); err != nil {
				return fmt.Errorf("saving keypair: %w", err)
			}
			fp := identity.Fingerprint(kp.PublicKey)
			fmt.Printf("Generated keypair %s\n", name)
			fmt.Printf("  Private: %s/%s.key\n", outDir, name)
			fmt.Printf("  Public:  %s/%s.pub\n", outDir, name)
			fmt.Printf("  Fingerprint: %s\n", fp[:16]+"...")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "inalign", "key name")
	cmd.Flags().StringVar(&outDir, "out", "./keys", "output directory for keys")
	return cmd
}
