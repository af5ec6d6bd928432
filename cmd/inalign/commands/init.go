package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
			}

			cfg := config.Defaults()
			if err := cfg.Save(cfgFile); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", cfgFile)
			fmt.Printf("  Ledger db: %s\n", cfg.Storage.Path)
			fmt.Printf("  Keys dir:  %s\n", cfg.Identity.KeysDir)
			fmt.Println("\nNext steps:")
			fmt.Println("  inalign keygen            # if you want signed records")
			fmt.Println("  inalign ingest <file>     # load a session transcript")
			fmt.Println("  inalign scan --session s  # analyze it")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
