package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/garagon/aguara"
	"github.com/spf13/cobra"

	"github.com/Intellirim/inalign/internal/engine"
)

func newRulesCmd() *cobra.Command {
	var explain string
	var watch bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List or explain tool-result injection rules",
		Example: `  inalign rules
  inalign rules --explain INA-001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return watchRules()
			}

			// Extract the embedded rules so they're visible alongside Aguara's
			embeddedDir, err := engine.ExtractRulesDir()
			if err != nil {
				return fmt.Errorf("extracting embedded rules: %w", err)
			}
			defer os.RemoveAll(embeddedDir) //nolint:errcheck // best-effort cleanup

			opts := []aguara.Option{aguara.WithCustomRules(embeddedDir)}
			if dir := loadConfig().CustomRulesDir; dir != "" {
				opts = append(opts, aguara.WithCustomRules(dir))
			}

			if explain != "" {
				detail, err := aguara.ExplainRule(explain, opts...)
				if err != nil {
					return err
				}
				fmt.Printf("Rule: %s\n", detail.ID)
				fmt.Printf("Name: %s\n", detail.Name)
				fmt.Printf("Severity: %s\n", detail.Severity)
				fmt.Printf("Category: %s\n", detail.Category)
				fmt.Printf("Description: %s\n", detail.Description)
				fmt.Println("\nPatterns:")
				for _, p := range detail.Patterns {
					fmt.Printf("  %s\n", p)
				}
				return nil
			}

			allRules := aguara.ListRules(opts...)
			fmt.Printf("Loaded %d detection rules:\n\n", len(allRules))
			for _, r := range allRules {
				fmt.Printf("  %-12s %-10s %s\n", r.ID, r.Severity, r.Name)
			}

			// Verify the engine is working
			result, err := aguara.ScanContent(context.Background(), "test", "test.md", opts...)
			if err != nil {
				return fmt.Errorf("engine check: %w", err)
			}
			fmt.Printf("\nEngine status: OK (%d rules loaded)\n", result.RulesLoaded)
			return nil
		},
	}

	cmd.Flags().StringVar(&explain, "explain", "", "explain a specific rule by ID")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the custom rules directory on change until interrupted")
	return cmd
}

// watchRules hot-reloads the custom rules directory until Ctrl-C. Useful
// while authoring rules: edits take effect on the next scan without a
// restart.
func watchRules() error {
	cfg := loadConfig()
	if cfg.CustomRulesDir == "" {
		return fmt.Errorf("custom_rules_dir is not configured")
	}

	logger := newLogger(cfg)
	scanner := engine.NewScanner(cfg.CustomRulesDir)
	defer scanner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.CustomRulesDir)
	return scanner.Watch(ctx, logger)
}
