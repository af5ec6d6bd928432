package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	inalign "github.com/Intellirim/inalign"
	"github.com/Intellirim/inalign/internal/config"
	"github.com/Intellirim/inalign/internal/telemetry"
)

var (
	cfgFile string
	trace   bool
)

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "inalign",
		Short: "Provenance ledger and behavior analysis for AI agents",
		Long:  "Inalign — Hash-chained activity ledger, knowledge graph, and attack-pattern detection for AI agent sessions. No LLM. Single binary.",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "inalign.yaml", "config file path")
	root.PersistentFlags().BoolVar(&trace, "trace", false, "emit trace spans to stderr")

	root.AddCommand(
		newInitCmd(),
		newKeygenCmd(),
		newRecordCmd(),
		newIngestCmd(),
		newVerifyCmd(),
		newMerkleCmd(),
		newPopulateCmd(),
		newScanCmd(),
		newQueryCmd(),
		newBaselineCmd(),
		newArchiveCmd(),
		newRulesCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Defaults()
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openService builds the service from config and installs trace export when
// requested. The second return value shuts down both.
func openService(ctx context.Context) (*inalign.Service, func(), error) {
	cfg := loadConfig()
	logger := newLogger(cfg)

	shutdownTrace := func(context.Context) error { return nil }
	if trace || cfg.Telemetry.Traces {
		var err error
		shutdownTrace, err = telemetry.Setup(os.Stderr)
		if err != nil {
			return nil, nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	svc, err := inalign.Open(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTrace(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		_ = svc.Close()
		_ = shutdownTrace(context.Background())
	}
	return svc, cleanup, nil
}
