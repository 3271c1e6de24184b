package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bouncepath/internal/config"
	"github.com/cwbudde/bouncepath/internal/runner"
	"github.com/cwbudde/bouncepath/internal/store"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bouncepath",
	Short: "Tunneling path optimization between false and true vacua",
	Long: `bouncepath finds the tunneling path of least bounce action between a
false and a true vacuum of a polynomial field potential. It starts from the
valley path, blends it with the straight line between the vacua and keeps
the best blend, checkpointing every improvement so runs can be resumed.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// overrideDataDir moves the run artifacts, and the ledger too when it sits
// at its default location inside the data directory.
func overrideDataDir(cfg *config.Config, dataDir string) {
	if dataDir == "" || dataDir == cfg.Store.DataDir {
		return
	}
	if cfg.Store.Ledger == filepath.Join(cfg.Store.DataDir, "outcomes.db") {
		cfg.Store.Ledger = filepath.Join(dataDir, "outcomes.db")
	}
	cfg.Store.DataDir = dataDir
}

// openRunner builds a runner writing checkpoints under dataDir and outcomes
// to the ledger at ledgerPath. The returned func closes the ledger.
func openRunner(dataDir, ledgerPath string, traceNodes bool) (*runner.Runner, func(), error) {
	fsStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	ledger, err := store.OpenLedger(ledgerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open outcome ledger: %w", err)
	}
	closeLedger := func() {
		if err := ledger.Close(); err != nil {
			slog.Warn("Failed to close ledger", "error", err)
		}
	}
	return &runner.Runner{Store: fsStore, Ledger: ledger, TraceNodes: traceNodes}, closeLedger, nil
}
