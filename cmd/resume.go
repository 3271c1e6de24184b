package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bouncepath/internal/config"
	"github.com/cwbudde/bouncepath/internal/report"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run from its checkpoint",
	Long: `Reloads the checkpoint of a run, restores the best blend weights and
continues improving. The run file must describe the same potential fields,
vacua and symmetry as the checkpointed run; the temperature, minimizer and
improvement budget may change.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&configPath, "config", "", "Run file (YAML, required)")
	resumeCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Override the data directory of the run file")
	resumeCmd.Flags().BoolVar(&explain, "explain", false, "Print the piecewise potential of the final bounce")
	resumeCmd.Flags().BoolVar(&traceNodes, "trace-nodes", false, "Include path nodes in every trace entry")

	resumeCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return report.Error("Invalid run file", err.Error(), nil)
	}
	overrideDataDir(cfg, runDataDir)

	r, closeRunner, err := openRunner(cfg.Store.DataDir, cfg.Store.Ledger, traceNodes)
	if err != nil {
		return err
	}
	defer closeRunner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	report.Step(out, "Resuming run %s", id)

	outcome, err := r.Resume(ctx, id, cfg, printProgress(out))
	return finishRun(out, id, outcome, err)
}
