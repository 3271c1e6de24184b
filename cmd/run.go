package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/bouncepath/internal/config"
	"github.com/cwbudde/bouncepath/internal/pathfind"
	"github.com/cwbudde/bouncepath/internal/report"
	"github.com/cwbudde/bouncepath/internal/runner"
	"github.com/cwbudde/bouncepath/internal/store"
)

var (
	configPath string
	runDataDir string
	runID      string
	explain    bool
	traceNodes bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Optimize the tunneling path for one vacuum pair",
	Long: `Builds the valley path between the configured vacua, improves it by
blending with the straight path and prints the best bounce action found.
Every improvement is checkpointed under the data directory and the pair
outcome is recorded in the ledger, so an interrupted run can be resumed.`,
	RunE: runPathOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Run file (YAML, required)")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Override the data directory of the run file")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run ID (default: random UUID)")
	runCmd.Flags().BoolVar(&explain, "explain", false, "Print the piecewise potential of the final bounce")
	runCmd.Flags().BoolVar(&traceNodes, "trace-nodes", false, "Include path nodes in every trace entry")

	runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func runPathOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return report.Error("Invalid run file", err.Error(), nil)
	}
	overrideDataDir(cfg, runDataDir)

	id := runID
	if id == "" {
		id = uuid.New().String()
	}

	r, closeRunner, err := openRunner(cfg.Store.DataDir, cfg.Store.Ledger, traceNodes)
	if err != nil {
		return err
	}
	defer closeRunner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	report.Step(out, "Run %s: %d field(s), T = %g, %s", id, cfg.Potential.Fields, cfg.Temperature, cfg.Tunneling.Symmetry)

	outcome, err := r.Run(ctx, id, cfg, printProgress(out))
	return finishRun(out, id, outcome, err)
}

func printProgress(out io.Writer) runner.Progress {
	return func(step pathfind.Step) {
		report.Step(out, "Improvement %d: action %.6g, weights (%.4f, %.4f)",
			step.Improvement, step.Action, step.Weights[0], step.Weights[1])
	}
}

// finishRun prints the summary of a run or explains why it stopped
func finishRun(out io.Writer, id string, outcome *runner.Outcome, err error) error {
	if err != nil {
		if outcome != nil && outcome.Result != nil && outcome.Result.Improvements > 0 {
			report.PrintOutcome(out, outcome)
		}
		resume := fmt.Sprintf("Continue from the last checkpoint with: bouncepath resume %s --config %s", id, configPath)
		switch {
		case errors.Is(err, context.Canceled):
			report.Warning(out, "Run %s interrupted", id)
			fmt.Fprintln(out, resume)
			return nil
		case errors.Is(err, store.ErrNotFound):
			return report.Error("Checkpoint not found", err.Error(), []string{
				"Check the run ID with: bouncepath checkpoints list",
			})
		}
		return report.Error("Run failed", err.Error(), []string{
			"Check that the false vacuum is a local minimum above the true vacuum",
			resume,
		})
	}

	report.PrintOutcome(out, outcome)
	if explain && outcome.Bubble != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Bounce potential along the path (x is the auxiliary variable):")
		fmt.Fprintln(out, report.DescribeSpline(outcome.Bubble.Spline))
	}
	report.Success(out, "Run %s complete", id)
	return nil
}
