package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/bouncepath/internal/bounce"
	"github.com/cwbudde/bouncepath/internal/config"
	"github.com/cwbudde/bouncepath/internal/path"
	"github.com/cwbudde/bouncepath/internal/pathfind"
	"github.com/cwbudde/bouncepath/internal/store"
)

// Progress receives every improvement step after it has been persisted
type Progress func(step pathfind.Step)

// Outcome is the result of one run
type Outcome struct {
	RunID   string
	Result  *pathfind.Result
	Bubble  *bounce.Bubble
	Elapsed time.Duration
}

// Runner drives one vacuum pair from the valley path to an improved blend.
// Store and Ledger are optional; without a Store nothing is checkpointed.
type Runner struct {
	Store  *store.FSStore
	Ledger *store.Ledger
	// TraceNodes includes the path nodes in every trace entry
	TraceNodes bool
}

// Run starts a fresh run. The outcome is recorded in the ledger whether or
// not the run succeeds.
func (r *Runner) Run(ctx context.Context, runID string, cfg *config.Config, progress Progress) (*Outcome, error) {
	start := time.Now()
	slog.Info("Starting run",
		"run_id", runID,
		"fields", cfg.Potential.Fields,
		"temperature", cfg.Temperature,
		"symmetry", cfg.Tunneling.Symmetry)

	outcome, err := r.run(ctx, runID, cfg, nil, progress)
	r.record(runID, cfg, outcome, err)
	if outcome != nil {
		outcome.Elapsed = time.Since(start)
	}
	return outcome, err
}

// Resume continues runID from its checkpoint
func (r *Runner) Resume(ctx context.Context, runID string, cfg *config.Config, progress Progress) (*Outcome, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("resume needs a checkpoint store")
	}
	checkpoint, err := r.Store.LoadCheckpoint(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}
	if err := checkpoint.IsCompatible(cfg.Summary()); err != nil {
		return nil, err
	}

	start := time.Now()
	slog.Info("Resuming run",
		"run_id", runID,
		"improvements", checkpoint.Improvements,
		"best_action", checkpoint.BestAction)

	outcome, err := r.run(ctx, runID, cfg, checkpoint, progress)
	r.record(runID, cfg, outcome, err)
	if outcome != nil {
		outcome.Elapsed = time.Since(start)
	}
	return outcome, err
}

func (r *Runner) run(ctx context.Context, runID string, cfg *config.Config, checkpoint *store.Checkpoint, progress Progress) (*Outcome, error) {
	fn, err := cfg.Polynomial()
	if err != nil {
		return nil, err
	}
	calculator, err := cfg.NewActionCalculator()
	if err != nil {
		return nil, err
	}
	minimizer := cfg.NewMinimizer()

	var curved *path.LinearSplinePath
	if checkpoint != nil {
		curved, err = path.NewLinearSplineThroughNodes(checkpoint.CurvedNodes, cfg.Temperature)
		if err != nil {
			return nil, fmt.Errorf("checkpointed path: %w", err)
		}
	} else {
		planes, err := path.NewNodesOnParallelPlanes(cfg.Vacua.False, cfg.Vacua.True, cfg.Path.IntermediateNodes)
		if err != nil {
			return nil, fmt.Errorf("path planes: %w", err)
		}
		curved, _, err = pathfind.NewValleyFinder(fn, minimizer).Find(planes, cfg.Temperature)
		if err != nil {
			return nil, fmt.Errorf("valley path: %w", err)
		}
	}

	between, err := pathfind.NewBetweenPaths(curved, cfg.Temperature, calculator, minimizer, cfg.PathfindSettings())
	if err != nil {
		return nil, err
	}
	offset := 0
	if checkpoint != nil {
		if err := between.Seed(checkpoint.Weights, checkpoint.Errors); err != nil {
			return nil, err
		}
		offset = checkpoint.Improvements
	}

	observer, closeTrace, err := r.observer(runID, cfg, between, offset, checkpoint != nil, progress)
	if err != nil {
		return nil, err
	}
	defer closeTrace()

	tracker := pathfind.NewConvergenceTracker(cfg.ConvergenceConfig())
	result, improveErr := pathfind.Improve(ctx, between, tracker, cfg.Improvement.MaxImprovements, observer)
	if result != nil {
		result.Improvements += offset
	}
	outcome := &Outcome{RunID: runID, Result: result}
	if improveErr != nil {
		return outcome, improveErr
	}

	best, err := path.NewLinearSplineThroughNodes(result.Nodes, cfg.Temperature)
	if err != nil {
		return outcome, fmt.Errorf("best path: %w", err)
	}
	bubble, err := calculator.Solve(best)
	if err != nil {
		// the blend minimizer may have settled on a no-solution penalty
		return outcome, fmt.Errorf("no bounce on best path: %w", err)
	}
	outcome.Bubble = bubble

	slog.Info("Run complete",
		"run_id", runID,
		"action", result.Action,
		"curved_action", result.CurvedAction,
		"straight_action", result.StraightAction,
		"improvements", result.Improvements,
		"converged", result.Converged)
	return outcome, nil
}

// observer persists every step to the trace and checkpoint before passing it on
func (r *Runner) observer(runID string, cfg *config.Config, between *pathfind.BetweenPaths, offset int,
	resumed bool, progress Progress) (pathfind.Observer, func(), error) {
	var trace *store.TraceWriter
	if r.Store != nil {
		var err error
		trace, err = store.NewTraceWriter(r.Store.BaseDir(), runID, resumed)
		if err != nil {
			return nil, nil, err
		}
	}
	closeTrace := func() {
		if trace != nil {
			if err := trace.Close(); err != nil {
				slog.Warn("Failed to close trace", "run_id", runID, "error", err)
			}
		}
	}

	observer := func(step pathfind.Step) error {
		step.Improvement += offset
		if r.Store != nil {
			entry := store.TraceEntry{
				Improvement: step.Improvement,
				Action:      step.Action,
				Weights:     step.Weights,
				Errors:      step.Errors,
				Tolerance:   step.Tolerance,
				Timestamp:   time.Now(),
			}
			if r.TraceNodes {
				entry.Nodes = step.Nodes
			}
			if err := trace.Write(entry); err != nil {
				return err
			}
			if err := trace.Flush(); err != nil {
				return err
			}

			checkpoint := store.NewCheckpoint(runID, step.Weights, step.Errors, step.Action, step.Improvement, cfg.Summary())
			checkpoint.CurvedAction = between.CurvedAction()
			checkpoint.StraightAction = between.StraightAction()
			checkpoint.CurvedNodes = between.CurvedNodes()
			if err := r.Store.SaveCheckpoint(runID, checkpoint); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
		if progress != nil {
			progress(step)
		}
		return nil
	}
	return observer, closeTrace, nil
}

func (r *Runner) record(runID string, cfg *config.Config, outcome *Outcome, runErr error) {
	if r.Ledger == nil {
		return
	}
	pair := store.PairOutcome{
		RunID:       runID,
		FalseVacuum: cfg.Vacua.False,
		TrueVacuum:  cfg.Vacua.True,
		Temperature: cfg.Temperature,
		Status:      store.StatusOK,
	}
	if outcome != nil && outcome.Result != nil {
		pair.Action = outcome.Result.Action
		pair.CurvedAction = outcome.Result.CurvedAction
		pair.StraightAction = outcome.Result.StraightAction
		pair.Improvements = outcome.Result.Improvements
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		pair.Status = store.StatusCancelled
	default:
		pair.Status = store.StatusFailed
		pair.Reason = failureReason(runErr)
	}
	if err := r.Ledger.RecordOutcome(pair); err != nil {
		slog.Error("Failed to record outcome", "run_id", runID, "error", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded"
	case errors.Is(err, bounce.ErrNotMetastable):
		return "false vacuum is not metastable along the path: " + err.Error()
	}
	return err.Error()
}
