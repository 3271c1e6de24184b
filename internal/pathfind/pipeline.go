package pathfind

import (
	"context"
	"log/slog"
)

// Step is reported after every improvement
type Step struct {
	Improvement int
	Weights     []float64
	Errors      []float64
	Action      float64
	Tolerance   float64
	Nodes       [][]float64
}

// Observer receives improvement steps; a non-nil error stops the loop
type Observer func(step Step) error

// Result holds the output of an improvement run
type Result struct {
	Nodes          [][]float64 `json:"nodes"`
	Weights        []float64   `json:"weights"`
	Errors         []float64   `json:"errors"`
	Action         float64     `json:"action"`
	CurvedAction   float64     `json:"curvedAction"`
	StraightAction float64     `json:"straightAction"`
	Improvements   int         `json:"improvements"`
	Converged      bool        `json:"converged"`
}

// Improve calls ImprovePath until the tracker reports convergence, the
// improvement budget is spent or ctx is cancelled. The tolerance is annealed
// through UpdateNodes after every improvement. Cancellation is checked
// between improvements; a running minimizer call is not interrupted.
func Improve(ctx context.Context, between *BetweenPaths, tracker *ConvergenceTracker, maxImprovements int, observer Observer) (*Result, error) {
	slog.Info("Starting path improvement",
		"max_improvements", maxImprovements,
		"curved_action", between.CurvedAction(),
		"straight_action", between.StraightAction())

	result := &Result{
		CurvedAction:   between.CurvedAction(),
		StraightAction: between.StraightAction(),
	}

	var err error
	for result.Improvements < maxImprovements {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}

		improved, improveErr := between.ImprovePath()
		if improveErr != nil {
			err = improveErr
			break
		}
		result.Improvements++
		best := between.Best()

		slog.Info("Path improved",
			"improvement", result.Improvements,
			"action", best.Action,
			"weights", best.Weights)

		if observer != nil {
			if obsErr := observer(Step{
				Improvement: result.Improvements,
				Weights:     best.Weights,
				Errors:      best.Errors,
				Action:      best.Action,
				Tolerance:   between.Tolerance(),
				Nodes:       improved.Nodes(),
			}); obsErr != nil {
				err = obsErr
				break
			}
		}
		between.UpdateNodes(between.Temperature())

		if tracker != nil && tracker.Update(best.Action) {
			result.Converged = true
			break
		}
	}

	best := between.Best()
	result.Weights = best.Weights
	result.Errors = best.Errors
	result.Action = best.Action
	result.Nodes = between.BlendedNodes(best.Weights)

	slog.Info("Path improvement complete",
		"improvements", result.Improvements,
		"action", result.Action,
		"converged", result.Converged)

	return result, err
}
