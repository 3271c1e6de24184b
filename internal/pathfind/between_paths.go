package pathfind

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/bouncepath/internal/opt"
	"github.com/cwbudde/bouncepath/internal/path"
)

// ActionEvaluator computes the bounce action along a path
type ActionEvaluator interface {
	BounceAction(tunnelPath path.TunnelPath) (float64, error)
}

// ActionFunc adapts a function to ActionEvaluator
type ActionFunc func(tunnelPath path.TunnelPath) (float64, error)

// BounceAction implements ActionEvaluator
func (f ActionFunc) BounceAction(tunnelPath path.TunnelPath) (float64, error) {
	return f(tunnelPath)
}

// Settings controls one BetweenPaths instance
type Settings struct {
	// MovesPerImprovement is the evaluation budget of one ImprovePath call
	MovesPerImprovement int
	Strategy            int
	Tolerance           float64
	// ToleranceDecay multiplies the tolerance on every UpdateNodes
	ToleranceDecay   float64
	MinimumTolerance float64
	// NoSolutionAction replaces failed or non-finite actions
	NoSolutionAction float64
	// InitialSteps are the first error estimates for (intercept, slope)
	InitialSteps []float64
}

// DefaultSettings returns the settings used when a run does not override them
func DefaultSettings() Settings {
	return Settings{
		MovesPerImprovement: 100,
		Strategy:            1,
		Tolerance:           1.0,
		ToleranceDecay:      0.5,
		MinimumTolerance:    1e-3,
		NoSolutionAction:    1e12,
		InitialSteps:        []float64{0.5, 0.5},
	}
}

// Validate checks the settings
func (s Settings) Validate() error {
	if s.MovesPerImprovement < 4 {
		return fmt.Errorf("moves per improvement must be at least 4, got %d", s.MovesPerImprovement)
	}
	if len(s.InitialSteps) != 2 {
		return fmt.Errorf("need 2 initial steps, got %d", len(s.InitialSteps))
	}
	if !(s.NoSolutionAction > 0) || math.IsInf(s.NoSolutionAction, 0) {
		return fmt.Errorf("no-solution action must be positive and finite, got %g", s.NoSolutionAction)
	}
	if s.ToleranceDecay <= 0 || s.ToleranceDecay > 1 {
		return fmt.Errorf("tolerance decay must be in (0,1], got %g", s.ToleranceDecay)
	}
	return nil
}

// Best is the best blend found so far
type Best struct {
	Weights []float64 `json:"weights"`
	Errors  []float64 `json:"errors"`
	Action  float64   `json:"action"`
}

func (b Best) clone() Best {
	return Best{
		Weights: append([]float64(nil), b.Weights...),
		Errors:  append([]float64(nil), b.Errors...),
		Action:  b.Action,
	}
}

// ErrTooFewPathNodes is returned for a curved path with no intermediate node
var ErrTooFewPathNodes = errors.New("pathfind: curved path needs at least one intermediate node")

// BetweenPaths searches blends of a fixed curved path and the straight line
// between its endpoints. Node i of the blend is
//
//	(1 - s_i)*curved_i + s_i*straight_i,  s_i = w0 + w1*i/numberOfSegments
//
// and the weights (w0, w1) are improved by a Minimizer one call at a time.
// s_i is not clamped. A BetweenPaths is not safe for concurrent use.
type BetweenPaths struct {
	curvedNodes   [][]float64
	straightNodes [][]float64
	fractions     []float64
	temperature   float64

	evaluator ActionEvaluator
	minimizer opt.Minimizer
	settings  Settings
	tolerance float64

	best      Best
	iterating bool

	curvedAction, straightAction float64
	curvedKnown, straightKnown   bool
}

// NewBetweenPaths starts from the pure curved path, weights (0,0). Only the
// nodes of curvedPath are kept: every blend, the (0,0) one included, is
// rebuilt through NewLinearSplineThroughNodes and so runs at constant speed.
// A curved path with other segment lengths is evaluated re-parameterized.
func NewBetweenPaths(curvedPath *path.LinearSplinePath, temperature float64, evaluator ActionEvaluator,
	minimizer opt.Minimizer, settings Settings) (*BetweenPaths, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	nodes := curvedPath.Nodes()
	if len(nodes) < 3 {
		return nil, fmt.Errorf("%d nodes: %w", len(nodes), ErrTooFewPathNodes)
	}

	numberOfSegments := float64(len(nodes) - 1)
	fractions := make([]float64, len(nodes))
	for i := range fractions {
		fractions[i] = float64(i) / numberOfSegments
	}

	b := &BetweenPaths{
		curvedNodes: nodes,
		fractions:   fractions,
		evaluator:   evaluator,
		minimizer:   minimizer,
		settings:    settings,
		tolerance:   settings.Tolerance,
	}
	b.resetStraightPath(temperature)
	b.best = Best{
		Weights: []float64{0, 0},
		Errors:  append([]float64(nil), settings.InitialSteps...),
		Action:  b.CurvedAction(),
	}
	return b, nil
}

func (b *BetweenPaths) resetStraightPath(temperature float64) {
	first := b.curvedNodes[0]
	last := b.curvedNodes[len(b.curvedNodes)-1]
	b.straightNodes = make([][]float64, len(b.curvedNodes))
	for i, fraction := range b.fractions {
		node := make([]float64, len(first))
		for j := range node {
			node[j] = first[j] + fraction*(last[j]-first[j])
		}
		b.straightNodes[i] = node
	}
	b.temperature = temperature
	b.curvedKnown = false
	b.straightKnown = false
}

// BlendedNodes returns the nodes for the given weights
func (b *BetweenPaths) BlendedNodes(weights []float64) [][]float64 {
	nodes := make([][]float64, len(b.curvedNodes))
	for i, fraction := range b.fractions {
		straightWeight := weights[0] + weights[1]*fraction
		curvedWeight := 1.0 - straightWeight
		node := make([]float64, len(b.curvedNodes[i]))
		for j := range node {
			node[j] = curvedWeight*b.curvedNodes[i][j] + straightWeight*b.straightNodes[i][j]
		}
		nodes[i] = node
	}
	return nodes
}

// PathForWeights builds the constant-speed path through the blended nodes
func (b *BetweenPaths) PathForWeights(weights []float64) (*path.LinearSplinePath, error) {
	if len(weights) != 2 {
		return nil, fmt.Errorf("got %d weights, expected 2: %w", len(weights), path.ErrParameterCount)
	}
	return path.NewLinearSplineThroughNodes(b.BlendedNodes(weights), b.temperature)
}

// Evaluate returns the bounce action of the blend for weights. Failures and
// non-finite actions are reported as Settings.NoSolutionAction.
func (b *BetweenPaths) Evaluate(weights []float64) float64 {
	blended, err := b.PathForWeights(weights)
	if err != nil {
		slog.Warn("Blended path rejected", "weights", weights, "error", err)
		return b.settings.NoSolutionAction
	}
	action, err := b.evaluator.BounceAction(blended)
	if err != nil {
		slog.Warn("No bounce solution for blend", "weights", weights, "error", err)
		return b.settings.NoSolutionAction
	}
	if math.IsNaN(action) || math.IsInf(action, 0) {
		slog.Warn("Non-finite bounce action for blend", "weights", weights, "action", action)
		return b.settings.NoSolutionAction
	}
	slog.Debug("Blend evaluated", "weights", weights, "action", action)
	return action
}

// ImprovePath runs one bounded minimizer call seeded with the current best
// weights and errors, keeps the result if it is no worse, and returns the
// best blended path.
func (b *BetweenPaths) ImprovePath() (*path.LinearSplinePath, error) {
	minimum, err := b.minimizer.Minimize(b.Evaluate, opt.Request{
		Start:          append([]float64(nil), b.best.Weights...),
		Steps:          append([]float64(nil), b.best.Errors...),
		Strategy:       b.settings.Strategy,
		MaxEvaluations: b.settings.MovesPerImprovement,
		Tolerance:      b.tolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("improve path: %w", err)
	}
	b.iterating = true

	if minimum.F <= b.best.Action {
		candidate := Best{
			Weights: append([]float64(nil), minimum.X...),
			Errors:  make([]float64, len(minimum.Errors)),
			Action:  minimum.F,
		}
		for i, e := range minimum.Errors {
			if e > 0 && !math.IsInf(e, 0) {
				candidate.Errors[i] = e
			} else {
				candidate.Errors[i] = b.best.Errors[i]
			}
		}
		b.best = candidate
	}

	slog.Debug("Path improvement step",
		"weights", b.best.Weights,
		"action", b.best.Action,
		"evaluations", minimum.Evaluations,
		"tolerance", b.tolerance)

	return b.PathForWeights(b.best.Weights)
}

// UpdateNodes tightens the tolerance by ToleranceDecay, floored at
// MinimumTolerance. A new temperature also resets the straight reference and
// re-evaluates the best action; at an unchanged temperature only the
// tolerance moves.
func (b *BetweenPaths) UpdateNodes(temperature float64) {
	b.tolerance = math.Max(b.tolerance*b.settings.ToleranceDecay, b.settings.MinimumTolerance)
	if temperature == b.temperature {
		return
	}
	b.resetStraightPath(temperature)
	best := b.best.clone()
	best.Action = b.Evaluate(best.Weights)
	b.best = best
}

// Best returns a copy of the best result
func (b *BetweenPaths) Best() Best {
	return b.best.clone()
}

// Seed replaces the best weights and errors, for resuming a saved run
func (b *BetweenPaths) Seed(weights, errs []float64) error {
	if len(weights) != 2 || len(errs) != 2 {
		return fmt.Errorf("seed needs 2 weights and 2 errors: %w", path.ErrParameterCount)
	}
	b.best = Best{
		Weights: append([]float64(nil), weights...),
		Errors:  append([]float64(nil), errs...),
		Action:  b.Evaluate(weights),
	}
	return nil
}

// Iterating reports whether ImprovePath has run
func (b *BetweenPaths) Iterating() bool {
	return b.iterating
}

// Tolerance is the current minimizer tolerance
func (b *BetweenPaths) Tolerance() float64 {
	return b.tolerance
}

// Temperature is the current path temperature
func (b *BetweenPaths) Temperature() float64 {
	return b.temperature
}

// CurvedAction is the action of the unblended curved path, weights (0,0)
func (b *BetweenPaths) CurvedAction() float64 {
	if !b.curvedKnown {
		b.curvedAction = b.Evaluate([]float64{0, 0})
		b.curvedKnown = true
	}
	return b.curvedAction
}

// StraightAction is the action of the straight path, weights (1,0)
func (b *BetweenPaths) StraightAction() float64 {
	if !b.straightKnown {
		b.straightAction = b.Evaluate([]float64{1, 0})
		b.straightKnown = true
	}
	return b.straightAction
}

// CurvedNodes returns a copy of the curved path nodes
func (b *BetweenPaths) CurvedNodes() [][]float64 {
	nodes := make([][]float64, len(b.curvedNodes))
	for i, node := range b.curvedNodes {
		nodes[i] = append([]float64(nil), node...)
	}
	return nodes
}
