package opt

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly metaheuristic to conform to the
// Minimizer interface. The search box is start +/- BoxWidth*steps, reduced to
// the scalar bounds the library supports.
type MayflyAdapter struct {
	popSize  int
	seed     int64
	boxWidth float64
}

// NewMayfly creates a new Mayfly minimizer adapter. popSize must be at least
// 20 for mayfly v0.1.0.
func NewMayfly(popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		popSize:  popSize,
		seed:     seed,
		boxWidth: 3,
	}
}

// Minimize implements Minimizer
func (m *MayflyAdapter) Minimize(objective Objective, request Request) (Minimum, error) {
	if err := request.Validate(); err != nil {
		return Minimum{}, err
	}
	if m.popSize < 20 {
		return Minimum{}, fmt.Errorf("mayfly population %d below 20: %w", m.popSize, ErrBadRequest)
	}
	guarded := newCounted(objective, request.MaxEvaluations)
	dim := len(request.Start)

	lower, upper := math.Inf(1), math.Inf(-1)
	for i, start := range request.Start {
		width := m.boxWidth * math.Abs(request.Steps[i])
		if width == 0 {
			width = 1
		}
		lower = math.Min(lower, start-width)
		upper = math.Max(upper, start+width)
	}

	// The swarm is not seeded with the start point.
	guarded.call(request.Start)

	swarmBudget := request.MaxEvaluations - 1
	if request.Strategy > 0 && swarmBudget-hessianEvaluations(dim) >= m.callsPerIteration()+2*m.popSize {
		swarmBudget -= hessianEvaluations(dim)
	}
	guarded.budget = 1 + swarmBudget

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = guarded.call
	config.ProblemSize = dim
	config.NPop = m.popSize
	config.NPopF = m.popSize
	config.NC = m.popSize
	config.MaxIterations = max(1, (swarmBudget-2*m.popSize)/m.callsPerIteration())
	config.LowerBound = lower
	config.UpperBound = upper
	config.Rand = rand.New(rand.NewSource(m.seed))

	if _, err := mayfly.Optimize(config); err != nil {
		return Minimum{}, fmt.Errorf("mayfly: %w", err)
	}

	// Calls past the budget only returned Penalty, so the best point the
	// objective actually saw is the result.
	x, f := guarded.best()
	guarded.budget = request.MaxEvaluations

	errs := estimateErrors(guarded, request, x)

	slog.Debug("Mayfly finished",
		"budget", request.MaxEvaluations,
		"evaluations", guarded.evaluations,
		"f", f)

	return Minimum{X: x, Errors: errs, F: f, Evaluations: guarded.evaluations}, nil
}

// callsPerIteration estimates the objective calls of one mayfly iteration:
// every male and female moves, NC offspring are bred and about 5% of the
// males mutate. Opposition learning adds a few more, which the budget cap in
// counted absorbs.
func (m *MayflyAdapter) callsPerIteration() int {
	return 3*m.popSize + max(1, m.popSize/20)
}
