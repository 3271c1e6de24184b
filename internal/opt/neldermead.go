package opt

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/optimize"
)

// NelderMead adapts gonum's downhill simplex to the Minimizer interface.
// The initial simplex is the start point plus one vertex per parameter,
// displaced by that parameter's step.
type NelderMead struct {
	// ConvergeIterations is the number of major iterations without an
	// improvement of at least Request.Tolerance before stopping.
	ConvergeIterations int
}

// NewNelderMead creates a Nelder-Mead minimizer
func NewNelderMead() *NelderMead {
	return &NelderMead{ConvergeIterations: 20}
}

// Minimize implements Minimizer. Strategies 1 and 2 reserve the Hessian's
// evaluations out of the budget when the simplex can spare them; otherwise
// the displacement errors are kept.
func (n *NelderMead) Minimize(objective Objective, request Request) (Minimum, error) {
	if err := request.Validate(); err != nil {
		return Minimum{}, err
	}
	guarded := newCounted(objective, request.MaxEvaluations)
	dim := len(request.Start)

	simplexBudget := request.MaxEvaluations
	if request.Strategy > 0 && simplexBudget-hessianEvaluations(dim) >= 2*(dim+1) {
		simplexBudget -= hessianEvaluations(dim)
	}

	x, f, err := n.run(guarded, request.Start, request.Steps, simplexBudget, request.Tolerance)
	if err != nil {
		return Minimum{}, err
	}

	if request.Strategy == 2 {
		restartBudget := simplexBudget - guarded.evaluations
		if restartBudget > dim+1 {
			restartSteps := displacementErrors(request.Start, x, request.Steps)
			restartX, restartF, err := n.run(guarded, x, restartSteps, restartBudget, request.Tolerance)
			if err == nil && restartF <= f {
				x, f = restartX, restartF
			}
		}
	}

	errs := estimateErrors(guarded, request, x)

	slog.Debug("Nelder-Mead finished",
		"strategy", request.Strategy,
		"evaluations", guarded.evaluations,
		"budget", request.MaxEvaluations,
		"f", f)

	return Minimum{X: x, Errors: errs, F: f, Evaluations: guarded.evaluations}, nil
}

func (n *NelderMead) run(guarded *counted, start, steps []float64, budget int, tolerance float64) ([]float64, float64, error) {
	dim := len(start)
	vertices := make([][]float64, dim+1)
	values := make([]float64, dim+1)
	for i := range vertices {
		vertex := append([]float64(nil), start...)
		if i > 0 {
			step := steps[i-1]
			if step == 0 {
				step = 1e-3
			}
			vertex[i-1] += step
		}
		vertices[i] = vertex
		values[i] = guarded.call(vertex)
	}

	iterations := n.ConvergeIterations
	if iterations <= 0 {
		iterations = 20
	}
	settings := &optimize.Settings{
		FuncEvaluations: budget - (dim + 1),
		Converger: &optimize.FunctionConverge{
			Absolute:   tolerance,
			Iterations: iterations,
		},
	}
	method := &optimize.NelderMead{
		InitialVertices: vertices,
		InitialValues:   values,
	}
	problem := optimize.Problem{Func: guarded.call}

	result, err := optimize.Minimize(problem, start, settings, method)
	if result == nil {
		return nil, 0, fmt.Errorf("nelder-mead: %w", err)
	}
	if err != nil {
		slog.Debug("Nelder-Mead stopped early", "status", result.Status.String(), "error", err)
	}

	// The simplex may never improve on the initial vertices.
	best, bestF := result.X, result.F
	for i, value := range values {
		if value < bestF {
			best, bestF = vertices[i], value
		}
	}
	return append([]float64(nil), best...), bestF, nil
}
