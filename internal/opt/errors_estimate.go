package opt

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// minimumStepFraction keeps displacement errors from collapsing to zero,
// which would give the next run a degenerate simplex.
const minimumStepFraction = 0.1

// displacementErrors estimates errors as |x - start|, floored at a fraction
// of the initial step.
func displacementErrors(start, x, steps []float64) []float64 {
	errs := make([]float64, len(x))
	for i := range x {
		errs[i] = math.Max(math.Abs(x[i]-start[i]), minimumStepFraction*math.Abs(steps[i]))
	}
	return errs
}

// hessianEvaluations is the cost of a central difference Hessian in n
// dimensions: four calls for each of the n(n+1)/2 distinct entries.
func hessianEvaluations(n int) int {
	return 2 * n * (n + 1)
}

// hessianErrors estimates errors as sqrt(2*(H^-1)_ii) from a central
// difference Hessian. ok is false when the Hessian is not positive definite.
func hessianErrors(f func([]float64) float64, x, steps []float64) (errs []float64, ok bool) {
	n := len(x)
	hessian := mat.NewSymDense(n, nil)
	fd.Hessian(hessian, f, x, &fd.Settings{
		Formula: fd.Central,
		Step:    1e-3 * stepScale(steps),
	})

	var cholesky mat.Cholesky
	if !cholesky.Factorize(hessian) {
		slog.Debug("Hessian not positive definite, keeping displacement errors")
		return nil, false
	}
	var covariance mat.SymDense
	if err := cholesky.InverseTo(&covariance); err != nil {
		return nil, false
	}

	errs = make([]float64, n)
	for i := 0; i < n; i++ {
		variance := 2 * covariance.At(i, i)
		if !(variance > 0) || math.IsInf(variance, 0) {
			return nil, false
		}
		errs[i] = math.Sqrt(variance)
	}
	return errs, true
}

// estimateErrors applies the strategy's error model to a found minimum. The
// Hessian is only estimated when the remaining budget covers all of its
// evaluations.
func estimateErrors(guarded *counted, request Request, x []float64) []float64 {
	errs := displacementErrors(request.Start, x, request.Steps)
	if request.Strategy == 0 {
		return errs
	}
	if guarded.remaining() < hessianEvaluations(len(x)) {
		slog.Debug("Budget spent, keeping displacement errors",
			"remaining", guarded.remaining(),
			"needed", hessianEvaluations(len(x)))
		return errs
	}
	fromHessian, ok := hessianErrors(guarded.call, x, request.Steps)
	if !ok {
		return errs
	}
	return fromHessian
}
