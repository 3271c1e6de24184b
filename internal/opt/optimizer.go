package opt

import (
	"errors"
	"fmt"
	"math"
)

// Objective is a scalar function to minimize
type Objective func(x []float64) float64

// Request describes one bounded minimization run
type Request struct {
	// Start is the initial point
	Start []float64
	// Steps are the initial per-parameter step sizes (error estimates)
	Steps []float64
	// Strategy 0 estimates errors from the displacement of the minimum,
	// 1 from the numerical Hessian at the minimum, 2 additionally restarts
	// once from the minimum before estimating the Hessian.
	Strategy int
	// MaxEvaluations bounds the number of objective calls
	MaxEvaluations int
	// Tolerance is the absolute change in objective value treated as converged
	Tolerance float64
}

// Minimum is the result of a minimization run
type Minimum struct {
	X           []float64
	Errors      []float64
	F           float64
	Evaluations int
}

// Minimizer defines a derivative-free minimization algorithm
type Minimizer interface {
	Minimize(objective Objective, request Request) (Minimum, error)
}

// Penalty replaces non-finite objective values before they reach an algorithm
const Penalty = math.MaxFloat64 / 2

// ErrBadRequest is returned for inconsistent requests
var ErrBadRequest = errors.New("opt: invalid minimization request")

// Validate checks the request shape
func (r Request) Validate() error {
	if len(r.Start) == 0 {
		return fmt.Errorf("empty start point: %w", ErrBadRequest)
	}
	if len(r.Steps) != len(r.Start) {
		return fmt.Errorf("%d steps for %d parameters: %w", len(r.Steps), len(r.Start), ErrBadRequest)
	}
	if r.MaxEvaluations <= len(r.Start)+1 {
		return fmt.Errorf("budget of %d evaluations cannot span a simplex in %d dimensions: %w",
			r.MaxEvaluations, len(r.Start), ErrBadRequest)
	}
	if r.Strategy < 0 || r.Strategy > 2 {
		return fmt.Errorf("strategy %d: %w", r.Strategy, ErrBadRequest)
	}
	return nil
}

// counted wraps an objective, counting calls and replacing NaN and Inf with
// Penalty. Once budget calls have been made it stops calling the objective
// and returns Penalty, so no algorithm can overrun Request.MaxEvaluations.
// It remembers the best point it has evaluated.
type counted struct {
	objective   Objective
	budget      int
	evaluations int
	bestX       []float64
	bestF       float64
}

func newCounted(objective Objective, budget int) *counted {
	return &counted{objective: objective, budget: budget, bestF: math.Inf(1)}
}

func (c *counted) remaining() int {
	return c.budget - c.evaluations
}

func (c *counted) call(x []float64) float64 {
	if c.remaining() <= 0 {
		return Penalty
	}
	c.evaluations++
	value := c.objective(x)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = Penalty
	}
	if value < c.bestF {
		c.bestX = append(c.bestX[:0], x...)
		c.bestF = value
	}
	return value
}

// best returns a copy of the best evaluated point
func (c *counted) best() ([]float64, float64) {
	return append([]float64(nil), c.bestX...), c.bestF
}

// stepScale returns the mean absolute step, used to size numeric derivatives
func stepScale(steps []float64) float64 {
	total := 0.0
	for _, step := range steps {
		total += math.Abs(step)
	}
	if total == 0 {
		return 1
	}
	return total / float64(len(steps))
}
