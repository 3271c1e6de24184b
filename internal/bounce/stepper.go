package bounce

import (
	"fmt"
	"math"
)

// System writes the derivatives of state at t into derivatives
type System func(state, derivatives []float64, t float64)

// Observer sees every accepted step. Returning false stops the integration.
type Observer func(state []float64, t float64) bool

// StepperSettings bounds the adaptive integration
type StepperSettings struct {
	AbsoluteTolerance float64
	RelativeTolerance float64
	InitialStep       float64
	MinimumStep       float64
	MaximumStep       float64
	MaximumSteps      int
}

// DefaultStepperSettings returns tolerances suited to bounce profiles of
// order-one scale. Step sizes are rescaled by the caller.
func DefaultStepperSettings() StepperSettings {
	return StepperSettings{
		AbsoluteTolerance: 1e-10,
		RelativeTolerance: 1e-8,
		InitialStep:       1e-3,
		MinimumStep:       1e-14,
		MaximumStep:       0.1,
		MaximumSteps:      200000,
	}
}

// Cash-Karp embedded Runge-Kutta 4(5) tableau.
const (
	ckA2, ckA3, ckA4, ckA5, ckA6 = 0.2, 0.3, 0.6, 1.0, 0.875

	ckB21 = 0.2
	ckB31 = 3.0 / 40.0
	ckB32 = 9.0 / 40.0
	ckB41 = 0.3
	ckB42 = -0.9
	ckB43 = 1.2
	ckB51 = -11.0 / 54.0
	ckB52 = 2.5
	ckB53 = -70.0 / 27.0
	ckB54 = 35.0 / 27.0
	ckB61 = 1631.0 / 55296.0
	ckB62 = 175.0 / 512.0
	ckB63 = 575.0 / 13824.0
	ckB64 = 44275.0 / 110592.0
	ckB65 = 253.0 / 4096.0

	ckC1 = 37.0 / 378.0
	ckC3 = 250.0 / 621.0
	ckC4 = 125.0 / 594.0
	ckC6 = 512.0 / 1771.0

	ckDC1 = ckC1 - 2825.0/27648.0
	ckDC3 = ckC3 - 18575.0/48384.0
	ckDC4 = ckC4 - 13525.0/55296.0
	ckDC5 = -277.0 / 14336.0
	ckDC6 = ckC6 - 0.25
)

// CashKarp is an adaptive fifth-order Runge-Kutta integrator with an
// embedded fourth-order error estimate. A CashKarp value is not safe for
// concurrent use; create one per integration.
type CashKarp struct {
	settings StepperSettings

	k1, k2, k3, k4, k5, k6 []float64
	scratch, candidate     []float64
	stepError              []float64
}

// NewCashKarp creates a stepper for systems of the given dimension
func NewCashKarp(dimension int, settings StepperSettings) *CashKarp {
	buffer := func() []float64 { return make([]float64, dimension) }
	return &CashKarp{
		settings:  settings,
		k1:        buffer(),
		k2:        buffer(),
		k3:        buffer(),
		k4:        buffer(),
		k5:        buffer(),
		k6:        buffer(),
		scratch:   buffer(),
		candidate: buffer(),
		stepError: buffer(),
	}
}

// Integrate advances state in place from t0 towards t1, calling observe after
// each accepted step. It returns the value of t reached.
func (c *CashKarp) Integrate(system System, state []float64, t0, t1 float64, observe Observer) (float64, error) {
	t := t0
	step := math.Min(c.settings.InitialStep, t1-t0)
	for steps := 0; t < t1; steps++ {
		if steps >= c.settings.MaximumSteps {
			return t, &IntegrationError{Time: t, Steps: steps, Wrapped: ErrStepBudget}
		}
		if t+step > t1 {
			step = t1 - t
		}

		for {
			errorRatio := c.trial(system, state, t, step)
			if errorRatio <= 1.0 {
				t += step
				if t1-t <= 1e-12*math.Max(1.0, math.Abs(t1)) {
					t = t1
				}
				copy(state, c.candidate)
				step = c.grow(step, errorRatio)
				break
			}
			step *= math.Max(0.1, 0.9*math.Pow(errorRatio, -0.25))
			if step < c.settings.MinimumStep {
				return t, &IntegrationError{Time: t, Steps: steps, Wrapped: ErrStepTooSmall}
			}
		}

		if observe != nil && !observe(state, t) {
			return t, nil
		}
	}
	return t, nil
}

func (c *CashKarp) grow(step, errorRatio float64) float64 {
	factor := 5.0
	if errorRatio > 1.89e-4 {
		factor = 0.9 * math.Pow(errorRatio, -0.2)
	}
	return math.Min(step*factor, c.settings.MaximumStep)
}

// trial takes one step of size h from (state, t) into c.candidate and returns
// the scaled error; values <= 1 are acceptable.
func (c *CashKarp) trial(system System, state []float64, t, h float64) float64 {
	system(state, c.k1, t)
	for i := range state {
		c.scratch[i] = state[i] + h*ckB21*c.k1[i]
	}
	system(c.scratch, c.k2, t+ckA2*h)
	for i := range state {
		c.scratch[i] = state[i] + h*(ckB31*c.k1[i]+ckB32*c.k2[i])
	}
	system(c.scratch, c.k3, t+ckA3*h)
	for i := range state {
		c.scratch[i] = state[i] + h*(ckB41*c.k1[i]+ckB42*c.k2[i]+ckB43*c.k3[i])
	}
	system(c.scratch, c.k4, t+ckA4*h)
	for i := range state {
		c.scratch[i] = state[i] + h*(ckB51*c.k1[i]+ckB52*c.k2[i]+ckB53*c.k3[i]+ckB54*c.k4[i])
	}
	system(c.scratch, c.k5, t+ckA5*h)
	for i := range state {
		c.scratch[i] = state[i] + h*(ckB61*c.k1[i]+ckB62*c.k2[i]+ckB63*c.k3[i]+ckB64*c.k4[i]+ckB65*c.k5[i])
	}
	system(c.scratch, c.k6, t+ckA6*h)

	ratio := 0.0
	for i := range state {
		c.candidate[i] = state[i] + h*(ckC1*c.k1[i]+ckC3*c.k3[i]+ckC4*c.k4[i]+ckC6*c.k6[i])
		c.stepError[i] = h * (ckDC1*c.k1[i] + ckDC3*c.k3[i] + ckDC4*c.k4[i] + ckDC5*c.k5[i] + ckDC6*c.k6[i])
		scale := c.settings.AbsoluteTolerance + c.settings.RelativeTolerance*math.Max(math.Abs(state[i]), math.Abs(c.candidate[i]))
		ratio = math.Max(ratio, math.Abs(c.stepError[i])/scale)
	}
	if math.IsNaN(ratio) {
		return math.Inf(1)
	}
	return ratio
}

// IntegrationError records where an integration gave up
type IntegrationError struct {
	Time    float64
	Steps   int
	Wrapped error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration stopped at t=%g after %d steps: %v", e.Time, e.Steps, e.Wrapped)
}

func (e *IntegrationError) Unwrap() error {
	return e.Wrapped
}
