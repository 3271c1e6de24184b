package bounce

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/integrate"

	"github.com/cwbudde/bouncepath/internal/path"
	"github.com/cwbudde/bouncepath/internal/potential"
	"github.com/cwbudde/bouncepath/internal/spline"
)

// Settings configures an ActionCalculator
type Settings struct {
	Symmetry                    Symmetry
	PotentialSegments           int
	MinimumFalseVacuumConcavity float64
	ShootAttempts               int
	// RadiusFactor is the integration range in units of the bubble length scale
	RadiusFactor float64
	Stepper      StepperSettings
}

// DefaultSettings returns settings for thermal O(3) bubbles
func DefaultSettings() Settings {
	return Settings{
		Symmetry:                    O3,
		PotentialSegments:           32,
		MinimumFalseVacuumConcavity: 1e-6,
		ShootAttempts:               48,
		RadiusFactor:                40,
		Stepper:                     DefaultStepperSettings(),
	}
}

// Validate checks the settings
func (s Settings) Validate() error {
	if s.Symmetry != O3 && s.Symmetry != O4 {
		return fmt.Errorf("unsupported symmetry %d", int(s.Symmetry))
	}
	if s.PotentialSegments < 2 {
		return fmt.Errorf("potential segments must be at least 2, got %d", s.PotentialSegments)
	}
	if s.ShootAttempts < 1 {
		return fmt.Errorf("shoot attempts must be positive, got %d", s.ShootAttempts)
	}
	if !(s.RadiusFactor > 0) {
		return fmt.Errorf("radius factor must be positive, got %g", s.RadiusFactor)
	}
	if s.MinimumFalseVacuumConcavity < 0 {
		return fmt.Errorf("minimum false vacuum concavity must be non-negative, got %g", s.MinimumFalseVacuumConcavity)
	}
	return nil
}

// Bubble is a solved bounce profile
type Bubble struct {
	Action float64
	// Kinetic and Potential split Action into its gradient and potential
	// energy integrals. A converged bounce satisfies the virial relation
	// (D-2)*Kinetic + D*Potential = 0.
	Kinetic          float64
	Potential        float64
	InitialAuxiliary float64
	Radii            []float64
	Auxiliaries      []float64
	Spline           spline.Snapshot
}

// ActionCalculator computes bounce actions along paths through one potential.
// It is safe for concurrent use: every call builds its own spline and stepper.
type ActionCalculator struct {
	potential potential.Function
	settings  Settings
}

// NewActionCalculator validates settings
func NewActionCalculator(fn potential.Function, settings Settings) (*ActionCalculator, error) {
	if fn == nil {
		return nil, errors.New("bounce: nil potential")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &ActionCalculator{potential: fn, settings: settings}, nil
}

// Settings returns the calculator settings
func (a *ActionCalculator) Settings() Settings {
	return a.settings
}

// BounceAction returns the Euclidean action of the bubble along tunnelPath.
// For O(3) this is S3, not S3/T.
func (a *ActionCalculator) BounceAction(tunnelPath path.TunnelPath) (float64, error) {
	bubble, err := a.Solve(tunnelPath)
	if err != nil {
		return 0, err
	}
	return bubble.Action, nil
}

type shotOutcome int

const (
	undershot shotOutcome = iota
	overshot
)

type shot struct {
	outcome     shotOutcome
	radii       []float64
	auxiliaries []float64
	slopes      []float64
}

// Solve collapses the potential onto tunnelPath, shoots for the bubble
// profile and integrates its action.
func (a *ActionCalculator) Solve(tunnelPath path.TunnelPath) (*Bubble, error) {
	temperature := tunnelPath.Temperature()
	fields := make([]float64, tunnelPath.NumberOfFields())

	tunnelPath.PutOnPathAt(fields, 0)
	falseVacuumPotential := a.potential.Value(fields, temperature)
	tunnelPath.PutOnPathAt(fields, 1)
	trueVacuumDifference := a.potential.Value(fields, temperature) - falseVacuumPotential
	if !(trueVacuumDifference < 0) {
		return nil, fmt.Errorf("potential difference %g: %w", trueVacuumDifference, ErrNotMetastable)
	}

	segments := a.settings.PotentialSegments
	segmentLength := 1.0 / float64(segments)
	collapsed := spline.New(a.settings.MinimumFalseVacuumConcavity)
	highest, lowest := 0.0, trueVacuumDifference
	for i := 1; i < segments; i++ {
		tunnelPath.PutOnPathAt(fields, float64(i)*segmentLength)
		difference := a.potential.Value(fields, temperature) - falseVacuumPotential
		highest = math.Max(highest, difference)
		lowest = math.Min(lowest, difference)
		collapsed.AddPoint(segmentLength, difference)
	}
	if err := collapsed.SetSpline(trueVacuumDifference); err != nil {
		return nil, fmt.Errorf("collapse potential: %w", err)
	}

	slopeSquared := tunnelPath.SlopeSquared(0.5)
	if !(slopeSquared > 0) {
		return nil, ErrFlatPath
	}
	lengthScale := math.Sqrt(slopeSquared / (highest - lowest))

	derivatives := NewBubbleDerivatives(collapsed, tunnelPath, a.settings.Symmetry)
	lower := collapsed.DefiniteUndershootAuxiliary()
	upper := collapsed.DefiniteOvershootAuxiliary()
	sawOvershoot := false
	var last *shot
	var initial float64
	attempts := 0
	for attempts < a.settings.ShootAttempts && upper-lower > 1e-14 {
		attempts++
		initial = 0.5 * (lower + upper)
		trial, err := a.shoot(derivatives, collapsed, tunnelPath, initial, lengthScale)
		if err != nil {
			return nil, &ShootingError{Lower: lower, Upper: upper, Attempts: attempts, Wrapped: err}
		}
		if trial.outcome == overshot {
			upper = initial
			sawOvershoot = true
		} else {
			lower = initial
		}
		last = trial
	}
	if !sawOvershoot || last == nil {
		return nil, &ShootingError{Lower: lower, Upper: upper, Attempts: attempts, Wrapped: ErrNoBubble}
	}

	kinetic, potentialPart, err := a.integrateAction(last, collapsed, tunnelPath)
	if err != nil {
		return nil, err
	}
	action := kinetic + potentialPart

	slog.Debug("Bounce solved",
		"symmetry", a.settings.Symmetry.String(),
		"initial_auxiliary", initial,
		"attempts", attempts,
		"action", action)

	return &Bubble{
		Action:           action,
		Kinetic:          kinetic,
		Potential:        potentialPart,
		InitialAuxiliary: initial,
		Radii:            last.radii,
		Auxiliaries:      last.auxiliaries,
		Spline:           collapsed.Snapshot(),
	}, nil
}

// shoot integrates outwards from a bubble centre at auxiliary initial.
func (a *ActionCalculator) shoot(derivatives BubbleDerivatives, collapsed *spline.SplinePotential,
	tunnelPath path.TunnelPath, initial, lengthScale float64) (*shot, error) {
	dimensions := float64(a.settings.Symmetry.Dimensions())
	curvature := collapsed.FirstDerivative(initial) / tunnelPath.SlopeSquared(initial)

	// Series solution phi = phi0 + a r^2/(2D) away from the singular centre.
	startRadius := 1e-6 * lengthScale
	state := []float64{
		initial + curvature*startRadius*startRadius/(2*dimensions),
		curvature * startRadius / dimensions,
	}

	result := &shot{
		outcome:     undershot,
		radii:       []float64{startRadius},
		auxiliaries: []float64{state[0]},
		slopes:      []float64{state[1]},
	}

	stepper := a.settings.Stepper
	stepper.InitialStep *= lengthScale
	stepper.MinimumStep *= lengthScale
	stepper.MaximumStep *= lengthScale
	integrator := NewCashKarp(2, stepper)

	_, err := integrator.Integrate(derivatives.Derive, state, startRadius, a.settings.RadiusFactor*lengthScale,
		func(state []float64, radius float64) bool {
			if state[0] < 0 {
				result.outcome = overshot
				return false
			}
			result.radii = append(result.radii, radius)
			result.auxiliaries = append(result.auxiliaries, state[0])
			result.slopes = append(result.slopes, state[1])
			// Turning back before the false vacuum.
			return state[1] <= 0
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// integrateAction evaluates Omega * int r^(D-1) |x'|^2 phi'^2 / 2 dr and
// Omega * int r^(D-1) [V(phi) - V(0)] dr over the recorded profile.
func (a *ActionCalculator) integrateAction(profile *shot, collapsed *spline.SplinePotential,
	tunnelPath path.TunnelPath) (float64, float64, error) {
	if len(profile.radii) < 2 {
		return 0, 0, &ShootingError{Wrapped: fmt.Errorf("profile has %d points: %w", len(profile.radii), ErrNoBubble)}
	}
	power := float64(a.settings.Symmetry.Dimensions() - 1)
	falseVacuum := collapsed.FalseVacuumPotential()
	kineticDensity := make([]float64, len(profile.radii))
	potentialDensity := make([]float64, len(profile.radii))
	for i, radius := range profile.radii {
		auxiliary := profile.auxiliaries[i]
		measure := math.Pow(radius, power)
		kineticDensity[i] = measure * 0.5 * tunnelPath.SlopeSquared(auxiliary) * profile.slopes[i] * profile.slopes[i]
		potentialDensity[i] = measure * (collapsed.Value(auxiliary) - falseVacuum)
	}
	solidAngle := a.settings.Symmetry.SolidAngle()
	kinetic := solidAngle * integrate.Trapezoidal(profile.radii, kineticDensity)
	potentialPart := solidAngle * integrate.Trapezoidal(profile.radii, potentialDensity)
	if action := kinetic + potentialPart; math.IsNaN(action) || math.IsInf(action, 0) {
		return 0, 0, &ShootingError{Wrapped: fmt.Errorf("non-finite action: %w", ErrNoBubble)}
	}
	return kinetic, potentialPart, nil
}
