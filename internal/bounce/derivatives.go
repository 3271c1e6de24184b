package bounce

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/bouncepath/internal/path"
)

// Symmetry is the Euclidean symmetry of the bubble: O(3) for thermal
// tunneling, O(4) for quantum tunneling at zero temperature.
type Symmetry int

const (
	O3 Symmetry = 3
	O4 Symmetry = 4
)

// ParseSymmetry accepts "O3"/"O(3)"/"thermal" and "O4"/"O(4)"/"quantum".
func ParseSymmetry(name string) (Symmetry, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(name, "(", ""), ")", "")) {
	case "o3", "thermal", "3":
		return O3, nil
	case "o4", "quantum", "4":
		return O4, nil
	}
	return 0, fmt.Errorf("unknown bubble symmetry %q", name)
}

func (s Symmetry) String() string {
	return fmt.Sprintf("O(%d)", int(s))
}

// Dimensions is the number of Euclidean dimensions of the bubble
func (s Symmetry) Dimensions() int {
	return int(s)
}

// DampingFactor multiplies phi'/r in the radial equation
func (s Symmetry) DampingFactor() float64 {
	return float64(s) - 1
}

// SolidAngle is the area of the unit sphere in Dimensions() dimensions
func (s Symmetry) SolidAngle() float64 {
	if s == O3 {
		return 4 * math.Pi
	}
	return 2 * math.Pi * math.Pi
}

// PotentialSlope is the part of the collapsed potential the radial equation needs
type PotentialSlope interface {
	FirstDerivative(auxiliary float64) float64
}

// BubbleDerivatives is the right-hand side of the radial bubble equation for
// the auxiliary coordinate along a fixed path, written as a first-order
// system in (phi, phi'):
//
//	phi'' = [V'(phi) - (x'.x'')(phi)*phi'^2] / |x'|^2(phi) - damping/r * phi'
//
// It holds no mutable state and is safe for concurrent use.
type BubbleDerivatives struct {
	potential  PotentialSlope
	tunnelPath path.TunnelPath
	symmetry   Symmetry
}

// NewBubbleDerivatives binds the equation to a potential and path
func NewBubbleDerivatives(potential PotentialSlope, tunnelPath path.TunnelPath, symmetry Symmetry) BubbleDerivatives {
	return BubbleDerivatives{potential: potential, tunnelPath: tunnelPath, symmetry: symmetry}
}

// Derive writes (phi', phi'') for state (phi, phi') at radius into derivatives.
// Once phi < 0 the trajectory has overshot the false vacuum and both
// derivatives are zero, which stops an adaptive stepper from chasing the
// runaway solution.
func (b BubbleDerivatives) Derive(state, derivatives []float64, radius float64) {
	auxiliary := state[0]
	if auxiliary < 0.0 {
		derivatives[0] = 0.0
		derivatives[1] = 0.0
		return
	}
	auxiliarySlope := state[1]
	acceleration := (b.potential.FirstDerivative(auxiliary) -
		b.tunnelPath.SlopeDotAcceleration(auxiliary)*auxiliarySlope*auxiliarySlope) /
		b.tunnelPath.SlopeSquared(auxiliary)

	derivatives[0] = auxiliarySlope
	if radius > 0.0 {
		derivatives[1] = acceleration - b.symmetry.DampingFactor()/radius*auxiliarySlope
		return
	}
	// At the centre phi' = 0 and damping*phi'/r -> damping*phi''.
	derivatives[1] = acceleration / float64(b.symmetry.Dimensions())
}
