package path

import "errors"

// TunnelPath is a curve through field space indexed by an auxiliary value in [0,1].
// Auxiliary 0 is the false vacuum, auxiliary 1 the true vacuum.
// Implementations are immutable once built and safe for concurrent reads.
type TunnelPath interface {
	// NumberOfFields returns the dimension of field space
	NumberOfFields() int

	// PositionAt returns a new slice holding the field configuration at auxiliary
	PositionAt(auxiliary float64) []float64

	// PutOnPathAt writes the field configuration at auxiliary into dst
	PutOnPathAt(dst []float64, auxiliary float64)

	// SlopeSquared returns |dx/dp|^2 at auxiliary
	SlopeSquared(auxiliary float64) float64

	// SlopeDotAcceleration returns (dx/dp).(d^2x/dp^2) at auxiliary
	SlopeDotAcceleration(auxiliary float64) float64

	// Temperature is the temperature at which the path was constructed
	Temperature() float64
}

// Precondition violations reported by path constructors.
var (
	ErrDimensionMismatch = errors.New("path: field vectors have mismatched lengths")
	ErrSegmentLengths    = errors.New("path: segment auxiliary lengths must be positive and sum to 1")
	ErrDiscontinuous     = errors.New("path: consecutive segments do not join")
	ErrDegenerateVacua   = errors.New("path: false and true vacuum coincide")
	ErrTooFewNodes       = errors.New("path: at least two nodes are required")
	ErrParameterCount    = errors.New("path: wrong number of node parameters")
)
