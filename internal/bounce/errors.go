package bounce

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBubble indicates no trial profile overshot the false vacuum, so the
	// shooting bracket never closed on a bubble solution.
	ErrNoBubble = errors.New("bounce: no bubble solution in shooting bracket")

	// ErrNotMetastable indicates the end of the path is not below its start
	ErrNotMetastable = errors.New("bounce: true vacuum is not lower than false vacuum")

	// ErrStepTooSmall indicates the adaptive step fell below its minimum
	ErrStepTooSmall = errors.New("bounce: adaptive step below minimum")

	// ErrStepBudget indicates the integration used up its step budget
	ErrStepBudget = errors.New("bounce: step budget exhausted")

	// ErrFlatPath indicates the path has zero length, so |dx/dp| vanishes
	ErrFlatPath = errors.New("bounce: path has zero slope")
)

// ShootingError wraps a failed shooting search with its final bracket
type ShootingError struct {
	Lower    float64
	Upper    float64
	Attempts int
	Wrapped  error
}

func (e *ShootingError) Error() string {
	return fmt.Sprintf("shooting in [%g, %g] after %d attempts: %v", e.Lower, e.Upper, e.Attempts, e.Wrapped)
}

func (e *ShootingError) Unwrap() error {
	return e.Wrapped
}
