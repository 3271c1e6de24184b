package spline

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTooFewSegments is returned by SetSpline when no point was added
	ErrTooFewSegments = errors.New("spline: at least one segment is required")

	// ErrNoFinalSegment is returned when the added segments leave no room
	// for the terminal segment before auxiliary 1
	ErrNoFinalSegment = errors.New("spline: segment lengths must sum to less than 1")

	// ErrBadSegmentLength is returned by SetSpline for a non-positive segment length
	ErrBadSegmentLength = errors.New("spline: segment lengths must be positive")
)

// SplinePotential is the potential along a tunneling path as a function of
// the path's auxiliary value p in [0,1]. It is piecewise quadratic, with a
// quartic in (p-1) on the terminal segment, and has continuous value and
// slope. V(0) is the false vacuum (zero unless lowered by the concavity floor),
// V(1) the true vacuum, and V'(0) = V'(1) = 0.
//
// Points are added with AddPoint and the coefficients fixed by SetSpline.
// After SetSpline the spline is read-only and safe for concurrent use.
type SplinePotential struct {
	// segmentLengths[i] is the auxiliary span of segment i.
	segmentLengths []float64
	// potentialValues[i] is the value at the start of segment i; the last
	// entry is the value at the end of the last quadratic segment.
	potentialValues       []float64
	firstDerivatives      []float64
	halfSecondDerivatives []float64

	finalPotential            float64
	halfFinalSecondDerivative float64
	finalQuarticCoefficient   float64

	minimumFalseVacuumConcavity float64
	definiteUndershootAuxiliary float64
	definiteOvershootAuxiliary  float64
	auxiliaryUpToFinalSegment   float64
	isSet                       bool
}

// New creates an empty spline. minimumFalseVacuumConcavity is the smallest
// half second derivative allowed at the false vacuum when the first sample
// already lies below it.
func New(minimumFalseVacuumConcavity float64) *SplinePotential {
	return &SplinePotential{
		potentialValues:             []float64{0.0},
		finalPotential:              math.NaN(),
		halfFinalSecondDerivative:   math.NaN(),
		finalQuarticCoefficient:     math.NaN(),
		minimumFalseVacuumConcavity: minimumFalseVacuumConcavity,
		definiteUndershootAuxiliary: math.NaN(),
		definiteOvershootAuxiliary:  math.NaN(),
	}
}

// AddPoint appends a quadratic segment of the given auxiliary length whose end
// has potentialDifference relative to the false vacuum.
func (s *SplinePotential) AddPoint(segmentLength, potentialDifference float64) {
	s.segmentLengths = append(s.segmentLengths, segmentLength)
	s.potentialValues = append(s.potentialValues, potentialDifference)
	s.isSet = false
}

// NumberOfSegments returns the number of quadratic segments, not counting the
// terminal quartic segment.
func (s *SplinePotential) NumberOfSegments() int {
	return len(s.segmentLengths)
}

// SetSpline fixes the coefficients so that the potential reaches
// trueVacuumPotentialDifference with zero slope at auxiliary 1. It also
// records the first point where the potential drops to the false vacuum
// value (definite undershoot) and the first extremum after it (definite
// overshoot).
func (s *SplinePotential) SetSpline(trueVacuumPotentialDifference float64) error {
	if len(s.segmentLengths) == 0 {
		return ErrTooFewSegments
	}
	lengthSum := 0.0
	for i, length := range s.segmentLengths {
		if !(length > 0) {
			return fmt.Errorf("segment %d has length %g: %w", i, length, ErrBadSegmentLength)
		}
		lengthSum += length
	}
	if lengthSum >= 1.0 {
		return fmt.Errorf("segments cover %g: %w", lengthSum, ErrNoFinalSegment)
	}

	numberOfSegments := len(s.segmentLengths)
	s.firstDerivatives = make([]float64, numberOfSegments)
	s.halfSecondDerivatives = make([]float64, numberOfSegments)
	s.potentialValues[0] = 0.0
	s.finalPotential = trueVacuumPotentialDifference

	// Numerical jitter can put the false vacuum slightly off p = 0. If the
	// first sample is already below it, the first segment is forced concave
	// with the minimum curvature and the false vacuum lowered to match, which
	// also guarantees a small barrier when the real one is too thin for the
	// sampling to resolve. The true vacuum is lowered by the same amount so
	// tunneling stays possible.
	firstLength := s.segmentLengths[0]
	if s.potentialValues[1] < 0.0 {
		s.halfSecondDerivatives[0] = s.minimumFalseVacuumConcavity
		s.potentialValues[0] = s.potentialValues[1] - s.minimumFalseVacuumConcavity*firstLength*firstLength
		s.finalPotential += s.potentialValues[0]
	} else {
		s.halfSecondDerivatives[0] = s.potentialValues[1] / (firstLength * firstLength)
	}

	falseVacuumPotential := s.potentialValues[0]
	undershootFound := false
	overshootFound := false
	segmentStart := firstLength
	for i := 1; i < numberOfSegments; i++ {
		previousLength := s.segmentLengths[i-1]
		length := s.segmentLengths[i]
		s.firstDerivatives[i] = s.firstDerivatives[i-1] + 2.0*previousLength*s.halfSecondDerivatives[i-1]
		s.halfSecondDerivatives[i] = (s.potentialValues[i+1] - s.potentialValues[i] -
			s.firstDerivatives[i]*length) / (length * length)

		if !undershootFound {
			if crossing, ok := firstCrossing(s.potentialValues[i]-falseVacuumPotential,
				s.firstDerivatives[i], s.halfSecondDerivatives[i], length); ok {
				s.definiteUndershootAuxiliary = segmentStart + crossing
				undershootFound = true
			}
		}

		if undershootFound && !overshootFound && s.halfSecondDerivatives[i] != 0.0 {
			extremum := -0.5 * s.firstDerivatives[i] / s.halfSecondDerivatives[i]
			if extremum > math.Max(0.0, s.definiteUndershootAuxiliary-segmentStart) && extremum < length {
				s.definiteOvershootAuxiliary = segmentStart + extremum
				overshootFound = true
			}
		}

		segmentStart += length
	}
	s.auxiliaryUpToFinalSegment = segmentStart

	// The terminal segment is F + h(p-1)^2 + q(p-1)^4, matched in value and
	// slope to the end of the last quadratic segment at p-1 = D.
	lastIndex := numberOfSegments - 1
	lastValue := s.potentialValues[numberOfSegments]
	lastSlope := s.firstDerivatives[lastIndex] + 2.0*s.halfSecondDerivatives[lastIndex]*s.segmentLengths[lastIndex]
	finalDifference := segmentStart - 1.0
	squaredDifference := finalDifference * finalDifference
	scaledHalfSecond := 0.5 * (4.0*(lastValue-s.finalPotential) - lastSlope*finalDifference)
	s.finalQuarticCoefficient = (lastValue - s.finalPotential - scaledHalfSecond) / (squaredDifference * squaredDifference)
	s.halfFinalSecondDerivative = scaledHalfSecond / squaredDifference

	if !undershootFound {
		// The potential never dropped below the false vacuum before the
		// terminal segment.
		s.definiteUndershootAuxiliary = segmentStart
	}
	if !overshootFound {
		s.definiteOvershootAuxiliary = 1.0
		if s.finalQuarticCoefficient != 0.0 {
			turningSquare := -s.halfFinalSecondDerivative / (2.0 * s.finalQuarticCoefficient)
			if turningSquare > 0.0 {
				turning := 1.0 - math.Sqrt(turningSquare)
				if turning > math.Max(segmentStart, s.definiteUndershootAuxiliary) && turning < 1.0 {
					s.definiteOvershootAuxiliary = turning
				}
			}
		}
	}

	s.isSet = true
	return nil
}

// firstCrossing returns the smallest t in [0, length) where
// offset + slope*t + halfCurvature*t^2 falls to zero or below. Only downward
// crossings count: a tangential root of an upward-curving segment touches
// zero from above and is skipped.
func firstCrossing(offset, slope, halfCurvature, length float64) (float64, bool) {
	if offset < 0.0 {
		return 0, true
	}
	if halfCurvature == 0.0 {
		if !(slope < 0.0) {
			return 0, false
		}
		crossing := -offset / slope
		return crossing, crossing < length
	}

	discriminant := slope*slope - 4.0*offset*halfCurvature
	if discriminant < 0.0 {
		return 0, false
	}
	root := math.Sqrt(discriminant)
	if root == 0.0 && halfCurvature > 0.0 {
		return 0, false
	}
	// The root where the slope is -root, whatever the sign of halfCurvature.
	crossing := (-slope - root) / (2.0 * halfCurvature)
	return crossing, crossing >= 0.0 && crossing < length
}

// IsSet reports whether SetSpline has run since the last AddPoint
func (s *SplinePotential) IsSet() bool {
	return s.isSet
}

// Value returns the potential at auxiliary. Values outside [0,1] clamp to the
// vacua.
func (s *SplinePotential) Value(auxiliary float64) float64 {
	if auxiliary <= 0.0 {
		return s.potentialValues[0]
	}
	if auxiliary >= 1.0 {
		return s.finalPotential
	}
	offset := auxiliary
	for i, length := range s.segmentLengths {
		if offset < length {
			return s.potentialValues[i] + (s.firstDerivatives[i]+s.halfSecondDerivatives[i]*offset)*offset
		}
		offset -= length
	}
	difference := auxiliary - 1.0
	squared := difference * difference
	return s.finalPotential + (s.halfFinalSecondDerivative+s.finalQuarticCoefficient*squared)*squared
}

// FirstDerivative returns dV/dp at auxiliary; it is zero outside (0,1).
func (s *SplinePotential) FirstDerivative(auxiliary float64) float64 {
	if auxiliary <= 0.0 || auxiliary >= 1.0 {
		return 0.0
	}
	offset := auxiliary
	for i, length := range s.segmentLengths {
		if offset < length {
			return s.firstDerivatives[i] + 2.0*s.halfSecondDerivatives[i]*offset
		}
		offset -= length
	}
	difference := auxiliary - 1.0
	return (2.0*s.halfFinalSecondDerivative + 4.0*s.finalQuarticCoefficient*difference*difference) * difference
}

// FalseVacuumPotential is V(0), possibly lowered by the concavity floor
func (s *SplinePotential) FalseVacuumPotential() float64 {
	return s.potentialValues[0]
}

// FinalPotential is V(1)
func (s *SplinePotential) FinalPotential() float64 {
	return s.finalPotential
}

// DefiniteUndershootAuxiliary is the first auxiliary value where the potential
// is at or below the false vacuum value.
func (s *SplinePotential) DefiniteUndershootAuxiliary() float64 {
	return s.definiteUndershootAuxiliary
}

// DefiniteOvershootAuxiliary is the first extremum after the definite
// undershoot point, or 1 if there is none before the true vacuum.
func (s *SplinePotential) DefiniteOvershootAuxiliary() float64 {
	return s.definiteOvershootAuxiliary
}
