package spline

// Segment describes one quadratic piece: V(p) = Value + FirstDerivative*t +
// HalfSecondDerivative*t^2 with t = p - Start.
type Segment struct {
	Start                float64 `json:"start"`
	Length               float64 `json:"length"`
	Value                float64 `json:"value"`
	FirstDerivative      float64 `json:"firstDerivative"`
	HalfSecondDerivative float64 `json:"halfSecondDerivative"`
}

// Snapshot is a read-only copy of a set spline for formatting and export
type Snapshot struct {
	Segments                    []Segment `json:"segments"`
	FinalStart                  float64   `json:"finalStart"`
	FinalPotential              float64   `json:"finalPotential"`
	HalfFinalSecondDerivative   float64   `json:"halfFinalSecondDerivative"`
	FinalQuarticCoefficient     float64   `json:"finalQuarticCoefficient"`
	DefiniteUndershootAuxiliary float64   `json:"definiteUndershootAuxiliary"`
	DefiniteOvershootAuxiliary  float64   `json:"definiteOvershootAuxiliary"`
}

// Snapshot copies the coefficients. It returns the zero Snapshot if SetSpline
// has not run.
func (s *SplinePotential) Snapshot() Snapshot {
	if !s.isSet {
		return Snapshot{}
	}
	segments := make([]Segment, len(s.segmentLengths))
	start := 0.0
	for i, length := range s.segmentLengths {
		segments[i] = Segment{
			Start:                start,
			Length:               length,
			Value:                s.potentialValues[i],
			FirstDerivative:      s.firstDerivatives[i],
			HalfSecondDerivative: s.halfSecondDerivatives[i],
		}
		start += length
	}
	return Snapshot{
		Segments:                    segments,
		FinalStart:                  s.auxiliaryUpToFinalSegment,
		FinalPotential:              s.finalPotential,
		HalfFinalSecondDerivative:   s.halfFinalSecondDerivative,
		FinalQuarticCoefficient:     s.finalQuarticCoefficient,
		DefiniteUndershootAuxiliary: s.definiteUndershootAuxiliary,
		DefiniteOvershootAuxiliary:  s.definiteOvershootAuxiliary,
	}
}
