package path

import "gonum.org/v1/gonum/floats"

// emptySegmentLength marks a segment that was never given a span.
const emptySegmentLength = -1.0

// LinearSplinePathSegment is one straight piece of a piecewise-linear path.
// Position at local offset t in [0, length] is constants + t*linears.
type LinearSplinePathSegment struct {
	fieldConstants  []float64
	fieldLinears    []float64
	auxiliaryLength float64
}

// NewLinearSplinePathSegment builds the segment running from startNode to endNode
// over an auxiliary span of length. A non-positive length is a caller error.
func NewLinearSplinePathSegment(startNode, endNode []float64, length float64) LinearSplinePathSegment {
	constants := make([]float64, len(startNode))
	copy(constants, startNode)

	linears := make([]float64, len(startNode))
	floats.SubTo(linears, endNode, startNode)
	floats.Scale(1.0/length, linears)

	return LinearSplinePathSegment{
		fieldConstants:  constants,
		fieldLinears:    linears,
		auxiliaryLength: length,
	}
}

// EmptySegment returns the sentinel segment with a negative length
func EmptySegment() LinearSplinePathSegment {
	return LinearSplinePathSegment{auxiliaryLength: emptySegmentLength}
}

// Valid reports whether the segment spans a positive auxiliary length
func (s LinearSplinePathSegment) Valid() bool {
	return s.auxiliaryLength > 0
}

// NumberOfFields returns the field-space dimension of the segment
func (s LinearSplinePathSegment) NumberOfFields() int {
	return len(s.fieldConstants)
}

// Length returns the auxiliary span of the segment
func (s LinearSplinePathSegment) Length() float64 {
	return s.auxiliaryLength
}

// StartNode returns a copy of the segment's starting field configuration
func (s LinearSplinePathSegment) StartNode() []float64 {
	return append([]float64(nil), s.fieldConstants...)
}

// EndNode returns the field configuration at the end of the segment
func (s LinearSplinePathSegment) EndNode() []float64 {
	end := make([]float64, len(s.fieldConstants))
	s.putAt(end, s.auxiliaryLength)
	return end
}

// putAt writes constants + offset*linears into dst.
func (s LinearSplinePathSegment) putAt(dst []float64, offset float64) {
	copy(dst, s.fieldConstants)
	floats.AddScaled(dst, offset, s.fieldLinears)
}

// SlopeSquared is constant along a straight segment
func (s LinearSplinePathSegment) SlopeSquared() float64 {
	return floats.Dot(s.fieldLinears, s.fieldLinears)
}
