package path

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// lengthSumTolerance bounds how far the segment lengths may stray from 1.
const lengthSumTolerance = 1e-9

// LinearSplinePath is a chain of straight segments whose auxiliary lengths sum to 1.
type LinearSplinePath struct {
	segments       []LinearSplinePathSegment
	numberOfFields int
	temperature    float64
}

// NewLinearSplinePath chains the given segments into a path.
// Segments must all be valid, share a dimension, join end to start and have
// lengths summing to 1.
func NewLinearSplinePath(segments []LinearSplinePathSegment, temperature float64) (*LinearSplinePath, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments: %w", ErrSegmentLengths)
	}

	numberOfFields := segments[0].NumberOfFields()
	lengthSum := 0.0
	for i, segment := range segments {
		if !segment.Valid() {
			return nil, fmt.Errorf("segment %d has length %g: %w", i, segment.Length(), ErrSegmentLengths)
		}
		if segment.NumberOfFields() != numberOfFields {
			return nil, fmt.Errorf("segment %d has %d fields, expected %d: %w",
				i, segment.NumberOfFields(), numberOfFields, ErrDimensionMismatch)
		}
		lengthSum += segment.Length()

		if i > 0 {
			previousEnd := segments[i-1].EndNode()
			scale := math.Max(1.0, floats.Norm(previousEnd, 2))
			if floats.Distance(previousEnd, segment.fieldConstants, 2) > lengthSumTolerance*scale {
				return nil, fmt.Errorf("segment %d does not start where segment %d ends: %w", i, i-1, ErrDiscontinuous)
			}
		}
	}
	if math.Abs(lengthSum-1.0) > lengthSumTolerance {
		return nil, fmt.Errorf("lengths sum to %.12g: %w", lengthSum, ErrSegmentLengths)
	}

	copied := make([]LinearSplinePathSegment, len(segments))
	copy(copied, segments)

	return &LinearSplinePath{
		segments:       copied,
		numberOfFields: numberOfFields,
		temperature:    temperature,
	}, nil
}

// NewLinearSplineThroughNodes joins nodes with straight segments. Each segment
// gets an auxiliary length proportional to its Euclidean length, so the path
// moves through field space at constant speed. Consecutive duplicate nodes are
// skipped.
func NewLinearSplineThroughNodes(nodes [][]float64, temperature float64) (*LinearSplinePath, error) {
	if len(nodes) < 2 {
		return nil, ErrTooFewNodes
	}
	numberOfFields := len(nodes[0])
	for i, node := range nodes {
		if len(node) != numberOfFields {
			return nil, fmt.Errorf("node %d has %d fields, expected %d: %w", i, len(node), numberOfFields, ErrDimensionMismatch)
		}
	}

	distinct := [][]float64{nodes[0]}
	distances := []float64{}
	totalDistance := 0.0
	for _, node := range nodes[1:] {
		distance := floats.Distance(node, distinct[len(distinct)-1], 2)
		if distance == 0 {
			continue
		}
		distinct = append(distinct, node)
		distances = append(distances, distance)
		totalDistance += distance
	}
	if totalDistance == 0 {
		return nil, ErrDegenerateVacua
	}

	segments := make([]LinearSplinePathSegment, len(distances))
	for i, distance := range distances {
		segments[i] = NewLinearSplinePathSegment(distinct[i], distinct[i+1], distance/totalDistance)
	}
	// Rounding must not leave the lengths short of 1.
	lengthSum := 0.0
	for _, segment := range segments[:len(segments)-1] {
		lengthSum += segment.Length()
	}
	last := len(segments) - 1
	segments[last] = NewLinearSplinePathSegment(distinct[last], distinct[last+1], 1.0-lengthSum)

	return NewLinearSplinePath(segments, temperature)
}

// NumberOfFields returns the dimension of field space
func (p *LinearSplinePath) NumberOfFields() int {
	return p.numberOfFields
}

// Temperature returns the temperature the path was built for
func (p *LinearSplinePath) Temperature() float64 {
	return p.temperature
}

// Segments returns a copy of the path's segments
func (p *LinearSplinePath) Segments() []LinearSplinePathSegment {
	return append([]LinearSplinePathSegment(nil), p.segments...)
}

// Nodes returns the segment junctions, starting at the false vacuum and ending
// at the true vacuum.
func (p *LinearSplinePath) Nodes() [][]float64 {
	nodes := make([][]float64, 0, len(p.segments)+1)
	for _, segment := range p.segments {
		nodes = append(nodes, segment.StartNode())
	}
	return append(nodes, p.segments[len(p.segments)-1].EndNode())
}

// segmentAt finds the segment containing auxiliary and the offset into it.
// Values outside [0,1] clamp to the ends of the path.
func (p *LinearSplinePath) segmentAt(auxiliary float64) (LinearSplinePathSegment, float64) {
	last := p.segments[len(p.segments)-1]
	if auxiliary <= 0 {
		return p.segments[0], 0
	}
	if auxiliary >= 1 {
		return last, last.Length()
	}
	offset := auxiliary
	for _, segment := range p.segments {
		if offset < segment.Length() {
			return segment, offset
		}
		offset -= segment.Length()
	}
	return last, last.Length()
}

// PositionAt returns the field configuration at auxiliary
func (p *LinearSplinePath) PositionAt(auxiliary float64) []float64 {
	position := make([]float64, p.numberOfFields)
	p.PutOnPathAt(position, auxiliary)
	return position
}

// PutOnPathAt writes the field configuration at auxiliary into dst
func (p *LinearSplinePath) PutOnPathAt(dst []float64, auxiliary float64) {
	segment, offset := p.segmentAt(auxiliary)
	segment.putAt(dst, offset)
}

// SlopeSquared returns |dx/dp|^2 of the segment containing auxiliary
func (p *LinearSplinePath) SlopeSquared(auxiliary float64) float64 {
	segment, _ := p.segmentAt(auxiliary)
	return segment.SlopeSquared()
}

// SlopeDotAcceleration is zero: straight segments do not accelerate.
func (p *LinearSplinePath) SlopeDotAcceleration(auxiliary float64) float64 {
	return 0
}
