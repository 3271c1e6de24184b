package spline

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/bouncepath/internal/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertSmooth checks that neighbouring pieces agree in value and slope at
// every junction, including the join to the terminal quartic.
func assertSmooth(t *testing.T, snapshot Snapshot) {
	t.Helper()
	for i, segment := range snapshot.Segments {
		endValue := segment.Value + (segment.FirstDerivative+segment.HalfSecondDerivative*segment.Length)*segment.Length
		endSlope := segment.FirstDerivative + 2*segment.HalfSecondDerivative*segment.Length

		if i+1 < len(snapshot.Segments) {
			next := snapshot.Segments[i+1]
			assert.InDelta(t, next.Value, endValue, 1e-9, "value at end of segment %d", i)
			assert.InDelta(t, next.FirstDerivative, endSlope, 1e-9, "slope at end of segment %d", i)
			continue
		}

		d := snapshot.FinalStart - 1
		quarticValue := snapshot.FinalPotential + (snapshot.HalfFinalSecondDerivative+snapshot.FinalQuarticCoefficient*d*d)*d*d
		quarticSlope := (2*snapshot.HalfFinalSecondDerivative + 4*snapshot.FinalQuarticCoefficient*d*d) * d
		assert.InDelta(t, quarticValue, endValue, 1e-9, "value at start of terminal segment")
		assert.InDelta(t, quarticSlope, endSlope, 1e-9, "slope at start of terminal segment")
	}
}

func TestSetSplineBoundaryValues(t *testing.T) {
	potential := New(1e-3)
	potential.AddPoint(0.2, 0.5)
	potential.AddPoint(0.2, 0.3)
	potential.AddPoint(0.2, -0.4)
	potential.AddPoint(0.2, -1.2)
	require.NoError(t, potential.SetSpline(-1.5))

	assert.True(t, potential.IsSet())
	assert.Equal(t, 0.0, potential.Value(0))
	assert.Equal(t, 0.0, potential.FalseVacuumPotential())
	assert.Equal(t, -1.5, potential.Value(1))
	assert.Equal(t, -1.5, potential.FinalPotential())
	assert.Equal(t, 0.0, potential.FirstDerivative(0))
	assert.Equal(t, 0.0, potential.FirstDerivative(1))

	// Clamped outside [0,1].
	assert.Equal(t, 0.0, potential.Value(-3))
	assert.Equal(t, -1.5, potential.Value(7))
	assert.Equal(t, 0.0, potential.FirstDerivative(2))

	// Sampled values are reproduced at the sample points.
	assert.InDelta(t, 0.5, potential.Value(0.2), 1e-12)
	assert.InDelta(t, 0.3, potential.Value(0.4), 1e-12)
	assert.InDelta(t, -0.4, potential.Value(0.6), 1e-12)
	assert.InDelta(t, -1.2, potential.Value(0.8), 1e-12)

	// Slope approaches zero at the true vacuum.
	assert.InDelta(t, 0.0, potential.FirstDerivative(1-1e-9), 1e-6)
	assertSmooth(t, potential.Snapshot())
}

func TestSetSplineFalseVacuumFloor(t *testing.T) {
	floor := 0.01
	potential := New(floor)
	potential.AddPoint(0.25, -0.1)
	potential.AddPoint(0.25, -0.3)
	potential.AddPoint(0.25, -0.6)
	require.NoError(t, potential.SetSpline(-1.0))

	lowered := -0.1 - floor*0.25*0.25
	assert.InDelta(t, lowered, potential.FalseVacuumPotential(), 1e-15)
	assert.InDelta(t, lowered, potential.Value(0), 1e-15)
	assert.InDelta(t, -1.0+lowered, potential.FinalPotential(), 1e-15)

	snapshot := potential.Snapshot()
	assert.Equal(t, floor, snapshot.Segments[0].HalfSecondDerivative)
	assert.Equal(t, 0.0, snapshot.Segments[0].FirstDerivative)

	// A barrier survives: the potential rises above the lowered false vacuum.
	assert.Greater(t, potential.Value(0.125), potential.Value(0))
	assertSmooth(t, snapshot)
}

func TestSetSplineRejectsBadInput(t *testing.T) {
	empty := New(0)
	assert.ErrorIs(t, empty.SetSpline(-1), ErrTooFewSegments)

	full := New(0)
	full.AddPoint(0.5, 1)
	full.AddPoint(0.5, 0)
	assert.ErrorIs(t, full.SetSpline(-1), ErrNoFinalSegment)

	negative := New(0)
	negative.AddPoint(-0.1, 1)
	assert.ErrorIs(t, negative.SetSpline(-1), ErrBadSegmentLength)

	assert.Equal(t, Snapshot{}, empty.Snapshot())
}

func TestSetSplineUndershootBeforeOvershoot(t *testing.T) {
	random := rand.New(rand.NewSource(11))
	for trial := 0; trial < 200; trial++ {
		numberOfSegments := 1 + random.Intn(9)
		weights := make([]float64, numberOfSegments+1)
		total := 0.0
		for i := range weights {
			weights[i] = 0.5 + random.Float64()
			total += weights[i]
		}

		potential := New(1e-4)
		for i := 0; i < numberOfSegments; i++ {
			potential.AddPoint(weights[i]/total, 2*random.Float64()-1)
		}
		require.NoError(t, potential.SetSpline(-2*random.Float64()))

		undershoot := potential.DefiniteUndershootAuxiliary()
		overshoot := potential.DefiniteOvershootAuxiliary()
		assert.False(t, math.IsNaN(undershoot))
		assert.False(t, math.IsNaN(overshoot))
		assert.LessOrEqual(t, undershoot, overshoot, "trial %d", trial)
		assert.GreaterOrEqual(t, undershoot, 0.0)
		assert.LessOrEqual(t, overshoot, 1.0)
		assert.Equal(t, 0.0, potential.FirstDerivative(1))
		assertSmooth(t, potential.Snapshot())
	}
}

func TestSetSplineUndershootCrossing(t *testing.T) {
	// V rises to 0.1, returns to 0.1 and only drops through zero in the
	// third segment.
	potential := New(0)
	potential.AddPoint(0.25, 0.1)
	potential.AddPoint(0.25, 0.1)
	potential.AddPoint(0.25, -0.5)
	require.NoError(t, potential.SetSpline(-1))

	undershoot := potential.DefiniteUndershootAuxiliary()
	assert.Greater(t, undershoot, 0.25)
	assert.Less(t, undershoot, 0.75)
	assert.InDelta(t, 0.0, potential.Value(undershoot), 1e-9)
	for p := 0.01; p < undershoot-1e-6; p += 0.01 {
		assert.Greater(t, potential.Value(p), 0.0, "p = %g", p)
	}
}

func TestSetSplineUndershootSkipsTouchingRoots(t *testing.T) {
	tests := []struct {
		name   string
		points [][2]float64
		// the barrier top the undershoot must lie beyond
		after float64
	}{
		{
			// the second segment is a parabola resting on zero at its start
			name:   "tangential root",
			points: [][2]float64{{0.25, 0}, {0.25, 0.5}, {0.25, -0.5}},
			after:  0.5625,
		},
		{
			name:   "exact zero sample",
			points: [][2]float64{{0.25, 0.5}, {0.25, 0}, {0.25, -0.5}},
			after:  0.25,
		},
		{
			name:   "flat segment",
			points: [][2]float64{{0.25, 0}, {0.25, 0}, {0.25, -0.5}},
			after:  0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			potential := New(0)
			for _, point := range tt.points {
				potential.AddPoint(point[0], point[1])
			}
			require.NoError(t, potential.SetSpline(-1))

			falseVacuum := potential.FalseVacuumPotential()
			undershoot := potential.DefiniteUndershootAuxiliary()
			overshoot := potential.DefiniteOvershootAuxiliary()
			assert.GreaterOrEqual(t, undershoot, tt.after)
			assert.Less(t, undershoot, overshoot)
			for _, step := range []float64{1e-6, 1e-3} {
				assert.LessOrEqual(t, potential.Value(undershoot+step), falseVacuum, "step %g", step)
			}
			for p := 0.01; p < undershoot-1e-6; p += 0.01 {
				assert.GreaterOrEqual(t, potential.Value(p), falseVacuum, "p = %g", p)
			}

			assert.LessOrEqual(t, potential.Value(overshoot), potential.Value(undershoot))
			if overshoot < 1 {
				assert.InDelta(t, 0.0, potential.FirstDerivative(overshoot), 1e-9)
				assert.Greater(t, potential.FirstDerivative(overshoot+1e-3), 0.0)
			}
		})
	}
}

func TestSetSplineTangentialRootOvershoot(t *testing.T) {
	potential := New(0)
	potential.AddPoint(0.25, 0)
	potential.AddPoint(0.25, 0.5)
	potential.AddPoint(0.25, -0.5)
	require.NoError(t, potential.SetSpline(-1))

	// V peaks at 0.5625 and drops through zero inside the third segment;
	// the terminal quartic has its minimum at 0.875.
	assert.InDelta(t, 0.5+(4+math.Sqrt(80))/64, potential.DefiniteUndershootAuxiliary(), 1e-12)
	assert.InDelta(t, 0.875, potential.DefiniteOvershootAuxiliary(), 1e-12)
	assert.InDelta(t, -1.0625, potential.Value(0.875), 1e-12)
}

func TestFirstCrossingDirection(t *testing.T) {
	tests := []struct {
		name                         string
		offset, slope, halfCurvature float64
		want                         float64
		ok                           bool
	}{
		{"already below", -0.1, 1, 1, 0, true},
		{"touching from above", 0, 0, 8, 0, false},
		{"touching from below", 0, 0, -8, 0, true},
		{"flat at zero", 0, 0, 0, 0, false},
		{"rising from zero", 0, 1, 1, 0, false},
		{"falling from zero", 0, -8, 24, 0, true},
		{"rising then falling", 0, 1, -4, 0.25, true},
		{"dip below", 0.5, -4, 6, (4 - math.Sqrt(4)) / 12, true},
		{"downward root past the end", 0.5, 4, -8, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crossing, ok := firstCrossing(tt.offset, tt.slope, tt.halfCurvature, 0.5)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, crossing, 1e-12)
			}
		})
	}
}

func TestFirstCrossingLinearFallback(t *testing.T) {
	crossing, ok := firstCrossing(0.2, -0.4, 0, 1)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, crossing, 1e-15)

	_, ok = firstCrossing(0.2, -0.1, 0, 1)
	assert.False(t, ok)

	_, ok = firstCrossing(0.2, 0, 0, 1)
	assert.False(t, ok)

	_, ok = firstCrossing(0.2, 0.1, 1, 1)
	assert.False(t, ok)
}

func TestSplineAlongStraightTwoFieldPath(t *testing.T) {
	// Each field sits in the quartic well x^2/2 - 5x^3/3 + x^4 with minima
	// at 0 and 1.
	well := func(x float64) float64 {
		return 0.5*x*x - 5.0/3.0*x*x*x + x*x*x*x
	}
	potentialAt := func(fields []float64) float64 {
		return well(fields[0]) + well(fields[1])
	}

	nodes := [][]float64{{0, 0}, {0.25, 0.25}, {0.5, 0.5}, {0.75, 0.75}, {1, 1}}
	tunnelPath, err := path.NewLinearSplineThroughNodes(nodes, 0)
	require.NoError(t, err)

	falseVacuumPotential := potentialAt(tunnelPath.PositionAt(0))
	trueVacuumDifference := potentialAt(tunnelPath.PositionAt(1)) - falseVacuumPotential

	potential := New(1e-6)
	for _, auxiliary := range []float64{0.25, 0.5, 0.75} {
		potential.AddPoint(0.25, potentialAt(tunnelPath.PositionAt(auxiliary))-falseVacuumPotential)
	}
	require.NoError(t, potential.SetSpline(trueVacuumDifference))

	assert.InDelta(t, -1.0/3.0, potential.Value(1), 1e-12)

	// The barrier peak lies strictly inside the path and the lowest value is
	// the true vacuum.
	peak, peakValue := 0.0, math.Inf(-1)
	lowest := math.Inf(1)
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		value := potential.Value(p)
		if value > peakValue {
			peak, peakValue = p, value
		}
		lowest = math.Min(lowest, value)
	}
	assert.Greater(t, peak, 0.0)
	assert.Less(t, peak, 1.0)
	assert.Greater(t, peakValue, 0.0)
	assert.InDelta(t, potential.Value(1), lowest, 1e-9)

	assert.Greater(t, potential.DefiniteUndershootAuxiliary(), peak)
	assert.LessOrEqual(t, potential.DefiniteUndershootAuxiliary(), potential.DefiniteOvershootAuxiliary())
	assertSmooth(t, potential.Snapshot())
}
