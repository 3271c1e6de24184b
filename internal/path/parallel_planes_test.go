package path

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestNodesOnParallelPlanesZeroParametersGiveStraightPath(t *testing.T) {
	falseVacuum := []float64{0, 0}
	trueVacuum := []float64{1, 1}

	planes, err := NewNodesOnParallelPlanes(falseVacuum, trueVacuum, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, planes.ParametersPerNode())
	assert.Equal(t, 5, planes.NumberOfParameters())

	nodes, err := planes.PathNodes(planes.ZeroParameterization())
	require.NoError(t, err)
	require.Len(t, nodes, 7)
	for i, node := range nodes {
		fraction := float64(i) / 6.0
		assert.InDeltaSlice(t, []float64{fraction, fraction}, node, 1e-15, "node %d", i)
	}

	tunnelPath, err := planes.PathFor(planes.ZeroParameterization(), 0)
	require.NoError(t, err)
	for _, auxiliary := range []float64{0, 0.1, 0.37, 0.5, 0.82, 1} {
		assert.InDeltaSlice(t, []float64{auxiliary, auxiliary}, tunnelPath.PositionAt(auxiliary), 1e-12)
	}
}

func TestNodesOnParallelPlanesParametersStayInPlane(t *testing.T) {
	tests := []struct {
		name        string
		falseVacuum []float64
		trueVacuum  []float64
	}{
		{name: "diagonal", falseVacuum: []float64{0, 0}, trueVacuum: []float64{1, 1}},
		{name: "along first axis", falseVacuum: []float64{0, 0, 0}, trueVacuum: []float64{2, 0, 0}},
		{name: "against first axis", falseVacuum: []float64{1, 0, 0}, trueVacuum: []float64{-2, 0, 0}},
		{name: "general", falseVacuum: []float64{0.3, -1, 2, 0.5}, trueVacuum: []float64{-0.7, 2, 1, 4}},
	}

	random := rand.New(rand.NewSource(7))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planes, err := NewNodesOnParallelPlanes(tt.falseVacuum, tt.trueVacuum, 3)
			require.NoError(t, err)

			axis := make([]float64, len(tt.falseVacuum))
			floats.SubTo(axis, tt.trueVacuum, tt.falseVacuum)

			for trial := 0; trial < 20; trial++ {
				parameters := make([]float64, planes.NumberOfParameters())
				for i := range parameters {
					parameters[i] = 10 * (random.Float64() - 0.5)
				}
				nodes, err := planes.PathNodes(parameters)
				require.NoError(t, err)

				for i := 0; i < 3; i++ {
					displacement := make([]float64, len(axis))
					floats.SubTo(displacement, nodes[i+1], planes.BaselineNode(i))
					assert.InDelta(t, 0.0, floats.Dot(displacement, axis), 1e-9)

					// The reflection preserves lengths.
					perNode := planes.ParametersPerNode()
					assert.InDelta(t,
						floats.Norm(parameters[i*perNode:(i+1)*perNode], 2),
						floats.Norm(displacement, 2), 1e-9)
				}
			}
		})
	}
}

func TestAddTransformedNodeAccumulates(t *testing.T) {
	planes, err := NewNodesOnParallelPlanes([]float64{0, 0}, []float64{0, 2}, 1)
	require.NoError(t, err)

	// Vacuum direction is field 1, so the single in-plane direction is field 0.
	node := []float64{5, 5}
	planes.AddTransformedNode(node, 0, []float64{0.5})
	assert.InDelta(t, 0.5, abs(node[0]-5), 1e-12)
	assert.InDelta(t, 5.0, node[1], 1e-12)
}

func TestNodesOnParallelPlanesErrors(t *testing.T) {
	_, err := NewNodesOnParallelPlanes([]float64{1, 1}, []float64{1, 1}, 2)
	assert.ErrorIs(t, err, ErrDegenerateVacua)

	_, err = NewNodesOnParallelPlanes([]float64{1, 1}, []float64{1}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	planes, err := NewNodesOnParallelPlanes([]float64{0, 0}, []float64{1, 0}, 2)
	require.NoError(t, err)
	_, err = planes.PathNodes([]float64{1})
	assert.ErrorIs(t, err, ErrParameterCount)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
