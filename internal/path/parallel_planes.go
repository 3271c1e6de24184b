package path

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NodesOnParallelPlanes parameterizes a path by intermediate nodes that each move
// on a hyperplane perpendicular to the false-to-true vacuum direction.
//
// Each node carries numberOfFields-1 free parameters. They are read as a vector
// whose field-0 component is zero and mapped by the reflection that takes field
// axis 0 onto the vacuum direction, so the free parameters never move a node
// along that direction. Node i sits on the plane through
// falseVacuum + (i+1)/(N+1) * (trueVacuum - falseVacuum).
type NodesOnParallelPlanes struct {
	numberOfFields            int
	numberOfIntermediateNodes int
	falseVacuum               []float64
	trueVacuum                []float64
	difference                []float64
	reflectionMatrix          *mat.Dense
}

// NewNodesOnParallelPlanes prepares the planes between the two vacua
func NewNodesOnParallelPlanes(falseVacuum, trueVacuum []float64, intermediateNodes int) (*NodesOnParallelPlanes, error) {
	if len(falseVacuum) != len(trueVacuum) {
		return nil, fmt.Errorf("false vacuum has %d fields, true vacuum %d: %w",
			len(falseVacuum), len(trueVacuum), ErrDimensionMismatch)
	}
	if len(falseVacuum) == 0 {
		return nil, fmt.Errorf("no fields: %w", ErrDimensionMismatch)
	}
	if intermediateNodes < 0 {
		return nil, fmt.Errorf("negative node count %d: %w", intermediateNodes, ErrTooFewNodes)
	}

	difference := make([]float64, len(falseVacuum))
	floats.SubTo(difference, trueVacuum, falseVacuum)
	if floats.Norm(difference, 2) == 0 {
		return nil, ErrDegenerateVacua
	}

	return &NodesOnParallelPlanes{
		numberOfFields:            len(falseVacuum),
		numberOfIntermediateNodes: intermediateNodes,
		falseVacuum:               append([]float64(nil), falseVacuum...),
		trueVacuum:                append([]float64(nil), trueVacuum...),
		difference:                difference,
		reflectionMatrix:          householderOntoAxis(difference),
	}, nil
}

// householderOntoAxis returns the reflection H = I - 2uu^T/(u.u) with
// u = e0 -/+ d/|d|, which maps e0 onto the line along d. The sign is chosen
// away from e0 so u never suffers cancellation.
func householderOntoAxis(direction []float64) *mat.Dense {
	n := len(direction)
	unit := append([]float64(nil), direction...)
	floats.Scale(1.0/floats.Norm(unit, 2), unit)

	sign := -1.0
	if unit[0] > 0 {
		sign = 1.0
	}
	u := make([]float64, n)
	for i, value := range unit {
		u[i] = sign * value
	}
	u[0] += 1.0

	reflection := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		reflection.Set(i, i, 1.0)
	}

	uVec := mat.NewVecDense(n, u)
	var outer mat.Dense
	outer.Outer(2.0/floats.Dot(u, u), uVec, uVec)
	reflection.Sub(reflection, &outer)
	return reflection
}

// NumberOfFields returns the dimension of field space
func (n *NodesOnParallelPlanes) NumberOfFields() int {
	return n.numberOfFields
}

// NumberOfIntermediateNodes returns how many movable nodes lie between the vacua
func (n *NodesOnParallelPlanes) NumberOfIntermediateNodes() int {
	return n.numberOfIntermediateNodes
}

// ParametersPerNode is one fewer than the number of fields
func (n *NodesOnParallelPlanes) ParametersPerNode() int {
	return n.numberOfFields - 1
}

// NumberOfParameters returns the total number of free parameters
func (n *NodesOnParallelPlanes) NumberOfParameters() int {
	return n.numberOfIntermediateNodes * n.ParametersPerNode()
}

// ZeroParameterization returns the parameters of the straight path
func (n *NodesOnParallelPlanes) ZeroParameterization() []float64 {
	return make([]float64, n.NumberOfParameters())
}

// FalseVacuum returns a copy of the false vacuum
func (n *NodesOnParallelPlanes) FalseVacuum() []float64 {
	return append([]float64(nil), n.falseVacuum...)
}

// TrueVacuum returns a copy of the true vacuum
func (n *NodesOnParallelPlanes) TrueVacuum() []float64 {
	return append([]float64(nil), n.trueVacuum...)
}

// PlaneSpacing is the field-space distance between neighbouring planes
func (n *NodesOnParallelPlanes) PlaneSpacing() float64 {
	return floats.Norm(n.difference, 2) / float64(n.numberOfIntermediateNodes+1)
}

// BaselineNode returns where node nodeIndex sits when its parameters are zero
func (n *NodesOnParallelPlanes) BaselineNode(nodeIndex int) []float64 {
	node := append([]float64(nil), n.falseVacuum...)
	fraction := float64(nodeIndex+1) / float64(n.numberOfIntermediateNodes+1)
	floats.AddScaled(node, fraction, n.difference)
	return node
}

// AddTransformedNode adds the reflection of (0, nodeParameters...) to nodeVector.
// nodeIndex is accepted for symmetry with non-parallel plane layouts; all planes
// here share the same orientation.
func (n *NodesOnParallelPlanes) AddTransformedNode(nodeVector []float64, nodeIndex int, nodeParameters []float64) {
	inPlane := mat.NewVecDense(n.numberOfFields, nil)
	for i, value := range nodeParameters {
		inPlane.SetVec(i+1, value)
	}
	var transformed mat.VecDense
	transformed.MulVec(n.reflectionMatrix, inPlane)
	for i := range nodeVector {
		nodeVector[i] += transformed.AtVec(i)
	}
}

// NodeAt returns intermediate node nodeIndex for its slice of parameters
func (n *NodesOnParallelPlanes) NodeAt(nodeIndex int, nodeParameters []float64) []float64 {
	node := n.BaselineNode(nodeIndex)
	n.AddTransformedNode(node, nodeIndex, nodeParameters)
	return node
}

// PathNodes returns every node of the path, vacua included, for the given
// flattened parameters.
func (n *NodesOnParallelPlanes) PathNodes(parameters []float64) ([][]float64, error) {
	if len(parameters) != n.NumberOfParameters() {
		return nil, fmt.Errorf("got %d parameters, expected %d: %w",
			len(parameters), n.NumberOfParameters(), ErrParameterCount)
	}

	perNode := n.ParametersPerNode()
	nodes := make([][]float64, 0, n.numberOfIntermediateNodes+2)
	nodes = append(nodes, n.FalseVacuum())
	for i := 0; i < n.numberOfIntermediateNodes; i++ {
		nodes = append(nodes, n.NodeAt(i, parameters[i*perNode:(i+1)*perNode]))
	}
	return append(nodes, n.TrueVacuum()), nil
}

// PathFor builds the straight-segment path through the parameterized nodes
func (n *NodesOnParallelPlanes) PathFor(parameters []float64, temperature float64) (*LinearSplinePath, error) {
	nodes, err := n.PathNodes(parameters)
	if err != nil {
		return nil, err
	}
	return NewLinearSplineThroughNodes(nodes, temperature)
}
