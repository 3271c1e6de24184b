package pathfind

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bouncepath/internal/opt"
	"github.com/cwbudde/bouncepath/internal/path"
	"github.com/cwbudde/bouncepath/internal/potential"
)

// ValleyFinder builds a curved starting path by rolling each intermediate
// node down the potential within its plane perpendicular to the vacuum axis.
type ValleyFinder struct {
	potential potential.Function
	minimizer opt.Minimizer
	// EvaluationsPerNode bounds the minimizer budget per plane
	EvaluationsPerNode int
	// StepFraction sets the first in-plane step as a fraction of the plane spacing
	StepFraction float64
	Tolerance    float64
}

// NewValleyFinder creates a finder with default budget and steps
func NewValleyFinder(fn potential.Function, minimizer opt.Minimizer) *ValleyFinder {
	return &ValleyFinder{
		potential:          fn,
		minimizer:          minimizer,
		EvaluationsPerNode: 200,
		StepFraction:       0.5,
		Tolerance:          1e-10,
	}
}

// Find returns the curved path through the in-plane minima. Each plane starts
// from the previous plane's solution, which keeps neighbouring nodes in the
// same valley.
func (v *ValleyFinder) Find(planes *path.NodesOnParallelPlanes, temperature float64) (*path.LinearSplinePath, []float64, error) {
	parameters := planes.ZeroParameterization()
	perNode := planes.ParametersPerNode()
	if perNode == 0 {
		tunnelPath, err := planes.PathFor(parameters, temperature)
		return tunnelPath, parameters, err
	}

	step := v.StepFraction * planes.PlaneSpacing()
	previous := make([]float64, perNode)
	for node := 0; node < planes.NumberOfIntermediateNodes(); node++ {
		nodeIndex := node
		objective := func(nodeParameters []float64) float64 {
			return v.potential.Value(planes.NodeAt(nodeIndex, nodeParameters), temperature)
		}
		steps := make([]float64, perNode)
		for i := range steps {
			steps[i] = step
		}
		minimum, err := v.minimizer.Minimize(objective, opt.Request{
			Start:          previous,
			Steps:          steps,
			MaxEvaluations: v.EvaluationsPerNode,
			Tolerance:      v.Tolerance,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("valley node %d: %w", node, err)
		}
		copy(parameters[node*perNode:(node+1)*perNode], minimum.X)
		previous = minimum.X

		slog.Debug("Valley node placed", "node", node, "potential", minimum.F)
	}

	tunnelPath, err := planes.PathFor(parameters, temperature)
	if err != nil {
		return nil, nil, err
	}
	return tunnelPath, parameters, nil
}
