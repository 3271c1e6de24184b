package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/bouncepath/internal/bounce"
	"github.com/cwbudde/bouncepath/internal/opt"
)

const quarticWell = `potential:
  fields: 1
  terms:
    - coefficient: 1
      powers: [2]
    - coefficient: -2.5
      powers: [3]
    - coefficient: 1
      powers: [4]
vacua:
  false: [0]
  true: [1.5]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "run.yml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_AppliesDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, quarticWell))
	require.NoError(t, err)

	assert.Equal(t, 1, config.Potential.Fields)
	assert.Len(t, config.Potential.Terms, 3)
	assert.Equal(t, "O(3)", config.Tunneling.Symmetry)
	assert.Equal(t, 32, config.Tunneling.PotentialSegments)
	assert.Equal(t, MinimizerNelderMead, config.Improvement.Minimizer)
	require.NotNil(t, config.Improvement.Strategy)
	assert.Equal(t, 1, *config.Improvement.Strategy)
	assert.Equal(t, 100, config.Improvement.MovesPerImprovement)
	assert.Equal(t, 10, config.Improvement.MaxImprovements)
	assert.Equal(t, 3, config.Improvement.Convergence.Patience)
	assert.Equal(t, 3, config.Path.IntermediateNodes)
	assert.Equal(t, "./data", config.Store.DataDir)
	assert.Equal(t, filepath.Join("./data", "outcomes.db"), config.Store.Ledger)

	_, isNelderMead := config.NewMinimizer().(*opt.NelderMead)
	assert.True(t, isNelderMead)
	assert.True(t, config.ConvergenceConfig().Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	content := quarticWell + `temperature: 12.5
tunneling:
  symmetry: quantum
  potentialSegments: 64
  radiusFactor: 20
path:
  intermediateNodes: 4
improvement:
  minimizer: Mayfly
  strategy: 0
  maxImprovements: 7
  convergence:
    disabled: true
  mayfly:
    seed: 42
store:
  dataDir: /tmp/bounces
`
	config, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, 12.5, config.Temperature)
	assert.Equal(t, "O(4)", config.Tunneling.Symmetry)
	assert.Equal(t, 4, config.Path.IntermediateNodes)
	assert.Equal(t, 0, *config.Improvement.Strategy)
	assert.Equal(t, 0, config.PathfindSettings().Strategy)
	assert.Equal(t, 7, config.Improvement.MaxImprovements)
	assert.Equal(t, 40, config.Improvement.Mayfly.PopulationSize)
	assert.Equal(t, filepath.Join("/tmp/bounces", "outcomes.db"), config.Store.Ledger)
	assert.False(t, config.ConvergenceConfig().Enabled)

	_, isMayfly := config.NewMinimizer().(*opt.MayflyAdapter)
	assert.True(t, isMayfly)

	settings, err := config.BounceSettings()
	require.NoError(t, err)
	assert.Equal(t, bounce.O4, settings.Symmetry)
	assert.Equal(t, 64, settings.PotentialSegments)
	assert.Equal(t, 20.0, settings.RadiusFactor)

	summary := config.Summary()
	assert.Equal(t, []float64{1.5}, summary.TrueVacuum)
	assert.Equal(t, "mayfly", summary.Minimizer)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{"invalid yaml", "potential: [1, 2\n", "failed to parse YAML"},
		{"no fields", "potential:\n  fields: 0\n", "potential.fields"},
		{"no terms", "potential:\n  fields: 1\nvacua:\n  false: [0]\n  true: [1]\n", "potential.terms"},
		{"bad symmetry", quarticWell + "tunneling:\n  symmetry: o5\n", "tunneling.symmetry"},
		{"bad minimizer", quarticWell + "improvement:\n  minimizer: simplex\n", "improvement.minimizer"},
		{"bad strategy", quarticWell + "improvement:\n  strategy: 3\n", "improvement.strategy"},
		{"small population", quarticWell + "improvement:\n  minimizer: mayfly\n  mayfly:\n    populationSize: 5\n", "populationSize"},
		{"negative nodes", quarticWell + "path:\n  intermediateNodes: -2\n", "path.intermediateNodes"},
		{"negative temperature", quarticWell + "temperature: -1\n", "temperature"},
		{"bad decay", quarticWell + "improvement:\n  toleranceDecay: 2\n", "tolerance decay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoad_VacuumDimensionMismatch(t *testing.T) {
	content := `potential:
  fields: 2
  terms:
    - coefficient: 1
      powers: [2, 0]
vacua:
  false: [0, 0]
  true: [1]
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vacua.true has 1 fields")
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/run.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestNewActionCalculator(t *testing.T) {
	config, err := Load(writeConfig(t, quarticWell))
	require.NoError(t, err)

	calculator, err := config.NewActionCalculator()
	require.NoError(t, err)
	assert.Equal(t, bounce.O3, calculator.Settings().Symmetry)

	fn, err := config.Polynomial()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, fn.Value([]float64{0}, 0), 1e-15)
}
