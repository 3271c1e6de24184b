package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/bouncepath/internal/bounce"
	"github.com/cwbudde/bouncepath/internal/opt"
	"github.com/cwbudde/bouncepath/internal/pathfind"
	"github.com/cwbudde/bouncepath/internal/potential"
	"github.com/cwbudde/bouncepath/internal/store"
)

// Minimizer names accepted in the improvement section
const (
	MinimizerNelderMead = "nelder-mead"
	MinimizerMayfly     = "mayfly"
)

// Config is a complete run description: one potential, one vacuum pair and
// how hard to work on the tunneling path between them.
type Config struct {
	Potential   PotentialConfig   `yaml:"potential" json:"potential"`
	Vacua       VacuaConfig       `yaml:"vacua" json:"vacua"`
	Temperature float64           `yaml:"temperature" json:"temperature"`
	Tunneling   TunnelingConfig   `yaml:"tunneling" json:"tunneling"`
	Path        PathConfig        `yaml:"path" json:"path"`
	Improvement ImprovementConfig `yaml:"improvement" json:"improvement"`
	Store       StoreConfig       `yaml:"store" json:"store"`
}

// PotentialConfig describes a polynomial potential
type PotentialConfig struct {
	Fields int              `yaml:"fields" json:"fields"`
	Terms  []potential.Term `yaml:"terms" json:"terms"`
}

// VacuaConfig holds the two field-space endpoints of the path
type VacuaConfig struct {
	False []float64 `yaml:"false" json:"false"`
	True  []float64 `yaml:"true" json:"true"`
}

// TunnelingConfig configures the bounce action calculator
type TunnelingConfig struct {
	Symmetry                    string  `yaml:"symmetry" json:"symmetry"`
	PotentialSegments           int     `yaml:"potentialSegments" json:"potentialSegments"`
	MinimumFalseVacuumConcavity float64 `yaml:"minimumFalseVacuumConcavity" json:"minimumFalseVacuumConcavity"`
	ShootAttempts               int     `yaml:"shootAttempts" json:"shootAttempts"`
	RadiusFactor                float64 `yaml:"radiusFactor" json:"radiusFactor"`
}

// PathConfig controls the initial path
type PathConfig struct {
	IntermediateNodes int `yaml:"intermediateNodes" json:"intermediateNodes"`
}

// ImprovementConfig controls the straight/curved blending loop
type ImprovementConfig struct {
	Minimizer           string            `yaml:"minimizer" json:"minimizer"`
	Strategy            *int              `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	MovesPerImprovement int               `yaml:"movesPerImprovement" json:"movesPerImprovement"`
	Tolerance           float64           `yaml:"tolerance" json:"tolerance"`
	ToleranceDecay      float64           `yaml:"toleranceDecay" json:"toleranceDecay"`
	MinimumTolerance    float64           `yaml:"minimumTolerance" json:"minimumTolerance"`
	MaxImprovements     int               `yaml:"maxImprovements" json:"maxImprovements"`
	NoSolutionAction    float64           `yaml:"noSolutionAction" json:"noSolutionAction"`
	Convergence         ConvergenceConfig `yaml:"convergence" json:"convergence"`
	Mayfly              MayflyConfig      `yaml:"mayfly" json:"mayfly"`
}

// ConvergenceConfig mirrors pathfind.ConvergenceConfig with defaults on zero values
type ConvergenceConfig struct {
	Disabled  bool    `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Patience  int     `yaml:"patience" json:"patience"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// MayflyConfig is only read when the mayfly minimizer is selected
type MayflyConfig struct {
	PopulationSize int   `yaml:"populationSize" json:"populationSize"`
	Seed           int64 `yaml:"seed" json:"seed"`
}

// StoreConfig locates run artifacts and the outcome ledger
type StoreConfig struct {
	DataDir string `yaml:"dataDir" json:"dataDir"`
	Ledger  string `yaml:"ledger" json:"ledger"`
}

// Load reads, parses and validates a run file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate fills defaults for omitted values and rejects inconsistent ones
func (c *Config) Validate() error {
	if c.Potential.Fields < 1 {
		return fmt.Errorf("potential.fields must be positive, got %d", c.Potential.Fields)
	}
	if len(c.Potential.Terms) == 0 {
		return fmt.Errorf("potential.terms cannot be empty")
	}
	if _, err := potential.NewPolynomial(c.Potential.Fields, c.Potential.Terms); err != nil {
		return fmt.Errorf("potential: %w", err)
	}
	if len(c.Vacua.False) != c.Potential.Fields {
		return fmt.Errorf("vacua.false has %d fields, potential has %d", len(c.Vacua.False), c.Potential.Fields)
	}
	if len(c.Vacua.True) != c.Potential.Fields {
		return fmt.Errorf("vacua.true has %d fields, potential has %d", len(c.Vacua.True), c.Potential.Fields)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("temperature cannot be negative, got %g", c.Temperature)
	}

	if err := c.Tunneling.validate(); err != nil {
		return err
	}
	if c.Path.IntermediateNodes == 0 {
		c.Path.IntermediateNodes = 3
	}
	if c.Path.IntermediateNodes < 1 {
		return fmt.Errorf("path.intermediateNodes must be positive, got %d", c.Path.IntermediateNodes)
	}
	if err := c.Improvement.validate(); err != nil {
		return err
	}

	if c.Store.DataDir == "" {
		c.Store.DataDir = "./data"
	}
	if c.Store.Ledger == "" {
		c.Store.Ledger = filepath.Join(c.Store.DataDir, "outcomes.db")
	}
	return nil
}

func (t *TunnelingConfig) validate() error {
	defaults := bounce.DefaultSettings()
	if t.Symmetry == "" {
		t.Symmetry = defaults.Symmetry.String()
	}
	symmetry, err := bounce.ParseSymmetry(t.Symmetry)
	if err != nil {
		return fmt.Errorf("tunneling.symmetry: %w", err)
	}
	t.Symmetry = symmetry.String()
	if t.PotentialSegments == 0 {
		t.PotentialSegments = defaults.PotentialSegments
	}
	if t.MinimumFalseVacuumConcavity == 0 {
		t.MinimumFalseVacuumConcavity = defaults.MinimumFalseVacuumConcavity
	}
	if t.ShootAttempts == 0 {
		t.ShootAttempts = defaults.ShootAttempts
	}
	if t.RadiusFactor == 0 {
		t.RadiusFactor = defaults.RadiusFactor
	}
	settings, _ := t.settings()
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("tunneling: %w", err)
	}
	return nil
}

func (t TunnelingConfig) settings() (bounce.Settings, error) {
	symmetry, err := bounce.ParseSymmetry(t.Symmetry)
	if err != nil {
		return bounce.Settings{}, err
	}
	settings := bounce.DefaultSettings()
	settings.Symmetry = symmetry
	settings.PotentialSegments = t.PotentialSegments
	settings.MinimumFalseVacuumConcavity = t.MinimumFalseVacuumConcavity
	settings.ShootAttempts = t.ShootAttempts
	settings.RadiusFactor = t.RadiusFactor
	return settings, nil
}

func (i *ImprovementConfig) validate() error {
	defaults := pathfind.DefaultSettings()
	i.Minimizer = strings.ToLower(strings.TrimSpace(i.Minimizer))
	if i.Minimizer == "" {
		i.Minimizer = MinimizerNelderMead
	}
	if i.Minimizer != MinimizerNelderMead && i.Minimizer != MinimizerMayfly {
		return fmt.Errorf("improvement.minimizer must be %q or %q, got %q", MinimizerNelderMead, MinimizerMayfly, i.Minimizer)
	}
	if i.Strategy == nil {
		strategy := defaults.Strategy
		i.Strategy = &strategy
	}
	if *i.Strategy < 0 || *i.Strategy > 2 {
		return fmt.Errorf("improvement.strategy must be 0, 1 or 2, got %d", *i.Strategy)
	}
	if i.MovesPerImprovement == 0 {
		i.MovesPerImprovement = defaults.MovesPerImprovement
	}
	if i.Tolerance == 0 {
		i.Tolerance = defaults.Tolerance
	}
	if i.ToleranceDecay == 0 {
		i.ToleranceDecay = defaults.ToleranceDecay
	}
	if i.MinimumTolerance == 0 {
		i.MinimumTolerance = defaults.MinimumTolerance
	}
	if i.NoSolutionAction == 0 {
		i.NoSolutionAction = defaults.NoSolutionAction
	}
	if i.MaxImprovements == 0 {
		i.MaxImprovements = 10
	}
	if i.MaxImprovements < 0 {
		return fmt.Errorf("improvement.maxImprovements cannot be negative, got %d", i.MaxImprovements)
	}

	convergence := pathfind.DefaultConvergenceConfig()
	if i.Convergence.Patience == 0 {
		i.Convergence.Patience = convergence.Patience
	}
	if i.Convergence.Threshold == 0 {
		i.Convergence.Threshold = convergence.Threshold
	}
	if i.Convergence.Patience < 0 || i.Convergence.Threshold < 0 {
		return fmt.Errorf("improvement.convergence values cannot be negative")
	}

	if i.Minimizer == MinimizerMayfly {
		if i.Mayfly.PopulationSize == 0 {
			i.Mayfly.PopulationSize = 40
		}
		if i.Mayfly.PopulationSize < 20 {
			return fmt.Errorf("improvement.mayfly.populationSize must be at least 20, got %d", i.Mayfly.PopulationSize)
		}
	}

	if err := i.pathfindSettings().Validate(); err != nil {
		return fmt.Errorf("improvement: %w", err)
	}
	return nil
}

func (i ImprovementConfig) pathfindSettings() pathfind.Settings {
	settings := pathfind.DefaultSettings()
	if i.Strategy != nil {
		settings.Strategy = *i.Strategy
	}
	settings.MovesPerImprovement = i.MovesPerImprovement
	settings.Tolerance = i.Tolerance
	settings.ToleranceDecay = i.ToleranceDecay
	settings.MinimumTolerance = i.MinimumTolerance
	settings.NoSolutionAction = i.NoSolutionAction
	return settings
}

// Polynomial builds the configured potential
func (c *Config) Polynomial() (*potential.Polynomial, error) {
	return potential.NewPolynomial(c.Potential.Fields, c.Potential.Terms)
}

// BounceSettings returns the action calculator settings
func (c *Config) BounceSettings() (bounce.Settings, error) {
	return c.Tunneling.settings()
}

// PathfindSettings returns the BetweenPaths settings
func (c *Config) PathfindSettings() pathfind.Settings {
	return c.Improvement.pathfindSettings()
}

// ConvergenceConfig returns the improvement-loop stopping rule
func (c *Config) ConvergenceConfig() pathfind.ConvergenceConfig {
	if c.Improvement.Convergence.Disabled {
		return pathfind.DisabledConvergenceConfig()
	}
	return pathfind.ConvergenceConfig{
		Enabled:   true,
		Patience:  c.Improvement.Convergence.Patience,
		Threshold: c.Improvement.Convergence.Threshold,
	}
}

// NewMinimizer returns the configured minimizer
func (c *Config) NewMinimizer() opt.Minimizer {
	if c.Improvement.Minimizer == MinimizerMayfly {
		return opt.NewMayfly(c.Improvement.Mayfly.PopulationSize, c.Improvement.Mayfly.Seed)
	}
	return opt.NewNelderMead()
}

// NewActionCalculator builds the bounce solver for the configured potential
func (c *Config) NewActionCalculator() (*bounce.ActionCalculator, error) {
	fn, err := c.Polynomial()
	if err != nil {
		return nil, err
	}
	settings, err := c.BounceSettings()
	if err != nil {
		return nil, err
	}
	return bounce.NewActionCalculator(fn, settings)
}

// Summary is the part of the config a checkpoint needs to check compatibility
func (c *Config) Summary() store.RunConfig {
	return store.RunConfig{
		Fields:            c.Potential.Fields,
		FalseVacuum:       append([]float64{}, c.Vacua.False...),
		TrueVacuum:        append([]float64{}, c.Vacua.True...),
		Temperature:       c.Temperature,
		Symmetry:          c.Tunneling.Symmetry,
		IntermediateNodes: c.Path.IntermediateNodes,
		Minimizer:         c.Improvement.Minimizer,
	}
}
