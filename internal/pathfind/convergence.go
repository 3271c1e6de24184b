package pathfind

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when repeated path improvements stop paying off
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Patience is the number of improvement steps without progress before stopping
	Patience int `yaml:"patience" json:"patience"`

	// Threshold is the minimum relative action decrease that counts as progress.
	// Relative improvement = (lastSignificant - action) / |lastSignificant|
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// DefaultConvergenceConfig returns the defaults for convergence detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 1e-4,
	}
}

// DisabledConvergenceConfig never reports convergence, so runs use their full budget
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{Enabled: false}
}

// ConvergenceTracker tracks the best action per improvement step and detects
// when the path has stopped improving.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	bestAction      float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestAction:      math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the action after an improvement step and reports convergence
func (c *ConvergenceTracker) Update(action float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, action)
	if action < c.bestAction {
		c.bestAction = action
	}

	if len(c.history) == 1 {
		c.lastSignificant = action
		return false
	}

	scale := math.Abs(c.lastSignificant)
	if scale == 0 {
		scale = 1
	}
	relativeImprovement := (c.lastSignificant - action) / scale

	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = action
		c.staleCount = 0
		slog.Debug("Action improvement detected",
			"action", action,
			"relative_improvement", relativeImprovement)
		return false
	}

	c.staleCount++
	slog.Debug("No significant action improvement",
		"action", action,
		"last_significant", c.lastSignificant,
		"relative_improvement", relativeImprovement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience)

	if c.staleCount >= c.config.Patience {
		slog.Info("Path converged",
			"stale_count", c.staleCount,
			"best_action", c.bestAction)
		return true
	}
	return false
}

// BestAction returns the lowest action seen
func (c *ConvergenceTracker) BestAction() float64 {
	return c.bestAction
}

// History returns a copy of the recorded actions
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the number of steps since the last significant improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = nil
	c.bestAction = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
