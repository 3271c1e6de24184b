package store

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// RunConfig is the part of a run configuration a checkpoint records.
// It lives here rather than in config so the store has no upward imports.
type RunConfig struct {
	Fields            int       `json:"fields"`
	FalseVacuum       []float64 `json:"falseVacuum"`
	TrueVacuum        []float64 `json:"trueVacuum"`
	Temperature       float64   `json:"temperature"`
	Symmetry          string    `json:"symmetry"`
	IntermediateNodes int       `json:"intermediateNodes"`
	Minimizer         string    `json:"minimizer"`
}

// Checkpoint is the resumable state of a path improvement run.
//
// Only the best blending weights and the curved path they apply to are
// saved. The minimizer's simplex or population is rebuilt on resume around
// the saved weights using the saved errors as step sizes, so a resumed run
// never starts from a worse action than the one checkpointed.
type Checkpoint struct {
	RunID string `json:"runId"`

	// Weights are the (intercept, slope) of the best blend of the curved and
	// straight paths; Errors their estimated uncertainties.
	Weights []float64 `json:"weights"`
	Errors  []float64 `json:"errors"`

	BestAction     float64 `json:"bestAction"`
	CurvedAction   float64 `json:"curvedAction"`
	StraightAction float64 `json:"straightAction"`

	Improvements int       `json:"improvements"`
	Temperature  float64   `json:"temperature"`
	Timestamp    time.Time `json:"timestamp"`

	// CurvedNodes are the nodes of the path the weights blend with the straight path
	CurvedNodes [][]float64 `json:"curvedNodes"`

	Config RunConfig `json:"config"`
}

// CheckpointInfo is the listing view of a checkpoint
type CheckpointInfo struct {
	RunID        string    `json:"runId"`
	BestAction   float64   `json:"bestAction"`
	Improvements int       `json:"improvements"`
	Timestamp    time.Time `json:"timestamp"`
	Fields       int       `json:"fields"`
	Symmetry     string    `json:"symmetry"`
	Temperature  float64   `json:"temperature"`
}

// NewCheckpoint stamps a checkpoint with the current time
func NewCheckpoint(runID string, weights, errs []float64, bestAction float64, improvements int, config RunConfig) *Checkpoint {
	return &Checkpoint{
		RunID:        runID,
		Weights:      append([]float64{}, weights...),
		Errors:       append([]float64{}, errs...),
		BestAction:   bestAction,
		Improvements: improvements,
		Temperature:  config.Temperature,
		Timestamp:    time.Now(),
		Config:       config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		RunID:        c.RunID,
		BestAction:   c.BestAction,
		Improvements: c.Improvements,
		Timestamp:    c.Timestamp,
		Fields:       c.Config.Fields,
		Symmetry:     c.Config.Symmetry,
		Temperature:  c.Temperature,
	}
}

// Validate checks that the checkpoint can seed a resumed run
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(c.Weights) != 2 {
		return &ValidationError{Field: "Weights", Reason: fmt.Sprintf("need 2 values, got %d", len(c.Weights))}
	}
	if len(c.Errors) != len(c.Weights) {
		return &ValidationError{Field: "Errors", Reason: "length must match Weights"}
	}
	for _, value := range append(slices.Clone(c.Weights), c.Errors...) {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return &ValidationError{Field: "Weights", Reason: "must be finite"}
		}
	}
	if math.IsNaN(c.BestAction) {
		return &ValidationError{Field: "BestAction", Reason: "cannot be NaN"}
	}
	if c.Improvements < 0 {
		return &ValidationError{Field: "Improvements", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Fields <= 0 {
		return &ValidationError{Field: "Config.Fields", Reason: "must be positive"}
	}
	if len(c.Config.FalseVacuum) != c.Config.Fields || len(c.Config.TrueVacuum) != c.Config.Fields {
		return &ValidationError{Field: "Config", Reason: "vacua must have one value per field"}
	}
	if c.Config.Symmetry == "" {
		return &ValidationError{Field: "Config.Symmetry", Reason: "cannot be empty"}
	}
	if len(c.CurvedNodes) < 2 {
		return &ValidationError{Field: "CurvedNodes", Reason: "need at least 2 nodes"}
	}
	for i, node := range c.CurvedNodes {
		if len(node) != c.Config.Fields {
			return &ValidationError{
				Field:  "CurvedNodes",
				Reason: fmt.Sprintf("node %d has %d fields, expected %d", i, len(node), c.Config.Fields),
			}
		}
	}
	return nil
}

// ValidationError reports a malformed checkpoint
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible reports whether a run with config may continue from this checkpoint
func (c *Checkpoint) IsCompatible(config RunConfig) error {
	if c.Config.Fields != config.Fields {
		return &CompatibilityError{
			Field:    "Fields",
			Expected: fmt.Sprintf("%d", c.Config.Fields),
			Actual:   fmt.Sprintf("%d", config.Fields),
		}
	}
	if !slices.Equal(c.Config.FalseVacuum, config.FalseVacuum) {
		return &CompatibilityError{
			Field:    "FalseVacuum",
			Expected: fmt.Sprint(c.Config.FalseVacuum),
			Actual:   fmt.Sprint(config.FalseVacuum),
		}
	}
	if !slices.Equal(c.Config.TrueVacuum, config.TrueVacuum) {
		return &CompatibilityError{
			Field:    "TrueVacuum",
			Expected: fmt.Sprint(c.Config.TrueVacuum),
			Actual:   fmt.Sprint(config.TrueVacuum),
		}
	}
	if c.Config.Symmetry != config.Symmetry {
		return &CompatibilityError{
			Field:    "Symmetry",
			Expected: c.Config.Symmetry,
			Actual:   config.Symmetry,
		}
	}
	return nil
}

// CompatibilityError reports a checkpoint that belongs to a different problem
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
