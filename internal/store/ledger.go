package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS pair_outcomes (
    run_id          TEXT PRIMARY KEY,
    false_vacuum    TEXT NOT NULL,
    true_vacuum     TEXT NOT NULL,
    temperature     REAL NOT NULL,
    status          TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    action          REAL,
    curved_action   REAL,
    straight_action REAL,
    improvements    INTEGER NOT NULL DEFAULT 0,
    recorded_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_recorded ON pair_outcomes(recorded_at);
`

// fixed width so recorded_at sorts lexically
const ledgerTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Outcome statuses
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// PairOutcome is the result of tunneling between one pair of vacua.
// A failed pair carries a Reason and no actions. A cancelled pair keeps the
// actions of the best blend found before it stopped.
type PairOutcome struct {
	RunID          string    `json:"runId"`
	FalseVacuum    []float64 `json:"falseVacuum"`
	TrueVacuum     []float64 `json:"trueVacuum"`
	Temperature    float64   `json:"temperature"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	Action         float64   `json:"action"`
	CurvedAction   float64   `json:"curvedAction"`
	StraightAction float64   `json:"straightAction"`
	Improvements   int       `json:"improvements"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// Ledger records pair outcomes in SQLite so results of separate runs can be
// compared. Recording a run ID twice replaces the earlier row.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens or creates the SQLite file at path
func OpenLedger(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	ledger, err := NewLedger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

// NewLedger creates the outcome table on db
func NewLedger(db *sql.DB) (*Ledger, error) {
	if _, err := db.Exec(ledgerSchema); err != nil {
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// RecordOutcome inserts or replaces the outcome of outcome.RunID
func (l *Ledger) RecordOutcome(outcome PairOutcome) error {
	if outcome.RunID == "" {
		return fmt.Errorf("outcome run ID cannot be empty")
	}
	switch outcome.Status {
	case StatusOK, StatusFailed, StatusCancelled:
	default:
		return fmt.Errorf("unknown outcome status %q", outcome.Status)
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}

	falseVacuum, err := json.Marshal(outcome.FalseVacuum)
	if err != nil {
		return fmt.Errorf("encode false vacuum: %w", err)
	}
	trueVacuum, err := json.Marshal(outcome.TrueVacuum)
	if err != nil {
		return fmt.Errorf("encode true vacuum: %w", err)
	}

	var action, curved, straight sql.NullFloat64
	if outcome.Status != StatusFailed {
		action = sql.NullFloat64{Float64: outcome.Action, Valid: true}
		curved = sql.NullFloat64{Float64: outcome.CurvedAction, Valid: true}
		straight = sql.NullFloat64{Float64: outcome.StraightAction, Valid: true}
	}

	_, err = l.db.Exec(
		`INSERT INTO pair_outcomes (run_id, false_vacuum, true_vacuum, temperature, status, reason,
		     action, curved_action, straight_action, improvements, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   status = excluded.status,
		   reason = excluded.reason,
		   action = excluded.action,
		   curved_action = excluded.curved_action,
		   straight_action = excluded.straight_action,
		   improvements = excluded.improvements,
		   recorded_at = excluded.recorded_at`,
		outcome.RunID, string(falseVacuum), string(trueVacuum), outcome.Temperature,
		outcome.Status, outcome.Reason, action, curved, straight, outcome.Improvements,
		outcome.RecordedAt.UTC().Format(ledgerTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", outcome.RunID, err)
	}
	return nil
}

// ListOutcomes returns all outcomes, most recent first
func (l *Ledger) ListOutcomes() ([]PairOutcome, error) {
	rows, err := l.db.Query(
		`SELECT run_id, false_vacuum, true_vacuum, temperature, status, reason,
		        action, curved_action, straight_action, improvements, recorded_at
		 FROM pair_outcomes
		 ORDER BY recorded_at DESC, run_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []PairOutcome
	for rows.Next() {
		var (
			o                        PairOutcome
			falseVacuum, trueVacuum  string
			action, curved, straight sql.NullFloat64
			recordedAt               string
		)
		if err := rows.Scan(&o.RunID, &falseVacuum, &trueVacuum, &o.Temperature, &o.Status, &o.Reason,
			&action, &curved, &straight, &o.Improvements, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(falseVacuum), &o.FalseVacuum); err != nil {
			return nil, fmt.Errorf("decode false vacuum of %s: %w", o.RunID, err)
		}
		if err := json.Unmarshal([]byte(trueVacuum), &o.TrueVacuum); err != nil {
			return nil, fmt.Errorf("decode true vacuum of %s: %w", o.RunID, err)
		}
		o.Action = action.Float64
		o.CurvedAction = curved.Float64
		o.StraightAction = straight.Float64
		o.RecordedAt, _ = time.Parse(ledgerTimeFormat, recordedAt)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
