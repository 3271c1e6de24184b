package store

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := OpenLedger(":memory:")
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestLedger_RecordAndList(t *testing.T) {
	ledger := setupTestLedger(t)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	ok := PairOutcome{
		RunID:          "run-a",
		FalseVacuum:    []float64{0, 0},
		TrueVacuum:     []float64{1, 1},
		Temperature:    50,
		Status:         StatusOK,
		Action:         95.5,
		CurvedAction:   101,
		StraightAction: 120,
		Improvements:   4,
		RecordedAt:     base,
	}
	failed := PairOutcome{
		RunID:       "run-b",
		FalseVacuum: []float64{0, 0},
		TrueVacuum:  []float64{-1, 2},
		Temperature: 50,
		Status:      StatusFailed,
		Reason:      "false vacuum is not metastable",
		Action:      1e12,
		RecordedAt:  base.Add(time.Minute),
	}
	if err := ledger.RecordOutcome(ok); err != nil {
		t.Fatalf("record ok: %v", err)
	}
	if err := ledger.RecordOutcome(failed); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	outcomes, err := ledger.ListOutcomes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}

	if outcomes[0].RunID != "run-b" {
		t.Errorf("most recent first: got %s", outcomes[0].RunID)
	}
	if outcomes[0].Reason != failed.Reason || outcomes[0].Status != StatusFailed {
		t.Errorf("failed outcome not restored: %+v", outcomes[0])
	}
	if outcomes[0].Action != 0 {
		t.Errorf("failed outcome should carry no action, got %g", outcomes[0].Action)
	}
	if outcomes[0].TrueVacuum[1] != 2 {
		t.Errorf("vacuum not restored: %v", outcomes[0].TrueVacuum)
	}

	got := outcomes[1]
	if got.Action != 95.5 || got.CurvedAction != 101 || got.StraightAction != 120 || got.Improvements != 4 {
		t.Errorf("ok outcome not restored: %+v", got)
	}
	if !got.RecordedAt.Equal(base) {
		t.Errorf("RecordedAt = %v, want %v", got.RecordedAt, base)
	}
}

func TestLedger_RecordReplacesRun(t *testing.T) {
	ledger := setupTestLedger(t)

	first := PairOutcome{RunID: "run", FalseVacuum: []float64{0}, TrueVacuum: []float64{1},
		Status: StatusFailed, Reason: "interrupted"}
	if err := ledger.RecordOutcome(first); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := first
	second.Status = StatusOK
	second.Reason = ""
	second.Action = 12
	if err := ledger.RecordOutcome(second); err != nil {
		t.Fatalf("record again: %v", err)
	}

	outcomes, err := ledger.ListOutcomes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected one row per run, got %d", len(outcomes))
	}
	if outcomes[0].Status != StatusOK || outcomes[0].Action != 12 || outcomes[0].Reason != "" {
		t.Errorf("outcome not replaced: %+v", outcomes[0])
	}
	if outcomes[0].RecordedAt.IsZero() {
		t.Error("RecordedAt should default to now")
	}
}

func TestLedger_CancelledKeepsActions(t *testing.T) {
	ledger := setupTestLedger(t)

	cancelled := PairOutcome{RunID: "stopped", FalseVacuum: []float64{0}, TrueVacuum: []float64{1},
		Status: StatusCancelled, Action: 7.5, CurvedAction: 9, StraightAction: 11, Improvements: 2}
	if err := ledger.RecordOutcome(cancelled); err != nil {
		t.Fatalf("record: %v", err)
	}

	outcomes, err := ledger.ListOutcomes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	got := outcomes[0]
	if got.Status != StatusCancelled || got.Action != 7.5 || got.CurvedAction != 9 || got.StraightAction != 11 {
		t.Errorf("cancelled outcome not kept: %+v", got)
	}
}

func TestLedger_RejectsBadOutcome(t *testing.T) {
	ledger := setupTestLedger(t)

	if err := ledger.RecordOutcome(PairOutcome{Status: StatusOK}); err == nil {
		t.Error("expected error for missing run ID")
	}
	if err := ledger.RecordOutcome(PairOutcome{RunID: "x", Status: "maybe"}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestLedger_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "outcomes.db")

	ledger, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ledger.RecordOutcome(PairOutcome{RunID: "kept", FalseVacuum: []float64{0}, TrueVacuum: []float64{1}, Status: StatusOK, Action: 3}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	outcomes, err := reopened.ListOutcomes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].RunID != "kept" || outcomes[0].Action != 3 {
		t.Errorf("unexpected outcomes after reopen: %+v", outcomes)
	}
}
