package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeTrace(t *testing.T, baseDir, runID string, appendExisting bool, entries ...TraceEntry) {
	t.Helper()

	writer, err := NewTraceWriter(baseDir, runID, appendExisting)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
}

func readTrace(t *testing.T, baseDir, runID string) []TraceEntry {
	t.Helper()

	reader, err := NewTraceReader(baseDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	return entries
}

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-trace"

	entries := []TraceEntry{
		{Improvement: 1, Action: 150, Weights: []float64{0, 0}, Tolerance: 1, Timestamp: time.Now()},
		{Improvement: 2, Action: 140, Weights: []float64{0.1, 0.4}, Errors: []float64{0.2, 0.1}, Tolerance: 0.5, Timestamp: time.Now()},
		{Improvement: 3, Action: 138.5, Weights: []float64{0.1, 0.5}, Tolerance: 0.25, Timestamp: time.Now(),
			Nodes: [][]float64{{0, 0}, {0.5, 0.7}, {1, 1}}},
	}
	writeTrace(t, tmpDir, runID, false, entries...)

	tracePath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if _, err := os.Stat(tracePath); err != nil {
		t.Fatalf("Trace file not created: %v", err)
	}

	read := readTrace(t, tmpDir, runID)
	if len(read) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(read))
	}
	for i, entry := range read {
		if entry.Improvement != entries[i].Improvement {
			t.Errorf("Entry %d: improvement %d, want %d", i, entry.Improvement, entries[i].Improvement)
		}
		if entry.Action != entries[i].Action {
			t.Errorf("Entry %d: action %g, want %g", i, entry.Action, entries[i].Action)
		}
		if len(entry.Weights) != 2 {
			t.Errorf("Entry %d: weights %v", i, entry.Weights)
		}
		if len(entry.Nodes) != len(entries[i].Nodes) {
			t.Errorf("Entry %d: %d nodes, want %d", i, len(entry.Nodes), len(entries[i].Nodes))
		}
	}
	if read[2].Nodes[1][1] != 0.7 {
		t.Errorf("Node value not restored: %v", read[2].Nodes)
	}
	if read[0].Errors != nil {
		t.Errorf("Omitted errors should stay nil, got %v", read[0].Errors)
	}
}

func TestTraceWriter_AppendAndTruncate(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-append"

	writeTrace(t, tmpDir, runID, false, TraceEntry{Improvement: 1, Action: 10})
	writeTrace(t, tmpDir, runID, true, TraceEntry{Improvement: 2, Action: 9})

	if read := readTrace(t, tmpDir, runID); len(read) != 2 || read[1].Improvement != 2 {
		t.Fatalf("Append should keep earlier entries, got %+v", read)
	}

	writeTrace(t, tmpDir, runID, false, TraceEntry{Improvement: 1, Action: 11})
	if read := readTrace(t, tmpDir, runID); len(read) != 1 || read[0].Action != 11 {
		t.Fatalf("A fresh writer should truncate, got %+v", read)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-flush"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Improvement: 1, Action: 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	info, err := os.Stat(writer.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Flushed trace should not be empty")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-iterate"
	writeTrace(t, tmpDir, runID, false,
		TraceEntry{Improvement: 1, Action: 5},
		TraceEntry{Improvement: 2, Action: 4},
	)

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	for want := 1; want <= 2; want++ {
		entry, err := reader.Read()
		if err != nil {
			t.Fatalf("Read %d failed: %v", want, err)
		}
		if entry.Improvement != want {
			t.Errorf("Improvement = %d, want %d", entry.Improvement, want)
		}
	}
	if _, err := reader.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := NewTraceReader(tmpDir, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	runPath := filepath.Join(tmpDir, "runs", "garbled")
	if err := os.MkdirAll(runPath, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runPath, "trace.jsonl"), []byte("{\"improvement\":1}\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	reader, err := NewTraceReader(tmpDir, "garbled")
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer reader.Close()
	if _, err := reader.ReadAll(); err == nil {
		t.Error("Expected error for a malformed line")
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-delete-trace"
	writeTrace(t, tmpDir, runID, false, TraceEntry{Improvement: 1})

	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := NewTraceReader(tmpDir, runID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Trace should be gone, got %v", err)
	}
	if err := DeleteTrace(tmpDir, runID); err != nil {
		t.Errorf("Deleting a missing trace should not error, got %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "run-concurrent"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(improvement int) {
			defer wg.Done()
			if err := writer.Write(TraceEntry{Improvement: improvement, Action: float64(improvement)}); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if entries := readTrace(t, tmpDir, runID); len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}
