package stats

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flapevo/internal/model"
)

func TestSummarize(t *testing.T) {
	got := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if got.Mean != 5 || got.Min != 2 || got.Max != 9 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	// Sample standard deviation.
	if math.Abs(got.Std-2.138089935) > 1e-6 {
		t.Fatalf("unexpected std: %v", got.Std)
	}
}

func TestSummarizeEdgeCases(t *testing.T) {
	if got := Summarize(nil); got != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
	got := Summarize([]float64{3.5})
	if got.Mean != 3.5 || got.Std != 0 || got.Min != 3.5 || got.Max != 3.5 {
		t.Fatalf("unexpected single-value summary: %+v", got)
	}
}

func TestCSVWriterWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}
	if err := w.Report(model.GenerationDiagnostics{Generation: 1, Score: 2, BestFitness: 12.5}); err != nil {
		t.Fatalf("report 1: %v", err)
	}
	if err := w.Report(model.GenerationDiagnostics{Generation: 2, Restored: true}); err != nil {
		t.Fatalf("report 2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening appends without a second header.
	w, err = NewCSVWriter(dir)
	if err != nil {
		t.Fatalf("reopen csv writer: %v", err)
	}
	if err := w.Report(model.GenerationDiagnostics{Generation: 3, Reset: true}); err != nil {
		t.Fatalf("report 3: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, GenerationsFile))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if n := strings.Count(string(data), "generation,"); n != 1 {
		t.Fatalf("expected one header row, got %d:\n%s", n, data)
	}

	rows, err := ReadGenerations(dir)
	if err != nil {
		t.Fatalf("read generations: %v", err)
	}
	if len(rows) != 3 || rows[0].BestFitness != 12.5 || !rows[1].Restored || !rows[2].Reset {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestNilCSVWriterDiscards(t *testing.T) {
	w, err := NewCSVWriter("")
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}
	if err := w.Report(model.GenerationDiagnostics{Generation: 1}); err != nil {
		t.Fatalf("report on nil writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close nil writer: %v", err)
	}
}

func TestRunSummaryAndIndex(t *testing.T) {
	base := t.TempDir()
	summary := RunSummary{
		RunID:            "run-a",
		Generations:      3,
		BestFitness:      40,
		BestByGeneration: []float64{10, 25, 40},
		StopReason:       "max_generations",
		FinishedAtUTC:    "2026-01-02T00:00:00Z",
	}
	runDir, err := WriteRunSummary(base, summary)
	if err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if runDir != filepath.Join(base, "run-a") {
		t.Fatalf("unexpected run dir: %s", runDir)
	}
	got, ok, err := ReadRunSummary(base, "run-a")
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%t err=%v", ok, err)
	}
	if got.BestFitness != 40 || len(got.BestByGeneration) != 3 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	if err := AppendRunIndex(base, RunIndexEntry{RunID: "run-a", FinishedAtUTC: "2026-01-02T00:00:00Z"}); err != nil {
		t.Fatalf("append run-a: %v", err)
	}
	if err := AppendRunIndex(base, RunIndexEntry{RunID: "run-b", FinishedAtUTC: "2026-01-03T00:00:00Z"}); err != nil {
		t.Fatalf("append run-b: %v", err)
	}
	if err := AppendRunIndex(base, RunIndexEntry{RunID: "run-a", BestFitness: 41, FinishedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("update run-a: %v", err)
	}
	index, err := ListRunIndex(base)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 2 || index[0].RunID != "run-b" || index[1].BestFitness != 41 {
		t.Fatalf("unexpected index: %+v", index)
	}

	if _, ok, err := ReadRunSummary(base, "missing"); err != nil || ok {
		t.Fatalf("expected missing summary, ok=%t err=%v", ok, err)
	}
	if _, err := WriteRunSummary(base, RunSummary{}); err == nil {
		t.Fatal("expected run id error")
	}
}
