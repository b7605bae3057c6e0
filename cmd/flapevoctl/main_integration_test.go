package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"flapevo/internal/config"
	"flapevo/internal/platform"
	"flapevo/internal/stats"
	"flapevo/internal/storage"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func runArgs(dataDir, outDir string, extra ...string) []string {
	args := []string{
		"run",
		"--data-dir", dataDir,
		"--gens", "2",
		"--pop", "4",
		"--seed", "7",
		"--fps", "0",
		"--view", "headless",
		"--log-level", "error",
	}
	if outDir != "" {
		args = append(args, "--output", outDir)
	}
	return append(args, extra...)
}

func TestRunCommandFileBackendWritesCheckpoint(t *testing.T) {
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	outDir := filepath.Join(base, "out")

	if err := run(testContext(t), runArgs(dataDir, outDir)); err != nil {
		t.Fatalf("run: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dataDir, storage.CheckpointKey+".json"))
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	checkpoint, err := storage.DecodeCheckpoint(raw)
	if err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if checkpoint.Generation < 1 {
		t.Fatalf("expected at least one generation, got %d", checkpoint.Generation)
	}

	entries, err := stats.ListRunIndex(outDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one run index entry, got %d", len(entries))
	}
	switch entries[0].StopReason {
	case string(platform.StopReasonMaxGenerations), string(platform.StopReasonQuit):
	default:
		t.Fatalf("unexpected stop reason %q", entries[0].StopReason)
	}
	summary, ok, err := stats.ReadRunSummary(outDir, entries[0].RunID)
	if err != nil || !ok {
		t.Fatalf("read run summary: ok=%t err=%v", ok, err)
	}
	if summary.EndGeneration != checkpoint.Generation {
		t.Fatalf("summary end generation %d, checkpoint %d", summary.EndGeneration, checkpoint.Generation)
	}
	if _, err := os.Stat(filepath.Join(outDir, entries[0].RunID, "config.yaml")); err != nil {
		t.Fatalf("expected effective config in run dir: %v", err)
	}
	rows, err := stats.ReadGenerations(filepath.Join(outDir, entries[0].RunID))
	if err != nil {
		t.Fatalf("read generations: %v", err)
	}
	if len(rows) != summary.Generations {
		t.Fatalf("csv rows %d, summary generations %d", len(rows), summary.Generations)
	}
}

func TestRunCommandResumesGenerationFromCheckpoint(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")

	if err := run(testContext(t), runArgs(dataDir, "")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := checkpointGeneration(t, dataDir)

	if err := run(testContext(t), runArgs(dataDir, "", "--inject-best")); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := checkpointGeneration(t, dataDir)
	if second <= first {
		t.Fatalf("expected generation to continue past %d, got %d", first, second)
	}
}

func TestRunCommandStopsCleanlyWhenCancelled(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := run(ctx, runArgs(dataDir, "")); err != nil {
		t.Fatalf("run: %v", err)
	}
	// The finalizer still writes the checkpoint after cancellation.
	if _, err := os.Stat(filepath.Join(dataDir, storage.CheckpointKey+".json")); err != nil {
		t.Fatalf("expected checkpoint after cancelled run: %v", err)
	}
}

func TestInspectAndResetCommands(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	if err := run(testContext(t), runArgs(dataDir, "")); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"inspect", "--data-dir", dataDir})
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "checkpoint generation=") || !strings.Contains(out, "population=4") {
		t.Fatalf("unexpected inspect output: %q", out)
	}

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"reset", "--data-dir", dataDir})
	}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"inspect", "--data-dir", dataDir})
	})
	if err != nil {
		t.Fatalf("inspect after reset: %v", err)
	}
	if !strings.Contains(out, "checkpoint=none") || !strings.Contains(out, "best=none") {
		t.Fatalf("expected empty stores after reset, got %q", out)
	}
}

func TestRunCommandSQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "flapevo.db")
	args := runArgs(dbPath, "", "--backend", "sqlite")
	if err := run(testContext(t), args); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"inspect", "--backend", "sqlite", "--data-dir", dbPath})
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "keys=[") || !strings.Contains(out, storage.CheckpointKey) {
		t.Fatalf("expected sqlite key listing, got %q", out)
	}
}

func TestRunsCommandListsPersistedRun(t *testing.T) {
	base := t.TempDir()
	outDir := filepath.Join(base, "out")
	if err := run(testContext(t), runArgs(filepath.Join(base, "data"), outDir)); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--output", outDir, "--json"})
	})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var entries []stats.RunIndexEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode runs output: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID == "" {
		t.Fatalf("unexpected run entries: %+v", entries)
	}
}

func TestConfigCommandAppliesOverrides(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"config", "--backend", "sqlite", "--data-dir", "state.db"})
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "backend: sqlite") || !strings.Contains(out, "data_dir: state.db") {
		t.Fatalf("unexpected config output: %q", out)
	}

	path := filepath.Join(t.TempDir(), "effective.yaml")
	if err := run(context.Background(), []string{"config", "--write", path}); err != nil {
		t.Fatalf("config write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Persistence.Backend != "file" {
		t.Fatalf("expected default backend, got %q", cfg.Persistence.Backend)
	}
}

func TestRunRejectsBadInvocations(t *testing.T) {
	if err := run(context.Background(), nil); err == nil {
		t.Fatal("expected missing command error")
	}
	if err := run(context.Background(), []string{"fly"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := run(context.Background(), []string{"run", "--view", "hologram"}); err == nil {
		t.Fatal("expected invalid view mode error")
	}
	if err := run(context.Background(), []string{"runs"}); err == nil {
		t.Fatal("expected runs to require --output")
	}
}

func TestNewLoggerPicksFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "info", Format: "auto"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", "n", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON for a non-terminal writer, got %q", buf.String())
	}

	buf.Reset()
	logger, err = newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("new text logger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}

	if _, err := newLogger(config.LogConfig{Level: "loud"}, &buf); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := newLogger(config.LogConfig{Format: "xml"}, &buf); err == nil {
		t.Fatal("expected invalid format error")
	}
}

var generationPattern = regexp.MustCompile(`checkpoint generation=(\d+)`)

func checkpointGeneration(t *testing.T, dataDir string) int {
	t.Helper()
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"inspect", "--data-dir", dataDir})
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	m := generationPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no checkpoint in inspect output: %q", out)
	}
	gen, err := strconv.Atoi(m[1])
	if err != nil {
		t.Fatalf("parse generation: %v", err)
	}
	return gen
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
