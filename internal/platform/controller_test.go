package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"flapevo/internal/model"
	"flapevo/internal/storage"
	"flapevo/internal/view"
)

type deciderFunc func(inputs []float64) ([]float64, error)

func (f deciderFunc) Activate(inputs []float64) ([]float64, error) { return f(inputs) }

var neverJump = deciderFunc(func([]float64) ([]float64, error) {
	return []float64{0}, nil
})

// hover keeps a bird between roughly y=264 and y=376.
var hover = deciderFunc(func(inputs []float64) ([]float64, error) {
	if inputs[0] > 360 {
		return []float64{1}, nil
	}
	return []float64{0}, nil
})

func compileAll(d Decider) func(model.Genome) (Decider, error) {
	return func(model.Genome) (Decider, error) { return d, nil }
}

type recordingReporter struct {
	rows []model.GenerationDiagnostics
}

func (r *recordingReporter) Report(d model.GenerationDiagnostics) error {
	r.rows = append(r.rows, d)
	return nil
}

// quitRenderer asks to quit once stop returns true for a drawn frame.
type quitRenderer struct {
	view.Headless
	stop func(view.Frame) bool
	quit bool
}

func (r *quitRenderer) Draw(frame view.Frame) {
	r.Headless.Draw(frame)
	if r.stop != nil && r.stop(frame) {
		r.quit = true
	}
}

func (r *quitRenderer) QuitRequested() bool { return r.quit }

type recordingBackend struct {
	*storage.MemoryBackend
	writes []string
	fail   map[string]error
}

func newRecordingBackend(t *testing.T) *recordingBackend {
	t.Helper()
	b := &recordingBackend{MemoryBackend: storage.NewMemoryBackend(), fail: map[string]error{}}
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("init backend: %v", err)
	}
	return b
}

func (b *recordingBackend) Write(ctx context.Context, key string, data []byte) error {
	b.writes = append(b.writes, key)
	if err := b.fail[key]; err != nil {
		return err
	}
	return b.MemoryBackend.Write(ctx, key, data)
}

type harness struct {
	backend     *recordingBackend
	checkpoints *storage.CheckpointStore
	best        *storage.BestStore
	reporter    *recordingReporter
	clock       *fakeClock
	ctrl        *Controller
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPopulation() json.RawMessage {
	return json.RawMessage(`{"generation":0,"genomes":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		backend:  newRecordingBackend(t),
		reporter: &recordingReporter{},
		clock:    &fakeClock{},
	}
	h.clock.Set(0)
	logger := quietLogger()
	h.checkpoints = storage.NewCheckpointStore(h.backend, logger)
	h.best = storage.NewBestStore(h.backend, logger)

	cfg := Config{
		Checkpoints: h.checkpoints,
		Best:        h.best,
		Population:  func() (json.RawMessage, error) { return testPopulation(), nil },
		Compile:     compileAll(neverJump),
		Reporter:    h.reporter,
		Clock:       h.clock.Now,
		Rand:        rand.New(rand.NewSource(7)),
		Logger:      logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ctrl, err := NewController(cfg)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func genomes(n int) []model.Genome {
	out := make([]model.Genome, n)
	for i := range out {
		out[i] = model.Genome{ID: string(rune('a' + i))}
	}
	return out
}

func restoredSnapshot() *model.GameSnapshot {
	return &model.GameSnapshot{
		Pipes:  []model.PipeState{{X: 100, Height: 200, Passed: true}, {X: 400, Height: 250}},
		BaseX1: -20,
		BaseX2: 652,
		Score:  3,
	}
}

func TestNewControllerRequiresStores(t *testing.T) {
	if _, err := NewController(Config{}); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestEvaluateGenerationFresh(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	fitness, err := h.ctrl.EvaluateGeneration(ctx, genomes(3))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(fitness) != 3 {
		t.Fatalf("unexpected fitness length: %d", len(fitness))
	}
	for i := 1; i < len(fitness); i++ {
		if fitness[i] != fitness[0] || fitness[i] <= 0 {
			t.Fatalf("expected equal positive fitness, got %v", fitness)
		}
	}
	if h.ctrl.State().Generation != 1 {
		t.Fatalf("expected generation 1, got %d", h.ctrl.State().Generation)
	}
	if h.ctrl.State().Snapshot != nil {
		t.Fatal("score-0 generation must not capture a snapshot")
	}
	if len(h.reporter.rows) != 1 {
		t.Fatalf("expected one report, got %d", len(h.reporter.rows))
	}
	row := h.reporter.rows[0]
	if row.Generation != 1 || row.Restored || row.SpawnX != 350 || row.Score != 0 || row.Ticks == 0 {
		t.Fatalf("unexpected diagnostics: %+v", row)
	}
	if math.Abs(row.BestFitness-float64(row.Ticks)*0.1) > 1e-9 {
		t.Fatalf("expected tick-only fitness, got %+v", row)
	}
	if len(h.backend.writes) != 0 {
		t.Fatalf("generation must not write storage, wrote %v", h.backend.writes)
	}
}

func TestRestoreAndEvaluateRestoredGeneration(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.checkpoints.Save(ctx, testPopulation(), 7, restoredSnapshot()); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}
	if err := h.best.Save(ctx, model.Genome{ID: "champ"}, 30, 6); err != nil {
		t.Fatalf("seed best: %v", err)
	}
	h.backend.writes = nil

	population, ok := h.ctrl.Restore(ctx)
	if !ok || len(population) == 0 {
		t.Fatal("expected checkpoint population")
	}
	if h.ctrl.State().Generation != 7 {
		t.Fatalf("expected restored generation 7, got %d", h.ctrl.State().Generation)
	}
	if h.ctrl.State().Best.Fitness() != 30 {
		t.Fatalf("expected seeded best fitness, got %v", h.ctrl.State().Best.Fitness())
	}

	if _, err := h.ctrl.EvaluateGeneration(ctx, genomes(2)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	row := h.reporter.rows[0]
	if row.Generation != 8 || !row.Restored || row.SpawnX != 302 || row.Score != 3 {
		t.Fatalf("unexpected diagnostics: %+v", row)
	}

	// The checkpoint on disk replaces the in-flight snapshot after the generation.
	snap := h.ctrl.State().Snapshot
	if snap == nil || len(snap.Pipes) != 2 || snap.Pipes[1].X != 400 {
		t.Fatalf("expected snapshot reloaded from checkpoint, got %+v", snap)
	}
}

func TestScoreZeroGenerationKeepsPersistedSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.checkpoints.Save(ctx, testPopulation(), 2, restoredSnapshot()); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	// Not restored: the generation starts fresh and ends with score 0.
	if _, err := h.ctrl.EvaluateGeneration(ctx, genomes(2)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if h.reporter.rows[0].Score != 0 {
		t.Fatalf("expected score 0, got %d", h.reporter.rows[0].Score)
	}
	h.ctrl.Shutdown(ctx)

	checkpoint, ok := h.checkpoints.Load(ctx)
	if !ok || checkpoint.Snapshot == nil {
		t.Fatalf("expected persisted snapshot to survive, got ok=%t %+v", ok, checkpoint)
	}
	if checkpoint.Snapshot.Score != 3 || len(checkpoint.Snapshot.Pipes) != 2 {
		t.Fatalf("persisted snapshot changed: %+v", checkpoint.Snapshot)
	}
}

func TestPipePassUpdatesRunningBest(t *testing.T) {
	renderer := &quitRenderer{stop: func(f view.Frame) bool { return f.Score >= 2 || f.Alive == 0 }}
	h := newHarness(t, func(cfg *Config) {
		cfg.Compile = compileAll(hover)
		cfg.Renderer = renderer
	})
	ctx := context.Background()
	snap := &model.GameSnapshot{
		Pipes:  []model.PipeState{{X: 150, Height: 250}},
		BaseX2: 672,
		Score:  1,
	}
	h.ctrl.State().Snapshot = snap

	fitness, err := h.ctrl.EvaluateGeneration(ctx, genomes(2))
	if err != nil && !errors.Is(err, ErrQuit) {
		t.Fatalf("evaluate: %v", err)
	}
	if renderer.Last.Score != 2 {
		t.Fatalf("expected a pipe pass, last frame %+v", renderer.Last)
	}
	genome, best, generation, ok := h.ctrl.State().Best.Best()
	if !ok || generation != 1 {
		t.Fatalf("expected running best from generation 1, got ok=%t generation=%d", ok, generation)
	}
	if best < 5 || best > fitness[0]+1e-9 && best > fitness[1]+1e-9 {
		t.Fatalf("unexpected running best %v for fitness %v", best, fitness)
	}
	if genome.ID != "a" && genome.ID != "b" {
		t.Fatalf("unexpected best genome %q", genome.ID)
	}
	if len(h.backend.writes) != 0 {
		t.Fatalf("best must not be written mid-run by default, wrote %v", h.backend.writes)
	}
}

func TestFlushBestOnImprove(t *testing.T) {
	renderer := &quitRenderer{stop: func(f view.Frame) bool { return f.Score >= 2 || f.Alive == 0 }}
	h := newHarness(t, func(cfg *Config) {
		cfg.Compile = compileAll(hover)
		cfg.Renderer = renderer
		cfg.FlushBestOnImprove = true
	})
	ctx := context.Background()
	h.ctrl.State().Snapshot = &model.GameSnapshot{Pipes: []model.PipeState{{X: 150, Height: 250}}, Score: 1}

	if _, err := h.ctrl.EvaluateGeneration(ctx, genomes(1)); err != nil && !errors.Is(err, ErrQuit) {
		t.Fatalf("evaluate: %v", err)
	}
	if _, ok := h.best.Load(ctx); !ok {
		t.Fatal("expected best record flushed during the generation")
	}
}

func TestFastDeathResetDiscardsState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.checkpoints.Save(ctx, testPopulation(), 9, restoredSnapshot()); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}
	if err := h.best.Save(ctx, model.Genome{ID: "champ"}, 30, 6); err != nil {
		t.Fatalf("seed best: %v", err)
	}
	if _, ok := h.ctrl.Restore(ctx); !ok {
		t.Fatal("expected restore")
	}

	// The clock never advances, so every restored generation is a fast death.
	for i := 0; i < 3; i++ {
		if _, err := h.ctrl.EvaluateGeneration(ctx, genomes(2)); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if h.reporter.rows[i].Reset {
			t.Fatalf("unexpected reset on generation %d", i)
		}
	}
	if _, err := h.ctrl.EvaluateGeneration(ctx, genomes(2)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	row := h.reporter.rows[3]
	if !row.Reset || row.Restored || row.Generation != 1 {
		t.Fatalf("expected reset to a fresh generation 1, got %+v", row)
	}
	if h.ctrl.Resets() != 1 {
		t.Fatalf("expected one reset, got %d", h.ctrl.Resets())
	}
	if _, ok := h.checkpoints.Load(ctx); ok {
		t.Fatal("checkpoint must be deleted by reset")
	}
	if _, ok := h.best.Load(ctx); ok {
		t.Fatal("best record must be deleted by reset")
	}
	if h.ctrl.State().Snapshot != nil {
		t.Fatalf("in-memory snapshot must be cleared, got %+v", h.ctrl.State().Snapshot)
	}
	if h.ctrl.State().FastDeath.Strikes() != 0 {
		t.Fatalf("expected strikes cleared, got %d", h.ctrl.State().FastDeath.Strikes())
	}
}

func TestSlowGenerationsNeverReset(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.ctrl.State().Snapshot = restoredSnapshot()
	for i := 0; i < 5; i++ {
		h.clock.Set(time.Duration(i) * 2 * time.Second)
		if _, err := h.ctrl.EvaluateGeneration(ctx, genomes(1)); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}
	for _, row := range h.reporter.rows {
		if row.Reset {
			t.Fatalf("unexpected reset: %+v", row)
		}
	}
}

func TestQuitStopsBeforeNextTick(t *testing.T) {
	renderer := &quitRenderer{stop: func(f view.Frame) bool { return true }}
	h := newHarness(t, func(cfg *Config) { cfg.Renderer = renderer })
	ctx := context.Background()
	if err := h.checkpoints.Save(ctx, testPopulation(), 1, restoredSnapshot()); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	fitness, err := h.ctrl.EvaluateGeneration(ctx, genomes(2))
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("expected quit, got %v", err)
	}
	if renderer.Frames != 1 || h.reporter.rows[0].Ticks != 1 {
		t.Fatalf("expected exactly one tick, frames=%d row=%+v", renderer.Frames, h.reporter.rows[0])
	}
	if len(fitness) != 2 || math.Abs(fitness[0]-0.1) > 1e-9 {
		t.Fatalf("unexpected partial fitness: %v", fitness)
	}
	// Interrupted generations skip the checkpoint reload.
	if h.ctrl.State().Snapshot != nil {
		t.Fatalf("unexpected snapshot after quit: %+v", h.ctrl.State().Snapshot)
	}
}

func TestCancelledContextQuits(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ctrl.EvaluateGeneration(ctx, genomes(1))
	if !errors.Is(err, ErrQuit) {
		t.Fatalf("expected quit, got %v", err)
	}
	if h.reporter.rows[0].Ticks != 0 {
		t.Fatalf("expected no ticks, got %d", h.reporter.rows[0].Ticks)
	}
}

func TestCompileErrorIsReturned(t *testing.T) {
	boom := errors.New("bad genome")
	h := newHarness(t, func(cfg *Config) {
		cfg.Compile = func(model.Genome) (Decider, error) { return nil, boom }
	})
	if _, err := h.ctrl.EvaluateGeneration(context.Background(), genomes(1)); !errors.Is(err, boom) {
		t.Fatalf("expected compile error, got %v", err)
	}
}

func TestDefaultCompileUsesNetwork(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Compile = nil })
	_, err := h.ctrl.EvaluateGeneration(context.Background(), []model.Genome{{ID: "empty"}})
	if err == nil {
		t.Fatal("expected genome without inputs to fail compilation")
	}
}
