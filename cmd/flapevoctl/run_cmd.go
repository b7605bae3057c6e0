package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flapevo/internal/config"
	"flapevo/internal/evo"
	"flapevo/internal/model"
	"flapevo/internal/platform"
	"flapevo/internal/stats"
	"flapevo/internal/storage"
	"flapevo/internal/view"
)

var (
	inputIDs  = []string{"y", "dist_top", "dist_bottom"}
	outputIDs = []string{"jump"}
)

// reportQueueSize bounds how far generation reporting may lag the simulation.
const reportQueueSize = 64

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	gens := fs.Int("gens", 0, "generations to run in this process")
	pop := fs.Int("pop", 0, "population size")
	fps := fs.Int("fps", 0, "ticks per second, 0 for unthrottled")
	seed := fs.Int64("seed", 0, "random seed, 0 for time-based")
	viewMode := fs.String("view", "", "view mode: headless|terminal")
	outDir := fs.String("output", "", "directory for run artifacts")
	injectBest := fs.Bool("inject-best", false, "inject the stored best genome into the initial population")
	flushBest := fs.Bool("flush-best", false, "write the best record whenever it improves")
	logFile := fs.String("log-file", "", "write logs to this file instead of stderr")
	logLevel := fs.String("log-level", "", "debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(fs, sf)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gens":
			cfg.Training.MaxGenerations = *gens
		case "pop":
			cfg.Training.PopulationSize = *pop
		case "fps":
			cfg.Screen.FPS = *fps
		case "seed":
			cfg.Training.Seed = *seed
		case "view":
			cfg.View.Mode = *viewMode
		case "output":
			cfg.Output.Dir = *outDir
		case "inject-best":
			cfg.Training.InjectBest = *injectBest
		case "flush-best":
			cfg.Persistence.FlushBestOnImprove = *flushBest
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if cfg.Training.EliteCount > cfg.Training.PopulationSize {
		cfg.Training.EliteCount = cfg.Training.PopulationSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The terminal view owns the screen, so its logs go to a file.
	if *logFile == "" && cfg.View.Mode == "terminal" {
		*logFile = "flapevo.log"
	}
	var logOut io.Writer = os.Stderr
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger = logger.With("run", runID)
	slog.SetDefault(logger)

	return train(ctx, cfg, runID, logger)
}

func train(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) error {
	startedAt := time.Now().UTC()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	checkpoints := storage.NewCheckpointStore(backend, logger)
	best := storage.NewBestStore(backend, logger)

	geometry := cfg.Geometry()
	mode := cfg.View.Mode
	if mode == "terminal" && !isTerminal(os.Stdout) {
		logger.Warn("stdout is not a terminal, falling back to headless view")
		mode = "headless"
	}
	renderer, err := view.New(mode, geometry)
	if err != nil {
		return err
	}
	defer renderer.Close()

	var runDir string
	if cfg.Output.Dir != "" {
		runDir = filepath.Join(cfg.Output.Dir, runID)
	}
	csvWriter, err := stats.NewCSVWriter(runDir)
	if err != nil {
		return err
	}
	defer csvWriter.Close()
	if runDir != "" {
		if err := cfg.WriteYAML(filepath.Join(runDir, "config.yaml")); err != nil {
			return err
		}
	}

	seed := cfg.Training.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var trainer *evo.Trainer
	encodePopulation := func() (json.RawMessage, error) {
		if trainer == nil {
			return nil, nil
		}
		return evo.EncodePopulation(trainer.Population())
	}
	best.Population = func() json.RawMessage {
		data, err := encodePopulation()
		if err != nil {
			logger.Warn("population omitted from best record", "error", err)
			return nil
		}
		return data
	}

	reports := make(chan model.GenerationDiagnostics, reportQueueSize)
	ctrl, err := platform.NewController(platform.Config{
		Geometry:           geometry,
		Spawn:              cfg.SpawnResolver(),
		FastDeath:          platform.FastDeathPolicy{Threshold: cfg.FastDeath.Threshold, Strikes: cfg.FastDeath.Strikes},
		Checkpoints:        checkpoints,
		Best:               best,
		Population:         encodePopulation,
		Renderer:           renderer,
		Reporter:           queueReporter(reports),
		FPS:                cfg.Screen.FPS,
		Rand:               rand.New(rand.NewSource(seed)),
		Logger:             logger,
		FlushBestOnImprove: cfg.Persistence.FlushBestOnImprove,
	})
	if err != nil {
		return err
	}
	// Runs after the training goroutine has returned, before the backend closes.
	defer ctrl.Shutdown(ctx)

	initial, err := initialPopulation(ctx, ctrl, cfg, seed, logger)
	if err != nil {
		return err
	}
	startGeneration := ctrl.State().Generation

	trainerCfg, err := trainerConfig(cfg, seed, logger)
	if err != nil {
		return err
	}
	trainer, err = evo.NewTrainer(trainerCfg, initial)
	if err != nil {
		return err
	}
	if cfg.Training.InjectBest {
		if genome, fitness, _, ok := ctrl.State().Best.Best(); ok {
			trainer.Inject(genome)
			logger.Info("best genome injected", "genome", genome.ID, "fitness", fitness)
		}
	}

	var (
		result     evo.RunResult
		runErr     error
		rows       int
		bestSeries []float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(reports)
		result, runErr = trainer.Run(gctx, ctrl.EvaluateGeneration, cfg.Training.MaxGenerations)
		if runErr != nil && !errors.Is(runErr, platform.ErrQuit) && !isQuit(runErr) {
			return runErr
		}
		return nil
	})
	g.Go(func() error {
		for d := range reports {
			rows++
			bestSeries = append(bestSeries, d.BestFitness)
			if err := csvWriter.Report(d); err != nil {
				logger.Warn("generation row not written", "generation", d.Generation, "error", err)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	reason := platform.StopReasonMaxGenerations
	switch {
	case runErr != nil:
		reason = platform.StopReasonQuit
	case result.GoalReached:
		reason = platform.StopReasonGoal
	}

	state := ctrl.State()
	_, bestFitness, bestGeneration, hasBest := state.Best.Best()
	if !hasBest {
		// Nothing was credited on a pass; keep the summary JSON-encodable.
		bestFitness = 0
	}
	logger.Info("training stopped",
		"reason", reason,
		"generations", humanize.Comma(int64(result.Generations)),
		"generation", state.Generation,
		"best_fitness", bestFitness,
		"resets", ctrl.Resets(),
		"elapsed", time.Since(startedAt).Round(time.Millisecond),
	)

	if cfg.Output.Dir == "" {
		return nil
	}
	finishedAt := time.Now().UTC().Format(time.RFC3339Nano)
	summary := stats.RunSummary{
		RunID:            runID,
		StartGeneration:  startGeneration,
		EndGeneration:    state.Generation,
		Generations:      rows,
		BestFitness:      bestFitness,
		BestGeneration:   bestGeneration,
		FastDeathResets:  ctrl.Resets(),
		StopReason:       string(reason),
		BestByGeneration: bestSeries,
		StartedAtUTC:     startedAt.Format(time.RFC3339Nano),
		FinishedAtUTC:    finishedAt,
	}
	if _, err := stats.WriteRunSummary(cfg.Output.Dir, summary); err != nil {
		return err
	}
	return stats.AppendRunIndex(cfg.Output.Dir, stats.RunIndexEntry{
		RunID:         runID,
		Generations:   rows,
		BestFitness:   bestFitness,
		StopReason:    string(reason),
		FinishedAtUTC: finishedAt,
	})
}

// initialPopulation resumes the checkpointed population when one decodes,
// otherwise it seeds a fresh one.
func initialPopulation(ctx context.Context, ctrl *platform.Controller, cfg *config.Config, seed int64, logger *slog.Logger) (evo.Population, error) {
	if blob, ok := ctrl.Restore(ctx); ok {
		restored, err := evo.DecodePopulation(blob)
		if err == nil && len(restored.Genomes) > 0 {
			return restored, nil
		}
		logger.Warn("checkpoint population unusable, seeding fresh", "error", err)
	}
	return evo.SeedPopulation(rand.New(rand.NewSource(seed)), cfg.Training.PopulationSize, inputIDs, outputIDs)
}

func trainerConfig(cfg *config.Config, seed int64, logger *slog.Logger) (evo.TrainerConfig, error) {
	selector, err := evo.SelectorByName(cfg.Training.Selection)
	if err != nil {
		return evo.TrainerConfig{}, err
	}
	m := cfg.Training.Mutation
	return evo.TrainerConfig{
		PopulationSize:     cfg.Training.PopulationSize,
		EliteCount:         cfg.Training.EliteCount,
		SurvivalPercentage: cfg.Training.SurvivalPercentage,
		FitnessGoal:        cfg.Training.FitnessGoal,
		Seed:               seed,
		Selector:           selector,
		Policy: evo.MutationPolicy{
			PerturbWeight: m.PerturbWeight,
			PerturbBias:   m.PerturbBias,
			AddSynapse:    m.AddSynapse,
			AddNeuron:     m.AddNeuron,
			MaxDelta:      m.MaxDelta,
		},
		Logger: logger,
	}, nil
}

// queueReporter hands diagnostics to the writer goroutine.
type queueReporter chan<- model.GenerationDiagnostics

func (q queueReporter) Report(d model.GenerationDiagnostics) error {
	q <- d
	return nil
}
