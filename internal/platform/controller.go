package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"flapevo/internal/model"
	"flapevo/internal/nn"
	"flapevo/internal/scape"
	"flapevo/internal/stats"
	"flapevo/internal/storage"
	"flapevo/internal/view"
)

// ErrQuit is returned by EvaluateGeneration when a generation was cut short by
// a quit request or context cancellation.
var ErrQuit = errors.New("quit requested")

// JumpThreshold is the decision output above which an agent jumps.
const JumpThreshold = 0.5

type StopReason string

const (
	StopReasonMaxGenerations StopReason = "max_generations"
	StopReasonGoal           StopReason = "fitness_goal"
	StopReasonQuit           StopReason = "quit"
)

// Decider maps an observation vector to outputs; the first output drives the
// jump decision.
type Decider interface {
	Activate(inputs []float64) ([]float64, error)
}

type QuitSource interface {
	QuitRequested() bool
}

type Reporter interface {
	Report(d model.GenerationDiagnostics) error
}

type Config struct {
	Geometry    scape.Geometry
	Spawn       scape.SafeSpawnResolver
	FastDeath   FastDeathPolicy
	Checkpoints *storage.CheckpointStore
	Best        *storage.BestStore

	// Population returns the encoded population for the shutdown checkpoint.
	// A nil func or an empty payload skips the checkpoint.
	Population func() (json.RawMessage, error)
	Compile    func(genome model.Genome) (Decider, error)

	Renderer view.Renderer
	Reporter Reporter
	FPS      int
	Clock    func() time.Time
	Rand     *rand.Rand
	Logger   *slog.Logger

	// FlushBestOnImprove writes the best record whenever the running best
	// improves, in addition to the shutdown write.
	FlushBestOnImprove bool
}

// Controller runs generations one at a time on the calling goroutine and owns
// the run State.
type Controller struct {
	cfg   Config
	state *State
	log   *slog.Logger
	pacer *Pacer

	shutdownOnce sync.Once
	resets       int
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Checkpoints == nil || cfg.Best == nil {
		return nil, fmt.Errorf("checkpoint and best stores are required")
	}
	if cfg.Geometry.ScreenWidth == 0 {
		cfg.Geometry = scape.DefaultGeometry()
	}
	if cfg.Spawn.ScreenWidth == 0 {
		cfg.Spawn = scape.DefaultSafeSpawnResolver(cfg.Geometry)
	}
	if cfg.Compile == nil {
		cfg.Compile = func(genome model.Genome) (Decider, error) {
			return nn.Compile(genome)
		}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &view.Headless{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		cfg:   cfg,
		state: NewState(NewFastDeathDetector(cfg.FastDeath, cfg.Clock)),
		log:   cfg.Logger,
		pacer: NewPacer(cfg.FPS),
	}, nil
}

func (c *Controller) State() *State {
	return c.state
}

// Resets counts fast-death resets performed during this process.
func (c *Controller) Resets() int {
	return c.resets
}

// Restore loads prior durable state. It returns the stored population payload
// when a checkpoint was found; the generation counter and snapshot come from
// the same record. The best record only seeds the running best.
func (c *Controller) Restore(ctx context.Context) (json.RawMessage, bool) {
	if record, ok := c.cfg.Best.Load(ctx); ok {
		c.state.Best.Seed(record)
		c.log.Info("best genome loaded",
			"genome", record.Genome.ID,
			"fitness", record.Fitness,
			"generation", record.Generation,
		)
	}

	checkpoint, ok := c.cfg.Checkpoints.Load(ctx)
	if !ok {
		return nil, false
	}
	c.state.Generation = checkpoint.Generation
	c.state.Snapshot = checkpoint.Snapshot
	attrs := []any{"generation", checkpoint.Generation}
	if checkpoint.Snapshot != nil {
		attrs = append(attrs, "pipes", len(checkpoint.Snapshot.Pipes), "score", checkpoint.Snapshot.Score)
	}
	c.log.Info("checkpoint restored", attrs...)
	return checkpoint.Population, true
}

// EvaluateGeneration runs one full generation and returns each genome's
// fitness. It returns ErrQuit, along with the partial fitness, when the run
// was interrupted.
func (c *Controller) EvaluateGeneration(ctx context.Context, genomes []model.Genome) ([]float64, error) {
	started := c.cfg.Clock()
	reset := c.checkFastDeath(ctx)

	c.state.Generation++
	restored := c.state.Snapshot != nil
	world := scape.NewWorld(c.cfg.Geometry, c.cfg.Rand, c.state.Snapshot)
	spawnX := c.cfg.Spawn.Resolve(scape.ObstaclesFromPipes(c.cfg.Geometry, world.Pipes))
	if restored {
		c.log.Info("game state restored", "pipes", len(world.Pipes), "score", world.Score, "spawn_x", spawnX)
	}

	deciders := make([]Decider, len(genomes))
	for i, genome := range genomes {
		d, err := c.cfg.Compile(genome)
		if err != nil {
			return nil, fmt.Errorf("compile genome %s: %w", genome.ID, err)
		}
		deciders[i] = d
	}
	world.Spawn(len(genomes), spawnX)
	fitness := make([]float64, len(genomes))

	ticks, err := c.runTicks(ctx, world, genomes, deciders, fitness)
	if err != nil && !errors.Is(err, ErrQuit) {
		return nil, err
	}
	quit := err != nil

	if !quit {
		if checkpoint, ok := c.cfg.Checkpoints.Load(ctx); ok {
			c.state.Snapshot = checkpoint.Snapshot
		}
	}

	c.report(model.GenerationDiagnostics{
		Generation: c.state.Generation,
		Restored:   restored,
		SpawnX:     spawnX,
		Score:      world.Score,
		Ticks:      ticks,
		DurationMS: c.cfg.Clock().Sub(started).Milliseconds(),
		FastDeaths: c.state.FastDeath.Strikes(),
		Reset:      reset,
	}, fitness)

	if quit {
		return fitness, ErrQuit
	}
	return fitness, nil
}

func (c *Controller) checkFastDeath(ctx context.Context) bool {
	decision := c.state.FastDeath.Observe(c.state.Snapshot != nil)
	if decision.Fast {
		c.log.Warn("fast death detected",
			"strikes", decision.Strikes,
			"limit", c.state.FastDeath.Policy().Strikes,
			"elapsed", decision.Elapsed,
		)
	}
	if !decision.Reset {
		return false
	}

	c.log.Warn("consecutive fast deaths, discarding saved state", "generation", c.state.Generation)
	if err := c.cfg.Best.Delete(ctx); err != nil {
		c.log.Error("delete best record", "error", err)
	}
	if err := c.cfg.Checkpoints.Delete(ctx); err != nil {
		c.log.Error("delete checkpoint", "error", err)
	}
	c.state.Snapshot = nil
	c.state.Generation = 0
	c.resets++
	return true
}

func (c *Controller) runTicks(ctx context.Context, world *scape.World, genomes []model.Genome, deciders []Decider, fitness []float64) (int, error) {
	decide := func(member int, obs scape.Observation) (bool, error) {
		out, err := deciders[member].Activate(obs.Vector())
		if err != nil {
			return false, err
		}
		return len(out) > 0 && out[0] > JumpThreshold, nil
	}

	ticks := 0
	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return ticks, ErrQuit
		}
		if c.cfg.Renderer.QuitRequested() {
			return ticks, ErrQuit
		}
		if world.FocusPipeIndex() < 0 {
			return ticks, nil
		}

		res, err := world.Step(decide, fitness)
		if err != nil {
			return ticks, err
		}
		ticks++

		for _, member := range res.Scored {
			if c.state.Best.Update(genomes[member], fitness[member], c.state.Generation) && c.cfg.FlushBestOnImprove {
				c.flushBest(ctx)
			}
		}
		if world.Score > 0 {
			snap := world.Snapshot()
			c.state.Snapshot = &snap
		}

		c.cfg.Renderer.Draw(c.frame(world))
	}
}

func (c *Controller) frame(world *scape.World) view.Frame {
	snap := world.Snapshot()
	return view.Frame{
		Geometry:   c.cfg.Geometry,
		Birds:      snap.Birds,
		Pipes:      snap.Pipes,
		BaseX1:     snap.BaseX1,
		BaseX2:     snap.BaseX2,
		Score:      snap.Score,
		Generation: c.state.Generation,
		Alive:      world.Alive(),
	}
}

func (c *Controller) report(d model.GenerationDiagnostics, fitness []float64) {
	summary := stats.Summarize(fitness)
	d.BestFitness = summary.Max
	d.MeanFitness = summary.Mean
	d.MinFitness = summary.Min
	d.StdFitness = summary.Std

	attrs := []any{
		"generation", d.Generation,
		"score", d.Score,
		"ticks", d.Ticks,
		"best", d.BestFitness,
		"mean", d.MeanFitness,
	}
	if _, fitness, _, ok := c.state.Best.Best(); ok {
		attrs = append(attrs, "running_best", fitness)
	}
	c.log.Info("generation finished", attrs...)
	if c.cfg.Reporter == nil {
		return
	}
	if err := c.cfg.Reporter.Report(d); err != nil {
		c.log.Warn("report generation", "error", err)
	}
}

func (c *Controller) flushBest(ctx context.Context) {
	genome, fitness, generation, ok := c.state.Best.Best()
	if !ok {
		return
	}
	if err := c.cfg.Best.Save(ctx, genome, fitness, generation); err != nil {
		c.log.Error("flush best genome", "error", err)
	}
}
