package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"flapevo/internal/model"
)

// EvaluateFunc scores one generation. The returned slice is aligned with
// genomes. Returning an error (including ctx.Err()) stops the run.
type EvaluateFunc func(ctx context.Context, genomes []model.Genome) ([]float64, error)

type TrainerConfig struct {
	PopulationSize     int
	EliteCount         int
	SurvivalPercentage float64
	FitnessGoal        float64
	Seed               int64
	Selector           Selector
	Mutations          []WeightedOperator
	Policy             MutationPolicy
	Logger             *slog.Logger
}

type RunResult struct {
	Generations      int
	BestByGeneration []float64
	Best             ScoredGenome
	GoalReached      bool
}

// Trainer is the iteration driver: evaluate, rank, breed, repeat.
type Trainer struct {
	cfg        TrainerConfig
	rng        *rand.Rand
	population Population
	log        *slog.Logger
}

func NewTrainer(cfg TrainerConfig, initial Population) (*Trainer, error) {
	if len(initial.Genomes) == 0 {
		return nil, ErrEmptyPopulation
	}
	if cfg.PopulationSize <= 0 {
		cfg.PopulationSize = len(initial.Genomes)
	}
	if cfg.EliteCount <= 0 {
		cfg.EliteCount = 1
	}
	if cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.SurvivalPercentage <= 0 || cfg.SurvivalPercentage > 1 {
		cfg.SurvivalPercentage = 0.2
	}
	if cfg.Selector == nil {
		cfg.Selector = EliteSelector{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if len(cfg.Mutations) == 0 {
		if cfg.Policy != (MutationPolicy{}) {
			cfg.Mutations = cfg.Policy.Operators(rng)
		} else {
			cfg.Mutations = DefaultOperators(rng)
		}
	}

	return &Trainer{
		cfg:        cfg,
		rng:        rng,
		population: initial.Clone(),
		log:        logger,
	}, nil
}

// Population returns a copy of the population currently being evaluated.
func (t *Trainer) Population() Population {
	return t.population.Clone()
}

// Inject replaces the first member with genome, keeping that member's id.
func (t *Trainer) Inject(genome model.Genome) {
	if len(t.population.Genomes) == 0 {
		return
	}
	injected := CloneGenome(genome)
	injected.ID = t.population.Genomes[0].ID
	t.population.Genomes[0] = injected
}

func (t *Trainer) Run(ctx context.Context, evaluate EvaluateFunc, maxGenerations int) (RunResult, error) {
	if evaluate == nil {
		return RunResult{}, errors.New("evaluate function is required")
	}
	if maxGenerations <= 0 {
		return RunResult{}, fmt.Errorf("generations must be > 0")
	}

	result := RunResult{Best: ScoredGenome{Fitness: math.Inf(-1)}}
	for gen := 0; gen < maxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		genomes := t.population.Genomes
		fitness, err := evaluate(ctx, genomes)
		if err != nil {
			return result, err
		}
		if len(fitness) != len(genomes) {
			return result, fmt.Errorf("fitness size mismatch: got=%d want=%d", len(fitness), len(genomes))
		}

		ranked := make([]ScoredGenome, len(genomes))
		for i := range genomes {
			ranked[i] = ScoredGenome{Genome: genomes[i], Fitness: fitness[i]}
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Fitness > ranked[j].Fitness
		})

		result.Generations++
		result.BestByGeneration = append(result.BestByGeneration, ranked[0].Fitness)
		if ranked[0].Fitness > result.Best.Fitness {
			result.Best = ScoredGenome{Genome: CloneGenome(ranked[0].Genome), Fitness: ranked[0].Fitness}
		}
		t.log.Debug("generation ranked",
			"generation", t.population.Generation,
			"best", ranked[0].Fitness,
			"worst", ranked[len(ranked)-1].Fitness,
		)

		if t.cfg.FitnessGoal > 0 && ranked[0].Fitness >= t.cfg.FitnessGoal {
			result.GoalReached = true
			return result, nil
		}

		next, err := t.breed(ctx, ranked)
		if err != nil {
			return result, err
		}
		t.population = next
	}
	return result, nil
}

func (t *Trainer) breed(ctx context.Context, ranked []ScoredGenome) (Population, error) {
	size := t.cfg.PopulationSize
	pool := int(math.Ceil(float64(len(ranked)) * t.cfg.SurvivalPercentage))
	if pool < t.cfg.EliteCount {
		pool = t.cfg.EliteCount
	}
	if pool > len(ranked) {
		pool = len(ranked)
	}

	next := Population{
		VersionedRecord: t.population.VersionedRecord,
		Generation:      t.population.Generation + 1,
		Genomes:         make([]model.Genome, 0, size),
	}
	for i := 0; i < t.cfg.EliteCount && i < len(ranked); i++ {
		next.Genomes = append(next.Genomes, CloneGenome(ranked[i].Genome))
	}
	for len(next.Genomes) < size {
		parent, err := t.cfg.Selector.PickParent(t.rng, ranked, pool)
		if err != nil {
			return Population{}, err
		}
		child, err := t.mutate(ctx, parent)
		if err != nil {
			return Population{}, err
		}
		child.ID = NewGenomeID()
		next.Genomes = append(next.Genomes, child)
	}
	return next, nil
}

// mutate applies one weighted operator, falling back to the unmodified clone
// when the chosen operator has nothing to act on.
func (t *Trainer) mutate(ctx context.Context, parent model.Genome) (model.Genome, error) {
	op, err := pickOperator(t.rng, t.cfg.Mutations)
	if err != nil {
		return model.Genome{}, err
	}
	child, err := op.Apply(ctx, parent)
	if errors.Is(err, ErrNoMutationChoice) {
		return CloneGenome(parent), nil
	}
	if err != nil {
		return model.Genome{}, fmt.Errorf("mutation %s: %w", op.Name(), err)
	}
	return child, nil
}
