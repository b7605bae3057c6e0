package evo

import (
	"fmt"
	"math/rand"

	"flapevo/internal/model"
)

type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
}

// Selector chooses parents from ranked genomes for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredGenome, poolSize int) (model.Genome, error)
}

// EliteSelector picks uniformly from the top of the ranking.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, poolSize int) (model.Genome, error) {
	if rng == nil {
		return model.Genome{}, fmt.Errorf("random source is required")
	}
	if poolSize <= 0 || poolSize > len(ranked) {
		return model.Genome{}, fmt.Errorf("invalid pool size: %d", poolSize)
	}
	return ranked[rng.Intn(poolSize)].Genome, nil
}

// TournamentSelector samples TournamentSize candidates from the pool and keeps
// the fittest.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, poolSize int) (model.Genome, error) {
	if rng == nil {
		return model.Genome{}, fmt.Errorf("random source is required")
	}
	if poolSize <= 0 || poolSize > len(ranked) {
		return model.Genome{}, fmt.Errorf("invalid pool size: %d", poolSize)
	}
	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}
	if size > poolSize {
		size = poolSize
	}

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < size; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best.Genome, nil
}

func SelectorByName(name string) (Selector, error) {
	switch name {
	case "", "elite":
		return EliteSelector{}, nil
	case "tournament":
		return TournamentSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}
