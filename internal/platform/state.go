package platform

import (
	"math"

	"flapevo/internal/evo"
	"flapevo/internal/model"
)

// State is the process-wide mutable context of a run. It is only touched from
// the simulation goroutine.
type State struct {
	Generation int
	Snapshot   *model.GameSnapshot
	Best       *BestTracker
	FastDeath  *FastDeathDetector
}

func NewState(fastDeath *FastDeathDetector) *State {
	return &State{
		Best:      NewBestTracker(),
		FastDeath: fastDeath,
	}
}

// BestTracker holds the running best genome. Its fitness never decreases.
type BestTracker struct {
	genome     model.Genome
	fitness    float64
	generation int
	set        bool
}

func NewBestTracker() *BestTracker {
	return &BestTracker{fitness: math.Inf(-1)}
}

// Update records genome when fitness strictly exceeds the running maximum.
func (b *BestTracker) Update(genome model.Genome, fitness float64, generation int) bool {
	if fitness <= b.fitness {
		return false
	}
	b.genome = evo.CloneGenome(genome)
	b.fitness = fitness
	b.generation = generation
	b.set = true
	return true
}

func (b *BestTracker) Seed(record model.BestRecord) {
	b.Update(record.Genome, record.Fitness, record.Generation)
}

func (b *BestTracker) Best() (model.Genome, float64, int, bool) {
	return b.genome, b.fitness, b.generation, b.set
}

func (b *BestTracker) Fitness() float64 {
	return b.fitness
}
