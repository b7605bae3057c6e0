package evo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"flapevo/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrEmptyPopulation = errors.New("population is empty")

// Population is the training library's state between generations. The
// persistence layer only ever sees it as the blob produced by
// EncodePopulation.
type Population struct {
	model.VersionedRecord
	Generation int            `json:"generation"`
	Genomes    []model.Genome `json:"genomes"`
}

func NewGenomeID() string {
	return "g-" + uuid.NewString()
}

func NewElementID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// SeedPopulation builds size minimal genomes: every input wired directly to
// every sigmoid output with uniform random weights in [-1, 1].
func SeedPopulation(rng *rand.Rand, size int, inputs, outputs []string) (Population, error) {
	if rng == nil {
		return Population{}, errors.New("random source is required")
	}
	if size <= 0 {
		return Population{}, fmt.Errorf("population size must be > 0")
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return Population{}, fmt.Errorf("inputs and outputs are required")
	}

	genomes := make([]model.Genome, 0, size)
	for i := 0; i < size; i++ {
		genome := model.Genome{
			VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
			ID:              NewGenomeID(),
			InputIDs:        append([]string(nil), inputs...),
			OutputIDs:       append([]string(nil), outputs...),
		}
		for _, id := range inputs {
			genome.Neurons = append(genome.Neurons, model.Neuron{ID: id, Activation: "identity"})
		}
		for _, out := range outputs {
			genome.Neurons = append(genome.Neurons, model.Neuron{
				ID:         out,
				Activation: "sigmoid",
				Bias:       rng.Float64()*2 - 1,
			})
			for _, in := range inputs {
				genome.Synapses = append(genome.Synapses, model.Synapse{
					ID:      fmt.Sprintf("s-%s-%s", in, out),
					From:    in,
					To:      out,
					Weight:  rng.Float64()*2 - 1,
					Enabled: true,
				})
			}
		}
		genomes = append(genomes, genome)
	}

	return Population{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		Genomes:         genomes,
	}, nil
}

func (p Population) Clone() Population {
	out := p
	out.Genomes = make([]model.Genome, len(p.Genomes))
	for i, g := range p.Genomes {
		out.Genomes[i] = CloneGenome(g)
	}
	return out
}

func EncodePopulation(p Population) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (Population, error) {
	var population Population
	if err := json.Unmarshal(data, &population); err != nil {
		return Population{}, err
	}
	if population.SchemaVersion != CurrentSchemaVersion || population.CodecVersion != CurrentCodecVersion {
		return Population{}, fmt.Errorf("population version mismatch: schema=%d codec=%d", population.SchemaVersion, population.CodecVersion)
	}
	if len(population.Genomes) == 0 {
		return Population{}, ErrEmptyPopulation
	}
	return population, nil
}
