package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"flapevo/internal/model"
)

var (
	ErrNoMutationChoice = errors.New("no mutation choice available")
	ErrSynapseExists    = errors.New("synapse already exists")
)

// PerturbRandomWeight mutates a random synapse using uniform delta in [-MaxDelta, MaxDelta].
type PerturbRandomWeight struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomWeight) Name() string {
	return "perturb_random_weight"
}

func (o *PerturbRandomWeight) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}

	idx := o.Rand.Intn(len(genome.Synapses))
	delta := (o.Rand.Float64()*2 - 1) * o.MaxDelta

	mutated := CloneGenome(genome)
	mutated.Synapses[idx].Weight += delta
	return mutated, nil
}

// PerturbRandomBias mutates the bias of a random non-input neuron.
type PerturbRandomBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomBias) Name() string {
	return "perturb_random_bias"
}

func (o *PerturbRandomBias) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	if o.MaxDelta <= 0 {
		return model.Genome{}, errors.New("max delta must be > 0")
	}
	candidates := nonInputIndexes(genome)
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	delta := (o.Rand.Float64()*2 - 1) * o.MaxDelta

	mutated := CloneGenome(genome)
	mutated.Neurons[idx].Bias += delta
	return mutated, nil
}

// AddRandomSynapse links two unconnected neurons, always pointing forward in
// neuron order so the genome stays feed-forward.
type AddRandomSynapse struct {
	Rand      *rand.Rand
	MaxWeight float64
}

func (o *AddRandomSynapse) Name() string {
	return "add_random_synapse"
}

func (o *AddRandomSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	maxWeight := o.MaxWeight
	if maxWeight <= 0 {
		maxWeight = 1
	}

	inputs := idSet(genome.InputIDs)
	existing := make(map[[2]string]struct{}, len(genome.Synapses))
	for _, s := range genome.Synapses {
		existing[[2]string{s.From, s.To}] = struct{}{}
	}

	type pair struct{ from, to string }
	var candidates []pair
	for i, from := range genome.Neurons {
		for _, to := range genome.Neurons[i+1:] {
			if _, isInput := inputs[to.ID]; isInput {
				continue
			}
			if _, ok := existing[[2]string{from.ID, to.ID}]; ok {
				continue
			}
			candidates = append(candidates, pair{from: from.ID, to: to.ID})
		}
	}
	if len(candidates) == 0 {
		return model.Genome{}, fmt.Errorf("%w: %v", ErrNoMutationChoice, ErrSynapseExists)
	}

	choice := candidates[o.Rand.Intn(len(candidates))]
	mutated := CloneGenome(genome)
	mutated.Synapses = append(mutated.Synapses, model.Synapse{
		ID:      NewElementID("s"),
		From:    choice.from,
		To:      choice.to,
		Weight:  (o.Rand.Float64()*2 - 1) * maxWeight,
		Enabled: true,
	})
	return mutated, nil
}

// AddRandomNeuron splits an enabled synapse with a new hidden neuron. The new
// neuron is placed directly before the split synapse's target.
type AddRandomNeuron struct {
	Rand       *rand.Rand
	Activation string
}

func (o *AddRandomNeuron) Name() string {
	return "add_random_neuron"
}

func (o *AddRandomNeuron) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o == nil || o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	enabled := make([]int, 0, len(genome.Synapses))
	for i, s := range genome.Synapses {
		if s.Enabled {
			enabled = append(enabled, i)
		}
	}
	if len(enabled) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}
	activation := o.Activation
	if activation == "" {
		activation = "tanh"
	}

	mutated := CloneGenome(genome)
	split := &mutated.Synapses[enabled[o.Rand.Intn(len(enabled))]]
	split.Enabled = false

	hidden := model.Neuron{ID: NewElementID("h"), Activation: activation}
	at := len(mutated.Neurons)
	for i, n := range mutated.Neurons {
		if n.ID == split.To {
			at = i
			break
		}
	}
	mutated.Neurons = append(mutated.Neurons, model.Neuron{})
	copy(mutated.Neurons[at+1:], mutated.Neurons[at:])
	mutated.Neurons[at] = hidden

	from, to, weight := split.From, split.To, split.Weight
	mutated.Synapses = append(mutated.Synapses,
		model.Synapse{ID: NewElementID("s"), From: from, To: hidden.ID, Weight: 1, Enabled: true},
		model.Synapse{ID: NewElementID("s"), From: hidden.ID, To: to, Weight: weight, Enabled: true},
	)
	return mutated, nil
}

// WeightedOperator pairs an operator with its relative selection weight.
type WeightedOperator struct {
	Operator Operator
	Weight   float64
}

// DefaultOperators mirrors the usual NEAT balance: mostly weight and bias
// perturbation, occasional structural growth.
func DefaultOperators(rng *rand.Rand) []WeightedOperator {
	return []WeightedOperator{
		{Operator: &PerturbRandomWeight{Rand: rng, MaxDelta: 0.5}, Weight: 0.6},
		{Operator: &PerturbRandomBias{Rand: rng, MaxDelta: 0.5}, Weight: 0.25},
		{Operator: &AddRandomSynapse{Rand: rng, MaxWeight: 1}, Weight: 0.1},
		{Operator: &AddRandomNeuron{Rand: rng}, Weight: 0.05},
	}
}

// MutationPolicy sets the relative weight of each built-in operator and the
// perturbation range shared by the weight and bias operators.
type MutationPolicy struct {
	PerturbWeight float64
	PerturbBias   float64
	AddSynapse    float64
	AddNeuron     float64
	MaxDelta      float64
}

func (p MutationPolicy) Operators(rng *rand.Rand) []WeightedOperator {
	delta := p.MaxDelta
	if delta <= 0 {
		delta = 0.5
	}
	return []WeightedOperator{
		{Operator: &PerturbRandomWeight{Rand: rng, MaxDelta: delta}, Weight: p.PerturbWeight},
		{Operator: &PerturbRandomBias{Rand: rng, MaxDelta: delta}, Weight: p.PerturbBias},
		{Operator: &AddRandomSynapse{Rand: rng, MaxWeight: 1}, Weight: p.AddSynapse},
		{Operator: &AddRandomNeuron{Rand: rng}, Weight: p.AddNeuron},
	}
}

func pickOperator(rng *rand.Rand, ops []WeightedOperator) (Operator, error) {
	total := 0.0
	for _, op := range ops {
		if op.Weight > 0 {
			total += op.Weight
		}
	}
	if total <= 0 {
		return nil, errors.New("mutation policy requires at least one positive weight")
	}
	target := rng.Float64() * total
	for _, op := range ops {
		if op.Weight <= 0 {
			continue
		}
		target -= op.Weight
		if target < 0 {
			return op.Operator, nil
		}
	}
	return ops[len(ops)-1].Operator, nil
}

func CloneGenome(g model.Genome) model.Genome {
	out := g
	out.Neurons = append([]model.Neuron(nil), g.Neurons...)
	out.Synapses = append([]model.Synapse(nil), g.Synapses...)
	out.InputIDs = append([]string(nil), g.InputIDs...)
	out.OutputIDs = append([]string(nil), g.OutputIDs...)
	return out
}

func nonInputIndexes(g model.Genome) []int {
	inputs := idSet(g.InputIDs)
	out := make([]int, 0, len(g.Neurons))
	for i, n := range g.Neurons {
		if _, ok := inputs[n.ID]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
