package nn

import (
	"fmt"

	"flapevo/internal/model"
)

// Forward evaluates the genome once in neuron declaration order. Neurons that
// appear in inputByNeuron keep their supplied value.
func Forward(genome model.Genome, inputByNeuron map[string]float64) (map[string]float64, error) {
	values := make(map[string]float64, len(genome.Neurons))
	for neuronID, value := range inputByNeuron {
		values[neuronID] = value
	}

	incoming := make(map[string][]model.Synapse, len(genome.Neurons))
	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		incoming[synapse.To] = append(incoming[synapse.To], synapse)
	}

	for _, neuron := range genome.Neurons {
		if _, fixedInput := inputByNeuron[neuron.ID]; fixedInput {
			continue
		}

		total := neuron.Bias
		for _, synapse := range incoming[neuron.ID] {
			total += values[synapse.From] * synapse.Weight
		}

		fn, err := GetActivation(neuron.Activation)
		if err != nil {
			return nil, fmt.Errorf("neuron %s: %w", neuron.ID, err)
		}
		values[neuron.ID] = fn(total)
	}

	return values, nil
}

type link struct {
	from   int
	weight float64
}

type node struct {
	bias     float64
	fn       ActivationFunc
	incoming []link
}

// Network is a genome compiled for repeated activation inside the tick loop.
type Network struct {
	inputs  []int
	outputs []int
	nodes   []node
	fixed   []bool
	values  []float64
}

func Compile(genome model.Genome) (*Network, error) {
	if len(genome.InputIDs) == 0 {
		return nil, fmt.Errorf("genome %s has no inputs", genome.ID)
	}
	if len(genome.OutputIDs) == 0 {
		return nil, fmt.Errorf("genome %s has no outputs", genome.ID)
	}

	index := make(map[string]int, len(genome.Neurons))
	nodes := make([]node, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		if _, dup := index[neuron.ID]; dup {
			return nil, fmt.Errorf("genome %s: duplicate neuron %s", genome.ID, neuron.ID)
		}
		fn, err := GetActivation(neuron.Activation)
		if err != nil {
			return nil, fmt.Errorf("neuron %s: %w", neuron.ID, err)
		}
		index[neuron.ID] = i
		nodes[i] = node{bias: neuron.Bias, fn: fn}
	}
	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		from, ok := index[synapse.From]
		if !ok {
			return nil, fmt.Errorf("synapse %s: unknown source %s", synapse.ID, synapse.From)
		}
		to, ok := index[synapse.To]
		if !ok {
			return nil, fmt.Errorf("synapse %s: unknown target %s", synapse.ID, synapse.To)
		}
		nodes[to].incoming = append(nodes[to].incoming, link{from: from, weight: synapse.Weight})
	}

	net := &Network{
		nodes:  nodes,
		fixed:  make([]bool, len(nodes)),
		values: make([]float64, len(nodes)),
	}
	for _, id := range genome.InputIDs {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("genome %s: unknown input neuron %s", genome.ID, id)
		}
		net.inputs = append(net.inputs, i)
		net.fixed[i] = true
	}
	for _, id := range genome.OutputIDs {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("genome %s: unknown output neuron %s", genome.ID, id)
		}
		net.outputs = append(net.outputs, i)
	}
	return net, nil
}

// Activate runs one forward pass. Input values are assigned in InputIDs order
// and outputs are returned in OutputIDs order.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("input size mismatch: got=%d want=%d", len(inputs), len(n.inputs))
	}
	for i := range n.values {
		n.values[i] = 0
	}
	for i, idx := range n.inputs {
		n.values[idx] = inputs[i]
	}
	for i := range n.nodes {
		if n.fixed[i] {
			continue
		}
		nd := &n.nodes[i]
		total := nd.bias
		for _, l := range nd.incoming {
			total += n.values[l.from] * l.weight
		}
		n.values[i] = nd.fn(total)
	}

	out := make([]float64, len(n.outputs))
	for i, idx := range n.outputs {
		out[i] = n.values[idx]
	}
	return out, nil
}
