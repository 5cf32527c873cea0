package nn

import (
	"context"
	"fmt"

	"github.com/baldhumanity/neat-evo/neat"
)

// Synapse is an incoming weighted edge of a neuron.
type Synapse struct {
	From      int // Slot of the source neuron
	Weight    float64
	Recurrent bool // Reads the source value from the previous step
}

// Neuron is a computed (hidden or output) neuron in activation order.
type Neuron struct {
	Slot       int
	Activation neat.ActivationType
	Slope      float64
	Inputs     []Synapse
}

// Network is a decoded phenotype. It is not safe for concurrent use;
// decode one network per goroutine.
type Network struct {
	slots   []uint64       // Neuron id per slot, ascending
	index   map[uint64]int // Neuron id -> slot
	inputs  []int
	bias    []int
	outputs []int
	order   []Neuron

	recurrent bool
	values    []float64
	previous  []float64
}

// NumInputs returns the number of input neurons.
func (net *Network) NumInputs() int { return len(net.inputs) }

// NumOutputs returns the number of output neurons.
func (net *Network) NumOutputs() int { return len(net.outputs) }

// Recurrent reports whether any edge reads the previous activation step.
func (net *Network) Recurrent() bool { return net.recurrent }

// Order returns the neuron ids of computed neurons in activation order.
func (net *Network) Order() []uint64 {
	ids := make([]uint64, len(net.order))
	for i, n := range net.order {
		ids[i] = net.slots[n.Slot]
	}
	return ids
}

// Value returns the last computed value of a neuron.
func (net *Network) Value(neuronID uint64) (float64, bool) {
	slot, ok := net.index[neuronID]
	if !ok {
		return 0, false
	}
	return net.values[slot], true
}

// Activate computes the network's output for one input vector. Input values
// are assigned to input neurons in ascending id order; bias neurons emit 1.
// Recurrent edges read the values of the previous call.
func (net *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(net.inputs) {
		return nil, fmt.Errorf("mismatch between input count (%d) and network input nodes (%d)", len(inputs), len(net.inputs))
	}
	if net.recurrent {
		copy(net.previous, net.values)
	}
	for i, slot := range net.inputs {
		net.values[slot] = inputs[i]
	}
	for _, slot := range net.bias {
		net.values[slot] = 1.0
	}

	for _, n := range net.order {
		sum := 0.0
		for _, s := range n.Inputs {
			if s.Recurrent {
				sum += net.previous[s.From] * s.Weight
			} else {
				sum += net.values[s.From] * s.Weight
			}
		}
		net.values[n.Slot] = n.Activation(sum, n.Slope)
	}

	outputs := make([]float64, len(net.outputs))
	for i, slot := range net.outputs {
		outputs[i] = net.values[slot]
	}
	return outputs, nil
}

// Reset clears all neuron values, including recurrent state.
func (net *Network) Reset() {
	clear(net.values)
	clear(net.previous)
}

// Evaluator adapts a phenotype-level scoring function to a neat.Evaluator.
// Each call decodes the genome with the given mode; decode errors are
// reported as evaluation failures.
func Evaluator(mode Mode, fn func(ctx context.Context, net *Network) (float64, error)) neat.Evaluator {
	return neat.EvaluatorFunc(func(ctx context.Context, g *neat.Genome) (float64, error) {
		net, err := Decode(g, mode)
		if err != nil {
			return 0, err
		}
		return fn(ctx, net)
	})
}
