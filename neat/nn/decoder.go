package nn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/baldhumanity/neat-evo/neat"
)

// Mode selects how Decode treats cycles among enabled links.
type Mode int

const (
	// FeedForwardOnly rejects genomes whose enabled links form a cycle.
	FeedForwardOnly Mode = iota
	// RecurrentAllowed accepts cycles; links inside a strongly connected
	// component (and self loops) read the previous activation step.
	RecurrentAllowed
)

func (m Mode) String() string {
	if m == RecurrentAllowed {
		return "recurrent"
	}
	return "feedforward"
}

// ModeFor returns the decoding mode matching the genome configuration.
func ModeFor(cfg *neat.GenomeConfig) Mode {
	if cfg.RecurrentAllowed {
		return RecurrentAllowed
	}
	return FeedForwardOnly
}

// Decode builds an executable network from a genome. Enabled neurons become
// nodes and enabled links between enabled neurons become weighted edges.
// The genome is not modified and equal genomes decode to equal networks.
func Decode(g *neat.Genome, mode Mode) (*Network, error) {
	dg := simple.NewDirectedGraph()
	net := &Network{index: make(map[uint64]int, len(g.Neurons))}

	// Slots follow ascending neuron id.
	for _, id := range g.NeuronIDs() {
		n := g.Neurons[id]
		if !n.Enabled {
			continue
		}
		slot := len(net.slots)
		net.index[id] = slot
		net.slots = append(net.slots, id)
		dg.AddNode(simple.Node(int64(id)))

		switch n.Type {
		case neat.NeuronInput:
			net.inputs = append(net.inputs, slot)
		case neat.NeuronBias:
			net.bias = append(net.bias, slot)
		case neat.NeuronOutput:
			net.outputs = append(net.outputs, slot)
		case neat.NeuronHidden:
		default:
			return nil, fmt.Errorf("%w: genome %d: neuron %d has unknown type %s", neat.ErrInvalidGenome, g.ID, id, n.Type)
		}
	}

	type edge struct {
		link *neat.LinkGene
		self bool
	}
	var edges []edge
	for _, l := range g.SortedLinks() {
		if !l.Enabled {
			continue
		}
		_, okFrom := net.index[l.From]
		_, okTo := net.index[l.To]
		if !okFrom || !okTo {
			if _, exists := g.Neurons[l.From]; !exists {
				return nil, fmt.Errorf("%w: genome %d: link %d references missing neuron %d", neat.ErrInvalidGenome, g.ID, l.Innovation, l.From)
			}
			if _, exists := g.Neurons[l.To]; !exists {
				return nil, fmt.Errorf("%w: genome %d: link %d references missing neuron %d", neat.ErrInvalidGenome, g.ID, l.Innovation, l.To)
			}
			continue // endpoint disabled
		}
		if l.From == l.To {
			if mode == FeedForwardOnly {
				return nil, fmt.Errorf("%w: genome %d: self loop on neuron %d", neat.ErrInvalidGenome, g.ID, l.From)
			}
			edges = append(edges, edge{link: l, self: true})
			continue
		}
		from, to := simple.Node(int64(l.From)), simple.Node(int64(l.To))
		if dg.HasEdgeFromTo(from.ID(), to.ID()) {
			return nil, fmt.Errorf("%w: genome %d: duplicate link %d->%d", neat.ErrInvalidGenome, g.ID, l.From, l.To)
		}
		dg.SetEdge(dg.NewEdge(from, to))
		edges = append(edges, edge{link: l})
	}

	// Recurrent edges are those closing a cycle: both ends in one strongly
	// connected component. They are removed from the ordering graph.
	recurrent := make(map[[2]uint64]bool)
	order, err := topo.SortStabilized(dg, nil)
	if err != nil {
		var cyc topo.Unorderable
		if !errors.As(err, &cyc) {
			return nil, fmt.Errorf("ordering genome %d: %w", g.ID, err)
		}
		if mode == FeedForwardOnly {
			return nil, fmt.Errorf("%w: genome %d: %d cycle(s) among enabled links", neat.ErrInvalidGenome, g.ID, len(cyc))
		}
		component := make(map[int64]int)
		for i, scc := range topo.TarjanSCC(dg) {
			for _, n := range scc {
				component[n.ID()] = i
			}
		}
		acyclic := simple.NewDirectedGraph()
		for _, id := range net.slots {
			acyclic.AddNode(simple.Node(int64(id)))
		}
		for _, e := range edges {
			if e.self {
				continue
			}
			from, to := int64(e.link.From), int64(e.link.To)
			if component[from] == component[to] {
				recurrent[[2]uint64{e.link.From, e.link.To}] = true
				continue
			}
			acyclic.SetEdge(acyclic.NewEdge(simple.Node(from), simple.Node(to)))
		}
		if order, err = topo.SortStabilized(acyclic, nil); err != nil {
			return nil, fmt.Errorf("ordering genome %d after removing recurrent links: %w", g.ID, err)
		}
	}

	incoming := make(map[uint64][]Synapse)
	for _, e := range edges {
		l := e.link
		back := e.self || recurrent[[2]uint64{l.From, l.To}]
		incoming[l.To] = append(incoming[l.To], Synapse{
			From:      net.index[l.From],
			Weight:    l.Weight,
			Recurrent: back,
		})
		net.recurrent = net.recurrent || back
	}

	for _, n := range order {
		id := uint64(n.ID())
		gene := g.Neurons[id]
		if gene.Type.IsSource() {
			continue
		}
		act, err := neat.GetActivation(gene.Activation)
		if err != nil {
			return nil, fmt.Errorf("%w: genome %d: neuron %d: %v", neat.ErrInvalidGenome, g.ID, id, err)
		}
		net.order = append(net.order, Neuron{
			Slot:       net.index[id],
			Activation: act,
			Slope:      gene.ActivationSlope,
			Inputs:     incoming[id],
		})
	}

	net.values = make([]float64, len(net.slots))
	net.previous = make([]float64, len(net.slots))
	return net, nil
}
