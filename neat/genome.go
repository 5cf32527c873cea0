package neat

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Genome represents an individual organism in the population.
// Genes are held in arenas keyed by neuron id and link innovation; links
// refer to neurons by id only.
type Genome struct {
	ID              uint64                 `json:"id"`
	Neurons         map[uint64]*NeuronGene `json:"neurons"`
	Links           map[uint64]*LinkGene   `json:"links"`
	SpeciesID       uint32                 `json:"species_id"` // 0 means unassigned
	Fitness         float64                `json:"fitness"`
	AdjustedFitness float64                `json:"adjusted_fitness"`
	Evaluated       bool                   `json:"evaluated"`
}

// NewGenome creates an empty genome with the given id.
func NewGenome(id uint64) *Genome {
	return &Genome{
		ID:      id,
		Neurons: make(map[uint64]*NeuronGene),
		Links:   make(map[uint64]*LinkGene),
	}
}

// IOLayout holds the neuron ids every genome of a run shares.
type IOLayout struct {
	Inputs  []uint64 `json:"inputs"`
	Bias    uint64   `json:"bias"` // 0 when the bias neuron is disabled
	Outputs []uint64 `json:"outputs"`
}

// NewIOLayout reserves ids for the input, bias and output neurons.
func NewIOLayout(cfg *GenomeConfig, db *InnovationDB) (IOLayout, error) {
	n := cfg.NumInputs + cfg.NumOutputs
	if cfg.BiasNeuron {
		n++
	}
	ids, err := db.ReserveNeuronIDs(n)
	if err != nil {
		return IOLayout{}, err
	}
	layout := IOLayout{
		Inputs:  ids[:cfg.NumInputs],
		Outputs: ids[cfg.NumInputs : cfg.NumInputs+cfg.NumOutputs],
	}
	if cfg.BiasNeuron {
		layout.Bias = ids[n-1]
	}
	return layout, nil
}

// Sources returns the input ids followed by the bias id, if any.
func (l IOLayout) Sources() []uint64 {
	src := slices.Clone(l.Inputs)
	if l.Bias != 0 {
		src = append(src, l.Bias)
	}
	return src
}

// ConfigureNew initializes a minimal genome: input, bias and output neurons,
// fully connected when initial_connection is "full".
func (g *Genome) ConfigureNew(layout IOLayout, cfg *GenomeConfig, db *InnovationDB, rng *rand.Rand) error {
	sources := layout.Sources()
	for i, id := range sources {
		typ := NeuronInput
		if id == layout.Bias {
			typ = NeuronBias
		}
		g.Neurons[id] = &NeuronGene{
			ID:              id,
			Type:            typ,
			Activation:      "identity",
			ActivationSlope: cfg.ActivationSlope,
			SplitX:          layerX(i, len(sources)),
			SplitY:          0,
			Enabled:         true,
		}
	}
	for i, id := range layout.Outputs {
		g.Neurons[id] = &NeuronGene{
			ID:              id,
			Type:            NeuronOutput,
			Activation:      cfg.OutputActivation,
			ActivationSlope: cfg.ActivationSlope,
			SplitX:          layerX(i, len(layout.Outputs)),
			SplitY:          1,
			Enabled:         true,
		}
	}

	switch cfg.InitialConnection {
	case "unconnected":
	case "full":
		for _, from := range sources {
			for _, to := range layout.Outputs {
				innov, err := db.LinkInnovation(from, to)
				if err != nil {
					return err
				}
				g.Links[innov] = &LinkGene{
					Innovation: innov,
					From:       from,
					To:         to,
					Weight:     newWeight(rng, cfg),
					Enabled:    true,
				}
			}
		}
	default:
		return fmt.Errorf("%w: invalid initial_connection '%s'", ErrConfiguration, cfg.InitialConnection)
	}
	return nil
}

func layerX(i, n int) float64 {
	return float64(i+1) / float64(n+1)
}

// String returns a short summary of the genome.
func (g *Genome) String() string {
	return fmt.Sprintf("Genome(ID: %d, Species: %d, Fitness: %.4f, Neurons: %d, Links: %d/%d enabled)",
		g.ID, g.SpeciesID, g.Fitness, len(g.Neurons), g.EnabledLinkCount(), len(g.Links))
}

// Copy creates a deep copy of the genome, including its id and fitness.
func (g *Genome) Copy() *Genome {
	c := &Genome{
		ID:              g.ID,
		Neurons:         make(map[uint64]*NeuronGene, len(g.Neurons)),
		Links:           make(map[uint64]*LinkGene, len(g.Links)),
		SpeciesID:       g.SpeciesID,
		Fitness:         g.Fitness,
		AdjustedFitness: g.AdjustedFitness,
		Evaluated:       g.Evaluated,
	}
	for id, n := range g.Neurons {
		c.Neurons[id] = n.Copy()
	}
	for innov, l := range g.Links {
		c.Links[innov] = l.Copy()
	}
	return c
}

// Clone copies the genes of g into a fresh, unevaluated genome with a new id.
func (g *Genome) Clone(id uint64) *Genome {
	c := g.Copy()
	c.ID = id
	c.SpeciesID = 0
	c.Fitness = 0
	c.AdjustedFitness = 0
	c.Evaluated = false
	return c
}

// NeuronIDs returns the neuron ids in ascending order.
func (g *Genome) NeuronIDs() []uint64 {
	ids := make([]uint64, 0, len(g.Neurons))
	for id := range g.Neurons {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SortedLinks returns the link genes ordered by innovation.
func (g *Genome) SortedLinks() []*LinkGene {
	links := make([]*LinkGene, 0, len(g.Links))
	for _, l := range g.Links {
		links = append(links, l)
	}
	slices.SortFunc(links, func(a, b *LinkGene) int {
		switch {
		case a.Innovation < b.Innovation:
			return -1
		case a.Innovation > b.Innovation:
			return 1
		}
		return 0
	})
	return links
}

// FindLink returns the link from -> to, enabled or not.
func (g *Genome) FindLink(from, to uint64) (*LinkGene, bool) {
	for _, l := range g.Links {
		if l.From == from && l.To == to {
			return l, true
		}
	}
	return nil, false
}

// EnabledLinkCount returns the number of enabled link genes.
func (g *Genome) EnabledLinkCount() int {
	n := 0
	for _, l := range g.Links {
		if l.Enabled {
			n++
		}
	}
	return n
}

// Validate checks the gene invariants: every link endpoint exists, no link
// targets an input or bias neuron, at most one link per (from,to) pair and,
// when recurrence is not allowed, no cycle among enabled links.
func (g *Genome) Validate(recurrentAllowed bool) error {
	pairs := make(map[LinkKey]uint64, len(g.Links))
	for innov, l := range g.Links {
		if innov != l.Innovation {
			return fmt.Errorf("%w: genome %d: link stored under %d has innovation %d", ErrInvalidGenome, g.ID, innov, l.Innovation)
		}
		if _, ok := g.Neurons[l.From]; !ok {
			return fmt.Errorf("%w: genome %d: link %d references missing neuron %d", ErrInvalidGenome, g.ID, innov, l.From)
		}
		to, ok := g.Neurons[l.To]
		if !ok {
			return fmt.Errorf("%w: genome %d: link %d references missing neuron %d", ErrInvalidGenome, g.ID, innov, l.To)
		}
		if to.Type.IsSource() {
			return fmt.Errorf("%w: genome %d: link %d targets %s neuron %d", ErrInvalidGenome, g.ID, innov, to.Type, l.To)
		}
		if other, dup := pairs[l.Key()]; dup {
			return fmt.Errorf("%w: genome %d: links %d and %d both connect %d->%d", ErrInvalidGenome, g.ID, other, innov, l.From, l.To)
		}
		pairs[l.Key()] = innov
	}
	if !recurrentAllowed && g.hasEnabledCycle() {
		return fmt.Errorf("%w: genome %d: cycle among enabled links", ErrInvalidGenome, g.ID)
	}
	return nil
}

// enabledGraph returns the enabled links as a directed graph over every
// neuron. Self loops cannot be represented and are reported instead.
func (g *Genome) enabledGraph() (dg *simple.DirectedGraph, selfLoop bool) {
	dg = simple.NewDirectedGraph()
	for id := range g.Neurons {
		dg.AddNode(simple.Node(int64(id)))
	}
	for _, l := range g.Links {
		if !l.Enabled {
			continue
		}
		if l.From == l.To {
			selfLoop = true
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(int64(l.From)), simple.Node(int64(l.To))))
	}
	return dg, selfLoop
}

func (g *Genome) hasEnabledCycle() bool {
	dg, selfLoop := g.enabledGraph()
	if selfLoop {
		return true
	}
	_, err := topo.Sort(dg)
	return err != nil
}

// createsCycle reports whether adding an enabled link from -> to would close
// a cycle through the genome's enabled links.
func createsCycle(g *Genome, from, to uint64) bool {
	if from == to {
		return true
	}
	dg, _ := g.enabledGraph()
	return topo.PathExistsIn(dg, simple.Node(int64(to)), simple.Node(int64(from)))
}

// DistanceConfig holds the compatibility distance coefficients.
type DistanceConfig struct {
	ExcessCoefficient   float64 // c1
	DisjointCoefficient float64 // c2
	WeightCoefficient   float64 // c3
	// NormalizeThreshold is the link count below which N is taken as 1.
	NormalizeThreshold int
}

// Distance calculates the compatibility distance c1*E/N + c2*D/N + c3*W
// between two genomes, where W is the mean weight difference over matching
// links enabled in both.
func Distance(a, b *Genome, dc DistanceConfig) float64 {
	la, lb := a.SortedLinks(), b.SortedLinks()

	var maxA, maxB uint64
	if len(la) > 0 {
		maxA = la[len(la)-1].Innovation
	}
	if len(lb) > 0 {
		maxB = lb[len(lb)-1].Innovation
	}

	excess, disjoint, matching := 0, 0, 0
	weightDiff := 0.0
	i, j := 0, 0
	for i < len(la) || j < len(lb) {
		switch {
		case j == len(lb) || (i < len(la) && la[i].Innovation < lb[j].Innovation):
			if la[i].Innovation > maxB {
				excess++
			} else {
				disjoint++
			}
			i++
		case i == len(la) || lb[j].Innovation < la[i].Innovation:
			if lb[j].Innovation > maxA {
				excess++
			} else {
				disjoint++
			}
			j++
		default:
			if la[i].Enabled && lb[j].Enabled {
				weightDiff += math.Abs(la[i].Weight - lb[j].Weight)
				matching++
			}
			i++
			j++
		}
	}

	n := float64(max(len(la), len(lb)))
	if n < float64(dc.NormalizeThreshold) || n < 1 {
		n = 1
	}
	d := (dc.ExcessCoefficient*float64(excess) + dc.DisjointCoefficient*float64(disjoint)) / n
	if matching > 0 {
		d += dc.WeightCoefficient * weightDiff / float64(matching)
	}
	return d
}

// Distance calculates the compatibility distance to another genome.
func (g *Genome) Distance(other *Genome, dc DistanceConfig) float64 {
	return Distance(g, other, dc)
}
