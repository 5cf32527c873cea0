package neat

import (
	"fmt"
	"math/rand"
)

// Crossover aligns the link genes of two parents by innovation and builds a
// new genome with the given id.
//
// Matching genes are inherited whole from a parent chosen uniformly at
// random; a disabled result is re-enabled with reenable_probability.
// Disjoint and excess genes come from the fitter parent, or, when fitness is
// equal, from either parent with disjoint_inclusion_probability. A gene whose
// (from,to) pair is already present in the child is skipped. The child holds
// every input, bias and output neuron plus each neuron an inherited link
// refers to, taking the fitter parent's version when both carry it.
func Crossover(childID uint64, a, b *Genome, cfg *ReproductionConfig, rng *rand.Rand) (*Genome, error) {
	best, other := a, b
	if b.Fitness > a.Fitness {
		best, other = b, a
	}
	equal := a.Fitness == b.Fitness

	child := NewGenome(childID)
	pairs := make(map[LinkKey]struct{})
	inherit := func(l *LinkGene) {
		if _, dup := pairs[l.Key()]; dup {
			return
		}
		pairs[l.Key()] = struct{}{}
		child.Links[l.Innovation] = l.Copy()
	}

	lb, lo := best.SortedLinks(), other.SortedLinks()
	i, j := 0, 0
	for i < len(lb) || j < len(lo) {
		switch {
		case j == len(lo) || (i < len(lb) && lb[i].Innovation < lo[j].Innovation):
			if !equal || rng.Float64() < cfg.DisjointInclusionProb {
				inherit(lb[i])
			}
			i++
		case i == len(lb) || lo[j].Innovation < lb[i].Innovation:
			if equal && rng.Float64() < cfg.DisjointInclusionProb {
				inherit(lo[j])
			}
			j++
		default:
			gene := lb[i]
			if rng.Float64() < 0.5 {
				gene = lo[j]
			}
			eitherDisabled := !lb[i].Enabled || !lo[j].Enabled
			before := len(child.Links)
			inherit(gene)
			if len(child.Links) > before && eitherDisabled {
				l := child.Links[gene.Innovation]
				if !l.Enabled && rng.Float64() < cfg.ReenableProb {
					l.Enabled = true
				}
			}
			i++
			j++
		}
	}

	neuron := func(id uint64) (*NeuronGene, bool) {
		if n, ok := best.Neurons[id]; ok {
			return n, true
		}
		n, ok := other.Neurons[id]
		return n, ok
	}
	for _, parent := range []*Genome{best, other} {
		for id, n := range parent.Neurons {
			if n.Type == NeuronHidden {
				continue
			}
			if _, have := child.Neurons[id]; !have {
				src, _ := neuron(id)
				child.Neurons[id] = src.Copy()
			}
		}
	}
	for _, l := range child.Links {
		for _, id := range [2]uint64{l.From, l.To} {
			if _, have := child.Neurons[id]; have {
				continue
			}
			src, ok := neuron(id)
			if !ok {
				return nil, fmt.Errorf("%w: link %d references neuron %d missing from both parents", ErrInvalidGenome, l.Innovation, id)
			}
			child.Neurons[id] = src.Copy()
		}
	}
	return child, nil
}
