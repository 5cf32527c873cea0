package neat

import (
	"fmt"
	"math"
	"math/rand"
)

// NeuronType tags the role of a neuron gene.
type NeuronType int

const (
	NeuronInput NeuronType = iota
	NeuronOutput
	NeuronHidden
	NeuronBias
)

func (t NeuronType) String() string {
	switch t {
	case NeuronInput:
		return "input"
	case NeuronOutput:
		return "output"
	case NeuronHidden:
		return "hidden"
	case NeuronBias:
		return "bias"
	default:
		return fmt.Sprintf("NeuronType(%d)", int(t))
	}
}

// IsSource reports whether neurons of this type never receive links.
func (t NeuronType) IsSource() bool {
	return t == NeuronInput || t == NeuronBias
}

// --------------------------- NeuronGene ---------------------------

// NeuronGene represents a neuron in the genome.
type NeuronGene struct {
	ID              uint64     `json:"id"`
	Type            NeuronType `json:"type"`
	Activation      string     `json:"activation"`
	ActivationSlope float64    `json:"activation_slope"`
	SplitX          float64    `json:"split_x"` // Horizontal position within its layer
	SplitY          float64    `json:"split_y"` // Depth: inputs and bias at 0, outputs at 1
	Enabled         bool       `json:"enabled"`
}

// String returns a string representation of the NeuronGene.
func (ng *NeuronGene) String() string {
	return fmt.Sprintf("NeuronGene(ID: %d, Type: %s, Activation: %s, Split: %.3f/%.3f, Enabled: %t)",
		ng.ID, ng.Type, ng.Activation, ng.SplitX, ng.SplitY, ng.Enabled)
}

// Copy creates a deep copy of the NeuronGene.
func (ng *NeuronGene) Copy() *NeuronGene {
	c := *ng
	return &c
}

// --------------------------- LinkGene ---------------------------

// LinkGene represents a weighted connection between two neurons.
// Innovation is the crossover alignment key.
type LinkGene struct {
	Innovation uint64  `json:"innovation"`
	From       uint64  `json:"from"`
	To         uint64  `json:"to"`
	Weight     float64 `json:"weight"`
	Enabled    bool    `json:"enabled"`
	Recurrent  bool    `json:"recurrent"`
}

// Key returns the (from,to) pair of the link.
func (lg *LinkGene) Key() LinkKey {
	return LinkKey{From: lg.From, To: lg.To}
}

// String returns a string representation of the LinkGene.
func (lg *LinkGene) String() string {
	return fmt.Sprintf("LinkGene(Innovation: %d, %d->%d, Weight: %.3f, Enabled: %t, Recurrent: %t)",
		lg.Innovation, lg.From, lg.To, lg.Weight, lg.Enabled, lg.Recurrent)
}

// Copy creates a deep copy of the LinkGene.
func (lg *LinkGene) Copy() *LinkGene {
	c := *lg
	return &c
}

// --------------------------- Attribute Helpers ---------------------------

// initFloatAttribute draws a value from the configured initial distribution.
// "uniform" covers mean ± 2·stdev.
func initFloatAttribute(rng *rand.Rand, mean, stdev float64, initType string, minVal, maxVal float64) float64 {
	var val float64
	switch initType {
	case "uniform":
		rangeMin := math.Max(minVal, mean-(2*stdev))
		rangeMax := math.Min(maxVal, mean+(2*stdev))
		if rangeMax < rangeMin {
			rangeMax = rangeMin
		}
		val = rng.Float64()*(rangeMax-rangeMin) + rangeMin
	default:
		val = rng.NormFloat64()*stdev + mean
	}
	return clamp(val, minVal, maxVal)
}

// perturbation returns noise bounded by magnitude.
func perturbation(rng *rand.Rand, magnitude float64, perturbType string) float64 {
	if perturbType == "uniform" {
		return (rng.Float64()*2 - 1) * magnitude
	}
	return clamp(rng.NormFloat64()*magnitude, -magnitude, magnitude)
}

// newWeight draws an initial link weight.
func newWeight(rng *rand.Rand, cfg *GenomeConfig) float64 {
	return initFloatAttribute(rng, cfg.WeightInitMean, cfg.WeightInitStdev, cfg.WeightInitType, cfg.WeightMinValue, cfg.WeightMaxValue)
}
