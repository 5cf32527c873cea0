package neat

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
)

// WeightPolicy selects how a weight mutation changes a link weight.
type WeightPolicy int

const (
	// PolicyPerturb adds bounded noise to the current weight.
	PolicyPerturb WeightPolicy = iota
	// PolicyReset replaces the weight with a fresh draw.
	PolicyReset
	// PolicyMixed resets with weight_replace_rate and perturbs otherwise.
	PolicyMixed
)

func (p WeightPolicy) String() string {
	switch p {
	case PolicyPerturb:
		return "perturb"
	case PolicyReset:
		return "reset"
	case PolicyMixed:
		return "mixed"
	default:
		return fmt.Sprintf("WeightPolicy(%d)", int(p))
	}
}

// ParseWeightPolicy converts a config value to a WeightPolicy.
func ParseWeightPolicy(s string) (WeightPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "perturb", "hot":
		return PolicyPerturb, nil
	case "reset", "cold":
		return PolicyReset, nil
	case "mixed", "":
		return PolicyMixed, nil
	default:
		return PolicyMixed, fmt.Errorf("invalid weight_mutation_policy '%s', must be 'perturb', 'reset' or 'mixed'", s)
	}
}

// Mutator applies mutation operators to genomes. Every structural change
// obtains its numbers from the shared InnovationDB; feasibility is checked
// before the database is consulted, so rejected requests leave no record.
type Mutator struct {
	cfg    *GenomeConfig
	policy WeightPolicy
	db     *InnovationDB
	rng    *rand.Rand
	logger *slog.Logger
}

// NewMutator creates a Mutator. A nil logger uses slog.Default().
func NewMutator(cfg *GenomeConfig, db *InnovationDB, rng *rand.Rand, logger *slog.Logger) (*Mutator, error) {
	policy, err := ParseWeightPolicy(cfg.WeightMutationPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{cfg: cfg, policy: policy, db: db, rng: rng, logger: logger}, nil
}

// AddLink adds a link from -> to. It returns ErrInvalidMutation when an
// endpoint is missing or disabled, the target is an input or bias neuron,
// the pair is already linked, or the link would close a cycle while
// recurrence is disallowed.
func (m *Mutator) AddLink(g *Genome, from, to uint64) (*LinkGene, error) {
	src, ok := g.Neurons[from]
	if !ok || !src.Enabled {
		return nil, fmt.Errorf("%w: source neuron %d missing or disabled", ErrInvalidMutation, from)
	}
	dst, ok := g.Neurons[to]
	if !ok || !dst.Enabled {
		return nil, fmt.Errorf("%w: target neuron %d missing or disabled", ErrInvalidMutation, to)
	}
	if dst.Type.IsSource() {
		return nil, fmt.Errorf("%w: cannot link into %s neuron %d", ErrInvalidMutation, dst.Type, to)
	}
	if _, exists := g.FindLink(from, to); exists {
		return nil, fmt.Errorf("%w: link %d->%d already exists", ErrInvalidMutation, from, to)
	}
	recurrent := createsCycle(g, from, to)
	if recurrent && !m.cfg.RecurrentAllowed {
		return nil, fmt.Errorf("%w: link %d->%d would create a cycle", ErrInvalidMutation, from, to)
	}

	innov, err := m.db.LinkInnovation(from, to)
	if err != nil {
		return nil, err
	}
	if _, taken := g.Links[innov]; taken {
		return nil, fmt.Errorf("%w: innovation %d already present in genome %d", ErrInvalidGenome, innov, g.ID)
	}
	link := &LinkGene{
		Innovation: innov,
		From:       from,
		To:         to,
		Weight:     newWeight(m.rng, m.cfg),
		Enabled:    true,
		Recurrent:  recurrent,
	}
	g.Links[innov] = link
	return link, nil
}

// AddNeuron splits the enabled link with the given innovation. The link is
// disabled and replaced by from -> new (weight 1.0) and new -> to (the old
// weight), so the phenotype's immediate behaviour is unchanged.
func (m *Mutator) AddNeuron(g *Genome, innovation uint64) (*NeuronGene, error) {
	link, ok := g.Links[innovation]
	if !ok {
		return nil, fmt.Errorf("%w: genome %d has no link %d", ErrInvalidMutation, g.ID, innovation)
	}
	if !link.Enabled {
		return nil, fmt.Errorf("%w: link %d is disabled", ErrInvalidMutation, innovation)
	}
	src, okFrom := g.Neurons[link.From]
	dst, okTo := g.Neurons[link.To]
	if !okFrom || !okTo {
		return nil, fmt.Errorf("%w: link %d has a dangling endpoint", ErrInvalidGenome, innovation)
	}
	if id, seen := m.db.LookupNeuronInnovation(innovation); seen {
		if _, has := g.Neurons[id]; has {
			return nil, fmt.Errorf("%w: link %d was already split into neuron %d", ErrInvalidMutation, innovation, id)
		}
	}

	neuronID, _, err := m.db.NeuronInnovation(innovation)
	if err != nil {
		return nil, err
	}
	inInnov, err := m.db.LinkInnovation(link.From, neuronID)
	if err != nil {
		return nil, err
	}
	outInnov, err := m.db.LinkInnovation(neuronID, link.To)
	if err != nil {
		return nil, err
	}

	link.Enabled = false
	neuron := &NeuronGene{
		ID:              neuronID,
		Type:            NeuronHidden,
		Activation:      m.cfg.HiddenActivation,
		ActivationSlope: m.cfg.ActivationSlope,
		SplitX:          (src.SplitX + dst.SplitX) / 2,
		SplitY:          (src.SplitY + dst.SplitY) / 2,
		Enabled:         true,
	}
	g.Neurons[neuronID] = neuron
	g.Links[inInnov] = &LinkGene{
		Innovation: inInnov,
		From:       link.From,
		To:         neuronID,
		Weight:     1.0,
		Enabled:    true,
	}
	g.Links[outInnov] = &LinkGene{
		Innovation: outInnov,
		From:       neuronID,
		To:         link.To,
		Weight:     link.Weight,
		Enabled:    true,
		Recurrent:  link.Recurrent,
	}
	return neuron, nil
}

// PerturbWeights mutates each enabled link with weight_mutation_probability
// and returns the number of weights changed.
func (m *Mutator) PerturbWeights(g *Genome) int {
	changed := 0
	for _, l := range g.SortedLinks() {
		if !l.Enabled || m.rng.Float64() >= m.cfg.WeightMutationProb {
			continue
		}
		reset := m.policy == PolicyReset ||
			(m.policy == PolicyMixed && m.rng.Float64() < m.cfg.WeightReplaceRate)
		if reset {
			l.Weight = newWeight(m.rng, m.cfg)
		} else {
			l.Weight = clamp(l.Weight+perturbation(m.rng, m.cfg.WeightPerturbMagnitude, m.cfg.WeightPerturbType),
				m.cfg.WeightMinValue, m.cfg.WeightMaxValue)
		}
		changed++
	}
	return changed
}

// ToggleEnable flips the enabled bit of one random link with
// toggle_enable_probability. Enabling a link that would close a forbidden
// cycle is refused. It reports whether a link changed.
func (m *Mutator) ToggleEnable(g *Genome) bool {
	if len(g.Links) == 0 || m.rng.Float64() >= m.cfg.ToggleEnableProb {
		return false
	}
	links := g.SortedLinks()
	l := links[m.rng.Intn(len(links))]
	if !l.Enabled && !m.cfg.RecurrentAllowed && createsCycle(g, l.From, l.To) {
		return false
	}
	l.Enabled = !l.Enabled
	return true
}

// MutateAddLink tries random neuron pairs until AddLink succeeds or the
// attempt limit is reached.
func (m *Mutator) MutateAddLink(g *Genome) (*LinkGene, error) {
	var sources, targets []uint64
	for _, id := range g.NeuronIDs() {
		n := g.Neurons[id]
		if !n.Enabled {
			continue
		}
		sources = append(sources, id)
		if !n.Type.IsSource() {
			targets = append(targets, id)
		}
	}
	if len(sources) == 0 || len(targets) == 0 {
		return nil, fmt.Errorf("%w: genome %d has no candidate endpoints", ErrInvalidMutation, g.ID)
	}
	for i := 0; i < m.cfg.StructuralMutationAttempts; i++ {
		from := sources[m.rng.Intn(len(sources))]
		to := targets[m.rng.Intn(len(targets))]
		link, err := m.AddLink(g, from, to)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, ErrInvalidMutation) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no feasible link in genome %d after %d attempts", ErrInvalidMutation, g.ID, m.cfg.StructuralMutationAttempts)
}

// MutateAddNeuron tries random enabled links until AddNeuron succeeds or the
// attempt limit is reached.
func (m *Mutator) MutateAddNeuron(g *Genome) (*NeuronGene, error) {
	var candidates []uint64
	for _, l := range g.SortedLinks() {
		if l.Enabled {
			candidates = append(candidates, l.Innovation)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: genome %d has no enabled link to split", ErrInvalidMutation, g.ID)
	}
	for i := 0; i < m.cfg.StructuralMutationAttempts; i++ {
		neuron, err := m.AddNeuron(g, candidates[m.rng.Intn(len(candidates))])
		if err == nil {
			return neuron, nil
		}
		if !errors.Is(err, ErrInvalidMutation) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no splittable link in genome %d after %d attempts", ErrInvalidMutation, g.ID, m.cfg.StructuralMutationAttempts)
}

// Mutate applies the configured mix of structural and weight mutations to g
// in place. Infeasible structural mutations are skipped.
func (m *Mutator) Mutate(g *Genome) error {
	structural := false

	if m.rng.Float64() < m.cfg.AddNeuronProb {
		if _, err := m.MutateAddNeuron(g); err != nil {
			if !errors.Is(err, ErrInvalidMutation) {
				return err
			}
			m.logger.Debug("add neuron skipped", "genome", g.ID, "err", err)
		} else {
			structural = true
		}
	}

	if !m.cfg.SingleStructuralMutation || !structural {
		if m.rng.Float64() < m.cfg.AddLinkProb {
			if _, err := m.MutateAddLink(g); err != nil {
				if !errors.Is(err, ErrInvalidMutation) {
					return err
				}
				m.logger.Debug("add link skipped", "genome", g.ID, "err", err)
			}
		}
	}

	m.PerturbWeights(g)
	m.ToggleEnable(g)
	return nil
}
