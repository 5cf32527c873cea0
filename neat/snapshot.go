package neat

import (
	"fmt"
	"slices"

	"github.com/gofrs/uuid/v5"
)

// Snapshot is the serializable state of a population between generations:
// every genome, the species with their representatives and history, and the
// innovation ledger. It defines no byte format; checkpoints and stores pick
// their own encoding.
type Snapshot struct {
	RunID         string              `json:"run_id"`
	Generation    int                 `json:"generation"`
	NextGenomeID  uint64              `json:"next_genome_id"`
	NextSpeciesID uint32              `json:"next_species_id"`
	Layout        IOLayout            `json:"layout"`
	Genomes       []*Genome           `json:"genomes"`
	Species       []*Species          `json:"species"`
	Innovations   InnovationSnapshot  `json:"innovations"`
	BestGenome    *Genome             `json:"best_genome,omitempty"`
	Ancestors     map[uint64][]uint64 `json:"ancestors,omitempty"`
}

// Snapshot captures a deep copy of the population state. It must not be
// called while a generation is running.
func (p *Population) Snapshot() Snapshot {
	genomes := p.Genomes()
	snap := Snapshot{
		RunID:         p.RunID.String(),
		Generation:    p.Generation,
		NextGenomeID:  p.Reproduction.NextGenomeKey,
		NextSpeciesID: p.SpeciesSet.Indexer,
		Layout: IOLayout{
			Inputs:  slices.Clone(p.Layout.Inputs),
			Bias:    p.Layout.Bias,
			Outputs: slices.Clone(p.Layout.Outputs),
		},
		Genomes:     make([]*Genome, len(genomes)),
		Innovations: p.Innovations.Snapshot(),
		Ancestors:   make(map[uint64][]uint64, len(p.Reproduction.Ancestors)),
	}
	for i, g := range genomes {
		snap.Genomes[i] = g.Copy()
	}
	for _, sid := range p.SpeciesSet.SortedIDs() {
		s := *p.SpeciesSet.Species[sid]
		s.Representative = s.Representative.Copy()
		s.Members = slices.Clone(s.Members)
		s.FitnessHistory = slices.Clone(s.FitnessHistory)
		snap.Species = append(snap.Species, &s)
	}
	if p.BestGenome != nil {
		snap.BestGenome = p.BestGenome.Copy()
	}
	for id, parents := range p.Reproduction.Ancestors {
		snap.Ancestors[id] = slices.Clone(parents)
	}
	return snap
}

// Restore rebuilds a population from a snapshot. The configuration must
// match the one the snapshot was produced with; the random source is not
// part of the snapshot and comes from the options or the seed key.
func Restore(config *Config, snap Snapshot, opts ...Option) (*Population, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	scope, err := ParseResetScope(config.Neat.InnovationResetScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if scope != snap.Innovations.Scope {
		return nil, fmt.Errorf("%w: innovation_reset_scope is %s but snapshot was taken with %s", ErrConfiguration, scope, snap.Innovations.Scope)
	}
	if len(snap.Genomes) == 0 {
		return nil, fmt.Errorf("snapshot of run %s holds no genomes", snap.RunID)
	}
	if len(snap.Layout.Inputs) != config.Genome.NumInputs || len(snap.Layout.Outputs) != config.Genome.NumOutputs {
		return nil, fmt.Errorf("%w: snapshot layout has %d inputs and %d outputs, config has %d and %d",
			ErrConfiguration, len(snap.Layout.Inputs), len(snap.Layout.Outputs), config.Genome.NumInputs, config.Genome.NumOutputs)
	}

	if snap.RunID != "" {
		id, err := uuid.FromString(snap.RunID)
		if err != nil {
			return nil, fmt.Errorf("parsing run id: %w", err)
		}
		opts = append([]Option{WithRunID(id)}, opts...)
	}
	o, err := buildOptions(config, opts)
	if err != nil {
		return nil, err
	}
	db, err := RestoreInnovations(snap.Innovations)
	if err != nil {
		return nil, fmt.Errorf("restoring innovations: %w", err)
	}
	layout := IOLayout{
		Inputs:  slices.Clone(snap.Layout.Inputs),
		Bias:    snap.Layout.Bias,
		Outputs: slices.Clone(snap.Layout.Outputs),
	}
	p, err := assemble(config, db, layout, o)
	if err != nil {
		return nil, err
	}

	p.Population = make(map[uint64]*Genome, len(snap.Genomes))
	for _, g := range snap.Genomes {
		if _, dup := p.Population[g.ID]; dup {
			return nil, fmt.Errorf("snapshot holds genome %d twice", g.ID)
		}
		if g.ID >= snap.NextGenomeID {
			return nil, fmt.Errorf("genome %d not below next genome id %d", g.ID, snap.NextGenomeID)
		}
		if err := g.Validate(config.Genome.RecurrentAllowed); err != nil {
			return nil, err
		}
		p.Population[g.ID] = g.Copy()
	}
	for _, s := range snap.Species {
		if s.Representative == nil {
			return nil, fmt.Errorf("species %d has no representative", s.ID)
		}
		if s.ID >= snap.NextSpeciesID {
			return nil, fmt.Errorf("species %d not below next species id %d", s.ID, snap.NextSpeciesID)
		}
		c := *s
		c.Representative = s.Representative.Copy()
		c.Members = slices.Clone(s.Members)
		c.FitnessHistory = slices.Clone(s.FitnessHistory)
		p.SpeciesSet.Species[c.ID] = &c
		for _, gid := range c.Members {
			if _, ok := p.Population[gid]; !ok {
				return nil, fmt.Errorf("species %d lists genome %d missing from snapshot", c.ID, gid)
			}
			p.SpeciesSet.GenomeToSpecies[gid] = c.ID
		}
	}
	p.SpeciesSet.Indexer = max(snap.NextSpeciesID, 1)
	p.Reproduction.NextGenomeKey = snap.NextGenomeID
	for id, parents := range snap.Ancestors {
		p.Reproduction.Ancestors[id] = slices.Clone(parents)
	}
	p.Generation = snap.Generation
	if snap.BestGenome != nil {
		p.BestGenome = snap.BestGenome.Copy()
	}
	p.logger.Info("population restored", "generation", p.Generation, "genomes", len(p.Population), "species", len(p.SpeciesSet.Species))
	return p, nil
}
