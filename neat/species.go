package neat

import (
	"log/slog"
	"math/rand"
	"slices"
)

// Species represents a group of genetically similar genomes.
// Representative is a private copy taken from the genome RepresentativeID;
// it is never a member of the population. Members holds genome ids in
// ascending order.
type Species struct {
	ID                          uint32    `json:"id"`
	Created                     int       `json:"created"`
	Representative              *Genome   `json:"representative"`
	RepresentativeID            uint64    `json:"representative_id"`
	Members                     []uint64  `json:"members"`
	BestFitnessEver             float64   `json:"best_fitness_ever"`
	GenerationsSinceImprovement int       `json:"generations_since_improvement"`
	Fitness                     float64   `json:"fitness"`
	AdjustedFitness             float64   `json:"adjusted_fitness"`
	FitnessHistory              []float64 `json:"fitness_history"`
}

// NewSpecies creates a species founded by rep in the given generation.
func NewSpecies(id uint32, generation int, rep *Genome) *Species {
	return &Species{
		ID:               id,
		Created:          generation,
		Representative:   rep.Copy(),
		RepresentativeID: rep.ID,
	}
}

// GetFitnesses returns the fitness values of all members.
func (s *Species) GetFitnesses(genomes map[uint64]*Genome) []float64 {
	fitnesses := make([]float64, 0, len(s.Members))
	for _, id := range s.Members {
		if g, ok := genomes[id]; ok {
			fitnesses = append(fitnesses, g.Fitness)
		}
	}
	return fitnesses
}

// SortedMembers returns the members by descending fitness, ties by id.
func (s *Species) SortedMembers(genomes map[uint64]*Genome) []*Genome {
	members := make([]*Genome, 0, len(s.Members))
	for _, id := range s.Members {
		if g, ok := genomes[id]; ok {
			members = append(members, g)
		}
	}
	slices.SortStableFunc(members, func(a, b *Genome) int {
		switch {
		case a.Fitness > b.Fitness:
			return -1
		case a.Fitness < b.Fitness:
			return 1
		}
		return 0
	})
	return members
}

// --------------------------- GenomeDistanceCache ---------------------------

// GenomeDistanceCache stores distances between genome pairs for one
// speciation pass.
type GenomeDistanceCache struct {
	Distances map[[2]uint64]float64
	Hits      int
	Misses    int
	config    DistanceConfig
}

// NewGenomeDistanceCache creates a new distance cache.
func NewGenomeDistanceCache(config DistanceConfig) *GenomeDistanceCache {
	return &GenomeDistanceCache{
		Distances: make(map[[2]uint64]float64),
		config:    config,
	}
}

// Distance calculates or retrieves the distance between two genomes.
func (dc *GenomeDistanceCache) Distance(a, b *Genome) float64 {
	key := [2]uint64{a.ID, b.ID}
	if key[0] > key[1] {
		key[0], key[1] = key[1], key[0]
	}
	if d, ok := dc.Distances[key]; ok {
		dc.Hits++
		return d
	}
	dc.Misses++
	d := Distance(a, b, dc.config)
	dc.Distances[key] = d
	return d
}

// --------------------------- SpeciesSet ---------------------------

// SpeciesSet manages the collection of species within a population.
type SpeciesSet struct {
	Species         map[uint32]*Species
	GenomeToSpecies map[uint64]uint32
	Indexer         uint32 // Next species id; ids start at 1
	config          *SpeciesSetConfig
	logger          *slog.Logger
}

// NewSpeciesSet creates a new species set manager.
func NewSpeciesSet(config *SpeciesSetConfig, logger *slog.Logger) *SpeciesSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeciesSet{
		Species:         make(map[uint32]*Species),
		GenomeToSpecies: make(map[uint64]uint32),
		Indexer:         1,
		config:          config,
		logger:          logger,
	}
}

// SpeciationResult summarizes one speciation pass.
type SpeciationResult struct {
	Born      []uint32
	Extinct   []uint32
	MeanDist  float64
	StdevDist float64
}

// SortedIDs returns the species ids in ascending order.
func (ss *SpeciesSet) SortedIDs() []uint32 {
	ids := make([]uint32, 0, len(ss.Species))
	for id := range ss.Species {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Speciate partitions genomes into species. Genomes are visited by
// ascending id and join the first species, by ascending id, whose
// representative lies within compatibility_threshold; otherwise they found a
// new species. Representatives are not changed for existing species, so
// repeating the pass on an unchanged population yields the same assignment.
// Species left without members are removed.
func (ss *SpeciesSet) Speciate(genomes map[uint64]*Genome, generation int) SpeciationResult {
	var res SpeciationResult
	cache := NewGenomeDistanceCache(ss.config.Distance())

	order := ss.SortedIDs()
	members := make(map[uint32][]uint64, len(order))
	genomeToSpecies := make(map[uint64]uint32, len(genomes))

	ids := make([]uint64, 0, len(genomes))
	for id := range genomes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, gid := range ids {
		g := genomes[gid]
		assigned := uint32(0)
		for _, sid := range order {
			if cache.Distance(ss.Species[sid].Representative, g) <= ss.config.CompatibilityThreshold {
				assigned = sid
				break
			}
		}
		if assigned == 0 {
			assigned = ss.Indexer
			ss.Indexer++
			ss.Species[assigned] = NewSpecies(assigned, generation, g)
			order = append(order, assigned)
			res.Born = append(res.Born, assigned)
			ss.logger.Debug("species created", "species", assigned, "representative", gid, "generation", generation)
		}
		members[assigned] = append(members[assigned], gid)
		genomeToSpecies[gid] = assigned
		g.SpeciesID = assigned
	}

	for _, sid := range order {
		s := ss.Species[sid]
		if len(members[sid]) == 0 {
			delete(ss.Species, sid)
			res.Extinct = append(res.Extinct, sid)
			ss.logger.Debug("species extinct", "species", sid, "generation", generation)
			continue
		}
		s.Members = members[sid]
	}
	ss.GenomeToSpecies = genomeToSpecies

	if len(cache.Distances) > 0 {
		all := make([]float64, 0, len(cache.Distances))
		for _, d := range cache.Distances {
			all = append(all, d)
		}
		res.MeanDist = Mean(all)
		res.StdevDist = Stdev(all)
	}
	return res
}

// RefreshRepresentatives picks a random member of each species as its
// representative for the next speciation pass. genomes must still hold the
// members assigned by the last Speciate call.
func (ss *SpeciesSet) RefreshRepresentatives(genomes map[uint64]*Genome, rng *rand.Rand) {
	for _, sid := range ss.SortedIDs() {
		s := ss.Species[sid]
		if len(s.Members) == 0 {
			continue
		}
		id := s.Members[rng.Intn(len(s.Members))]
		g, ok := genomes[id]
		if !ok {
			continue
		}
		s.Representative = g.Copy()
		s.RepresentativeID = id
	}
}

// GetSpeciesID returns the species ID for a given genome ID.
func (ss *SpeciesSet) GetSpeciesID(genomeID uint64) (uint32, bool) {
	sid, exists := ss.GenomeToSpecies[genomeID]
	return sid, exists
}

// GetSpecies returns the Species object for a given genome ID.
func (ss *SpeciesSet) GetSpecies(genomeID uint64) (*Species, bool) {
	sid, exists := ss.GenomeToSpecies[genomeID]
	if !exists {
		return nil, false
	}
	s, exists := ss.Species[sid]
	return s, exists
}
