package neat

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
)

// Reproduction handles the creation of new genomes, either from scratch or
// through crossover and mutation.
type Reproduction struct {
	Config        *ReproductionConfig
	NextGenomeKey uint64              // Next genome id; ids start at 1
	Ancestors     map[uint64][]uint64 // Genome id -> parent ids

	genomeConfig *GenomeConfig
	mutator      *Mutator
	rng          *rand.Rand
	logger       *slog.Logger
}

// NewReproduction creates a new reproduction manager.
func NewReproduction(config *ReproductionConfig, genomeConfig *GenomeConfig, mutator *Mutator, rng *rand.Rand, logger *slog.Logger) *Reproduction {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reproduction{
		Config:        config,
		NextGenomeKey: 1,
		Ancestors:     make(map[uint64][]uint64),
		genomeConfig:  genomeConfig,
		mutator:       mutator,
		rng:           rng,
		logger:        logger,
	}
}

// getNextKey gets the next available genome id and increments the counter.
func (r *Reproduction) getNextKey() uint64 {
	key := r.NextGenomeKey
	r.NextGenomeKey++
	return key
}

// CreateNewPopulation creates an initial population of minimal genomes.
func (r *Reproduction) CreateNewPopulation(layout IOLayout, db *InnovationDB, popSize int) (map[uint64]*Genome, error) {
	genomes := make(map[uint64]*Genome, popSize)
	for i := 0; i < popSize; i++ {
		g := NewGenome(r.getNextKey())
		if err := g.ConfigureNew(layout, r.genomeConfig, db, r.rng); err != nil {
			return nil, fmt.Errorf("seeding genome %d: %w", g.ID, err)
		}
		genomes[g.ID] = g
		r.Ancestors[g.ID] = nil
	}
	return genomes, nil
}

// ReproductionStats summarizes one reproduction step.
type ReproductionStats struct {
	Spawn            map[uint32]int // Offspring slots per eligible species
	StagnantSpecies  []uint32
	InvalidOffspring int // Offspring replaced by a champion clone
}

// Reproduce builds the next population from the speciated genomes.
//
// Stagnant species keep only their champion. The remaining slots are shared
// among eligible species in proportion to the sum of their members' adjusted
// fitness (f - min) / |species|, rounded by largest remainder so the new
// population has exactly popSize genomes. Each species copies its top
// elitism_count_per_species genomes unchanged and fills the rest with
// offspring of its top survival_threshold members.
func (r *Reproduction) Reproduce(speciesSet *SpeciesSet, genomes map[uint64]*Genome, stagnation []StagnationInfo, popSize int) (map[uint64]*Genome, ReproductionStats, error) {
	stats := ReproductionStats{Spawn: make(map[uint32]int)}
	newPopulation := make(map[uint64]*Genome, popSize)
	newAncestors := make(map[uint64][]uint64, popSize)

	var eligible, stagnant []*Species
	for _, info := range stagnation {
		if info.IsStagnant {
			stagnant = append(stagnant, info.Species)
			stats.StagnantSpecies = append(stats.StagnantSpecies, info.SpeciesID)
		} else {
			eligible = append(eligible, info.Species)
		}
	}
	if len(eligible) == 0 {
		r.logger.Warn("all species stagnant, keeping every species eligible", "species", len(stagnant))
		eligible, stagnant = stagnant, nil
		stats.StagnantSpecies = nil
	}

	// Stagnant species are removed from breeding; their champions survive.
	champions := make([]*Genome, 0, len(stagnant))
	for _, sp := range stagnant {
		if members := sp.SortedMembers(genomes); len(members) > 0 {
			champions = append(champions, members[0])
		}
		r.logger.Info("species removed due to stagnation",
			"species", sp.ID, "best_fitness_ever", sp.BestFitnessEver, "stagnant_for", sp.GenerationsSinceImprovement)
	}
	slices.SortStableFunc(champions, func(a, b *Genome) int { return compareFitness(b, a) })
	if len(champions) > popSize {
		champions = champions[:popSize]
	}
	for _, g := range champions {
		newPopulation[g.ID] = survivor(g)
		newAncestors[g.ID] = []uint64{g.ID}
	}
	slots := popSize - len(champions)

	// Fitness sharing.
	minFitness := math.Inf(1)
	for _, sp := range eligible {
		for _, f := range sp.GetFitnesses(genomes) {
			minFitness = math.Min(minFitness, f)
		}
	}
	shares := make([]float64, len(eligible))
	for i, sp := range eligible {
		size := float64(len(sp.Members))
		sum := 0.0
		for _, id := range sp.Members {
			g, ok := genomes[id]
			if !ok {
				continue
			}
			g.AdjustedFitness = (g.Fitness - minFitness) / size
			sum += g.AdjustedFitness
		}
		sp.AdjustedFitness = sum
		shares[i] = sum
	}
	spawn := computeSpawnAmounts(shares, slots)

	for i, sp := range eligible {
		n := spawn[i]
		stats.Spawn[sp.ID] = n
		if n == 0 {
			continue
		}
		members := sp.SortedMembers(genomes)
		if len(members) == 0 {
			return nil, stats, fmt.Errorf("species %d allotted %d offspring but has no members", sp.ID, n)
		}
		champion := members[0]

		elites := min(r.Config.ElitismPerSpecies, n, len(members))
		for _, g := range members[:elites] {
			newPopulation[g.ID] = survivor(g)
			newAncestors[g.ID] = []uint64{g.ID}
		}
		n -= elites

		cutoff := int(math.Ceil(r.Config.SurvivalThreshold * float64(len(members))))
		cutoff = min(max(cutoff, 1), len(members))
		parents := members[:cutoff]

		for ; n > 0; n-- {
			childID := r.getNextKey()
			child, lineage, err := r.breed(childID, parents)
			if err == nil {
				err = child.Validate(r.genomeConfig.RecurrentAllowed)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidGenome) {
					return nil, stats, err
				}
				r.logger.Warn("offspring discarded, cloning champion", "species", sp.ID, "genome", childID, "err", err)
				stats.InvalidOffspring++
				child, lineage = champion.Clone(childID), []uint64{champion.ID}
			}
			newPopulation[childID] = child
			newAncestors[childID] = lineage
		}
	}

	if len(newPopulation) != popSize {
		return nil, stats, fmt.Errorf("reproduction produced %d genomes, want %d", len(newPopulation), popSize)
	}
	r.Ancestors = newAncestors
	return newPopulation, stats, nil
}

// breed produces one mutated offspring from the parent pool.
func (r *Reproduction) breed(childID uint64, parents []*Genome) (*Genome, []uint64, error) {
	p1 := parents[r.rng.Intn(len(parents))]
	var child *Genome
	var lineage []uint64
	if len(parents) > 1 && r.rng.Float64() < r.Config.CrossoverProb {
		p2 := parents[r.rng.Intn(len(parents))]
		c, err := Crossover(childID, p1, p2, r.Config, r.rng)
		if err != nil {
			return nil, nil, err
		}
		child, lineage = c, []uint64{p1.ID, p2.ID}
	} else {
		child, lineage = p1.Clone(childID), []uint64{p1.ID}
	}
	if err := r.mutator.Mutate(child); err != nil {
		return nil, nil, err
	}
	return child, lineage, nil
}

// survivor copies a genome into the next generation under its own id.
func survivor(g *Genome) *Genome {
	c := g.Copy()
	c.Evaluated = false
	return c
}

// compareFitness orders genomes by fitness, ties by ascending id.
func compareFitness(a, b *Genome) int {
	switch {
	case a.Fitness < b.Fitness:
		return -1
	case a.Fitness > b.Fitness:
		return 1
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// computeSpawnAmounts splits total slots in proportion to shares using the
// largest remainder method. Ties in the remainder go to the lower index.
// When every share is zero the slots are split evenly.
func computeSpawnAmounts(shares []float64, total int) []int {
	spawn := make([]int, len(shares))
	if len(shares) == 0 || total <= 0 {
		return spawn
	}
	sum := 0.0
	for _, s := range shares {
		sum += s
	}
	weights := shares
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		weights = make([]float64, len(shares))
		for i := range weights {
			weights[i] = 1
		}
		sum = float64(len(shares))
	}

	remainders := make([]float64, len(weights))
	assigned := 0
	for i, w := range weights {
		quota := w / sum * float64(total)
		spawn[i] = int(math.Floor(quota))
		remainders[i] = quota - float64(spawn[i])
		assigned += spawn[i]
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case remainders[a] > remainders[b]:
			return -1
		case remainders[a] < remainders[b]:
			return 1
		}
		return 0
	})
	for i := 0; assigned < total; i = (i + 1) % len(order) {
		spawn[order[i]]++
		assigned++
	}
	return spawn
}
