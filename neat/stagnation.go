package neat

import (
	"fmt"
	"log/slog"
	"slices"
)

// Stagnation manages the detection of stagnant species.
type Stagnation struct {
	Config             *StagnationConfig
	SpeciesFitnessFunc func([]float64) float64
	logger             *slog.Logger
}

// NewStagnation creates a new stagnation manager.
func NewStagnation(config *StagnationConfig, logger *slog.Logger) (*Stagnation, error) {
	fn, ok := StatFunctions[config.SpeciesFitnessFunc]
	if !ok {
		return nil, fmt.Errorf("%w: invalid species_fitness_func '%s'", ErrConfiguration, config.SpeciesFitnessFunc)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stagnation{
		Config:             config,
		SpeciesFitnessFunc: fn,
		logger:             logger,
	}, nil
}

// StagnationInfo holds the results of the stagnation update for a single species.
type StagnationInfo struct {
	SpeciesID  uint32
	Species    *Species
	IsStagnant bool
}

// Update recomputes each species' fitness, its best fitness ever and the
// number of generations since it improved. A species is stagnant once that
// count reaches stagnation_limit, unless it ranks among the species_elitism
// fittest species. Results are ordered by species id.
func (s *Stagnation) Update(speciesSet *SpeciesSet, genomes map[uint64]*Genome, generation int) []StagnationInfo {
	ids := speciesSet.SortedIDs()
	result := make([]StagnationInfo, 0, len(ids))
	for _, sid := range ids {
		sp := speciesSet.Species[sid]
		fitnesses := sp.GetFitnesses(genomes)
		if len(fitnesses) > 0 {
			sp.Fitness = s.SpeciesFitnessFunc(fitnesses)
		} else {
			sp.Fitness = 0
		}
		sp.AdjustedFitness = 0

		if len(sp.FitnessHistory) == 0 || sp.Fitness > sp.BestFitnessEver {
			sp.BestFitnessEver = sp.Fitness
			sp.GenerationsSinceImprovement = 0
		} else {
			sp.GenerationsSinceImprovement++
		}
		sp.FitnessHistory = append(sp.FitnessHistory, sp.Fitness)
		result = append(result, StagnationInfo{SpeciesID: sid, Species: sp})
	}

	// Rank by fitness, fittest first; ties favour the older species.
	ranked := make([]int, len(result))
	for i := range ranked {
		ranked[i] = i
	}
	slices.SortStableFunc(ranked, func(a, b int) int {
		fa, fb := result[a].Species.Fitness, result[b].Species.Fitness
		switch {
		case fa > fb:
			return -1
		case fa < fb:
			return 1
		}
		return 0
	})
	for rank, idx := range ranked {
		sp := result[idx].Species
		if sp.GenerationsSinceImprovement < s.Config.StagnationLimit {
			continue
		}
		if rank < s.Config.SpeciesElitism {
			s.logger.Debug("species spared from stagnation",
				"species", sp.ID, "fitness", sp.Fitness, "stagnant_for", sp.GenerationsSinceImprovement)
			continue
		}
		result[idx].IsStagnant = true
	}
	return result
}
