package neat

import (
	"log/slog"
	"time"
)

// GenerationStats holds the summary of one completed generation.
type GenerationStats struct {
	RunID      string `csv:"run_id"`
	Generation int    `csv:"generation"`

	// Fitness distribution of the evaluated population
	PopulationSize int     `csv:"population"`
	BestFitness    float64 `csv:"best_fitness"`
	MeanFitness    float64 `csv:"mean_fitness"`
	StdevFitness   float64 `csv:"stdev_fitness"`
	MedianFitness  float64 `csv:"median_fitness"`

	// Champion of the generation
	BestGenomeID uint64 `csv:"best_genome"`
	BestNeurons  int    `csv:"best_neurons"`
	BestLinks    int    `csv:"best_links"` // Enabled links only

	// Structure
	MeanNeurons float64 `csv:"mean_neurons"`
	MeanLinks   float64 `csv:"mean_links"`
	Innovations int     `csv:"innovations"` // Ledger size after reproduction

	// Species
	SpeciesCount     int     `csv:"species"`
	SpeciesBorn      int     `csv:"species_born"`
	SpeciesExtinct   int     `csv:"species_extinct"`
	StagnantSpecies  int     `csv:"species_stagnant"`
	MeanDistance     float64 `csv:"mean_distance"`
	StdevDistance    float64 `csv:"stdev_distance"`
	SpeciesSizes     []int   `csv:"-"`
	EvaluationErrors int     `csv:"evaluation_failures"`
	InvalidOffspring int     `csv:"invalid_offspring"`

	Duration time.Duration `csv:"-"`
	Seconds  float64       `csv:"seconds"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("population", s.PopulationSize),
		slog.Float64("best_fitness", s.BestFitness),
		slog.Float64("mean_fitness", s.MeanFitness),
		slog.Float64("stdev_fitness", s.StdevFitness),
		slog.Uint64("best_genome", s.BestGenomeID),
		slog.Int("best_neurons", s.BestNeurons),
		slog.Int("best_links", s.BestLinks),
		slog.Int("species", s.SpeciesCount),
		slog.Int("species_born", s.SpeciesBorn),
		slog.Int("species_extinct", s.SpeciesExtinct),
		slog.Int("species_stagnant", s.StagnantSpecies),
		slog.Int("innovations", s.Innovations),
		slog.Int("evaluation_failures", s.EvaluationErrors),
		slog.Int("invalid_offspring", s.InvalidOffspring),
		slog.Duration("duration", s.Duration),
	)
}

// Reporter receives the statistics of every completed generation.
type Reporter interface {
	Report(stats GenerationStats) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(stats GenerationStats) error

// Report calls f(stats).
func (f ReporterFunc) Report(stats GenerationStats) error {
	return f(stats)
}
