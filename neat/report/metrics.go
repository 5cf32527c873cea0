package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baldhumanity/neat-evo/neat"
)

// Metrics exports generation statistics as Prometheus metrics.
type Metrics struct {
	Generation       prometheus.Gauge
	BestFitness      prometheus.Gauge
	MeanFitness      prometheus.Gauge
	Species          prometheus.Gauge
	Innovations      prometheus.Gauge
	MeanLinks        prometheus.Gauge
	EvaluationErrors prometheus.Counter
	InvalidOffspring prometheus.Counter
	SpeciesBorn      prometheus.Counter
	SpeciesExtinct   prometheus.Counter
	Duration         prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "neat", Name: name, Help: help})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "neat", Name: name, Help: help})
	}
	m := &Metrics{
		Generation:       gauge("generation", "Last completed generation."),
		BestFitness:      gauge("best_fitness", "Best fitness of the last generation."),
		MeanFitness:      gauge("mean_fitness", "Mean fitness of the last generation."),
		Species:          gauge("species", "Number of species after speciation."),
		Innovations:      gauge("innovations", "Size of the innovation ledger."),
		MeanLinks:        gauge("mean_enabled_links", "Mean number of enabled links per genome."),
		EvaluationErrors: counter("evaluation_failures_total", "Evaluator calls that failed."),
		InvalidOffspring: counter("invalid_offspring_total", "Offspring replaced by a champion clone."),
		SpeciesBorn:      counter("species_born_total", "Species founded."),
		SpeciesExtinct:   counter("species_extinct_total", "Species removed for lack of members."),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neat",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one generation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{
		m.Generation, m.BestFitness, m.MeanFitness, m.Species, m.Innovations, m.MeanLinks,
		m.EvaluationErrors, m.InvalidOffspring, m.SpeciesBorn, m.SpeciesExtinct, m.Duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}
	return m, nil
}

// Report updates the collectors from one generation.
func (m *Metrics) Report(stats neat.GenerationStats) error {
	m.Generation.Set(float64(stats.Generation))
	m.BestFitness.Set(stats.BestFitness)
	m.MeanFitness.Set(stats.MeanFitness)
	m.Species.Set(float64(stats.SpeciesCount))
	m.Innovations.Set(float64(stats.Innovations))
	m.MeanLinks.Set(stats.MeanLinks)
	m.EvaluationErrors.Add(float64(stats.EvaluationErrors))
	m.InvalidOffspring.Add(float64(stats.InvalidOffspring))
	m.SpeciesBorn.Add(float64(stats.SpeciesBorn))
	m.SpeciesExtinct.Add(float64(stats.SpeciesExtinct))
	m.Duration.Observe(stats.Seconds)
	return nil
}
