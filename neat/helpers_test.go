package neat

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Neat.PopSize = 30
	cfg.Neat.Seed = 7
	cfg.Neat.EvaluationWorkers = 4
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seeded returns a minimal genome together with the database and mutator
// that produced it.
func seeded(t testing.TB, cfg *Config, seed int64) (*Genome, *InnovationDB, *Mutator, IOLayout) {
	t.Helper()
	db := NewInnovationDB(ScopeRunLifetime)
	layout, err := NewIOLayout(&cfg.Genome, db)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	g := NewGenome(1)
	require.NoError(t, g.ConfigureNew(layout, &cfg.Genome, db, rng))
	m, err := NewMutator(&cfg.Genome, db, rng, quietLogger())
	require.NoError(t, err)
	return g, db, m, layout
}

// linkGenome builds a genome from bare link genes, adding hidden neurons for
// every endpoint. Only useful for distance and crossover arithmetic.
func linkGenome(id uint64, fitness float64, links ...LinkGene) *Genome {
	g := NewGenome(id)
	g.Fitness = fitness
	for _, l := range links {
		g.Links[l.Innovation] = &l
		for _, nid := range []uint64{l.From, l.To} {
			if _, ok := g.Neurons[nid]; !ok {
				g.Neurons[nid] = &NeuronGene{ID: nid, Type: NeuronHidden, Activation: "sigmoid", ActivationSlope: 1, Enabled: true}
			}
		}
	}
	return g
}
