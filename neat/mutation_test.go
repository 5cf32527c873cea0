package neat

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNeuronSplitPreservesFunction(t *testing.T) {
	cfg := testConfig()
	cfg.Neat.PopSize = 50
	cfg.Genome.BiasNeuron = false
	p, err := NewPopulation(cfg, WithRand(rand.New(rand.NewSource(3))), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, p.Population, 50)

	g := p.Genomes()[0]
	assert.Empty(t, func() []uint64 {
		var hidden []uint64
		for id, n := range g.Neurons {
			if n.Type == NeuronHidden {
				hidden = append(hidden, id)
			}
		}
		return hidden
	}())

	split := g.SortedLinks()[0]
	oldWeight := split.Weight
	neurons, links, enabled := len(g.Neurons), len(g.Links), g.EnabledLinkCount()

	n, err := p.Mutator().AddNeuron(g, split.Innovation)
	require.NoError(t, err)

	assert.Len(t, g.Neurons, neurons+1)
	assert.Len(t, g.Links, links+2)
	assert.Equal(t, enabled+1, g.EnabledLinkCount())
	assert.False(t, split.Enabled)
	assert.Equal(t, NeuronHidden, n.Type)

	in, ok := g.FindLink(split.From, n.ID)
	require.True(t, ok)
	out, ok := g.FindLink(n.ID, split.To)
	require.True(t, ok)
	assert.Equal(t, 1.0, in.Weight)
	assert.Equal(t, oldWeight, out.Weight)
	assert.Greater(t, n.SplitY, 0.0)
	assert.Less(t, n.SplitY, 1.0)
	require.NoError(t, g.Validate(false))
}

func TestSameSplitSharesNumbers(t *testing.T) {
	cfg := testConfig()
	g, db, m, layout := seeded(t, cfg, 1)
	h := NewGenome(2)
	require.NoError(t, h.ConfigureNew(layout, &cfg.Genome, db, m.rng))

	innov := g.SortedLinks()[0].Innovation
	ng, err := m.AddNeuron(g, innov)
	require.NoError(t, err)
	before := db.Len()
	nh, err := m.AddNeuron(h, innov)
	require.NoError(t, err)

	assert.Equal(t, ng.ID, nh.ID)
	assert.Equal(t, before, db.Len(), "second split of the same link records nothing new")
	for innov, l := range g.Links {
		other, ok := h.Links[innov]
		require.True(t, ok)
		assert.Equal(t, l.Key(), other.Key())
	}
}

func TestAddNeuronRejects(t *testing.T) {
	cfg := testConfig()
	g, db, m, _ := seeded(t, cfg, 1)

	_, err := m.AddNeuron(g, 999)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	l := g.SortedLinks()[0]
	l.Enabled = false
	before := db.Len()
	_, err = m.AddNeuron(g, l.Innovation)
	assert.ErrorIs(t, err, ErrInvalidMutation)
	assert.Equal(t, before, db.Len())
}

func TestAddLinkRejects(t *testing.T) {
	cfg := testConfig()
	g, db, m, layout := seeded(t, cfg, 1)
	in, out := layout.Inputs[0], layout.Outputs[0]
	before := db.Len()

	tests := []struct {
		name     string
		from, to uint64
	}{
		{"existing pair", in, out},
		{"into input", out, in},
		{"into bias", out, layout.Bias},
		{"missing neuron", in, 999},
		{"self loop", out, out},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddLink(g, tt.from, tt.to)
			assert.ErrorIs(t, err, ErrInvalidMutation)
		})
	}
	assert.Equal(t, before, db.Len(), "rejected requests leave no record")
}

func TestAddLinkRecurrence(t *testing.T) {
	for _, allowed := range []bool{false, true} {
		cfg := testConfig()
		cfg.Genome.RecurrentAllowed = allowed
		g, _, m, layout := seeded(t, cfg, 1)
		out := layout.Outputs[0]
		hidden, err := m.AddNeuron(g, g.SortedLinks()[0].Innovation)
		require.NoError(t, err)

		link, err := m.AddLink(g, out, hidden.ID)
		if !allowed {
			assert.ErrorIs(t, err, ErrInvalidMutation)
			require.NoError(t, g.Validate(false))
			continue
		}
		require.NoError(t, err)
		assert.True(t, link.Recurrent)
		require.NoError(t, g.Validate(true))
	}
}

func TestAddLinkToHidden(t *testing.T) {
	cfg := testConfig()
	g, _, m, layout := seeded(t, cfg, 1)
	hidden, err := m.AddNeuron(g, g.SortedLinks()[0].Innovation)
	require.NoError(t, err)

	var from uint64
	for _, id := range layout.Sources() {
		if _, linked := g.FindLink(id, hidden.ID); !linked {
			from = id
			break
		}
	}
	require.NotZero(t, from)
	link, err := m.AddLink(g, from, hidden.ID)
	require.NoError(t, err)
	assert.False(t, link.Recurrent)
	assert.True(t, link.Enabled)
	require.NoError(t, g.Validate(false))
}

func TestPerturbWeights(t *testing.T) {
	cfg := testConfig()
	cfg.Genome.WeightMutationProb = 1
	cfg.Genome.WeightMutationPolicy = "perturb"
	cfg.Genome.WeightMinValue = -1.2
	cfg.Genome.WeightMaxValue = 1.2
	g, _, m, _ := seeded(t, cfg, 1)

	disabled := g.SortedLinks()[0]
	disabled.Enabled = false
	kept := disabled.Weight

	for range 50 {
		assert.Equal(t, len(g.Links)-1, m.PerturbWeights(g))
	}
	assert.Equal(t, kept, disabled.Weight)
	for _, l := range g.Links {
		assert.GreaterOrEqual(t, l.Weight, -1.2)
		assert.LessOrEqual(t, l.Weight, 1.2)
	}
}

func TestToggleEnableRefusesCycle(t *testing.T) {
	cfg := testConfig()
	cfg.Genome.ToggleEnableProb = 1
	g := linkGenome(1, 0,
		LinkGene{Innovation: 1, From: 10, To: 11, Enabled: true},
		LinkGene{Innovation: 2, From: 11, To: 10, Enabled: false},
	)
	m, err := NewMutator(&cfg.Genome, NewInnovationDB(ScopeRunLifetime), rand.New(rand.NewSource(1)), quietLogger())
	require.NoError(t, err)

	for range 20 {
		m.ToggleEnable(g)
		require.NoError(t, g.Validate(false))
	}
}

func TestMutateKeepsGenomeValid(t *testing.T) {
	cfg := testConfig()
	cfg.Genome.AddLinkProb = 0.5
	cfg.Genome.AddNeuronProb = 0.5
	cfg.Genome.ToggleEnableProb = 0.2
	g, _, m, _ := seeded(t, cfg, 11)

	for range 200 {
		require.NoError(t, m.Mutate(g))
		require.NoError(t, g.Validate(false))
	}
	assert.Greater(t, len(g.Neurons), 4)
}

func FuzzMutationInvariants(f *testing.F) {
	f.Add(int64(1), uint8(40), false)
	f.Add(int64(99), uint8(200), true)
	f.Add(int64(5), uint8(30), false)
	f.Fuzz(func(t *testing.T, seed int64, steps uint8, recurrent bool) {
		cfg := testConfig()
		cfg.Genome.RecurrentAllowed = recurrent
		a, db, m, _ := seeded(t, cfg, seed)
		b := a.Clone(2)
		rng := rand.New(rand.NewSource(seed))

		mutate := func(g *Genome) {
			switch rng.Intn(4) {
			case 0:
				_, _ = m.MutateAddLink(g)
			case 1:
				_, _ = m.MutateAddNeuron(g)
			case 2:
				m.PerturbWeights(g)
			default:
				l := g.SortedLinks()[rng.Intn(len(g.Links))]
				if l.Enabled || recurrent {
					l.Enabled = !l.Enabled
				}
			}
			if err := g.Validate(recurrent); err != nil {
				t.Fatalf("invariant broken after mutation: %v", err)
			}
		}
		for range int(steps) {
			mutate(a)
			mutate(b)
		}
		matchesLedger := func(g *Genome) {
			for _, l := range g.Links {
				rec, ok := findInnovation(db.Ledger(), l.Innovation)
				if !ok || rec.Kind != InnovationLink || rec.From != l.From || rec.To != l.To {
					t.Fatalf("genome %d: link %d does not match the ledger", g.ID, l.Innovation)
				}
			}
		}
		matchesLedger(a)
		matchesLedger(b)

		// Breed the two lineages at equal and at unequal fitness.
		reproduction := cfg.Reproduction
		for i, fitness := range [][2]float64{{1, 1}, {2, 1}, {1, 2}} {
			a.Fitness, b.Fitness = fitness[0], fitness[1]
			child, err := Crossover(uint64(10+i), a, b, &reproduction, rng)
			if err != nil {
				t.Fatalf("crossover failed: %v", err)
			}
			// Endpoints and pair uniqueness hold regardless of cycles.
			if err := child.Validate(true); err != nil {
				t.Fatalf("invariant broken after crossover: %v", err)
			}
			if err := child.Validate(recurrent); err != nil && !errors.Is(err, ErrInvalidGenome) {
				t.Fatalf("unexpected validation error: %v", err)
			}
			matchesLedger(child)
		}
	})
}

func findInnovation(ledger []Innovation, id uint64) (Innovation, bool) {
	for _, rec := range ledger {
		if rec.ID == id {
			return rec, true
		}
	}
	return Innovation{}, false
}
