package neat

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSpawnAmounts(t *testing.T) {
	tests := []struct {
		name   string
		shares []float64
		total  int
		want   []int
	}{
		{"proportional", []float64{1, 3}, 8, []int{2, 6}},
		{"largest remainder", []float64{1, 1, 1}, 10, []int{4, 3, 3}},
		{"all zero", []float64{0, 0}, 5, []int{3, 2}},
		{"zero total", []float64{1, 2}, 0, []int{0, 0}},
		{"remainders by size", []float64{0.45, 0.35, 0.2}, 10, []int{5, 3, 2}},
		{"none", nil, 4, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeSpawnAmounts(tt.shares, tt.total)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeSpawnAmountsSumsToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 200 {
		shares := make([]float64, 1+rng.Intn(12))
		for i := range shares {
			if rng.Intn(4) > 0 {
				shares[i] = rng.Float64() * 10
			}
		}
		total := rng.Intn(300)
		sum := 0
		for _, n := range computeSpawnAmounts(shares, total) {
			require.GreaterOrEqual(t, n, 0)
			sum += n
		}
		require.Equal(t, total, sum)
	}
}

// scoredPopulation returns a population whose genomes have been scored by
// score and speciated.
func scoredPopulation(t *testing.T, cfg *Config, score func(g *Genome) float64) *Population {
	t.Helper()
	p, err := NewPopulation(cfg, WithRand(rand.New(rand.NewSource(cfg.Neat.Seed))), WithLogger(quietLogger()))
	require.NoError(t, err)
	for _, g := range p.Population {
		g.Fitness = score(g)
		g.Evaluated = true
	}
	p.SpeciesSet.Speciate(p.Population, 0)
	return p
}

func TestReproduceProducesExactPopulation(t *testing.T) {
	cfg := testConfig()
	cfg.Neat.PopSize = 37
	cfg.SpeciesSet.CompatibilityThreshold = 0.1
	p := scoredPopulation(t, cfg, func(g *Genome) float64 { return float64(g.ID % 5) })
	require.Greater(t, len(p.SpeciesSet.Species), 1)

	firstNew := p.Reproduction.NextGenomeKey
	info := p.Stagnation.Update(p.SpeciesSet, p.Population, 0)
	next, stats, err := p.Reproduction.Reproduce(p.SpeciesSet, p.Population, info, cfg.Neat.PopSize)
	require.NoError(t, err)
	assert.Len(t, next, cfg.Neat.PopSize)

	spawned := 0
	for _, n := range stats.Spawn {
		spawned += n
	}
	assert.Equal(t, cfg.Neat.PopSize, spawned)

	for id, g := range next {
		assert.Equal(t, id, g.ID)
		assert.False(t, g.Evaluated)
		require.NoError(t, g.Validate(false))
		if id < firstNew {
			old, ok := p.Population[id]
			require.True(t, ok, "surviving genome %d must be an elite", id)
			assert.Equal(t, old.Links, g.Links, "elites are copied unchanged")
		}
		assert.Contains(t, p.Reproduction.Ancestors, id)
	}

	// Each species' champion survives as an elite.
	for sid, n := range stats.Spawn {
		if n == 0 {
			continue
		}
		champion := p.SpeciesSet.Species[sid].SortedMembers(p.Population)[0]
		assert.Contains(t, next, champion.ID)
	}
}

func TestReproduceStagnantSpeciesKeepsChampion(t *testing.T) {
	cfg := testConfig()
	cfg.Neat.PopSize = 20
	cfg.SpeciesSet.CompatibilityThreshold = 0.1
	p := scoredPopulation(t, cfg, func(g *Genome) float64 { return float64(g.ID) })
	ids := p.SpeciesSet.SortedIDs()
	require.Greater(t, len(ids), 1)

	info := p.Stagnation.Update(p.SpeciesSet, p.Population, 0)
	info[0].IsStagnant = true
	stagnant := p.SpeciesSet.Species[ids[0]]
	champion := stagnant.SortedMembers(p.Population)[0]

	next, stats, err := p.Reproduction.Reproduce(p.SpeciesSet, p.Population, info, cfg.Neat.PopSize)
	require.NoError(t, err)
	assert.Len(t, next, cfg.Neat.PopSize)
	assert.Equal(t, []uint32{ids[0]}, stats.StagnantSpecies)
	assert.NotContains(t, stats.Spawn, ids[0])
	assert.Contains(t, next, champion.ID)
	for _, gid := range stagnant.Members {
		if gid != champion.ID {
			assert.NotContains(t, next, gid)
		}
	}
}

func TestReproduceAllStagnantKeepsBreeding(t *testing.T) {
	cfg := testConfig()
	p := scoredPopulation(t, cfg, func(g *Genome) float64 { return 1 })
	info := p.Stagnation.Update(p.SpeciesSet, p.Population, 0)
	for i := range info {
		info[i].IsStagnant = true
	}
	next, stats, err := p.Reproduction.Reproduce(p.SpeciesSet, p.Population, info, cfg.Neat.PopSize)
	require.NoError(t, err)
	assert.Len(t, next, cfg.Neat.PopSize)
	assert.Empty(t, stats.StagnantSpecies)
}

func TestReproduceReplacesCyclicOffspringWithChampion(t *testing.T) {
	cfg := testConfig()
	cfg.Reproduction.ElitismPerSpecies = 0
	cfg.Reproduction.SurvivalThreshold = 1
	cfg.Reproduction.CrossoverProb = 1
	cfg.Reproduction.DisjointInclusionProb = 1
	cfg.Genome.AddNeuronProb = 0
	cfg.Genome.AddLinkProb = 0
	cfg.Genome.WeightMutationProb = 0
	cfg.Genome.ToggleEnableProb = 0
	cfg.SpeciesSet.CompatibilityThreshold = 100

	// Equal fitness: a child of both parents inherits 5->6 and 6->5.
	a := linkGenome(1, 1, LinkGene{Innovation: 10, From: 5, To: 6, Weight: 1, Enabled: true})
	b := linkGenome(2, 1, LinkGene{Innovation: 11, From: 6, To: 5, Weight: 1, Enabled: true})
	genomes := map[uint64]*Genome{1: a, 2: b}

	rng := rand.New(rand.NewSource(4))
	mutator, err := NewMutator(&cfg.Genome, NewInnovationDB(ScopeRunLifetime), rng, quietLogger())
	require.NoError(t, err)
	r := NewReproduction(&cfg.Reproduction, &cfg.Genome, mutator, rng, quietLogger())
	r.NextGenomeKey = 3

	ss := NewSpeciesSet(&cfg.SpeciesSet, quietLogger())
	ss.Speciate(genomes, 0)
	require.Len(t, ss.Species, 1)
	info := []StagnationInfo{{SpeciesID: ss.SortedIDs()[0], Species: ss.Species[ss.SortedIDs()[0]]}}

	const popSize = 24
	next, stats, err := r.Reproduce(ss, genomes, info, popSize)
	require.NoError(t, err)
	require.Len(t, next, popSize)
	assert.Positive(t, stats.InvalidOffspring)

	clones := 0
	for _, g := range next {
		require.NoError(t, g.Validate(false))
		if assert.Len(t, g.Links, 1) && g.Links[10] != nil {
			clones++
		}
	}
	assert.GreaterOrEqual(t, clones, stats.InvalidOffspring, "genome 1 is the champion on a fitness tie")
}

func TestCompareFitness(t *testing.T) {
	a := &Genome{ID: 1, Fitness: 2}
	b := &Genome{ID: 2, Fitness: 2}
	c := &Genome{ID: 3, Fitness: 5}
	assert.Equal(t, 1, compareFitness(c, a))
	assert.Equal(t, -1, compareFitness(a, c))
	assert.Equal(t, 1, compareFitness(a, b), "lower id ranks higher on ties")
	assert.Equal(t, 0, compareFitness(a, a))
}
