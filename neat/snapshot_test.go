package neat

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evolved(t *testing.T, cfg *Config, generations int) *Population {
	t.Helper()
	cfg.Genome.AddNeuronProb = 0.3
	cfg.Genome.AddLinkProb = 0.3
	p := newTestPopulation(t, cfg)
	_, err := p.Run(context.Background(), EvaluatorFunc(linkScore), GenerationLimit(generations))
	require.NoError(t, err)
	return p
}

func assertSameState(t *testing.T, want, got *Population) {
	t.Helper()
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Generation, got.Generation)
	assert.Equal(t, want.Genomes(), got.Genomes())
	assert.Equal(t, want.Innovations.Snapshot(), got.Innovations.Snapshot())
	assert.Equal(t, want.SpeciesSet.Species, got.SpeciesSet.Species)
	assert.Equal(t, want.SpeciesSet.GenomeToSpecies, got.SpeciesSet.GenomeToSpecies)
	assert.Equal(t, want.SpeciesSet.Indexer, got.SpeciesSet.Indexer)
	assert.Equal(t, want.Reproduction.NextGenomeKey, got.Reproduction.NextGenomeKey)
	assert.Equal(t, want.Layout, got.Layout)
	assert.Equal(t, want.BestGenome, got.BestGenome)
}

func TestSnapshotRestoreJSON(t *testing.T) {
	cfg := testConfig()
	p := evolved(t, cfg, 3)

	data, err := json.Marshal(p.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := Restore(cfg, snap, WithLogger(quietLogger()))
	require.NoError(t, err)
	assertSameState(t, p, restored)
}

func TestRestoredRunsAreReproducible(t *testing.T) {
	cfg := testConfig()
	snap := evolved(t, cfg, 2).Snapshot()

	resume := func() *Population {
		p, err := Restore(cfg, snap, WithRand(rand.New(rand.NewSource(5))), WithLogger(quietLogger()))
		require.NoError(t, err)
		_, _, err = p.RunGeneration(context.Background(), EvaluatorFunc(linkScore))
		require.NoError(t, err)
		return p
	}
	a, b := resume(), resume()
	assert.Equal(t, 3, a.Generation)
	assertSameState(t, a, b)

	for _, g := range a.Genomes() {
		require.NoError(t, g.Validate(false))
	}
}

func TestSnapshotSpeciesDescribeExportedGenomes(t *testing.T) {
	for _, generations := range []int{1, 3} {
		snap := evolved(t, testConfig(), generations).Snapshot()

		exported := make(map[uint64]*Genome, len(snap.Genomes))
		for _, g := range snap.Genomes {
			exported[g.ID] = g
		}
		assigned := 0
		for _, s := range snap.Species {
			require.NotEmpty(t, s.Members, "species %d", s.ID)
			for _, gid := range s.Members {
				g, ok := exported[gid]
				require.True(t, ok, "species %d lists genome %d", s.ID, gid)
				assert.Equal(t, s.ID, g.SpeciesID)
				assigned++
			}
		}
		assert.Equal(t, len(snap.Genomes), assigned, "every genome belongs to exactly one species")
	}
}

func TestRestoreRejectsUnknownSpeciesMembers(t *testing.T) {
	cfg := testConfig()
	snap := evolved(t, cfg, 1).Snapshot()
	require.NotEmpty(t, snap.Species)

	s := *snap.Species[0]
	s.Members = append(slices.Clone(s.Members), 1<<40)
	snap.Species = append([]*Species{&s}, snap.Species[1:]...)
	_, err := Restore(cfg, snap, WithLogger(quietLogger()))
	assert.Error(t, err)
}

func TestSnapshotIsDetached(t *testing.T) {
	p := evolved(t, testConfig(), 1)
	snap := p.Snapshot()
	for _, g := range snap.Genomes {
		g.Fitness = -1
		for _, l := range g.Links {
			l.Weight = 1000
		}
	}
	for _, g := range p.Population {
		assert.NotEqual(t, -1.0, g.Fitness)
		for _, l := range g.Links {
			assert.NotEqual(t, 1000.0, l.Weight)
		}
	}
}

func TestRestoreRejectsMismatches(t *testing.T) {
	cfg := testConfig()
	snap := evolved(t, cfg, 1).Snapshot()

	other := testConfig()
	other.Neat.InnovationResetScope = "generation"
	_, err := Restore(other, snap)
	assert.ErrorIs(t, err, ErrConfiguration)

	other = testConfig()
	other.Genome.NumInputs = 5
	_, err = Restore(other, snap)
	assert.ErrorIs(t, err, ErrConfiguration)

	broken := snap
	broken.Genomes = append([]*Genome{}, snap.Genomes...)
	g := broken.Genomes[0].Copy()
	g.Links[9999] = &LinkGene{Innovation: 9999, From: 1, To: 12345, Enabled: true}
	broken.Genomes[0] = g
	_, err = Restore(cfg, broken, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrInvalidGenome)

	empty := snap
	empty.Genomes = nil
	_, err = Restore(cfg, empty, WithLogger(quietLogger()))
	assert.Error(t, err)
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfgPath := writeFile(t, "neat.ini", "[NEAT]\npop_size = 30\nseed = 7\nevaluation_workers = 4\n")
	cfg, err := LoadConfig(cfgPath)
	require.NoError(t, err)
	p := evolved(t, cfg, 2)

	var buf bytes.Buffer
	require.NoError(t, p.WriteCheckpoint(&buf))
	snap, err := ReadCheckpoint(&buf)
	require.NoError(t, err)
	assert.Equal(t, p.Generation, snap.Generation)

	path := filepath.Join(t.TempDir(), "gen-2.ckpt")
	require.NoError(t, p.SaveCheckpoint(path))
	loaded, err := LoadCheckpoint(path, cfgPath, WithLogger(quietLogger()))
	require.NoError(t, err)
	assertSameState(t, p, loaded)

	_, err = ReadCheckpoint(bytes.NewReader([]byte("not a checkpoint")))
	assert.Error(t, err)
}
