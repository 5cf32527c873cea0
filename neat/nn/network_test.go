package nn

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/neat-evo/neat"
)

type link struct {
	from, to uint64
	weight   float64
}

// build creates a genome with inputs 1 and 2, output 3, bias 4 and the
// given hidden neurons and links.
func build(activation string, hidden []uint64, links ...link) *neat.Genome {
	g := neat.NewGenome(1)
	add := func(id uint64, typ neat.NeuronType, act string) {
		g.Neurons[id] = &neat.NeuronGene{ID: id, Type: typ, Activation: act, ActivationSlope: 1, Enabled: true}
	}
	add(1, neat.NeuronInput, "identity")
	add(2, neat.NeuronInput, "identity")
	add(3, neat.NeuronOutput, activation)
	add(4, neat.NeuronBias, "identity")
	for _, id := range hidden {
		add(id, neat.NeuronHidden, activation)
	}
	for i, l := range links {
		innov := uint64(i + 1)
		g.Links[innov] = &neat.LinkGene{Innovation: innov, From: l.from, To: l.to, Weight: l.weight, Enabled: true}
	}
	return g
}

func xorGenome() *neat.Genome {
	return build("sigmoid", []uint64{5, 6},
		link{1, 5, 20}, link{2, 5, 20}, link{4, 5, -10}, // OR
		link{1, 6, 20}, link{2, 6, 20}, link{4, 6, -30}, // AND
		link{5, 3, 20}, link{6, 3, -20}, link{4, 3, -10},
	)
}

func TestDecodeXOR(t *testing.T) {
	net, err := Decode(xorGenome(), FeedForwardOnly)
	require.NoError(t, err)
	assert.Equal(t, 2, net.NumInputs())
	assert.Equal(t, 1, net.NumOutputs())
	assert.False(t, net.Recurrent())

	order := net.Order()
	require.Len(t, order, 3)
	out := slices.Index(order, 3)
	assert.Greater(t, out, slices.Index(order, 5))
	assert.Greater(t, out, slices.Index(order, 6))

	for _, tc := range []struct {
		in   []float64
		want float64
	}{
		{[]float64{0, 0}, 0},
		{[]float64{0, 1}, 1},
		{[]float64{1, 0}, 1},
		{[]float64{1, 1}, 0},
	} {
		got, err := net.Activate(tc.in)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got[0], 0.01, "input %v", tc.in)
	}

	v, ok := net.Value(4)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v, "bias emits 1")
}

func TestDecodeIsDeterministic(t *testing.T) {
	g := xorGenome()
	a, err := Decode(g, FeedForwardOnly)
	require.NoError(t, err)
	b, err := Decode(g, FeedForwardOnly)
	require.NoError(t, err)
	assert.Equal(t, a.Order(), b.Order())
	assert.Equal(t, a.slots, b.slots)
}

func TestDecodeSkipsDisabledGenes(t *testing.T) {
	g := xorGenome()
	g.Neurons[6].Enabled = false
	g.Links[9].Enabled = false // bias -> output

	net, err := Decode(g, FeedForwardOnly)
	require.NoError(t, err)
	assert.NotContains(t, net.Order(), uint64(6))
	_, ok := net.Value(6)
	assert.False(t, ok)

	// Output now only sees OR.
	got, err := net.Activate([]float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[0], 0.01)
}

func TestDecodeCycles(t *testing.T) {
	g := build("identity", []uint64{5, 6},
		link{1, 5, 1}, link{5, 6, 1}, link{6, 5, 0.5}, link{6, 3, 1},
	)
	_, err := Decode(g, FeedForwardOnly)
	require.ErrorIs(t, err, neat.ErrInvalidGenome)

	net, err := Decode(g, RecurrentAllowed)
	require.NoError(t, err)
	assert.True(t, net.Recurrent())
	assert.Len(t, net.Order(), 3)

	first, err := net.Activate([]float64{1, 0})
	require.NoError(t, err)
	second, err := net.Activate([]float64{1, 0})
	require.NoError(t, err)
	assert.NotEqual(t, first[0], second[0], "recurrent state carries over")

	net.Reset()
	again, err := net.Activate([]float64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestDecodeSelfLoop(t *testing.T) {
	g := build("identity", nil, link{1, 3, 1}, link{3, 3, 1})
	_, err := Decode(g, FeedForwardOnly)
	require.ErrorIs(t, err, neat.ErrInvalidGenome)

	net, err := Decode(g, RecurrentAllowed)
	require.NoError(t, err)
	for step, want := range []float64{1, 2, 3} {
		got, err := net.Activate([]float64{1, 0})
		require.NoError(t, err)
		assert.Equal(t, want, got[0], "step %d", step)
	}
}

func TestDecodeRejectsBrokenGenomes(t *testing.T) {
	g := build("sigmoid", nil, link{1, 3, 1}, link{2, 9, 1})
	_, err := Decode(g, FeedForwardOnly)
	assert.ErrorIs(t, err, neat.ErrInvalidGenome)

	g = build("softplus", nil, link{1, 3, 1})
	_, err = Decode(g, FeedForwardOnly)
	assert.ErrorIs(t, err, neat.ErrInvalidGenome)
}

func TestActivateInputMismatch(t *testing.T) {
	net, err := Decode(xorGenome(), FeedForwardOnly)
	require.NoError(t, err)
	_, err = net.Activate([]float64{1})
	assert.Error(t, err)
}

func TestModeFor(t *testing.T) {
	cfg := neat.DefaultConfig()
	assert.Equal(t, FeedForwardOnly, ModeFor(&cfg.Genome))
	cfg.Genome.RecurrentAllowed = true
	assert.Equal(t, RecurrentAllowed, ModeFor(&cfg.Genome))
}

func xorFitness(_ context.Context, net *Network) (float64, error) {
	fitness := 4.0
	for _, tc := range [][3]float64{{0, 0, 0}, {0, 1, 1}, {1, 0, 1}, {1, 1, 0}} {
		out, err := net.Activate(tc[:2])
		if err != nil {
			return 0, err
		}
		d := out[0] - tc[2]
		fitness -= d * d
	}
	return fitness, nil
}

func TestEvaluatorEvolvesXOR(t *testing.T) {
	cfg := neat.DefaultConfig()
	cfg.Neat.PopSize = 60
	cfg.Neat.Seed = 3
	p, err := neat.NewPopulation(cfg,
		neat.WithRand(rand.New(rand.NewSource(3))),
		neat.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	eval := Evaluator(ModeFor(&cfg.Genome), xorFitness)
	var history []float64
	for range 10 {
		best, stats, err := p.RunGeneration(context.Background(), eval)
		require.NoError(t, err)
		assert.Zero(t, stats.EvaluationErrors)
		history = append(history, best.Fitness)
	}
	assert.Equal(t, slices.Max(history), p.BestGenome.Fitness)

	net, err := Decode(p.BestGenome, FeedForwardOnly)
	require.NoError(t, err)
	score, err := xorFitness(context.Background(), net)
	require.NoError(t, err)
	assert.InDelta(t, p.BestGenome.Fitness, score, 1e-9)
}

func TestEvaluatorReportsDecodeFailure(t *testing.T) {
	g := build("sigmoid", nil, link{1, 3, 1}, link{3, 3, 1})
	eval := Evaluator(FeedForwardOnly, xorFitness)
	_, err := eval.Evaluate(context.Background(), g)
	assert.ErrorIs(t, err, neat.ErrInvalidGenome)
}
