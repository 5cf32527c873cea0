package neat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
)

// State is the phase of the generation controller.
type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateSpeciating
	StateReproducing
	StateReplaced
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateSpeciating:
		return "speciating"
	case StateReproducing:
		return "reproducing"
	case StateReplaced:
		return "replaced"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option configures a Population.
type Option func(*options)

type options struct {
	rng       *rand.Rand
	logger    *slog.Logger
	reporters []Reporter
	runID     uuid.UUID
}

// WithRand injects the random source. Without it the source is seeded from
// the seed config key, or from the clock when seed is 0.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithReporters adds generation reporters.
func WithReporters(reporters ...Reporter) Option {
	return func(o *options) { o.reporters = append(o.reporters, reporters...) }
}

// WithRunID sets the run identifier. Defaults to a random UUID.
func WithRunID(id uuid.UUID) Option {
	return func(o *options) { o.runID = id }
}

func buildOptions(config *Config, opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.rng == nil {
		seed := config.Neat.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		o.rng = rand.New(rand.NewSource(seed))
	}
	if o.runID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return o, fmt.Errorf("generating run id: %w", err)
		}
		o.runID = id
	}
	return o, nil
}

// Population holds the state of the NEAT evolutionary process and drives it
// one generation at a time.
type Population struct {
	Config       *Config
	Population   map[uint64]*Genome // Current generation of genomes
	SpeciesSet   *SpeciesSet
	Reproduction *Reproduction
	Stagnation   *Stagnation
	Innovations  *InnovationDB
	Layout       IOLayout
	Generation   int     // Number of completed generations
	BestGenome   *Genome // Copy of the best genome found so far
	RunID        uuid.UUID

	mutator   *Mutator
	rng       *rand.Rand
	logger    *slog.Logger
	reporters []Reporter
	state     atomic.Int32
	cancelled atomic.Bool
}

// NewPopulation validates config and seeds the first generation.
func NewPopulation(config *Config, opts ...Option) (*Population, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	scope, err := ParseResetScope(config.Neat.InnovationResetScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	o, err := buildOptions(config, opts)
	if err != nil {
		return nil, err
	}

	db := NewInnovationDB(scope)
	layout, err := NewIOLayout(&config.Genome, db)
	if err != nil {
		return nil, err
	}
	p, err := assemble(config, db, layout, o)
	if err != nil {
		return nil, err
	}
	p.Population, err = p.Reproduction.CreateNewPopulation(layout, db, config.Neat.PopSize)
	if err != nil {
		return nil, err
	}
	p.logger.Info("population created",
		"run", p.RunID.String(), "pop_size", config.Neat.PopSize, "innovation_scope", scope.String())
	return p, nil
}

// assemble wires the collaborators shared by NewPopulation and Restore.
func assemble(config *Config, db *InnovationDB, layout IOLayout, o options) (*Population, error) {
	stagnation, err := NewStagnation(&config.Stagnation, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stagnation manager: %w", err)
	}
	mutator, err := NewMutator(&config.Genome, db, o.rng, o.logger)
	if err != nil {
		return nil, err
	}
	return &Population{
		Config:       config,
		SpeciesSet:   NewSpeciesSet(&config.SpeciesSet, o.logger),
		Reproduction: NewReproduction(&config.Reproduction, &config.Genome, mutator, o.rng, o.logger),
		Stagnation:   stagnation,
		Innovations:  db,
		Layout:       layout,
		RunID:        o.runID,
		mutator:      mutator,
		rng:          o.rng,
		logger:       o.logger.With("run", o.runID.String()),
		reporters:    o.reporters,
	}, nil
}

// State returns the current controller phase.
func (p *Population) State() State {
	return State(p.state.Load())
}

func (p *Population) setState(s State) {
	p.state.Store(int32(s))
}

// Mutator returns the mutation operators bound to this run's innovation
// database and random source.
func (p *Population) Mutator() *Mutator {
	return p.mutator
}

// Cancel asks the controller to stop. It takes effect before the next
// generation starts; a generation in progress runs to completion.
func (p *Population) Cancel() {
	p.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (p *Population) Cancelled() bool {
	return p.cancelled.Load()
}

// Genomes returns the current population ordered by id.
func (p *Population) Genomes() []*Genome {
	ids := make([]uint64, 0, len(p.Population))
	for id := range p.Population {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	genomes := make([]*Genome, len(ids))
	for i, id := range ids {
		genomes[i] = p.Population[id]
	}
	return genomes
}

// RunGeneration evaluates the current population, speciates it and replaces
// it with the next generation. It returns a copy of this generation's best
// genome together with the generation's statistics. Species born or emptied
// while assigning the offspring are counted in these statistics.
//
// Evaluation failures never abort the generation. An error is returned when
// the run was cancelled, ctx ended during evaluation (the population is then
// left unchanged), or reproduction hit a run-fatal error.
func (p *Population) RunGeneration(ctx context.Context, eval Evaluator) (*Genome, GenerationStats, error) {
	var stats GenerationStats
	if p.Cancelled() {
		return nil, stats, ErrCancelled
	}
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateEvaluating)) {
		return nil, stats, fmt.Errorf("generation already in progress (state %s)", p.State())
	}
	start := time.Now()
	generation := p.Generation
	defer p.setState(StateIdle)

	// 1. Evaluate fitness.
	genomes := p.Genomes()
	if len(genomes) == 0 {
		return nil, stats, fmt.Errorf("population is empty in generation %d", generation)
	}
	failures, err := evaluateAll(ctx, genomes, eval, p.Config.Neat.EvaluationWorkers, p.logger)
	if err != nil {
		return nil, stats, fmt.Errorf("evaluation interrupted in generation %d: %w", generation, err)
	}

	best := genomes[0]
	for _, g := range genomes[1:] {
		if compareFitness(g, best) > 0 {
			best = g
		}
	}

	// 2. Speciate.
	p.setState(StateSpeciating)
	spec := p.SpeciesSet.Speciate(p.Population, generation)

	best = best.Copy()
	if p.BestGenome == nil || best.Fitness > p.BestGenome.Fitness {
		p.BestGenome = best.Copy()
		p.logger.Info("new best genome", "generation", generation, "genome", best.ID, "fitness", best.Fitness, "species", best.SpeciesID)
	}

	// 3. Reproduce.
	p.setState(StateReproducing)
	stagnation := p.Stagnation.Update(p.SpeciesSet, p.Population, generation)
	stats = p.collectStats(generation, genomes, best, spec, failures)
	next, rstats, err := p.Reproduction.Reproduce(p.SpeciesSet, p.Population, stagnation, p.Config.Neat.PopSize)
	if err != nil {
		return nil, stats, fmt.Errorf("reproduction failed in generation %d: %w", generation, err)
	}
	stats.StagnantSpecies = len(rstats.StagnantSpecies)
	stats.InvalidOffspring = rstats.InvalidOffspring

	// 4. Replace, then assign the new genomes to the refreshed species.
	p.setState(StateReplaced)
	p.SpeciesSet.RefreshRepresentatives(p.Population, p.rng)
	p.Innovations.BeginGeneration()
	p.Population = next
	p.Generation++
	assigned := p.SpeciesSet.Speciate(p.Population, p.Generation)
	stats.SpeciesBorn += len(assigned.Born)
	stats.SpeciesExtinct += len(assigned.Extinct)

	stats.Innovations = p.Innovations.Len()
	stats.Duration = time.Since(start)
	stats.Seconds = stats.Duration.Seconds()
	p.logger.Info("generation complete", "stats", stats)
	for _, r := range p.reporters {
		if err := r.Report(stats); err != nil {
			p.logger.Warn("reporter failed", "generation", generation, "err", err)
		}
	}
	return best, stats, nil
}

func (p *Population) collectStats(generation int, genomes []*Genome, best *Genome, spec SpeciationResult, failures int) GenerationStats {
	fitnesses := make([]float64, len(genomes))
	neurons := make([]float64, len(genomes))
	links := make([]float64, len(genomes))
	for i, g := range genomes {
		fitnesses[i] = g.Fitness
		neurons[i] = float64(len(g.Neurons))
		links[i] = float64(g.EnabledLinkCount())
	}
	sizes := make([]int, 0, len(p.SpeciesSet.Species))
	for _, sid := range p.SpeciesSet.SortedIDs() {
		sizes = append(sizes, len(p.SpeciesSet.Species[sid].Members))
	}
	return GenerationStats{
		RunID:            p.RunID.String(),
		Generation:       generation,
		PopulationSize:   len(genomes),
		BestFitness:      best.Fitness,
		MeanFitness:      Mean(fitnesses),
		StdevFitness:     Stdev(fitnesses),
		MedianFitness:    Median(fitnesses),
		BestGenomeID:     best.ID,
		BestNeurons:      len(best.Neurons),
		BestLinks:        best.EnabledLinkCount(),
		MeanNeurons:      Mean(neurons),
		MeanLinks:        Mean(links),
		SpeciesCount:     len(sizes),
		SpeciesBorn:      len(spec.Born),
		SpeciesExtinct:   len(spec.Extinct),
		MeanDistance:     spec.MeanDist,
		StdevDistance:    spec.StdevDist,
		SpeciesSizes:     sizes,
		EvaluationErrors: failures,
	}
}

// Terminator decides after each generation whether Run should stop.
type Terminator func(stats GenerationStats) bool

// FitnessReached stops once a generation's best fitness reaches threshold.
func FitnessReached(threshold float64) Terminator {
	return func(stats GenerationStats) bool {
		return stats.BestFitness >= threshold
	}
}

// GenerationLimit stops after n generations have completed in total.
func GenerationLimit(n int) Terminator {
	return func(stats GenerationStats) bool {
		return stats.Generation+1 >= n
	}
}

// AnyOf stops as soon as one of the terminators does.
func AnyOf(terms ...Terminator) Terminator {
	return func(stats GenerationStats) bool {
		for _, t := range terms {
			if t(stats) {
				return true
			}
		}
		return false
	}
}

// Run drives generations until term returns true, ctx ends or Cancel is
// called, and returns a copy of the best genome found so far.
func (p *Population) Run(ctx context.Context, eval Evaluator, term Terminator) (*Genome, error) {
	for {
		if p.Cancelled() {
			return p.BestGenome, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return p.BestGenome, err
		}
		_, stats, err := p.RunGeneration(ctx, eval)
		if err != nil {
			return p.BestGenome, err
		}
		if term != nil && term(stats) {
			return p.BestGenome, nil
		}
	}
}
