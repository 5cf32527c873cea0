// Package neat documents the neat-evo module, a Go implementation of
// NeuroEvolution of Augmenting Topologies (NEAT).
//
// NEAT evolves both the weights and the structure of neural networks. Genomes
// start minimal and grow through add-link and add-neuron mutations; a shared
// innovation ledger numbers every structural change so genomes can be aligned
// for crossover and compared for speciation.
//
// The evolutionary core lives in package neat/neat, phenotype decoding in
// neat/nn, generation reporters in neat/report and run persistence in
// neat/store.
//
// Basic usage:
//
//	config, err := neat.LoadConfig("xor-config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	pop, err := neat.NewPopulation(config, neat.WithLogger(slog.Default()))
//	if err != nil {
//		log.Fatalf("Error creating population: %v", err)
//	}
//
//	eval := nn.Evaluator(nn.ModeFor(&config.Genome), func(ctx context.Context, net *nn.Network) (float64, error) {
//		out, err := net.Activate([]float64{1, 0})
//		if err != nil {
//			return 0, err
//		}
//		return 1 - math.Abs(1-out[0]), nil
//	})
//
//	best, err := pop.Run(ctx, eval, neat.AnyOf(
//		neat.FitnessReached(config.Neat.FitnessThreshold),
//		neat.GenerationLimit(100),
//	))
//
// Evaluation runs concurrently; everything else in a generation runs on the
// caller's goroutine with the population's random source, so runs with the
// same seed and a deterministic evaluator are reproducible.
package neat
