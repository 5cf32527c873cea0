package neat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Evaluator scores a genome. Higher fitness is better. Evaluate is called
// concurrently and must treat the genome as read-only.
type Evaluator interface {
	Evaluate(ctx context.Context, g *Genome) (float64, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, g *Genome) (float64, error)

// Evaluate calls f(ctx, g).
func (f EvaluatorFunc) Evaluate(ctx context.Context, g *Genome) (float64, error) {
	return f(ctx, g)
}

// evaluateAll scores every genome with at most workers concurrent calls.
// Fitness is written back only after all calls returned. Failed genomes,
// including non-finite scores, receive the largest value strictly below every
// successful score (0 when none succeeded), so they rank last. It returns the
// number of failures; an error is returned only when ctx ends before
// evaluation completes.
func evaluateAll(ctx context.Context, genomes []*Genome, eval Evaluator, workers int, logger *slog.Logger) (int, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	scores := make([]float64, len(genomes))
	errs := make([]error, len(genomes))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, g := range genomes {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			f, err := eval.Evaluate(ctx, g)
			if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
				err = fmt.Errorf("non-finite fitness %v", f)
			}
			scores[i], errs[i] = f, err
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	worst := math.Inf(1)
	for i := range genomes {
		if errs[i] == nil {
			worst = math.Min(worst, scores[i])
		}
	}
	if math.IsInf(worst, 1) {
		worst = 0
	} else if floor := math.Nextafter(worst, math.Inf(-1)); !math.IsInf(floor, -1) {
		worst = floor
	}

	failures := 0
	for i, g := range genomes {
		if errs[i] != nil {
			failures++
			err := fmt.Errorf("%w: genome %d: %w", ErrEvaluationFailure, g.ID, errs[i])
			logger.Warn("evaluation failed, assigning worst fitness", "genome", g.ID, "fitness", worst, "err", err)
			scores[i] = worst
		}
		g.Fitness = scores[i]
		g.Evaluated = true
	}
	return failures, nil
}
