package neat

import "errors"

// Error kinds surfaced by the evolutionary core. Callers match them with
// errors.Is; the concrete errors wrap one of these with context.
var (
	// ErrInvalidMutation reports an infeasible structural change. It is
	// recoverable: the caller retries with another random choice or skips.
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrInvalidGenome reports a genome that breaks the gene invariants
	// (dangling link endpoint, duplicate link pair, forbidden cycle).
	// It is fatal to that genome only.
	ErrInvalidGenome = errors.New("invalid genome")

	// ErrEvaluationFailure wraps an error returned by a consumer evaluator.
	// The genome is scored with worst-case fitness and the run continues.
	ErrEvaluationFailure = errors.New("evaluation failure")

	// ErrConfiguration reports invalid configuration values. A run never
	// starts with an invalid configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrInnovationOverflow reports exhaustion of an innovation or neuron
	// id counter. It aborts the run.
	ErrInnovationOverflow = errors.New("innovation counter overflow")

	// ErrCancelled is returned by RunGeneration once Cancel was called.
	ErrCancelled = errors.New("evolution cancelled")
)
