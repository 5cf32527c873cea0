// Package store persists population snapshots and generation statistics.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/baldhumanity/neat-evo/neat"
)

// Store defines persistence operations for evolution runs. Snapshots are
// keyed by run id and generation; saving the same key twice replaces it.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snap neat.Snapshot) error
	GetSnapshot(ctx context.Context, runID string, generation int) (neat.Snapshot, bool, error)
	LatestSnapshot(ctx context.Context, runID string) (neat.Snapshot, bool, error)
	SaveStats(ctx context.Context, stats neat.GenerationStats) error
	GetStats(ctx context.Context, runID string) ([]neat.GenerationStats, error)
	ListRuns(ctx context.Context) ([]string, error)
	Close() error
}

// SavePopulation stores a snapshot of the population's current state.
func SavePopulation(ctx context.Context, s Store, p *neat.Population) error {
	return s.SaveSnapshot(ctx, p.Snapshot())
}

// ResumeLatest restores the most recent snapshot of runID.
func ResumeLatest(ctx context.Context, s Store, config *neat.Config, runID string, opts ...neat.Option) (*neat.Population, error) {
	snap, ok, err := s.LatestSnapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no snapshot stored for run %s", runID)
	}
	return neat.Restore(config, snap, opts...)
}

// Reporter returns a neat.Reporter that saves each generation's statistics.
func Reporter(ctx context.Context, s Store) neat.Reporter {
	return neat.ReporterFunc(func(stats neat.GenerationStats) error {
		return s.SaveStats(ctx, stats)
	})
}

func encodeSnapshot(snap neat.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot of run %s generation %d: %w", snap.RunID, snap.Generation, err)
	}
	return payload, nil
}

func decodeSnapshot(payload []byte) (neat.Snapshot, error) {
	var snap neat.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return neat.Snapshot{}, err
	}
	return snap, nil
}
