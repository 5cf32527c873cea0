package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/baldhumanity/neat-evo/neat"
)

// MemoryStore keeps encoded snapshots in memory. Snapshots are stored
// encoded so that later changes to the population do not leak in.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string]map[int][]byte
	stats       map[string][]neat.GenerationStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.snapshots = make(map[string]map[int][]byte)
	s.stats = make(map[string][]neat.GenerationStats)
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap neat.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	runs, ok := s.snapshots[snap.RunID]
	if !ok {
		runs = make(map[int][]byte)
		s.snapshots[snap.RunID] = runs
	}
	runs[snap.Generation] = payload
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, runID string, generation int) (neat.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return neat.Snapshot{}, false, errNotInitialized
	}

	payload, ok := s.snapshots[runID][generation]
	if !ok {
		return neat.Snapshot{}, false, nil
	}
	snap, err := decodeSnapshot(payload)
	return snap, err == nil, err
}

func (s *MemoryStore) LatestSnapshot(ctx context.Context, runID string) (neat.Snapshot, bool, error) {
	s.mu.RLock()
	latest, found := -1, false
	for gen := range s.snapshots[runID] {
		if gen > latest {
			latest, found = gen, true
		}
	}
	s.mu.RUnlock()

	if !found {
		return neat.Snapshot{}, false, nil
	}
	return s.GetSnapshot(ctx, runID, latest)
}

func (s *MemoryStore) SaveStats(_ context.Context, stats neat.GenerationStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	rows := s.stats[stats.RunID]
	i, found := slices.BinarySearchFunc(rows, stats.Generation, func(r neat.GenerationStats, gen int) int {
		return r.Generation - gen
	})
	if found {
		rows[i] = stats
	} else {
		rows = slices.Insert(rows, i, stats)
	}
	s.stats[stats.RunID] = rows
	return nil
}

func (s *MemoryStore) GetStats(_ context.Context, runID string) ([]neat.GenerationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}
	return slices.Clone(s.stats[runID]), nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, errNotInitialized
	}

	seen := make(map[string]bool)
	for id := range s.snapshots {
		seen[id] = true
	}
	for id := range s.stats {
		seen[id] = true
	}
	runs := make([]string, 0, len(seen))
	for id := range seen {
		runs = append(runs, id)
	}
	slices.Sort(runs)
	return runs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var errNotInitialized = errors.New("store is not initialized")
