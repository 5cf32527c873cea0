package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/baldhumanity/neat-evo/neat"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs in a SQLite database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap neat.Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, generation, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			payload = excluded.payload
	`, snap.RunID, snap.Generation, payload)
	return err
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, runID string, generation int) (neat.Snapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return neat.Snapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE run_id = ? AND generation = ?`, runID, generation).Scan(&payload)
	return scanSnapshot(runID, payload, err)
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, runID string) (neat.Snapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return neat.Snapshot{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE run_id = ? ORDER BY generation DESC LIMIT 1`, runID).Scan(&payload)
	return scanSnapshot(runID, payload, err)
}

func scanSnapshot(runID string, payload []byte, err error) (neat.Snapshot, bool, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return neat.Snapshot{}, false, nil
		}
		return neat.Snapshot{}, false, err
	}
	snap, err := decodeSnapshot(payload)
	if err != nil {
		return neat.Snapshot{}, false, fmt.Errorf("decode snapshot of run %s: %w", runID, err)
	}
	return snap, true, nil
}

func (s *SQLiteStore) SaveStats(ctx context.Context, stats neat.GenerationStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generation_stats (
			run_id, generation, population_size, best_fitness, mean_fitness, stdev_fitness,
			median_fitness, best_genome_id, best_neurons, best_links, mean_neurons, mean_links,
			innovations, species_count, species_born, species_extinct, stagnant_species,
			mean_distance, stdev_distance, evaluation_errors, invalid_offspring, seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			population_size = excluded.population_size,
			best_fitness = excluded.best_fitness,
			mean_fitness = excluded.mean_fitness,
			stdev_fitness = excluded.stdev_fitness,
			median_fitness = excluded.median_fitness,
			best_genome_id = excluded.best_genome_id,
			best_neurons = excluded.best_neurons,
			best_links = excluded.best_links,
			mean_neurons = excluded.mean_neurons,
			mean_links = excluded.mean_links,
			innovations = excluded.innovations,
			species_count = excluded.species_count,
			species_born = excluded.species_born,
			species_extinct = excluded.species_extinct,
			stagnant_species = excluded.stagnant_species,
			mean_distance = excluded.mean_distance,
			stdev_distance = excluded.stdev_distance,
			evaluation_errors = excluded.evaluation_errors,
			invalid_offspring = excluded.invalid_offspring,
			seconds = excluded.seconds
	`, stats.RunID, stats.Generation, stats.PopulationSize, stats.BestFitness, stats.MeanFitness, stats.StdevFitness,
		stats.MedianFitness, int64(stats.BestGenomeID), stats.BestNeurons, stats.BestLinks, stats.MeanNeurons, stats.MeanLinks,
		stats.Innovations, stats.SpeciesCount, stats.SpeciesBorn, stats.SpeciesExtinct, stats.StagnantSpecies,
		stats.MeanDistance, stats.StdevDistance, stats.EvaluationErrors, stats.InvalidOffspring, stats.Seconds)
	return err
}

func (s *SQLiteStore) GetStats(ctx context.Context, runID string) ([]neat.GenerationStats, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT generation, population_size, best_fitness, mean_fitness, stdev_fitness,
			median_fitness, best_genome_id, best_neurons, best_links, mean_neurons, mean_links,
			innovations, species_count, species_born, species_extinct, stagnant_species,
			mean_distance, stdev_distance, evaluation_errors, invalid_offspring, seconds
		FROM generation_stats WHERE run_id = ? ORDER BY generation
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []neat.GenerationStats
	for rows.Next() {
		st := neat.GenerationStats{RunID: runID}
		var bestID int64
		if err := rows.Scan(&st.Generation, &st.PopulationSize, &st.BestFitness, &st.MeanFitness, &st.StdevFitness,
			&st.MedianFitness, &bestID, &st.BestNeurons, &st.BestLinks, &st.MeanNeurons, &st.MeanLinks,
			&st.Innovations, &st.SpeciesCount, &st.SpeciesBorn, &st.SpeciesExtinct, &st.StagnantSpecies,
			&st.MeanDistance, &st.StdevDistance, &st.EvaluationErrors, &st.InvalidOffspring, &st.Seconds); err != nil {
			return nil, err
		}
		st.BestGenomeID = uint64(bestID)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id FROM snapshots
		UNION
		SELECT run_id FROM generation_stats
		ORDER BY run_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
		CREATE TABLE IF NOT EXISTS generation_stats (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			population_size INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			mean_fitness REAL NOT NULL,
			stdev_fitness REAL NOT NULL,
			median_fitness REAL NOT NULL,
			best_genome_id INTEGER NOT NULL,
			best_neurons INTEGER NOT NULL,
			best_links INTEGER NOT NULL,
			mean_neurons REAL NOT NULL,
			mean_links REAL NOT NULL,
			innovations INTEGER NOT NULL,
			species_count INTEGER NOT NULL,
			species_born INTEGER NOT NULL,
			species_extinct INTEGER NOT NULL,
			stagnant_species INTEGER NOT NULL,
			mean_distance REAL NOT NULL,
			stdev_distance REAL NOT NULL,
			evaluation_errors INTEGER NOT NULL,
			invalid_offspring INTEGER NOT NULL,
			seconds REAL NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
	`)
	return err
}
