package neat

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// WriteCheckpoint encodes the population snapshot to w as gzip-compressed gob.
func (p *Population) WriteCheckpoint(w io.Writer) error {
	gzWriter := gzip.NewWriter(w)
	snap := p.Snapshot()
	if err := gob.NewEncoder(gzWriter).Encode(&snap); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	return nil
}

// SaveCheckpoint saves the current state of the Population to a file.
// Uses gzip compression for smaller file size.
func (p *Population) SaveCheckpoint(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	if err := p.WriteCheckpoint(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file '%s': %w", filePath, err)
	}
	p.logger.Info("checkpoint saved", "path", filePath, "generation", p.Generation)
	return nil
}

// ReadCheckpoint decodes a snapshot written by WriteCheckpoint.
func ReadCheckpoint(r io.Reader) (Snapshot, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	var snap Snapshot
	if err := gob.NewDecoder(gzReader).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode population data from checkpoint: %w", err)
	}
	return snap, nil
}

// LoadCheckpoint loads a Population state from a checkpoint file.
// It requires the original INI configuration file to reconstruct the Config.
func LoadCheckpoint(checkpointPath string, configPath string, opts ...Option) (*Population, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config '%s' for checkpoint: %w", configPath, err)
	}

	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	snap, err := ReadCheckpoint(file)
	if err != nil {
		return nil, err
	}
	return Restore(config, snap, opts...)
}
