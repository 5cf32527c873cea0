// Package report provides generation reporters for a neat.Population.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/baldhumanity/neat-evo/neat"
)

// CSVReporter appends one row of neat.GenerationStats per generation.
type CSVReporter struct {
	mu            sync.Mutex
	w             io.Writer
	closer        io.Closer
	headerWritten bool
}

// NewCSVReporter writes rows to w. The header is written with the first row.
func NewCSVReporter(w io.Writer) *CSVReporter {
	return &CSVReporter{w: w}
}

// CreateCSVReporter creates (or truncates) path and writes rows to it.
func CreateCSVReporter(path string) (*CSVReporter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &CSVReporter{w: f, closer: f}, nil
}

// Report writes a generation stats record.
func (r *CSVReporter) Report(stats neat.GenerationStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := []neat.GenerationStats{stats}
	if !r.headerWritten {
		if err := gocsv.Marshal(records, r.w); err != nil {
			return fmt.Errorf("writing generation stats: %w", err)
		}
		r.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, r.w); err != nil {
		return fmt.Errorf("writing generation stats: %w", err)
	}
	return nil
}

// Close closes the underlying file when the reporter owns one.
func (r *CSVReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// ReadCSV parses rows written by a CSVReporter.
func ReadCSV(rd io.Reader) ([]neat.GenerationStats, error) {
	var rows []neat.GenerationStats
	if err := gocsv.Unmarshal(rd, &rows); err != nil {
		return nil, fmt.Errorf("reading generation stats: %w", err)
	}
	return rows, nil
}
