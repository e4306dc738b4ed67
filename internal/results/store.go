// Package results persists the capacity-bounded log of completed job
// records. The whole log is rewritten atomically on every append so the
// UI history survives restarts.
package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/norton62/demo2video/internal/job"
)

// DefaultCapacity bounds the history when the config leaves it unset.
const DefaultCapacity = 250

// Store is an append-only, capacity-bounded result log backed by a single
// JSON file. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
	records  []job.Result
	logger   *slog.Logger
}

// NewStore creates a store writing to path, keeping at most capacity
// records (oldest evicted first).
func NewStore(path string, capacity int, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		path:     path,
		capacity: capacity,
		logger:   logger,
	}
}

// Load reads the persisted log, if present. A missing file is not an
// error; a corrupt file starts the history empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("results file not found, starting with empty history", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("results: read %s: %w", s.path, err)
	}

	var records []job.Result
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error("could not decode results file, starting with empty history",
			"path", s.path, "error", err)
		return nil
	}

	if len(records) > s.capacity {
		records = records[len(records)-s.capacity:]
	}
	s.records = records
	s.logger.Info("loaded previous results", "count", len(s.records), "path", s.path)
	return nil
}

// Append adds a record to the log and persists the whole log before
// returning. The oldest record is evicted when the capacity is exceeded.
func (s *Store) Append(r job.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	if len(s.records) > s.capacity {
		s.records = s.records[len(s.records)-s.capacity:]
	}

	if err := s.persistLocked(); err != nil {
		return err
	}
	s.logger.Info("saved results", "count", len(s.records), "path", s.path)
	return nil
}

// List returns the recorded results, newest first.
func (s *Store) List() []job.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]job.Result, len(s.records))
	for i, r := range s.records {
		out[len(s.records)-1-i] = r
	}
	return out
}

// Len returns the number of recorded results.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("results: encode: %w", err)
	}
	// Atomic replace so a crash mid-write never corrupts the history.
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("results: write %s: %w", s.path, err)
	}
	return nil
}
