// Package status holds the process-wide current-job snapshot read by the
// status endpoint. Last-write-wins; no history of intermediate phases.
package status

import (
	"log/slog"
	"sync"

	"github.com/norton62/demo2video/internal/job"
)

// Broadcaster is a thread-safe holder of the single current job status.
// The pipeline worker is the only writer.
type Broadcaster struct {
	mu      sync.RWMutex
	current job.Status
	logger  *slog.Logger
}

// New creates a broadcaster starting in the idle state.
func New(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		current: job.IdleStatus(),
		logger:  logger,
	}
}

// Set replaces the current status.
func (b *Broadcaster) Set(phase job.Phase, step, suspect string) {
	b.logger.Info("status update",
		"status", phase.String(),
		"step", step,
		"suspect", suspect)

	b.mu.Lock()
	b.current = job.Status{Status: phase, Step: step, Suspect: suspect}
	b.mu.Unlock()
}

// SetIdle resets the status to idle between jobs.
func (b *Broadcaster) SetIdle() {
	b.mu.Lock()
	b.current = job.IdleStatus()
	b.mu.Unlock()
}

// Snapshot returns the current status value.
func (b *Broadcaster) Snapshot() job.Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}
