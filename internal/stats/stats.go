// Package stats collects per-job stage timings off the worker's critical
// path and persists them for later inspection.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/norton62/demo2video/internal/db"
	"github.com/norton62/demo2video/internal/job"
	"github.com/norton62/demo2video/internal/orchestrator"
)

// Writer is the storage the collector flushes to.
type Writer interface {
	CreateJobStats(s *db.JobStats) error
}

// Collector receives timing messages from the worker on a buffered
// channel and writes them to the database. Sends never block the worker;
// a full channel drops the sample.
type Collector struct {
	writer Writer
	inbox  chan *db.JobStats
	logger *slog.Logger
}

// NewCollector creates a collector with the given channel capacity.
func NewCollector(writer Writer, bufferSize int, logger *slog.Logger) *Collector {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Collector{
		writer: writer,
		inbox:  make(chan *db.JobStats, bufferSize),
		logger: logger,
	}
}

// RecordJob implements the pipeline's stats sink. Non-blocking.
func (c *Collector) RecordJob(jobID, suspectID string, timing orchestrator.PhaseTiming, status job.TaskStatus) {
	row := buildRow(jobID, suspectID, timing, status)

	select {
	case c.inbox <- row:
	default:
		c.logger.Warn("stats inbox full, dropping sample", "job_id", jobID)
	}
}

// Run consumes the inbox until the context is cancelled, flushing any
// queued samples before returning.
func (c *Collector) Run(ctx context.Context) {
	for {
		select {
		case row := <-c.inbox:
			c.write(row)
		case <-ctx.Done():
			for {
				select {
				case row := <-c.inbox:
					c.write(row)
				default:
					return
				}
			}
		}
	}
}

func (c *Collector) write(row *db.JobStats) {
	if err := c.writer.CreateJobStats(row); err != nil {
		c.logger.Error("failed to write job stats", "job_id", row.JobID, "error", err)
	}
}

func buildRow(jobID, suspectID string, t orchestrator.PhaseTiming, status job.TaskStatus) *db.JobStats {
	row := &db.JobStats{
		JobID:       jobID,
		SuspectID:   suspectID,
		TaskStatus:  status.String(),
		CompletedAt: t.CompletedAt,
	}

	row.DownloadSeconds = spanSeconds(t.DownloadStarted, t.AnalysisStarted)
	row.AnalysisSeconds = spanSeconds(t.AnalysisStarted, t.RecordingStarted)
	row.RecordSeconds = spanSeconds(t.RecordingStarted, t.PlaybackFinished)
	row.PublishSeconds = spanSeconds(t.PublishStarted, t.CompletedAt)
	row.TotalSeconds = spanSeconds(t.CreatedAt, t.CompletedAt)
	return row
}

// spanSeconds returns the span between two boundaries, or 0 when either
// phase was never reached.
func spanSeconds(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Seconds()
}
