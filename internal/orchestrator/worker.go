package orchestrator

import (
	"context"
	"log/slog"

	"github.com/norton62/demo2video/internal/job"
	"github.com/norton62/demo2video/internal/queue"
)

// Worker is the single consumer of the job queue. It processes one job
// fully, through the durable Result append, before dequeuing the next.
type Worker struct {
	queue    *queue.Queue[job.Job]
	deps     Collaborators
	settings Settings
	status   StatusSink
	results  ResultSink
	stats    StatsSink
	logger   *slog.Logger
}

// NewWorker creates the pipeline worker.
func NewWorker(
	q *queue.Queue[job.Job],
	deps Collaborators,
	settings Settings,
	status StatusSink,
	results ResultSink,
	stats StatsSink,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		queue:    q,
		deps:     deps,
		settings: settings,
		status:   status,
		results:  results,
		stats:    stats,
		logger:   logger,
	}
}

// Run consumes the queue until the context is cancelled. No job failure
// ever terminates the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("processing worker started")

	for {
		j, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Info("processing worker stopping", "reason", err)
			return
		}

		w.processJob(ctx, j)

		if ctx.Err() != nil {
			w.logger.Info("processing worker stopping", "reason", ctx.Err())
			return
		}
	}
}

// processJob runs one job end to end: orchestrate, durably append the
// Result, then reset the status to idle. Idle is only observable after
// the append has completed.
func (w *Worker) processJob(ctx context.Context, j job.Job) {
	w.logger.Info("starting job",
		"job_id", j.ID,
		"suspect", j.SuspectID,
		"submitted_by", j.SubmittedBy,
		"publish_mode", j.PublishMode.String())

	o := New(j, w.deps, w.settings, w.status, w.logger)
	result := o.Run(ctx)

	if err := w.results.Append(result); err != nil {
		// The job already reached a terminal state; history for it is
		// lost but the loop must go on.
		w.logger.Error("failed to append result", "job_id", j.ID, "error", err)
	}

	if w.stats != nil {
		w.stats.RecordJob(j.ID, j.SuspectID, o.Timing(), result.TaskStatus)
	}

	if err := sleepCtx(ctx, w.settings.IdlePause); err != nil {
		return
	}
	w.status.SetIdle()
}
