// Package jobs runs background work with a persisted status record the
// caller can poll, instead of a synchronous return value.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/notify"
)

// Runner launches background jobs and tracks their lifecycle in the store:
// pending at creation, in_progress once picked up, then completed or failed.
type Runner struct {
	store    database.Store
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewRunner creates a job runner.
func NewRunner(store database.Store, notifier notify.Notifier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		store:    store,
		notifier: notifier,
		logger:   logger.With("component", "job_runner"),
	}
}

// Launch creates the job record and starts fn in the background, returning
// immediately with the pending job. The work keeps running after the
// launching request's context is cancelled; only process shutdown stops it,
// and the persisted status is the recovery mechanism.
func (r *Runner) Launch(ctx context.Context, metadata string, fn func(ctx context.Context) error) (*database.Job, error) {
	job, err := r.store.CreateJob(ctx, metadata)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	go r.run(bg, job, metadata, fn)
	return job, nil
}

func (r *Runner) run(ctx context.Context, job *database.Job, metadata string, fn func(ctx context.Context) error) {
	if err := r.store.UpdateJobStatus(ctx, job.ID, database.JobInProgress); err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark job in progress", "job_id", job.ID, "error", err)
	}

	err := fn(ctx)

	status := database.JobCompleted
	if err != nil {
		status = database.JobFailed
		r.logger.ErrorContext(ctx, "Job failed", "job_id", job.ID, "metadata", metadata, "error", err)
	} else {
		r.logger.InfoContext(ctx, "Job completed", "job_id", job.ID, "metadata", metadata)
	}

	if err := r.store.UpdateJobStatus(ctx, job.ID, status); err != nil {
		r.logger.ErrorContext(ctx, "Failed to update job status",
			"job_id", job.ID, "status", status, "error", err)
	}

	message := fmt.Sprintf("Job %d (%s): %s", job.ID, metadata, status)
	if notifyErr := r.notifier.Notify(ctx, message); notifyErr != nil {
		r.logger.WarnContext(ctx, "Failed to send job notification",
			"job_id", job.ID, "error", notifyErr)
	}
}
