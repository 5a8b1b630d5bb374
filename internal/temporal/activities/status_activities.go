package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/observability"
	"github.com/helixir/review-generation-service/internal/repository"
)

// StatusActivities provides the Temporal activities that persist job
// lifecycle transitions, stage changes, counters, and progress. All writes
// are guarded in the repository by the job's current status: once a job is
// terminal (typically canceled out from under a running workflow), late
// callbacks match zero rows and surface ErrJobTerminal.
//
// Terminal-state and not-found failures are returned as non-retryable
// application errors — retrying cannot change the database's answer, and
// the workflow uses the error type to stop cleanly.
type StatusActivities struct {
	jobRepo repository.JobRepository
	metrics *observability.Metrics
}

// NewStatusActivities creates a new StatusActivities instance. The metrics
// parameter may be nil (metrics recording will be skipped).
func NewStatusActivities(jobRepo repository.JobRepository, metrics *observability.Metrics) *StatusActivities {
	return &StatusActivities{
		jobRepo: jobRepo,
		metrics: metrics,
	}
}

// ErrTypeJobTerminal is the application-error type used when a persistence
// guard rejects a write because the job is already terminal. The workflow
// matches on this type to distinguish "job was canceled under us" from
// infrastructure failures.
const ErrTypeJobTerminal = "JobTerminal"

// guardError converts repository guard failures into non-retryable
// application errors; other errors pass through for Temporal's retry policy.
func guardError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrJobTerminal) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s: job already terminal", op), ErrTypeJobTerminal, err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s: job not found", op), "JobNotFound", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsJobTerminalError reports whether err is the terminal-guard application
// error.
func IsJobTerminalError(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == ErrTypeJobTerminal
}

// MarkRunning transitions the job from pending to running and records the
// workflow identity. Idempotent for workflow retries: a job already running
// under the same workflow ID is accepted.
func (a *StatusActivities) MarkRunning(ctx context.Context, input MarkRunningInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("marking job running",
		"jobID", input.JobID,
		"workflowID", input.WorkflowID,
	)

	err := a.jobRepo.MarkRunning(ctx, input.JobID, input.WorkflowID, input.RunID)
	return guardError("mark running", err)
}

// SetStage records the job's current pipeline stage.
func (a *StatusActivities) SetStage(ctx context.Context, input SetStageInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("setting job stage",
		"jobID", input.JobID,
		"stage", input.Stage,
	)

	err := a.jobRepo.SetStage(ctx, input.JobID, input.Stage)
	return guardError(fmt.Sprintf("set stage %s", input.Stage), err)
}

// SetTotalTarget records the number of candidates retained by the search
// stage. Set once per job.
func (a *StatusActivities) SetTotalTarget(ctx context.Context, input SetTotalTargetInput) error {
	err := a.jobRepo.SetTotalTarget(ctx, input.JobID, input.Total)
	return guardError("set total target", err)
}

// SetCounters checkpoints the per-stage counters and the weighted progress
// computed by the workflow.
func (a *StatusActivities) SetCounters(ctx context.Context, input SetCountersInput) error {
	err := a.jobRepo.SetCounters(ctx, input.JobID, input.Counters, input.Progress)
	return guardError("set counters", err)
}

// CompleteJob persists the final review text and moves the job to finished
// with 100 percent progress.
func (a *StatusActivities) CompleteJob(ctx context.Context, input CompleteJobInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("completing job", "jobID", input.JobID)

	if err := guardError("complete job", a.jobRepo.Complete(ctx, input.JobID, input.Result)); err != nil {
		return err
	}

	if a.metrics != nil {
		a.metrics.RecordJobOutcome(string(domain.JobStatusFinished))
	}
	return nil
}

// FailJob persists the failure reason and moves the job to failed.
func (a *StatusActivities) FailJob(ctx context.Context, input FailJobInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("failing job",
		"jobID", input.JobID,
		"error", input.ErrorMessage,
	)

	if err := guardError("fail job", a.jobRepo.Fail(ctx, input.JobID, input.ErrorMessage)); err != nil {
		return err
	}

	if a.metrics != nil {
		a.metrics.RecordJobOutcome(string(domain.JobStatusFailed))
	}
	return nil
}

// CancelJob moves the job to canceled. The server usually persists the
// cancellation before the workflow observes it; in that case the guard
// reports the job terminal and the result is still correct, so that error is
// swallowed here.
func (a *StatusActivities) CancelJob(ctx context.Context, input CancelJobInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("canceling job", "jobID", input.JobID)

	err := a.jobRepo.Cancel(ctx, input.JobID)
	if errors.Is(err, domain.ErrJobTerminal) {
		return nil
	}
	if err := guardError("cancel job", err); err != nil {
		return err
	}

	if a.metrics != nil {
		a.metrics.RecordJobOutcome(string(domain.JobStatusCanceled))
	}
	return nil
}
