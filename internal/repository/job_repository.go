package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/review-generation-service/internal/domain"
)

// JobRepository handles review job persistence and lifecycle management.
//
// All mutations that feed back from pipeline workers (SetStage, SetCounters,
// UpdateProgress) are guarded on status = 'running': once a job reaches a
// terminal state, late worker callbacks become no-ops instead of resurrecting
// the job. Those methods return domain.ErrJobTerminal when the guard rejects
// the write.
type JobRepository interface {
	// Create inserts a new review job in the pending state.
	// Returns domain.ErrAlreadyExists if a job with the same ID already exists.
	// Returns domain.ErrInvalidInput if required fields are missing.
	Create(ctx context.Context, job *domain.ReviewJob) error

	// Get retrieves a job by its internal ID.
	// Returns domain.ErrNotFound if no matching job exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.ReviewJob, error)

	// GetByTrackingID retrieves a job by its public tracking ID.
	// Returns domain.ErrNotFound if no matching job exists.
	GetByTrackingID(ctx context.Context, trackingID uuid.UUID) (*domain.ReviewJob, error)

	// List retrieves jobs matching the filter criteria, newest first,
	// together with the total count for pagination.
	List(ctx context.Context, filter JobFilter) ([]*domain.ReviewJob, int64, error)

	// CountActiveByUser returns the number of pending or running jobs for a user.
	// Used to enforce the per-user concurrent job quota at submission time.
	CountActiveByUser(ctx context.Context, userID string) (int, error)

	// MarkRunning transitions a pending job to running, records the workflow
	// identifiers, and stamps started_at. Idempotent: re-marking an already
	// running job with the same workflow ID succeeds without change.
	// Returns domain.ErrJobTerminal if the job has already finished.
	MarkRunning(ctx context.Context, id uuid.UUID, workflowID, runID string) error

	// SetStage updates the current pipeline stage of a running job.
	// Returns domain.ErrJobTerminal if the job is not running.
	SetStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error

	// SetTotalTarget records the number of candidate documents retained after
	// the search stage. Only valid while the job is running.
	SetTotalTarget(ctx context.Context, id uuid.UUID, total int) error

	// SetCounters overwrites the per-stage counters and recomputed progress of
	// a running job. Counter values are authoritative from the orchestrator,
	// which only ever moves them forward.
	// Returns domain.ErrJobTerminal if the job is not running.
	SetCounters(ctx context.Context, id uuid.UUID, counters domain.Counters, progress float64) error

	// UpdateProgress updates only the progress percentage of a running job.
	// Returns domain.ErrJobTerminal if the job is not running.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) error

	// Complete transitions a running job to finished, stores the result text,
	// sets progress to 100, clears the current stage, and stamps completed_at.
	// Returns domain.ErrJobTerminal if the job is not running.
	Complete(ctx context.Context, id uuid.UUID, result string) error

	// Fail transitions a running or pending job to failed with the given
	// error message, clears the current stage, and stamps completed_at.
	// Returns domain.ErrJobTerminal if the job is already terminal.
	Fail(ctx context.Context, id uuid.UUID, errorMsg string) error

	// Cancel transitions a pending or running job to canceled, clears the
	// current stage, and stamps completed_at. Cancellation is persisted
	// first; workflow teardown is best-effort and happens after.
	// Returns domain.ErrJobTerminal if the job is already terminal.
	Cancel(ctx context.Context, id uuid.UUID) error
}

// JobFilter specifies criteria for listing review jobs.
type JobFilter struct {
	// UserID filters to jobs owned by this user (required).
	UserID string

	// Status filters by one or more job statuses (optional).
	Status []domain.JobStatus

	// Limit specifies the maximum number of results (default: 50, max: 500).
	Limit int

	// Offset specifies the number of results to skip for pagination.
	Offset int
}

// Validate checks the filter and normalizes pagination values.
func (f *JobFilter) Validate() error {
	if f.UserID == "" {
		return domain.NewValidationError("user_id", "user ID is required")
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
