package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/review-generation-service/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// jobColumns is the canonical SELECT column list for jobs, kept in one place
// so every read path scans the same shape.
const jobColumns = `id, tracking_id, user_id, topic, prompt,
		status, current_stage,
		found_count, downloaded_count, extracted_count, summarized_count,
		total_target, progress_percent,
		result, error_message,
		workflow_id, run_id,
		created_at, updated_at, started_at, completed_at`

// Compile-time interface verification.
var _ JobRepository = (*PgJobRepository)(nil)

// PgJobRepository is a PostgreSQL implementation of JobRepository.
type PgJobRepository struct {
	db DBTX
}

// NewPgJobRepository creates a new PostgreSQL job repository.
func NewPgJobRepository(db DBTX) *PgJobRepository {
	return &PgJobRepository{db: db}
}

// Create inserts a new review job.
func (r *PgJobRepository) Create(ctx context.Context, job *domain.ReviewJob) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.ID == uuid.Nil {
		return domain.NewValidationError("id", "job ID is required")
	}
	if job.TrackingID == uuid.Nil {
		return domain.NewValidationError("tracking_id", "tracking ID is required")
	}
	if job.UserID == "" {
		return domain.NewValidationError("user_id", "user ID is required")
	}
	if job.Topic == "" {
		return domain.NewValidationError("topic", "topic is required")
	}

	query := `
		INSERT INTO jobs (
			id, tracking_id, user_id, topic, prompt,
			status, current_stage,
			found_count, downloaded_count, extracted_count, summarized_count,
			total_target, progress_percent,
			workflow_id, run_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15,
			$16, $17
		)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.TrackingID, job.UserID, job.Topic, job.Prompt,
		job.Status, job.CurrentStage,
		job.Counters.Found, job.Counters.Downloaded, job.Counters.Extracted, job.Counters.Summarized,
		job.TotalTarget, job.ProgressPercent,
		nullString(job.WorkflowID), nullString(job.RunID),
		job.CreatedAt, job.UpdatedAt,
	)

	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// Get retrieves a job by its internal ID.
func (r *PgJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ReviewJob, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE id = $1", jobColumns)

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", id.String())
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetByTrackingID retrieves a job by its public tracking ID.
func (r *PgJobRepository) GetByTrackingID(ctx context.Context, trackingID uuid.UUID) (*domain.ReviewJob, error) {
	query := fmt.Sprintf("SELECT %s FROM jobs WHERE tracking_id = $1", jobColumns)

	job, err := scanJob(r.db.QueryRow(ctx, query, trackingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", trackingID.String())
		}
		return nil, fmt.Errorf("failed to get job by tracking ID: %w", err)
	}

	return job, nil
}

// List retrieves jobs matching the filter criteria.
func (r *PgJobRepository) List(ctx context.Context, filter JobFilter) ([]*domain.ReviewJob, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	argIndex := 2

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs WHERE %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM jobs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		jobColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.ReviewJob, 0, filter.Limit)
	for rows.Next() {
		job, err := scanJobFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, totalCount, nil
}

// CountActiveByUser returns the number of pending or running jobs for a user.
func (r *PgJobRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, domain.NewValidationError("user_id", "user ID is required")
	}

	query := `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND status IN ('pending', 'running')`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}

	return count, nil
}

// MarkRunning transitions a pending job to running and records the workflow identifiers.
func (r *PgJobRepository) MarkRunning(ctx context.Context, id uuid.UUID, workflowID, runID string) error {
	if workflowID == "" {
		return domain.NewValidationError("workflow_id", "workflow ID is required")
	}

	// The status predicate accepts an already-running job with the same
	// workflow ID so workflow replays stay idempotent.
	query := `
		UPDATE jobs
		SET status = 'running',
			workflow_id = $1,
			run_id = $2,
			started_at = COALESCE(started_at, $3),
			updated_at = $3
		WHERE id = $4
		  AND (status = 'pending' OR (status = 'running' AND workflow_id = $1))`

	result, err := r.db.Exec(ctx, query, workflowID, nullString(runID), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// SetStage updates the current pipeline stage of a running job.
func (r *PgJobRepository) SetStage(ctx context.Context, id uuid.UUID, stage domain.Stage) error {
	if !stage.Valid() {
		return domain.NewValidationError("stage", fmt.Sprintf("unknown stage %q", stage))
	}

	query := `
		UPDATE jobs
		SET current_stage = $1, updated_at = $2
		WHERE id = $3 AND status = 'running'`

	result, err := r.db.Exec(ctx, query, stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set job stage: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// SetTotalTarget records the number of candidate documents retained after search.
func (r *PgJobRepository) SetTotalTarget(ctx context.Context, id uuid.UUID, total int) error {
	if total < 0 {
		return domain.NewValidationError("total_target", "total target cannot be negative")
	}

	query := `
		UPDATE jobs
		SET total_target = $1, updated_at = $2
		WHERE id = $3 AND status = 'running'`

	result, err := r.db.Exec(ctx, query, total, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set total target: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// SetCounters overwrites the per-stage counters and progress of a running job.
func (r *PgJobRepository) SetCounters(ctx context.Context, id uuid.UUID, counters domain.Counters, progress float64) error {
	query := `
		UPDATE jobs
		SET found_count = $1,
			downloaded_count = $2,
			extracted_count = $3,
			summarized_count = $4,
			progress_percent = $5,
			updated_at = $6
		WHERE id = $7 AND status = 'running'`

	result, err := r.db.Exec(ctx, query,
		counters.Found, counters.Downloaded, counters.Extracted, counters.Summarized,
		progress, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set job counters: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// UpdateProgress updates only the progress percentage of a running job.
func (r *PgJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64) error {
	query := `
		UPDATE jobs
		SET progress_percent = $1, updated_at = $2
		WHERE id = $3 AND status = 'running'`

	result, err := r.db.Exec(ctx, query, progress, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// Complete transitions a running job to finished with its result text.
func (r *PgJobRepository) Complete(ctx context.Context, id uuid.UUID, result string) error {
	if result == "" {
		return domain.NewValidationError("result", "result text is required")
	}

	query := `
		UPDATE jobs
		SET status = 'finished',
			current_stage = NULL,
			progress_percent = 100,
			result = $1,
			updated_at = $2,
			completed_at = $2
		WHERE id = $3 AND status = 'running'`

	res, err := r.db.Exec(ctx, query, result, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if res.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// Fail transitions a running or pending job to failed.
func (r *PgJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = 'failed',
			current_stage = NULL,
			error_message = $1,
			updated_at = $2,
			completed_at = $2
		WHERE id = $3 AND status IN ('pending', 'running')`

	result, err := r.db.Exec(ctx, query, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// Cancel transitions a pending or running job to canceled.
func (r *PgJobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = 'canceled',
			current_stage = NULL,
			updated_at = $1,
			completed_at = $1
		WHERE id = $2 AND status IN ('pending', 'running')`

	result, err := r.db.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.guardFailure(ctx, id)
	}

	return nil
}

// guardFailure distinguishes "job does not exist" from "job is terminal" after
// a guarded UPDATE matched zero rows.
func (r *PgJobRepository) guardFailure(ctx context.Context, id uuid.UUID) error {
	var status domain.JobStatus
	err := r.db.QueryRow(ctx, "SELECT status FROM jobs WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("job", id.String())
		}
		return fmt.Errorf("failed to check job status: %w", err)
	}
	return fmt.Errorf("job %s is %s: %w", id, status, domain.ErrJobTerminal)
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// jobScanDest holds the destination pointers for scanning a ReviewJob row.
// This eliminates code duplication between pgx.Row and pgx.Rows scanning.
type jobScanDest struct {
	job          domain.ReviewJob
	currentStage *string
	result       *string
	errorMessage *string
	workflowID   *string
	runID        *string
}

// destinations returns the slice of pointers for Scan operations.
func (d *jobScanDest) destinations() []interface{} {
	return []interface{}{
		&d.job.ID, &d.job.TrackingID, &d.job.UserID, &d.job.Topic, &d.job.Prompt,
		&d.job.Status, &d.currentStage,
		&d.job.Counters.Found, &d.job.Counters.Downloaded, &d.job.Counters.Extracted, &d.job.Counters.Summarized,
		&d.job.TotalTarget, &d.job.ProgressPercent,
		&d.result, &d.errorMessage,
		&d.workflowID, &d.runID,
		&d.job.CreatedAt, &d.job.UpdatedAt, &d.job.StartedAt, &d.job.CompletedAt,
	}
}

// finalize converts nullable columns into their domain representations.
func (d *jobScanDest) finalize() *domain.ReviewJob {
	if d.currentStage != nil {
		d.job.CurrentStage = domain.StageRef(domain.Stage(*d.currentStage))
	}
	if d.result != nil {
		d.job.Result = *d.result
	}
	if d.errorMessage != nil {
		d.job.ErrorMessage = *d.errorMessage
	}
	if d.workflowID != nil {
		d.job.WorkflowID = *d.workflowID
	}
	if d.runID != nil {
		d.job.RunID = *d.runID
	}
	return &d.job
}

// scanJob scans a single row into a ReviewJob.
func scanJob(row pgx.Row) (*domain.ReviewJob, error) {
	var dest jobScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// scanJobFromRows scans the current row from pgx.Rows into a ReviewJob.
func scanJobFromRows(rows pgx.Rows) (*domain.ReviewJob, error) {
	var dest jobScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
