// Package domain provides domain models and business logic for the Review
// Generation Service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle states of a review generation job.
// These values must match the database enum job_status.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusFinished, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// Stage represents one of the five ordered phases a running job passes
// through. These values must match the database enum job_stage.
type Stage string

const (
	StageSearching   Stage = "searching"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageSummarizing Stage = "summarizing"
	StageGenerating  Stage = "generating"
)

// Stages returns all pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageSearching,
		StageDownloading,
		StageExtracting,
		StageSummarizing,
		StageGenerating,
	}
}

// Valid reports whether s is a known pipeline stage.
func (s Stage) Valid() bool {
	switch s {
	case StageSearching, StageDownloading, StageExtracting, StageSummarizing, StageGenerating:
		return true
	default:
		return false
	}
}

// Counters holds the per-stage document counters of a job. Counters are
// monotonically non-decreasing and never exceed the job's TotalTarget.
type Counters struct {
	Found      int `json:"found"`
	Downloaded int `json:"downloaded"`
	Extracted  int `json:"extracted"`
	Summarized int `json:"summarized"`
}

// ReviewJob represents one end-to-end literature-review request and its
// persisted progress and result.
//
// Invariants:
//   - CurrentStage is non-nil iff Status is JobStatusRunning.
//   - Exactly one of Result / ErrorMessage is non-empty once Status is terminal.
//   - ProgressPercent stays below 100 until the terminal success transition.
type ReviewJob struct {
	ID         uuid.UUID `json:"id"`
	TrackingID uuid.UUID `json:"tracking_id"`
	UserID     string    `json:"user_id"`

	// Topic is the search topic submitted by the user.
	Topic string `json:"topic"`
	// Prompt is the job-level instruction passed to the text-generation API.
	Prompt string `json:"prompt"`

	Status       JobStatus `json:"status"`
	CurrentStage *Stage    `json:"current_stage,omitempty"`

	Counters Counters `json:"counters"`

	// TotalTarget is the number of candidate documents retained after the
	// search stage. Nil until searching completes.
	TotalTarget *int `json:"total_target,omitempty"`

	ProgressPercent float64 `json:"progress_percent"`

	// Result holds the final synthesized review text. Set only on success.
	Result string `json:"result,omitempty"`
	// ErrorMessage holds the failure reason. Set only on failure.
	ErrorMessage string `json:"error_message,omitempty"`

	// WorkflowID is the Temporal workflow identifier, generated on the
	// transition into running. It doubles as the job's idempotency token:
	// re-enqueueing the same logical job reuses the same workflow ID and
	// cannot spawn a duplicate worker.
	WorkflowID string `json:"workflow_id,omitempty"`
	// RunID is the Temporal run identifier of the current execution.
	RunID string `json:"run_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StageRef returns a pointer to s, for assigning to ReviewJob.CurrentStage.
func StageRef(s Stage) *Stage {
	return &s
}
