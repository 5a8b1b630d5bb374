// Package activities provides Temporal activity implementations for the
// review job pipeline.
//
// Activity inputs and outputs are serializable structs that cross the
// Temporal data-converter boundary; all fields must be exported. Every
// per-document activity is idempotent: the underlying persistence is
// fill-once (null-column guarded), so at-least-once execution and workflow
// replay are safe.
package activities

import (
	"github.com/google/uuid"

	"github.com/helixir/review-generation-service/internal/domain"
)

// PaperRef is the workflow's lightweight view of one candidate document. It
// carries enough state for the workflow to decide which stages a document
// still needs without holding full paper records in workflow history.
type PaperRef struct {
	// PaperID is the paper's database identifier.
	PaperID uuid.UUID

	// Title is carried for logging only.
	Title string

	// HasPDFURL reports whether the paper has an open-access download URL.
	HasPDFURL bool

	// HasPDF reports whether the PDF is already cached on disk.
	HasPDF bool

	// HasText reports whether text extraction already succeeded.
	HasText bool

	// HasSummary reports whether a summary (real or sentinel) exists.
	HasSummary bool
}

// SearchPapersInput contains the parameters for the search activity.
type SearchPapersInput struct {
	// JobID is the job the results attach to.
	JobID uuid.UUID

	// Topic is the bibliographic search topic.
	Topic string

	// MaxPapers caps how many candidates are retained.
	MaxPapers int
}

// SearchPapersOutput contains the results of the search activity.
type SearchPapersOutput struct {
	// Papers are the retained candidates in citation-count order.
	Papers []PaperRef

	// Found is the number of retained candidates.
	Found int
}

// DownloadPaperInput contains the parameters for the download activity.
type DownloadPaperInput struct {
	PaperID uuid.UUID
}

// DownloadPaperOutput reports the outcome of one download attempt.
type DownloadPaperOutput struct {
	// Downloaded is true when the paper now has a cached PDF, whether this
	// call fetched it or a previous run already had.
	Downloaded bool

	// CacheHit is true when the PDF was already cached and no network call
	// was made.
	CacheHit bool

	// Skipped is true when the paper cannot be downloaded (no URL, source
	// permanently unavailable). Skips are not errors.
	Skipped bool
}

// ExtractPaperInput contains the parameters for the extraction activity.
type ExtractPaperInput struct {
	PaperID uuid.UUID
}

// ExtractPaperOutput reports the outcome of one extraction attempt.
type ExtractPaperOutput struct {
	// Extracted is true when the paper now has extracted text.
	Extracted bool

	// Skipped is true when extraction is impossible (no cached PDF, broken
	// file, too little text). Skips are not errors.
	Skipped bool
}

// SummarizePaperInput contains the parameters for the summarize activity.
type SummarizePaperInput struct {
	PaperID uuid.UUID

	// Prompt is the job-level user instruction, woven into the summary
	// prompt's relevance clause.
	Prompt string
}

// SummarizePaperOutput reports the outcome of one summarize attempt.
type SummarizePaperOutput struct {
	// Summarized is true when the paper now has a usable (non-sentinel)
	// summary.
	Summarized bool

	// Sentinel is true when a sentinel marker was stored instead; the
	// document is lost to this job but the job continues.
	Sentinel bool

	// Skipped is true when the paper has no extracted text to summarize.
	Skipped bool
}

// ListSourcesInput contains the parameters for the source listing activity.
type ListSourcesInput struct {
	JobID uuid.UUID
}

// SynthesisSource is one citation-tagged summary feeding synthesis.
type SynthesisSource struct {
	Title    string
	Citation string
	DOI      string
	Summary  string
}

// ListSourcesOutput contains the usable sources of a job.
type ListSourcesOutput struct {
	// Sources are the documents with usable summaries, in attachment order.
	Sources []SynthesisSource

	// Attached is the total number of documents attached to the job.
	Attached int
}

// GenerateSectionInput contains the parameters for one section call.
type GenerateSectionInput struct {
	// Prompt is the job-level user instruction.
	Prompt string

	// Sources is one batch of summaries.
	Sources []SynthesisSource

	// Index and Total are the 1-based section numbering.
	Index int
	Total int
}

// GenerateSectionOutput contains one generated section.
type GenerateSectionOutput struct {
	Text string
}

// GenerateReviewInput contains the parameters for the final synthesis call.
type GenerateReviewInput struct {
	// Prompt is the job-level user instruction.
	Prompt string

	// Sources is the full usable source set. Used directly when Sections is
	// empty (small jobs synthesize in one call).
	Sources []SynthesisSource

	// Sections are previously generated partial sections to fold. Empty for
	// the direct path.
	Sections []string

	// Processed and Found describe attrition for the processing notes.
	Processed int
	Found     int
}

// GenerateReviewOutput contains the final review text.
type GenerateReviewOutput struct {
	Text string

	// WordCount is the length of the final text before notes were appended.
	WordCount int
}

// MarkRunningInput contains the parameters for the job-start transition.
type MarkRunningInput struct {
	JobID      uuid.UUID
	WorkflowID string
	RunID      string
}

// SetStageInput contains the parameters for a stage transition.
type SetStageInput struct {
	JobID uuid.UUID
	Stage domain.Stage
}

// SetTotalTargetInput contains the parameters for recording the candidate count.
type SetTotalTargetInput struct {
	JobID uuid.UUID
	Total int
}

// SetCountersInput contains the parameters for a counter checkpoint.
type SetCountersInput struct {
	JobID    uuid.UUID
	Counters domain.Counters

	// Progress is the weighted percentage computed by the workflow.
	Progress float64
}

// CompleteJobInput contains the parameters for the success transition.
type CompleteJobInput struct {
	JobID  uuid.UUID
	Result string
}

// FailJobInput contains the parameters for the failure transition.
type FailJobInput struct {
	JobID        uuid.UUID
	ErrorMessage string
}

// CancelJobInput contains the parameters for the cancellation transition.
type CancelJobInput struct {
	JobID uuid.UUID
}

// PublishEventInput is the serializable input for the event activity.
type PublishEventInput struct {
	// EventType is one of the domain.EventJob* constants.
	EventType string

	JobID      uuid.UUID
	TrackingID uuid.UUID
	UserID     string
	Topic      string

	// Payload carries event-specific details (counters, error message).
	Payload map[string]interface{}
}
