package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/review-generation-service/internal/domain"
)

// PaperRepository handles paper persistence and deduplication.
//
// Papers are shared across jobs and deduplicated by OpenAlexID. The pipeline
// fields (pdf_path, extracted_text, summary) are fill-once: setters only write
// when the column is still NULL, so concurrent jobs racing on the same paper
// resolve to a single winner and re-invocations skip already-populated fields.
type PaperRepository interface {
	// GetOrCreate inserts the paper if no row with its OpenAlexID exists, or
	// returns the existing row otherwise. The returned paper always carries
	// the canonical database ID and any pipeline fields populated by earlier
	// jobs.
	GetOrCreate(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)

	// Get retrieves a paper by its internal ID.
	// Returns domain.ErrNotFound if no matching paper exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Paper, error)

	// AttachToJob links a paper to a job at the given position in the
	// candidate set. Idempotent: re-attaching an existing pair is a no-op.
	AttachToJob(ctx context.Context, jobID, paperID uuid.UUID, position int) error

	// ListByJob returns all papers attached to a job in candidate-set order.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.Paper, error)

	// SetPDFPath records the local cache path of the downloaded file.
	// Fill-once: a no-op if pdf_path is already populated.
	SetPDFPath(ctx context.Context, id uuid.UUID, path string) error

	// SetExtractedText records the sanitized plain text of the document.
	// Fill-once: a no-op if extracted_text is already populated.
	SetExtractedText(ctx context.Context, id uuid.UUID, text string) error

	// SetSummary records the per-document synopsis, or a sentinel value on
	// permanent failure. Fill-once: a no-op if summary is already populated.
	SetSummary(ctx context.Context, id uuid.UUID, summary string) error
}
