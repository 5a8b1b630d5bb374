package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/review-generation-service/internal/domain"
)

// paperColumns is the canonical SELECT column list for papers.
const paperColumns = `id, openalex_id, doi, title, authors, year,
		source_url, pdf_url, pdf_path, extracted_text, summary,
		created_at, updated_at`

// prefixedPaperColumns qualifies paperColumns with the papers alias for joins.
const prefixedPaperColumns = `p.id, p.openalex_id, p.doi, p.title, p.authors, p.year,
		p.source_url, p.pdf_url, p.pdf_path, p.extracted_text, p.summary,
		p.created_at, p.updated_at`

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// GetOrCreate inserts the paper or returns the existing row with the same
// OpenAlexID. The upsert is a no-op on conflict, so metadata written by the
// first job to see a paper wins and pipeline fields are never clobbered.
func (r *PgPaperRepository) GetOrCreate(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.OpenAlexID == "" {
		return nil, domain.NewValidationError("openalex_id", "OpenAlex ID is required")
	}
	if paper.Title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}

	id := paper.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()

	// RETURNING only fires on insert; conflicts fall through to the SELECT.
	query := fmt.Sprintf(`
		INSERT INTO papers (
			id, openalex_id, doi, title, authors, year,
			source_url, pdf_url,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $9
		)
		ON CONFLICT (openalex_id) DO NOTHING
		RETURNING %s`, paperColumns)

	created, err := scanPaper(r.db.QueryRow(ctx, query,
		id, paper.OpenAlexID, nullString(paper.DOI), paper.Title, paper.Authors, paper.Year,
		nullString(paper.SourceURL), nullString(paper.PDFURL),
		now,
	))
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to create paper: %w", err)
	}

	selectQuery := fmt.Sprintf("SELECT %s FROM papers WHERE openalex_id = $1", paperColumns)
	existing, err := scanPaper(r.db.QueryRow(ctx, selectQuery, paper.OpenAlexID))
	if err != nil {
		return nil, fmt.Errorf("failed to get existing paper: %w", err)
	}

	return existing, nil
}

// Get retrieves a paper by its internal ID.
func (r *PgPaperRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Paper, error) {
	query := fmt.Sprintf("SELECT %s FROM papers WHERE id = $1", paperColumns)

	paper, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}

	return paper, nil
}

// AttachToJob links a paper to a job at the given position.
func (r *PgPaperRepository) AttachToJob(ctx context.Context, jobID, paperID uuid.UUID, position int) error {
	query := `
		INSERT INTO job_papers (job_id, paper_id, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, paper_id) DO NOTHING`

	_, err := r.db.Exec(ctx, query, jobID, paperID, position)
	if err != nil {
		return fmt.Errorf("failed to attach paper to job: %w", err)
	}

	return nil
}

// ListByJob returns all papers attached to a job in candidate-set order.
func (r *PgPaperRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.Paper, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM papers p
		JOIN job_papers jp ON jp.paper_id = p.id
		WHERE jp.job_id = $1
		ORDER BY jp.position ASC`, prefixedPaperColumns)

	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers for job: %w", err)
	}
	defer rows.Close()

	var papers []*domain.Paper
	for rows.Next() {
		paper, err := scanPaperFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, nil
}

// SetPDFPath records the local cache path of the downloaded file.
func (r *PgPaperRepository) SetPDFPath(ctx context.Context, id uuid.UUID, path string) error {
	if path == "" {
		return domain.NewValidationError("pdf_path", "path is required")
	}
	return r.fillOnce(ctx, "pdf_path", id, path)
}

// SetExtractedText records the sanitized plain text of the document.
func (r *PgPaperRepository) SetExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	if text == "" {
		return domain.NewValidationError("extracted_text", "text is required")
	}
	return r.fillOnce(ctx, "extracted_text", id, text)
}

// SetSummary records the per-document synopsis or a sentinel failure marker.
func (r *PgPaperRepository) SetSummary(ctx context.Context, id uuid.UUID, summary string) error {
	if summary == "" {
		return domain.NewValidationError("summary", "summary is required")
	}
	return r.fillOnce(ctx, "summary", id, summary)
}

// fillOnce writes a pipeline column only when it is still NULL. Losing the
// race (or re-running a completed step) matches zero rows and is not an
// error, provided the paper exists.
func (r *PgPaperRepository) fillOnce(ctx context.Context, column string, id uuid.UUID, value string) error {
	query := fmt.Sprintf(`
		UPDATE papers
		SET %s = $1, updated_at = $2
		WHERE id = $3 AND %s IS NULL`, column, column)

	result, err := r.db.Exec(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set paper %s: %w", column, err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM papers WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check paper existence: %w", err)
		}
		if !exists {
			return domain.NewNotFoundError("paper", id.String())
		}
		// Already populated, nothing to do.
	}

	return nil
}

// paperScanDest holds the destination pointers for scanning a Paper row.
type paperScanDest struct {
	paper         domain.Paper
	doi           *string
	sourceURL     *string
	pdfURL        *string
	pdfPath       *string
	extractedText *string
	summary       *string
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.OpenAlexID, &d.doi, &d.paper.Title, &d.paper.Authors, &d.paper.Year,
		&d.sourceURL, &d.pdfURL, &d.pdfPath, &d.extractedText, &d.summary,
		&d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

// finalize converts nullable columns into their domain representations.
func (d *paperScanDest) finalize() *domain.Paper {
	if d.doi != nil {
		d.paper.DOI = *d.doi
	}
	if d.sourceURL != nil {
		d.paper.SourceURL = *d.sourceURL
	}
	if d.pdfURL != nil {
		d.paper.PDFURL = *d.pdfURL
	}
	if d.pdfPath != nil {
		d.paper.PDFPath = *d.pdfPath
	}
	if d.extractedText != nil {
		d.paper.ExtractedText = *d.extractedText
	}
	if d.summary != nil {
		d.paper.Summary = *d.summary
	}
	return &d.paper
}

// scanPaper scans a single row into a Paper.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// scanPaperFromRows scans the current row from pgx.Rows into a Paper.
func scanPaperFromRows(rows pgx.Rows) (*domain.Paper, error) {
	var dest paperScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}
