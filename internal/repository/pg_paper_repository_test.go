package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-generation-service/internal/domain"
)

// Helper to create a valid paper for testing.
func newTestPaper() *domain.Paper {
	now := time.Now().UTC()
	year := 2023
	return &domain.Paper{
		ID:         uuid.New(),
		OpenAlexID: "W2741809807",
		DOI:        "10.1234/test.paper",
		Title:      "A Test Paper on Review Generation",
		Authors:    []string{"Jane Smith", "John Doe"},
		Year:       &year,
		SourceURL:  "https://openalex.org/W2741809807",
		PDFURL:     "https://example.com/paper.pdf",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// paperRows builds a pgxmock row set matching paperColumns for the given paper.
func paperRows(paper *domain.Paper) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "openalex_id", "doi", "title", "authors", "year",
		"source_url", "pdf_url", "pdf_path", "extracted_text", "summary",
		"created_at", "updated_at",
	}).AddRow(
		paper.ID, paper.OpenAlexID, nullString(paper.DOI), paper.Title, paper.Authors, paper.Year,
		nullString(paper.SourceURL), nullString(paper.PDFURL),
		nullString(paper.PDFPath), nullString(paper.ExtractedText), nullString(paper.Summary),
		paper.CreatedAt, paper.UpdatedAt,
	)
}

func TestPgPaperRepository_GetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new paper", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				paper.ID, paper.OpenAlexID, pgxmock.AnyArg(), paper.Title, paper.Authors, paper.Year,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnRows(paperRows(paper))

		got, err := repo.GetOrCreate(ctx, paper)
		require.NoError(t, err)
		assert.Equal(t, paper.OpenAlexID, got.OpenAlexID)
		assert.Equal(t, paper.Authors, got.Authors)
	})

	t.Run("returns existing paper on conflict", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()

		existing := newTestPaper()
		existing.OpenAlexID = paper.OpenAlexID
		existing.Summary = "An earlier job already summarized this paper with plenty of detail."

		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				paper.ID, paper.OpenAlexID, pgxmock.AnyArg(), paper.Title, paper.Authors, paper.Year,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT (.+) FROM papers WHERE openalex_id").
			WithArgs(paper.OpenAlexID).
			WillReturnRows(paperRows(existing))

		got, err := repo.GetOrCreate(ctx, paper)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, got.ID)
		assert.Equal(t, existing.Summary, got.Summary)
	})

	t.Run("rejects missing openalex ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()
		paper.OpenAlexID = ""

		_, err = repo.GetOrCreate(ctx, paper)

		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "openalex_id", validationErr.Field)
	})
}

func TestPgPaperRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns paper by ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper()
		paper.ExtractedText = "some extracted text"

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE id").
			WithArgs(paper.ID).
			WillReturnRows(paperRows(paper))

		got, err := repo.Get(ctx, paper.ID)
		require.NoError(t, err)
		assert.Equal(t, paper.ID, got.ID)
		assert.Equal(t, "some extracted text", got.ExtractedText)
	})

	t.Run("returns not found for missing paper", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectQuery("SELECT (.+) FROM papers WHERE id").
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_AttachToJob(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)
	jobID := uuid.New()
	paperID := uuid.New()

	mock.ExpectExec("INSERT INTO job_papers").
		WithArgs(jobID, paperID, 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.AttachToJob(ctx, jobID, paperID, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgPaperRepository_ListByJob(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)
	jobID := uuid.New()
	paper := newTestPaper()

	mock.ExpectQuery("SELECT (.+) FROM papers p").
		WithArgs(jobID).
		WillReturnRows(paperRows(paper))

	papers, err := repo.ListByJob(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, paper.OpenAlexID, papers[0].OpenAlexID)
}

func TestPgPaperRepository_FillOnceSetters(t *testing.T) {
	ctx := context.Background()

	t.Run("sets pdf path when null", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs("/cache/ab/cdef.pdf", pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.SetPDFPath(ctx, id, "/cache/ab/cdef.pdf"))
	})

	t.Run("already populated field is a no-op", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs("fresh summary text", pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		require.NoError(t, repo.SetSummary(ctx, id, "fresh summary text"))
	})

	t.Run("missing paper is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs("text", pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		err = repo.SetExtractedText(ctx, id, "text")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("sentinel summaries are persisted like real ones", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		id := uuid.New()

		mock.ExpectExec("UPDATE papers").
			WithArgs(domain.SummaryGenerationError, pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.SetSummary(ctx, id, domain.SummaryGenerationError))
	})
}
