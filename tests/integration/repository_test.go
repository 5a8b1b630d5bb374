//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/repository"
)

func newIntegrationJob(userID string) *domain.ReviewJob {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ReviewJob{
		ID:         uuid.New(),
		TrackingID: uuid.New(),
		UserID:     userID,
		Topic:      "integration test topic",
		Prompt:     "focus on methods",
		Status:     domain.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPgJobRepository_Integration(t *testing.T) {
	cleanTables(t, "jobs")
	repo := repository.NewPgJobRepository(testPool)
	ctx := context.Background()

	t.Run("Create and Get roundtrip", func(t *testing.T) {
		job := newIntegrationJob("user-integration")
		require.NoError(t, repo.Create(ctx, job))

		got, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.TrackingID, got.TrackingID)
		assert.Equal(t, job.UserID, got.UserID)
		assert.Equal(t, job.Topic, got.Topic)
		assert.Equal(t, job.Prompt, got.Prompt)
		assert.Equal(t, domain.JobStatusPending, got.Status)
		assert.Nil(t, got.CurrentStage)
		assert.Nil(t, got.TotalTarget)
	})

	t.Run("Create duplicate returns already exists", func(t *testing.T) {
		job := newIntegrationJob("user-integration")
		require.NoError(t, repo.Create(ctx, job))

		err := repo.Create(ctx, job)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("Get unknown job returns not found", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("GetByTrackingID resolves the public identifier", func(t *testing.T) {
		job := newIntegrationJob("user-tracking")
		require.NoError(t, repo.Create(ctx, job))

		got, err := repo.GetByTrackingID(ctx, job.TrackingID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)

		_, err = repo.GetByTrackingID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("full lifecycle pending to finished", func(t *testing.T) {
		job := newIntegrationJob("user-lifecycle")
		require.NoError(t, repo.Create(ctx, job))

		workflowID := "review-" + job.ID.String()
		require.NoError(t, repo.MarkRunning(ctx, job.ID, workflowID, "run-1"))

		// MarkRunning is idempotent for the same workflow ID.
		require.NoError(t, repo.MarkRunning(ctx, job.ID, workflowID, "run-1"))

		got, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, got.Status)
		assert.Equal(t, workflowID, got.WorkflowID)
		assert.NotNil(t, got.StartedAt)

		require.NoError(t, repo.SetStage(ctx, job.ID, domain.StageSearching))
		require.NoError(t, repo.SetTotalTarget(ctx, job.ID, 12))
		require.NoError(t, repo.SetCounters(ctx, job.ID, domain.Counters{Found: 12, Downloaded: 5}, 32.5))

		got, err = repo.Get(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CurrentStage)
		assert.Equal(t, domain.StageSearching, *got.CurrentStage)
		require.NotNil(t, got.TotalTarget)
		assert.Equal(t, 12, *got.TotalTarget)
		assert.Equal(t, 12, got.Counters.Found)
		assert.Equal(t, 5, got.Counters.Downloaded)
		assert.InDelta(t, 32.5, got.ProgressPercent, 0.001)

		require.NoError(t, repo.Complete(ctx, job.ID, "# Review\n\nSynthesized text."))

		got, err = repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFinished, got.Status)
		assert.Equal(t, "# Review\n\nSynthesized text.", got.Result)
		assert.Nil(t, got.CurrentStage)
		assert.InDelta(t, 100.0, got.ProgressPercent, 0.001)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("terminal guard rejects late worker callbacks", func(t *testing.T) {
		job := newIntegrationJob("user-guard")
		require.NoError(t, repo.Create(ctx, job))
		require.NoError(t, repo.MarkRunning(ctx, job.ID, "wf-guard", "run-1"))
		require.NoError(t, repo.Cancel(ctx, job.ID))

		assert.ErrorIs(t, repo.SetStage(ctx, job.ID, domain.StageExtracting), domain.ErrJobTerminal)
		assert.ErrorIs(t, repo.SetCounters(ctx, job.ID, domain.Counters{Found: 1}, 10), domain.ErrJobTerminal)
		assert.ErrorIs(t, repo.UpdateProgress(ctx, job.ID, 50), domain.ErrJobTerminal)
		assert.ErrorIs(t, repo.Complete(ctx, job.ID, "late result"), domain.ErrJobTerminal)
		assert.ErrorIs(t, repo.Fail(ctx, job.ID, "late failure"), domain.ErrJobTerminal)
		assert.ErrorIs(t, repo.Cancel(ctx, job.ID), domain.ErrJobTerminal)

		// The canceled state survives untouched.
		got, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCanceled, got.Status)
		assert.Empty(t, got.Result)
	})

	t.Run("Fail records the error message", func(t *testing.T) {
		job := newIntegrationJob("user-fail")
		require.NoError(t, repo.Create(ctx, job))
		require.NoError(t, repo.MarkRunning(ctx, job.ID, "wf-fail", "run-1"))
		require.NoError(t, repo.Fail(ctx, job.ID, "no documents could be processed"))

		got, err := repo.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, "no documents could be processed", got.ErrorMessage)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("CountActiveByUser counts pending and running only", func(t *testing.T) {
		cleanTables(t, "jobs")

		pending := newIntegrationJob("user-quota")
		require.NoError(t, repo.Create(ctx, pending))

		running := newIntegrationJob("user-quota")
		require.NoError(t, repo.Create(ctx, running))
		require.NoError(t, repo.MarkRunning(ctx, running.ID, "wf-quota", "run-1"))

		done := newIntegrationJob("user-quota")
		require.NoError(t, repo.Create(ctx, done))
		require.NoError(t, repo.MarkRunning(ctx, done.ID, "wf-quota-2", "run-1"))
		require.NoError(t, repo.Complete(ctx, done.ID, "text"))

		other := newIntegrationJob("user-other")
		require.NoError(t, repo.Create(ctx, other))

		count, err := repo.CountActiveByUser(ctx, "user-quota")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("List filters by user and status with pagination", func(t *testing.T) {
		cleanTables(t, "jobs")

		for i := 0; i < 5; i++ {
			job := newIntegrationJob("user-list")
			require.NoError(t, repo.Create(ctx, job))
			if i < 2 {
				require.NoError(t, repo.MarkRunning(ctx, job.ID, "wf-list-"+job.ID.String(), "run-1"))
			}
		}
		require.NoError(t, repo.Create(ctx, newIntegrationJob("user-unrelated")))

		jobs, total, err := repo.List(ctx, repository.JobFilter{UserID: "user-list", Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, jobs, 3)
		for _, j := range jobs {
			assert.Equal(t, "user-list", j.UserID)
		}

		rest, total, err := repo.List(ctx, repository.JobFilter{UserID: "user-list", Limit: 3, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, rest, 2)

		running, total, err := repo.List(ctx, repository.JobFilter{
			UserID: "user-list",
			Status: []domain.JobStatus{domain.JobStatusRunning},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, running, 2)
	})
}

func TestPgPaperRepository_Integration(t *testing.T) {
	cleanTables(t, "jobs", "papers", "job_papers")
	paperRepo := repository.NewPgPaperRepository(testPool)
	jobRepo := repository.NewPgJobRepository(testPool)
	ctx := context.Background()

	year := 2023
	newPaper := func(openalexID string) *domain.Paper {
		return &domain.Paper{
			OpenAlexID: openalexID,
			DOI:        "10.1234/" + openalexID,
			Title:      "Integration Paper " + openalexID,
			Authors:    []string{"Jane Smith", "Bob Lee"},
			Year:       &year,
			SourceURL:  "https://openalex.org/" + openalexID,
			PDFURL:     "https://example.org/" + openalexID + ".pdf",
		}
	}

	t.Run("GetOrCreate deduplicates by source identifier", func(t *testing.T) {
		first, err := paperRepo.GetOrCreate(ctx, newPaper("W1000"))
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, first.ID)

		second, err := paperRepo.GetOrCreate(ctx, newPaper("W1000"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		distinct, err := paperRepo.GetOrCreate(ctx, newPaper("W1001"))
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, distinct.ID)
	})

	t.Run("AttachToJob and ListByJob preserve candidate order", func(t *testing.T) {
		job := newIntegrationJob("user-papers")
		require.NoError(t, jobRepo.Create(ctx, job))

		var ids []uuid.UUID
		for _, oid := range []string{"W2001", "W2002", "W2003"} {
			p, err := paperRepo.GetOrCreate(ctx, newPaper(oid))
			require.NoError(t, err)
			ids = append(ids, p.ID)
		}

		// Attach out of insertion order; position defines the candidate set.
		require.NoError(t, paperRepo.AttachToJob(ctx, job.ID, ids[2], 0))
		require.NoError(t, paperRepo.AttachToJob(ctx, job.ID, ids[0], 1))
		require.NoError(t, paperRepo.AttachToJob(ctx, job.ID, ids[1], 2))

		// Re-attaching an existing pair is a no-op.
		require.NoError(t, paperRepo.AttachToJob(ctx, job.ID, ids[2], 0))

		papers, err := paperRepo.ListByJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, papers, 3)
		assert.Equal(t, ids[2], papers[0].ID)
		assert.Equal(t, ids[0], papers[1].ID)
		assert.Equal(t, ids[1], papers[2].ID)
	})

	t.Run("pipeline fields fill once", func(t *testing.T) {
		p, err := paperRepo.GetOrCreate(ctx, newPaper("W3001"))
		require.NoError(t, err)

		require.NoError(t, paperRepo.SetPDFPath(ctx, p.ID, "data/pdfs/ab/abcd.pdf"))
		require.NoError(t, paperRepo.SetExtractedText(ctx, p.ID, "Extracted body text."))
		require.NoError(t, paperRepo.SetSummary(ctx, p.ID, "A substantive summary of the findings."))

		// Second writers lose: the original values stay in place.
		require.NoError(t, paperRepo.SetPDFPath(ctx, p.ID, "data/pdfs/ff/other.pdf"))
		require.NoError(t, paperRepo.SetExtractedText(ctx, p.ID, "overwrite attempt"))
		require.NoError(t, paperRepo.SetSummary(ctx, p.ID, "overwrite attempt"))

		got, err := paperRepo.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "data/pdfs/ab/abcd.pdf", got.PDFPath)
		assert.Equal(t, "Extracted body text.", got.ExtractedText)
		assert.Equal(t, "A substantive summary of the findings.", got.Summary)
	})

	t.Run("Get unknown paper returns not found", func(t *testing.T) {
		_, err := paperRepo.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
