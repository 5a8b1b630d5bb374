package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/observability"
	"github.com/helixir/review-generation-service/internal/repository"
)

// Searcher defines the interface for the bibliographic search client. This
// decouples the activity from the concrete openalex.Client, enabling testing
// with mock implementations.
type Searcher interface {
	Search(ctx context.Context, topic string, limit int) ([]*domain.Paper, error)
}

// SearchActivities provides the Temporal activity for the searching stage.
// Methods on this struct are registered as Temporal activities via the worker.
type SearchActivities struct {
	searcher  Searcher
	paperRepo repository.PaperRepository
	metrics   *observability.Metrics
}

// NewSearchActivities creates a new SearchActivities instance. The metrics
// parameter may be nil (metrics recording will be skipped).
func NewSearchActivities(searcher Searcher, paperRepo repository.PaperRepository, metrics *observability.Metrics) *SearchActivities {
	return &SearchActivities{
		searcher:  searcher,
		paperRepo: paperRepo,
		metrics:   metrics,
	}
}

// SearchPapers searches the bibliographic index for the job's topic, persists
// the candidate papers, and attaches them to the job in citation-count order.
//
// Zero results is a job-fatal condition: no amount of retrying will make
// results appear, so the activity returns a non-retryable application error
// and the workflow fails the job. Papers are deduplicated by their stable
// source identifier; attachment is idempotent, so a re-invoked search after a
// crash re-attaches the same set without duplicates.
func (a *SearchActivities) SearchPapers(ctx context.Context, input SearchPapersInput) (*SearchPapersOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("searching for papers",
		"jobID", input.JobID,
		"topic", input.Topic,
		"maxPapers", input.MaxPapers,
	)

	start := time.Now()
	papers, err := a.searcher.Search(ctx, input.Topic, input.MaxPapers)
	if a.metrics != nil {
		a.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if errors.Is(err, domain.ErrNoResults) {
			if a.metrics != nil {
				a.metrics.SearchRequests.WithLabelValues("empty").Inc()
			}
			logger.Warn("search returned no results", "jobID", input.JobID, "topic", input.Topic)
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("no papers found for topic %q", input.Topic),
				"NoResults",
				err,
			)
		}
		if a.metrics != nil {
			a.metrics.SearchRequests.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("search papers: %w", err)
	}

	if a.metrics != nil {
		a.metrics.SearchRequests.WithLabelValues("ok").Inc()
	}

	refs := make([]PaperRef, 0, len(papers))
	for position, candidate := range papers {
		activity.RecordHeartbeat(ctx, fmt.Sprintf("persisting paper %d/%d", position+1, len(papers)))

		saved, err := a.paperRepo.GetOrCreate(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("persist paper %s: %w", candidate.OpenAlexID, err)
		}

		if err := a.paperRepo.AttachToJob(ctx, input.JobID, saved.ID, position); err != nil {
			return nil, fmt.Errorf("attach paper %s to job: %w", saved.ID, err)
		}

		refs = append(refs, PaperRef{
			PaperID:    saved.ID,
			Title:      saved.Title,
			HasPDFURL:  saved.PDFURL != "",
			HasPDF:     saved.PDFPath != "",
			HasText:    saved.ExtractedText != "",
			HasSummary: saved.Summary != "",
		})
	}

	logger.Info("search completed",
		"jobID", input.JobID,
		"found", len(refs),
	)

	return &SearchPapersOutput{
		Papers: refs,
		Found:  len(refs),
	}, nil
}
