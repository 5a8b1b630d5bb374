package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/review-generation-service/internal/llm"
	"github.com/helixir/review-generation-service/internal/observability"
	"github.com/helixir/review-generation-service/internal/repository"
	"github.com/helixir/review-generation-service/internal/review"
)

// ReviewActivities provides the Temporal activities of the generating stage:
// gathering usable sources and running the section and final synthesis calls.
type ReviewActivities struct {
	paperRepo repository.PaperRepository
	generator llm.Generator
	metrics   *observability.Metrics
}

// NewReviewActivities creates a new ReviewActivities instance. The metrics
// parameter may be nil (metrics recording will be skipped).
func NewReviewActivities(paperRepo repository.PaperRepository, generator llm.Generator, metrics *observability.Metrics) *ReviewActivities {
	return &ReviewActivities{
		paperRepo: paperRepo,
		generator: generator,
		metrics:   metrics,
	}
}

// ListSources loads the job's papers and returns those with usable summaries
// as citation-tagged synthesis sources, preserving attachment order.
func (a *ReviewActivities) ListSources(ctx context.Context, input ListSourcesInput) (*ListSourcesOutput, error) {
	papers, err := a.paperRepo.ListByJob(ctx, input.JobID)
	if err != nil {
		return nil, fmt.Errorf("list papers for job %s: %w", input.JobID, err)
	}

	sources := review.SourcesFromPapers(papers)
	out := &ListSourcesOutput{
		Sources:  make([]SynthesisSource, 0, len(sources)),
		Attached: len(papers),
	}
	for _, s := range sources {
		out.Sources = append(out.Sources, SynthesisSource{
			Title:    s.Title,
			Citation: s.Citation,
			DOI:      s.DOI,
			Summary:  s.Summary,
		})
	}

	return out, nil
}

// GenerateSection produces one partial narrative section over a batch of
// sources. Section failures are tolerated by the workflow (the batch is
// dropped from the fold), so this activity simply surfaces errors after the
// provider's internal retries.
func (a *ReviewActivities) GenerateSection(ctx context.Context, input GenerateSectionInput) (*GenerateSectionOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("generating review section",
		"index", input.Index,
		"total", input.Total,
		"sources", len(input.Sources),
	)

	start := time.Now()
	result, err := a.generator.Generate(ctx, llm.GenerationRequest{
		Kind:        llm.KindSynthesis,
		Prompt:      review.SectionPrompt(input.Prompt, toReviewSources(input.Sources), input.Index, input.Total),
		MaxTokens:   review.SynthesisMaxTokens,
		Temperature: review.SynthesisTemperature,
	})
	a.recordGeneration("section", err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("generate section %d/%d: %w", input.Index, input.Total, err)
	}

	return &GenerateSectionOutput{Text: result.Text}, nil
}

// GenerateReview produces the final review text. When Sections is non-empty
// the call folds the partial sections into one document; otherwise it
// synthesizes directly from the sources. Under-length output gets an explicit
// partial-result notice, and attrition is summarized in processing notes.
// A failure here, after the provider's retries, is job-fatal.
func (a *ReviewActivities) GenerateReview(ctx context.Context, input GenerateReviewInput) (*GenerateReviewOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("generating final review",
		"sources", len(input.Sources),
		"sections", len(input.Sections),
		"processed", input.Processed,
		"found", input.Found,
	)

	var prompt string
	if len(input.Sections) > 0 {
		prompt = review.FoldPrompt(input.Prompt, input.Sections, len(input.Sources))
	} else {
		prompt = review.DirectPrompt(input.Prompt, toReviewSources(input.Sources))
	}

	start := time.Now()
	result, err := a.generator.Generate(ctx, llm.GenerationRequest{
		Kind:        llm.KindSynthesis,
		Prompt:      prompt,
		MaxTokens:   review.SynthesisMaxTokens,
		Temperature: review.SynthesisTemperature,
	})
	a.recordGeneration("final", err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("generate final review: %w", err)
	}

	words := review.WordCount(result.Text)
	text := review.EnsureMinimumLength(result.Text)
	text += review.ProcessingNotes(input.Processed, input.Found)

	logger.Info("final review generated",
		"words", words,
		"model", result.Model,
	)

	return &GenerateReviewOutput{Text: text, WordCount: words}, nil
}

func (a *ReviewActivities) recordGeneration(kind string, ok bool, d time.Duration) {
	if a.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	a.metrics.RecordGeneration(kind, outcome, d.Seconds())
}

func toReviewSources(sources []SynthesisSource) []review.Source {
	out := make([]review.Source, 0, len(sources))
	for _, s := range sources {
		out = append(out, review.Source{
			Title:    s.Title,
			Citation: s.Citation,
			DOI:      s.DOI,
			Summary:  s.Summary,
		})
	}
	return out
}
