package activities

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/extract"
	"github.com/helixir/review-generation-service/internal/llm"
	"github.com/helixir/review-generation-service/internal/observability"
	"github.com/helixir/review-generation-service/internal/pdf"
	"github.com/helixir/review-generation-service/internal/repository"
	"github.com/helixir/review-generation-service/internal/review"
)

// Fetcher defines the interface for PDF downloads. Decoupled from the
// concrete pdf.Downloader for testing.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (*pdf.DownloadResult, error)
}

// FileStore defines the interface for the content-addressed PDF cache.
type FileStore interface {
	Exists(sourceURL string) bool
	PathFor(sourceURL string) string
	Put(sourceURL string, content []byte) (string, error)
	Read(sourceURL string) ([]byte, error)
}

// TextExtractor defines the interface for PDF text extraction.
type TextExtractor interface {
	Extract(rs *bytes.Reader) (string, error)
}

// extractorAdapter adapts extract.Extractor's io.ReadSeeker parameter to the
// narrower TextExtractor interface.
type extractorAdapter struct {
	inner *extract.Extractor
}

func (e extractorAdapter) Extract(rs *bytes.Reader) (string, error) {
	return e.inner.Extract(rs)
}

// NewTextExtractor wraps an extract.Extractor for use by PaperActivities.
func NewTextExtractor(inner *extract.Extractor) TextExtractor {
	return extractorAdapter{inner: inner}
}

// PaperActivities provides the per-document Temporal activities: download,
// extract, and summarize. Every activity is idempotent; a re-invocation
// after a crash or during a workflow retry observes the fill-once persisted
// state and skips the work.
type PaperActivities struct {
	paperRepo repository.PaperRepository
	fetcher   Fetcher
	store     FileStore
	extractor TextExtractor
	generator llm.Generator
	metrics   *observability.Metrics
}

// NewPaperActivities creates a new PaperActivities instance. The metrics
// parameter may be nil (metrics recording will be skipped).
func NewPaperActivities(
	paperRepo repository.PaperRepository,
	fetcher Fetcher,
	store FileStore,
	extractor TextExtractor,
	generator llm.Generator,
	metrics *observability.Metrics,
) *PaperActivities {
	return &PaperActivities{
		paperRepo: paperRepo,
		fetcher:   fetcher,
		store:     store,
		extractor: extractor,
		generator: generator,
		metrics:   metrics,
	}
}

// DownloadPaper fetches one paper's PDF into the content-addressed cache and
// records the cache path on the paper.
//
// Outcomes that cannot improve with retries (no download URL, permanently
// unavailable source, non-PDF content, oversized file) are reported as skips,
// not errors, so a single bad document never stalls the stage. A paper whose
// PDF is already cached — by this job's previous run or by a concurrent job
// sharing the document — skips the network entirely.
func (a *PaperActivities) DownloadPaper(ctx context.Context, input DownloadPaperInput) (*DownloadPaperOutput, error) {
	logger := activity.GetLogger(ctx)

	paper, err := a.paperRepo.Get(ctx, input.PaperID)
	if err != nil {
		return nil, fmt.Errorf("load paper %s: %w", input.PaperID, err)
	}

	if paper.PDFPath != "" {
		a.recordDocument("download", "cached")
		if a.metrics != nil {
			a.metrics.CacheHits.Inc()
		}
		return &DownloadPaperOutput{Downloaded: true, CacheHit: true}, nil
	}

	if paper.PDFURL == "" {
		a.recordDocument("download", "skipped")
		logger.Info("paper has no download URL, skipping", "paperID", input.PaperID)
		return &DownloadPaperOutput{Skipped: true}, nil
	}

	// A concurrent job may have fetched the same URL already.
	if a.store.Exists(paper.PDFURL) {
		path := a.store.PathFor(paper.PDFURL)
		if err := a.paperRepo.SetPDFPath(ctx, input.PaperID, path); err != nil {
			return nil, fmt.Errorf("record cached pdf path: %w", err)
		}
		a.recordDocument("download", "cached")
		if a.metrics != nil {
			a.metrics.CacheHits.Inc()
		}
		return &DownloadPaperOutput{Downloaded: true, CacheHit: true}, nil
	}

	result, err := a.fetcher.Download(ctx, paper.PDFURL)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) ||
			errors.Is(err, pdf.ErrNotPDF) ||
			errors.Is(err, pdf.ErrTooLarge) ||
			errors.Is(err, pdf.ErrDownloadFailed) {
			a.recordDocument("download", "failed")
			logger.Warn("paper download failed permanently, skipping",
				"paperID", input.PaperID,
				"error", err,
			)
			return &DownloadPaperOutput{Skipped: true}, nil
		}
		return nil, fmt.Errorf("download paper %s: %w", input.PaperID, err)
	}

	path, err := a.store.Put(paper.PDFURL, result.Content)
	if err != nil {
		return nil, fmt.Errorf("cache pdf for paper %s: %w", input.PaperID, err)
	}

	if err := a.paperRepo.SetPDFPath(ctx, input.PaperID, path); err != nil {
		return nil, fmt.Errorf("record pdf path: %w", err)
	}

	a.recordDocument("download", "ok")
	logger.Info("paper downloaded",
		"paperID", input.PaperID,
		"sizeBytes", result.SizeBytes,
	)

	return &DownloadPaperOutput{Downloaded: true}, nil
}

// ExtractPaper extracts plain text from one paper's cached PDF and records
// it on the paper. Files the extractor cannot parse, or that yield too
// little text, are skips.
func (a *PaperActivities) ExtractPaper(ctx context.Context, input ExtractPaperInput) (*ExtractPaperOutput, error) {
	logger := activity.GetLogger(ctx)

	paper, err := a.paperRepo.Get(ctx, input.PaperID)
	if err != nil {
		return nil, fmt.Errorf("load paper %s: %w", input.PaperID, err)
	}

	if paper.ExtractedText != "" {
		a.recordDocument("extract", "cached")
		return &ExtractPaperOutput{Extracted: true}, nil
	}

	if paper.PDFPath == "" {
		a.recordDocument("extract", "skipped")
		return &ExtractPaperOutput{Skipped: true}, nil
	}

	content, err := a.store.Read(paper.PDFURL)
	if err != nil {
		a.recordDocument("extract", "failed")
		logger.Warn("cached pdf unreadable, skipping",
			"paperID", input.PaperID,
			"error", err,
		)
		return &ExtractPaperOutput{Skipped: true}, nil
	}

	text, err := a.extractor.Extract(bytes.NewReader(content))
	if err != nil {
		a.recordDocument("extract", "failed")
		logger.Warn("text extraction failed, skipping",
			"paperID", input.PaperID,
			"error", err,
		)
		return &ExtractPaperOutput{Skipped: true}, nil
	}

	if err := a.paperRepo.SetExtractedText(ctx, input.PaperID, text); err != nil {
		return nil, fmt.Errorf("record extracted text: %w", err)
	}

	a.recordDocument("extract", "ok")
	logger.Info("paper text extracted",
		"paperID", input.PaperID,
		"chars", len(text),
	)

	return &ExtractPaperOutput{Extracted: true}, nil
}

// SummarizePaper generates one per-document summary and records it on the
// paper.
//
// The generation provider retries transient failures internally; if those
// retries are exhausted, or the model returns unusable output, a sentinel
// marker is stored instead of real text. The sentinel makes the failure
// permanent for this document — re-invocations see a populated summary and
// skip it — while the job carries on with the remaining documents.
func (a *PaperActivities) SummarizePaper(ctx context.Context, input SummarizePaperInput) (*SummarizePaperOutput, error) {
	logger := activity.GetLogger(ctx)

	paper, err := a.paperRepo.Get(ctx, input.PaperID)
	if err != nil {
		return nil, fmt.Errorf("load paper %s: %w", input.PaperID, err)
	}

	if paper.Summary != "" {
		if domain.IsSentinelSummary(paper.Summary) {
			return &SummarizePaperOutput{Sentinel: true}, nil
		}
		a.recordDocument("summarize", "cached")
		return &SummarizePaperOutput{Summarized: true}, nil
	}

	if paper.ExtractedText == "" {
		a.recordDocument("summarize", "skipped")
		return &SummarizePaperOutput{Skipped: true}, nil
	}

	start := time.Now()
	result, err := a.generator.Generate(ctx, llm.GenerationRequest{
		Kind:        llm.KindSummary,
		Prompt:      review.SummaryPrompt(input.Prompt, paper),
		MaxTokens:   review.SummaryMaxTokens,
		Temperature: review.SummaryTemperature,
	})
	a.recordGeneration("summary", err == nil, time.Since(start))

	if err != nil {
		logger.Warn("summary generation failed, storing sentinel",
			"paperID", input.PaperID,
			"error", err,
		)
		if setErr := a.paperRepo.SetSummary(ctx, input.PaperID, domain.SummaryGenerationError); setErr != nil {
			return nil, fmt.Errorf("record sentinel summary: %w", setErr)
		}
		a.recordDocument("summarize", "failed")
		return &SummarizePaperOutput{Sentinel: true}, nil
	}

	summary := review.NormalizeSummary(result.Text)
	if err := a.paperRepo.SetSummary(ctx, input.PaperID, summary); err != nil {
		return nil, fmt.Errorf("record summary: %w", err)
	}

	if domain.IsSentinelSummary(summary) {
		a.recordDocument("summarize", "failed")
		logger.Warn("summary too short, stored sentinel", "paperID", input.PaperID)
		return &SummarizePaperOutput{Sentinel: true}, nil
	}

	a.recordDocument("summarize", "ok")
	logger.Info("paper summarized",
		"paperID", input.PaperID,
		"model", result.Model,
		"outputTokens", result.OutputTokens,
	)

	return &SummarizePaperOutput{Summarized: true}, nil
}

func (a *PaperActivities) recordDocument(stage, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordDocument(stage, outcome)
	}
}

func (a *PaperActivities) recordGeneration(kind string, ok bool, d time.Duration) {
	if a.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	a.metrics.RecordGeneration(kind, outcome, d.Seconds())
}
