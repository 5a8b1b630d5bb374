// Package review holds the pure text logic of the summarization and
// synthesis stages: prompt construction, citation-tagged source assembly,
// deterministic batch partitioning, and the bookkeeping notes appended to
// under-length or partially-processed reviews. Everything here is free of
// I/O so the workflow activities stay thin.
package review

import (
	"fmt"
	"strings"

	"github.com/helixir/review-generation-service/internal/domain"
)

const (
	// SummaryExcerptChars caps how much extracted text feeds one summary call.
	SummaryExcerptChars = 7000
	// SummaryMaxTokens bounds the per-document summary response.
	SummaryMaxTokens = 400
	// SummaryTemperature is the sampling temperature for summaries.
	SummaryTemperature = 0.5

	// SynthesisMaxTokens bounds section and final synthesis responses.
	SynthesisMaxTokens = 4096
	// SynthesisTemperature is the sampling temperature for synthesis.
	SynthesisTemperature = 0.7

	// DefaultBatchSize is how many sources feed one section call.
	DefaultBatchSize = 5

	// MinReviewWords is the target length of the final review; shorter
	// output gets ShortReviewNote appended rather than failing the job.
	MinReviewWords = 3000
)

// ShortReviewNote is appended when the final text is under MinReviewWords.
const ShortReviewNote = "\n\n[Note: Review is shorter than 3000 words due to limited source material.]"

// Source is one citation-tagged summary feeding the synthesis stage.
type Source struct {
	Title    string
	Citation string
	DOI      string
	Summary  string
}

// SourcesFromPapers converts papers with usable summaries into synthesis
// sources, preserving input order. Papers with sentinel or missing summaries
// are dropped.
func SourcesFromPapers(papers []*domain.Paper) []Source {
	sources := make([]Source, 0, len(papers))
	for _, p := range papers {
		if p == nil || !p.HasUsableSummary() {
			continue
		}
		sources = append(sources, Source{
			Title:    p.Title,
			Citation: p.Citation(),
			DOI:      p.DOI,
			Summary:  p.Summary,
		})
	}
	return sources
}

// Partition splits sources into consecutive batches of at most size,
// preserving insertion order. A non-positive size falls back to
// DefaultBatchSize.
func Partition(sources []Source, size int) [][]Source {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]Source
	for start := 0; start < len(sources); start += size {
		end := start + size
		if end > len(sources) {
			end = len(sources)
		}
		batches = append(batches, sources[start:end])
	}
	return batches
}

// NormalizeSummary trims a raw model response and applies the minimum-length
// rule: summaries under MinSummaryLength characters become the too-short
// sentinel rather than real text.
func NormalizeSummary(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) < domain.MinSummaryLength {
		return domain.SummaryTooShort
	}
	return s
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// EnsureMinimumLength appends ShortReviewNote when text falls below
// MinReviewWords. The text itself is never rejected.
func EnsureMinimumLength(text string) string {
	if WordCount(text) < MinReviewWords {
		return text + ShortReviewNote
	}
	return text
}

// ProcessingNotes describes per-document attrition. Returns "" when every
// found document made it through.
func ProcessingNotes(processed, found int) string {
	if found <= 0 || processed >= found {
		return ""
	}
	return fmt.Sprintf(
		"\n\n---\n**Processing Notes**: %d papers successfully processed out of %d found. %d papers could not be processed.",
		processed, found, found-processed,
	)
}
