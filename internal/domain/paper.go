package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel summary values. A sentinel marks a per-document permanent failure
// so that re-invocations of the same job do not retry the document, while a
// nil/empty summary means "not yet attempted".
const (
	SummaryGenerationError = "[generation API error]"
	SummaryFailed          = "[summary failed]"
	SummaryTooShort        = "[summary too short or invalid]"
)

// MinSummaryLength is the minimum length in characters for a summary to be
// considered usable by the synthesis stage.
const MinSummaryLength = 100

// IsSentinelSummary reports whether s is one of the per-document failure
// markers rather than real summary text.
func IsSentinelSummary(s string) bool {
	switch s {
	case SummaryGenerationError, SummaryFailed, SummaryTooShort:
		return true
	default:
		return false
	}
}

// Paper represents one bibliographic record plus its cached file, extracted
// text, and summary. Papers are deduplicated by OpenAlexID and shared across
// jobs; the fetch/extract/summarize fields only ever transition from empty to
// non-empty, so concurrent jobs racing on the same paper resolve safely.
type Paper struct {
	ID uuid.UUID `json:"id"`

	// OpenAlexID is the stable external source identifier (e.g. "W2741809807").
	OpenAlexID string `json:"openalex_id"`

	DOI     string   `json:"doi,omitempty"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    *int     `json:"year,omitempty"`

	// SourceURL is the OpenAlex work page for this paper.
	SourceURL string `json:"source_url,omitempty"`
	// PDFURL is the open-access download location, if any.
	PDFURL string `json:"pdf_url,omitempty"`

	// PDFPath is the local cache reference. Empty until fetched.
	PDFPath string `json:"pdf_path,omitempty"`
	// ExtractedText is the sanitized plain text. Empty until extracted.
	ExtractedText string `json:"extracted_text,omitempty"`
	// Summary is the per-document synopsis, or a sentinel value on permanent
	// failure. Empty until attempted.
	Summary string `json:"summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasUsableSummary reports whether the paper carries a real summary long
// enough to feed the synthesis stage.
func (p *Paper) HasUsableSummary() bool {
	return p.Summary != "" && !IsSentinelSummary(p.Summary) && len(p.Summary) >= MinSummaryLength
}

// Citation returns an inline citation marker like "(Smith et al., 2023)".
// Papers without authors or year fall back to "Unknown" and "n.d.".
func (p *Paper) Citation() string {
	author := "Unknown"
	if len(p.Authors) > 0 {
		parts := strings.Fields(p.Authors[0])
		if len(parts) > 0 {
			author = parts[len(parts)-1]
		}
	}
	year := "n.d."
	if p.Year != nil {
		year = fmt.Sprintf("%d", *p.Year)
	}
	return fmt.Sprintf("(%s et al., %s)", author, year)
}
