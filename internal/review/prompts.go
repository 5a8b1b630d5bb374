package review

import (
	"fmt"
	"strings"

	"github.com/helixir/review-generation-service/internal/domain"
)

// SummaryPrompt builds the per-document summarization prompt over the paper
// title and the first SummaryExcerptChars characters of its extracted text.
func SummaryPrompt(userPrompt string, p *domain.Paper) string {
	excerpt := p.ExtractedText
	if len(excerpt) > SummaryExcerptChars {
		excerpt = excerpt[:SummaryExcerptChars]
	}
	return fmt.Sprintf(
		"Summarize this scientific paper in 250-300 words. Focus on: "+
			"1. Research gap and objective\n"+
			"2. Methods used\n"+
			"3. Key findings\n"+
			"4. Relevance to '%s'\n\n"+
			"Title: %s\n\n"+
			"Text excerpt: %s",
		userPrompt, p.Title, excerpt,
	)
}

// sourceContext renders sources as a citation-tagged context block.
func sourceContext(sources []Source) string {
	blocks := make([]string, 0, len(sources))
	for _, s := range sources {
		blocks = append(blocks, fmt.Sprintf("[%s] %s\nSummary: %s", s.Citation, s.Title, s.Summary))
	}
	return strings.Join(blocks, "\n\n")
}

// SectionPrompt builds the prompt for one partial narrative section covering
// a single batch of sources. index and total are 1-based section numbering.
func SectionPrompt(userPrompt string, batch []Source, index, total int) string {
	return fmt.Sprintf(`You are an expert academic writer drafting part %d of %d of a literature review.

**User Request**: %s

**Sources for this section** (%d papers):
%s

**Requirements**:
- Write a coherent narrative section synthesizing only these sources.
- Include **inline citations** like (Smith et al., 2023) after every claim.
- Do not write an introduction or conclusion for the whole review, only this section.
- Academic tone, logical flow, critical analysis.`,
		index, total, userPrompt, len(batch), sourceContext(batch))
}

// FoldPrompt builds the final folding prompt over previously generated
// sections. totalSources is the number of papers that fed the sections.
func FoldPrompt(userPrompt string, sections []string, totalSources int) string {
	numbered := make([]string, 0, len(sections))
	for i, s := range sections {
		numbered = append(numbered, fmt.Sprintf("--- Section %d ---\n%s", i+1, s))
	}
	return fmt.Sprintf(`You are an expert academic writer. Combine the draft sections below into a single **comprehensive literature review** of **at least %d words**.

**User Request**: %s

**Draft Sections** (covering %d papers):
%s

**Requirements**:
- Use **only** the material in the draft sections.
- Keep all **inline citations** like (Smith et al., 2023).
- Structure: Introduction, Evolution, Methods, Findings, Challenges, Future Directions, Conclusion.
- End with **APA Bibliography**.
- Academic tone, logical flow, critical analysis.

Even if sources are limited, expand with analysis and synthesis.`,
		MinReviewWords, userPrompt, totalSources, strings.Join(numbered, "\n\n"))
}

// DirectPrompt builds the single-call synthesis prompt used when the source
// set fits in one batch.
func DirectPrompt(userPrompt string, sources []Source) string {
	return fmt.Sprintf(`You are an expert academic writer. Write a **comprehensive literature review** of **at least %d words** based on:

**User Request**: %s

**Available Sources** (%d papers):
%s

**Requirements**:
- Use **only** the provided sources.
- Include **inline citations** like (Smith et al., 2023) after every claim.
- Structure: Introduction, Evolution, Methods, Findings, Challenges, Future Directions, Conclusion.
- End with **APA Bibliography**.
- Academic tone, logical flow, critical analysis.

Even if sources are limited, expand with analysis and synthesis.`,
		MinReviewWords, userPrompt, len(sources), sourceContext(sources))
}
