// Package extract turns cached PDF files into sanitized plain text for the
// summarization stage.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// DefaultMaxPages caps how many pages are read from one document.
	DefaultMaxPages = 100

	// DefaultMaxChars caps the extracted text length in characters.
	DefaultMaxChars = 100_000

	// MinTextLength is the minimum usable text length. Documents yielding
	// less are treated as having no extractable text (scanned images,
	// encrypted files, stub pages).
	MinTextLength = 200
)

// ErrNoText is returned when a document yields no usable text.
var ErrNoText = errors.New("extract: no usable text in document")

// Extractor pulls plain text out of PDF files.
type Extractor struct {
	maxPages int
	maxChars int
	conf     *model.Configuration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxPages overrides the page cap.
func WithMaxPages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithMaxChars overrides the output length cap.
func WithMaxChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// New creates an Extractor. Validation is relaxed because open-access
// repositories serve plenty of slightly malformed PDFs that are still
// readable.
func New(opts ...Option) *Extractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	e := &Extractor{
		maxPages: DefaultMaxPages,
		maxChars: DefaultMaxChars,
		conf:     conf,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFile reads the PDF at path and returns its sanitized plain text.
// Returns ErrNoText when the document yields less than MinTextLength
// characters of usable text.
func (e *Extractor) ExtractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: opening file: %w", err)
	}
	defer f.Close()

	return e.Extract(f)
}

// Extract reads a PDF from rs and returns its sanitized plain text.
func (e *Extractor) Extract(rs io.ReadSeeker) (string, error) {
	ctx, err := api.ReadValidateAndOptimize(rs, e.conf)
	if err != nil {
		return "", fmt.Errorf("extract: parsing document: %w", err)
	}

	pages := ctx.PageCount
	if pages > e.maxPages {
		pages = e.maxPages
	}

	var out []byte
	for page := 1; page <= pages; page++ {
		r, err := pdfcpu.ExtractPageContent(ctx, page)
		if err != nil || r == nil {
			// A single broken page should not sink the document.
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}

		pageText := DecodeContentText(content)
		if pageText == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, pageText...)

		if len(out) >= e.maxChars {
			break
		}
	}

	text := Sanitize(string(out), e.maxChars)
	if len(text) < MinTextLength {
		return "", ErrNoText
	}

	return text, nil
}
