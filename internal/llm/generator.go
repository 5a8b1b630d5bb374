// Package llm provides text-generation API clients for the summarization and
// synthesis stages.
package llm

import (
	"context"
)

// GenerationKind selects which configured model a request runs on.
type GenerationKind string

const (
	// KindSummary is used for per-document summaries (cheap, fast model).
	KindSummary GenerationKind = "summary"
	// KindSynthesis is used for section and final review synthesis
	// (higher-quality model).
	KindSynthesis GenerationKind = "synthesis"
)

// GenerationRequest is a single text-generation call.
type GenerationRequest struct {
	// Kind selects the summary or synthesis model of the provider.
	Kind GenerationKind
	// System is the system prompt, may be empty.
	System string
	// Prompt is the user prompt.
	Prompt string
	// MaxTokens caps the response length.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
}

// GenerationResult is the outcome of a successful generation call.
type GenerationResult struct {
	// Text is the generated completion.
	Text string
	// Model is the model that produced the completion.
	Model string
	// InputTokens and OutputTokens report usage for cost tracking.
	InputTokens  int
	OutputTokens int
}

// Generator produces text completions. Implementations retry transient
// provider failures internally up to their configured budget and surface
// permanent failures as *APIError.
type Generator interface {
	// Generate runs one completion call.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	// Provider returns the provider name ("openai" or "anthropic").
	Provider() string
}
