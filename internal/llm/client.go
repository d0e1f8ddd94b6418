// Package llm provides the AI text-understanding capability used by the
// request resolution pipeline: intent extraction from free-text intake
// fields and final-choice disambiguation over narrowed candidate sets.
package llm

import (
	"context"

	"github.com/campwire/bunkmate/internal/model"
)

// Client defines the interface for AI providers.
type Client interface {
	// Extract pulls zero or more structured bunking intents out of one
	// free-text intake submission.
	Extract(ctx context.Context, text string, fieldType model.FieldType) ([]Intent, error)
	// Disambiguate asks the provider to pick among a narrowed candidate
	// set, or to state explicitly that it cannot.
	Disambiguate(ctx context.Context, req DisambiguationRequest) (DisambiguationResult, error)
}

// Intent is one structured request extracted from free text.
type Intent struct {
	TargetName string
	Relation   model.RequestType
	Sentiment  string
	Reasoning  string
	Strength   float64
	Confidence float64
}

// CandidateOption is one narrowed candidate offered to the disambiguator.
type CandidateOption struct {
	ExternalID string
	Name       string
	School     string
	SessionID  string
	Grade      int
	Confidence float64
}

// DisambiguationRequest carries the ambiguous reference plus context.
type DisambiguationRequest struct {
	RawReference  string
	OriginalText  string
	RequesterName string
	SessionName   string
	Candidates    []CandidateOption
}

// DisambiguationResult is the provider's final choice, or an explicit
// cannot-resolve.
type DisambiguationResult struct {
	ChosenExternalID string
	Reasoning        string
	Confidence       float64
	Resolved         bool
}

// Config holds configuration for an AI provider client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	RateLimit   int
}
