package llm

import (
	"context"
	"sync"

	"github.com/campwire/bunkmate/internal/model"
)

// MockClient is a scripted AI client for tests. Responses are keyed by the
// submission text (Extract) or raw reference (Disambiguate); unscripted
// inputs return empty results so tests fail visibly rather than hang.
type MockClient struct {
	ExtractResponses      map[string][]Intent
	ExtractErr            error
	FailTexts             map[string]error
	DisambiguateResponses map[string]DisambiguationResult
	DisambiguateErr       error

	mu                sync.Mutex
	extractCalls      []string
	disambiguateCalls []string
}

// NewMockClient creates an empty scripted client.
func NewMockClient() *MockClient {
	return &MockClient{
		ExtractResponses:      make(map[string][]Intent),
		DisambiguateResponses: make(map[string]DisambiguationResult),
	}
}

// Extract returns the scripted intents for the text.
func (m *MockClient) Extract(_ context.Context, text string, _ model.FieldType) ([]Intent, error) {
	m.mu.Lock()
	m.extractCalls = append(m.extractCalls, text)
	m.mu.Unlock()

	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	if err, ok := m.FailTexts[text]; ok {
		return nil, err
	}
	return m.ExtractResponses[text], nil
}

// Disambiguate returns the scripted result for the reference.
func (m *MockClient) Disambiguate(_ context.Context, req DisambiguationRequest) (DisambiguationResult, error) {
	m.mu.Lock()
	m.disambiguateCalls = append(m.disambiguateCalls, req.RawReference)
	m.mu.Unlock()

	if m.DisambiguateErr != nil {
		return DisambiguationResult{}, m.DisambiguateErr
	}
	return m.DisambiguateResponses[req.RawReference], nil
}

// ExtractCalls returns the texts Extract was invoked with.
func (m *MockClient) ExtractCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.extractCalls...)
}

// DisambiguateCalls returns the references Disambiguate was invoked with.
func (m *MockClient) DisambiguateCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.disambiguateCalls...)
}
