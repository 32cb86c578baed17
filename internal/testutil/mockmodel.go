// Package testutil provides deterministic model fakes for tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/calypso-ai/calypso/internal/store"
)

// MockModel provides deterministic model responses for testing. It matches
// prompts against registered patterns and returns the corresponding
// response, falling back to a fixed answer when nothing matches.
// Embeddings come from the deterministic bag-of-words embedder so related
// texts score high cosine similarity.
//
// Thread-safe for concurrent use.
type MockModel struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	failures  []error // consumed one per call, before pattern matching
	calls     []MockCall
}

type mockRule struct {
	pattern  string // substring match, case-insensitive
	response string
}

// MockCall records a single Complete call.
type MockCall struct {
	Prompt   string
	Response string
}

// NewMockModel creates a mock with the given fallback response.
func NewMockModel(fallback string) *MockModel {
	return &MockModel{fallback: fallback}
}

// AddResponse registers a pattern-response pair. When a prompt contains the
// pattern (case-insensitive), the response is returned. Patterns are
// checked in registration order; first match wins.
func (m *MockModel) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailNext queues errors to return, one per subsequent call, before any
// pattern matching happens. Both Embed and Complete consume the queue.
func (m *MockModel) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls returns a copy of all recorded Complete calls.
func (m *MockModel) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Complete implements the model client surface.
func (m *MockModel) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.nextFailure(); err != nil {
		return "", err
	}

	response := m.fallback
	lower := strings.ToLower(prompt)
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			response = rule.response
			break
		}
	}

	m.calls = append(m.calls, MockCall{Prompt: prompt, Response: response})
	return response, nil
}

// Embed implements the model client surface with the deterministic
// bag-of-words embedding.
func (m *MockModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if err := m.nextFailure(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	return EmbedText(text), nil
}

// Dimension implements the model client surface.
func (m *MockModel) Dimension() int { return store.VectorDimension }

func (m *MockModel) nextFailure() error {
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}
