package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a MockProvider has no replies left.
var ErrScriptExhausted = errors.New("mock provider has no scripted replies left")

// MockReply is one scripted answer.
type MockReply struct {
	Text string
	Err  error
}

// MockProvider replays scripted replies in order and records prompts. It is
// used by tests and by the "mock" provider setting for offline runs.
type MockProvider struct {
	mu       sync.Mutex
	replies  []MockReply
	fallback *MockReply
	prompts  []string
}

// NewMockProvider returns a provider that answers with replies in order.
func NewMockProvider(replies ...MockReply) *MockProvider {
	return &MockProvider{replies: replies}
}

// NewStaticMockProvider answers every prompt with text.
func NewStaticMockProvider(text string) *MockProvider {
	return &MockProvider{fallback: &MockReply{Text: text}}
}

func (m *MockProvider) ID() string {
	return "mock"
}

func (m *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		if m.fallback != nil {
			return m.fallback.Text, m.fallback.Err
		}
		return "", ErrScriptExhausted
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r.Text, r.Err
}

// Prompts returns the prompts received so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
