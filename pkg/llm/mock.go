package llm

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// MockProvider is a configurable Provider for tests.
// Set the function fields to control behavior.
type MockProvider struct {
	ProviderInfo ProviderInfo

	// GenerateTextFunc is called by GenerateText. If nil, returns "mock response".
	GenerateTextFunc func(ctx context.Context, messages []Message, systemPrompt string) (*Result, error)

	// StreamTextFunc is called by StreamText. If nil, streams "mock response".
	StreamTextFunc func(ctx context.Context, messages []Message, systemPrompt string) (*Stream, error)

	mu            sync.Mutex
	generateCalls int
	streamCalls   int
	lastSystem    string
}

// NewMockProvider creates a mock with the given name and locality.
func NewMockProvider(name string, isLocal bool) *MockProvider {
	return &MockProvider{
		ProviderInfo: ProviderInfo{
			ID:      uuid.New(),
			Name:    name,
			Kind:    models.ProviderKindOpenAI,
			Model:   name + "-model",
			IsLocal: isLocal,
		},
	}
}

func (m *MockProvider) Info() ProviderInfo {
	return m.ProviderInfo
}

func (m *MockProvider) GenerateText(ctx context.Context, messages []Message, systemPrompt string) (*Result, error) {
	m.mu.Lock()
	m.generateCalls++
	m.lastSystem = systemPrompt
	m.mu.Unlock()

	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, messages, systemPrompt)
	}
	return &Result{
		Text:     "mock response",
		Usage:    Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		Model:    m.ProviderInfo.Model,
		Provider: m.ProviderInfo.Name,
	}, nil
}

func (m *MockProvider) StreamText(ctx context.Context, messages []Message, systemPrompt string) (*Stream, error) {
	m.mu.Lock()
	m.streamCalls++
	m.lastSystem = systemPrompt
	m.mu.Unlock()

	if m.StreamTextFunc != nil {
		return m.StreamTextFunc(ctx, messages, systemPrompt)
	}
	return StreamFromDeltas("mock ", "response"), nil
}

// GenerateCalls returns how many times GenerateText was invoked.
func (m *MockProvider) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// StreamCalls returns how many times StreamText was invoked.
func (m *MockProvider) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// LastSystemPrompt returns the system prompt of the most recent call.
func (m *MockProvider) LastSystemPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSystem
}

var _ Provider = (*MockProvider)(nil)
