package llm

import "context"

// MockClient is a configurable ChatClient for tests.
type MockClient struct {
	// ChatCompletionFunc is called when ChatCompletion is invoked.
	// If nil, returns an empty string and nil error.
	ChatCompletionFunc func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Call tracking for verification.
	ChatCompletionCalls int
	LastPrompt          string
}

// NewMockClient creates a mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{Model: "mock-model"}
}

// ChatCompletion implements ChatClient.
func (m *MockClient) ChatCompletion(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
	m.ChatCompletionCalls++
	m.LastPrompt = prompt
	if m.ChatCompletionFunc != nil {
		return m.ChatCompletionFunc(ctx, prompt, systemMessage, temperature)
	}
	return "", nil
}

// GetModel implements ChatClient.
func (m *MockClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}
