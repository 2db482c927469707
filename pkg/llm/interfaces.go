// Package llm provides chat-completion clients for the diagnosis step.
package llm

import "context"

// ChatClient is the single collaborator contract the insight engine needs
// from a language model. Use this interface for dependency injection to
// enable mocking in tests.
type ChatClient interface {
	// ChatCompletion sends a prompt and returns the raw response text.
	ChatCompletion(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Compile-time interface checks.
var (
	_ ChatClient = (*OpenAIClient)(nil)
	_ ChatClient = (*AnthropicClient)(nil)
	_ ChatClient = (*MockClient)(nil)
)
