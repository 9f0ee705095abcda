package domain

import "context"

// CompletionRequest is a single-prompt request to the completion API.
type CompletionRequest struct {
	Prompt      string
	Temperature float32
	MaxTokens   int // 0 = provider default
}

// CompletionResult is the generated text and its token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Completer generates text from a prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
