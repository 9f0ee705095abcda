package domain

import "context"

type usageKey struct{}

// Usage collects model token usage for a single HTTP request.
// Middleware puts a mutable pointer into the context; embedders and
// services add to it; middleware logs the totals when the request ends.
type Usage struct {
	EmbeddingTokens  int
	PromptTokens     int
	CompletionTokens int
	Used             bool // true if a model was called, even on a cache hit with 0 tokens
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbedding records consumed embedding tokens. Safe on a nil receiver.
func (u *Usage) AddEmbedding(tokens int) {
	if u != nil {
		u.EmbeddingTokens += tokens
		u.Used = true
	}
}

// AddCompletion records a completion call. Safe on a nil receiver.
func (u *Usage) AddCompletion(prompt, completion int) {
	if u != nil {
		u.PromptTokens += prompt
		u.CompletionTokens += completion
		u.Used = true
	}
}
