package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects token usage across one request. The handler puts
// a mutable pointer into the context before calling the service; embedding
// decorators add to it; the handler reads it for response headers.
type EmbeddingUsage struct {
	TotalTokens int
	Used        bool // true once embedding was invoked, even on a 0-token cache hit
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens. Safe on a nil receiver.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Used = true
	}
}
