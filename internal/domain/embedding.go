package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dimensioner exposes the output dimensionality of an embedding provider.
type Dimensioner interface {
	Dimensions() int
}

// EmbeddingResult carries one vector and its token usage through the
// decorator chain. Token counts are provider-reported where available,
// otherwise EstimateTokens of the input.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback embeds texts one by one for providers without a native
// batch endpoint.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var prompt, total int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		prompt += res.PromptTokens
		total += res.TotalTokens
	}

	return BatchEmbeddingResult{Embeddings: embeddings, PromptTokens: prompt, TotalTokens: total}, nil
}

// EstimateTokens is the fixed length heuristic (len/4) used for chunk
// budgets, context budgets, and usage estimates. Chunk boundaries persisted
// by earlier ingestions depend on it; keep it stable.
func EstimateTokens(text string) int {
	return len(text) / 4
}
