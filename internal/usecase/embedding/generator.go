package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/metrics"
)

// Defaults for the generator configuration.
const (
	DefaultBatchSize  = 100
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// GeneratorConfig tunes batching and retry behavior.
type GeneratorConfig struct {
	Provider      string
	BatchSize     int
	MaxRetries    int
	RetryDelay    time.Duration
	RatePerSecond float64 // 0 = no rate limiting
	Logger        *zap.Logger
}

// Generator turns chunk text into vectors. Documents and queries go through
// separate embedder chains because some providers tune the two differently.
// Retryable provider failures back off exponentially; non-retryable ones
// abort immediately.
type Generator struct {
	docEmbedder   domain.Embedder
	queryEmbedder domain.Embedder
	provider      string
	batchSize     int
	maxRetries    int
	retryDelay    time.Duration
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewGenerator creates a Generator on top of the document and query chains.
func NewGenerator(doc, query domain.Embedder, cfg GeneratorConfig) *Generator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Generator{
		docEmbedder:   doc,
		queryEmbedder: query,
		provider:      cfg.Provider,
		batchSize:     cfg.BatchSize,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		limiter:       limiter,
		logger:        cfg.Logger,
	}
}

// EmbedChunks attaches vectors to the chunks in place and returns the same
// slice. Chunk order is preserved across batches.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []domain.DocumentChunk) ([]domain.DocumentChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	for offset := 0; offset < len(chunks); offset += g.batchSize {
		end := offset + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		res, err := g.embedWithRetry(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch at %d: %w", offset, err)
		}
		if len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embed batch at %d: got %d vectors for %d chunks",
				offset, len(res.Embeddings), len(batch))
		}

		for i := range batch {
			batch[i].Embedding = res.Embeddings[i]
		}
	}

	return chunks, nil
}

// EmbedQuery vectorizes a search query through the query-tuned chain.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := g.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		res, err := g.queryEmbedder.Embed(ctx, query)
		if err == nil {
			return res.Embedding, nil
		}
		lastErr = err
		if !domain.IsRetryableEmbedding(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", g.maxRetries, lastErr)
}

// embedWithRetry runs one provider batch with exponential backoff on
// retryable failures.
func (g *Generator) embedWithRetry(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := g.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := g.backoff(ctx, attempt); err != nil {
				return domain.BatchEmbeddingResult{}, err
			}
		}

		res, err := g.batchEmbed(ctx, texts)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !domain.IsRetryableEmbedding(err) {
			return domain.BatchEmbeddingResult{}, err
		}
		g.logger.Warn("retryable embedding failure",
			zap.String("provider", g.provider),
			zap.Int("attempt", attempt+1),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
	}
	return domain.BatchEmbeddingResult{}, fmt.Errorf("after %d retries: %w", g.maxRetries, lastErr)
}

func (g *Generator) batchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := g.docEmbedder.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, g.docEmbedder, texts)
}

// backoff sleeps RetryDelay * 2^(attempt-1), honoring context cancellation.
func (g *Generator) backoff(ctx context.Context, attempt int) error {
	metrics.EmbeddingRetriesTotal.WithLabelValues(g.provider).Inc()

	delay := g.retryDelay << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Generator) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
