// Package gemini provides an embedding provider backed by the Google
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/metrics"
)

const providerName = "gemini"

// Task types for retrieval-tuned embeddings.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

// Embedder calls the Gemini embedContent endpoint.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
	logger     *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	TaskType   string // TaskDocument or TaskQuery
	Logger     *zap.Logger
}

// NewEmbedder creates a Gemini embedding provider.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	taskType := cfg.TaskType
	if taskType == "" {
		taskType = TaskDocument
	}

	return &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		taskType:   taskType,
		logger:     cfg.Logger,
	}, nil
}

// Dimensions implements domain.Dimensioner.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	batch, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    batch.Embeddings[0],
		PromptTokens: batch.PromptTokens,
		TotalTokens:  batch.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. The API accepts multiple
// contents per call; token usage is not reported, so it is estimated.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		cfg.OutputDimensionality = &dims
	}

	start := time.Now()
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, classifyError(err)
	}

	if len(resp.Embeddings) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "short_response").Inc()
		return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, false,
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())

	embeddings := make([][]float32, len(resp.Embeddings))
	tokens := 0
	for i, emb := range resp.Embeddings {
		embeddings[i] = emb.Values
		tokens += domain.EstimateTokens(texts[i])
	}

	metrics.EmbeddingTokensTotal.WithLabelValues(providerName, e.model, "total").Add(float64(tokens))

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: tokens,
		TotalTokens:  tokens,
	}, nil
}

// HealthCheck embeds a single short input to verify credentials and
// connectivity.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	_, err := e.BatchEmbed(ctx, []string{"ok"})
	return err
}

// classifyError maps a Gemini error onto domain.EmbeddingError using the
// gRPC status code when present.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewEmbeddingError(providerName, false, err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return domain.NewEmbeddingError(providerName, true,
				fmt.Errorf("%w: %s", domain.ErrRateLimited, st.Message()))
		case codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.Aborted:
			return domain.NewEmbeddingError(providerName, true, err)
		case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound:
			return domain.NewEmbeddingError(providerName, false, err)
		}
	}

	return domain.NewEmbeddingError(providerName, false, err)
}
