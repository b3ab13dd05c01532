// Package voyage provides an embedding provider backed by the Voyage AI
// REST API. Voyage has no official Go SDK, so this is a plain JSON client.
package voyage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/metrics"
)

const (
	providerName   = "voyage"
	defaultBaseURL = "https://api.voyageai.com/v1"
)

// Input types: Voyage tunes embeddings differently for stored documents
// and for search queries.
const (
	InputDocument = "document"
	InputQuery    = "query"
)

// Embedder calls the Voyage embeddings endpoint.
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	inputType  string
	logger     *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey     string
	BaseURL    string // empty = api.voyageai.com
	Model      string
	Dimensions int
	InputType  string // InputDocument or InputQuery
	Logger     *zap.Logger
}

// NewEmbedder creates a Voyage embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	inputType := cfg.InputType
	if inputType == "" {
		inputType = InputDocument
	}

	return &Embedder{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		inputType:  inputType,
		logger:     cfg.Logger,
	}
}

// Dimensions implements domain.Dimensioner.
func (e *Embedder) Dimensions() int { return e.dimensions }

type embedRequest struct {
	Input           []string `json:"input"`
	Model           string   `json:"model"`
	InputType       string   `json:"input_type"`
	OutputDimension int      `json:"output_dimension,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

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

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	body, err := json.Marshal(embedRequest{
		Input:           texts,
		Model:           e.model,
		InputType:       e.inputType,
		OutputDimension: e.dimensions,
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "transport").Inc()
		return domain.BatchEmbeddingResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "transport").Inc()
		return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, true, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, classifyStatus(resp.StatusCode, raw)
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, false,
			fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Data) != len(texts) {
		return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, false,
			fmt.Errorf("got %d embeddings for %d inputs", len(parsed.Data), len(texts)))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(duration.Seconds())
	if parsed.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(providerName, e.model, "total").Add(float64(parsed.Usage.TotalTokens))
	}

	// The API may return results out of order; index is authoritative.
	embeddings := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return domain.BatchEmbeddingResult{}, domain.NewEmbeddingError(providerName, false,
				fmt.Errorf("embedding index %d out of range", d.Index))
		}
		embeddings[d.Index] = d.Embedding
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: parsed.Usage.TotalTokens,
		TotalTokens:  parsed.Usage.TotalTokens,
	}, nil
}

// HealthCheck embeds a single short input to verify credentials and
// connectivity.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	_, err := e.BatchEmbed(ctx, []string{"ok"})
	return err
}

func classifyStatus(status int, body []byte) error {
	detail := string(body)
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		detail = parsed.Detail
	}

	switch {
	case status == http.StatusTooManyRequests:
		return domain.NewEmbeddingError(providerName, true,
			fmt.Errorf("%w: %s", domain.ErrRateLimited, detail))
	case status >= 500:
		return domain.NewEmbeddingError(providerName, true,
			fmt.Errorf("embedding API error %d: %s", status, detail))
	default:
		return domain.NewEmbeddingError(providerName, false,
			fmt.Errorf("embedding API error %d: %s", status, detail))
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewEmbeddingError(providerName, false, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewEmbeddingError(providerName, true, err)
	}
	return domain.NewEmbeddingError(providerName, true, fmt.Errorf("request failed: %w", err))
}
