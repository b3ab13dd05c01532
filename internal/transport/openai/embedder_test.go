package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corpora-dev/corpora/internal/domain"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRetryable bool
		wantRateLimit bool
	}{
		{
			name:          "rate limited",
			err:           &openai.APIError{HTTPStatusCode: 429, Message: "slow down"},
			wantRetryable: true,
			wantRateLimit: true,
		},
		{
			name:          "server error",
			err:           &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"},
			wantRetryable: true,
		},
		{
			name: "bad api key",
			err:  &openai.APIError{HTTPStatusCode: 401, Message: "invalid key"},
		},
		{
			name: "invalid input",
			err:  &openai.RequestError{HTTPStatusCode: 400, Body: []byte(`{"detail":"input too long"}`)},
		},
		{
			name:          "gateway error with detail body",
			err:           &openai.RequestError{HTTPStatusCode: 502, Body: []byte(`{"detail":"upstream down"}`)},
			wantRetryable: true,
		},
		{
			name: "context canceled",
			err:  context.Canceled,
		},
		{
			name: "opaque error",
			err:  errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)

			var embErr *domain.EmbeddingError
			if !errors.As(got, &embErr) {
				t.Fatalf("classifyError() type = %T, want *domain.EmbeddingError", got)
			}
			if embErr.Provider != providerName {
				t.Errorf("Provider = %q", embErr.Provider)
			}
			if embErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", embErr.Retryable, tt.wantRetryable)
			}
			if tt.wantRateLimit && !errors.Is(got, domain.ErrRateLimited) {
				t.Errorf("error does not wrap ErrRateLimited: %v", got)
			}
			if domain.IsRetryableEmbedding(got) != tt.wantRetryable {
				t.Errorf("IsRetryableEmbedding mismatch")
			}
		})
	}
}

func TestNewEmbedderDimensions(t *testing.T) {
	e := NewEmbedder(&Config{APIKey: "k", Model: "text-embedding-3-small", Dimensions: 1536})
	if e.Dimensions() != 1536 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}
