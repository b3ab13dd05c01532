package voyage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corpora-dev/corpora/internal/domain"
)

func newTestEmbedder(url string) *Embedder {
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "voyage-3",
		Dimensions: 4,
		InputType:  InputDocument,
	})
}

func TestBatchEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.InputType != InputDocument {
			t.Errorf("input_type = %q", req.InputType)
		}
		if req.OutputDimension != 4 {
			t.Errorf("output_dimension = %d", req.OutputDimension)
		}

		// Out-of-order response; the client must reorder by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0, 0, 0, 2}, "index": 1},
				{"embedding": []float32{0, 0, 0, 1}, "index": 0},
			},
			"usage": map[string]any{"total_tokens": 7},
		})
	}))
	defer srv.Close()

	e := newTestEmbedder(srv.URL)
	res, err := e.BatchEmbed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("BatchEmbed() error = %v", err)
	}

	if len(res.Embeddings) != 2 {
		t.Fatalf("got %d embeddings", len(res.Embeddings))
	}
	if res.Embeddings[0][3] != 1 || res.Embeddings[1][3] != 2 {
		t.Errorf("embeddings not reordered by index: %v", res.Embeddings)
	}
	if res.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", res.TotalTokens)
	}
}

func TestBatchEmbedErrorStatuses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantRateLimit bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"detail":"rate limit"}`, true, true},
		{"server error", http.StatusBadGateway, `oops`, true, false},
		{"bad key", http.StatusUnauthorized, `{"detail":"invalid key"}`, false, false},
		{"bad request", http.StatusBadRequest, `{"detail":"too long"}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestEmbedder(srv.URL).BatchEmbed(context.Background(), []string{"x"})
			if err == nil {
				t.Fatal("BatchEmbed() error = nil")
			}

			var embErr *domain.EmbeddingError
			if !errors.As(err, &embErr) {
				t.Fatalf("error type = %T", err)
			}
			if embErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", embErr.Retryable, tt.wantRetryable)
			}
			if tt.wantRateLimit && !errors.Is(err, domain.ErrRateLimited) {
				t.Errorf("error does not wrap ErrRateLimited: %v", err)
			}
		})
	}
}

func TestEmbedSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data":  []map[string]any{{"embedding": []float32{1, 2, 3, 4}, "index": 0}},
			"usage": map[string]any{"total_tokens": 3},
		})
	}))
	defer srv.Close()

	res, err := newTestEmbedder(srv.URL).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(res.Embedding) != 4 {
		t.Errorf("embedding length = %d", len(res.Embedding))
	}
}
