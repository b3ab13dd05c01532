package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

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
			name:          "resource exhausted",
			err:           status.Error(codes.ResourceExhausted, "quota"),
			wantRetryable: true,
			wantRateLimit: true,
		},
		{
			name:          "unavailable",
			err:           status.Error(codes.Unavailable, "try later"),
			wantRetryable: true,
		},
		{
			name: "unauthenticated",
			err:  status.Error(codes.Unauthenticated, "bad key"),
		},
		{
			name: "invalid argument",
			err:  status.Error(codes.InvalidArgument, "bad input"),
		},
		{
			name: "context canceled",
			err:  context.Canceled,
		},
		{
			name: "opaque error",
			err:  errors.New("dial failed"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)

			var embErr *domain.EmbeddingError
			if !errors.As(got, &embErr) {
				t.Fatalf("classifyError() type = %T, want *domain.EmbeddingError", got)
			}
			if embErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", embErr.Retryable, tt.wantRetryable)
			}
			if tt.wantRateLimit && !errors.Is(got, domain.ErrRateLimited) {
				t.Errorf("error does not wrap ErrRateLimited: %v", got)
			}
		})
	}
}
