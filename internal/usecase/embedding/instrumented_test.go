package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
)

type rejectingBudget struct{}

func (rejectingBudget) Check(context.Context) error { return domain.ErrEmbeddingQuotaExceeded }
func (rejectingBudget) Record(int64)                {}
func (rejectingBudget) RemainingDaily() int64       { return 0 }
func (rejectingBudget) RemainingMonthly() int64     { return 0 }

func TestInstrumentedRejectsOverBudget(t *testing.T) {
	inner := &scriptedEmbedder{dims: 3}
	emb := NewInstrumentedEmbedder(inner, "test", "m", rejectingBudget{}, zap.NewNop())

	_, err := emb.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("Embed() error = %v, want ErrEmbeddingQuotaExceeded", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner called %d times despite exhausted budget", inner.calls)
	}

	_, err = emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("BatchEmbed() error = %v, want ErrEmbeddingQuotaExceeded", err)
	}
}

func TestInstrumentedRecordsUsage(t *testing.T) {
	inner := &scriptedEmbedder{dims: 3}
	budget := NewBudgetTracker("test", 1000, 0, BudgetActionReject, zap.NewNop())
	emb := NewInstrumentedEmbedder(inner, "test", "m", budget, zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := emb.BatchEmbed(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("BatchEmbed() error = %v", err)
	}

	if usage.TotalTokens != 10 {
		t.Errorf("usage tokens = %d, want 10", usage.TotalTokens)
	}
	if !usage.Used {
		t.Error("usage not marked as used")
	}
	if got := budget.RemainingDaily(); got != 990 {
		t.Errorf("RemainingDaily() = %d, want 990", got)
	}
}

// singleEmbedder has no BatchEmbed; the decorator must fall back to
// one-by-one embedding.
type singleEmbedder struct {
	calls int
}

func (s *singleEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 1}, nil
}

func TestInstrumentedBatchFallback(t *testing.T) {
	inner := &singleEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "test", "m", nil, zap.NewNop())

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchEmbed() error = %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
	if len(res.Embeddings) != 3 || res.TotalTokens != 3 {
		t.Errorf("result = %+v", res)
	}
}
