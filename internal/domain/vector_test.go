package domain

import (
	"math"
	"testing"
)

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.5, 0.5, 0.5},
		{-3, 2, 7, 0.1},
	}
	for _, v := range vectors {
		if got := CosineSimilarity(v, v); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("CosineSimilarity(v, v) = %v, want 1.0", got)
		}
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.2, -0.7, 1.3}
	b := []float32{-1.1, 0.4, 0.9}
	if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
		t.Errorf("cosine similarity is not symmetric")
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
}

func TestCosineSimilarity_Degenerate(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("length mismatch: got %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 2}); got != 0 {
		t.Errorf("zero vector: got %v, want 0", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{"hello world!", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
