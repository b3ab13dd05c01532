package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

func chunk(id, docID string, vec []float32) domain.DocumentChunk {
	return domain.DocumentChunk{
		ID:        id,
		Content:   "content of " + id,
		Embedding: vec,
		Metadata:  domain.ChunkMetadata{DocumentID: docID},
	}
}

func seed(t *testing.T, s *Store, ns string, chunks ...domain.DocumentChunk) {
	t.Helper()
	n, err := s.Upsert(context.Background(), ns, chunks)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if n != len(chunks) {
		t.Fatalf("Upsert() = %d, want %d", n, len(chunks))
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	s := New(3)
	seed(t, s, "user_1",
		chunk("a", "d1", []float32{1, 0, 0}),
		chunk("b", "d1", []float32{0.9, 0.1, 0}),
		chunk("c", "d2", []float32{0, 1, 0}),
	)

	results, err := s.Search(context.Background(), "user_1", []float32{1, 0, 0}, vectorstore.Query{TopK: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" {
		t.Errorf("order = %s, %s; want a, b", results[0].ChunkID, results[1].ChunkID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %v", results)
	}
}

func TestSearchNamespaceIsolation(t *testing.T) {
	s := New(3)
	seed(t, s, "user_1", chunk("a", "d1", []float32{1, 0, 0}))
	seed(t, s, "user_2", chunk("b", "d2", []float32{1, 0, 0}))

	results, err := s.Search(context.Background(), "user_1", []float32{1, 0, 0}, vectorstore.Query{TopK: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "a" {
		t.Errorf("results = %+v, want only user_1's chunk", results)
	}
}

func TestSearchDocumentFilter(t *testing.T) {
	s := New(3)
	seed(t, s, "user_1",
		chunk("a", "d1", []float32{1, 0, 0}),
		chunk("b", "d2", []float32{1, 0, 0}),
	)

	results, err := s.Search(context.Background(), "user_1", []float32{1, 0, 0},
		vectorstore.Query{TopK: 10, DocumentIDs: []string{"d2"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "d2" {
		t.Errorf("results = %+v, want only d2", results)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := New(3)
	_, err := s.Upsert(context.Background(), "user_1", []domain.DocumentChunk{
		chunk("a", "d1", []float32{1, 0}),
	})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("Upsert() error = %v, want ErrVectorDimMismatch", err)
	}

	var vsErr *domain.VectorStoreError
	if !errors.As(err, &vsErr) || vsErr.Op != "upsert" {
		t.Errorf("error not wrapped as VectorStoreError{Op: upsert}: %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := New(3)
	seed(t, s, "user_1",
		chunk("a", "d1", []float32{1, 0, 0}),
		chunk("b", "d1", []float32{0, 1, 0}),
		chunk("c", "d2", []float32{0, 0, 1}),
	)

	n, err := s.Delete(context.Background(), "user_1", vectorstore.Selector{DocumentID: "d1"})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Delete() = %d, want 2", n)
	}

	stats, err := s.Stats(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Vectors != 1 {
		t.Errorf("Vectors = %d, want 1", stats.Vectors)
	}
}

func TestDeleteAll(t *testing.T) {
	s := New(3)
	seed(t, s, "user_1",
		chunk("a", "d1", []float32{1, 0, 0}),
		chunk("b", "d2", []float32{0, 1, 0}),
	)

	n, err := s.Delete(context.Background(), "user_1", vectorstore.Selector{All: true})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Delete() = %d, want 2", n)
	}

	results, err := s.Search(context.Background(), "user_1", []float32{1, 0, 0}, vectorstore.Query{TopK: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("namespace not emptied: %+v", results)
	}
}

func TestUpsertIdempotentOnChunkID(t *testing.T) {
	s := New(3)
	seed(t, s, "user_1", chunk("a", "d1", []float32{1, 0, 0}))
	seed(t, s, "user_1", chunk("a", "d1", []float32{0, 1, 0}))

	stats, _ := s.Stats(context.Background(), "user_1")
	if stats.Vectors != 1 {
		t.Errorf("Vectors = %d, want 1 after re-upsert of same chunk", stats.Vectors)
	}
}
