// Package memory is an in-process vector store for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

const backendName = "memory"

type record struct {
	chunkID      string
	documentID   string
	content      string
	pageNumber   int
	sectionTitle string
	vector       []float32
}

// Store keeps vectors in a namespace-keyed map and scores searches with
// exact cosine similarity.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	namespaces map[string]map[string]record // namespace -> chunkID -> record
}

// New creates an empty in-memory store.
func New(dimensions int) *Store {
	return &Store{
		dimensions: dimensions,
		namespaces: map[string]map[string]record{},
	}
}

// Init implements vectorstore.VectorStore.
func (s *Store) Init(context.Context) error { return nil }

// Upsert implements vectorstore.VectorStore.
func (s *Store) Upsert(_ context.Context, namespace string, chunks []domain.DocumentChunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		ns = map[string]record{}
		s.namespaces[namespace] = ns
	}

	for _, ch := range chunks {
		if len(ch.Embedding) != s.dimensions {
			return 0, domain.NewVectorStoreError(backendName, "upsert",
				fmt.Errorf("chunk %s: %w: got %d, want %d",
					ch.ID, domain.ErrVectorDimMismatch, len(ch.Embedding), s.dimensions))
		}
	}
	for _, ch := range chunks {
		vec := make([]float32, len(ch.Embedding))
		copy(vec, ch.Embedding)
		ns[ch.ID] = record{
			chunkID:      ch.ID,
			documentID:   ch.Metadata.DocumentID,
			content:      vectorstore.TruncateContent(ch.Content),
			pageNumber:   ch.Metadata.PageNumber,
			sectionTitle: ch.Metadata.SectionTitle,
			vector:       vec,
		}
	}
	return len(chunks), nil
}

// Search implements vectorstore.VectorStore.
func (s *Store) Search(_ context.Context, namespace string, vector []float32, q vectorstore.Query) ([]domain.SearchResult, error) {
	if len(vector) != s.dimensions {
		return nil, domain.NewVectorStoreError(backendName, "search",
			fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(vector), s.dimensions))
	}

	var allowed map[string]bool
	if len(q.DocumentIDs) > 0 {
		allowed = make(map[string]bool, len(q.DocumentIDs))
		for _, id := range q.DocumentIDs {
			allowed[id] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SearchResult, 0)
	for _, rec := range s.namespaces[namespace] {
		if allowed != nil && !allowed[rec.documentID] {
			continue
		}
		results = append(results, domain.SearchResult{
			ChunkID:      rec.chunkID,
			DocumentID:   rec.documentID,
			Content:      rec.content,
			Score:        domain.CosineSimilarity(vector, rec.vector),
			PageNumber:   rec.pageNumber,
			SectionTitle: rec.sectionTitle,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if q.TopK > 0 && len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

// Delete implements vectorstore.VectorStore.
func (s *Store) Delete(_ context.Context, namespace string, sel vectorstore.Selector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if ns == nil {
		return 0, nil
	}

	if sel.All {
		n := len(ns)
		delete(s.namespaces, namespace)
		return n, nil
	}
	if sel.DocumentID == "" {
		return 0, domain.NewVectorStoreError(backendName, "delete", fmt.Errorf("empty delete selector"))
	}

	n := 0
	for id, rec := range ns {
		if rec.documentID == sel.DocumentID {
			delete(ns, id)
			n++
		}
	}
	return n, nil
}

// Stats implements vectorstore.VectorStore.
func (s *Store) Stats(_ context.Context, namespace string) (vectorstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.Stats{
		Backend:    backendName,
		Vectors:    int64(len(s.namespaces[namespace])),
		Dimensions: s.dimensions,
	}, nil
}

// Close implements vectorstore.VectorStore.
func (s *Store) Close() error { return nil }
