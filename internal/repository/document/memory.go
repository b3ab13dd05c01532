package document

import (
	"context"
	"sort"
	"sync"

	"github.com/corpora-dev/corpora/internal/domain"
)

// MemoryRepo is the in-process document repository for development runs.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]map[string]domain.Document // userID -> docID -> doc
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepo {
	return &MemoryRepo{docs: map[string]map[string]domain.Document{}}
}

// Save creates or replaces a document record.
func (r *MemoryRepo) Save(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user := r.docs[doc.UserID]
	if user == nil {
		user = map[string]domain.Document{}
		r.docs[doc.UserID] = user
	}
	user[doc.ID] = *doc
	return nil
}

// Get returns one document owned by the user.
func (r *MemoryRepo) Get(_ context.Context, userID, docID string) (domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[userID][docID]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// List returns all of a user's documents, newest first.
func (r *MemoryRepo) List(_ context.Context, userID string) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user := r.docs[userID]
	out := make([]domain.Document, 0, len(user))
	for _, doc := range user {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes the document record.
func (r *MemoryRepo) Delete(_ context.Context, userID, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[userID][docID]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.docs[userID], docID)
	return nil
}

// CountByStatus returns per-status document counts for a user.
func (r *MemoryRepo) CountByStatus(_ context.Context, userID string) (map[domain.DocumentStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.DocumentStatus]int, 4)
	for _, doc := range r.docs[userID] {
		counts[doc.Status]++
	}
	return counts, nil
}
