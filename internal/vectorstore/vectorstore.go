// Package vectorstore defines the storage port for chunk vectors and its
// backends. Namespaces isolate users; every backend verifies result
// ownership before returning hits.
package vectorstore

import (
	"context"
	"unicode/utf8"

	"github.com/corpora-dev/corpora/internal/domain"
)

// Query narrows a vector search. TopK is the number of hits requested from
// the backend; score filtering happens above this layer.
type Query struct {
	TopK        int
	DocumentIDs []string // restrict to these documents; empty = all
}

// Selector picks vectors for deletion within a namespace.
type Selector struct {
	DocumentID string // delete one document's vectors
	All        bool   // delete the whole namespace
}

// Stats describes a namespace's footprint in the backend.
type Stats struct {
	Backend    string `json:"backend"`
	Vectors    int64  `json:"vectors"`
	Dimensions int    `json:"dimensions"`
}

// VectorStore is the interchangeable vector backend contract. Upsert is
// idempotent on chunk ID; implementations wrap failures into
// domain.VectorStoreError and never retry.
type VectorStore interface {
	// Init prepares backend structures (collections, indexes). Idempotent.
	Init(ctx context.Context) error
	// Upsert stores chunk vectors under the namespace, returning the count
	// written. Chunks without embeddings are rejected.
	Upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk) (int, error)
	// Search returns up to q.TopK nearest chunks by cosine similarity.
	Search(ctx context.Context, namespace string, vector []float32, q Query) ([]domain.SearchResult, error)
	// Delete removes vectors matching the selector, returning the count
	// removed where the backend reports it (-1 otherwise).
	Delete(ctx context.Context, namespace string, sel Selector) (int, error)
	// Stats reports the namespace footprint.
	Stats(ctx context.Context, namespace string) (Stats, error)
	// Close releases backend connections.
	Close() error
}

// maxStoredContentLen caps the chunk text stored in backend payloads.
const maxStoredContentLen = 1000

// TruncateContent trims chunk text for payload storage, cutting only at
// rune boundaries.
func TruncateContent(s string) string {
	if len(s) <= maxStoredContentLen {
		return s
	}
	cut := maxStoredContentLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
