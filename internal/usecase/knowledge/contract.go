package knowledge

import (
	"context"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

// Parser turns upload bytes into plain text and metadata.
type Parser interface {
	DetectType(filename string, content []byte) (domain.FileType, error)
	Parse(ctx context.Context, content []byte, ft domain.FileType, filename string) (string, domain.DocumentMetadata, error)
}

// Chunker splits parsed text into token-bounded chunks.
type Chunker interface {
	ChunkDocument(documentID, text string, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error)
}

// Embedder vectorizes chunks and queries.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []domain.DocumentChunk) ([]domain.DocumentChunk, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorStore is the slice of the vector port this service uses.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk) (int, error)
	Search(ctx context.Context, namespace string, vector []float32, q vectorstore.Query) ([]domain.SearchResult, error)
	Delete(ctx context.Context, namespace string, sel vectorstore.Selector) (int, error)
	Stats(ctx context.Context, namespace string) (vectorstore.Stats, error)
}

// DocumentRepository persists document metadata.
type DocumentRepository interface {
	Save(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, userID, docID string) (domain.Document, error)
	List(ctx context.Context, userID string) ([]domain.Document, error)
	CountByStatus(ctx context.Context, userID string) (map[domain.DocumentStatus]int, error)
}
