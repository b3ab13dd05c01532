// Package qdrant implements the vector store port on a Qdrant cluster.
// Each namespace gets its own collection, and hit ownership is still
// verified against the stored payload before results leave this layer.
package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

const (
	backendName      = "qdrant"
	collectionPrefix = "corpora_"
	upsertBatchSize  = 100
)

// Store is a qdrant-backed vector store.
type Store struct {
	client     *qdrant.Client
	dimensions int
	logger     *zap.Logger
}

// Config holds the connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Dimensions int
	Logger     *zap.Logger
}

// New connects to qdrant.
func New(cfg *Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, domain.NewVectorStoreError(backendName, "connect", err)
	}

	return &Store{
		client:     client,
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}, nil
}

func collectionName(namespace string) string {
	return collectionPrefix + namespace
}

// Init verifies connectivity. Collections are created lazily per namespace
// on first upsert.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	_, err := s.client.ListCollections(ctx)
	vectorstore.ObserveOp(backendName, "init", start, err)
	if err != nil {
		return domain.NewVectorStoreError(backendName, "init", err)
	}
	return nil
}

// ensureCollection creates the namespace collection if missing.
func (s *Store) ensureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("collection exists: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", name),
		zap.Int("dimensions", s.dimensions),
	)
	return nil
}

// Upsert implements vectorstore.VectorStore.
func (s *Store) Upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk) (int, error) {
	start := time.Now()
	n, err := s.upsert(ctx, namespace, chunks)
	vectorstore.ObserveOp(backendName, "upsert", start, err)
	if err != nil {
		return n, domain.NewVectorStoreError(backendName, "upsert", err)
	}
	return n, nil
}

func (s *Store) upsert(ctx context.Context, namespace string, chunks []domain.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	name := collectionName(namespace)
	if err := s.ensureCollection(ctx, name); err != nil {
		return 0, err
	}

	written := 0
	for offset := 0; offset < len(chunks); offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		points := make([]*qdrant.PointStruct, 0, end-offset)
		for _, ch := range chunks[offset:end] {
			if len(ch.Embedding) != s.dimensions {
				return written, fmt.Errorf("chunk %s: %w: got %d, want %d",
					ch.ID, domain.ErrVectorDimMismatch, len(ch.Embedding), s.dimensions)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(ch.ID),
				Vectors: qdrant.NewVectors(ch.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"namespace":     namespace,
					"document_id":   ch.Metadata.DocumentID,
					"chunk_index":   int64(ch.Metadata.ChunkIndex),
					"content":       vectorstore.TruncateContent(ch.Content),
					"page_number":   int64(ch.Metadata.PageNumber),
					"section_title": ch.Metadata.SectionTitle,
					"token_count":   int64(ch.Metadata.TokenCount),
				}),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return written, fmt.Errorf("upsert batch at %d: %w", offset, err)
		}
		written += len(points)
	}

	return written, nil
}

// Search implements vectorstore.VectorStore.
func (s *Store) Search(ctx context.Context, namespace string, vector []float32, q vectorstore.Query) ([]domain.SearchResult, error) {
	start := time.Now()
	results, err := s.search(ctx, namespace, vector, q)
	vectorstore.ObserveOp(backendName, "search", start, err)
	if err != nil {
		return nil, domain.NewVectorStoreError(backendName, "search", err)
	}
	return results, nil
}

func (s *Store) search(ctx context.Context, namespace string, vector []float32, q vectorstore.Query) ([]domain.SearchResult, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(vector), s.dimensions)
	}

	name := collectionName(namespace)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection exists: %w", err)
	}
	if !exists {
		return nil, nil // nothing uploaded yet
	}

	req := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(q.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(q.DocumentIDs) > 0 {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("document_id", q.DocumentIDs...),
			},
		}
	}

	hits, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		payload := hit.Payload
		if owner := payload["namespace"].GetStringValue(); owner != namespace {
			vectorstore.DropMismatch(backendName)
			s.logger.Warn("dropped foreign search hit",
				zap.String("collection", name),
				zap.String("owner", owner),
			)
			continue
		}
		results = append(results, domain.SearchResult{
			ChunkID:      hit.Id.GetUuid(),
			DocumentID:   payload["document_id"].GetStringValue(),
			Content:      payload["content"].GetStringValue(),
			Score:        float64(hit.Score),
			PageNumber:   int(payload["page_number"].GetIntegerValue()),
			SectionTitle: payload["section_title"].GetStringValue(),
		})
	}
	return results, nil
}

// Delete implements vectorstore.VectorStore. Qdrant does not report how
// many points a filter delete removed, so the count is -1.
func (s *Store) Delete(ctx context.Context, namespace string, sel vectorstore.Selector) (int, error) {
	start := time.Now()
	err := s.delete(ctx, namespace, sel)
	vectorstore.ObserveOp(backendName, "delete", start, err)
	if err != nil {
		return 0, domain.NewVectorStoreError(backendName, "delete", err)
	}
	return -1, nil
}

func (s *Store) delete(ctx context.Context, namespace string, sel vectorstore.Selector) error {
	name := collectionName(namespace)

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("collection exists: %w", err)
	}
	if !exists {
		return nil
	}

	if sel.All {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
		return nil
	}
	if sel.DocumentID == "" {
		return fmt.Errorf("empty delete selector")
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", sel.DocumentID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Stats implements vectorstore.VectorStore.
func (s *Store) Stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	start := time.Now()
	stats, err := s.stats(ctx, namespace)
	vectorstore.ObserveOp(backendName, "stats", start, err)
	if err != nil {
		return vectorstore.Stats{}, domain.NewVectorStoreError(backendName, "stats", err)
	}
	return stats, nil
}

func (s *Store) stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	out := vectorstore.Stats{Backend: backendName, Dimensions: s.dimensions}

	name := collectionName(namespace)
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return out, fmt.Errorf("collection exists: %w", err)
	}
	if !exists {
		return out, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return out, fmt.Errorf("count: %w", err)
	}
	out.Vectors = int64(count)
	return out, nil
}

// Close releases the grpc connection.
func (s *Store) Close() error {
	return s.client.Close()
}
