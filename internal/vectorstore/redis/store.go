// Package redis implements the vector store port on a RediSearch HNSW
// index. All namespaces share one index; isolation rests on an indexed
// namespace tag, which is weaker than qdrant's per-namespace collections,
// so hit ownership is re-verified on every read.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/db"
	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

const (
	backendName     = "redis"
	upsertBatchSize = 100

	fieldNamespace  = "namespace"
	fieldDocumentID = "document_id"
	fieldChunkIndex = "chunk_index"
	fieldContent    = "content"
	fieldPage       = "page_number"
	fieldSection    = "section_title"
	fieldTokens     = "token_count"
	fieldVector     = "vector"
)

var (
	chunkKeyPrefix  = domain.KeyPrefix + "vec:"
	docSetKeyPrefix = domain.KeyPrefix + "vecidx:"
)

// database is the slice of the db facade this backend needs.
type database interface {
	db.HashStore
	db.SetStore
	db.IndexManager
	db.Searcher
}

// Store is a RediSearch-backed vector store.
type Store struct {
	db         database
	indexName  string
	dimensions int
	hnswM      int
	hnswEF     int
	logger     *zap.Logger
}

// Config holds the index settings.
type Config struct {
	IndexName  string
	Dimensions int
	HNSWM      int
	HNSWEF     int
	Logger     *zap.Logger
}

// New creates the store on an existing database connection. The connection
// lifecycle belongs to the caller.
func New(database database, cfg *Config) *Store {
	return &Store{
		db:         database,
		indexName:  cfg.IndexName,
		dimensions: cfg.Dimensions,
		hnswM:      cfg.HNSWM,
		hnswEF:     cfg.HNSWEF,
		logger:     cfg.Logger,
	}
}

func chunkKey(namespace, chunkID string) string {
	return chunkKeyPrefix + namespace + ":" + chunkID
}

func docSetKey(namespace, documentID string) string {
	return docSetKeyPrefix + namespace + ":" + documentID
}

// Init creates the FT index if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	err := s.init(ctx)
	vectorstore.ObserveOp(backendName, "init", start, err)
	if err != nil {
		return domain.NewVectorStoreError(backendName, "init", err)
	}
	return nil
}

func (s *Store) init(ctx context.Context) error {
	exists, err := s.db.IndexExists(ctx, s.indexName)
	if err != nil {
		return fmt.Errorf("index exists: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:        s.indexName,
		StorageType: db.StorageHash,
		Prefixes:    []string{chunkKeyPrefix},
		Fields: []db.IndexField{
			{Name: fieldNamespace, Type: db.IndexFieldTag},
			{Name: fieldDocumentID, Type: db.IndexFieldTag},
			{Name: fieldContent, Type: db.IndexFieldText},
			{Name: fieldPage, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         s.dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           s.hnswM,
				VectorEFConstruct: s.hnswEF,
			},
		},
	}
	if err := s.db.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	s.logger.Info("created search index",
		zap.String("index", s.indexName),
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
	written := 0
	byDoc := map[string][]string{}

	for offset := 0; offset < len(chunks); offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		items := make([]db.HashSetItem, 0, end-offset)
		for _, ch := range chunks[offset:end] {
			if len(ch.Embedding) != s.dimensions {
				return written, fmt.Errorf("chunk %s: %w: got %d, want %d",
					ch.ID, domain.ErrVectorDimMismatch, len(ch.Embedding), s.dimensions)
			}
			key := chunkKey(namespace, ch.ID)
			byDoc[ch.Metadata.DocumentID] = append(byDoc[ch.Metadata.DocumentID], key)
			items = append(items, db.HashSetItem{
				Key: key,
				Fields: map[string]string{
					fieldNamespace:  namespace,
					fieldDocumentID: ch.Metadata.DocumentID,
					fieldChunkIndex: strconv.Itoa(ch.Metadata.ChunkIndex),
					fieldContent:    vectorstore.TruncateContent(ch.Content),
					fieldPage:       strconv.Itoa(ch.Metadata.PageNumber),
					fieldSection:    ch.Metadata.SectionTitle,
					fieldTokens:     strconv.Itoa(ch.Metadata.TokenCount),
					fieldVector:     string(vectorBytes(ch.Embedding)),
				},
			})
		}

		if err := s.db.HSetMulti(ctx, items); err != nil {
			return written, fmt.Errorf("hset batch at %d: %w", offset, err)
		}
		written += len(items)
	}

	// Per-document key sets make document deletes O(chunks of the doc)
	// instead of a keyspace scan.
	for docID, keys := range byDoc {
		if err := s.db.SAdd(ctx, docSetKey(namespace, docID), keys...); err != nil {
			return written, fmt.Errorf("index document keys: %w", err)
		}
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

	res, err := s.db.SearchKNN(ctx, &db.KNNQuery{
		IndexName: s.indexName,
		Filter:    s.filterExpr(namespace, q.DocumentIDs),
		Vector:    vector,
		K:         q.TopK,
		ReturnFields: []string{
			fieldNamespace, fieldDocumentID, fieldContent, fieldPage, fieldSection,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(res.Entries))
	for _, entry := range res.Entries {
		if owner := entry.Fields[fieldNamespace]; owner != namespace {
			vectorstore.DropMismatch(backendName)
			s.logger.Warn("dropped foreign search hit",
				zap.String("key", entry.Key),
				zap.String("owner", owner),
			)
			continue
		}
		page, _ := strconv.Atoi(entry.Fields[fieldPage])
		results = append(results, domain.SearchResult{
			ChunkID:      chunkIDFromKey(entry.Key, namespace),
			DocumentID:   entry.Fields[fieldDocumentID],
			Content:      entry.Fields[fieldContent],
			Score:        entry.Score,
			PageNumber:   page,
			SectionTitle: entry.Fields[fieldSection],
		})
	}
	return results, nil
}

// filterExpr builds the RediSearch tag filter: namespace always, plus an
// optional document-id alternation.
func (s *Store) filterExpr(namespace string, documentIDs []string) string {
	expr := fmt.Sprintf("@%s:{%s}", fieldNamespace, escapeTag(namespace))
	if len(documentIDs) == 0 {
		return expr
	}

	escaped := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		escaped[i] = escapeTag(id)
	}
	return fmt.Sprintf("%s @%s:{%s}", expr, fieldDocumentID, strings.Join(escaped, "|"))
}

// Delete implements vectorstore.VectorStore.
func (s *Store) Delete(ctx context.Context, namespace string, sel vectorstore.Selector) (int, error) {
	start := time.Now()
	n, err := s.delete(ctx, namespace, sel)
	vectorstore.ObserveOp(backendName, "delete", start, err)
	if err != nil {
		return n, domain.NewVectorStoreError(backendName, "delete", err)
	}
	return n, nil
}

func (s *Store) delete(ctx context.Context, namespace string, sel vectorstore.Selector) (int, error) {
	if sel.All {
		keys, err := s.db.Scan(ctx, chunkKeyPrefix+namespace+":*")
		if err != nil {
			return 0, fmt.Errorf("scan chunks: %w", err)
		}
		sets, err := s.db.Scan(ctx, docSetKeyPrefix+namespace+":*")
		if err != nil {
			return 0, fmt.Errorf("scan doc sets: %w", err)
		}
		deleted, err := s.db.DelMulti(ctx, append(keys, sets...))
		if err != nil {
			return 0, fmt.Errorf("delete namespace keys: %w", err)
		}
		if n := deleted - len(sets); n > 0 {
			return n, nil
		}
		return 0, nil
	}
	if sel.DocumentID == "" {
		return 0, fmt.Errorf("empty delete selector")
	}

	setKey := docSetKey(namespace, sel.DocumentID)
	keys, err := s.db.SMembers(ctx, setKey)
	if err != nil {
		return 0, fmt.Errorf("document keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.db.DelMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.db.Del(ctx, setKey); err != nil {
		return deleted, fmt.Errorf("delete key set: %w", err)
	}
	return deleted, nil
}

// Stats implements vectorstore.VectorStore.
func (s *Store) Stats(ctx context.Context, namespace string) (vectorstore.Stats, error) {
	start := time.Now()
	count, err := s.db.SearchCount(ctx, s.indexName,
		fmt.Sprintf("@%s:{%s}", fieldNamespace, escapeTag(namespace)))
	vectorstore.ObserveOp(backendName, "stats", start, err)
	if err != nil {
		return vectorstore.Stats{}, domain.NewVectorStoreError(backendName, "stats", err)
	}
	return vectorstore.Stats{
		Backend:    backendName,
		Vectors:    int64(count),
		Dimensions: s.dimensions,
	}, nil
}

// Close implements vectorstore.VectorStore. The database connection is
// owned by the composition root.
func (s *Store) Close() error { return nil }

func chunkIDFromKey(key, namespace string) string {
	return strings.TrimPrefix(key, chunkKeyPrefix+namespace+":")
}

// escapeTag backslash-escapes RediSearch tag syntax characters.
func escapeTag(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '-', '.', ':', ' ', '{', '}', '|', '@', '(', ')', '[', ']', '"', '\'', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func vectorBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
