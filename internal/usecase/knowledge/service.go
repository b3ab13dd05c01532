// Package knowledge orchestrates the document pipeline: parse, chunk,
// embed, index, and the retrieval operations built on top of it.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
	"github.com/corpora-dev/corpora/internal/metrics"
	"github.com/corpora-dev/corpora/internal/vectorstore"
)

// Defaults applied when a caller passes zero values.
const (
	DefaultTopK             = 5
	DefaultMinScore         = 0.7
	DefaultMaxContextTokens = 4000

	// excerptLen bounds citation excerpts.
	excerptLen = 200
)

// Config tunes the retrieval defaults. ChunkStrategy is only a metrics
// label; the chunker itself carries the real configuration.
type Config struct {
	DefaultTopK      int
	MinScore         float64
	MaxContextTokens int
	ChunkStrategy    string
}

func (c Config) withDefaults() Config {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = DefaultTopK
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	return c
}

// Stats aggregates metadata counts and vector store totals for one user.
type Stats struct {
	Documents      map[domain.DocumentStatus]int `json:"documents"`
	TotalDocuments int                           `json:"total_documents"`
	VectorStore    vectorstore.Stats             `json:"vector_store"`
}

// Service runs the knowledge pipeline. Every failure crossing its boundary
// is wrapped into exactly one domain.KnowledgeError.
type Service struct {
	parser  Parser
	chunker Chunker
	embed   Embedder
	vectors VectorStore
	docs    DocumentRepository
	cfg     Config
	logger  *zap.Logger
}

// New creates a knowledge service.
func New(
	parser Parser, chunker Chunker, embed Embedder,
	vectors VectorStore, docs DocumentRepository,
	cfg Config, logger *zap.Logger,
) *Service {
	return &Service{
		parser:  parser,
		chunker: chunker,
		embed:   embed,
		vectors: vectors,
		docs:    docs,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Upload ingests one document end to end: detect, parse, chunk, embed,
// index, persist metadata. The returned document is status=ready; on a
// pipeline failure the stored record (if any) is left status=error.
func (s *Service) Upload(
	ctx context.Context, userID, filename string, content []byte, custom map[string]string,
) (domain.Document, error) {
	if userID == "" {
		return domain.Document{}, domain.NewKnowledgeError("upload", "", fmt.Errorf("%w: user id required", domain.ErrValidation))
	}
	if len(content) == 0 {
		return domain.Document{}, domain.NewKnowledgeError("upload", "", fmt.Errorf("%w: empty file", domain.ErrValidation))
	}

	ft, err := s.parser.DetectType(filename, content)
	if err != nil {
		metrics.DocumentsProcessedTotal.WithLabelValues("unknown", "error").Inc()
		return domain.Document{}, domain.NewKnowledgeError("upload", "", err)
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filename:  filename,
		Status:    domain.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.docs.Save(ctx, &doc); err != nil {
		return domain.Document{}, domain.NewKnowledgeError("upload", doc.ID, fmt.Errorf("save document: %w", err))
	}

	chunks, err := s.process(ctx, &doc, content, ft, custom)
	if err != nil {
		s.markError(ctx, &doc)
		metrics.DocumentsProcessedTotal.WithLabelValues(string(ft), "error").Inc()
		return domain.Document{}, domain.NewKnowledgeError("upload", doc.ID, err)
	}

	doc.Status = domain.StatusReady
	doc.ChunkCount = len(chunks)
	doc.UpdatedAt = time.Now().UTC()
	if err = s.docs.Save(ctx, &doc); err != nil {
		// The vectors are already indexed; roll them back so a half-ingested
		// document cannot surface in search.
		if _, derr := s.vectors.Delete(ctx, domain.NamespaceForUser(userID), vectorstore.Selector{DocumentID: doc.ID}); derr != nil {
			s.logger.Error("compensating vector delete failed",
				zap.String("document_id", doc.ID), zap.Error(derr))
		}
		metrics.DocumentsProcessedTotal.WithLabelValues(string(ft), "error").Inc()
		return domain.Document{}, domain.NewKnowledgeError("upload", doc.ID, fmt.Errorf("save document: %w", err))
	}

	metrics.DocumentsProcessedTotal.WithLabelValues(string(ft), "ready").Inc()
	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("file_type", string(ft)),
		zap.Int("chunks", len(chunks)))
	return doc, nil
}

// process runs parse → chunk → embed → upsert and fills doc.Metadata.
func (s *Service) process(
	ctx context.Context, doc *domain.Document, content []byte, ft domain.FileType, custom map[string]string,
) ([]domain.DocumentChunk, error) {
	text, meta, err := s.parser.Parse(ctx, content, ft, doc.Filename)
	if err != nil {
		return nil, err
	}
	if len(custom) > 0 {
		if meta.Custom == nil {
			meta.Custom = make(map[string]string, len(custom))
		}
		for k, v := range custom {
			meta.Custom[k] = v
		}
	}
	doc.Metadata = meta

	chunks, err := s.chunker.ChunkDocument(doc.ID, text, meta)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no text", domain.ErrValidation)
	}
	metrics.ChunksCreatedTotal.WithLabelValues(s.cfg.ChunkStrategy).Add(float64(len(chunks)))

	chunks, err = s.embed.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if _, err = s.vectors.Upsert(ctx, domain.NamespaceForUser(doc.UserID), chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// markError flips the stored record to status=error, best effort.
func (s *Service) markError(ctx context.Context, doc *domain.Document) {
	doc.Status = domain.StatusError
	doc.UpdatedAt = time.Now().UTC()
	if err := s.docs.Save(ctx, doc); err != nil {
		s.logger.Error("mark document error failed",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// Search embeds the query and runs a similarity search over the user's
// namespace. The store is over-fetched at 2×topK so the minScore
// post-filter still has enough candidates; backend ordering is preserved.
func (s *Service) Search(
	ctx context.Context, userID, query string, topK int, minScore float64, documentIDs []string,
) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewKnowledgeError("search", "", fmt.Errorf("%w: empty query", domain.ErrValidation))
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if minScore <= 0 {
		minScore = s.cfg.MinScore
	}

	vec, err := s.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.NewKnowledgeError("search", "", fmt.Errorf("vectorize query: %w", err))
	}

	ns := domain.NamespaceForUser(userID)
	results, err := s.vectors.Search(ctx, ns, vec, vectorstore.Query{
		TopK:        2 * topK,
		DocumentIDs: documentIDs,
	})
	if err != nil {
		return nil, domain.NewKnowledgeError("search", "", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	results = filtered
	if len(results) > topK {
		results = results[:topK]
	}

	s.enrichTitles(ctx, userID, results)
	return results, nil
}

// enrichTitles fills DocumentTitle from the metadata repo, one lookup per
// distinct document. A missing record leaves the title empty.
func (s *Service) enrichTitles(ctx context.Context, userID string, results []domain.SearchResult) {
	titles := make(map[string]string)
	for i := range results {
		id := results[i].DocumentID
		title, ok := titles[id]
		if !ok {
			doc, err := s.docs.Get(ctx, userID, id)
			if err == nil {
				title = doc.Metadata.Title
			}
			titles[id] = title
		}
		results[i].DocumentTitle = title
	}
}

// GenerationContext assembles a citation-annotated context block for a
// generation request. Chunks are packed greedily in retrieval order and
// included whole or not at all; the formatted block, including the source
// reference list, stays within maxTokens (estimated).
func (s *Service) GenerationContext(
	ctx context.Context, userID, query string, topK, maxTokens int,
) (domain.KnowledgeContext, error) {
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxContextTokens
	}

	results, err := s.Search(ctx, userID, query, topK, 0, nil)
	if err != nil {
		return domain.KnowledgeContext{}, err
	}

	kc := domain.KnowledgeContext{Query: query}
	var body, refs strings.Builder
	const refsHeader = "Source References:\n"
	total := domain.EstimateTokens(refsHeader)

	for _, r := range results {
		n := len(kc.Chunks) + 1
		snippet := fmt.Sprintf("[citation_%d] %s\n\n", n, r.Content)
		refLine := referenceLine(n, r)

		cost := domain.EstimateTokens(snippet) + domain.EstimateTokens(refLine)
		if total+cost > maxTokens {
			break
		}
		total += cost

		body.WriteString(snippet)
		refs.WriteString(refLine)
		kc.Chunks = append(kc.Chunks, r)
		kc.Citations = append(kc.Citations, domain.Citation{
			ID:            fmt.Sprintf("citation_%d", n),
			DocumentID:    r.DocumentID,
			DocumentTitle: r.DocumentTitle,
			ChunkID:       r.ChunkID,
			PageNumber:    r.PageNumber,
			SectionTitle:  r.SectionTitle,
			Relevance:     r.Score,
			Excerpt:       excerpt(r.Content),
		})
	}

	if len(kc.Chunks) > 0 {
		kc.FormattedContext = body.String() + refsHeader + refs.String()
		kc.TotalTokens = total
	}
	return kc, nil
}

// referenceLine renders one "Source References" entry.
func referenceLine(n int, r domain.SearchResult) string {
	title := r.DocumentTitle
	if title == "" {
		title = r.DocumentID
	}
	var loc string
	switch {
	case r.PageNumber > 0:
		loc = fmt.Sprintf(" (page %d)", r.PageNumber)
	case r.SectionTitle != "":
		loc = fmt.Sprintf(" (%s)", r.SectionTitle)
	}
	return fmt.Sprintf("[citation_%d] %s%s\n", n, title, loc)
}

// excerpt truncates content for citation display, cutting only at rune
// boundaries.
func excerpt(content string) string {
	if len(content) <= excerptLen {
		return content
	}
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// Delete removes a document's vectors and soft-deletes its metadata.
// Vectors go first so a failure cannot leave searchable chunks behind a
// deleted record.
func (s *Service) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.docs.Get(ctx, userID, documentID)
	if err != nil {
		return domain.NewKnowledgeError("delete", documentID, err)
	}
	if doc.Status == domain.StatusDeleted {
		return domain.NewKnowledgeError("delete", documentID, domain.ErrDocumentNotFound)
	}

	if _, err = s.vectors.Delete(ctx, domain.NamespaceForUser(userID), vectorstore.Selector{DocumentID: documentID}); err != nil {
		return domain.NewKnowledgeError("delete", documentID, err)
	}

	doc.Status = domain.StatusDeleted
	doc.ChunkCount = 0
	doc.UpdatedAt = time.Now().UTC()
	if err = s.docs.Save(ctx, &doc); err != nil {
		return domain.NewKnowledgeError("delete", documentID, fmt.Errorf("save document: %w", err))
	}
	return nil
}

// Get returns one document's metadata. Soft-deleted documents read as
// not found.
func (s *Service) Get(ctx context.Context, userID, documentID string) (domain.Document, error) {
	doc, err := s.docs.Get(ctx, userID, documentID)
	if err != nil {
		return domain.Document{}, domain.NewKnowledgeError("get", documentID, err)
	}
	if doc.Status == domain.StatusDeleted {
		return domain.Document{}, domain.NewKnowledgeError("get", documentID, domain.ErrDocumentNotFound)
	}
	return doc, nil
}

// List returns the user's documents, newest first, excluding soft-deleted
// ones.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Document, error) {
	docs, err := s.docs.List(ctx, userID)
	if err != nil {
		return nil, domain.NewKnowledgeError("list", "", err)
	}
	live := docs[:0]
	for _, d := range docs {
		if d.Status != domain.StatusDeleted {
			live = append(live, d)
		}
	}
	return live, nil
}

// Stats reports per-status document counts and vector store totals.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	counts, err := s.docs.CountByStatus(ctx, userID)
	if err != nil {
		return Stats{}, domain.NewKnowledgeError("stats", "", err)
	}

	vs, err := s.vectors.Stats(ctx, domain.NamespaceForUser(userID))
	if err != nil {
		return Stats{}, domain.NewKnowledgeError("stats", "", err)
	}

	total := 0
	for status, n := range counts {
		if status != domain.StatusDeleted {
			total += n
		}
	}
	return Stats{Documents: counts, TotalDocuments: total, VectorStore: vs}, nil
}
