package sdk

import "time"

// Document mirrors the server's document metadata payload.
type Document struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Filename   string            `json:"filename"`
	Metadata   DocumentMetadata  `json:"metadata"`
	Status     string            `json:"status"`
	ChunkCount int               `json:"chunk_count"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// DocumentMetadata is extracted server-side at parse time.
type DocumentMetadata struct {
	Title         string            `json:"title"`
	Source        string            `json:"source"`
	FileType      string            `json:"file_type"`
	FileSizeBytes int64             `json:"file_size_bytes"`
	PageCount     int               `json:"page_count,omitempty"`
	Author        string            `json:"author,omitempty"`
	Custom        map[string]string `json:"custom,omitempty"`
}

// SearchRequest narrows a similarity search.
type SearchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k,omitempty"`
	MinScore    float64  `json:"min_score,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// SearchResult is one scored chunk hit.
type SearchResult struct {
	ChunkID       string            `json:"chunk_id"`
	DocumentID    string            `json:"document_id"`
	Content       string            `json:"content"`
	Score         float64           `json:"score"`
	DocumentTitle string            `json:"document_title,omitempty"`
	PageNumber    int               `json:"page_number,omitempty"`
	SectionTitle  string            `json:"section_title,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ContextRequest asks for a citation-annotated generation context.
type ContextRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Citation references one chunk included in a generation context.
type Citation struct {
	ID            string  `json:"id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkID       string  `json:"chunk_id"`
	PageNumber    int     `json:"page_number,omitempty"`
	SectionTitle  string  `json:"section_title,omitempty"`
	Relevance     float64 `json:"relevance_score"`
	Excerpt       string  `json:"excerpt"`
}

// KnowledgeContext is the assembled context block.
type KnowledgeContext struct {
	Query            string         `json:"query"`
	Chunks           []SearchResult `json:"chunks"`
	Citations        []Citation     `json:"citations"`
	TotalTokens      int            `json:"total_tokens"`
	FormattedContext string         `json:"formatted_context"`
}

// VectorStoreStats describes the vector backend footprint.
type VectorStoreStats struct {
	Backend    string `json:"backend"`
	Vectors    int64  `json:"vectors"`
	Dimensions int    `json:"dimensions"`
}

// Stats aggregates document counts and vector store totals.
type Stats struct {
	Documents      map[string]int   `json:"documents"`
	TotalDocuments int              `json:"total_documents"`
	VectorStore    VectorStoreStats `json:"vector_store"`
}

// UsageReport is one budget window's token consumption.
type UsageReport struct {
	Period      string `json:"period"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	TokensLimit int64  `json:"tokens_limit"`
	TokensUsed  int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"`
	Exhausted   bool   `json:"exhausted"`
	ResetsAt    int64  `json:"resets_at"`
}

// HealthReport is the aggregated /health response.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

type documentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}
