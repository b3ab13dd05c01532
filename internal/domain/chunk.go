package domain

import "time"

// ChunkMetadata carries the provenance of a chunk inside its source document.
// ChunkIndex is contiguous from 0 within a document; StartChar < EndChar and
// ranges are monotonically non-decreasing across the chunk sequence.
type ChunkMetadata struct {
	DocumentID   string `json:"document_id"`
	ChunkIndex   int    `json:"chunk_index"`
	PageNumber   int    `json:"page_number,omitempty"` // 0 = unknown (non-paginated source)
	SectionTitle string `json:"section_title,omitempty"`
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
	TokenCount   int    `json:"token_count"`
	// Overlap counts are measured (longest shared suffix/prefix with the
	// neighbor, in estimated tokens), not assumed from configuration.
	OverlapWithPrevious int `json:"overlap_with_previous"`
	OverlapWithNext     int `json:"overlap_with_next"`
}

// DocumentChunk is one token-bounded slice of a parsed document.
// The embedding is attached after construction and the chunk is immutable
// once upserted into a vector store.
type DocumentChunk struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
