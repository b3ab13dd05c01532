package domain

// SearchResult is a single vector-store hit, ephemeral per query.
// Score is a cosine similarity in [0,1] for both backends (the redis
// backend converts distance to similarity before returning).
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

// Citation is derived 1:1 from a SearchResult included in a generation
// context, ordered by pipeline occurrence rather than by score.
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

// KnowledgeContext is the citation-annotated context block assembled for a
// generation request. FormattedContext never exceeds the requested token
// budget (estimated); chunks are included whole or not at all.
type KnowledgeContext struct {
	Query            string         `json:"query"`
	Chunks           []SearchResult `json:"chunks"`
	Citations        []Citation     `json:"citations"`
	TotalTokens      int            `json:"total_tokens"`
	FormattedContext string         `json:"formatted_context"`
}
