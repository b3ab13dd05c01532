package domain

import "time"

// FileType identifies a supported source document format.
type FileType string

// Supported document formats.
const (
	FileTypePDF      FileType = "pdf"
	FileTypeDOCX     FileType = "docx"
	FileTypeTXT      FileType = "txt"
	FileTypeMarkdown FileType = "md"
	FileTypeHTML     FileType = "html"
)

// DocumentStatus tracks a document through its processing lifecycle.
// processing → ready on success, processing → error on any pipeline
// failure; deleted is terminal.
type DocumentStatus string

// Document lifecycle states.
const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
	StatusDeleted    DocumentStatus = "deleted"
)

// DocumentMetadata is extracted once at parse time and immutable afterwards,
// except for the Custom map which is merged from upload form fields.
type DocumentMetadata struct {
	Title         string            `json:"title"`
	Source        string            `json:"source"`
	FileType      FileType          `json:"file_type"`
	FileSizeBytes int64             `json:"file_size_bytes"`
	PageCount     int               `json:"page_count,omitempty"`
	Author        string            `json:"author,omitempty"`
	Custom        map[string]string `json:"custom,omitempty"`
}

// Document is an uploaded knowledge-base document owned by a single user.
type Document struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Filename   string           `json:"filename"`
	Metadata   DocumentMetadata `json:"metadata"`
	Status     DocumentStatus   `json:"status"`
	ChunkCount int              `json:"chunk_count"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
