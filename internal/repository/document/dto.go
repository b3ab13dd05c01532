package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/corpora-dev/corpora/internal/domain"
)

// Hash field names for a stored document.
const (
	fID         = "id"
	fUserID     = "user_id"
	fFilename   = "filename"
	fStatus     = "status"
	fChunkCount = "chunk_count"
	fCreatedAt  = "created_at"
	fUpdatedAt  = "updated_at"
	fMetadata   = "metadata"
)

// toFields flattens a document into hash fields. Metadata travels as one
// JSON blob; the scalar fields stay separate for cheap partial reads.
func toFields(doc *domain.Document) (map[string]string, error) {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return map[string]string{
		fID:         doc.ID,
		fUserID:     doc.UserID,
		fFilename:   doc.Filename,
		fStatus:     string(doc.Status),
		fChunkCount: strconv.Itoa(doc.ChunkCount),
		fCreatedAt:  doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		fUpdatedAt:  doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		fMetadata:   string(meta),
	}, nil
}

func fromFields(fields map[string]string) (domain.Document, error) {
	doc := domain.Document{
		ID:       fields[fID],
		UserID:   fields[fUserID],
		Filename: fields[fFilename],
		Status:   domain.DocumentStatus(fields[fStatus]),
	}
	if doc.ID == "" {
		return domain.Document{}, fmt.Errorf("document hash missing id field")
	}

	if v := fields[fChunkCount]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.Document{}, fmt.Errorf("parse chunk_count: %w", err)
		}
		doc.ChunkCount = n
	}
	if v := fields[fCreatedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return domain.Document{}, fmt.Errorf("parse created_at: %w", err)
		}
		doc.CreatedAt = t
	}
	if v := fields[fUpdatedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return domain.Document{}, fmt.Errorf("parse updated_at: %w", err)
		}
		doc.UpdatedAt = t
	}
	if v := fields[fMetadata]; v != "" {
		if err := json.Unmarshal([]byte(v), &doc.Metadata); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return doc, nil
}
