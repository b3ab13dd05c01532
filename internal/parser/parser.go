// Package parser converts uploaded document bytes into plain text plus
// best-effort metadata. PDF text is annotated with inline [PAGE n] markers
// that the chunker later resolves into citation page numbers.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
)

// magic byte prefixes for content-based detection.
var (
	pdfMagic = []byte("%PDF")
	zipMagic = []byte("PK\x03\x04") // DOCX is a zip container
)

// Parser dispatches uploads to the per-format extractors.
type Parser struct {
	logger      *zap.Logger
	pageTimeout time.Duration
}

// New creates a Parser.
func New(logger *zap.Logger) *Parser {
	return &Parser{
		logger:      logger,
		pageTimeout: 10 * time.Second,
	}
}

// DetectType resolves the document format from the filename extension
// first, then from magic bytes, then by UTF-8 decodability.
func (p *Parser) DetectType(filename string, content []byte) (domain.FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return domain.FileTypePDF, nil
	case ".docx", ".rtf", ".odt":
		return domain.FileTypeDOCX, nil
	case ".txt":
		return domain.FileTypeTXT, nil
	case ".md", ".markdown":
		return domain.FileTypeMarkdown, nil
	case ".html", ".htm":
		return domain.FileTypeHTML, nil
	}

	if bytes.HasPrefix(content, pdfMagic) {
		return domain.FileTypePDF, nil
	}
	if bytes.HasPrefix(content, zipMagic) {
		return domain.FileTypeDOCX, nil
	}
	if utf8.Valid(content) {
		return domain.FileTypeTXT, nil
	}

	return "", &domain.DocumentError{
		Name:  filename,
		Stage: "detect",
		Err:   fmt.Errorf("%w: extension %q, no recognized magic bytes", domain.ErrUnsupportedFormat, filepath.Ext(filename)),
	}
}

// Parse extracts plain text and metadata for a detected file type.
// Extraction failures wrap into domain.DocumentError.
func (p *Parser) Parse(
	ctx context.Context, content []byte, ft domain.FileType, filename string,
) (string, domain.DocumentMetadata, error) {
	meta := domain.DocumentMetadata{
		Source:        filename,
		FileType:      ft,
		FileSizeBytes: int64(len(content)),
	}

	var text string
	var err error

	switch ft {
	case domain.FileTypePDF:
		text, err = p.parsePDF(ctx, content, &meta)
	case domain.FileTypeDOCX:
		text, err = p.parseOffice(content, filename)
	case domain.FileTypeTXT:
		text, err = parseText(content)
	case domain.FileTypeMarkdown:
		text, err = parseMarkdown(content, &meta)
	case domain.FileTypeHTML:
		text, err = parseHTML(content, &meta)
	default:
		err = fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ft)
	}

	if err != nil {
		return "", domain.DocumentMetadata{}, &domain.DocumentError{Name: filename, Stage: "parse", Err: err}
	}

	text = cleanText(text)
	if meta.Title == "" {
		meta.Title = titleFromFilename(filename)
	}

	return text, meta, nil
}

// titleFromFilename strips the extension and normalizes separators.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}
