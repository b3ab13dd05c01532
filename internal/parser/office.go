package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lu4p/cat"
)

// parseOffice extracts text from DOCX/RTF/ODT containers. The extraction
// library dispatches on the file extension, so the upload bytes are spilled
// to a temp file carrying the original extension.
func (p *Parser) parseOffice(content []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".docx"
	}

	tmp, err := os.CreateTemp("", "corpora-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	text, err := cat.File(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}

	return text, nil
}
