package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/corpora-dev/corpora/internal/domain"
)

// parseText validates plain text input. Non-UTF-8 bytes are rejected
// rather than silently mangled.
func parseText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: not valid UTF-8", domain.ErrUnsupportedFormat)
	}
	return string(content), nil
}

var mdHeadingRe = regexp.MustCompile(`(?m)^\s{0,3}#\s+(.+)$`)

// parseMarkdown is a passthrough that also lifts the first level-1
// heading into the document title. Heading lines stay in the text so the
// chunker can attribute sections.
func parseMarkdown(content []byte, meta *domain.DocumentMetadata) (string, error) {
	text, err := parseText(content)
	if err != nil {
		return "", err
	}

	if m := mdHeadingRe.FindStringSubmatch(text); m != nil {
		meta.Title = strings.TrimSpace(m[1])
	}

	return text, nil
}
