package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/corpora-dev/corpora/internal/domain"
)

// blockSelector covers elements that render as their own line of text.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, td, th, pre, blockquote"

// parseHTML strips chrome elements and flattens the body into plain text.
// Headings are rewritten as "## "-prefixed lines so the section-aware
// chunking strategies can pick them up.
func parseHTML(content []byte, meta *domain.DocumentMetadata) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta.Title = title
	}

	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()

	var sb strings.Builder
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if name := goquery.NodeName(s); len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
			sb.WriteString("## ")
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	})

	if sb.Len() == 0 {
		// No block elements; fall back to the body's raw text.
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}

	return sb.String(), nil
}
