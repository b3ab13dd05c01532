package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"go.uber.org/zap"

	"github.com/corpora-dev/corpora/internal/domain"
)

var errPageTimeout = errors.New("page extraction timed out")

// parsePDF extracts text page by page, prefixing each page with a
// [PAGE n] marker so chunk page attribution survives re-splitting.
// Pages that fail or hang are skipped rather than failing the document.
func (p *Parser) parsePDF(ctx context.Context, content []byte, meta *domain.DocumentMetadata) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	meta.PageCount = total

	var sb strings.Builder
	extracted := 0

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := p.extractPage(reader, i)
		if err != nil {
			p.logger.Warn("pdf page extraction failed",
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		fmt.Fprintf(&sb, "[PAGE %d]\n%s\n\n", i, text)
		extracted++
	}

	if extracted == 0 && total > 0 {
		return "", fmt.Errorf("no extractable text in %d pages", total)
	}

	return sb.String(), nil
}

// extractPage runs GetPlainText in a goroutine with a timeout. Malformed
// pages can make the pdf library loop or panic, and one bad page must not
// take down the whole upload.
func (p *Parser) extractPage(reader *pdf.Reader, num int) (text string, err error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("page %d panicked: %v", num, r)}
			}
		}()

		page := reader.Page(num)
		if page.V.IsNull() {
			done <- result{err: fmt.Errorf("page %d is null", num)}
			return
		}

		t, err := page.GetPlainText(nil)
		done <- result{text: t, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-time.After(p.pageTimeout):
		return "", fmt.Errorf("page %d: %w", num, errPageTimeout)
	}
}
