package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// snapRuneStart backs i off to the nearest rune boundary in text so a
// byte-offset cut never splits a multi-byte rune.
func snapRuneStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// nextRuneStart advances i to the next rune boundary in text.
func nextRuneStart(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

// fixedSpans cuts windows of ChunkSize tokens, preferring a sentence
// boundary inside the trailing overlap window, and starts the next window
// ChunkOverlap tokens before the previous end. base shifts the resulting
// offsets when splitting a sub-slice of the document.
func (c *Chunker) fixedSpans(text string, base int) []span {
	limit := c.cfg.ChunkSize * charsPerToken
	overlap := c.cfg.ChunkOverlap * charsPerToken

	var spans []span
	start := 0
	for start < len(text) {
		end := start + limit
		if end >= len(text) {
			spans = append(spans, span{base + start, base + len(text)})
			break
		}
		end = snapRuneStart(text, end)
		if cut := lastBoundary(text[start:end], overlap); cut > 0 {
			end = start + cut
		}
		if end <= start {
			end = nextRuneStart(text, start+1)
		}
		spans = append(spans, span{base + start, base + end})

		next := snapRuneStart(text, end-overlap)
		if next <= start {
			next = nextRuneStart(text, start+1)
		}
		start = next
	}
	return spans
}

var boundaryMarks = []string{". ", "! ", "? ", ".\n", "!\n", "?\n", "\n"}

// lastBoundary finds the rightmost sentence boundary within the trailing
// window of s and returns the cut position after it, or 0 if none.
func lastBoundary(s string, window int) int {
	from := len(s) - window
	if from < 0 {
		from = 0
	}
	best := 0
	for _, mark := range boundaryMarks {
		if i := strings.LastIndex(s[from:], mark); i >= 0 {
			if cut := from + i + len(mark); cut > best {
				best = cut
			}
		}
		if best > 0 {
			break // marks are ordered by preference
		}
	}
	return best
}

// paragraphSpans merges whole paragraphs until the next one would push the
// group past ChunkSize. A single paragraph above the limit falls back to
// fixed splitting.
func (c *Chunker) paragraphSpans(text string) []span {
	return c.mergeParts(text, splitSpans(text, "\n\n"))
}

var sentenceEndRe = regexp.MustCompile(`[.!?]+["')\]]*(\s+|$)`)

// sentenceSpans groups whole sentences greedily up to ChunkSize. Split
// points keep terminators with the preceding sentence.
func (c *Chunker) sentenceSpans(text string) []span {
	var parts []span
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		parts = append(parts, span{start, loc[1]})
		start = loc[1]
	}
	if start < len(text) {
		parts = append(parts, span{start, len(text)})
	}
	return c.mergeParts(text, parts)
}

var (
	semanticHeaderRe = regexp.MustCompile(`^(#{1,6}[ \t]|\[PAGE \d+\])`)
	listItemRe       = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s`)
)

// semanticSpans splits at structural boundaries: headers and page breaks
// always open a new chunk; blank lines and list item starts open a new
// block that may still merge with its neighbors.
func (c *Chunker) semanticSpans(text string) []span {
	type block struct {
		span
		header bool
	}

	var blocks []block
	lineStart, blockStart := 0, 0
	prevBlank := false
	headerBlock := false

	flush := func(end int) {
		if end > blockStart {
			blocks = append(blocks, block{span{blockStart, end}, headerBlock})
		}
		blockStart = end
	}

	for lineStart <= len(text) {
		lineEnd := len(text)
		if i := strings.IndexByte(text[lineStart:], '\n'); i >= 0 {
			lineEnd = lineStart + i + 1
		}
		line := text[lineStart:lineEnd]
		trimmed := strings.TrimSpace(line)

		isHeader := semanticHeaderRe.MatchString(line)
		opensBlock := isHeader || prevBlank || listItemRe.MatchString(line)
		if opensBlock && lineStart > blockStart {
			flush(lineStart)
			headerBlock = isHeader
		} else if lineStart == blockStart {
			headerBlock = isHeader
		}

		prevBlank = trimmed == ""
		if lineEnd == len(text) {
			break
		}
		lineStart = lineEnd
	}
	flush(len(text))

	parts := make([]span, len(blocks))
	hard := make([]bool, len(blocks))
	for i, b := range blocks {
		parts[i] = b.span
		hard[i] = b.header
	}
	return c.mergePartsWithBreaks(text, parts, hard)
}

// recursiveSpans splits by the first separator that divides the text, then
// merges the pieces back up to ChunkSize with ChunkOverlap of carry-over.
// Pieces still over the limit recurse with the finer separators.
func (c *Chunker) recursiveSpans(text string, base int, seps []string) []span {
	limit := c.cfg.ChunkSize * charsPerToken
	if len(text) <= limit {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []span{{base, base + len(text)}}
	}
	if len(seps) == 0 {
		return c.fixedSpans(text, base)
	}

	sep := seps[0]
	rest := seps[1:]
	if sep == "" {
		return c.fixedSpans(text, base)
	}
	parts := splitSpans(text, sep)
	if len(parts) < 2 {
		return c.recursiveSpans(text, base, rest)
	}

	overlap := c.cfg.ChunkOverlap * charsPerToken
	var out []span
	cur := -1
	curEnd := 0
	for _, pt := range parts {
		if pt.len() > limit {
			if cur >= 0 {
				out = append(out, span{base + cur, base + curEnd})
				cur = -1
			}
			out = append(out, c.recursiveSpans(text[pt.start:pt.end], base+pt.start, rest)...)
			continue
		}
		if cur < 0 {
			cur, curEnd = pt.start, pt.end
			continue
		}
		if pt.end-cur > limit {
			out = append(out, span{base + cur, base + curEnd})
			next := snapRuneStart(text, curEnd-overlap)
			if next <= cur {
				next = nextRuneStart(text, cur+1)
			}
			cur = next
		}
		curEnd = pt.end
	}
	if cur >= 0 && curEnd > cur {
		out = append(out, span{base + cur, base + curEnd})
	}
	return out
}

// mergeParts greedily merges contiguous parts up to ChunkSize; oversized
// parts fall back to fixed splitting.
func (c *Chunker) mergeParts(text string, parts []span) []span {
	return c.mergePartsWithBreaks(text, parts, nil)
}

// mergePartsWithBreaks is mergeParts with optional forced break points:
// a part flagged hard never merges into the preceding group.
func (c *Chunker) mergePartsWithBreaks(text string, parts []span, hard []bool) []span {
	limit := c.cfg.ChunkSize * charsPerToken

	var out []span
	cur := -1
	curEnd := 0
	flush := func() {
		if cur >= 0 && curEnd > cur {
			out = append(out, span{cur, curEnd})
		}
		cur = -1
	}

	for i, pt := range parts {
		if strings.TrimSpace(text[pt.start:pt.end]) == "" {
			if cur >= 0 {
				curEnd = pt.end
			}
			continue
		}
		forced := hard != nil && hard[i]
		if pt.len() > limit {
			flush()
			out = append(out, c.fixedSpans(text[pt.start:pt.end], pt.start)...)
			continue
		}
		if cur < 0 {
			cur, curEnd = pt.start, pt.end
			continue
		}
		if forced || pt.end-cur > limit {
			flush()
			cur, curEnd = pt.start, pt.end
			continue
		}
		curEnd = pt.end
	}
	flush()
	return out
}

// splitSpans divides text on sep into contiguous spans, keeping each
// separator attached to the piece it terminates.
func splitSpans(text, sep string) []span {
	var out []span
	start := 0
	for {
		i := strings.Index(text[start:], sep)
		if i < 0 {
			break
		}
		end := start + i + len(sep)
		out = append(out, span{start, end})
		start = end
	}
	if start < len(text) {
		out = append(out, span{start, len(text)})
	}
	return out
}
