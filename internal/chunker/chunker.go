// Package chunker splits parsed document text into token-bounded chunks.
// Strategies produce character spans over the original text; a shared pass
// then resolves page/section attribution, strips inline page markers, and
// measures the actual overlap between neighboring chunks.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpora-dev/corpora/internal/domain"
)

// Strategy names a chunk splitting algorithm.
type Strategy string

// Supported strategies.
const (
	StrategyFixed     Strategy = "fixed"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
	StrategySemantic  Strategy = "semantic"
	StrategyRecursive Strategy = "recursive"
)

// charsPerToken mirrors domain.EstimateTokens.
const charsPerToken = 4

// defaultSeparators is the recursive strategy's split order, coarsest first.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Config sizes are in estimated tokens.
type Config struct {
	Strategy     Strategy
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
	MaxChunkSize int
	Separators   []string
}

// Chunker splits documents according to one fixed Config.
type Chunker struct {
	cfg Config
}

// New validates the configuration and returns a Chunker. Invalid size
// relations fail fast with domain.ErrInvalidChunkConfig.
func New(cfg Config) (*Chunker, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRecursive
	}
	switch cfg.Strategy {
	case StrategyFixed, StrategyParagraph, StrategySentence, StrategySemantic, StrategyRecursive:
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidChunkConfig, cfg.Strategy)
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive", domain.ErrInvalidChunkConfig)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", domain.ErrInvalidChunkConfig, cfg.ChunkOverlap)
	}
	if cfg.MinChunkSize > cfg.ChunkSize {
		return nil, fmt.Errorf("%w: min_chunk_size %d exceeds chunk_size %d", domain.ErrInvalidChunkConfig, cfg.MinChunkSize, cfg.ChunkSize)
	}
	if cfg.MaxChunkSize > 0 && cfg.ChunkSize > cfg.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk_size %d exceeds max_chunk_size %d", domain.ErrInvalidChunkConfig, cfg.ChunkSize, cfg.MaxChunkSize)
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = cfg.ChunkSize * 2
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = defaultSeparators
	}

	return &Chunker{cfg: cfg}, nil
}

// Strategy reports the configured splitting strategy.
func (c *Chunker) Strategy() Strategy { return c.cfg.Strategy }

// span is a half-open [start, end) character range over the source text.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

func (s span) tokens() int { return s.len() / charsPerToken }

// ChunkDocument splits text into chunks. Chunk indices are contiguous from
// zero and character ranges are monotonically increasing.
func (c *Chunker) ChunkDocument(documentID, text string, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var spans []span
	switch c.cfg.Strategy {
	case StrategyFixed:
		spans = c.fixedSpans(text, 0)
	case StrategyParagraph:
		spans = c.paragraphSpans(text)
	case StrategySentence:
		spans = c.sentenceSpans(text)
	case StrategySemantic:
		spans = c.semanticSpans(text)
	case StrategyRecursive:
		spans = c.recursiveSpans(text, 0, c.cfg.Separators)
	}

	spans = c.enforceMax(text, spans)
	spans = c.mergeTinyTail(spans)

	return c.buildChunks(documentID, text, spans), nil
}

// enforceMax re-splits any span exceeding MaxChunkSize with the fixed
// strategy so the size bound holds regardless of strategy.
func (c *Chunker) enforceMax(text string, spans []span) []span {
	out := spans[:0:0]
	for _, s := range spans {
		if s.tokens() <= c.cfg.MaxChunkSize {
			out = append(out, s)
			continue
		}
		out = append(out, c.fixedSpans(text[s.start:s.end], s.start)...)
	}
	return out
}

// mergeTinyTail folds a trailing fragment below MinChunkSize into its
// predecessor when the merge stays under the size bound.
func (c *Chunker) mergeTinyTail(spans []span) []span {
	n := len(spans)
	if n < 2 {
		return spans
	}
	last, prev := spans[n-1], spans[n-2]
	if last.tokens() >= c.cfg.MinChunkSize {
		return spans
	}
	merged := span{prev.start, last.end}
	if merged.tokens() > c.cfg.MaxChunkSize {
		return spans
	}
	return append(spans[:n-2], merged)
}

var (
	pageMarkerRe = regexp.MustCompile(`\[PAGE (\d+)\]\n?`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
)

type textMarker struct {
	offset int
	value  string // page number or heading text
}

// buildChunks resolves attribution against the original offsets, strips
// page markers from the content, and records measured neighbor overlap.
func (c *Chunker) buildChunks(documentID, text string, spans []span) []domain.DocumentChunk {
	pages := pageMarkers(text)
	sections := sectionMarkers(text)
	now := time.Now().UTC()

	chunks := make([]domain.DocumentChunk, 0, len(spans))
	for _, s := range spans {
		content := strings.TrimSpace(pageMarkerRe.ReplaceAllString(text[s.start:s.end], ""))
		if content == "" {
			continue
		}

		chunks = append(chunks, domain.DocumentChunk{
			ID:      uuid.NewString(),
			Content: content,
			Metadata: domain.ChunkMetadata{
				DocumentID:   documentID,
				ChunkIndex:   len(chunks),
				PageNumber:   pageAt(pages, s.start),
				SectionTitle: sectionAt(sections, s.start),
				StartChar:    s.start,
				EndChar:      s.end,
				TokenCount:   domain.EstimateTokens(content),
			},
			CreatedAt: now,
		})
	}

	capChars := c.cfg.ChunkOverlap * charsPerToken
	for i := 1; i < len(chunks); i++ {
		ov := measuredOverlap(chunks[i-1].Content, chunks[i].Content, capChars)
		chunks[i-1].Metadata.OverlapWithNext = ov
		chunks[i].Metadata.OverlapWithPrevious = ov
	}

	return chunks
}

func pageMarkers(text string) []textMarker {
	locs := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]textMarker, 0, len(locs))
	for _, l := range locs {
		out = append(out, textMarker{offset: l[0], value: text[l[2]:l[3]]})
	}
	return out
}

func sectionMarkers(text string) []textMarker {
	locs := headingRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]textMarker, 0, len(locs))
	for _, l := range locs {
		out = append(out, textMarker{offset: l[0], value: strings.TrimSpace(text[l[2]:l[3]])})
	}
	return out
}

// pageAt returns the page of the nearest marker at or before offset,
// or 0 when the source has no pagination.
func pageAt(markers []textMarker, offset int) int {
	v := nearestBefore(markers, offset)
	if v == "" {
		return 0
	}
	var n int
	fmt.Sscanf(v, "%d", &n)
	return n
}

func sectionAt(markers []textMarker, offset int) string {
	return nearestBefore(markers, offset)
}

func nearestBefore(markers []textMarker, offset int) string {
	i := sort.Search(len(markers), func(i int) bool { return markers[i].offset > offset })
	if i == 0 {
		return ""
	}
	return markers[i-1].value
}

// measuredOverlap returns the estimated token length of the longest string
// that is both a suffix of prev and a prefix of cur, capped at capChars.
func measuredOverlap(prev, cur string, capChars int) int {
	max := capChars
	if len(prev) < max {
		max = len(prev)
	}
	if len(cur) < max {
		max = len(cur)
	}
	for l := max; l > 0; l-- {
		if prev[len(prev)-l:] == cur[:l] {
			return domain.EstimateTokens(cur[:l])
		}
	}
	return 0
}
