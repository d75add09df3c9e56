// Package chunker splits extracted document text into bounded, overlapping
// chunks suitable for embedding and retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/models"
)

// Defaults follow the original split skill (2000 character pages).
const (
	DefaultMaxLength = 2000
	DefaultOverlap   = 200
)

// cut preference levels, highest wins.
const (
	cutHard = iota
	cutWord
	cutLine
	cutParagraph
)

// Chunker cuts text into windows of at most maxLength units where adjacent
// windows share exactly overlap units.
type Chunker struct {
	maxLength int
	overlap   int
	seg       Segmenter
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSegmenter replaces the default rune segmenter (e.g. with a TokenSegmenter).
func WithSegmenter(s Segmenter) Option {
	return func(c *Chunker) {
		if s != nil {
			c.seg = s
		}
	}
}

// New validates the parameters and builds a Chunker.
func New(maxLength, overlap int, opts ...Option) (*Chunker, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrInvalidConfiguration, maxLength)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", core.ErrInvalidConfiguration, overlap)
	}
	if overlap >= maxLength {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", core.ErrInvalidConfiguration, overlap, maxLength)
	}

	c := &Chunker{maxLength: maxLength, overlap: overlap, seg: RuneSegmenter{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chunk splits text with a one-off Chunker.
func Chunk(text string, maxLength, overlap int) ([]models.Chunk, error) {
	c, err := New(maxLength, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk("", text)
}

// Mode reports the unit the chunker measures in ("char" or "token").
func (c *Chunker) Mode() string { return c.seg.Name() }

// MaxLength returns the configured window size in units.
func (c *Chunker) MaxLength() int { return c.maxLength }

// Overlap returns the configured overlap in units.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered chunks owned by docID.
// Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(docID, text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	spans, err := c.seg.Segment(text)
	if err != nil {
		return nil, fmt.Errorf("segment text: %w", err)
	}
	n := len(spans)
	if n == 0 {
		return nil, nil
	}

	chunks := make([]models.Chunk, 0, n/(c.maxLength-c.overlap)+1)
	start := 0
	for {
		end := start + c.maxLength
		if end >= n {
			end = n
		} else {
			end = c.cutPoint(text, spans, start, end)
		}

		from, to := spans[start].Start, spans[end-1].End
		chunks = append(chunks, models.Chunk{
			DocumentID: docID,
			Ordinal:    len(chunks),
			Text:       text[from:to],
			Start:      from,
			End:        to,
			Units:      end - start,
		})

		if end == n {
			break
		}
		start = end - c.overlap
	}
	return chunks, nil
}

// cutPoint picks the exclusive end unit for the window [start, limit).
// A natural boundary is taken only in the back half of the window and only
// when it leaves more than overlap units, so every chunk makes progress.
func (c *Chunker) cutPoint(text string, spans []Span, start, limit int) int {
	lo := start + c.overlap + 1
	if half := start + c.maxLength/2; half > lo {
		lo = half
	}
	if lo > limit {
		return limit
	}

	for level := cutParagraph; level > cutHard; level-- {
		for j := limit; j >= lo; j-- {
			if boundaryLevel(text, spans[j].Start) >= level {
				return j
			}
		}
	}
	return limit
}

// boundaryLevel classifies the position between text[:pos] and text[pos:].
func boundaryLevel(text string, pos int) int {
	prefix := text[:pos]
	switch {
	case strings.HasSuffix(prefix, "\n\n"), strings.HasSuffix(prefix, "\n\r\n"):
		return cutParagraph
	case strings.HasSuffix(prefix, "\n"):
		return cutLine
	}
	r, _ := utf8.DecodeLastRuneInString(prefix)
	if r != utf8.RuneError && unicode.IsSpace(r) {
		return cutWord
	}
	return cutHard
}
