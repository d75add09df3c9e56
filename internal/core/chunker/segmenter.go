package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Span is the byte range of one unit inside the source text.
type Span struct {
	Start int
	End   int
}

// Segmenter splits text into the units the chunker measures and cuts on.
// Spans must be contiguous and cover the whole text.
type Segmenter interface {
	Name() string
	Segment(text string) ([]Span, error)
}

// RuneSegmenter measures text in Unicode code points ("char" mode).
// Invalid UTF-8 bytes count as one unit each.
type RuneSegmenter struct{}

func (RuneSegmenter) Name() string { return "char" }

func (RuneSegmenter) Segment(text string) ([]Span, error) {
	spans := make([]Span, 0, len(text))
	for i := 0; i < len(text); {
		_, w := utf8.DecodeRuneInString(text[i:])
		spans = append(spans, Span{Start: i, End: i + w})
		i += w
	}
	return spans, nil
}

// TokenSegmenter measures text in BPE tokens of a tiktoken encoding ("token" mode).
type TokenSegmenter struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewTokenSegmenter loads the named encoding (e.g. "cl100k_base").
// tiktoken-go fetches the BPE ranks on first use unless TIKTOKEN_CACHE_DIR holds them.
func NewTokenSegmenter(encoding string) (*TokenSegmenter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TokenSegmenter{enc: enc, encoding: encoding}, nil
}

func (s *TokenSegmenter) Name() string { return "token" }

func (s *TokenSegmenter) Segment(text string) ([]Span, error) {
	tokens := s.enc.Encode(text, nil, nil)
	spans := make([]Span, 0, len(tokens))
	off := 0
	for _, tok := range tokens {
		n := len(s.enc.Decode([]int{tok}))
		spans = append(spans, Span{Start: off, End: off + n})
		off += n
	}
	if off != len(text) {
		return nil, fmt.Errorf("%s tokens cover %d of %d bytes", s.encoding, off, len(text))
	}
	return spans, nil
}
