package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Indexa/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Plain text and markdown are passed through without conversion.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// passthrough types are already text.
var passthroughTypes = map[string]bool{
	"text/plain":      true,
	"text/markdown":   true,
	"text/x-markdown": true,
	"text/csv":        true,
}

// docconvTypes are the MIME types docconv can convert.
var docconvTypes = map[string]bool{
	"application/msword":      true,
	"application/vnd.ms-word": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.apple.pages":                                               true,
	"application/x-iwork-pages-sffpages":                                        true,
	"application/pdf":                                                           true,
	"application/rtf":                                                           true,
	"application/x-rtf":                                                         true,
	"text/rtf":                                                                  true,
	"text/richtext":                                                             true,
	"text/html":                                                                 true,
	"application/xml":                                                           true,
	"text/xml":                                                                  true,
}

// ExtractText converts data to plain text. Conversion runs in its own goroutine
// so a stuck converter cannot outlive the caller's deadline.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (*core.ExtractedText, error) {
	mediaType := normalizeMediaType(contentType)

	if passthroughTypes[mediaType] {
		return &core.ExtractedText{
			Text:     validText(string(data)),
			Metadata: map[string]string{"content-type": mediaType},
		}, nil
	}
	if !docconvTypes[mediaType] {
		return nil, fmt.Errorf("%w: unsupported content type %q", core.ErrExtractionFailed, contentType)
	}

	type result struct {
		res *docconv.Response
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
		done <- result{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", core.ErrExtractionFailed, mediaType, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: docconv %s: %w", core.ErrExtractionFailed, mediaType, r.err)
		}
		return &core.ExtractedText{Text: validText(r.res.Body), Metadata: r.res.Meta}, nil
	}
}

// ResolveContentType prefers the declared type and falls back to the file extension.
func ResolveContentType(name, declared string) string {
	if mt := normalizeMediaType(declared); mt != "" && mt != "application/octet-stream" {
		return mt
	}
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return "text/markdown"
	case strings.HasSuffix(lower, ".txt"):
		return "text/plain"
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	}
	return docconv.MimeTypeByExtension(name)
}

func normalizeMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// validText replaces invalid UTF-8 so index backends never reject the text.
func validText(s string) string {
	return strings.ToValidUTF8(s, "�")
}
