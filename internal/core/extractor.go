package core

import "context"

// ExtractedText is the plain text of one document plus whatever metadata the
// converter reported (author, page count, ...).
type ExtractedText struct {
	Text     string
	Metadata map[string]string
}

// DocumentExtractor converts raw document bytes into plain text. contentType
// is a MIME type; implementations wrap ErrExtractionFailed for formats they
// cannot read, so the failure stays scoped to that document.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (*ExtractedText, error)
}
