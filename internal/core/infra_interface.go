package core

import (
	"context"
	"io"

	"github.com/markdave123-py/Indexa/internal/models"
)

// IndexService abstracts the external search index (Azure AI Search, Postgres/pgvector)
// so the ingestion engine never depends on a specific backend.
type IndexService interface {
	// GetIndex returns the current schema, or ErrIndexNotFound.
	GetIndex(ctx context.Context, name string) (*models.IndexSchema, error)
	CreateOrUpdateIndex(ctx context.Context, schema models.IndexSchema) error

	// UploadDocuments merges-or-uploads records. A nil error comes with one
	// outcome per record; a non-nil error means the service gave no per-record detail.
	UploadDocuments(ctx context.Context, index string, records []models.IndexableRecord) ([]models.RecordOutcome, error)

	Search(ctx context.Context, index string, query models.SearchQuery) ([]models.SearchHit, error)
}

// ObjectClient is the staging store for uploaded files.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	// DeleteFile treats a missing object as already deleted.
	DeleteFile(ctx context.Context, bucket, key string) error
	// GetObjectReader wraps ErrObjectNotFound when the key does not exist.
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
