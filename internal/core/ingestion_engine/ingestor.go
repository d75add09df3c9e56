package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/Indexa/internal/models"
)

// JobRequest is one upload: the files to ingest and the index they go to.
type JobRequest struct {
	JobID     string
	IndexName string
	Sources   []Source
}

// Ingestor runs ingestion jobs. The returned result always lists every document;
// the error is non-nil only for job-fatal provisioning failures or cancellation.
type Ingestor interface {
	Run(ctx context.Context, req JobRequest) (*models.JobResult, error)
}

var _ Ingestor = (*Pipeline)(nil)
