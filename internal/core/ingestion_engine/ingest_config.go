package ingestion_engine

import "time"

// IngestConfig tunes the pipeline.
//
// Concurrency:      documents processed at once; also the per-job budget of in-flight embedding requests.
// VectorDimension:  dimension declared on the index and required of every vector.
// EmbedTitles:      also embed each document title into titleVector.
// ExtractTimeout:   deadline for reading and converting one document.
// ProvisionTimeout: deadline for ensuring the index schema.
// MaxDocumentBytes: documents larger than this fail extraction (0 means unlimited).
type IngestConfig struct {
	Concurrency      int
	VectorDimension  int
	EmbedTitles      bool
	ExtractTimeout   time.Duration
	ProvisionTimeout time.Duration
	MaxDocumentBytes int64
}

func (c *IngestConfig) withDefaults() IngestConfig {
	out := *c
	if out.Concurrency <= 0 {
		out.Concurrency = 4
	}
	if out.ExtractTimeout <= 0 {
		out.ExtractTimeout = 2 * time.Minute
	}
	if out.ProvisionTimeout <= 0 {
		out.ProvisionTimeout = time.Minute
	}
	return out
}
