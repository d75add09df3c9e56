package models

import (
	"time"
)

// Stage names a step of the per-document ingestion state machine.
type Stage string

const (
	StageReceived   Stage = "received"
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageAssembling Stage = "assembling"
	StageQueued     Stage = "queued"
	StageIndexed    Stage = "indexed"
)

// DocumentStatus is the terminal outcome of one document inside a job.
type DocumentStatus string

const (
	DocumentIndexed DocumentStatus = "indexed"
	DocumentPartial DocumentStatus = "partial" // some chunks indexed, some failed
	DocumentFailed  DocumentStatus = "failed"
)

// JobStatus summarises a whole ingestion job.
type JobStatus string

const (
	JobCompleted JobStatus = "completed" // every document indexed
	JobPartial   JobStatus = "partial"   // at least one document or chunk failed
	JobFailed    JobStatus = "failed"    // job-fatal error or every document failed
)

// Document represents one uploaded source file inside an ingestion job.
type Document struct {
	ID          string `json:"id"`           // unique per job, derived from the display name
	Name        string `json:"name"`         // display name (original file name)
	SourcePath  string `json:"source_path"`  // staging location or original path
	ContentType string `json:"content_type"` // MIME type hint for extraction
	Size        int64  `json:"size"`         // raw byte length
	Status      Stage  `json:"status"`
}

// Chunk represents a bounded span of a document's extracted text.
//
// Start and End are byte offsets into the extracted text; Units is the
// length measured in the chunker's unit (runes or tokens).
type Chunk struct {
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Units      int    `json:"units"`
}

// IndexableRecord is the unit persisted to the external index, one per chunk.
type IndexableRecord struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	ChunkOrdinal  int       `json:"chunkOrdinal"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ContentVector []float32 `json:"contentVector"`
	TitleVector   []float32 `json:"titleVector,omitempty"`
	SourcePath    string    `json:"sourcePath"`
}

// RecordOutcome is the per-record result of a batch write.
type RecordOutcome struct {
	RecordID string `json:"record_id"`
	Indexed  bool   `json:"indexed"`
	Err      error  `json:"-"`
}

// ChunkFailure reports a chunk that did not reach the index.
type ChunkFailure struct {
	Ordinal int    `json:"ordinal"`
	Stage   Stage  `json:"stage"`
	Error   string `json:"error"`
}

// DocumentOutcome is the per-document entry of a job result.
type DocumentOutcome struct {
	Position      int            `json:"-"` // position in the request, used for ordering
	DocumentID    string         `json:"document_id"`
	Name          string         `json:"name"`
	Accepted      bool           `json:"accepted"`
	Status        DocumentStatus `json:"status"`
	FailedStage   Stage          `json:"failed_stage,omitempty"`
	ChunkCount    int            `json:"chunkCount"`
	IndexedCount  int            `json:"indexedCount"`
	Error         string         `json:"error,omitempty"`
	ChunkFailures []ChunkFailure `json:"chunk_failures,omitempty"`
	RecordIDs     []string       `json:"-"`
}

// StageCounts aggregates document outcomes per stage.
type StageCounts struct {
	Succeeded map[Stage]int `json:"succeeded"`
	Failed    map[Stage]int `json:"failed"`
}

// JobResult is returned to the caller of an ingestion job.
type JobResult struct {
	JobID      string            `json:"job_id"`
	IndexName  string            `json:"index_name"`
	Status     JobStatus         `json:"status"`
	Error      string            `json:"error,omitempty"`
	Documents  []DocumentOutcome `json:"documents"`
	Counts     StageCounts       `json:"counts"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// FieldType is the data type of an index field.
type FieldType string

const (
	FieldString       FieldType = "Edm.String"
	FieldInt32        FieldType = "Edm.Int32"
	FieldSingleVector FieldType = "Collection(Edm.Single)"
)

// IndexField describes one field of a search index schema.
type IndexField struct {
	Name            string    `json:"name"`
	Type            FieldType `json:"type"`
	Key             bool      `json:"key,omitempty"`
	Searchable      bool      `json:"searchable,omitempty"`
	Filterable      bool      `json:"filterable,omitempty"`
	Sortable        bool      `json:"sortable,omitempty"`
	Facetable       bool      `json:"facetable,omitempty"`
	VectorDimension int       `json:"dimensions,omitempty"`
	VectorProfile   string    `json:"vectorSearchProfile,omitempty"`
}

// SemanticConfig references the fields used by semantic re-ranking.
type SemanticConfig struct {
	Name          string   `json:"name"`
	TitleField    string   `json:"title_field"`
	ContentFields []string `json:"content_fields"`
}

// IndexSchema is the field, vector and semantic definition of a search index.
type IndexSchema struct {
	Name             string         `json:"name"`
	Fields           []IndexField   `json:"fields"`
	VectorProfile    string         `json:"vector_profile"`
	VectorAlgorithm  string         `json:"vector_algorithm"`
	SemanticSettings SemanticConfig `json:"semantic"`
}

// Field returns the named field and whether it exists.
func (s IndexSchema) Field(name string) (IndexField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return IndexField{}, false
}

// SearchQuery is a hybrid query passed through to the index service.
type SearchQuery struct {
	Text   string    `json:"text"`
	Vector []float32 `json:"-"`
	Top    int       `json:"top"`
}

// SearchHit is one ranked result returned by the index service.
type SearchHit struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"document_id"`
	ChunkOrdinal int     `json:"chunk_ordinal"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	SourcePath   string  `json:"source_path"`
	Score        float64 `json:"score"`
}
