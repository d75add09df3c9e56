package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/chunker"
	"github.com/markdave123-py/Indexa/internal/core/embedding"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

const testDim = 4

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, Multiplier: 2, Sleep: noSleep}
}

// fakeIndex is an in-memory core.IndexService.
type fakeIndex struct {
	mu          sync.Mutex
	schemas     map[string]models.IndexSchema
	records     map[string]map[string]models.IndexableRecord
	getErrs     []error // returned by successive GetIndex calls before normal behaviour
	getCalls    int
	createCalls int
	uploadCalls int
	batchSizes  []int

	uploadFn func(call int, records []models.IndexableRecord) ([]models.RecordOutcome, error)
}

var _ core.IndexService = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		schemas: map[string]models.IndexSchema{},
		records: map[string]map[string]models.IndexableRecord{},
	}
}

func (f *fakeIndex) GetIndex(_ context.Context, name string) (*models.IndexSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if len(f.getErrs) > 0 {
		err := f.getErrs[0]
		f.getErrs = f.getErrs[1:]
		return nil, err
	}
	s, ok := f.schemas[name]
	if !ok {
		return nil, core.ErrIndexNotFound
	}
	return &s, nil
}

func (f *fakeIndex) CreateOrUpdateIndex(_ context.Context, schema models.IndexSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.schemas[schema.Name] = schema
	return nil
}

func (f *fakeIndex) UploadDocuments(_ context.Context, index string, records []models.IndexableRecord) ([]models.RecordOutcome, error) {
	f.mu.Lock()
	call := f.uploadCalls
	f.uploadCalls++
	f.batchSizes = append(f.batchSizes, len(records))
	fn := f.uploadFn
	f.mu.Unlock()

	var outcomes []models.RecordOutcome
	if fn != nil {
		var err error
		if outcomes, err = fn(call, records); err != nil {
			return nil, err
		}
	} else {
		outcomes = make([]models.RecordOutcome, len(records))
		for i, r := range records {
			outcomes[i] = models.RecordOutcome{RecordID: r.ID, Indexed: true}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[index] == nil {
		f.records[index] = map[string]models.IndexableRecord{}
	}
	for i, o := range outcomes {
		if o.Indexed && i < len(records) {
			f.records[index][records[i].ID] = records[i]
		}
	}
	return outcomes, nil
}

func (f *fakeIndex) Search(context.Context, string, models.SearchQuery) ([]models.SearchHit, error) {
	return nil, nil
}

func (f *fakeIndex) stored(index string) map[string]models.IndexableRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.IndexableRecord, len(f.records[index]))
	for k, v := range f.records[index] {
		out[k] = v
	}
	return out
}

// fakeProvider returns dim-sized vectors whose first element is the text length.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	dim   int
	fn    func(call int, texts []string) ([][]float32, error)
}

func (p *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	call := p.calls
	p.calls++
	p.mu.Unlock()

	if p.fn != nil {
		if out, err := p.fn(call, texts); out != nil || err != nil {
			return out, err
		}
	}
	dim := p.dim
	if dim == 0 {
		dim = testDim
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeExtractor passes text through and rejects payloads starting with %CORRUPT.
type fakeExtractor struct{}

func (fakeExtractor) ExtractText(_ context.Context, data []byte, _ string) (*core.ExtractedText, error) {
	if bytes.HasPrefix(data, []byte("%CORRUPT")) {
		return nil, errors.New("malformed xref table")
	}
	return &core.ExtractedText{Text: string(data)}, nil
}

func newTestPipeline(t *testing.T, idx *fakeIndex, prov *fakeProvider, cfg IngestConfig) *Pipeline {
	t.Helper()
	ch, err := chunker.New(50, 10)
	require.NoError(t, err)

	if cfg.VectorDimension == 0 {
		cfg.VectorDimension = testDim
	}
	emb := embedding.NewClient(prov, embedding.Config{BatchSize: 4}, fastPolicy(3), nil, nil)
	return NewPipeline(
		fakeExtractor{},
		ch,
		emb,
		NewSchemaManager(idx, fastPolicy(2), nil),
		NewBatchWriter(idx, 3, fastPolicy(2), time.Second, nil),
		&cfg,
		nil,
	)
}
