package ingestion_engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/chunker"
	"github.com/markdave123-py/Indexa/internal/core/embedding"
	"github.com/markdave123-py/Indexa/internal/models"
)

// Pipeline orchestrates a job: provision the index, then per document
// extract → chunk → embed → assemble → batch write, documents in parallel.
type Pipeline struct {
	extractor core.DocumentExtractor
	chunker   *chunker.Chunker
	embedder  *embedding.Client
	schemas   *SchemaManager
	writer    *BatchWriter
	cfg       IngestConfig
	logger    *zap.Logger
}

func NewPipeline(
	extractor core.DocumentExtractor,
	ch *chunker.Chunker,
	embedder *embedding.Client,
	schemas *SchemaManager,
	writer *BatchWriter,
	cfg *IngestConfig,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		schemas:   schemas,
		writer:    writer,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// document is one source inside a job.
type document struct {
	models.Document
	position int
	source   Source
}

func (d *document) outcome() models.DocumentOutcome {
	return models.DocumentOutcome{Position: d.position, DocumentID: d.ID, Name: d.Name}
}

// Run ingests every source of req into req.IndexName.
//
// A provisioning failure is job-fatal: every document is reported failed at
// received and the error wraps core.ErrIndexProvision. Cancelling ctx stops
// new documents and stages from starting; calls already in flight complete.
func (p *Pipeline) Run(ctx context.Context, req JobRequest) (*models.JobResult, error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	log := p.logger.With(zap.String("job_id", req.JobID), zap.String("index", req.IndexName))

	names := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		names[i] = s.Name()
	}
	ids := AssignDocumentIDs(names)
	docs := make([]*document, len(req.Sources))
	for i, s := range req.Sources {
		docs[i] = &document{
			Document: models.Document{
				ID:          ids[i],
				Name:        s.Name(),
				SourcePath:  s.Location(),
				ContentType: s.ContentType(),
				Size:        s.Size(),
				Status:      models.StageReceived,
			},
			position: i,
			source:   s,
		}
	}

	acc := newAccumulator(req.JobID, req.IndexName, len(docs))
	log.Info("ingestion job started", zap.Int("documents", len(docs)))

	provCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProvisionTimeout)
	err := p.schemas.EnsureIndex(provCtx, req.IndexName, p.cfg.VectorDimension)
	cancel()
	if err != nil {
		log.Error("index provisioning failed", zap.Error(err))
		for _, d := range docs {
			o := d.outcome()
			o.Status = models.DocumentFailed
			o.FailedStage = models.StageReceived
			o.Error = err.Error()
			acc.add(o)
		}
		return acc.finish(err), err
	}

	// per-job budget shared by all embedding requests of this job
	embedder := p.embedder.WithBudget(semaphore.NewWeighted(int64(p.cfg.Concurrency)))

	// Documents release their slot once assembled; batch writes run in their
	// own group so the next document can embed while earlier records upload.
	var prepare, writes errgroup.Group
	prepare.SetLimit(p.cfg.Concurrency)
	writes.SetLimit(p.cfg.Concurrency)
	for _, d := range docs {
		prepare.Go(func() error {
			w, out := p.prepareDocument(ctx, log, embedder, d)
			if w == nil {
				acc.add(out)
				return nil
			}
			writes.Go(func() error {
				acc.add(p.writeDocument(ctx, req.IndexName, w))
				return nil
			})
			return nil
		})
	}
	_ = prepare.Wait()
	_ = writes.Wait()

	result := acc.finish(nil)
	log.Info("ingestion job finished",
		zap.String("status", string(result.Status)),
		zap.Int("indexed", result.Counts.Succeeded[models.StageIndexed]),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("ingestion job %s cancelled: %w", req.JobID, err)
	}
	return result, nil
}

// pendingWrite is an assembled document waiting for its batch write.
type pendingWrite struct {
	doc     *document
	log     *zap.Logger
	out     models.DocumentOutcome
	records []models.IndexableRecord
}

// prepareDocument walks one document through extraction, chunking, embedding
// and assembly. It returns the final outcome when the document needs no write.
// Stages run on a context detached from job cancellation; ctx is only checked
// between stages.
func (p *Pipeline) prepareDocument(ctx context.Context, log *zap.Logger, embedder *embedding.Client, d *document) (*pendingWrite, models.DocumentOutcome) {
	out := d.outcome()
	log = log.With(zap.String("document_id", d.ID))

	fail := func(stage models.Stage, err error) (*pendingWrite, models.DocumentOutcome) {
		return nil, failDocument(log, d, out, stage, err)
	}
	callCtx := context.WithoutCancel(ctx)

	if err := ctx.Err(); err != nil {
		return fail(models.StageReceived, err)
	}

	advance(log, d, models.StageExtracting)
	text, err := p.extract(callCtx, d.source)
	if err != nil {
		return fail(models.StageExtracting, err)
	}
	out.Accepted = true

	if err := ctx.Err(); err != nil {
		return fail(models.StageChunking, err)
	}
	advance(log, d, models.StageChunking)
	chunks, err := p.chunker.Chunk(d.ID, text)
	if err != nil {
		return fail(models.StageChunking, err)
	}
	out.ChunkCount = len(chunks)
	if len(chunks) == 0 {
		advance(log, d, models.StageIndexed)
		out.Status = models.DocumentIndexed
		log.Info("document has no text to index")
		return nil, out
	}

	if err := ctx.Err(); err != nil {
		return fail(models.StageEmbedding, err)
	}
	advance(log, d, models.StageEmbedding)
	records, failures := p.assemble(callCtx, log, embedder, d, chunks)
	out.ChunkFailures = failures

	return &pendingWrite{doc: d, log: log, out: out, records: records}, out
}

// writeDocument uploads the assembled records and settles the document status.
func (p *Pipeline) writeDocument(ctx context.Context, index string, w *pendingWrite) models.DocumentOutcome {
	d, log, out := w.doc, w.log, w.out

	if err := ctx.Err(); err != nil {
		return failDocument(log, d, out, models.StageQueued, err)
	}
	advance(log, d, models.StageQueued)
	if len(w.records) > 0 {
		for i, o := range p.writer.Upload(context.WithoutCancel(ctx), index, w.records) {
			if o.Indexed {
				out.IndexedCount++
				out.RecordIDs = append(out.RecordIDs, o.RecordID)
				continue
			}
			out.ChunkFailures = append(out.ChunkFailures, models.ChunkFailure{
				Ordinal: w.records[i].ChunkOrdinal,
				Stage:   models.StageQueued,
				Error:   o.Err.Error(),
			})
		}
	}
	slices.SortFunc(out.ChunkFailures, func(a, b models.ChunkFailure) int { return cmp.Compare(a.Ordinal, b.Ordinal) })

	switch {
	case out.IndexedCount == out.ChunkCount:
		advance(log, d, models.StageIndexed)
		out.Status = models.DocumentIndexed
	case out.IndexedCount > 0:
		out.Status = models.DocumentPartial
		out.Error = fmt.Sprintf("%d of %d chunks failed", out.ChunkCount-out.IndexedCount, out.ChunkCount)
	default:
		first := out.ChunkFailures[0]
		out.Status = models.DocumentFailed
		out.FailedStage = first.Stage
		out.Error = first.Error
	}

	log.Info("document processed",
		zap.String("status", string(out.Status)),
		zap.String("content_type", d.ContentType),
		zap.Int64("bytes", d.Size),
		zap.Int("chunks", out.ChunkCount),
		zap.Int("indexed", out.IndexedCount))
	return out
}

func advance(log *zap.Logger, d *document, stage models.Stage) {
	d.Status = stage
	log.Debug("document stage", zap.String("stage", string(stage)))
}

func failDocument(log *zap.Logger, d *document, out models.DocumentOutcome, stage models.Stage, err error) models.DocumentOutcome {
	d.Status = stage
	out.Status = models.DocumentFailed
	out.FailedStage = stage
	out.Error = err.Error()
	log.Warn("document failed", zap.String("stage", string(stage)), zap.Error(err))
	return out
}

// extract reads the source under the extraction timeout and converts it to text.
// Empty sources skip conversion and yield no text.
func (p *Pipeline) extract(ctx context.Context, src Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()

	rc, err := src.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", core.ErrExtractionFailed, src.Name(), err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if p.cfg.MaxDocumentBytes > 0 {
		r = io.LimitReader(rc, p.cfg.MaxDocumentBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", core.ErrExtractionFailed, src.Name(), err)
	}
	if p.cfg.MaxDocumentBytes > 0 && int64(len(data)) > p.cfg.MaxDocumentBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", core.ErrExtractionFailed, src.Name(), p.cfg.MaxDocumentBytes)
	}
	if len(data) == 0 {
		return "", nil
	}

	res, err := p.extractor.ExtractText(ctx, data, src.ContentType())
	if err != nil {
		if !errors.Is(err, core.ErrExtractionFailed) {
			err = fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
		}
		return "", err
	}
	return res.Text, nil
}

// assemble embeds the chunks (and optionally the title) and builds records in
// ordinal order. Chunks whose embedding failed or has the wrong dimension are
// reported instead.
func (p *Pipeline) assemble(ctx context.Context, log *zap.Logger, embedder *embedding.Client, d *document, chunks []models.Chunk) ([]models.IndexableRecord, []models.ChunkFailure) {
	title := DocumentTitle(d.Name)

	texts := make([]string, len(chunks), len(chunks)+1)
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if p.cfg.EmbedTitles {
		texts = append(texts, title)
	}

	results := embedder.Embed(ctx, texts)
	d.Status = models.StageAssembling

	var titleVector []float32
	if p.cfg.EmbedTitles {
		r := results[len(chunks)]
		err := r.Err
		if err == nil {
			err = p.checkDimension(r.Vector)
		}
		if err != nil {
			log.Warn("title embedding skipped", zap.Error(err))
		} else {
			titleVector = r.Vector
		}
	}

	records := make([]models.IndexableRecord, 0, len(chunks))
	var failures []models.ChunkFailure
	for i, ch := range chunks {
		r := results[i]
		if r.Err != nil {
			failures = append(failures, models.ChunkFailure{Ordinal: ch.Ordinal, Stage: models.StageEmbedding, Error: r.Err.Error()})
			continue
		}
		if err := p.checkDimension(r.Vector); err != nil {
			failures = append(failures, models.ChunkFailure{Ordinal: ch.Ordinal, Stage: models.StageAssembling, Error: err.Error()})
			continue
		}
		records = append(records, models.IndexableRecord{
			ID:            RecordID(d.ID, ch.Ordinal),
			DocumentID:    d.ID,
			ChunkOrdinal:  ch.Ordinal,
			Title:         title,
			Content:       ch.Text,
			ContentVector: r.Vector,
			TitleVector:   titleVector,
			SourcePath:    d.SourcePath,
		})
	}
	return records, failures
}

func (p *Pipeline) checkDimension(v []float32) error {
	if p.cfg.VectorDimension > 0 && len(v) != p.cfg.VectorDimension {
		return fmt.Errorf("%w: vector has %d dimensions, index declares %d", core.ErrSchemaMismatch, len(v), p.cfg.VectorDimension)
	}
	return nil
}
