package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

// BatchWriter issues size-bounded mergeOrUpload batches and reports one
// outcome per record.
//
// batchSize: max records per request.
// policy:    retry policy for batches that fail without per-record detail.
// timeout:   deadline of a single upload request.
type BatchWriter struct {
	svc       core.IndexService
	batchSize int
	policy    retry.Policy
	timeout   time.Duration
	logger    *zap.Logger
}

func NewBatchWriter(svc core.IndexService, batchSize int, policy retry.Policy, timeout time.Duration, logger *zap.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &BatchWriter{svc: svc, batchSize: batchSize, timeout: timeout, logger: logger}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			w.logger.Warn("index batch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
		}
	}
	w.policy = policy
	return w
}

// Upload writes records in order and returns outcomes positionally aligned with them.
func (w *BatchWriter) Upload(ctx context.Context, index string, records []models.IndexableRecord) []models.RecordOutcome {
	outcomes := make([]models.RecordOutcome, 0, len(records))
	for start := 0; start < len(records); start += w.batchSize {
		end := min(start+w.batchSize, len(records))
		outcomes = append(outcomes, w.writeBatch(ctx, index, records[start:end])...)
	}
	return outcomes
}

// writeBatch surfaces per-record status as returned by the service. Only a
// batch without per-record detail is retried, and it fails uniformly once the
// policy gives up.
func (w *BatchWriter) writeBatch(ctx context.Context, index string, batch []models.IndexableRecord) []models.RecordOutcome {
	var outcomes []models.RecordOutcome
	err := w.policy.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		res, err := w.svc.UploadDocuments(callCtx, index, batch)
		if err != nil {
			return err
		}
		if len(res) != len(batch) {
			return fmt.Errorf("index service returned %d results for %d records", len(res), len(batch))
		}
		outcomes = res
		return nil
	})
	if err == nil {
		for i := range outcomes {
			if !outcomes[i].Indexed && outcomes[i].Err == nil {
				outcomes[i].Err = fmt.Errorf("%w: rejected without reason", core.ErrBatchWriteFailed)
			}
		}
		return outcomes
	}

	w.logger.Error("index batch failed",
		zap.String("index", index),
		zap.Int("records", len(batch)),
		zap.Error(err))

	failed := make([]models.RecordOutcome, len(batch))
	for i, r := range batch {
		failed[i] = models.RecordOutcome{RecordID: r.ID, Err: fmt.Errorf("%w: %w", core.ErrBatchWriteFailed, err)}
	}
	return failed
}
