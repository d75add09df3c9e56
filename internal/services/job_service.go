package services

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Indexa/internal/config"
	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/ingestion_engine"
	"github.com/markdave123-py/Indexa/internal/models"
)

// indexNamePattern follows the search service naming rules: lowercase
// letters, digits and dashes, starting with a letter or digit.
var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,127}$`)

// ValidIndexName reports whether name can be used as an index name.
func ValidIndexName(name string) bool {
	return indexNamePattern.MatchString(name)
}

// IndexPolicy decides which index a job writes to. config.PolicyPerJob
// creates <Prefix>-<jobID> for every job, config.PolicyShared upserts into Shared.
type IndexPolicy struct {
	Mode   string
	Prefix string
	Shared string
}

// Resolve returns the requested index when given, otherwise the policy's.
func (p IndexPolicy) Resolve(requested, jobID string) (string, error) {
	name := requested
	if name == "" {
		if p.Mode == config.PolicyShared {
			name = p.Shared
		} else {
			name = p.Prefix + "-" + jobID
		}
	}
	if !ValidIndexName(name) {
		return "", fmt.Errorf("%w: invalid index name %q", core.ErrInvalidConfiguration, name)
	}
	return name, nil
}

// JobService turns uploads into an ingestion job and runs it.
type JobService struct {
	ingestor ingestion_engine.Ingestor
	staging  *StagingService // nil keeps uploads in memory
	policy   IndexPolicy
	logger   *zap.Logger
}

func NewJobService(ingestor ingestion_engine.Ingestor, staging *StagingService, policy IndexPolicy, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{ingestor: ingestor, staging: staging, policy: policy, logger: logger}
}

// Submit runs one job synchronously. The result is nil only when the job
// could not be started (bad index name). An unreadable upload fails only its
// own document.
func (s *JobService) Submit(ctx context.Context, index string, uploads []Upload) (*models.JobResult, error) {
	jobID := uuid.NewString()
	name, err := s.policy.Resolve(index, jobID)
	if err != nil {
		return nil, err
	}

	var sources []ingestion_engine.Source
	if s.staging != nil {
		sources = s.staging.Stage(ctx, jobID, uploads)
		defer func() {
			cleanupCtx := context.WithoutCancel(ctx)
			if err := s.staging.Cleanup(cleanupCtx, sources); err != nil {
				s.logger.Warn("staged file cleanup failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}()
	} else {
		sources = make([]ingestion_engine.Source, len(uploads))
		for i, u := range uploads {
			data, err := io.ReadAll(u.Body)
			if err != nil {
				s.logger.Warn("upload read failed", zap.String("job_id", jobID), zap.String("file", u.Name), zap.Error(err))
				sources[i] = ingestion_engine.NewFailedSource(u.Name, u.ContentType, u.Size, fmt.Errorf("read upload %s: %w", u.Name, err))
				continue
			}
			sources[i] = ingestion_engine.NewBytesSource(u.Name, u.ContentType, data)
		}
	}

	return s.ingestor.Run(ctx, ingestion_engine.JobRequest{JobID: jobID, IndexName: name, Sources: sources})
}
