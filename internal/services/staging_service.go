package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/ingestion_engine"
)

// Upload is one file received by an entry point.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StagingService copies uploads into object storage so the pipeline can
// stream them back, and removes them once the job is done.
type StagingService struct {
	storage core.ObjectClient
	bucket  string
	keep    bool
	logger  *zap.Logger
}

func NewStagingService(storage core.ObjectClient, bucket string, keep bool, logger *zap.Logger) *StagingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StagingService{storage: storage, bucket: bucket, keep: keep, logger: logger}
}

// Stage uploads every file and returns one source per upload, in order.
// A file that cannot be staged yields a source that fails on open, so only
// that document fails.
func (s *StagingService) Stage(ctx context.Context, jobID string, uploads []Upload) []ingestion_engine.Source {
	sources := make([]ingestion_engine.Source, len(uploads))
	for i, u := range uploads {
		key := s.objectKey(jobID, i, u.Name)
		contentType := ingestion_engine.ResolveContentType(u.Name, u.ContentType)

		url, err := s.storage.UploadFile(ctx, s.bucket, key, u.Body, contentType)
		if err != nil {
			s.logger.Warn("staging upload failed",
				zap.String("job_id", jobID),
				zap.String("file", u.Name),
				zap.Error(err))
			sources[i] = ingestion_engine.NewFailedSource(u.Name, contentType, u.Size, fmt.Errorf("staging failed: %w", err))
			continue
		}
		sources[i] = ingestion_engine.NewObjectSource(s.storage, s.bucket, key, url, u.Name, contentType, u.Size)
	}
	return sources
}

// Cleanup deletes the staged objects of sources unless staged files are kept.
func (s *StagingService) Cleanup(ctx context.Context, sources []ingestion_engine.Source) error {
	if s.keep {
		return nil
	}
	var errs []error
	for _, src := range sources {
		obj, ok := src.(*ingestion_engine.ObjectSource)
		if !ok {
			continue
		}
		if err := s.storage.DeleteFile(ctx, s.bucket, obj.Key()); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// objectKey creates a consistent S3 key layout: jobs/<job>/<position>/<file>.
func (s *StagingService) objectKey(jobID string, position int, filename string) string {
	filename = filepath.Base(filepath.ToSlash(strings.TrimSpace(filename)))
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "." || filename == "/" || filename == "" {
		filename = "document"
	}
	return path.Join("jobs", jobID, strconv.Itoa(position), filename)
}
