package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/Indexa/internal/api/middlewares"
	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/models"
	"github.com/markdave123-py/Indexa/internal/services"
)

// JobSubmitter runs an ingestion job for a set of uploads.
type JobSubmitter interface {
	Submit(ctx context.Context, index string, uploads []services.Upload) (*models.JobResult, error)
}

type JobHandler struct {
	jobs           JobSubmitter
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewJobHandler(jobs JobSubmitter, maxUploadBytes int64, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{jobs: jobs, maxUploadBytes: maxUploadBytes, logger: logger}
}

// CreateJob accepts a multipart form with one or more "files" parts and an
// optional ?index= to target an existing index. It responds with the job result.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(f)

		uploads = append(uploads, services.Upload{
			Name:        filepath.Base(fh.Filename),
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}

	client, _ := middleware.ClientIDFromContext(r.Context())
	h.logger.Info("ingestion job submitted",
		zap.String("client_id", client),
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.Int("files", len(uploads)))

	res, err := h.jobs.Submit(r.Context(), r.URL.Query().Get("index"), uploads)
	if res == nil {
		if err == nil {
			err = errors.New("job produced no result")
		}
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrInvalidConfiguration) {
			status = http.StatusBadRequest
		}
		h.logger.Error("ingestion job not started", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, jobStatusCode(res, err), res)
}

func jobStatusCode(res *models.JobResult, err error) int {
	switch {
	case errors.Is(err, core.ErrSchemaMismatch):
		return http.StatusConflict
	case errors.Is(err, core.ErrIndexProvision):
		return http.StatusBadGateway
	case err != nil:
		return http.StatusServiceUnavailable
	case res.Status == models.JobCompleted:
		return http.StatusOK
	}
	return http.StatusMultiStatus
}
