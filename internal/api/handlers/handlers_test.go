package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/models"
	"github.com/markdave123-py/Indexa/internal/services"
)

type fakeSubmitter struct {
	index    string
	names    []string
	contents []string
	res      *models.JobResult
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, index string, uploads []services.Upload) (*models.JobResult, error) {
	f.index = index
	for _, u := range uploads {
		b, _ := io.ReadAll(u.Body)
		f.names = append(f.names, u.Name)
		f.contents = append(f.contents, string(b))
	}
	return f.res, f.err
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postJob(t *testing.T, h *JobHandler, target string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)
	return rec
}

func TestCreateJob_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		res  *models.JobResult
		err  error
		want int
	}{
		{"completed", &models.JobResult{Status: models.JobCompleted}, nil, http.StatusOK},
		{"partial", &models.JobResult{Status: models.JobPartial}, nil, http.StatusMultiStatus},
		{"all documents failed", &models.JobResult{Status: models.JobFailed}, nil, http.StatusMultiStatus},
		{"schema mismatch", &models.JobResult{Status: models.JobFailed},
			fmt.Errorf("%w: %w", core.ErrIndexProvision, core.ErrSchemaMismatch), http.StatusConflict},
		{"provision failed", &models.JobResult{Status: models.JobFailed},
			fmt.Errorf("%w: lookup: 503", core.ErrIndexProvision), http.StatusBadGateway},
		{"bad index name", nil, fmt.Errorf("%w: invalid index name", core.ErrInvalidConfiguration), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &fakeSubmitter{res: tc.res, err: tc.err}
			rec := postJob(t, NewJobHandler(sub, 1<<20, nil), "/api/jobs", map[string]string{"a.txt": "alpha"})
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestCreateJob_PassesFilesAndIndex(t *testing.T) {
	sub := &fakeSubmitter{res: &models.JobResult{
		JobID:     "j1",
		IndexName: "handbook",
		Status:    models.JobCompleted,
		Documents: []models.DocumentOutcome{{DocumentID: "a.txt", Name: "a.txt", Accepted: true, Status: models.DocumentIndexed, ChunkCount: 2, IndexedCount: 2}},
	}}
	rec := postJob(t, NewJobHandler(sub, 1<<20, nil), "/api/jobs?index=handbook", map[string]string{"a.txt": "alpha"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handbook", sub.index)
	assert.Equal(t, []string{"a.txt"}, sub.names)
	assert.Equal(t, []string{"alpha"}, sub.contents)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "handbook", got["index_name"])
	doc := got["documents"].([]any)[0].(map[string]any)
	assert.Equal(t, true, doc["accepted"])
	assert.EqualValues(t, 2, doc["chunkCount"])
	assert.EqualValues(t, 2, doc["indexedCount"])
}

func TestCreateJob_RejectsBadForms(t *testing.T) {
	h := NewJobHandler(&fakeSubmitter{}, 1<<20, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJob(t, h, "/api/jobs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	small := NewJobHandler(&fakeSubmitter{}, 64, nil)
	rec = postJob(t, small, "/api/jobs", map[string]string{"big.txt": strings.Repeat("x", 4096)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type fakeSearcher struct {
	hits []models.SearchHit
	err  error
	top  int
}

func (f *fakeSearcher) Search(_ context.Context, _, _ string, top int) ([]models.SearchHit, error) {
	f.top = top
	return f.hits, f.err
}

func doSearch(h *SearchHandler, index, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/api/indexes/{index}/search", h.Search)
	req := httptest.NewRequest(http.MethodPost, "/api/indexes/"+index+"/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSearch(t *testing.T) {
	s := &fakeSearcher{hits: []models.SearchHit{{ID: "k-0", Content: "renewal", Score: 0.9}}}
	rec := doSearch(NewSearchHandler(s), "docs", `{"query":"renewal","top":3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, s.top)
	var got searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "docs", got.Index)
	require.Len(t, got.Hits, 1)
	assert.Equal(t, "k-0", got.Hits[0].ID)
}

func TestSearch_Errors(t *testing.T) {
	cases := []struct {
		name  string
		index string
		body  string
		err   error
		want  int
	}{
		{"missing query", "docs", `{"top":3}`, nil, http.StatusBadRequest},
		{"top out of range", "docs", `{"query":"q","top":500}`, nil, http.StatusBadRequest},
		{"malformed body", "docs", `{`, nil, http.StatusBadRequest},
		{"bad index", "Docs_1", `{"query":"q"}`, nil, http.StatusBadRequest},
		{"unknown index", "docs", `{"query":"q"}`, core.ErrIndexNotFound, http.StatusNotFound},
		{"upstream failure", "docs", `{"query":"q"}`, errors.New("503"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doSearch(NewSearchHandler(&fakeSearcher{err: tc.err}), tc.index, tc.body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestIssueToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	h := NewTokenHandler("ingest-bot", string(hash), "jwt-secret")

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.IssueToken(rec, httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"client_id":"ingest-bot","client_secret":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Bearer", got.TokenType)
	assert.Equal(t, int(tokenTTL.Seconds()), got.ExpiresIn)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(got.AccessToken, claims, func(*jwt.Token) (any, error) { return []byte("jwt-secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "ingest-bot", claims.Subject)

	assert.Equal(t, http.StatusUnauthorized, post(`{"client_id":"ingest-bot","client_secret":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(`{"client_id":"other","client_secret":"s3cret"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`nope`).Code)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
