package searchindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *AzureSearchClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewAzureSearchClient(Config{Endpoint: srv.URL, APIKey: "secret", SemanticConfig: "default-semantic-config"})
	require.NoError(t, err)
	return c
}

func sampleSchema() models.IndexSchema {
	return models.IndexSchema{
		Name: "docs",
		Fields: []models.IndexField{
			{Name: "id", Type: models.FieldString, Key: true, Filterable: true, Sortable: true, Facetable: true},
			{Name: "content", Type: models.FieldString, Searchable: true, Filterable: true},
			{Name: "contentVector", Type: models.FieldSingleVector, Searchable: true, VectorDimension: 4, VectorProfile: "vector-profile"},
		},
		VectorProfile:   "vector-profile",
		VectorAlgorithm: "hnsw-config",
		SemanticSettings: models.SemanticConfig{
			Name: "default-semantic-config", TitleField: "title", ContentFields: []string{"content"},
		},
	}
}

func TestGetIndex_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/missing", r.URL.Path)
		assert.Equal(t, DefaultAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"code": "", "message": "No index with the name 'missing'"}})
	})

	_, err := c.GetIndex(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrIndexNotFound)
	assert.False(t, retry.IsTransient(err))
}

func TestCreateThenGetIndex_RoundTripsSchema(t *testing.T) {
	var stored azureIndex
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			writeJSON(w, http.StatusCreated, stored)
		case http.MethodGet:
			writeJSON(w, http.StatusOK, stored)
		}
	})

	schema := sampleSchema()
	require.NoError(t, c.CreateOrUpdateIndex(context.Background(), schema))

	assert.Equal(t, "hnsw", stored.VectorSearch.Algorithms[0].Kind)
	assert.Equal(t, "content", stored.Semantic.Configurations[0].PrioritizedFields.PrioritizedContentFields[0].FieldName)
	assert.True(t, stored.Fields[0].Retrievable)

	got, err := c.GetIndex(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, schema, *got)
}

func TestUploadDocuments_MultiStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/docs/docs/index", r.URL.Path)

		var batch struct {
			Value []map[string]any `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		require.Len(t, batch.Value, 3)
		assert.Equal(t, "mergeOrUpload", batch.Value[0]["@search.action"])
		assert.Equal(t, "a-0", batch.Value[0]["id"])
		assert.NotContains(t, batch.Value[0], "titleVector")

		writeJSON(w, http.StatusMultiStatus, map[string]any{"value": []map[string]any{
			{"key": "a-0", "status": true, "statusCode": 201},
			{"key": "a-1", "status": false, "statusCode": 400, "errorMessage": "bad vector"},
		}})
	})

	records := []models.IndexableRecord{
		{ID: "a-0", Content: "zero", ContentVector: []float32{1}},
		{ID: "a-1", Content: "one", ContentVector: []float32{1}},
		{ID: "a-2", Content: "two", ContentVector: []float32{1}},
	}
	outcomes, err := c.UploadDocuments(context.Background(), "docs", records)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Indexed)
	assert.NoError(t, outcomes[0].Err)
	assert.False(t, outcomes[1].Indexed)
	assert.ErrorIs(t, outcomes[1].Err, core.ErrBatchWriteFailed)
	assert.Contains(t, outcomes[1].Err.Error(), "bad vector")
	assert.ErrorIs(t, outcomes[2].Err, core.ErrBatchWriteFailed)
}

func TestUploadDocuments_ThrottledIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"message": "busy"}})
	})

	outcomes, err := c.UploadDocuments(context.Background(), "docs", []models.IndexableRecord{{ID: "a-0"}})
	assert.Nil(t, outcomes)
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
	assert.Equal(t, 3*time.Second, retry.RetryAfter(err))
}

func TestSearch_HybridSemanticRequest(t *testing.T) {
	var req searchRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/docs/docs/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]any{
			{"@search.score": 0.5, "@search.rerankerScore": 2.75, "id": "a-0", "documentId": "doc", "chunkOrdinal": 0, "content": "hello"},
			{"@search.score": 0.25, "id": "a-1", "documentId": "doc", "chunkOrdinal": 1, "content": "world"},
		}})
	})

	hits, err := c.Search(context.Background(), "docs", models.SearchQuery{Text: "hello", Vector: []float32{0.1, 0.2}, Top: 2})
	require.NoError(t, err)

	assert.Equal(t, "hello", req.Search)
	assert.Equal(t, "semantic", req.QueryType)
	assert.Equal(t, "default-semantic-config", req.SemanticConfiguration)
	require.Len(t, req.VectorQueries, 1)
	assert.Equal(t, "contentVector", req.VectorQueries[0].Fields)
	assert.Equal(t, 2, req.VectorQueries[0].K)

	require.Len(t, hits, 2)
	assert.Equal(t, 2.75, hits[0].Score)
	assert.Equal(t, 0.25, hits[1].Score)
	assert.Equal(t, 1, hits[1].ChunkOrdinal)
}

func TestNewAzureSearchClient_Validates(t *testing.T) {
	_, err := NewAzureSearchClient(Config{APIKey: "k"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewAzureSearchClient(Config{Endpoint: "https://x"})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}
