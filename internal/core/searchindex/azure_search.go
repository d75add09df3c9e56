// Package searchindex implements core.IndexService on the Azure AI Search REST API.
package searchindex

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

const (
	DefaultAPIVersion = "2024-07-01"

	selectFields = "id,documentId,chunkOrdinal,title,content,sourcePath"
)

// Config configures the Azure AI Search client.
//
// SemanticConfig: semantic configuration used for re-ranking at query time; empty disables it.
type Config struct {
	Endpoint       string
	APIKey         string
	APIVersion     string
	SemanticConfig string
	Timeout        time.Duration
}

type AzureSearchClient struct {
	client         *resty.Client
	semanticConfig string
}

var _ core.IndexService = (*AzureSearchClient)(nil)

func NewAzureSearchClient(cfg Config) (*AzureSearchClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: SEARCH_ENDPOINT not set", core.ErrInvalidConfiguration)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: SEARCH_API_KEY not set", core.ErrInvalidConfiguration)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	client := resty.New().
		SetHostURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("api-key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("api-version", cfg.APIVersion)

	return &AzureSearchClient{client: client, semanticConfig: cfg.SemanticConfig}, nil
}

// GetIndex fetches the index definition, or ErrIndexNotFound.
func (c *AzureSearchClient) GetIndex(ctx context.Context, name string) (*models.IndexSchema, error) {
	var (
		idx     azureIndex
		errBody azureError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"index": name}).
		SetResult(&idx).
		SetError(&errBody).
		Get("/indexes/{index}")
	if err != nil {
		return nil, transportError(ctx, "get index", err)
	}
	if resp.IsError() {
		return nil, statusError("get index "+name, resp, errBody)
	}

	schema := fromAzureIndex(idx)
	return &schema, nil
}

// CreateOrUpdateIndex PUTs the full index definition.
func (c *AzureSearchClient) CreateOrUpdateIndex(ctx context.Context, schema models.IndexSchema) error {
	var errBody azureError
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"index": schema.Name}).
		SetBody(toAzureIndex(schema)).
		SetError(&errBody).
		Put("/indexes/{index}")
	if err != nil {
		return transportError(ctx, "put index", err)
	}
	if resp.IsError() {
		return statusError("put index "+schema.Name, resp, errBody)
	}
	return nil
}

// UploadDocuments sends one mergeOrUpload batch. 200 and 207 carry per-record status.
func (c *AzureSearchClient) UploadDocuments(ctx context.Context, index string, records []models.IndexableRecord) ([]models.RecordOutcome, error) {
	if len(records) == 0 {
		return nil, nil
	}

	batch := indexBatch{Value: make([]indexAction, len(records))}
	for i, r := range records {
		batch.Value[i] = indexAction{Action: "mergeOrUpload", IndexableRecord: r}
	}

	var (
		out     indexingResponse
		errBody azureError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"index": index}).
		SetBody(batch).
		SetResult(&out).
		SetError(&errBody).
		Post("/indexes/{index}/docs/index")
	if err != nil {
		return nil, transportError(ctx, "index documents", err)
	}
	if resp.IsError() {
		return nil, statusError("index documents", resp, errBody)
	}

	byKey := make(map[string]indexingResult, len(out.Value))
	for _, r := range out.Value {
		byKey[r.Key] = r
	}

	outcomes := make([]models.RecordOutcome, len(records))
	for i, r := range records {
		res, ok := byKey[r.ID]
		outcomes[i].RecordID = r.ID
		switch {
		case !ok:
			outcomes[i].Err = fmt.Errorf("%w: no status returned for %s", core.ErrBatchWriteFailed, r.ID)
		case res.Status:
			outcomes[i].Indexed = true
		default:
			outcomes[i].Err = fmt.Errorf("%w: status %d: %s", core.ErrBatchWriteFailed, res.StatusCode, res.ErrorMessage)
		}
	}
	return outcomes, nil
}

// Search issues a hybrid query: full text plus a vector query over contentVector,
// re-ranked semantically when a semantic configuration is set.
func (c *AzureSearchClient) Search(ctx context.Context, index string, query models.SearchQuery) ([]models.SearchHit, error) {
	top := query.Top
	if top <= 0 {
		top = 5
	}

	body := searchRequest{Search: query.Text, Top: top, Select: selectFields}
	if len(query.Vector) > 0 {
		body.VectorQueries = []vectorQuery{{Kind: "vector", Vector: query.Vector, Fields: "contentVector", K: top}}
	}
	if c.semanticConfig != "" && query.Text != "" {
		body.QueryType = "semantic"
		body.SemanticConfiguration = c.semanticConfig
	}

	var (
		out     searchResponse
		errBody azureError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"index": index}).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post("/indexes/{index}/docs/search")
	if err != nil {
		return nil, transportError(ctx, "search", err)
	}
	if resp.IsError() {
		return nil, statusError("search "+index, resp, errBody)
	}

	hits := make([]models.SearchHit, 0, len(out.Value))
	for _, r := range out.Value {
		score := r.Score
		if r.RerankerScore != nil {
			score = *r.RerankerScore
		}
		hits = append(hits, models.SearchHit{
			ID:           r.ID,
			DocumentID:   r.DocumentID,
			ChunkOrdinal: r.ChunkOrdinal,
			Title:        r.Title,
			Content:      r.Content,
			SourcePath:   r.SourcePath,
			Score:        score,
		})
	}
	return hits, nil
}

// transportError marks network failures transient unless the caller gave up.
func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return retry.MarkTransient(fmt.Errorf("%s: %w", op, err))
}

// statusError maps an error response onto the core taxonomy.
func statusError(op string, resp *resty.Response, body azureError) error {
	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	err := fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), msg)

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", core.ErrIndexNotFound, err)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
		return retry.MarkTransientAfter(err, retryAfter(resp.Header().Get("Retry-After")))
	}
	return err
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
