package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
)

const (
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "text-embedding-ada-002"
	DefaultAzureAPIVersion = "2024-02-01"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
//
// Endpoint:   base URL; for Azure OpenAI the resource URL (https://<name>.openai.azure.com).
// Model:      model name, or deployment name on Azure.
// Dimensions: requested output size, only sent for text-embedding-3-* models.
// Azure:      use the deployment route, api-key header and api-version query.
type OpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	Azure      bool
	APIVersion string
	Timeout    time.Duration
}

// OpenAIEmbedder calls POST /embeddings on OpenAI or Azure OpenAI.
type OpenAIEmbedder struct {
	client     *resty.Client
	path       string
	model      string
	dimensions int
	azure      bool
}

type openAIEmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding api key not set", core.ErrInvalidConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Endpoint == "" {
		if cfg.Azure {
			return nil, fmt.Errorf("%w: azure openai endpoint not set", core.ErrInvalidConfiguration)
		}
		cfg.Endpoint = DefaultOpenAIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New().
		SetHostURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	e := &OpenAIEmbedder{client: client, model: cfg.Model, azure: cfg.Azure}
	if cfg.Azure {
		if cfg.APIVersion == "" {
			cfg.APIVersion = DefaultAzureAPIVersion
		}
		client.SetHeader("api-key", cfg.APIKey).SetQueryParam("api-version", cfg.APIVersion)
		e.path = "/openai/deployments/" + cfg.Model + "/embeddings"
	} else {
		client.SetAuthToken(cfg.APIKey)
		e.path = "/embeddings"
	}
	if strings.HasPrefix(cfg.Model, "text-embedding-3") {
		e.dimensions = cfg.Dimensions
	}
	return e, nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := openAIEmbeddingRequest{Input: texts, Dimensions: e.dimensions}
	if !e.azure {
		body.Model = e.model
	}

	var (
		out     openAIEmbeddingResponse
		errBody openAIErrorResponse
	)
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Post(e.path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embeddings request: %w", ctx.Err())
		}
		return nil, retry.MarkTransient(fmt.Errorf("embeddings request: %w", err))
	}

	if resp.IsError() {
		return nil, classifyStatus(resp.StatusCode(), errBody.Error.Message, resp.Header())
	}

	vecs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("embeddings response missing vector %d", i)
		}
	}
	return vecs, nil
}

// classifyStatus maps an HTTP error status onto the retry and input-error taxonomy.
func classifyStatus(status int, message string, header http.Header) error {
	if message == "" {
		message = http.StatusText(status)
	}
	err := fmt.Errorf("embeddings status %d: %s", status, message)

	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return retry.MarkTransientAfter(err, parseRetryAfter(header.Get("Retry-After")))
	case status == http.StatusRequestTimeout:
		return retry.MarkTransient(err)
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %w", core.ErrInputTooLarge, err)
	}
	return err
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
