package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
)

const DefaultGeminiModel = "gemini-embedding-001"

// GeminiEmbedder embeds document chunks with the Gemini batch embedding API.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	model     *genai.EmbeddingModel
	owner     bool
}

// NewGeminiEmbedder uses DefaultGeminiModel when modelName is empty.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not set", core.ErrInvalidConfiguration)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:    client,
		modelName: modelName,
		model:     embeddingModel(client, modelName, genai.TaskTypeRetrievalDocument),
		owner:     true,
	}, nil
}

// ForQueries returns an embedder for search queries sharing g's client.
// Only g owns the client and closes it.
func (g *GeminiEmbedder) ForQueries() core.EmbeddingProvider {
	return &GeminiEmbedder{
		client:    g.client,
		modelName: g.modelName,
		model:     embeddingModel(g.client, g.modelName, genai.TaskTypeRetrievalQuery),
	}
}

func embeddingModel(client *genai.Client, name string, task genai.TaskType) *genai.EmbeddingModel {
	m := client.EmbeddingModel(name)
	m.TaskType = task
	return m
}

func (g *GeminiEmbedder) Close() error {
	if g.client == nil || !g.owner {
		return nil
	}
	return g.client.Close()
}

// EmbedTexts sends every text in a single BatchEmbedContents request.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := g.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := g.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	return geminiVectors(resp.Embeddings, len(texts))
}

func geminiVectors(embeddings []*genai.ContentEmbedding, want int) ([][]float32, error) {
	if len(embeddings) != want {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(embeddings), want)
	}
	out := make([][]float32, want)
	for i, e := range embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini returned an empty embedding at %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// classifyGeminiError maps Google API status codes onto the retry and input-error taxonomy.
func classifyGeminiError(err error) error {
	wrapped := fmt.Errorf("gemini batch embed: %w", err)

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return wrapped
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
		return retry.MarkTransientAfter(wrapped, parseRetryAfter(gerr.Header.Get("Retry-After")))
	case gerr.Code == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", core.ErrInputTooLarge, wrapped)
	}
	return wrapped
}

var _ core.QueryEmbeddingProvider = (*GeminiEmbedder)(nil)
