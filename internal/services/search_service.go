package services

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/embedding"
	"github.com/markdave123-py/Indexa/internal/models"
)

const (
	DefaultTop = 5
	MaxTop     = 50
)

// SearchService embeds a query and passes a hybrid request through to the index service.
type SearchService struct {
	embedder *embedding.Client
	index    core.IndexService
}

func NewSearchService(embedder *embedding.Client, index core.IndexService) *SearchService {
	return &SearchService{embedder: embedder.ForQueries(), index: index}
}

func (s *SearchService) Search(ctx context.Context, index, text string, top int) ([]models.SearchHit, error) {
	if top <= 0 {
		top = DefaultTop
	}
	top = min(top, MaxTop)

	res := s.embedder.Embed(ctx, []string{text})
	if err := res[0].Err; err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.index.Search(ctx, index, models.SearchQuery{Text: text, Vector: res[0].Vector, Top: top})
}
