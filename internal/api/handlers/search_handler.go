package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/models"
	"github.com/markdave123-py/Indexa/internal/services"
)

// Searcher runs a hybrid query against an index.
type Searcher interface {
	Search(ctx context.Context, index, text string, top int) ([]models.SearchHit, error)
}

type SearchHandler struct {
	search   Searcher
	validate *validator.Validate
}

func NewSearchHandler(search Searcher) *SearchHandler {
	return &SearchHandler{search: search, validate: validator.New()}
}

type searchRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
	Top   int    `json:"top" validate:"omitempty,min=1,max=50"`
}

type searchResponse struct {
	Index string             `json:"index"`
	Hits  []models.SearchHit `json:"hits"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	if !services.ValidIndexName(index) {
		writeError(w, http.StatusBadRequest, "invalid index name")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := h.search.Search(r.Context(), index, req.Query, req.Top)
	switch {
	case errors.Is(err, core.ErrIndexNotFound):
		writeError(w, http.StatusNotFound, "index not found")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Index: index, Hits: hits})
}
