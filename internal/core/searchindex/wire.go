package searchindex

import (
	"github.com/markdave123-py/Indexa/internal/models"
)

// Azure AI Search REST payloads.

type azureField struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	Key                 bool   `json:"key"`
	Searchable          bool   `json:"searchable"`
	Filterable          bool   `json:"filterable"`
	Sortable            bool   `json:"sortable"`
	Facetable           bool   `json:"facetable"`
	Retrievable         bool   `json:"retrievable"`
	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

type azureAlgorithm struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type azureProfile struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

type azureVectorSearch struct {
	Algorithms []azureAlgorithm `json:"algorithms"`
	Profiles   []azureProfile   `json:"profiles"`
}

type azureFieldRef struct {
	FieldName string `json:"fieldName"`
}

type azurePrioritizedFields struct {
	TitleField               *azureFieldRef  `json:"titleField,omitempty"`
	PrioritizedContentFields []azureFieldRef `json:"prioritizedContentFields"`
}

type azureSemanticConfiguration struct {
	Name              string                 `json:"name"`
	PrioritizedFields azurePrioritizedFields `json:"prioritizedFields"`
}

type azureSemantic struct {
	Configurations []azureSemanticConfiguration `json:"configurations"`
}

type azureIndex struct {
	Name         string             `json:"name"`
	Fields       []azureField       `json:"fields"`
	VectorSearch *azureVectorSearch `json:"vectorSearch,omitempty"`
	Semantic     *azureSemantic     `json:"semantic,omitempty"`
}

type azureError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// indexAction is one document of a docs/index batch.
type indexAction struct {
	Action string `json:"@search.action"`
	models.IndexableRecord
}

type indexBatch struct {
	Value []indexAction `json:"value"`
}

type indexingResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
}

type indexingResponse struct {
	Value []indexingResult `json:"value"`
}

type vectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	Fields string    `json:"fields"`
	K      int       `json:"k"`
}

type searchRequest struct {
	Search                string        `json:"search"`
	Top                   int           `json:"top"`
	Select                string        `json:"select"`
	VectorQueries         []vectorQuery `json:"vectorQueries,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
}

type searchResult struct {
	Score         float64  `json:"@search.score"`
	RerankerScore *float64 `json:"@search.rerankerScore"`
	ID            string   `json:"id"`
	DocumentID    string   `json:"documentId"`
	ChunkOrdinal  int      `json:"chunkOrdinal"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	SourcePath    string   `json:"sourcePath"`
}

type searchResponse struct {
	Value []searchResult `json:"value"`
}

func toAzureIndex(s models.IndexSchema) azureIndex {
	idx := azureIndex{Name: s.Name}
	for _, f := range s.Fields {
		idx.Fields = append(idx.Fields, azureField{
			Name:                f.Name,
			Type:                string(f.Type),
			Key:                 f.Key,
			Searchable:          f.Searchable,
			Filterable:          f.Filterable,
			Sortable:            f.Sortable,
			Facetable:           f.Facetable,
			Retrievable:         true,
			Dimensions:          f.VectorDimension,
			VectorSearchProfile: f.VectorProfile,
		})
	}
	if s.VectorProfile != "" {
		idx.VectorSearch = &azureVectorSearch{
			Algorithms: []azureAlgorithm{{Name: s.VectorAlgorithm, Kind: "hnsw"}},
			Profiles:   []azureProfile{{Name: s.VectorProfile, Algorithm: s.VectorAlgorithm}},
		}
	}
	if sem := s.SemanticSettings; sem.Name != "" {
		cfg := azureSemanticConfiguration{Name: sem.Name}
		if sem.TitleField != "" {
			cfg.PrioritizedFields.TitleField = &azureFieldRef{FieldName: sem.TitleField}
		}
		for _, c := range sem.ContentFields {
			cfg.PrioritizedFields.PrioritizedContentFields = append(cfg.PrioritizedFields.PrioritizedContentFields, azureFieldRef{FieldName: c})
		}
		idx.Semantic = &azureSemantic{Configurations: []azureSemanticConfiguration{cfg}}
	}
	return idx
}

func fromAzureIndex(idx azureIndex) models.IndexSchema {
	s := models.IndexSchema{Name: idx.Name}
	for _, f := range idx.Fields {
		s.Fields = append(s.Fields, models.IndexField{
			Name:            f.Name,
			Type:            models.FieldType(f.Type),
			Key:             f.Key,
			Searchable:      f.Searchable,
			Filterable:      f.Filterable,
			Sortable:        f.Sortable,
			Facetable:       f.Facetable,
			VectorDimension: f.Dimensions,
			VectorProfile:   f.VectorSearchProfile,
		})
	}
	if vs := idx.VectorSearch; vs != nil {
		if len(vs.Profiles) > 0 {
			s.VectorProfile = vs.Profiles[0].Name
		}
		if len(vs.Algorithms) > 0 {
			s.VectorAlgorithm = vs.Algorithms[0].Name
		}
	}
	if idx.Semantic != nil && len(idx.Semantic.Configurations) > 0 {
		c := idx.Semantic.Configurations[0]
		s.SemanticSettings.Name = c.Name
		if c.PrioritizedFields.TitleField != nil {
			s.SemanticSettings.TitleField = c.PrioritizedFields.TitleField.FieldName
		}
		for _, f := range c.PrioritizedFields.PrioritizedContentFields {
			s.SemanticSettings.ContentFields = append(s.SemanticSettings.ContentFields, f.FieldName)
		}
	}
	return s
}
