package ingestion_engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

const (
	VectorProfileName   = "default-vector-profile"
	VectorAlgorithmName = "default-hnsw-config"
	SemanticConfigName  = "default-semantic-config"
)

// SchemaManager provisions the target index for a job.
type SchemaManager struct {
	svc    core.IndexService
	policy retry.Policy
	logger *zap.Logger
}

func NewSchemaManager(svc core.IndexService, policy retry.Policy, logger *zap.Logger) *SchemaManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaManager{svc: svc, policy: policy, logger: logger}
}

// BuildSchema declares the record fields, the HNSW vector profile and the
// semantic configuration over title and content.
func BuildSchema(name string, vectorDimension int) models.IndexSchema {
	return models.IndexSchema{
		Name: name,
		Fields: []models.IndexField{
			{Name: "id", Type: models.FieldString, Key: true, Filterable: true, Sortable: true, Facetable: true},
			{Name: "documentId", Type: models.FieldString, Filterable: true, Facetable: true},
			{Name: "chunkOrdinal", Type: models.FieldInt32, Filterable: true, Sortable: true},
			{Name: "title", Type: models.FieldString, Searchable: true, Filterable: true, Sortable: true},
			{Name: "content", Type: models.FieldString, Searchable: true, Filterable: true},
			{Name: "sourcePath", Type: models.FieldString, Filterable: true},
			{Name: "contentVector", Type: models.FieldSingleVector, Searchable: true, VectorDimension: vectorDimension, VectorProfile: VectorProfileName},
			{Name: "titleVector", Type: models.FieldSingleVector, Searchable: true, VectorDimension: vectorDimension, VectorProfile: VectorProfileName},
		},
		VectorProfile:   VectorProfileName,
		VectorAlgorithm: VectorAlgorithmName,
		SemanticSettings: models.SemanticConfig{
			Name:          SemanticConfigName,
			TitleField:    "title",
			ContentFields: []string{"content"},
		},
	}
}

// EnsureIndex creates the index when absent and accepts an existing one only
// if it is compatible. It never overwrites an incompatible index.
// All failures wrap core.ErrIndexProvision.
func (m *SchemaManager) EnsureIndex(ctx context.Context, name string, vectorDimension int) error {
	if name == "" || vectorDimension <= 0 {
		return fmt.Errorf("%w: %w: index name %q, dimension %d", core.ErrIndexProvision, core.ErrInvalidConfiguration, name, vectorDimension)
	}
	want := BuildSchema(name, vectorDimension)

	var existing *models.IndexSchema
	err := m.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		existing, err = m.svc.GetIndex(ctx, name)
		return err
	})
	switch {
	case errors.Is(err, core.ErrIndexNotFound):
		if err := m.policy.Do(ctx, func(ctx context.Context) error {
			return m.svc.CreateOrUpdateIndex(ctx, want)
		}); err != nil {
			return fmt.Errorf("%w: create %s: %w", core.ErrIndexProvision, name, err)
		}
		m.logger.Info("index created", zap.String("index", name), zap.Int("dimension", vectorDimension))
		return nil
	case err != nil:
		return fmt.Errorf("%w: lookup %s: %w", core.ErrIndexProvision, name, err)
	}

	if err := CheckCompatible(*existing, want); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrIndexProvision, name, err)
	}
	m.logger.Debug("index already provisioned", zap.String("index", name))
	return nil
}

// CheckCompatible reports ErrSchemaMismatch when existing lacks a field of want,
// types differ, the key moved, or a vector dimension differs.
func CheckCompatible(existing, want models.IndexSchema) error {
	for _, w := range want.Fields {
		got, ok := existing.Field(w.Name)
		switch {
		case !ok:
			return fmt.Errorf("%w: missing field %q", core.ErrSchemaMismatch, w.Name)
		case got.Type != w.Type:
			return fmt.Errorf("%w: field %q has type %s, want %s", core.ErrSchemaMismatch, w.Name, got.Type, w.Type)
		case got.Key != w.Key:
			return fmt.Errorf("%w: field %q key=%t, want key=%t", core.ErrSchemaMismatch, w.Name, got.Key, w.Key)
		case w.VectorDimension > 0 && got.VectorDimension != w.VectorDimension:
			return fmt.Errorf("%w: field %q has dimension %d, want %d", core.ErrSchemaMismatch, w.Name, got.VectorDimension, w.VectorDimension)
		}
	}
	return nil
}
