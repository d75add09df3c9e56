package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

func schemaWith(dim int, titleVector bool) models.IndexSchema {
	s := models.IndexSchema{
		Name: "Docs-2024",
		Fields: []models.IndexField{
			{Name: "id", Type: models.FieldString, Key: true},
			{Name: "content", Type: models.FieldString, Searchable: true},
			{Name: "contentVector", Type: models.FieldSingleVector, VectorDimension: dim},
		},
	}
	if titleVector {
		s.Fields = append(s.Fields, models.IndexField{Name: "titleVector", Type: models.FieldSingleVector, VectorDimension: dim})
	}
	return s
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "idx_docs_2024", tableName("Docs-2024"))
	assert.Equal(t, "idx_indexa_3f2a", tableName("indexa-3f2a"))
	assert.Len(t, tableName(strings.Repeat("a", 100)), 63)
}

func TestCreateTableStatements(t *testing.T) {
	stmts, err := createTableStatements("idx_docs", schemaWith(768, true))
	require.NoError(t, err)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], `"idx_docs"`)
	assert.Contains(t, stmts[0], "content_vector vector(768)")
	assert.Contains(t, stmts[0], "title_vector vector(768)")
	assert.Contains(t, stmts[3], "USING hnsw")

	stmts, err = createTableStatements("idx_docs", schemaWith(3072, false))
	require.NoError(t, err)
	assert.Len(t, stmts, 3, "no hnsw index above the dimension limit")
	assert.NotContains(t, stmts[0], "title_vector")

	_, err = createTableStatements("idx_docs", models.IndexSchema{Name: "x"})
	assert.Error(t, err)
}

func TestUpsertStatement(t *testing.T) {
	assert.Contains(t, upsertStatement("idx_docs", false), "ON CONFLICT (id) DO UPDATE")
	assert.NotContains(t, upsertStatement("idx_docs", false), "$8")
	assert.Contains(t, upsertStatement("idx_docs", true), "title_vector = EXCLUDED.title_vector")
}

func TestSearchStatement_Hybrid(t *testing.T) {
	q, args := searchStatement("idx_docs", models.SearchQuery{Text: "hello", Vector: []float32{1, 2}}, 20, 5)

	require.Len(t, args, 4)
	assert.Equal(t, 20, args[0])
	assert.Equal(t, 5, args[1])
	assert.Equal(t, "hello", args[2])
	assert.Equal(t, pgvector.NewVector([]float32{1, 2}), args[3])
	assert.Contains(t, q, "websearch_to_tsquery('english', $3)")
	assert.Contains(t, q, "content_vector <=> $4")
}

func TestSearchStatement_VectorOnly(t *testing.T) {
	q, args := searchStatement("idx_docs", models.SearchQuery{Vector: []float32{1}}, 20, 5)

	require.Len(t, args, 3)
	assert.Contains(t, q, "content_vector <=> $3")
	assert.NotContains(t, q, "websearch_to_tsquery")
}

func TestClassify(t *testing.T) {
	assert.True(t, retry.IsTransient(classify(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "08006"}))))
	assert.True(t, retry.IsTransient(classify(&pgconn.PgError{Code: "40001"})))
	assert.False(t, retry.IsTransient(classify(&pgconn.PgError{Code: "22000"})))
	assert.False(t, retry.IsTransient(classify(errors.New("boom"))))
	assert.Nil(t, classify(nil))
}

func TestMigrations_EmbeddedAndOrdered(t *testing.T) {
	prev := 0
	for _, m := range migrations {
		assert.Greater(t, m.version, prev, "migration %s out of order", m.script)
		prev = m.version

		script, err := scriptsFS.ReadFile(m.script)
		require.NoError(t, err)
		assert.Contains(t, string(script), fmt.Sprintf("INSERT INTO indexa_meta (version) VALUES (%d)", m.version))
	}
}
