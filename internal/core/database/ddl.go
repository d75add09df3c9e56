package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Indexa/internal/models"
)

const (
	// rrfK is the reciprocal-rank-fusion constant.
	rrfK = 60

	// hnsw indexes on the vector type are limited to 2000 dimensions.
	maxHNSWDimensions = 2000
)

// tableName maps an index name onto a Postgres identifier: lowercase
// [a-z0-9_] with an idx_ prefix, at most 63 bytes.
func tableName(index string) string {
	var b strings.Builder
	b.WriteString("idx_")
	for _, r := range strings.ToLower(index) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// vectorDimension returns the dimension of the contentVector field.
func vectorDimension(schema models.IndexSchema) (int, error) {
	f, ok := schema.Field("contentVector")
	if !ok || f.VectorDimension <= 0 {
		return 0, fmt.Errorf("schema %s has no contentVector dimension", schema.Name)
	}
	return f.VectorDimension, nil
}

// createTableStatements returns the DDL for one index table.
func createTableStatements(table string, schema models.IndexSchema) ([]string, error) {
	dim, err := vectorDimension(schema)
	if err != nil {
		return nil, err
	}
	q := quote(table)

	titleVector := ""
	if _, ok := schema.Field("titleVector"); ok {
		titleVector = fmt.Sprintf("title_vector vector(%d),\n\t\t", dim)
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_ordinal INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		content_vector vector(%d),
		%stsv tsvector GENERATED ALWAYS AS (
			setweight(to_tsvector('english', title), 'A') || setweight(to_tsvector('english', content), 'B')
		) STORED,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, q, dim, titleVector),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (tsv)`, quote(table+"_tsv"), q),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id, chunk_ordinal)`, quote(table+"_doc"), q),
	}
	if dim <= maxHNSWDimensions {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (content_vector vector_cosine_ops)`,
			quote(table+"_hnsw"), q))
	}
	return stmts, nil
}

func upsertStatement(table string, withTitleVector bool) string {
	if !withTitleVector {
		return fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_ordinal, title, content, source_path, content_vector, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_ordinal = EXCLUDED.chunk_ordinal,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			source_path = EXCLUDED.source_path,
			content_vector = EXCLUDED.content_vector,
			updated_at = EXCLUDED.updated_at`, quote(table))
	}
	return fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_ordinal, title, content, source_path, content_vector, title_vector, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_ordinal = EXCLUDED.chunk_ordinal,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			source_path = EXCLUDED.source_path,
			content_vector = EXCLUDED.content_vector,
			title_vector = EXCLUDED.title_vector,
			updated_at = EXCLUDED.updated_at`, quote(table))
}

// searchStatement fuses keyword and vector rankings with reciprocal-rank fusion.
// $1 is the candidate count per ranking and $2 the result limit; the query
// text and vector follow when present.
func searchStatement(table string, query models.SearchQuery, candidates, top int) (string, []any) {
	q := quote(table)
	args := []any{candidates, top}

	kw := `SELECT NULL::text AS id, 0::bigint AS rnk WHERE false`
	if strings.TrimSpace(query.Text) != "" {
		args = append(args, query.Text)
		p := fmt.Sprintf("$%d", len(args))
		kw = fmt.Sprintf(`SELECT t.id, row_number() OVER (ORDER BY ts_rank_cd(t.tsv, tq) DESC) AS rnk
			FROM %s t, websearch_to_tsquery('english', %s) tq
			WHERE t.tsv @@ tq
			ORDER BY ts_rank_cd(t.tsv, tq) DESC LIMIT $1`, q, p)
	}

	vec := `SELECT NULL::text AS id, 0::bigint AS rnk WHERE false`
	if len(query.Vector) > 0 {
		args = append(args, pgvector.NewVector(query.Vector))
		p := fmt.Sprintf("$%d", len(args))
		vec = fmt.Sprintf(`SELECT id, row_number() OVER (ORDER BY content_vector <=> %s) AS rnk
			FROM %s WHERE content_vector IS NOT NULL
			ORDER BY content_vector <=> %s LIMIT $1`, p, q, p)
	}

	stmt := fmt.Sprintf(`
		WITH vec AS (%s), kw AS (%s)
		SELECT t.id, t.document_id, t.chunk_ordinal, t.title, t.content, t.source_path,
			COALESCE(1.0 / (%d + vec.rnk), 0) + COALESCE(1.0 / (%d + kw.rnk), 0) AS score
		FROM %s t
		LEFT JOIN vec ON vec.id = t.id
		LEFT JOIN kw ON kw.id = t.id
		WHERE vec.id IS NOT NULL OR kw.id IS NOT NULL
		ORDER BY score DESC, t.id
		LIMIT $2`, vec, kw, rrfK, rrfK, q)
	return stmt, args
}
