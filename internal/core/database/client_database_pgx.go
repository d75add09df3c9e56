package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Indexa/internal/config"
	"github.com/markdave123-py/Indexa/internal/core"
	"github.com/markdave123-py/Indexa/internal/core/retry"
	"github.com/markdave123-py/Indexa/internal/models"
)

// DatabaseClient implements core.IndexService on Postgres with pgvector.
// Each logical index is one table; its schema is kept in indexa_indexes.
type DatabaseClient struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ core.IndexService = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is empty", core.ErrInvalidConfiguration)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("pgvector index backend ready")
	return &DatabaseClient{db: db, logger: logger}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// GetIndex reads the registered schema, or ErrIndexNotFound.
func (c *DatabaseClient) GetIndex(ctx context.Context, name string) (*models.IndexSchema, error) {
	const q = `SELECT schema FROM indexa_indexes WHERE name = $1`

	var raw []byte
	err := c.db.QueryRowContext(ctx, q, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get index %s: %w", name, err))
	}

	var schema models.IndexSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema of %s: %w", name, err)
	}
	return &schema, nil
}

// CreateOrUpdateIndex creates the index table and registers its schema in one transaction.
func (c *DatabaseClient) CreateOrUpdateIndex(ctx context.Context, schema models.IndexSchema) error {
	table := tableName(schema.Name)
	stmts, err := createTableStatements(table, schema)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return classify(fmt.Errorf("create index table %s: %w", table, err))
		}
	}

	const register = `
		INSERT INTO indexa_indexes (name, table_name, schema)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET schema = EXCLUDED.schema, updated_at = now()
	`
	if _, err := tx.ExecContext(ctx, register, schema.Name, table, raw); err != nil {
		_ = tx.Rollback()
		return classify(fmt.Errorf("register index %s: %w", schema.Name, err))
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit index %s: %w", schema.Name, err))
	}

	c.logger.Info("index table ready", zap.String("index", schema.Name), zap.String("table", table))
	return nil
}

// UploadDocuments upserts the batch in one transaction, isolating each record
// behind a savepoint so a bad row fails alone.
func (c *DatabaseClient) UploadDocuments(ctx context.Context, index string, records []models.IndexableRecord) ([]models.RecordOutcome, error) {
	if len(records) == 0 {
		return nil, nil
	}
	schema, err := c.GetIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	_, withTitle := schema.Field("titleVector")
	table := tableName(index)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("begin tx: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, upsertStatement(table, withTitle))
	if err != nil {
		_ = tx.Rollback()
		return nil, classify(fmt.Errorf("prepare upsert: %w", err))
	}
	defer stmt.Close()

	outcomes := make([]models.RecordOutcome, len(records))
	for i := range records {
		r := &records[i]
		outcomes[i].RecordID = r.ID

		if _, err := tx.ExecContext(ctx, "SAVEPOINT record"); err != nil {
			_ = tx.Rollback()
			return nil, classify(fmt.Errorf("savepoint: %w", err))
		}

		args := []any{r.ID, r.DocumentID, r.ChunkOrdinal, r.Title, r.Content, r.SourcePath, pgvector.NewVector(r.ContentVector)}
		if withTitle {
			args = append(args, nullableVector(r.TitleVector))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT record"); rbErr != nil {
				_ = tx.Rollback()
				return nil, classify(fmt.Errorf("rollback to savepoint: %w", rbErr))
			}
			outcomes[i].Err = fmt.Errorf("%w: %s: %w", core.ErrBatchWriteFailed, r.ID, err)
			continue
		}
		outcomes[i].Indexed = true
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("commit batch: %w", err))
	}
	return outcomes, nil
}

// Search runs a hybrid keyword + vector query fused with reciprocal-rank fusion.
func (c *DatabaseClient) Search(ctx context.Context, index string, query models.SearchQuery) ([]models.SearchHit, error) {
	if _, err := c.GetIndex(ctx, index); err != nil {
		return nil, err
	}
	top := query.Top
	if top <= 0 {
		top = 5
	}

	q, args := searchStatement(tableName(index), query, max(top*4, 20), top)
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("search %s: %w", index, err))
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.ChunkOrdinal, &h.Title, &h.Content, &h.SourcePath, &h.Score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullableVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// classify marks connection loss, serialization failures and server shutdown as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return retry.MarkTransient(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08", // connection exception
			pgErr.Code == "40001", pgErr.Code == "40P01", // serialization failure, deadlock
			pgErr.Code == "53300",                        // too many connections
			pgErr.Code == "57P01", pgErr.Code == "57P03": // admin shutdown, cannot connect now
			return retry.MarkTransient(err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return retry.MarkTransient(err)
	}
	return err
}
