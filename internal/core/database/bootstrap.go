package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"go.uber.org/zap"
)

//go:embed scripts/*.sql
var scriptsFS embed.FS

// registryLockKey is the advisory lock shared by every process bootstrapping the registry.
const registryLockKey int64 = 0x696e64657861

type migration struct {
	version int
	script  string
}

// migrations are applied in order; a version is recorded in indexa_meta by its own script.
var migrations = []migration{
	{version: 1, script: "scripts/initdb.sql"},
}

// EnsureBootstrapped applies the registry migrations newer than the recorded
// version. Replicas starting together serialize on an advisory lock.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	tx, err := db.BeginTx(ctxBoot, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctxBoot, `SELECT pg_advisory_xact_lock($1)`, registryLockKey); err != nil {
		return fmt.Errorf("registry lock: %w", err)
	}

	current, err := registryVersion(ctxBoot, tx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		script, err := scriptsFS.ReadFile(m.script)
		if err != nil {
			return fmt.Errorf("read %s: %w", m.script, err)
		}
		if _, err := tx.ExecContext(ctxBoot, string(script)); err != nil {
			return fmt.Errorf("apply %s: %w", m.script, err)
		}
		logger.Info("registry migration applied", zap.Int("version", m.version), zap.String("script", m.script))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}

// registryVersion is 0 on a fresh database.
func registryVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT to_regclass('indexa_meta') IS NOT NULL`).Scan(&exists); err != nil {
		return 0, fmt.Errorf("meta table check: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM indexa_meta`).Scan(&version); err != nil {
		return 0, fmt.Errorf("meta version check: %w", err)
	}
	return version, nil
}
