package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are keyed by dialect, then by schema version. Each statement is
// executed on its own; libSQL does not accept multi-statement Exec.
var migrations = map[string]map[int][]string{
	dialectSQLite: {
		1: {
			`CREATE TABLE IF NOT EXISTS facts (
				id TEXT PRIMARY KEY,
				text TEXT NOT NULL,
				text_key TEXT NOT NULL UNIQUE,
				inserted_at TEXT NOT NULL,
				source TEXT NOT NULL DEFAULT '',
				occurrence_count INTEGER NOT NULL DEFAULT 1 CHECK (occurrence_count >= 1),
				like_count INTEGER NOT NULL DEFAULT 0 CHECK (like_count >= 0),
				dislike_count INTEGER NOT NULL DEFAULT 0 CHECK (dislike_count >= 0)
			)`,
		},
		2: {
			`CREATE INDEX IF NOT EXISTS idx_facts_inserted_at ON facts(inserted_at)`,
			`CREATE INDEX IF NOT EXISTS idx_facts_occurrence ON facts(occurrence_count)`,
			`CREATE INDEX IF NOT EXISTS idx_facts_popularity ON facts((like_count - dislike_count))`,
		},
	},
	dialectPostgres: {
		1: {
			`CREATE TABLE IF NOT EXISTS facts (
				id UUID PRIMARY KEY,
				seq BIGSERIAL NOT NULL,
				text VARCHAR(900) NOT NULL,
				text_key TEXT NOT NULL UNIQUE,
				inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				source TEXT NOT NULL DEFAULT '',
				occurrence_count BIGINT NOT NULL DEFAULT 1 CHECK (occurrence_count >= 1),
				like_count BIGINT NOT NULL DEFAULT 0 CHECK (like_count >= 0),
				dislike_count BIGINT NOT NULL DEFAULT 0 CHECK (dislike_count >= 0)
			)`,
		},
		2: {
			`CREATE INDEX IF NOT EXISTS idx_facts_inserted_at ON facts(inserted_at, seq)`,
			`CREATE INDEX IF NOT EXISTS idx_facts_occurrence ON facts(occurrence_count)`,
			`CREATE INDEX IF NOT EXISTS idx_facts_popularity ON facts((like_count - dislike_count))`,
		},
	},
}

// LatestVersion is the newest schema version known for the dialect.
func LatestVersion(dialect string) int {
	latest := 0
	for v := range migrations[dialect] {
		if v > latest {
			latest = v
		}
	}
	return latest
}

func (r *Repository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (num INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := r.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for v := current + 1; v <= LatestVersion(r.dialect); v++ {
		stmts, ok := migrations[r.dialect][v]
		if !ok {
			return fmt.Errorf("missing migration %d for %s", v, r.dialect)
		}
		if err := r.applyMigration(ctx, v, current, stmts); err != nil {
			return err
		}
		current = v
	}
	return nil
}

func (r *Repository) applyMigration(ctx context.Context, version, previous int, stmts []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}

	updateSQL := `UPDATE schema_version SET num = ?`
	if previous == 0 {
		updateSQL = `INSERT INTO schema_version (num) VALUES (?)`
	}
	if _, err := tx.ExecContext(ctx, r.q(updateSQL), version); err != nil {
		return fmt.Errorf("migration %d: record version: %w", version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the applied schema version, 0 for a fresh database.
func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT num FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows || (err == nil && !version.Valid) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}
