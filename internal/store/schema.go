package store

import (
	"context"
	"errors"
	"fmt"
)

// SchemaVersion is the newest schema this binary understands.
const SchemaVersion = 2

// ErrSchemaTooNew is returned when the database was written by a newer client.
var ErrSchemaTooNew = errors.New("schema version newer than supported")

// migrations[i] upgrades a database from version i to version i+1.
var migrations = []string{
	// 1: initial collections
	`
	CREATE TABLE IF NOT EXISTS resources (
		kind              TEXT NOT NULL,
		id                TEXT NOT NULL,
		status            TEXT NOT NULL DEFAULT '',
		payload           TEXT NOT NULL,
		offline_available INTEGER NOT NULL DEFAULT 0,
		last_synced       TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(kind, status);
	CREATE INDEX IF NOT EXISTS idx_resources_last_synced ON resources(kind, last_synced);
	CREATE INDEX IF NOT EXISTS idx_resources_offline ON resources(kind, offline_available);

	CREATE TABLE IF NOT EXISTS media (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		resource_id TEXT NOT NULL,
		url         TEXT NOT NULL,
		data        BLOB NOT NULL,
		cached_at   TEXT NOT NULL,
		UNIQUE (resource_id, url)
	);
	CREATE INDEX IF NOT EXISTS idx_media_resource ON media(resource_id);
	CREATE INDEX IF NOT EXISTS idx_media_url ON media(url);
	CREATE INDEX IF NOT EXISTS idx_media_cached ON media(cached_at);

	CREATE TABLE IF NOT EXISTS reading_progress (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		resource_id   TEXT NOT NULL,
		scroll_offset REAL NOT NULL DEFAULT 0,
		percent       REAL NOT NULL DEFAULT 0,
		snippet       TEXT,
		updated_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_resource ON reading_progress(resource_id);
	CREATE INDEX IF NOT EXISTS idx_progress_updated ON reading_progress(updated_at);

	CREATE TABLE IF NOT EXISTS pending_captures (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL DEFAULT 'voice',
		body        TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		synced      INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_captures_created ON pending_captures(created_at);
	CREATE INDEX IF NOT EXISTS idx_captures_synced ON pending_captures(synced);

	CREATE TABLE IF NOT EXISTS snapshots (
		name       TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`,
	// 2: media completeness tracking, media content types, sync metadata
	`
	ALTER TABLE resources ADD COLUMN fully_cached INTEGER NOT NULL DEFAULT 0;
	CREATE INDEX IF NOT EXISTS idx_resources_fully_cached ON resources(kind, fully_cached);
	ALTER TABLE media ADD COLUMN content_type TEXT NOT NULL DEFAULT '';

	CREATE TABLE IF NOT EXISTS sync_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
}

// migrate brings the database up to SchemaVersion. A database stamped with a
// newer version is rejected rather than touched.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	return migrateTo(ctx, s, SchemaVersion)
}

func migrateTo(ctx context.Context, s *SQLiteStore, target int) error {
	if target > len(migrations) {
		return fmt.Errorf("no migration for version %d", target)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_version: %w", err)
	}

	var current int
	var rows int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_version`).Scan(&rows); err != nil {
		return fmt.Errorf("count schema_version: %w", err)
	}
	if rows == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
	} else if err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if current > target {
		return fmt.Errorf("%w: database has version %d, this client supports %d", ErrSchemaTooNew, current, target)
	}

	for v := current; v < target; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
	}
	if current != target {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, target); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// Version returns the schema version recorded in the database.
func (s *SQLiteStore) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
