package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/polymath/internal/model"
)

func (s *SQLiteStore) PutSnapshot(ctx context.Context, snap model.Snapshot) error {
	if snap.Name == "" {
		return errors.New("snapshot name is required")
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	payload := string(snap.Payload)
	if payload == "" {
		payload = "null"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		snap.Name, payload, formatTime(updated))
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.Name, err)
	}
	return nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, name string) (*model.Snapshot, error) {
	var snap model.Snapshot
	var payload, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, payload, updated_at FROM snapshots WHERE name = ?`, name).Scan(&snap.Name, &payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.Payload = []byte(payload)
	snap.UpdatedAt = parseTime(updated)
	return &snap, nil
}

// SetSyncTime records when a collection last synced successfully.
func (s *SQLiteStore) SetSyncTime(ctx context.Context, key string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, formatTime(t))
	if err != nil {
		return fmt.Errorf("set sync time %s: %w", key, err)
	}
	return nil
}

// SyncTime returns the zero time when the key has never synced.
func (s *SQLiteStore) SyncTime(ctx context.Context, key string) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get sync time %s: %w", key, err)
	}
	return parseTime(value), nil
}
