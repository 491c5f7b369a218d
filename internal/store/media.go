package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/polymath/internal/model"
)

const mediaColumns = `id, resource_id, url, data, content_type, cached_at`

// PutMedia upserts a media asset by (resource id, url).
func (s *SQLiteStore) PutMedia(ctx context.Context, m model.CachedMedia) error {
	if m.ResourceID == "" || m.URL == "" {
		return errors.New("media requires resource id and url")
	}
	cachedAt := m.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}
	data := m.Data
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media (resource_id, url, data, content_type, cached_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(resource_id, url) DO UPDATE SET
			data = excluded.data,
			content_type = excluded.content_type,
			cached_at = excluded.cached_at`,
		m.ResourceID, m.URL, data, m.ContentType, formatTime(cachedAt))
	if err != nil {
		return fmt.Errorf("put media %s: %w", m.URL, err)
	}
	return nil
}

// HasMedia reports whether any resource already cached the url.
func (s *SQLiteStore) HasMedia(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM media WHERE url = ? LIMIT 1`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check media %s: %w", url, err)
	}
	return true, nil
}

// GetMedia returns the earliest cached copy of url.
func (s *SQLiteStore) GetMedia(ctx context.Context, url string) (*model.CachedMedia, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE url = ? ORDER BY id LIMIT 1`, url)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) MediaForResource(ctx context.Context, resourceID string) ([]model.CachedMedia, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE resource_id = ? ORDER BY cached_at, id`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var out []model.CachedMedia
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMediaForResource(ctx context.Context, resourceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media WHERE resource_id = ?`, resourceID)
	if err != nil {
		return 0, fmt.Errorf("delete media for %s: %w", resourceID, err)
	}
	return res.RowsAffected()
}

func scanMedia(row scanner) (model.CachedMedia, error) {
	var m model.CachedMedia
	var cachedAt string
	if err := row.Scan(&m.ID, &m.ResourceID, &m.URL, &m.Data, &m.ContentType, &cachedAt); err != nil {
		return m, err
	}
	m.Size = len(m.Data)
	m.CachedAt = parseTime(cachedAt)
	return m, nil
}
