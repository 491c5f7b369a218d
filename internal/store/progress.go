package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/polymath/internal/model"
)

// SaveProgress upserts by lookup: the newest row for the resource is updated
// in place, otherwise a row is inserted.
func (s *SQLiteStore) SaveProgress(ctx context.Context, p model.ReadingProgress) error {
	if p.ResourceID == "" {
		return errors.New("progress requires resource id")
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM reading_progress WHERE resource_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1`,
		p.ResourceID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reading_progress (resource_id, scroll_offset, percent, snippet, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			p.ResourceID, p.ScrollOffset, p.Percent, nullableString(p.Snippet), formatTime(updated))
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE reading_progress SET scroll_offset = ?, percent = ?, snippet = ?, updated_at = ? WHERE id = ?`,
			p.ScrollOffset, p.Percent, nullableString(p.Snippet), formatTime(updated), id)
	}
	if err != nil {
		return fmt.Errorf("save progress %s: %w", p.ResourceID, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetProgress(ctx context.Context, resourceID string) (*model.ReadingProgress, error) {
	var p model.ReadingProgress
	var snippet sql.NullString
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, resource_id, scroll_offset, percent, snippet, updated_at
		 FROM reading_progress WHERE resource_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1`,
		resourceID).Scan(&p.ID, &p.ResourceID, &p.ScrollOffset, &p.Percent, &snippet, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("progress %s: %w", resourceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	if snippet.Valid {
		p.Snippet = snippet.String
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func (s *SQLiteStore) DeleteProgress(ctx context.Context, resourceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reading_progress WHERE resource_id = ?`, resourceID); err != nil {
		return fmt.Errorf("delete progress %s: %w", resourceID, err)
	}
	return nil
}
