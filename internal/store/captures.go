package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/polymath/internal/model"
)

// AddCapture queues a capture and returns it with its assigned id.
func (s *SQLiteStore) AddCapture(ctx context.Context, c model.PendingCapture) (*model.PendingCapture, error) {
	if c.Body == "" {
		return nil, errors.New("capture body is required")
	}
	if c.Kind == "" {
		c.Kind = "voice"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_captures (kind, body, created_at, synced, retry_count)
		 VALUES (?, ?, ?, 0, 0)`,
		c.Kind, c.Body, formatTime(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert capture: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	c.Synced = false
	c.RetryCount = 0
	return &c, nil
}

// PendingCaptures returns unsynced captures, oldest first.
func (s *SQLiteStore) PendingCaptures(ctx context.Context) ([]model.PendingCapture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, body, created_at, synced, retry_count, last_error
		 FROM pending_captures WHERE synced = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var out []model.PendingCapture
	for rows.Next() {
		var c model.PendingCapture
		var created string
		var synced int
		var lastErr sql.NullString
		if err := rows.Scan(&c.ID, &c.Kind, &c.Body, &created, &synced, &c.RetryCount, &lastErr); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		c.Synced = synced != 0
		if lastErr.Valid {
			c.LastError = lastErr.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordCaptureFailure bumps the retry counter after a failed submission.
func (s *SQLiteStore) RecordCaptureFailure(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_captures SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		nullableString(reason), id)
	if err != nil {
		return fmt.Errorf("record capture failure %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("capture %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteCapture(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_captures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete capture %d: %w", id, err)
	}
	return nil
}
