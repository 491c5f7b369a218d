package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/rcliao/polymath/internal/model"
)

// ExportAll returns every cached resource, optionally filtered by kind.
func (s *SQLiteStore) ExportAll(ctx context.Context, kind model.Kind) ([]model.CachedResource, error) {
	q := sq.Select(resourceColumns...).From("resources").OrderBy("kind", "id")
	if kind != "" {
		q = q.Where(sq.Eq{"kind": string(kind)})
	}
	return s.queryResources(ctx, q)
}

// Import upserts resources from an export. Existing records are overwritten.
func (s *SQLiteStore) Import(ctx context.Context, resources []model.CachedResource) (int, error) {
	if err := s.BulkPutResources(ctx, resources); err != nil {
		return 0, err
	}
	return len(resources), nil
}
