package store

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/rcliao/polymath/internal/model"
)

// SearchParams holds parameters for searching cached resources.
type SearchParams struct {
	Query       string
	Kind        model.Kind
	OfflineOnly bool
	Limit       int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search finds cached resources whose payload contains the query substring.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.CachedResource, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := sq.And{sq.Expr(`payload LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(p.Query)+"%")}
	if p.Kind != "" {
		where = append(where, sq.Eq{"kind": string(p.Kind)})
	}
	if p.OfflineOnly {
		where = append(where, sq.Eq{"offline_available": 1})
	}

	q := sq.Select(resourceColumns...).From("resources").Where(where).
		OrderBy("last_synced DESC", "id ASC").Limit(uint64(limit))
	return s.queryResources(ctx, q)
}

// ConnectionsFor returns connection edges whose source or target is resourceID.
func (s *SQLiteStore) ConnectionsFor(ctx context.Context, resourceID string) ([]model.CachedResource, error) {
	q := sq.Select(resourceColumns...).From("resources").
		Where(sq.Eq{"kind": string(model.KindConnection)}).
		Where(sq.Or{
			sq.Expr("json_extract(payload, '$.source_id') = ?", resourceID),
			sq.Expr("json_extract(payload, '$.target_id') = ?", resourceID),
		}).
		OrderBy("id ASC")
	return s.queryResources(ctx, q)
}
