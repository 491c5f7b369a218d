package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/rcliao/polymath/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path and
// migrates it to SchemaVersion.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return openSQLiteStore(dbPath, SchemaVersion)
}

func openSQLiteStore(dbPath string, version int) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer connection serializes concurrent tasks at the driver.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: dbPath}
	if err := migrateTo(context.Background(), s, version); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var resourceColumns = []string{"kind", "id", "status", "payload", "offline_available", "fully_cached", "last_synced"}

var resourceIndexColumns = map[Index]string{
	IndexStatus:           "status",
	IndexLastSynced:       "last_synced",
	IndexOfflineAvailable: "offline_available",
	IndexFullyCached:      "fully_cached",
}

const upsertResourceSQL = `
	INSERT INTO resources (kind, id, status, payload, offline_available, fully_cached, last_synced)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, id) DO UPDATE SET
		status = excluded.status,
		payload = excluded.payload,
		offline_available = excluded.offline_available,
		fully_cached = excluded.fully_cached,
		last_synced = excluded.last_synced`

func resourceArgs(r model.CachedResource) ([]any, error) {
	if !model.ValidKinds[r.Kind] {
		return nil, fmt.Errorf("invalid kind %q", r.Kind)
	}
	if r.ID == "" {
		return nil, errors.New("resource id is required")
	}
	payload := string(r.Payload)
	if payload == "" {
		payload = "{}"
	}
	synced := r.LastSynced
	if synced.IsZero() {
		synced = time.Now()
	}
	return []any{
		string(r.Kind), r.ID, r.Status, payload,
		boolInt(r.OfflineAvailable), boolInt(r.FullyCached), formatTime(synced),
	}, nil
}

func (s *SQLiteStore) PutResource(ctx context.Context, r model.CachedResource) error {
	args, err := resourceArgs(r)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertResourceSQL, args...); err != nil {
		return fmt.Errorf("upsert resource %s/%s: %w", r.Kind, r.ID, err)
	}
	return nil
}

func (s *SQLiteStore) BulkPutResources(ctx context.Context, rs []model.CachedResource) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertResourceSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rs {
		args, err := resourceArgs(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert resource %s/%s: %w", r.Kind, r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetResource(ctx context.Context, kind model.Kind, id string) (*model.CachedResource, error) {
	query, args, err := sq.Select(resourceColumns...).From("resources").
		Where(sq.Eq{"kind": string(kind), "id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	r, err := scanResource(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %s/%s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) QueryResources(ctx context.Context, kind model.Kind, idx Index, value any) ([]model.CachedResource, error) {
	col, ok := resourceIndexColumns[idx]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", idx)
	}
	q := sq.Select(resourceColumns...).From("resources").
		Where(sq.Eq{"kind": string(kind), col: indexValue(value)}).
		OrderBy(col+" ASC", "id ASC")
	return s.queryResources(ctx, q)
}

func (s *SQLiteStore) QueryResourcesRange(ctx context.Context, kind model.Kind, r Range) ([]model.CachedResource, error) {
	col, where, err := rangeClause(kind, r)
	if err != nil {
		return nil, err
	}
	q := sq.Select(resourceColumns...).From("resources").Where(where).OrderBy(col+" ASC", "id ASC")
	return s.queryResources(ctx, q)
}

func (s *SQLiteStore) ListResources(ctx context.Context, kind model.Kind) ([]model.CachedResource, error) {
	q := sq.Select(resourceColumns...).From("resources").
		Where(sq.Eq{"kind": string(kind)}).OrderBy("id ASC")
	return s.queryResources(ctx, q)
}

func (s *SQLiteStore) queryResources(ctx context.Context, q sq.SelectBuilder) ([]model.CachedResource, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []model.CachedResource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteResource(ctx context.Context, kind model.Kind, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete resource %s/%s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteResourcesWhere(ctx context.Context, kind model.Kind, r Range) (int64, error) {
	_, where, err := rangeClause(kind, r)
	if err != nil {
		return 0, err
	}
	query, args, err := sq.Delete("resources").Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete resources: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PruneResources(ctx context.Context, kind model.Kind, keep []string) ([]string, error) {
	where := sq.And{sq.Eq{"kind": string(kind)}}
	if len(keep) > 0 {
		where = append(where, sq.NotEq{"id": keep})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query, args, err := sq.Select("id").From("resources").Where(where).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stale resources: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err = sq.Delete("resources").Where(sq.Eq{"kind": string(kind), "id": ids}).ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("prune resources: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteStore) SetCacheFlags(ctx context.Context, kind model.Kind, id string, offline, full bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET offline_available = ?, fully_cached = ? WHERE kind = ? AND id = ?`,
		boolInt(offline), boolInt(full), string(kind), id)
	if err != nil {
		return fmt.Errorf("set cache flags %s/%s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %s/%s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func rangeClause(kind model.Kind, r Range) (string, sq.Sqlizer, error) {
	col, ok := resourceIndexColumns[r.Index]
	if !ok {
		return "", nil, fmt.Errorf("unknown index %q", r.Index)
	}
	where := sq.And{sq.Eq{"kind": string(kind)}}
	if r.From != nil {
		where = append(where, sq.GtOrEq{col: indexValue(r.From)})
	}
	if r.To != nil {
		where = append(where, sq.LtOrEq{col: indexValue(r.To)})
	}
	return col, where, nil
}

// indexValue converts Go values into their stored column representation.
func indexValue(v any) any {
	switch x := v.(type) {
	case bool:
		return boolInt(x)
	case time.Time:
		return formatTime(x)
	default:
		return v
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row scanner) (model.CachedResource, error) {
	var r model.CachedResource
	var kind, payload, synced string
	var offline, full int

	if err := row.Scan(&kind, &r.ID, &r.Status, &payload, &offline, &full, &synced); err != nil {
		return r, err
	}
	r.Kind = model.Kind(kind)
	r.Payload = []byte(payload)
	r.OfflineAvailable = offline != 0
	r.FullyCached = full != 0
	r.LastSynced = parseTime(synced)
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
