package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string      `json:"db_path"`
	DBSizeBytes     int64       `json:"db_size_bytes"`
	SchemaVersion   int         `json:"schema_version"`
	TotalResources  int         `json:"total_resources"`
	MediaCount      int         `json:"media_count"`
	MediaBytes      int64       `json:"media_bytes"`
	PendingCaptures int         `json:"pending_captures"`
	Kinds           []KindStats `json:"kinds"`
}

// KindStats holds per-kind counts.
type KindStats struct {
	Kind        string `json:"kind"`
	Count       int    `json:"count"`
	Offline     int    `json:"offline"`
	FullyCached int    `json:"fully_cached"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	st.SchemaVersion, _ = s.Version(ctx)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&st.TotalResources)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM media`).Scan(&st.MediaCount, &st.MediaBytes)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_captures WHERE synced = 0`).Scan(&st.PendingCaptures)

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), SUM(offline_available), SUM(fully_cached)
		FROM resources GROUP BY kind ORDER BY kind`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ks KindStats
		rows.Scan(&ks.Kind, &ks.Count, &ks.Offline, &ks.FullyCached)
		st.Kinds = append(st.Kinds, ks)
	}

	return st, rows.Err()
}
