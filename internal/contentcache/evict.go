package contentcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

// EvictStale clears offline content for resources of kind last synced
// before cutoff. It returns the ids that were cleared.
func (m *Manager) EvictStale(ctx context.Context, kind model.Kind, cutoff time.Time) ([]string, error) {
	stale, err := m.store.QueryResourcesRange(ctx, kind, store.Range{
		Index: store.IndexLastSynced,
		To:    cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("find stale %s: %w", kind, err)
	}

	var cleared []string
	for _, r := range stale {
		if !r.OfflineAvailable || !r.LastSynced.Before(cutoff) {
			continue
		}
		if err := m.Clear(ctx, kind, r.ID); err != nil {
			m.logger.Warn("evict resource", "resource", r.ID, "error", err)
			continue
		}
		cleared = append(cleared, r.ID)
	}
	if len(cleared) > 0 {
		m.logger.Info("evicted stale content", "kind", kind, "count", len(cleared))
	}
	return cleared, nil
}

// stripContent removes the content body from a payload.
func stripContent(payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		return payload, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	delete(fields, "content")
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}
