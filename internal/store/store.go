// Package store provides the local persistent store interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/polymath/internal/model"
)

// ErrNotFound is returned when a keyed record is absent.
var ErrNotFound = errors.New("not found")

// Index names a secondary lookup index on the resources collection.
type Index string

const (
	IndexStatus           Index = "status"
	IndexLastSynced       Index = "last_synced"
	IndexOfflineAvailable Index = "offline_available"
	IndexFullyCached      Index = "fully_cached"
)

// Range selects records whose index value lies within [From, To].
// A nil bound is open.
type Range struct {
	Index Index
	From  any
	To    any
}

// Store defines the local table store contract. Every operation is fallible;
// callers in background paths log and continue.
type Store interface {
	// PutResource upserts a resource by (kind, id).
	PutResource(ctx context.Context, r model.CachedResource) error

	// BulkPutResources upserts many resources in one transaction.
	BulkPutResources(ctx context.Context, rs []model.CachedResource) error

	// GetResource returns ErrNotFound when the resource is absent.
	GetResource(ctx context.Context, kind model.Kind, id string) (*model.CachedResource, error)

	// QueryResources returns resources whose index equals value, ordered by
	// the index ascending.
	QueryResources(ctx context.Context, kind model.Kind, idx Index, value any) ([]model.CachedResource, error)

	// QueryResourcesRange returns resources whose index lies in r, ordered by
	// the index ascending.
	QueryResourcesRange(ctx context.Context, kind model.Kind, r Range) ([]model.CachedResource, error)

	// ListResources returns every resource of a kind ordered by id.
	ListResources(ctx context.Context, kind model.Kind) ([]model.CachedResource, error)

	DeleteResource(ctx context.Context, kind model.Kind, id string) error
	DeleteResourcesWhere(ctx context.Context, kind model.Kind, r Range) (int64, error)

	// PruneResources deletes resources of kind whose id is not in keep and
	// returns the deleted ids.
	PruneResources(ctx context.Context, kind model.Kind, keep []string) ([]string, error)

	// SetCacheFlags updates the offline-available and fully-cached flags.
	SetCacheFlags(ctx context.Context, kind model.Kind, id string, offline, full bool) error

	PutMedia(ctx context.Context, m model.CachedMedia) error
	HasMedia(ctx context.Context, url string) (bool, error)
	GetMedia(ctx context.Context, url string) (*model.CachedMedia, error)
	MediaForResource(ctx context.Context, resourceID string) ([]model.CachedMedia, error)
	DeleteMediaForResource(ctx context.Context, resourceID string) (int64, error)

	// SaveProgress upserts the single live progress row for a resource.
	SaveProgress(ctx context.Context, p model.ReadingProgress) error
	GetProgress(ctx context.Context, resourceID string) (*model.ReadingProgress, error)
	DeleteProgress(ctx context.Context, resourceID string) error

	AddCapture(ctx context.Context, c model.PendingCapture) (*model.PendingCapture, error)
	PendingCaptures(ctx context.Context) ([]model.PendingCapture, error)
	RecordCaptureFailure(ctx context.Context, id int64, reason string) error
	DeleteCapture(ctx context.Context, id int64) error

	PutSnapshot(ctx context.Context, s model.Snapshot) error
	GetSnapshot(ctx context.Context, name string) (*model.Snapshot, error)

	SetSyncTime(ctx context.Context, key string, t time.Time) error
	SyncTime(ctx context.Context, key string) (time.Time, error)

	// Close closes the store.
	Close() error
}
