// Package reader opens a single resource from cache and revalidates it
// against the remote API in the background.
package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/polymath/internal/connectivity"
	"github.com/rcliao/polymath/internal/merge"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

// ErrUnavailableOffline is returned when nothing usable is cached and the
// remote API cannot be reached.
var ErrUnavailableOffline = errors.New("resource not cached and offline")

const revalidateTimeout = 30 * time.Second

// Source tells where the returned copy came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)

// Store is the subset of store.Store the reader needs.
type Store interface {
	GetResource(ctx context.Context, kind model.Kind, id string) (*model.CachedResource, error)
	PutResource(ctx context.Context, r model.CachedResource) error
}

// Fetcher loads one resource from the remote API.
type Fetcher interface {
	Get(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error)
}

// Reader implements the stale-while-revalidate read path.
type Reader struct {
	store  Store
	remote Fetcher
	online connectivity.Signal
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Reader.
func New(st Store, api Fetcher, online connectivity.Signal, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		store:  st,
		remote: api,
		online: online,
		logger: logger.With("component", "reader"),
	}
}

// Opened is the result of Open.
type Opened struct {
	Resource model.CachedResource
	Source   Source
	// Revalidating is true when a background refresh was started.
	Revalidating bool
}

// Open returns the cached copy immediately when one is usable and, if online,
// refreshes it in the background. onFresh, when non-nil, is called with the
// merged record if the refresh changed it. Without a usable cache the remote
// copy is fetched in the foreground.
func (r *Reader) Open(ctx context.Context, kind model.Kind, id string, onFresh func(model.CachedResource)) (*Opened, error) {
	cached, err := r.store.GetResource(ctx, kind, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("read cache", "kind", kind, "id", id, "error", err)
		}
		cached = nil
	}

	if cached != nil && usable(*cached) {
		opened := &Opened{Resource: *cached, Source: SourceCache}
		if !r.online.Online() {
			return opened, nil
		}
		opened.Revalidating = true
		r.wg.Add(1)
		go func(base model.CachedResource) {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
			defer cancel()
			r.revalidate(ctx, base, onFresh)
		}(*cached)
		return opened, nil
	}

	if !r.online.Online() {
		return nil, fmt.Errorf("%s/%s: %w", kind, id, ErrUnavailableOffline)
	}

	payload, err := r.remote.Get(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", kind, id, err)
	}
	base := model.CachedResource{ID: id, Kind: kind}
	if cached != nil {
		base = *cached
	}
	fresh, err := mergeInto(base, payload)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutResource(ctx, fresh); err != nil {
		r.logger.Warn("cache fetched resource", "kind", kind, "id", id, "error", err)
	}
	return &Opened{Resource: fresh, Source: SourceRemote}, nil
}

// Wait blocks until background revalidations finish.
func (r *Reader) Wait() {
	r.wg.Wait()
}

func (r *Reader) revalidate(ctx context.Context, cached model.CachedResource, onFresh func(model.CachedResource)) {
	payload, err := r.remote.Get(ctx, cached.Kind, cached.ID)
	if err != nil {
		r.logger.Debug("revalidate failed, keeping cached copy", "kind", cached.Kind, "id", cached.ID, "error", err)
		return
	}
	fresh, err := mergeInto(cached, payload)
	if err != nil {
		r.logger.Warn("merge remote copy", "kind", cached.Kind, "id", cached.ID, "error", err)
		return
	}
	if err := r.store.PutResource(ctx, fresh); err != nil {
		r.logger.Warn("store revalidated copy", "kind", cached.Kind, "id", cached.ID, "error", err)
	}
	if onFresh != nil && !samePayload(fresh.Payload, cached.Payload) {
		onFresh(fresh)
	}
}

// usable reports whether a cached record can be shown without the network.
// Articles need their content body; other kinds are complete as metadata.
func usable(r model.CachedResource) bool {
	if r.Kind == model.KindArticle {
		return r.OfflineAvailable && r.Content() != ""
	}
	return len(r.Payload) > 0
}

// mergeInto merges a remote payload over base and refreshes derived columns.
func mergeInto(base model.CachedResource, remote json.RawMessage) (model.CachedResource, error) {
	payload, err := merge.Payloads(base.Payload, remote)
	if err != nil {
		return base, fmt.Errorf("merge %s/%s: %w", base.Kind, base.ID, err)
	}
	fresh := base
	fresh.Payload = payload
	if status := model.PayloadString(payload, "status"); status != "" {
		fresh.Status = status
	}
	if fresh.Content() != "" {
		fresh.OfflineAvailable = true
	}
	if fresh.Content() != base.Content() {
		fresh.FullyCached = false
	}
	fresh.LastSynced = time.Now()
	return fresh, nil
}

func samePayload(a, b json.RawMessage) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return bytes.Equal(a, b)
	}
	ca, _ := json.Marshal(va)
	cb, _ := json.Marshal(vb)
	return bytes.Equal(ca, cb)
}
