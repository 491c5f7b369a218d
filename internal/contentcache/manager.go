// Package contentcache makes a single resource readable without network,
// including every media asset its content references.
package contentcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/polymath/internal/broadcast"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/scanner"
	"github.com/rcliao/polymath/internal/store"
)

// DefaultConcurrency bounds parallel media downloads per resource.
const DefaultConcurrency = 4

// ErrNoContent reports that a resource carries no content body to cache.
var ErrNoContent = errors.New("resource has no content")

// ErrNoFetcher is returned for media that must be downloaded when the manager
// has no Fetcher.
var ErrNoFetcher = errors.New("no media fetcher configured")

// Store is the subset of store.Store the manager needs.
type Store interface {
	PutResource(ctx context.Context, r model.CachedResource) error
	GetResource(ctx context.Context, kind model.Kind, id string) (*model.CachedResource, error)
	SetCacheFlags(ctx context.Context, kind model.Kind, id string, offline, full bool) error
	GetMedia(ctx context.Context, url string) (*model.CachedMedia, error)
	PutMedia(ctx context.Context, m model.CachedMedia) error
	DeleteMediaForResource(ctx context.Context, resourceID string) (int64, error)
	QueryResourcesRange(ctx context.Context, kind model.Kind, r store.Range) ([]model.CachedResource, error)
}

// Fetcher downloads one media asset.
type Fetcher interface {
	FetchMedia(ctx context.Context, url string) ([]byte, string, error)
}

// Result describes the outcome of one Download call.
type Result struct {
	ResourceID  string   `json:"resource_id"`
	MediaRefs   int      `json:"media_refs"`
	Fetched     int      `json:"fetched"`
	Skipped     int      `json:"skipped"`
	Failed      []string `json:"failed,omitempty"`
	FullyCached bool     `json:"fully_cached"`
	// ContentCached is false only when the resource had no content body.
	ContentCached bool `json:"content_cached"`
}

// Manager downloads and tracks offline content.
type Manager struct {
	store       Store
	fetcher     Fetcher
	scanner     scanner.Scanner
	events      broadcast.Publisher
	logger      *slog.Logger
	concurrency int
}

// Options configures a Manager.
type Options struct {
	Scanner     scanner.Scanner
	Events      broadcast.Publisher
	Logger      *slog.Logger
	Concurrency int
}

// New creates a Manager.
func New(st Store, fetcher Fetcher, opts Options) *Manager {
	m := &Manager{
		store:       st,
		fetcher:     fetcher,
		scanner:     opts.Scanner,
		events:      opts.Events,
		logger:      opts.Logger,
		concurrency: opts.Concurrency,
	}
	if m.scanner == nil {
		m.scanner = scanner.NewHTMLScanner()
	}
	if m.events == nil {
		m.events = broadcast.Nop{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "contentcache")
	if m.concurrency <= 0 {
		m.concurrency = DefaultConcurrency
	}
	return m
}

// IsFullyCached reports whether content and every media reference are present.
func (m *Manager) IsFullyCached(ctx context.Context, kind model.Kind, id string) (bool, error) {
	r, err := m.store.GetResource(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.OfflineAvailable && r.FullyCached, nil
}

// IsContentCached reports whether the content text is present, regardless of
// media completeness.
func (m *Manager) IsContentCached(ctx context.Context, kind model.Kind, id string) (bool, error) {
	r, err := m.store.GetResource(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.OfflineAvailable, nil
}

// Download persists the resource content and then its media. Content is
// written before any media fetch begins. A failed media fetch leaves the
// resource readable but not fully cached; only store failures on the content
// write are returned as errors.
func (m *Manager) Download(ctx context.Context, r model.CachedResource) (*Result, error) {
	res := &Result{ResourceID: r.ID}
	content := r.Content()

	if content == "" {
		r.OfflineAvailable = false
		r.FullyCached = false
		if err := m.store.PutResource(ctx, r); err != nil {
			return nil, fmt.Errorf("persist metadata %s: %w", r.ID, err)
		}
		return res, nil
	}

	r.OfflineAvailable = true
	r.FullyCached = false
	if err := m.store.PutResource(ctx, r); err != nil {
		return nil, fmt.Errorf("persist content %s: %w", r.ID, err)
	}
	res.ContentCached = true
	m.publishCached(r)

	refs, err := m.scanner.MediaRefs(content)
	if err != nil {
		m.logger.Warn("scan media references", "resource", r.ID, "error", err)
		return res, nil
	}
	res.MediaRefs = len(refs)

	var (
		mu        sync.Mutex
		failed    []string
		ephemeral int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, u := range refs {
		if scanner.Ephemeral(u) {
			ephemeral++
			continue
		}
		g.Go(func() error {
			fetched, err := m.cacheMedia(gctx, r.ID, u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed = append(failed, u)
				m.logger.Debug("media download failed", "resource", r.ID, "url", u, "error", err)
			case fetched:
				res.Fetched++
			default:
				res.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Skipped += ephemeral
	res.Failed = failed
	if len(failed) > 0 {
		m.logger.Warn("media partially cached", "resource", r.ID, "failed", len(failed), "urls", failed)
		return res, nil
	}

	if err := m.store.SetCacheFlags(ctx, r.Kind, r.ID, true, true); err != nil {
		m.logger.Warn("mark fully cached", "resource", r.ID, "error", err)
		return res, nil
	}
	res.FullyCached = true
	return res, nil
}

// cacheMedia fetches one url unless it is already in the media cache. A copy
// cached under another resource is duplicated into a row owned by resourceID,
// so clearing that other resource leaves this one complete. It reports
// whether a network fetch happened.
func (m *Manager) cacheMedia(ctx context.Context, resourceID, u string) (bool, error) {
	existing, err := m.store.GetMedia(ctx, u)
	switch {
	case err == nil:
		if existing.ResourceID == resourceID {
			return false, nil
		}
		return false, m.store.PutMedia(ctx, model.CachedMedia{
			ResourceID:  resourceID,
			URL:         u,
			Data:        existing.Data,
			ContentType: existing.ContentType,
			CachedAt:    time.Now(),
		})
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}
	if m.fetcher == nil {
		return false, ErrNoFetcher
	}
	data, contentType, err := m.fetcher.FetchMedia(ctx, u)
	if err != nil {
		return false, err
	}
	err = m.store.PutMedia(ctx, model.CachedMedia{
		ResourceID:  resourceID,
		URL:         u,
		Data:        data,
		ContentType: contentType,
		CachedAt:    time.Now(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear drops cached media and content for a resource, keeping its metadata
// so a later sync can cache it again.
func (m *Manager) Clear(ctx context.Context, kind model.Kind, id string) error {
	r, err := m.store.GetResource(ctx, kind, id)
	if err != nil {
		return err
	}
	if _, err := m.store.DeleteMediaForResource(ctx, id); err != nil {
		return fmt.Errorf("delete media for %s: %w", id, err)
	}
	payload, err := stripContent(r.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	r.OfflineAvailable = false
	r.FullyCached = false
	if err := m.store.PutResource(ctx, *r); err != nil {
		return fmt.Errorf("clear %s: %w", id, err)
	}
	return nil
}

func (m *Manager) publishCached(r model.CachedResource) {
	data, err := json.Marshal(map[string]string{"kind": string(r.Kind), "id": r.ID})
	if err != nil {
		return
	}
	m.events.Publish(broadcast.Event{Type: broadcast.EventContentCached, Data: data})
}
