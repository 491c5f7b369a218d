package contentcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/polymath/internal/broadcast"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newFakeFetcher(fail ...string) *fakeFetcher {
	f := &fakeFetcher{calls: map[string]int{}, fail: map[string]bool{}}
	for _, u := range fail {
		f.fail[u] = true
	}
	return f
}

func (f *fakeFetcher) FetchMedia(ctx context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fail[url] {
		return nil, "", errors.New("connection reset")
	}
	return []byte("img:" + url), "image/png", nil
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func articleWith(id, content string) model.CachedResource {
	payload, _ := json.Marshal(map[string]any{"id": id, "title": "Title " + id, "content": content})
	return model.CachedResource{ID: id, Kind: model.KindArticle, Status: model.StatusProcessed, Payload: payload}
}

func TestDownloadIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	m := New(s, f, Options{})
	ctx := context.Background()

	a := articleWith("a1", `<p><img src="https://cdn/x.png"><img src="https://cdn/y.png"></p>`)
	res, err := m.Download(ctx, a)
	if err != nil {
		t.Fatalf("first Download returned error: %v", err)
	}
	if !res.FullyCached || res.Fetched != 2 {
		t.Fatalf("unexpected first result %+v", res)
	}

	before := f.total()
	res, err = m.Download(ctx, a)
	if err != nil {
		t.Fatalf("second Download returned error: %v", err)
	}
	if f.total() != before {
		t.Errorf("second download fetched %d more times", f.total()-before)
	}
	if res.Fetched != 0 || !res.FullyCached {
		t.Errorf("unexpected second result %+v", res)
	}
}

func TestDownloadDedupsRepeatedImage(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	m := New(s, f, Options{})
	ctx := context.Background()

	u := "https://cdn/same.png"
	a := articleWith("a1", `<img src="`+u+`"><img src="`+u+`"><picture><source srcset="`+u+` 2x"></picture>`)
	if _, err := m.Download(ctx, a); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if f.calls[u] != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls[u])
	}
	media, err := s.MediaForResource(ctx, "a1")
	if err != nil {
		t.Fatalf("MediaForResource returned error: %v", err)
	}
	if len(media) != 1 {
		t.Errorf("expected 1 media record, got %d", len(media))
	}
}

func TestDownloadPartialFailure(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher("https://cdn/3.png")
	m := New(s, f, Options{})
	ctx := context.Background()

	a := articleWith("a1", `<img src="https://cdn/1.png"><img src="https://cdn/2.png">`+
		`<img src="https://cdn/3.png"><img src="https://cdn/4.png">`)
	res, err := m.Download(ctx, a)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "https://cdn/3.png" {
		t.Errorf("unexpected failed list %v", res.Failed)
	}

	contentCached, err := m.IsContentCached(ctx, model.KindArticle, "a1")
	if err != nil || !contentCached {
		t.Errorf("IsContentCached = %v, %v; want true", contentCached, err)
	}
	full, err := m.IsFullyCached(ctx, model.KindArticle, "a1")
	if err != nil || full {
		t.Errorf("IsFullyCached = %v, %v; want false", full, err)
	}

	delete(f.fail, "https://cdn/3.png")
	res, err = m.Download(ctx, a)
	if err != nil {
		t.Fatalf("retry Download returned error: %v", err)
	}
	if res.Fetched != 1 || !res.FullyCached {
		t.Errorf("retry fetched %d, fully cached %v", res.Fetched, res.FullyCached)
	}
}

func TestDownloadWithoutContentPersistsMetadataOnly(t *testing.T) {
	s := newTestStore(t)
	m := New(s, newFakeFetcher(), Options{})
	ctx := context.Background()

	a := articleWith("a1", "")
	a.Status = model.StatusProcessing
	res, err := m.Download(ctx, a)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if res.ContentCached {
		t.Error("expected no content cached")
	}
	got, err := s.GetResource(ctx, model.KindArticle, "a1")
	if err != nil {
		t.Fatalf("GetResource returned error: %v", err)
	}
	if got.OfflineAvailable || got.FullyCached {
		t.Errorf("unexpected flags %+v", got)
	}
}

func TestDownloadSkipsEphemeralURLs(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	m := New(s, f, Options{})

	a := articleWith("a1", `<img src="blob:https://app/123"><img src="data:image/png;base64,AAAA">`)
	res, err := m.Download(context.Background(), a)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if f.total() != 0 {
		t.Errorf("expected no fetches, got %d", f.total())
	}
	if !res.FullyCached {
		t.Error("expected resource with only ephemeral media to be fully cached")
	}
}

func TestDownloadPublishesContentCached(t *testing.T) {
	s := newTestStore(t)
	bus := broadcast.NewBus()
	events, cancel := bus.Subscribe(4)
	defer cancel()
	m := New(s, newFakeFetcher(), Options{Events: bus})

	if _, err := m.Download(context.Background(), articleWith("a1", "<p>text</p>")); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != broadcast.EventContentCached {
			t.Errorf("unexpected event type %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no content_cached event")
	}
}

func TestClearAndEvictStale(t *testing.T) {
	s := newTestStore(t)
	m := New(s, newFakeFetcher(), Options{})
	ctx := context.Background()

	old := articleWith("old", `<img src="https://cdn/o.png">`)
	old.LastSynced = time.Now().Add(-48 * time.Hour)
	fresh := articleWith("fresh", `<p>fresh</p>`)
	for _, a := range []model.CachedResource{old, fresh} {
		if _, err := m.Download(ctx, a); err != nil {
			t.Fatalf("Download(%s) returned error: %v", a.ID, err)
		}
	}

	cleared, err := m.EvictStale(ctx, model.KindArticle, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("EvictStale returned error: %v", err)
	}
	if len(cleared) != 1 || cleared[0] != "old" {
		t.Fatalf("expected [old] cleared, got %v", cleared)
	}

	got, err := s.GetResource(ctx, model.KindArticle, "old")
	if err != nil {
		t.Fatalf("GetResource returned error: %v", err)
	}
	if got.OfflineAvailable || got.Content() != "" || got.Title() != "Title old" {
		t.Errorf("unexpected cleared resource %+v", got)
	}
	if media, _ := s.MediaForResource(ctx, "old"); len(media) != 0 {
		t.Errorf("expected media removed, got %d", len(media))
	}
	if ok, _ := m.IsContentCached(ctx, model.KindArticle, "fresh"); !ok {
		t.Error("fresh article should stay cached")
	}
}

func TestCacheChecksOnMissingResource(t *testing.T) {
	m := New(newTestStore(t), newFakeFetcher(), Options{})
	ctx := context.Background()
	if ok, err := m.IsContentCached(ctx, model.KindArticle, "missing"); ok || err != nil {
		t.Errorf("IsContentCached = %v, %v", ok, err)
	}
	if ok, err := m.IsFullyCached(ctx, model.KindArticle, "missing"); ok || err != nil {
		t.Errorf("IsFullyCached = %v, %v", ok, err)
	}
}

func TestSharedImageSurvivesClearOfOtherResource(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	m := New(s, f, Options{})
	ctx := context.Background()

	u := "https://cdn/shared.png"
	for _, id := range []string{"a", "b"} {
		res, err := m.Download(ctx, articleWith(id, `<img src="`+u+`">`))
		if err != nil {
			t.Fatalf("Download(%s) returned error: %v", id, err)
		}
		if !res.FullyCached {
			t.Fatalf("Download(%s) not fully cached: %+v", id, res)
		}
	}
	if f.calls[u] != 1 {
		t.Errorf("expected 1 fetch for shared image, got %d", f.calls[u])
	}

	if err := m.Clear(ctx, model.KindArticle, "a"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	if ok, _ := m.IsFullyCached(ctx, model.KindArticle, "b"); !ok {
		t.Fatal("b should stay fully cached")
	}
	media, err := s.MediaForResource(ctx, "b")
	if err != nil {
		t.Fatalf("MediaForResource returned error: %v", err)
	}
	if len(media) != 1 || string(media[0].Data) != "img:"+u {
		t.Errorf("expected b to own a copy of the image, got %+v", media)
	}
	if _, err := s.GetMedia(ctx, u); err != nil {
		t.Errorf("GetMedia after clearing a returned error: %v", err)
	}
}

type listScanner []string

func (l listScanner) MediaRefs(string) ([]string, error) { return l, nil }

func TestDownloadCountsEphemeralAndCachedAsSkipped(t *testing.T) {
	s := newTestStore(t)
	f := newFakeFetcher()
	ctx := context.Background()

	var refs listScanner
	for i := 0; i < 8; i++ {
		refs = append(refs, fmt.Sprintf("blob:https://app/%d", i), fmt.Sprintf("https://cdn/%d.png", i))
	}
	m := New(s, f, Options{Scanner: refs, Concurrency: 4})
	if _, err := m.Download(ctx, articleWith("a1", "<p>body</p>")); err != nil {
		t.Fatalf("first Download returned error: %v", err)
	}

	res, err := m.Download(ctx, articleWith("a1", "<p>body</p>"))
	if err != nil {
		t.Fatalf("second Download returned error: %v", err)
	}
	if res.Skipped != len(refs) || res.Fetched != 0 || !res.FullyCached {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDownloadWithoutFetcherReportsFailure(t *testing.T) {
	m := New(newTestStore(t), nil, Options{})
	res, err := m.Download(context.Background(), articleWith("a1", `<img src="https://cdn/x.png">`))
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if res.FullyCached || len(res.Failed) != 1 || !res.ContentCached {
		t.Errorf("unexpected result %+v", res)
	}
}
