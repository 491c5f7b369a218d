package reader

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rcliao/polymath/internal/connectivity"
	"github.com/rcliao/polymath/internal/model"
	"github.com/rcliao/polymath/internal/remote"
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

type fakeRemote struct {
	mu       sync.Mutex
	payloads map[string]string
	calls    int
}

func (f *fakeRemote) Get(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.payloads[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return json.RawMessage(p), nil
}

func cacheArticle(t *testing.T, s *store.SQLiteStore, id, payload string) {
	t.Helper()
	err := s.PutResource(context.Background(), model.CachedResource{
		ID: id, Kind: model.KindArticle, Status: model.StatusProcessed,
		Payload: json.RawMessage(payload), OfflineAvailable: true, FullyCached: true,
	})
	if err != nil {
		t.Fatalf("PutResource returned error: %v", err)
	}
}

func TestRevalidationNeverErasesContent(t *testing.T) {
	s := newTestStore(t)
	cacheArticle(t, s, "a1", `{"id":"a1","title":"Old","content":"A"}`)
	api := &fakeRemote{payloads: map[string]string{
		"a1": `{"id":"a1","title":"New","content":null,"status":"processing"}`,
	}}
	r := New(s, api, connectivity.Always{}, nil)

	var fresh model.CachedResource
	opened, err := r.Open(context.Background(), model.KindArticle, "a1", func(res model.CachedResource) {
		fresh = res
	})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if opened.Source != SourceCache || !opened.Revalidating {
		t.Fatalf("expected cached copy with revalidation, got %+v", opened)
	}
	if opened.Resource.Content() != "A" {
		t.Errorf("expected cached content A, got %q", opened.Resource.Content())
	}
	r.Wait()

	if fresh.Title() != "New" || fresh.Content() != "A" {
		t.Errorf("unexpected fresh copy %s", fresh.Payload)
	}
	got, err := s.GetResource(context.Background(), model.KindArticle, "a1")
	if err != nil {
		t.Fatalf("GetResource returned error: %v", err)
	}
	if got.Content() != "A" || got.Title() != "New" {
		t.Errorf("stored payload %s", got.Payload)
	}
	if got.Status != model.StatusProcessing || !got.OfflineAvailable || !got.FullyCached {
		t.Errorf("unexpected stored flags %+v", got)
	}
}

func TestOfflineServesCacheWithoutNetwork(t *testing.T) {
	s := newTestStore(t)
	cacheArticle(t, s, "a1", `{"id":"a1","content":"A"}`)
	api := &fakeRemote{}
	r := New(s, api, connectivity.NewFlag(false), nil)

	opened, err := r.Open(context.Background(), model.KindArticle, "a1", nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	r.Wait()
	if opened.Revalidating || api.calls != 0 {
		t.Errorf("offline open touched the network: %+v calls=%d", opened, api.calls)
	}
}

func TestOfflineWithoutCacheFails(t *testing.T) {
	r := New(newTestStore(t), &fakeRemote{}, connectivity.NewFlag(false), nil)
	_, err := r.Open(context.Background(), model.KindArticle, "a1", nil)
	if !errors.Is(err, ErrUnavailableOffline) {
		t.Fatalf("expected ErrUnavailableOffline, got %v", err)
	}
}

func TestNoCacheFetchesAndStores(t *testing.T) {
	s := newTestStore(t)
	api := &fakeRemote{payloads: map[string]string{
		"p1": `{"id":"p1","title":"Project"}`,
	}}
	r := New(s, api, connectivity.Always{}, nil)

	opened, err := r.Open(context.Background(), model.KindProject, "p1", nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if opened.Source != SourceRemote || opened.Resource.Title() != "Project" {
		t.Errorf("unexpected open result %+v", opened)
	}
	got, err := s.GetResource(context.Background(), model.KindProject, "p1")
	if err != nil || got.Title() != "Project" {
		t.Errorf("GetResource = %+v, %v", got, err)
	}

	_, err = r.Open(context.Background(), model.KindProject, "missing", nil)
	if !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected remote.ErrNotFound, got %v", err)
	}
}

func TestMetadataOnlyArticleIsFetched(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutResource(context.Background(), model.CachedResource{
		ID: "a1", Kind: model.KindArticle, Status: model.StatusProcessing,
		Payload: json.RawMessage(`{"id":"a1","title":"Pending"}`),
	}); err != nil {
		t.Fatal(err)
	}
	api := &fakeRemote{payloads: map[string]string{
		"a1": `{"id":"a1","content":"<p>done</p>","status":"processed"}`,
	}}
	r := New(s, api, connectivity.Always{}, nil)

	opened, err := r.Open(context.Background(), model.KindArticle, "a1", nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	res := opened.Resource
	if opened.Source != SourceRemote || res.Title() != "Pending" || res.Content() != "<p>done</p>" {
		t.Errorf("unexpected merged result %s", res.Payload)
	}
	if !res.OfflineAvailable || res.Status != model.StatusProcessed {
		t.Errorf("unexpected flags %+v", res)
	}
}
