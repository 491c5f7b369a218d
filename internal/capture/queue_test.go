package capture

import (
	"context"
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

type fakeAPI struct {
	mu   sync.Mutex
	err  error
	sent []remote.Capture
}

func (f *fakeAPI) SubmitCapture(ctx context.Context, c remote.Capture) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, c)
	return nil
}

func TestOfflineCaptureIsQueuedThenFlushed(t *testing.T) {
	s := newTestStore(t)
	api := &fakeAPI{}
	online := connectivity.NewFlag(false)
	q := NewQueue(s, api, online, nil)
	ctx := context.Background()

	res, err := q.Submit(ctx, "", "remember the milk")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !res.Queued || res.Pending.Kind != DefaultKind {
		t.Fatalf("expected queued voice capture, got %+v", res)
	}
	if len(api.sent) != 0 {
		t.Fatal("offline submit reached the api")
	}
	pending, _ := s.PendingCaptures(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending capture, got %d", len(pending))
	}

	online.Set(true)
	flushed, err := q.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if flushed.Submitted != 1 || flushed.Failed != 0 {
		t.Errorf("unexpected flush result %+v", flushed)
	}
	pending, _ = s.PendingCaptures(ctx)
	if len(pending) != 0 {
		t.Errorf("expected pending collection empty, got %d", len(pending))
	}
	if len(api.sent) != 1 || api.sent[0].Body != "remember the milk" {
		t.Errorf("unexpected sent captures %+v", api.sent)
	}
}

func TestOnlineSubmitGoesDirect(t *testing.T) {
	s := newTestStore(t)
	api := &fakeAPI{}
	q := NewQueue(s, api, connectivity.Always{}, nil)

	res, err := q.Submit(context.Background(), "text", "hello")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if res.Queued {
		t.Error("online submit should not queue")
	}
	if pending, _ := s.PendingCaptures(context.Background()); len(pending) != 0 {
		t.Errorf("expected no pending captures, got %d", len(pending))
	}
}

func TestFailedSendQueuesAndRetries(t *testing.T) {
	s := newTestStore(t)
	api := &fakeAPI{err: errors.New("503")}
	q := NewQueue(s, api, connectivity.Always{}, nil)
	ctx := context.Background()

	res, err := q.Submit(ctx, "voice", "note")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !res.Queued {
		t.Fatal("expected capture to be queued after failed send")
	}

	flushed, err := q.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if flushed.Failed != 1 {
		t.Errorf("expected 1 failure, got %+v", flushed)
	}
	pending, _ := s.PendingCaptures(ctx)
	if len(pending) != 1 || pending[0].RetryCount != 1 || pending[0].LastError != "503" {
		t.Errorf("unexpected pending state %+v", pending)
	}
}

func TestFlushOfflineIsNoop(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddCapture(context.Background(), modelCapture("x")); err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{}
	q := NewQueue(s, api, connectivity.NewFlag(false), nil)
	res, err := q.Flush(context.Background())
	if err != nil || res.Submitted != 0 || len(api.sent) != 0 {
		t.Errorf("Flush offline = %+v, %v", res, err)
	}
}

func modelCapture(body string) model.PendingCapture {
	return model.PendingCapture{Body: body}
}
