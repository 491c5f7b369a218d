package store

import (
	"context"
	"testing"

	"github.com/rcliao/polymath/internal/model"
)

func TestSearch_Basic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := article("go", model.StatusProcessed, "Go is a compiled language with goroutines")
	a.OfflineAvailable = true
	s.PutResource(ctx, a)
	s.PutResource(ctx, article("py", model.StatusProcessed, "Python is an interpreted language"))
	s.PutResource(ctx, model.CachedResource{ID: "p1", Kind: model.KindProject, Payload: []byte(`{"title":"language notes"}`)})

	results, err := s.Search(ctx, SearchParams{Query: "language"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	results, _ = s.Search(ctx, SearchParams{Query: "language", Kind: model.KindArticle})
	if len(results) != 2 {
		t.Fatalf("expected 2 article results, got %d", len(results))
	}

	results, _ = s.Search(ctx, SearchParams{Query: "language", OfflineOnly: true})
	if len(results) != 1 || results[0].ID != "go" {
		t.Fatalf("expected only offline article, got %v", ids(results))
	}

	results, _ = s.Search(ctx, SearchParams{Query: "javascript"})
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestConnectionsFor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutResource(ctx, model.CachedResource{ID: "e1", Kind: model.KindConnection,
		Payload: []byte(`{"source_id":"a","target_id":"b","type":"relates_to"}`)})
	s.PutResource(ctx, model.CachedResource{ID: "e2", Kind: model.KindConnection,
		Payload: []byte(`{"source_id":"c","target_id":"a","type":"inspired_by"}`)})
	s.PutResource(ctx, model.CachedResource{ID: "e3", Kind: model.KindConnection,
		Payload: []byte(`{"source_id":"b","target_id":"c","type":"relates_to"}`)})

	edges, err := s.ConnectionsFor(ctx, "a")
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(edges) != 2 || edges[0].ID != "e1" || edges[1].ID != "e2" {
		t.Fatalf("expected [e1 e2], got %v", ids(edges))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := article("a", model.StatusProcessed, "x")
	a.OfflineAvailable, a.FullyCached = true, true
	s.PutResource(ctx, a)
	s.PutResource(ctx, article("b", model.StatusProcessed, "y"))
	s.PutMedia(ctx, model.CachedMedia{ResourceID: "a", URL: "u", Data: []byte("1234")})
	s.AddCapture(ctx, model.PendingCapture{Body: "hi"})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalResources != 2 || st.MediaCount != 1 || st.MediaBytes != 4 || st.PendingCaptures != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if len(st.Kinds) != 1 || st.Kinds[0].Offline != 1 || st.Kinds[0].FullyCached != 1 {
		t.Errorf("unexpected kind stats %+v", st.Kinds)
	}
	if st.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, st.SchemaVersion)
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	src.PutResource(ctx, article("a", model.StatusProcessed, "x"))
	src.PutResource(ctx, model.CachedResource{ID: "p", Kind: model.KindProject, Payload: []byte(`{}`)})

	all, err := src.ExportAll(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("export: %v (%d)", err, len(all))
	}

	dst := newTestStore(t)
	n, err := dst.Import(ctx, all)
	if err != nil || n != 2 {
		t.Fatalf("import: %v (%d)", err, n)
	}
	got, _ := dst.ExportAll(ctx, model.KindArticle)
	if len(got) != 1 || got[0].Content() != "x" {
		t.Errorf("unexpected imported articles %+v", got)
	}
}

func TestSearch_WildcardsAreLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.PutResource(ctx, article("pct", model.StatusProcessed, "coverage reached 100% today"))
	s.PutResource(ctx, article("num", model.StatusProcessed, "coverage reached 1000 lines"))
	s.PutResource(ctx, article("snake", model.StatusProcessed, "call read_file first"))
	s.PutResource(ctx, article("plain", model.StatusProcessed, "call readxfile first"))

	results, err := s.Search(ctx, SearchParams{Query: "100%"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "pct" {
		t.Fatalf("expected only pct, got %v", ids(results))
	}

	results, _ = s.Search(ctx, SearchParams{Query: "read_file"})
	if len(results) != 1 || results[0].ID != "snake" {
		t.Fatalf("expected only snake, got %v", ids(results))
	}
}
