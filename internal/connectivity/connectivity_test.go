package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFlagSet(t *testing.T) {
	f := NewFlag(true)
	if !f.Online() || !f.Visible() {
		t.Fatal("expected initial true")
	}
	if f.Set(true) {
		t.Error("Set(true) on true flag reported a change")
	}
	if !f.Set(false) {
		t.Error("Set(false) on true flag did not report a change")
	}
	if f.Online() {
		t.Error("expected offline after Set(false)")
	}
}

func TestProberCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	flag := NewFlag(false)
	p := &Prober{URL: srv.URL, Flag: flag}
	if !p.Check(context.Background()) || !flag.Online() {
		t.Fatal("expected online while server responds")
	}

	srv.Close()
	if p.Check(context.Background()) || flag.Online() {
		t.Fatal("expected offline after server closed")
	}
}
