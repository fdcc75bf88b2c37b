package files

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestProbe_LocalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewAccessProber(2000)
	if err := p.Probe(context.Background(), Reference{Path: path}); err != nil {
		t.Errorf("existing local file must probe clean: %v", err)
	}
	if err := p.Probe(context.Background(), Reference{Path: filepath.Join(dir, "missing.pdf")}); err == nil {
		t.Error("missing local file must fail the probe")
	}
}

func TestProbe_LocalPathInURLField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Callers routinely supply an on-disk path through the URL field.
	p := NewAccessProber(2000)
	if err := p.Probe(context.Background(), Reference{URL: path}); err != nil {
		t.Errorf("local path in URL field must stat, not HEAD: %v", err)
	}
	if err := p.Probe(context.Background(), Reference{URL: filepath.Join(dir, "missing.pdf")}); err == nil {
		t.Error("missing local file in URL field must fail the probe")
	}
}

func TestProbe_RemoteHead(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewAccessProber(2000)
	if err := p.Probe(context.Background(), Reference{URL: srv.URL + "/f1.pdf"}); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if method != http.MethodHead {
		t.Errorf("method = %q, want HEAD", method)
	}
}

func TestProbe_RemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewAccessProber(2000)
	if err := p.Probe(context.Background(), Reference{URL: srv.URL + "/f1.pdf"}); err == nil {
		t.Error("4xx response must fail the probe")
	}
}

func TestProbe_HTTPPathFallsBackToHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// A Path that is itself a URL must not be handed to os.Stat.
	p := NewAccessProber(2000)
	if err := p.Probe(context.Background(), Reference{Path: srv.URL + "/f1.pdf"}); err != nil {
		t.Errorf("Probe: %v", err)
	}
}
