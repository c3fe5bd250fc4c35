package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"rollscan/internal/fetch"
	"rollscan/internal/layout"
	"rollscan/internal/services"
)

func newLayout(t *testing.T) layout.Layout {
	t.Helper()
	lay := layout.New(t.TempDir())
	if err := lay.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return lay
}

func TestEnsureImageDownloadsAndCaches(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("tiff-bytes"))
	}))
	defer server.Close()

	lay := newLayout(t)
	d := fetch.New(lay, nil)

	path, err := d.EnsureImage(context.Background(), "hk155fw7898", server.URL+"/hk155fw7898_gr.tiff", false)
	if err != nil {
		t.Fatalf("EnsureImage: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(data) != "tiff-bytes" {
		t.Fatalf("image contents = %q", data)
	}

	if _, err := d.EnsureImage(context.Background(), "hk155fw7898", server.URL+"/hk155fw7898_gr.tiff", false); err != nil {
		t.Fatalf("EnsureImage cached: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cache hit, got %d downloads", hits.Load())
	}

	if _, err := d.EnsureImage(context.Background(), "hk155fw7898", server.URL+"/hk155fw7898_gr.tiff", true); err != nil {
		t.Fatalf("EnsureImage redownload: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected redownload, got %d downloads", hits.Load())
	}
}

func TestEnsureImageRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("tiff-bytes"))
	}))
	defer server.Close()

	lay := newLayout(t)
	d := fetch.New(lay, nil, fetch.WithRetry(3, time.Millisecond))

	if _, err := d.EnsureImage(context.Background(), "hk155fw7898", server.URL+"/img.tiff", false); err != nil {
		t.Fatalf("EnsureImage: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestEnsureImageDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	lay := newLayout(t)
	d := fetch.New(lay, nil, fetch.WithRetry(3, time.Millisecond))

	_, err := d.EnsureImage(context.Background(), "hk155fw7898", server.URL+"/img.tiff", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", hits.Load())
	}
}

func TestEnsureImageFailureLeavesNoArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	lay := newLayout(t)
	d := fetch.New(lay, nil, fetch.WithRetry(2, time.Millisecond))

	_, err := d.EnsureImage(context.Background(), "hk155fw7898", server.URL+"/img.tiff", false)
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	if lay.Complete("hk155fw7898", layout.KindImage) {
		t.Fatal("failed download must not leave an image artifact")
	}
}

func TestEnsureImageRequiresURLWhenNotCached(t *testing.T) {
	lay := newLayout(t)
	d := fetch.New(lay, nil)

	if _, err := d.EnsureImage(context.Background(), "hk155fw7898", "", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
