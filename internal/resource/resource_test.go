package resource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const sampleWTML = `<?xml version="1.0" encoding="utf-8"?>
<Folder Name="Sample" Group="Explorer">
  <Place Name="Andromeda Galaxy" DataSetType="Sky" RA="0.712305" Dec="41.268749" ZoomLevel="6" Constellation="AND"/>
  <Place Name="Broken" DataSetType="Sky" RA="n/a" Dec="10"/>
  <ImageSet Name="DSS" DataSetType="Sky" BandPass="Visible" Url="http://example.invalid/dss/{1}/{3}/{3}_{2}.png">
    <ThumbnailUrl> http://example.invalid/dss.jpg </ThumbnailUrl>
  </ImageSet>
  <Folder Name="Messier">
    <Place Name="M42" DataSetType="Sky" RA="5.588" Dec="-5.39" ZoomLevel="1.2"/>
    <Folder Name="Deep">
      <Place Name="M1" DataSetType="Sky" RA="5.575" Dec="22.0145"/>
    </Folder>
  </Folder>
</Folder>`

func TestParseWTML(t *testing.T) {
	cat, skipped, err := ParseWTML([]byte(sampleWTML))
	if err != nil {
		t.Fatalf("ParseWTML: %v", err)
	}

	if cat.Name != "Sample" {
		t.Errorf("name = %q, want Sample", cat.Name)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(cat.Places) != 3 {
		t.Fatalf("places = %d, want 3", len(cat.Places))
	}

	names := []string{cat.Places[0].Name, cat.Places[1].Name, cat.Places[2].Name}
	if names[0] != "Andromeda Galaxy" || names[1] != "M42" || names[2] != "M1" {
		t.Errorf("place order = %v", names)
	}

	m31 := cat.Places[0]
	if m31.RA != 0.712305 || m31.Dec != 41.268749 || m31.ZoomLevel != 6 || m31.Constellation != "AND" {
		t.Errorf("M31 = %+v", m31)
	}
	if cat.Places[2].ZoomLevel != 0 {
		t.Errorf("missing zoom should be 0, got %v", cat.Places[2].ZoomLevel)
	}

	if len(cat.ImageSets) != 1 {
		t.Fatalf("image sets = %d, want 1", len(cat.ImageSets))
	}
	if cat.ImageSets[0].ThumbnailURL != "http://example.invalid/dss.jpg" {
		t.Errorf("thumbnail = %q", cat.ImageSets[0].ThumbnailURL)
	}
	if cat.ImageSets[0].BandPass != "Visible" {
		t.Errorf("band pass = %q", cat.ImageSets[0].BandPass)
	}
}

func TestParseWTMLRejectsGarbage(t *testing.T) {
	if _, _, err := ParseWTML([]byte("not xml at all <")); err == nil {
		t.Error("expected error for malformed WTML")
	}
}

func TestFindPlace(t *testing.T) {
	cat, _, err := ParseWTML([]byte(sampleWTML))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := cat.FindPlace("m42")
	if !ok || p.Name != "M42" {
		t.Errorf("FindPlace(m42) = %+v, %v", p, ok)
	}
	if _, ok := cat.FindPlace("M31"); ok {
		t.Error("FindPlace(M31) should miss")
	}
	var nilCat *Catalog
	if _, ok := nilCat.FindPlace("M42"); ok {
		t.Error("nil catalog should miss")
	}
}

// TestFetcherBodyLimit verifies that responses exceeding the 50 MB limit
// return an error instead of consuming unbounded memory.
func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := strings.Repeat("A", 1024*1024)
		for i := 0; i < 52; i++ {
			if _, err := w.Write([]byte(chunk)); err != nil {
				return // Client closed connection.
			}
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger)
	_, err := fetcher.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

func TestFetcherStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want status 503 error", err)
	}
}

func TestFetcherDefaultURL(t *testing.T) {
	if got := NewFetcher("", testLogger).SourceURL(); got != DefaultCatalogURL {
		t.Errorf("SourceURL = %q, want default", got)
	}
}

func TestCacheRoundTripAndPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Unix(1770000000, 0)
	for i := 0; i < 4; i++ {
		cat := &Catalog{Name: "gen", Places: []Place{{Name: "P", RA: float64(i)}}}
		if err := c.Write(cat, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("files after prune = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json.zst") {
			t.Errorf("unexpected file %s", e.Name())
		}
	}

	cat, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if !ts.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("ts = %v, want newest", ts)
	}
	if len(cat.Places) != 1 || cat.Places[0].RA != 3 {
		t.Errorf("latest catalog = %+v", cat)
	}
}

func TestCacheFilesAreCompressed(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 1)
	if err := c.Write(&Catalog{Name: strings.Repeat("x", 4096)}, time.Unix(1, 0)); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, "catalog_1.json.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= 4096 {
		t.Errorf("cache file is %d bytes, expected compression", info.Size())
	}
}

func TestCacheEmptyDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 0)
	if _, _, err := c.LoadLatest(); err == nil {
		t.Error("expected error for empty cache")
	}
}

func TestLoaderFetchesAndCaches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, sampleWTML)
	}))
	defer server.Close()

	dir := t.TempDir()
	store := NewStore()
	l := NewLoader(Config{EnableFetch: true, SourceURLs: []string{server.URL, server.URL}, CacheDir: dir}, store, testLogger)

	cat, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Source != "network" {
		t.Errorf("source = %q, want network", cat.Source)
	}
	if len(cat.Places) != 6 {
		t.Errorf("merged places = %d, want 6", len(cat.Places))
	}
	if store.Get() != cat {
		t.Error("catalog not published to store")
	}
	if store.AgeSeconds() < 0 {
		t.Error("store age should be non-negative")
	}

	if _, _, err := NewCache(dir, 5).LoadLatest(); err != nil {
		t.Errorf("cache not written: %v", err)
	}
}

func TestLoaderFallsBackToCache(t *testing.T) {
	dir := t.TempDir()
	if err := NewCache(dir, 5).Write(&Catalog{Name: "cached", Places: []Place{{Name: "Vega", RA: 18.6, Dec: 38.8}}}, time.Unix(1770000000, 0)); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	l := NewLoader(Config{EnableFetch: true, SourceURLs: []string{server.URL}, CacheDir: dir}, NewStore(), testLogger)
	cat, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Source != "cache" || len(cat.Places) != 1 || cat.Places[0].Name != "Vega" {
		t.Errorf("catalog = %+v", cat)
	}
}

func TestLoaderNoCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	l := NewLoader(Config{EnableFetch: true, SourceURLs: []string{server.URL}}, NewStore(), testLogger)
	_, err := l.Load(context.Background())
	if !errors.Is(err, ErrNoCatalog) {
		t.Errorf("err = %v, want ErrNoCatalog", err)
	}
}

func TestLoaderOfflineEmpty(t *testing.T) {
	l := NewLoader(Config{EnableFetch: false, CacheDir: t.TempDir()}, NewStore(), testLogger)
	cat, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cat.Source != "empty" || len(cat.Places) != 0 {
		t.Errorf("catalog = %+v, want empty", cat)
	}
}

func TestLoaderReusesFreshCatalog(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, sampleWTML)
	}))
	defer server.Close()

	l := NewLoader(Config{EnableFetch: true, SourceURLs: []string{server.URL}, MaxAge: time.Hour}, NewStore(), testLogger)
	first, err := l.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("expected the fresh catalog to be reused")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func loadDurationSum(t *testing.T) (float64, uint64) {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "wwt_resource_load_duration_seconds" {
			h := mf.GetMetric()[0].GetHistogram()
			return h.GetSampleSum(), h.GetSampleCount()
		}
	}
	return 0, 0
}

func TestLoaderDurationUsesInjectedClock(t *testing.T) {
	t0 := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	l := NewLoader(Config{EnableFetch: false}, NewStore(), testLogger)
	l.now = func() time.Time {
		if calls.Add(1) == 1 {
			return t0
		}
		return t0.Add(3 * time.Second)
	}

	sum0, n0 := loadDurationSum(t)
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	sum1, n1 := loadDurationSum(t)
	if n1 != n0+1 {
		t.Fatalf("observations = %d, want %d", n1, n0+1)
	}
	if d := sum1 - sum0; d < 2.999 || d > 3.001 {
		t.Errorf("observed %vs, want 3s from the injected clock", d)
	}
}
