package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// fakeEmbedder returns a fixed-dimension vector per input text and records
// the input type it was called with.
type fakeEmbedder struct {
	mu        sync.Mutex
	lastInput rag.InputType
	calls     int
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, input rag.InputType) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

// fakeVectorStore records upserted points and serves configured content hashes.
type fakeVectorStore struct {
	mu       sync.Mutex
	points   []rag.Point
	hashes   map[string]string
	upserts  int
	hashErr  error
	upsertFn func([]rag.Point) error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{hashes: make(map[string]string)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, points []rag.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertFn != nil {
		if err := f.upsertFn(points); err != nil {
			return err
		}
	}
	f.upserts++
	f.points = append(f.points, points...)
	for _, p := range points {
		f.hashes[p.SourceURL] = p.ContentHash
	}
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int, float32, rag.Filter) ([]rag.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) SourceContentHash(_ context.Context, sourceURL string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashErr != nil {
		return "", false, f.hashErr
	}
	h, ok := f.hashes[sourceURL]
	return h, ok, nil
}

func (f *fakeVectorStore) Stats(context.Context) (rag.CollectionStats, error) {
	return rag.CollectionStats{}, nil
}

func (f *fakeVectorStore) SamplePayloads(context.Context, int) ([]rag.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) Delete(context.Context, []string) error { return nil }
func (f *fakeVectorStore) Close() error                           { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, baseURL string, store *fakeVectorStore, emb *fakeEmbedder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(emb, store, &Config{BaseURL: baseURL}, discardLogger())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	store := newFakeVectorStore()
	emb := &fakeEmbedder{}

	if _, err := NewPipeline(nil, store, &Config{BaseURL: "https://site"}, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(emb, nil, &Config{BaseURL: "https://site"}, nil); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewPipeline(emb, store, &Config{}, nil); err == nil {
		t.Error("expected error for empty base URL")
	}

	p, err := NewPipeline(emb, store, &Config{BaseURL: "https://site"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.cfg.ChunkSize != defaultChunkSize || p.cfg.ChunkOverlap != defaultChunkOverlap {
		t.Errorf("defaults not applied: size=%d overlap=%d", p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	}
}

func TestIngestAll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	store := newFakeVectorStore()
	emb := &fakeEmbedder{}
	p := newTestPipeline(t, srv.URL, store, emb)

	pageURL := srv.URL + "/docs/module1-ros2-fundamentals/chapter1-ros2-basics"
	report := p.IngestAll(context.Background(), []string{pageURL})

	if report.URLsProcessed != 1 || report.URLsFailed != 0 || report.URLsSkipped != 0 {
		t.Fatalf("report = %+v, want one processed URL", report)
	}
	if report.VectorsStored == 0 || report.VectorsStored != len(store.points) {
		t.Fatalf("vectors stored = %d, points recorded = %d", report.VectorsStored, len(store.points))
	}
	if emb.lastInput != rag.InputDocument {
		t.Errorf("embed input type = %q, want %q", emb.lastInput, rag.InputDocument)
	}

	first := store.points[0]
	if first.ID != chunkID(pageURL, 0) {
		t.Errorf("point ID = %q, want deterministic chunk ID", first.ID)
	}
	if first.SourceURL != pageURL {
		t.Errorf("source URL = %q, want %q", first.SourceURL, pageURL)
	}
	if first.Title != "Chapter 1: ROS2 Basics" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Section != "module1-ros2-fundamentals" {
		t.Errorf("section = %q", first.Section)
	}
	if first.ContentHash == "" {
		t.Error("content hash not set on points")
	}
}

func TestIngestAllSkipsUnchanged(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	store := newFakeVectorStore()
	emb := &fakeEmbedder{}
	p := newTestPipeline(t, srv.URL, store, emb)

	pageURL := srv.URL + "/docs/introduction/"

	first := p.IngestAll(context.Background(), []string{pageURL})
	if first.URLsProcessed != 1 {
		t.Fatalf("first run: %+v", first)
	}
	upsertsAfterFirst := store.upserts

	second := p.IngestAll(context.Background(), []string{pageURL})
	if second.URLsSkipped != 1 || second.URLsProcessed != 0 {
		t.Fatalf("second run should skip unchanged page: %+v", second)
	}
	if store.upserts != upsertsAfterFirst {
		t.Error("unchanged page must not be re-upserted")
	}
}

func TestIngestAllContinuesPastFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/docs/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	store := newFakeVectorStore()
	p := newTestPipeline(t, srv.URL, store, &fakeEmbedder{})

	report := p.IngestAll(context.Background(), []string{
		srv.URL + "/docs/broken",
		srv.URL + "/docs/introduction/",
	})

	if report.URLsFailed != 1 || report.URLsProcessed != 1 {
		t.Fatalf("report = %+v, want 1 failed and 1 processed", report)
	}
	if len(report.FailedURLs) != 1 || report.FailedURLs[0].URL != srv.URL+"/docs/broken" {
		t.Errorf("failed URLs = %+v", report.FailedURLs)
	}
}

func TestIngestAllHashLookupFailureReingests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	store := newFakeVectorStore()
	store.hashErr = fmt.Errorf("qdrant unavailable")
	p := newTestPipeline(t, srv.URL, store, &fakeEmbedder{})

	report := p.IngestAll(context.Background(), []string{srv.URL + "/docs/introduction/"})
	if report.URLsProcessed != 1 {
		t.Fatalf("hash lookup failure must not block ingestion: %+v", report)
	}
}
