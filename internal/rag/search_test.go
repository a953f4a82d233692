package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"unicode/utf8"

	"github.com/roboverse/bookqa-go/internal/apperr"
)

// fakeEmbedder records calls and returns canned vectors or errors.
type fakeEmbedder struct {
	calls     int
	lastTexts []string
	lastInput InputType
	errs      []error // errs[i] returned on call i; nil past the end
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, input InputType) ([][]float32, error) {
	f.calls++
	f.lastTexts = texts
	f.lastInput = input
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeStore serves canned results and records the search parameters.
type fakeStore struct {
	results       []SearchResult
	err           error
	lastLimit     int
	lastThreshold float32
	lastFilter    Filter
}

func (f *fakeStore) Upsert(context.Context, []Point) error { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float32, limit int, threshold float32, filter Filter) ([]SearchResult, error) {
	f.lastLimit = limit
	f.lastThreshold = threshold
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeStore) SourceContentHash(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeStore) Stats(context.Context) (CollectionStats, error) {
	return CollectionStats{}, nil
}

func (f *fakeStore) SamplePayloads(context.Context, int) ([]SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Delete(context.Context, []string) error { return nil }
func (f *fakeStore) Close() error                           { return nil }

func newTestService(t *testing.T, e Embedder, vs VectorStore) *Service {
	t.Helper()
	svc, err := NewService(e, vs)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeEmbedder{}, &fakeStore{})

	for _, query := range []string{"", "   ", "\t\n"} {
		_, err := svc.Search(context.Background(), SearchRequest{Query: query, Limit: 5, ScoreThreshold: 0.5})
		if apperr.KindOf(err) != apperr.KindInvalidQuery {
			t.Errorf("query %q: kind = %v, want KindInvalidQuery", query, apperr.KindOf(err))
		}
		if apperr.CodeOf(err) != apperr.CodeEmptyQuery {
			t.Errorf("query %q: code = %q, want EMPTY_QUERY", query, apperr.CodeOf(err))
		}
	}
}

func TestSearchValidatesParameters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		limit     int
		threshold float32
		wantKind  apperr.Kind
	}{
		{"limit zero", 0, 0.5, apperr.KindInvalidParameter},
		{"limit negative", -1, 0.5, apperr.KindInvalidParameter},
		{"limit too large", 21, 0.5, apperr.KindInvalidParameter},
		{"threshold negative", 5, -0.1, apperr.KindInvalidParameter},
		{"threshold above one", 5, 1.5, apperr.KindInvalidParameter},
		{"limit at min", 1, 0.0, apperr.KindUnknown},
		{"limit at max", 20, 1.0, apperr.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := newTestService(t, &fakeEmbedder{}, &fakeStore{})
			_, err := svc.Search(context.Background(), SearchRequest{
				Query: "what is a humanoid robot", Limit: tc.limit, ScoreThreshold: tc.threshold,
			})
			if apperr.KindOf(err) != tc.wantKind {
				t.Fatalf("kind = %v, want %v (err=%v)", apperr.KindOf(err), tc.wantKind, err)
			}
		})
	}
}

func TestSearchTruncatesLongQuery(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	svc := newTestService(t, emb, &fakeStore{})

	long := strings.Repeat("q", MaxQueryChars+500)
	resp, err := svc.Search(context.Background(), SearchRequest{Query: long, Limit: 5, ScoreThreshold: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(emb.lastTexts) != 1 || len(emb.lastTexts[0]) != MaxQueryChars {
		t.Fatalf("embedded query length = %d, want %d", len(emb.lastTexts[0]), MaxQueryChars)
	}
	if len(resp.Query) != MaxQueryChars {
		t.Fatalf("response query length = %d, want %d", len(resp.Query), MaxQueryChars)
	}

	want := fmt.Sprintf("Query truncated from %d to %d characters", len(long), MaxQueryChars)
	if len(resp.Warnings) != 1 || resp.Warnings[0] != want {
		t.Fatalf("warnings = %v, want [%q]", resp.Warnings, want)
	}
}

func TestSearchTruncationKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	svc := newTestService(t, emb, &fakeStore{})

	// Three-byte runes never align with the cut point (MaxQueryChars is not
	// a multiple of three), so a byte-indexed slice would split one in half.
	long := strings.Repeat("界", MaxQueryChars/3+200)
	resp, err := svc.Search(context.Background(), SearchRequest{Query: long, Limit: 5, ScoreThreshold: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !utf8.ValidString(resp.Query) {
		t.Fatal("truncated query is not valid UTF-8")
	}
	if len(resp.Query) == 0 || len(resp.Query) > MaxQueryChars {
		t.Fatalf("truncated query length = %d, want 1..%d", len(resp.Query), MaxQueryChars)
	}
	if len(resp.Warnings) != 1 || !strings.HasPrefix(resp.Warnings[0], "Query truncated from") {
		t.Fatalf("warnings = %v, want one truncation warning", resp.Warnings)
	}
}

func TestSearchWarnsOnMissingMetadata(t *testing.T) {
	t.Parallel()

	store := &fakeStore{results: []SearchResult{
		{ChunkText: "complete", SourceURL: "/docs/a", Title: "A", Section: "module1", Score: 0.9},
		{ChunkText: "bare", Score: 0.7},
	}}
	svc := newTestService(t, &fakeEmbedder{}, store)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "metadata", Limit: 5, ScoreThreshold: 0.3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := "Result missing fields: source_url, title, section"
	if len(resp.Warnings) != 1 || resp.Warnings[0] != want {
		t.Fatalf("warnings = %v, want [%q]", resp.Warnings, want)
	}
	if resp.TotalResults != 2 {
		t.Fatalf("TotalResults = %d, want 2 (incomplete results are kept)", resp.TotalResults)
	}
}

func TestSearchCleanResultsCarryNoWarnings(t *testing.T) {
	t.Parallel()

	store := &fakeStore{results: []SearchResult{
		{ChunkText: "a", SourceURL: "/docs/a", Title: "A", Section: "module1", Score: 0.9},
	}}
	svc := newTestService(t, &fakeEmbedder{}, store)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "clean", Limit: 5, ScoreThreshold: 0.3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Warnings == nil || len(resp.Warnings) != 0 {
		t.Fatalf("warnings = %#v, want empty non-nil slice", resp.Warnings)
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "abc", 10, "abc"},
		{"exact max", "abcd", 4, "abcd"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"cut mid rune", "ab界cd", 4, "ab"},
		{"cut on rune boundary", "ab界cd", 5, "ab界"},
		{"all multibyte", "界界界", 4, "界"},
		{"max zero", "abc", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TruncateRuneSafe(tc.in, tc.max)
			if got != tc.want {
				t.Errorf("TruncateRuneSafe(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result %q is not valid UTF-8", got)
			}
		})
	}
}

func TestSearchUsesQueryInputType(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{}
	svc := newTestService(t, emb, &fakeStore{})

	if _, err := svc.Search(context.Background(), SearchRequest{Query: "ros2 topics", Limit: 3, ScoreThreshold: 0.3}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if emb.lastInput != InputQuery {
		t.Fatalf("input type = %q, want %q", emb.lastInput, InputQuery)
	}
}

func TestSearchPassesFiltersAndParameters(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, &fakeEmbedder{}, store)

	_, err := svc.Search(context.Background(), SearchRequest{
		Query:           "gait control",
		Limit:           7,
		ScoreThreshold:  0.42,
		SourceURLPrefix: "/docs/module2",
		Section:         "module2",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.lastLimit != 7 {
		t.Errorf("limit = %d, want 7", store.lastLimit)
	}
	if store.lastThreshold != 0.42 {
		t.Errorf("threshold = %g, want 0.42", store.lastThreshold)
	}
	if store.lastFilter.SourceURLPrefix != "/docs/module2" || store.lastFilter.Section != "module2" {
		t.Errorf("filter = %+v", store.lastFilter)
	}
}

func TestSearchPreservesStoreOrder(t *testing.T) {
	t.Parallel()

	store := &fakeStore{results: []SearchResult{
		{ChunkText: "a", SourceURL: "/docs/a", Title: "A", Section: "s", Score: 0.9},
		{ChunkText: "b", SourceURL: "/docs/b", Title: "B", Section: "s", Score: 0.7},
		{ChunkText: "c", SourceURL: "/docs/c", Title: "C", Section: "s", Score: 0.5},
	}}
	svc := newTestService(t, &fakeEmbedder{}, store)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "order", Limit: 5, ScoreThreshold: 0.3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.TotalResults != 3 {
		t.Fatalf("TotalResults = %d, want 3", resp.TotalResults)
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Fatalf("results not in descending score order: %v", resp.Results)
		}
	}
	if resp.QueryTimeMS < 0 {
		t.Fatalf("QueryTimeMS = %g, want >= 0", resp.QueryTimeMS)
	}
}

func TestSearchRetriesTransientEmbedderFailure(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{errs: []error{syscall.ECONNREFUSED}}
	svc := newTestService(t, emb, &fakeStore{})

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "retry me", Limit: 5, ScoreThreshold: 0.5})
	if err != nil {
		t.Fatalf("Search after transient failure: %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("embedder calls = %d, want 2", emb.calls)
	}
	if resp == nil {
		t.Fatal("nil response")
	}
}

func TestSearchDoesNotRetryPermanentFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("invalid api key")
	emb := &fakeEmbedder{errs: []error{boom, boom, boom}}
	svc := newTestService(t, emb, &fakeStore{})

	_, err := svc.Search(context.Background(), SearchRequest{Query: "no retry", Limit: 5, ScoreThreshold: 0.5})
	if err == nil {
		t.Fatal("want error")
	}
	if emb.calls != 1 {
		t.Fatalf("embedder calls = %d, want 1 (permanent errors must not retry)", emb.calls)
	}
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Fatalf("kind = %v, want KindUnavailable", apperr.KindOf(err))
	}
}

func TestSearchStoreFailureSurfacesUnavailable(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("collection not loaded")}
	svc := newTestService(t, &fakeEmbedder{}, store)

	_, err := svc.Search(context.Background(), SearchRequest{Query: "x", Limit: 5, ScoreThreshold: 0.5})
	if apperr.KindOf(err) != apperr.KindUnavailable {
		t.Fatalf("kind = %v, want KindUnavailable", apperr.KindOf(err))
	}
	if apperr.CodeOf(err) != apperr.CodeServiceUnavailable {
		t.Fatalf("code = %q, want SERVICE_UNAVAILABLE", apperr.CodeOf(err))
	}
}
