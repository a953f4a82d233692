package validation

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// fakeSearcher maps query text to canned results.
type fakeSearcher struct {
	results map[string][]rag.SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, req rag.SearchRequest) (*rag.SearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := f.results[req.Query]
	return &rag.SearchResponse{Results: results, Query: req.Query, TotalResults: len(results)}, nil
}

type fakeInspector struct {
	stats   rag.CollectionStats
	samples []rag.SearchResult
}

func (f *fakeInspector) Stats(context.Context) (rag.CollectionStats, error) {
	return f.stats, nil
}

func (f *fakeInspector) SamplePayloads(context.Context, int) ([]rag.SearchResult, error) {
	return f.samples, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// smallSet keeps tests readable: two golden queries plus the negative.
func smallSet() TestSet {
	return TestSet{
		Golden: []GoldenQuery{
			{
				Query:               "What is inverse kinematics?",
				ExpectedURLPatterns: []string{"/docs/module1"},
				MinScore:            0.25,
			},
			{
				Query:               "What is motion planning?",
				ExpectedURLPatterns: []string{"/docs/module3"},
				MinScore:            0.4,
			},
		},
		Negative: GoldenQuery{Query: "What is the best pizza recipe?", MinScore: 0.3},
	}
}

func completeResult(url string, score float32) rag.SearchResult {
	return rag.SearchResult{
		ChunkText: "text",
		SourceURL: url,
		Title:     "Title",
		Section:   "module1",
		Score:     score,
	}
}

func TestRunAllPass(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]rag.SearchResult{
		"What is inverse kinematics?": {completeResult("https://site/docs/module1/ch1", 0.6)},
		"What is motion planning?":    {completeResult("https://site/docs/module3/ch7", 0.5)},
		"What is the best pizza recipe?": {
			completeResult("https://site/docs/module1/ch1", 0.1),
		},
	}}
	inspector := &fakeInspector{
		stats:   rag.CollectionStats{PointsCount: 100},
		samples: []rag.SearchResult{completeResult("https://site/docs/module1/ch1", 0.9)},
	}

	r, err := NewRunner(searcher, inspector, smallSet(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !report.Passed {
		t.Errorf("report should pass: %+v", report)
	}
	if report.PassedQueries != 3 || report.TotalQueries != 3 {
		t.Errorf("passed=%d total=%d, want 3/3", report.PassedQueries, report.TotalQueries)
	}
	if report.MetadataCompleteness != 100 {
		t.Errorf("metadata completeness = %v, want 100", report.MetadataCompleteness)
	}
}

func TestRunEmptyCollection(t *testing.T) {
	t.Parallel()

	r, err := NewRunner(&fakeSearcher{}, &fakeInspector{}, smallSet(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Passed {
		t.Error("empty collection must fail validation")
	}
	if len(report.FailedQueries) != 1 || report.FailedQueries[0].Reason != "collection is empty" {
		t.Errorf("failures = %+v", report.FailedQueries)
	}
}

func TestRunGoldenBelowScoreFails(t *testing.T) {
	t.Parallel()

	// Both golden queries return matching URLs but below their min scores,
	// so only the negative query passes.
	searcher := &fakeSearcher{results: map[string][]rag.SearchResult{
		"What is inverse kinematics?": {completeResult("https://site/docs/module1/ch1", 0.1)},
		"What is motion planning?":    {completeResult("https://site/docs/module3/ch7", 0.2)},
	}}
	inspector := &fakeInspector{stats: rag.CollectionStats{PointsCount: 100}}

	r, _ := NewRunner(searcher, inspector, smallSet(), discardLogger())
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Passed {
		t.Error("two golden failures must fail the run")
	}
	if report.PassedQueries != 1 {
		t.Errorf("passed = %d, want 1 (negative only)", report.PassedQueries)
	}
	if len(report.FailedQueries) != 2 {
		t.Fatalf("failures = %+v", report.FailedQueries)
	}
	if len(report.FailedQueries[0].TopResults) == 0 {
		t.Error("golden failure should include top results for debugging")
	}
}

func TestRunToleratesOneGoldenFailure(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]rag.SearchResult{
		"What is inverse kinematics?": {completeResult("https://site/docs/module1/ch1", 0.6)},
		// motion planning query returns nothing relevant
	}}
	inspector := &fakeInspector{stats: rag.CollectionStats{PointsCount: 100}}

	r, _ := NewRunner(searcher, inspector, smallSet(), discardLogger())
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !report.Passed {
		t.Errorf("one golden failure should be tolerated: %+v", report)
	}
}

func TestRunNegativeHighScoreFails(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]rag.SearchResult{
		"What is inverse kinematics?":    {completeResult("https://site/docs/module1/ch1", 0.6)},
		"What is motion planning?":       {completeResult("https://site/docs/module3/ch7", 0.5)},
		"What is the best pizza recipe?": {completeResult("https://site/docs/module1/ch1", 0.8)},
	}}
	inspector := &fakeInspector{stats: rag.CollectionStats{PointsCount: 100}}

	r, _ := NewRunner(searcher, inspector, smallSet(), discardLogger())
	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Passed {
		t.Error("a confident out-of-domain hit must fail the run")
	}
}

func TestMetadataCompletenessPartial(t *testing.T) {
	t.Parallel()

	inspector := &fakeInspector{
		stats: rag.CollectionStats{PointsCount: 10},
		samples: []rag.SearchResult{
			completeResult("https://site/docs/module1/ch1", 0.9),
			{ChunkText: "text", SourceURL: "https://site/docs/module1/ch2"}, // missing title/section
		},
	}
	r, _ := NewRunner(&fakeSearcher{}, inspector, smallSet(), discardLogger())

	got := r.metadataCompleteness(context.Background())
	if got != 50 {
		t.Errorf("completeness = %v, want 50", got)
	}
}

func TestDefaultTestSet(t *testing.T) {
	t.Parallel()

	set := DefaultTestSet()
	if len(set.Golden) != 5 {
		t.Errorf("golden query count = %d, want 5", len(set.Golden))
	}
	for _, q := range set.Golden {
		if q.Query == "" || len(q.ExpectedURLPatterns) == 0 || q.MinScore <= 0 {
			t.Errorf("incomplete golden query: %+v", q)
		}
	}
	if set.Negative.Query == "" || len(set.Negative.ExpectedURLPatterns) != 0 {
		t.Errorf("negative query: %+v", set.Negative)
	}
}

func TestLoadTestSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "golden.yaml")
	content := `
golden:
  - query: "What is SLAM?"
    expected_url_patterns: ["/docs/module2"]
    min_score: 0.3
negative:
  query: "Best holiday destinations?"
  min_score: 0.25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadTestSet(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Golden) != 1 || set.Golden[0].Query != "What is SLAM?" {
		t.Errorf("golden = %+v", set.Golden)
	}
	if set.Negative.MinScore != 0.25 {
		t.Errorf("negative min score = %v", set.Negative.MinScore)
	}
}

func TestLoadTestSetEmptyPathReturnsDefault(t *testing.T) {
	t.Parallel()

	set, err := LoadTestSet("")
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Golden) != 5 {
		t.Errorf("expected default set, got %d golden queries", len(set.Golden))
	}
}

func TestLoadTestSetNoGoldenQueries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("golden: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTestSet(path); err == nil {
		t.Fatal("expected error for test set without golden queries")
	}
}

func TestNewRunnerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRunner(nil, &fakeInspector{}, TestSet{}, nil); err == nil {
		t.Error("expected error for nil searcher")
	}
	if _, err := NewRunner(&fakeSearcher{}, nil, TestSet{}, nil); err == nil {
		t.Error("expected error for nil inspector")
	}

	r, err := NewRunner(&fakeSearcher{}, &fakeInspector{}, TestSet{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.set.Golden) != 5 {
		t.Error("zero-value set should fall back to the default set")
	}
}
