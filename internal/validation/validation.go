// Package validation runs retrieval smoke checks against the live corpus:
// a golden test set of in-domain queries, one out-of-domain negative query,
// collection stats, and a metadata completeness audit. It backs the
// `bookqa validate` CLI command.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roboverse/bookqa-go/internal/rag"
)

const (
	// goldenQueryLimit is the number of results inspected per query.
	goldenQueryLimit = 5

	// metadataSampleSize is the number of points audited for completeness.
	metadataSampleSize = 100
)

// Searcher runs retrieval queries. Satisfied by *rag.Service.
type Searcher interface {
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResponse, error)
}

// Inspector exposes the collection-level views the audit needs.
// Satisfied by *rag.QdrantStore.
type Inspector interface {
	Stats(ctx context.Context) (rag.CollectionStats, error)
	SamplePayloads(ctx context.Context, limit int) ([]rag.SearchResult, error)
}

// ResultSummary is a condensed search result included in failure details.
type ResultSummary struct {
	URL   string  `json:"url"`
	Score float32 `json:"score"`
}

// QueryFailure records one golden or negative query that did not pass.
type QueryFailure struct {
	Query      string          `json:"query"`
	Reason     string          `json:"reason"`
	TopResults []ResultSummary `json:"top_results,omitempty"`
}

// Report is the outcome of one validation run.
type Report struct {
	Passed               bool           `json:"passed"`
	TotalQueries         int            `json:"total_queries"`
	PassedQueries        int            `json:"passed_queries"`
	FailedQueries        []QueryFailure `json:"failed_queries,omitempty"`
	VectorCount          uint64         `json:"vector_count"`
	MetadataCompleteness float64        `json:"metadata_completeness"`
}

// Runner executes the validation suite.
type Runner struct {
	searcher  Searcher
	inspector Inspector
	set       TestSet
	log       *slog.Logger
}

// NewRunner constructs a Runner. A zero-value set falls back to the default
// test set.
func NewRunner(searcher Searcher, inspector Inspector, set TestSet, log *slog.Logger) (*Runner, error) {
	if searcher == nil {
		return nil, fmt.Errorf("validation: searcher must not be nil")
	}
	if inspector == nil {
		return nil, fmt.Errorf("validation: inspector must not be nil")
	}
	if len(set.Golden) == 0 {
		set = DefaultTestSet()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{searcher: searcher, inspector: inspector, set: set, log: log}, nil
}

// Run executes the full suite. The overall result passes when all but at
// most one golden query pass and the negative query passes. An empty
// collection fails immediately.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.log.Info("validation: starting pipeline validation",
		slog.Int("golden_queries", len(r.set.Golden)))

	stats, err := r.inspector.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("validation: collection stats: %w", err)
	}

	report := &Report{
		TotalQueries: len(r.set.Golden) + 1,
		VectorCount:  stats.PointsCount,
	}

	if stats.PointsCount == 0 {
		r.log.Warn("validation: collection is empty")
		report.FailedQueries = []QueryFailure{{Query: "all", Reason: "collection is empty"}}
		return report, nil
	}

	report.MetadataCompleteness = r.metadataCompleteness(ctx)

	goldenPassed := 0
	for _, q := range r.set.Golden {
		if failure := r.runGolden(ctx, q); failure != nil {
			report.FailedQueries = append(report.FailedQueries, *failure)
		} else {
			goldenPassed++
		}
	}

	negativePassed := true
	if failure := r.runNegative(ctx, r.set.Negative); failure != nil {
		report.FailedQueries = append(report.FailedQueries, *failure)
		negativePassed = false
	}

	report.PassedQueries = goldenPassed
	if negativePassed {
		report.PassedQueries++
	}
	// One flaky golden query is tolerated; the negative query is not.
	report.Passed = goldenPassed >= len(r.set.Golden)-1 && negativePassed

	outcome := "FAILED"
	if report.Passed {
		outcome = "PASSED"
	}
	r.log.Info("validation: finished",
		slog.String("outcome", outcome),
		slog.Int("passed_queries", report.PassedQueries),
		slog.Int("total_queries", report.TotalQueries))

	return report, nil
}

// runGolden passes when any inspected result matches an expected URL pattern
// at or above the query's minimum score.
func (r *Runner) runGolden(ctx context.Context, q GoldenQuery) *QueryFailure {
	resp, err := r.searcher.Search(ctx, rag.SearchRequest{
		Query: q.Query,
		Limit: goldenQueryLimit,
	})
	if err != nil {
		return &QueryFailure{Query: q.Query, Reason: fmt.Sprintf("search error: %v", err)}
	}

	for _, result := range resp.Results {
		if result.Score < q.MinScore {
			continue
		}
		for _, pattern := range q.ExpectedURLPatterns {
			if strings.Contains(result.SourceURL, pattern) {
				return nil
			}
		}
	}

	return &QueryFailure{
		Query:      q.Query,
		Reason:     fmt.Sprintf("no results matching expected patterns with score >= %.2f", q.MinScore),
		TopResults: summarize(resp.Results),
	}
}

// runNegative passes when the out-of-domain query returns no results, or
// only results below the low-confidence floor.
func (r *Runner) runNegative(ctx context.Context, q GoldenQuery) *QueryFailure {
	resp, err := r.searcher.Search(ctx, rag.SearchRequest{
		Query: q.Query,
		Limit: goldenQueryLimit,
	})
	if err != nil {
		return &QueryFailure{Query: q.Query, Reason: fmt.Sprintf("search error: %v", err)}
	}

	for _, result := range resp.Results {
		if result.Score >= q.MinScore {
			return &QueryFailure{
				Query:      q.Query,
				Reason:     "expected empty or low-confidence results for out-of-domain query",
				TopResults: summarize(resp.Results),
			}
		}
	}
	return nil
}

// metadataCompleteness samples stored points and returns the percentage
// carrying every required payload field. Chunk position zero is valid, so
// only the text fields are checked.
func (r *Runner) metadataCompleteness(ctx context.Context) float64 {
	points, err := r.inspector.SamplePayloads(ctx, metadataSampleSize)
	if err != nil {
		r.log.Warn("validation: payload sampling failed", slog.String("error", err.Error()))
		return 0
	}
	if len(points) == 0 {
		return 0
	}

	complete := 0
	for _, p := range points {
		if p.SourceURL != "" && p.Title != "" && p.Section != "" && p.ChunkText != "" {
			complete++
		}
	}
	return float64(complete) / float64(len(points)) * 100
}

func summarize(results []rag.SearchResult) []ResultSummary {
	n := len(results)
	if n > 3 {
		n = 3
	}
	out := make([]ResultSummary, 0, n)
	for _, r := range results[:n] {
		out = append(out, ResultSummary{URL: r.SourceURL, Score: r.Score})
	}
	return out
}
