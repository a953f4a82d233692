package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roboverse/bookqa-go/internal/apperr"
	"github.com/roboverse/bookqa-go/internal/logging"
)

// Validation and timeout limits for the retrieval service.
const (
	// MaxQueryChars is the longest query the service will embed. Longer
	// queries are truncated with a warning rather than rejected: by the
	// time a query reaches this layer it has already passed API
	// validation, and losing the tail is better than losing the request.
	MaxQueryChars = 32000

	// MinLimit and MaxLimit bound the caller-requested result count.
	MinLimit = 1
	MaxLimit = 20

	// EmbedTimeout caps one embedding API round trip.
	EmbedTimeout = 30 * time.Second

	// SearchTimeout caps one Qdrant query.
	SearchTimeout = 10 * time.Second
)

// SearchRequest carries the parameters for one retrieval call.
type SearchRequest struct {
	// Query is the free-text search query. Required.
	Query string

	// Limit is the maximum number of results, in [MinLimit, MaxLimit].
	Limit int

	// ScoreThreshold excludes results scoring below it, in [0, 1].
	ScoreThreshold float32

	// SourceURLPrefix optionally restricts results to pages whose URL
	// contains the prefix.
	SourceURLPrefix string

	// Section optionally restricts results to one docs section.
	Section string
}

// Service performs end-to-end retrieval: validate, embed the query, and run
// the filtered similarity search. It is safe for concurrent use.
type Service struct {
	embedder Embedder
	store    VectorStore
}

// NewService constructs a retrieval Service.
func NewService(embedder Embedder, store VectorStore) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &Service{embedder: embedder, store: store}, nil
}

// Search validates req, embeds the query in search_query mode, and returns
// the matching chunks in descending score order. Transient embedding and
// store failures are retried with exponential backoff before surfacing as
// Timeout or Unavailable errors.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.New(apperr.KindInvalidQuery, apperr.CodeEmptyQuery, "query must not be empty")
	}
	if req.Limit < MinLimit || req.Limit > MaxLimit {
		return nil, apperr.Newf(apperr.KindInvalidParameter, apperr.CodeInvalidParameter,
			"limit must be between %d and %d, got %d", MinLimit, MaxLimit, req.Limit)
	}
	if req.ScoreThreshold < 0 || req.ScoreThreshold > 1 {
		return nil, apperr.Newf(apperr.KindInvalidParameter, apperr.CodeInvalidParameter,
			"score_threshold must be between 0.0 and 1.0, got %g", req.ScoreThreshold)
	}

	warnings := []string{}
	if len(query) > MaxQueryChars {
		originalLen := len(query)
		log.Warn("query exceeds maximum length, truncating",
			slog.Int("length", originalLen),
			slog.Int("max", MaxQueryChars))
		query = TruncateRuneSafe(query, MaxQueryChars)
		warnings = append(warnings,
			fmt.Sprintf("Query truncated from %d to %d characters", originalLen, MaxQueryChars))
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := s.searchStore(ctx, vector, req)
	if err != nil {
		return nil, err
	}

	for i, r := range results {
		if missing := missingMetadata(r); len(missing) > 0 {
			log.Warn("search result missing metadata fields",
				slog.Int("result", i),
				slog.String("fields", strings.Join(missing, ",")))
			warnings = append(warnings, "Result missing fields: "+strings.Join(missing, ", "))
		}
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	log.Info("search completed",
		slog.Int("query_length", len(query)),
		slog.Int("results", len(results)),
		slog.Float64("query_time_ms", elapsed),
		slog.String("source_url_filter", req.SourceURLPrefix),
		slog.String("section_filter", req.Section))

	return &SearchResponse{
		Results:      results,
		Query:        query,
		TotalResults: len(results),
		QueryTimeMS:  elapsed,
		Warnings:     warnings,
	}, nil
}

// TruncateRuneSafe cuts s to at most max bytes, backing the cut point off to
// the nearest rune boundary so the result is always valid UTF-8.
func TruncateRuneSafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// embedQuery embeds the query text with retry and its own timeout.
func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var vector []float32
	err := retryTransient(ctx, func() error {
		embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
		defer cancel()

		vectors, err := s.embedder.Embed(embedCtx, []string{query}, InputQuery)
		if err != nil {
			return err
		}
		if len(vectors) == 0 {
			return fmt.Errorf("embedder returned no vectors")
		}
		vector = vectors[0]
		return nil
	})
	if err != nil {
		return nil, classifyDependencyFailure(err, "embedding service")
	}
	return vector, nil
}

// searchStore runs the vector query with retry and its own timeout.
func (s *Service) searchStore(ctx context.Context, vector []float32, req SearchRequest) ([]SearchResult, error) {
	filter := Filter{
		SourceURLPrefix: req.SourceURLPrefix,
		Section:         req.Section,
	}

	var results []SearchResult
	err := retryTransient(ctx, func() error {
		searchCtx, cancel := context.WithTimeout(ctx, SearchTimeout)
		defer cancel()

		var err error
		results, err = s.store.Search(searchCtx, vector, req.Limit, req.ScoreThreshold, filter)
		return err
	})
	if err != nil {
		return nil, classifyDependencyFailure(err, "vector store")
	}
	return results, nil
}

// classifyDependencyFailure maps an exhausted-retries error onto the
// boundary taxonomy: deadline overruns become Timeout, everything else
// Unavailable.
func classifyDependencyFailure(err error, dependency string) error {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	if st, ok := status.FromError(err); ok && st.Code() == codes.DeadlineExceeded {
		timedOut = true
	}

	if timedOut {
		return apperr.Wrap(err, apperr.KindTimeout, apperr.CodeServiceUnavailable,
			dependency+" timed out")
	}
	return apperr.Wrap(err, apperr.KindUnavailable, apperr.CodeServiceUnavailable,
		dependency+" unavailable")
}

// missingMetadata lists the required payload fields absent from r.
// chunk_position is excluded: zero is a valid position and the payload
// cannot distinguish "missing" from "first chunk" once decoded.
func missingMetadata(r SearchResult) []string {
	var missing []string
	if r.SourceURL == "" {
		missing = append(missing, fieldSourceURL)
	}
	if r.Title == "" {
		missing = append(missing, fieldTitle)
	}
	if r.Section == "" {
		missing = append(missing, fieldSection)
	}
	if r.ChunkText == "" {
		missing = append(missing, fieldChunkText)
	}
	return missing
}
