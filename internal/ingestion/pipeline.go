// Package ingestion implements the corpus ingestion pipeline. It discovers
// documentation pages, strips them to plain text, chunks with overlap, embeds
// each chunk on the document side, and upserts the results into the vector
// store. Deterministic chunk IDs and per-page content hashes make re-runs
// idempotent: unchanged pages are skipped, changed pages are overwritten.
// The pipeline is invoked by the `bookqa ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// Defaults match the corpus the collection was built with: ~350-token chunks
// with ~60 tokens of overlap, and Cohere's 96-text batch ceiling.
const (
	defaultChunkSize      = 1400
	defaultChunkOverlap   = 240
	defaultEmbedBatchSize = 96
	defaultHTTPTimeout    = 30 * time.Second

	embedMaxRetries = 3
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BaseURL is the root of the deployed documentation site.
	BaseURL string

	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1400 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Defaults to 240 if zero.
	ChunkOverlap int

	// EmbedBatchSize caps the number of texts per embedding call.
	// Defaults to 96 if zero.
	EmbedBatchSize int

	// HTTPTimeout is the timeout for each page fetch. Defaults to 30s.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the fetch → chunk → embed → upsert flow.
type Pipeline struct {
	embedder   rag.Embedder
	store      rag.VectorStore
	cfg        *Config
	httpClient *http.Client
	log        *slog.Logger
}

// Report summarises one ingestion run.
type Report struct {
	URLsProcessed int
	URLsSkipped   int
	URLsFailed    int
	ChunksCreated int
	VectorsStored int
	FailedURLs    []FailedURL
	Duration      time.Duration
}

// FailedURL records a page that could not be ingested.
type FailedURL struct {
	URL   string
	Error string
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("ingestion: base URL must not be empty")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatchSize
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bookqa/1.0 (documentation ingestion)"
	}
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		log: log,
	}, nil
}

// IngestAll processes every URL, continuing past per-page failures so a
// single broken page does not abort a corpus refresh. The returned report
// carries counts and the URLs that failed.
func (p *Pipeline) IngestAll(ctx context.Context, urls []string) *Report {
	start := time.Now()
	report := &Report{}

	for _, pageURL := range urls {
		if ctx.Err() != nil {
			break
		}

		chunks, skipped, err := p.ingestURL(ctx, pageURL)
		switch {
		case err != nil:
			report.URLsFailed++
			report.FailedURLs = append(report.FailedURLs, FailedURL{URL: pageURL, Error: err.Error()})
			p.log.Error("ingestion: page failed",
				slog.String("url", pageURL),
				slog.String("error", err.Error()))
		case skipped:
			report.URLsSkipped++
			p.log.Info("ingestion: skipped unchanged page", slog.String("url", pageURL))
		default:
			report.URLsProcessed++
			report.ChunksCreated += chunks
			report.VectorsStored += chunks
			p.log.Info("ingestion: page ingested",
				slog.String("url", pageURL),
				slog.Int("chunks", chunks))
		}
	}

	report.Duration = time.Since(start)
	return report
}

// ingestURL processes a single page end to end. Returns the number of chunks
// stored, or skipped=true when the page content is unchanged.
func (p *Pipeline) ingestURL(ctx context.Context, pageURL string) (chunks int, skipped bool, err error) {
	page, err := p.fetchPage(ctx, pageURL)
	if err != nil {
		return 0, false, fmt.Errorf("fetch: %w", err)
	}

	storedHash, found, err := p.store.SourceContentHash(ctx, pageURL)
	if err != nil {
		// Hash lookup failure is not fatal: treat the page as changed.
		p.log.Warn("ingestion: content hash lookup failed",
			slog.String("url", pageURL),
			slog.String("error", err.Error()))
	} else if found && storedHash == page.ContentHash {
		return 0, true, nil
	}

	pageChunks := chunkText(page.Text, pageURL, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(pageChunks) == 0 {
		return 0, false, fmt.Errorf("no chunks produced")
	}

	vectors, err := p.embedChunks(ctx, pageChunks)
	if err != nil {
		return 0, false, fmt.Errorf("embed: %w", err)
	}

	points := make([]rag.Point, 0, len(pageChunks))
	for i, c := range pageChunks {
		points = append(points, rag.Point{
			ID:            c.ID,
			Vector:        vectors[i],
			ChunkText:     c.Text,
			SourceURL:     pageURL,
			Title:         page.Title,
			Section:       page.Section,
			ChunkPosition: c.Position,
			ContentHash:   page.ContentHash,
		})
	}

	if err := p.store.Upsert(ctx, points); err != nil {
		return 0, false, fmt.Errorf("upsert: %w", err)
	}

	return len(points), false, nil
}

// embedChunks embeds chunk texts in batches on the document side, retrying
// transient failures with exponential backoff.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		var batch [][]float32
		op := func() error {
			var embedErr error
			batch, embedErr = p.embedder.Embed(ctx, texts, rag.InputDocument)
			return embedErr
		}
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), embedMaxRetries-1), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}
