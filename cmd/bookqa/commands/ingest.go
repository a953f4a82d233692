package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roboverse/bookqa-go/internal/ingestion"
	"github.com/roboverse/bookqa-go/internal/logging"
)

// NewIngestCmd constructs the `bookqa ingest` command, which runs the corpus
// ingestion pipeline against the published documentation site.
func NewIngestCmd() *cobra.Command {
	var baseURL string
	var urls []string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the book corpus into the vector store",
		Long: `Fetch and index the published book documentation into Qdrant.

Pages are discovered from the site's sitemap.xml (falling back to the known
corpus layout), stripped to text, chunked with overlap, embedded on the
document side, and upserted with deterministic IDs. Unchanged pages are
detected by content hash and skipped, so re-runs are cheap and idempotent.

Required environment variables:
  COHERE_API_KEY       Embedding API key (or EMBEDDING_API_KEY)
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: rag_embedding)
  QDRANT_API_KEY       Optional API key for authenticated clusters

Examples:
  bookqa ingest --base-url https://physical-ai-book.example.com
  bookqa ingest --base-url https://physical-ai-book.example.com --url /docs/introduction/
  DOCS_BASE_URL=https://physical-ai-book.example.com bookqa ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if baseURL == "" {
				baseURL = os.Getenv("DOCS_BASE_URL")
			}
			if baseURL == "" {
				return fmt.Errorf("ingest: --base-url or DOCS_BASE_URL is required")
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			vstore, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer vstore.Close()

			pipeline, err := ingestion.NewPipeline(emb, vstore, &ingestion.Config{
				BaseURL:      baseURL,
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			}, log)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			// Explicit --url flags (absolute or site-relative) override discovery.
			pageURLs := make([]string, 0, len(urls))
			for _, u := range urls {
				if len(u) > 0 && u[0] == '/' {
					u = baseURL + u
				}
				pageURLs = append(pageURLs, u)
			}
			if len(pageURLs) == 0 {
				pageURLs = pipeline.DiscoverURLs(ctx)
			}

			log.Info("starting ingestion", slog.Int("urls", len(pageURLs)))
			report := pipeline.IngestAll(ctx, pageURLs)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("ingest: failed to render report: %w", err)
			}
			fmt.Println(string(out))

			if report.URLsProcessed == 0 && report.URLsSkipped == 0 {
				return fmt.Errorf("ingest: all %d pages failed", report.URLsFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Root URL of the deployed documentation site (or DOCS_BASE_URL)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Specific page URL or /docs path to ingest (repeatable; default: discover)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum characters per chunk (default: 1400)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters shared between consecutive chunks (default: 240)")

	return cmd
}
