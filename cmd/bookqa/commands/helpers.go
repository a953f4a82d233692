package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/roboverse/bookqa-go/internal/agent"
	"github.com/roboverse/bookqa-go/internal/embedder"
	"github.com/roboverse/bookqa-go/internal/rag"
	"github.com/roboverse/bookqa-go/internal/store"
)

// buildVectorStore connects to Qdrant using the QDRANT_* env vars. The
// vector size is derived from the configured embedding backend so the
// collection is created with matching dimensions.
func buildVectorStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "rag_embedding")
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", "cohere")
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	vstore, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection))
	return vstore, nil
}

// buildEmbedder validates the embedding env configuration and constructs
// the embedder.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.ValidatePreflight(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "cohere")))
	return emb, nil
}

// openSessionStore opens the conversation history store. Postgres is used
// when DATABASE_URL is set; otherwise, or when Postgres is unreachable, it
// falls back to a local SQLite database. The returned name labels the
// backend in health responses.
func openSessionStore(ctx context.Context, log *slog.Logger) (store.Store, string, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := store.OpenPostgres(ctx, dsn)
		if err == nil {
			log.Info("session store: postgres opened")
			return pg, "postgres", nil
		}
		log.Warn("session store: postgres unavailable, falling back to sqlite",
			slog.Any("error", err))
	}

	path := os.Getenv("BOOKQA_HISTORY_DB")
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, "", fmt.Errorf("could not resolve history DB path: %w", err)
		}
	}
	sq, err := store.OpenSQLite(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open sqlite store at %s: %w", path, err)
	}
	log.Info("session store: sqlite opened", slog.String("path", path))
	return sq, "sqlite", nil
}

// confidenceThresholds reads the optional confidence override env vars.
// Zero values select the built-in defaults.
func confidenceThresholds() agent.Thresholds {
	return agent.Thresholds{
		High: getEnvFloat32("CONFIDENCE_HIGH_THRESHOLD", 0),
		Low:  getEnvFloat32("CONFIDENCE_LOW_THRESHOLD", 0),
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float64 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
