package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// Per-backend model and dimension defaults. The corpus collection was built
// with Cohere embed-english-v3.0, which is why cohere is the default backend:
// switching embedding models requires re-ingesting everything.
const (
	defaultCohereModel      = "embed-english-v3.0"
	defaultCohereDimensions = 1024

	defaultOpenAIModel      = "text-embedding-3-small"
	defaultOpenAIDimensions = 1536

	// nomic-embed-text. Other Ollama models differ — set EMBEDDING_DIMENSIONS.
	defaultOllamaModel      = "nomic-embed-text"
	defaultOllamaDimensions = 768
)

// DefaultDimensions returns the embedding vector size for the given backend,
// honouring an EMBEDDING_DIMENSIONS override. The Qdrant collection must be
// created with this size.
func DefaultDimensions(backend string) int {
	if v, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSIONS")); err == nil && v > 0 {
		return v
	}
	switch backend {
	case "openai", "azure":
		return defaultOpenAIDimensions
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultCohereDimensions
	}
}

// NewFromEnv constructs a rag.Embedder from environment variables.
// EMBEDDING_PROVIDER picks the backend (cohere default, openai, azure,
// ollama). The generic EMBEDDING_API_KEY / EMBEDDING_ENDPOINT / EMBEDDING_MODEL
// variables override the backend-native ones when set.
func NewFromEnv() (rag.Embedder, error) {
	switch backend := envOrDefault("EMBEDDING_PROVIDER", "cohere"); backend {
	case "cohere":
		apiKey := firstEnv("EMBEDDING_API_KEY", "COHERE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: cohere requires COHERE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewCohereEmbedder(&CohereConfig{
			BaseURL: os.Getenv("EMBEDDING_ENDPOINT"),
			APIKey:  apiKey,
			Model:   envOrDefault("EMBEDDING_MODEL", defaultCohereModel),
		}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    envOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      envOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: DefaultDimensions("openai"),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      envOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: DefaultDimensions("azure"),
			Azure:      true,
			APIVersion: envOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "ollama":
		host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: envOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: cohere, openai, azure, ollama", backend)
	}
}

// firstEnv returns the first non-empty value among the named env vars.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
