package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// OllamaEmbedder implements rag.Embedder against a local Ollama instance via
// its /api/embed endpoint. No API key is involved. Local embedding models are
// symmetric, so the rag.InputType is ignored. Safe for concurrent use.
type OllamaEmbedder struct {
	host   string
	model  string
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
// Local models can be slow to load on first use, hence the long timeout.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:   cfg.Host,
		model:  cfg.Model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

func (r *ollamaEmbedResponse) apiMessage() string { return r.Error }

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string, _ rag.InputType) ([][]float32, error) {
	body := ollamaEmbedRequest{Model: e.model, Input: texts}

	var result ollamaEmbedResponse
	if err := postEmbed(ctx, e.client, "ollama", e.host+"/api/embed", nil, body, &result); err != nil {
		return nil, err
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
