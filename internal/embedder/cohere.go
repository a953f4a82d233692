// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to a
// different backend (Cohere, OpenAI, Azure OpenAI, Ollama) via plain HTTP — no
// additional SDK dependencies are required.
package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/roboverse/bookqa-go/internal/rag"
)

// CohereEmbedder implements rag.Embedder using the Cohere embed REST API.
// Cohere models are retrieval-tuned: queries and documents must be embedded
// with different input types, which is why rag.InputType is threaded all the
// way through. Safe for concurrent use.
type CohereEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// CohereConfig holds the settings for constructing a CohereEmbedder.
type CohereConfig struct {
	// BaseURL is the API base URL (default: "https://api.cohere.ai/v1").
	BaseURL string
	// APIKey is the Cohere API key. Required.
	APIKey string
	// Model is the embedding model name (default: "embed-english-v3.0").
	Model string
}

// NewCohereEmbedder constructs a CohereEmbedder from the given config.
func NewCohereEmbedder(cfg *CohereConfig) *CohereEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.ai/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}
	return &CohereEmbedder{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type cohereEmbedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
	Truncate  string   `json:"truncate"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message,omitempty"`
}

func (r *cohereEmbedResponse) apiMessage() string { return r.Message }

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *CohereEmbedder) Embed(ctx context.Context, texts []string, input rag.InputType) ([][]float32, error) {
	body := cohereEmbedRequest{
		Texts:     texts,
		Model:     e.model,
		InputType: string(input),
		Truncate:  "END",
	}
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}

	var result cohereEmbedResponse
	if err := postEmbed(ctx, e.client, "cohere", e.baseURL+"/embed", headers, body, &result); err != nil {
		return nil, err
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("cohere embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
