package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roboverse/bookqa-go/internal/rag"
)

func TestCohereEmbedderSendsInputType(t *testing.T) {
	t.Parallel()

	var got cohereEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %q, want /embed", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(cohereEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	emb := NewCohereEmbedder(&CohereConfig{BaseURL: srv.URL, APIKey: "test-key"})

	vectors, err := emb.Embed(context.Background(), []string{"a", "b"}, rag.InputQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if got.InputType != "search_query" {
		t.Errorf("input_type = %q, want search_query", got.InputType)
	}
	if got.Model != "embed-english-v3.0" {
		t.Errorf("model = %q, want embed-english-v3.0", got.Model)
	}
}

func TestCohereEmbedderDocumentMode(t *testing.T) {
	t.Parallel()

	var got cohereEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(cohereEmbedResponse{Embeddings: [][]float32{{0.5}}})
	}))
	defer srv.Close()

	emb := NewCohereEmbedder(&CohereConfig{BaseURL: srv.URL, APIKey: "k"})
	if _, err := emb.Embed(context.Background(), []string{"chunk"}, rag.InputDocument); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got.InputType != "search_document" {
		t.Errorf("input_type = %q, want search_document", got.InputType)
	}
}

func TestCohereEmbedderSurfacesStatusCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "rate limited"})
	}))
	defer srv.Close()

	emb := NewCohereEmbedder(&CohereConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := emb.Embed(context.Background(), []string{"x"}, rag.InputQuery)
	if err == nil {
		t.Fatal("want error")
	}

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T does not carry a status code", err)
	}
	if apiErr.StatusCode() != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", apiErr.StatusCode())
	}
}

func TestCohereEmbedderCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(cohereEmbedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer srv.Close()

	emb := NewCohereEmbedder(&CohereConfig{BaseURL: srv.URL, APIKey: "k"})
	if _, err := emb.Embed(context.Background(), []string{"a", "b"}, rag.InputQuery); err == nil {
		t.Fatal("want error on embedding count mismatch")
	}
}
