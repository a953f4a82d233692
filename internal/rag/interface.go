// Package rag implements retrieval over the book corpus: embedding queries,
// filtered vector search, and the validation/stat helpers the pipeline
// needs. Concrete backends (Qdrant, the embedding APIs) satisfy small
// interfaces so the agent and server layers never depend on a specific
// vendor.
package rag

import (
	"context"
)

// InputType selects the asymmetric embedding mode. Retrieval-tuned models
// embed queries and documents differently; mixing the two silently degrades
// similarity scores.
type InputType string

const (
	// InputQuery embeds text as a search query.
	InputQuery InputType = "search_query"

	// InputDocument embeds text as a corpus document (ingestion side).
	InputDocument InputType = "search_document"
)

// SearchResult is one scored chunk returned from the vector store.
type SearchResult struct {
	// ChunkText is the raw text content of the chunk.
	ChunkText string `json:"chunk_text"`

	// SourceURL is the page the chunk was extracted from.
	SourceURL string `json:"source_url"`

	// Title is the page title.
	Title string `json:"title"`

	// Section is the top-level docs section the page belongs to.
	Section string `json:"section"`

	// ChunkPosition is the zero-based index of the chunk within its page.
	ChunkPosition int `json:"chunk_position"`

	// Score is the cosine similarity score in [0, 1].
	Score float32 `json:"similarity_score"`
}

// SearchResponse is the full result of one retrieval call.
type SearchResponse struct {
	// Results are ordered by descending score, as returned by the store.
	Results []SearchResult `json:"results"`

	// Query is the query actually executed, after any truncation.
	Query string `json:"query"`

	// TotalResults is len(Results).
	TotalResults int `json:"total_results"`

	// QueryTimeMS is the end-to-end elapsed time (embed + search).
	QueryTimeMS float64 `json:"query_time_ms"`

	// Warnings carries non-fatal conditions hit while serving the search:
	// query truncation, results with missing payload fields. Always non-nil
	// on a successful search so it marshals as an empty list.
	Warnings []string `json:"warnings"`
}

// Filter narrows a search to a subset of the corpus. Zero values mean no
// filtering; both set means both must match.
type Filter struct {
	// SourceURLPrefix matches chunks whose source_url contains this text
	// (URL-prefix scoping, e.g. "/docs/module1").
	SourceURLPrefix string

	// Section matches chunks with this exact section value.
	Section string
}

// Point is one chunk ready for upsert, with its pre-computed embedding.
type Point struct {
	ID            string
	Vector        []float32
	ChunkText     string
	SourceURL     string
	Title         string
	Section       string
	ChunkPosition int
	ContentHash   string
}

// CollectionStats summarises the state of the corpus collection.
type CollectionStats struct {
	Collection  string
	PointsCount uint64
	VectorSize  uint64
	Status      string
}

// VectorStore is the interface over the vector database.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of points.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to limit chunks scoring at or above threshold for
	// the query vector, most similar first, restricted by f.
	Search(ctx context.Context, vector []float32, limit int, threshold float32, f Filter) ([]SearchResult, error)

	// SourceContentHash returns the stored content hash for a page, if any
	// chunk of it exists in the collection.
	SourceContentHash(ctx context.Context, sourceURL string) (hash string, found bool, err error)

	// Stats reports collection size and status.
	Stats(ctx context.Context) (CollectionStats, error)

	// SamplePayloads returns up to limit raw chunk payloads for metadata
	// auditing.
	SamplePayloads(ctx context.Context, limit int) ([]SearchResult, error)

	// Delete removes points by ID.
	Delete(ctx context.Context, ids []string) error

	// Close releases the underlying connection.
	Close() error
}

// Embedder converts text into dense vectors. Implementations must be safe
// to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into embeddings, one per input, in
	// order. input selects query- or document-side embedding.
	Embed(ctx context.Context, texts []string, input InputType) ([][]float32, error)
}
