package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names used in the corpus collection. Every chunk carries
// all of them; search validates their presence per result.
const (
	fieldChunkText     = "chunk_text"
	fieldSourceURL     = "source_url"
	fieldTitle         = "title"
	fieldSection       = "section"
	fieldChunkPosition = "chunk_position"
	fieldContentHash   = "content_hash"
)

// QdrantConfig holds connection parameters for the Qdrant vector store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the corpus collection name (default: rag_embedding).
	Collection string

	// VectorSize is the embedding dimensionality (default: 1024).
	VectorSize uint64

	// APIKey is the optional Qdrant API key for hosted clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore connects to Qdrant, ensures the corpus collection and its
// payload indexes exist, and returns a ready-to-use store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "rag_embedding"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 1024
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the collection and its payload indexes if they do
// not already exist. source_url gets a full-text index (prefix scoping uses
// text match); section gets a keyword index for exact match.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
		}
	}

	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{fieldSourceURL, qdrant.FieldType_FieldTypeText},
		{fieldSection, qdrant.FieldType_FieldTypeKeyword},
	}
	for _, idx := range indexes {
		// Creating an index that already exists is a no-op in Qdrant.
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      idx.field,
			FieldType:      &idx.typ,
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", idx.field, err)
		}
	}

	return nil
}

// Upsert stores or updates a batch of points with their embeddings.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldChunkText:     p.ChunkText,
				fieldSourceURL:     p.SourceURL,
				fieldTitle:         p.Title,
				fieldSection:       p.Section,
				fieldChunkPosition: p.ChunkPosition,
				fieldContentHash:   p.ContentHash,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a filtered cosine similarity query. Results come back in
// Qdrant's order, most similar first; chunks below threshold are excluded
// server-side.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, threshold float32, f Filter) ([]SearchResult, error) {
	qlimit := uint64(limit)
	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &qlimit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := buildFilter(f); qf != nil {
		query.Filter = qf
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		r := payloadToResult(p.Payload)
		r.Score = p.Score
		results = append(results, r)
	}

	return results, nil
}

// buildFilter translates a Filter into Qdrant match conditions. Both
// conditions go into Must, so they AND together. Returns nil when f is empty.
func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.SourceURLPrefix != "" {
		must = append(must, qdrant.NewMatchText(fieldSourceURL, f.SourceURLPrefix))
	}
	if f.Section != "" {
		must = append(must, qdrant.NewMatch(fieldSection, f.Section))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// SourceContentHash scrolls one point for the given page and returns its
// stored content hash. found is false when the page has never been ingested.
func (s *QdrantStore) SourceContentHash(ctx context.Context, sourceURL string) (string, bool, error) {
	limit := uint32(1)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(fieldSourceURL, sourceURL)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("qdrant: scroll for %q failed: %w", sourceURL, err)
	}
	if len(points) == 0 {
		return "", false, nil
	}

	hash := ""
	if p := points[0].Payload; p != nil {
		if v, ok := p[fieldContentHash]; ok {
			hash = v.GetStringValue()
		}
	}
	return hash, true, nil
}

// Stats reports the collection's point count, vector size, and status.
func (s *QdrantStore) Stats(ctx context.Context) (CollectionStats, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return CollectionStats{}, fmt.Errorf("qdrant: failed to get collection info: %w", err)
	}

	stats := CollectionStats{
		Collection: s.cfg.Collection,
		VectorSize: s.cfg.VectorSize,
		Status:     info.GetStatus().String(),
	}
	if pc := info.PointsCount; pc != nil {
		stats.PointsCount = *pc
	}
	return stats, nil
}

// SamplePayloads scrolls up to limit points for metadata auditing.
func (s *QdrantStore) SamplePayloads(ctx context.Context, limit int) ([]SearchResult, error) {
	qlimit := uint32(limit)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          &qlimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, payloadToResult(p.Payload))
	}
	return results, nil
}

// Delete removes points from the collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// HealthCheck pings the Qdrant server. Used by the readiness probe.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// payloadToResult maps a Qdrant payload onto a SearchResult. Missing fields
// stay at their zero values; the retrieval service logs them.
func payloadToResult(payload map[string]*qdrant.Value) SearchResult {
	var r SearchResult
	if payload == nil {
		return r
	}
	if v, ok := payload[fieldChunkText]; ok {
		r.ChunkText = v.GetStringValue()
	}
	if v, ok := payload[fieldSourceURL]; ok {
		r.SourceURL = v.GetStringValue()
	}
	if v, ok := payload[fieldTitle]; ok {
		r.Title = v.GetStringValue()
	}
	if v, ok := payload[fieldSection]; ok {
		r.Section = v.GetStringValue()
	}
	if v, ok := payload[fieldChunkPosition]; ok {
		r.ChunkPosition = int(v.GetIntegerValue())
	}
	return r
}
