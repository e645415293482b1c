package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys stored with each Qdrant point.
const (
	qdrantChunkID = "chunk_id"
	qdrantDocID   = "doc_id"
	qdrantTags    = "tags"

	qdrantScrollPage = 256
)

// chunkNamespace seeds the name-based UUIDs used as Qdrant point IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("notebrain:chunk"))

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection name (default: notebrain).
	Collection string

	// APIKey is the optional key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Dimensions sizes a new collection; 0 defers creation to the first write.
	Dimensions int
}

// QdrantIndex is a VectorIndex backed by a Qdrant collection.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    QdrantConfig

	mu    sync.Mutex
	ready bool
}

var (
	_ VectorIndex = (*QdrantIndex)(nil)
	_ Resetter    = (*QdrantIndex)(nil)
)

// PointID maps a chunk ID to its deterministic Qdrant point UUID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String()
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists when
// the dimension is known.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "notebrain"
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

	q := &QdrantIndex{client: client, cfg: cfg}
	if err := q.ensureCollection(ctx, cfg.Dimensions); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

// ensureCollection creates the collection if needed. With dims 0 it only
// records whether the collection already exists.
func (q *QdrantIndex) ensureCollection(ctx context.Context, dims int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		q.ready = true
		return nil
	}
	if dims == 0 {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	q.ready = true
	return nil
}

func (q *QdrantIndex) isReady() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// Upsert stores vectors with chunk ID, document ID and tags as payload.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	dims := q.cfg.Dimensions
	if err := checkDimensions(&dims, entries); err != nil {
		return err
	}
	if err := q.ensureCollection(ctx, dims); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		tags := make([]any, len(e.Metadata.Tags))
		for i, t := range e.Metadata.Tags {
			tags[i] = t
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				qdrantChunkID: e.ID,
				qdrantDocID:   e.Metadata.DocID,
				qdrantTags:    tags,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Remove deletes points by chunk ID.
func (q *QdrantIndex) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 || !q.isReady() {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(PointID(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Query performs a cosine similarity search with the filter applied
// server-side.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if k <= 0 || !q.isReady() {
		return []Hit{}, nil
	}

	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id := r.GetPayload()[qdrantChunkID].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: float64(r.GetScore())})
	}
	sortHits(hits)
	return hits, nil
}

// qdrantFilter translates a Filter; nil when empty.
func qdrantFilter(f Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	var must []*qdrant.Condition
	if len(f.DocIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(qdrantDocID, f.DocIDs...))
	}
	if len(f.Tags) > 0 {
		must = append(must, qdrant.NewMatchKeywords(qdrantTags, f.Tags...))
	}
	return &qdrant.Filter{Must: must}
}

// IDs scrolls the collection and returns all chunk IDs in ascending order.
func (q *QdrantIndex) IDs(ctx context.Context) ([]string, error) {
	if !q.isReady() {
		return []string{}, nil
	}

	ids := []string{}
	limit := uint32(qdrantScrollPage)
	var offset *qdrant.PointId
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.cfg.Collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}

		// The offset point is returned again as the first result
		start := 0
		if offset != nil && len(points) > 0 && points[0].GetId().GetUuid() == offset.GetUuid() {
			start = 1
		}
		for _, p := range points[start:] {
			if id := p.GetPayload()[qdrantChunkID].GetStringValue(); id != "" {
				ids = append(ids, id)
			}
		}
		if len(points) < int(limit) {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	sort.Strings(ids)
	return ids, nil
}

// Count returns the exact number of points, or 0 when Qdrant is unreachable.
func (q *QdrantIndex) Count() int {
	if !q.isReady() {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0
	}
	return int(n)
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// Reset deletes the collection; the next write recreates it with the new
// dimension.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to delete collection %q: %w", q.cfg.Collection, err)
		}
	}
	q.ready = false
	q.cfg.Dimensions = 0
	return nil
}
