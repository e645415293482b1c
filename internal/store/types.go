// Package store provides the lexical index, the vector index and the
// metadata snapshot store. This is the persistence layer for all indexed data.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aman-CERP/notebrain/internal/document"
)

// State keys for the metadata store.
const (
	// StateKeyEmbeddingModel stores the embedding model the vectors were built with.
	StateKeyEmbeddingModel = "embedding_model"
	// StateKeyEmbeddingDimensions stores the vector dimension of the index.
	StateKeyEmbeddingDimensions = "embedding_dimensions"
	// StateKeyLastReport stores the JSON encoded report of the last index cycle.
	StateKeyLastReport = "last_report"
)

// Metadata keys carried with vector entries.
const (
	MetaDocID = "doc_id"
	MetaTags  = "tags"
)

// ErrClosed is returned by operations on a closed index or store.
var ErrClosed = errors.New("store is closed")

// Hit is one ranked match from an index.
type Hit struct {
	ID    string
	Score float64
}

// LexicalDoc is a chunk text submitted to the lexical index.
type LexicalDoc struct {
	ID   string
	Text string
}

// LexicalIndex is a keyword index over chunk texts scored by BM25.
type LexicalIndex interface {
	Upsert(ctx context.Context, id, text string) error
	UpsertBatch(ctx context.Context, docs []LexicalDoc) error
	Remove(ctx context.Context, ids ...string) error
	// Query returns at most k hits sorted by score desc, then ID asc.
	Query(ctx context.Context, text string, k int) ([]Hit, error)
	IDs(ctx context.Context) ([]string, error)
	Count() int
	Close() error
}

// VectorMetadata is the payload stored next to a vector for filtering.
type VectorMetadata struct {
	DocID string
	Tags  []string
}

// VectorEntry is a chunk vector submitted to the vector index.
type VectorEntry struct {
	ID       string
	Vector   []float32
	Metadata VectorMetadata
}

// Filter restricts vector queries. Values inside a field are OR-ed, fields
// are AND-ed. An empty filter matches everything.
type Filter struct {
	DocIDs []string
	Tags   []string
}

// IsEmpty reports whether the filter matches everything.
func (f Filter) IsEmpty() bool {
	return len(f.DocIDs) == 0 && len(f.Tags) == 0
}

// Match reports whether metadata passes the filter.
func (f Filter) Match(m VectorMetadata) bool {
	if len(f.DocIDs) > 0 && !containsAny(f.DocIDs, m.DocID) {
		return false
	}
	if len(f.Tags) > 0 && !containsAny(f.Tags, m.Tags...) {
		return false
	}
	return true
}

func containsAny(set []string, values ...string) bool {
	for _, v := range values {
		for _, s := range set {
			if s == v {
				return true
			}
		}
	}
	return false
}

// VectorIndex is a nearest-neighbour index over chunk vectors. Scores are
// cosine similarities in [-1, 1].
type VectorIndex interface {
	Upsert(ctx context.Context, entries []VectorEntry) error
	Remove(ctx context.Context, ids ...string) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
	IDs(ctx context.Context) ([]string, error)
	Count() int
	Close() error
}

// Saver is implemented by indexes that persist explicitly rather than on
// every write.
type Saver interface {
	Save() error
}

// Resetter is implemented by vector indexes that can drop every entry and
// forget their dimension, which a change of embedding model requires.
type Resetter interface {
	Reset(ctx context.Context) error
}

// DocumentRecord is the persisted state of one indexed document.
type DocumentRecord struct {
	ID          string
	Title       string
	Tags        []string
	Links       []string
	Tasks       []document.Task
	ContentHash string
	ModTime     time.Time
	Created     *time.Time
	ChunkIDs    []string
	IndexedAt   time.Time
}

// ChunkRecord is the persisted chunk text and position. Retrieval reads
// chunk text and breadcrumbs from here.
type ChunkRecord struct {
	ID         string
	DocID      string
	Seq        int
	Text       string
	Breadcrumb []string
	Kind       document.Kind
	Start      int
	End        int
	Hash       string
}

// TaskRecord is a task with the document it was found in.
type TaskRecord struct {
	DocID    string
	DocTitle string
	document.Task
}

// MetadataStore persists documents, chunk records and runtime state.
type MetadataStore interface {
	// Document operations. GetDocument returns nil, nil when absent.
	GetDocument(ctx context.Context, id string) (*DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]*DocumentRecord, error)
	// SaveDocument replaces the document and its complete chunk set.
	SaveDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord) error
	// DeleteDocument removes the document and its chunks.
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context) (int, error)

	// Chunk operations. GetChunks skips unknown IDs.
	GetChunks(ctx context.Context, ids []string) (map[string]*ChunkRecord, error)
	ChunksForDocument(ctx context.Context, docID string) ([]*ChunkRecord, error)
	ChunkIDs(ctx context.Context) ([]string, error)
	CountChunks(ctx context.Context) (int, error)
	// EachChunk calls fn for every chunk in ID order.
	EachChunk(ctx context.Context, fn func(*ChunkRecord) error) error

	// ListTasks returns pending tasks first, then by due date, then by document.
	ListTasks(ctx context.Context) ([]TaskRecord, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// ErrDimensionMismatch is returned when a vector has the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
