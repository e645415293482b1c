package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// NoteTokenizerName is the bleve name of the note tokenizer.
	NoteTokenizerName = "note_tokenizer"

	// NoteAnalyzerName is the bleve name of the note analyzer.
	NoteAnalyzerName = "note_analyzer"

	bleveContentField = "content"
)

func init() {
	_ = registry.RegisterTokenizer(NoteTokenizerName, noteTokenizerConstructor)
}

// BleveIndex is a LexicalIndex backed by bleve v2 with BM25 scoring.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveIndex)(nil)

// bleveDocument is the document structure for bleve indexing.
type bleveDocument struct {
	Content string `json:"content"`
}

// validateBleveIntegrity checks that an existing index directory has a
// readable index_meta.json. A missing directory is valid.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// NewBleveIndex opens or creates a bleve index at path. An empty path
// creates an in-memory index. A corrupt index is cleared; the caller
// rebuilds it from chunk records.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := newBleveMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

func newBleveMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(NoteAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": NoteTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = NoteAnalyzerName
	indexMapping.ScoringModel = "bm25"
	return indexMapping, nil
}

// Upsert indexes or replaces one chunk.
func (b *BleveIndex) Upsert(ctx context.Context, id, text string) error {
	return b.UpsertBatch(ctx, []LexicalDoc{{ID: id, Text: text}})
}

// UpsertBatch indexes or replaces chunks in one bleve batch.
func (b *BleveIndex) UpsertBatch(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, bleveDocument{Content: d.Text}); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", d.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Remove deletes chunks.
func (b *BleveIndex) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Query runs a match query over chunk content.
func (b *BleveIndex) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 || strings.TrimSpace(text) == "" {
		return []Hit{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	q := bleve.NewMatchQuery(text)
	q.SetField(bleveContentField)
	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.SortBy([]string{"-_score", "_id"})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	sortHits(hits)
	return hits, nil
}

// IDs returns all chunk IDs in ascending order.
func (b *BleveIndex) IDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.SortBy([]string{"_id"})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}
	ids := make([]string, len(result.Hits))
	for i, h := range result.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the index. Bleve persists on every batch.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func noteTokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &noteTokenizer{}, nil
}

// noteTokenizer emits the same tokens as Tokenize so every lexical backend
// agrees on what a term is.
type noteTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *noteTokenizer) Tokenize(input []byte) analysis.TokenStream {
	spans := tokenSpans(string(input), defaultStopWordMap)
	stream := make(analysis.TokenStream, 0, len(spans))
	for i, sp := range spans {
		stream = append(stream, &analysis.Token{
			Term:     []byte(sp.term),
			Start:    sp.start,
			End:      sp.end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
