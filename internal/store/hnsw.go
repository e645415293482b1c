package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig configures the HNSW vector index.
type HNSWConfig struct {
	// Path of the exported graph; the ID mapping lives at Path + ".meta".
	// Empty keeps the index in memory.
	Path       string
	Dimensions int
	M          int // default 16
	EfSearch   int // default 20
}

// HNSWIndex is a VectorIndex using the pure Go coder/hnsw graph.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	cfg   HNSWConfig

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	meta    map[string]VectorMetadata
	nextKey uint64

	closed bool
}

var (
	_ VectorIndex = (*HNSWIndex)(nil)
	_ Saver       = (*HNSWIndex)(nil)
	_ Resetter    = (*HNSWIndex)(nil)
)

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap      map[string]uint64
	Meta       map[string]VectorMetadata
	NextKey    uint64
	Dimensions int
}

// NewHNSWIndex creates the index and loads cfg.Path when it exists.
func NewHNSWIndex(cfg HNSWConfig) (*HNSWIndex, error) {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWIndex{
		graph:  newGraph(cfg),
		cfg:    cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		meta:   make(map[string]VectorMetadata),
	}

	if cfg.Path == "" {
		return s, nil
	}
	if _, err := os.Stat(cfg.Path + ".meta"); os.IsNotExist(err) {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Upsert inserts vectors. An existing ID is re-keyed; the old node stays in
// the graph as an orphan that never appears in results.
func (s *HNSWIndex) Upsert(ctx context.Context, entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkDimensions(&s.cfg.Dimensions, entries); err != nil {
		return err
	}

	for _, e := range entries {
		// coder/hnsw misbehaves when the last node is deleted, so deletion is lazy
		if existingKey, exists := s.idMap[e.ID]; exists {
			delete(s.keyMap, existingKey)
		}

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, normalized(e.Vector)))

		s.idMap[e.ID] = key
		s.keyMap[key] = e.ID
		s.meta[e.ID] = e.Metadata
	}
	return nil
}

// Remove drops ID mappings; graph nodes are orphaned.
func (s *HNSWIndex) Remove(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.meta, id)
		}
	}
	return nil
}

// Query searches the graph. Orphans are skipped by widening the search by
// their count; a filtered query searches the whole graph.
func (s *HNSWIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.idMap) == 0 {
		return []Hit{}, nil
	}
	if len(vector) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(vector)}
	}

	q := normalized(vector)
	width := k + s.graph.Len() - len(s.idMap)
	if !filter.IsEmpty() {
		width = s.graph.Len()
	}

	nodes := s.graph.Search(q, width)
	hits := make([]Hit, 0, min(k, len(nodes)))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists || !filter.Match(s.meta[id]) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: 1 - float64(s.graph.Distance(q, node.Value))})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// IDs returns all vector IDs in ascending order.
func (s *HNSWIndex) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// HNSWStats reports live vectors against graph nodes.
type HNSWStats struct {
	ValidIDs   int // Number of valid ID mappings (active vectors)
	GraphNodes int // Total nodes in HNSW graph (includes orphans)
	Orphans    int // GraphNodes - ValidIDs (lazy-deleted nodes)
}

// Stats returns orphan statistics.
func (s *HNSWIndex) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	valid, nodes := len(s.idMap), s.graph.Len()
	return HNSWStats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Save exports the graph and the ID mapping atomically.
func (s *HNSWIndex) Save() error {
	if s.cfg.Path == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if s.graph.Len() == 0 {
		_ = os.Remove(s.cfg.Path)
		if err := os.Remove(s.cfg.Path + ".meta"); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove metadata file: %w", err)
		}
		return nil
	}

	if err := writeAtomic(s.cfg.Path, func(f *os.File) error {
		if err := s.graph.Export(f); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	return writeAtomic(s.cfg.Path+".meta", func(f *os.File) error {
		meta := hnswMetadata{
			IDMap:      s.idMap,
			Meta:       s.meta,
			NextKey:    s.nextKey,
			Dimensions: s.cfg.Dimensions,
		}
		if err := gob.NewEncoder(f).Encode(meta); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return nil
	})
}

func (s *HNSWIndex) load() error {
	metaFile, err := os.Open(s.cfg.Path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := metaFile.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if s.cfg.Dimensions > 0 && meta.Dimensions > 0 && s.cfg.Dimensions != meta.Dimensions {
		return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: meta.Dimensions}
	}

	graphFile, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer graphFile.Close()

	// coder/hnsw Import requires io.ByteReader
	if err := s.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.meta = meta.Meta
	if s.meta == nil {
		s.meta = make(map[string]VectorMetadata)
	}
	s.nextKey = meta.NextKey
	s.cfg.Dimensions = meta.Dimensions
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// ReadHNSWDimensions reads the dimension recorded next to a saved graph.
// Returns 0 when nothing has been saved yet.
func ReadHNSWDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open hnsw metadata: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("failed to decode hnsw metadata: %w", err)
	}
	return meta.Dimensions, nil
}

// Close releases the graph without saving.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// Reset replaces the graph with an empty one and forgets the dimension.
func (s *HNSWIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.cfg.Dimensions = 0
	s.graph = newGraph(s.cfg)
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.meta = make(map[string]VectorMetadata)
	s.nextKey = 0
	return nil
}
