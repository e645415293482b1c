package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

type vectorEntry struct {
	Vector   []float32
	Metadata VectorMetadata
}

// memoryVectorFile is the gob layout of a saved MemoryVectorIndex.
type memoryVectorFile struct {
	Dimensions int
	Entries    map[string]vectorEntry
}

// MemoryVectorIndex answers queries by exact brute-force cosine similarity.
// With a path it persists as a gob file on Save.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	path    string
	dims    int
	entries map[string]vectorEntry
	closed  bool
}

var (
	_ VectorIndex = (*MemoryVectorIndex)(nil)
	_ Saver       = (*MemoryVectorIndex)(nil)
	_ Resetter    = (*MemoryVectorIndex)(nil)
)

// NewMemoryVectorIndex creates the index and loads path when it exists.
func NewMemoryVectorIndex(path string, dims int) (*MemoryVectorIndex, error) {
	m := &MemoryVectorIndex{path: path, dims: dims, entries: make(map[string]vectorEntry)}
	if path == "" {
		return m, nil
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open vector file: %w", err)
	}
	defer file.Close()

	var saved memoryVectorFile
	if err := gob.NewDecoder(file).Decode(&saved); err != nil {
		return nil, fmt.Errorf("decode vector file: %w", err)
	}
	if dims > 0 && saved.Dimensions > 0 && dims != saved.Dimensions {
		return nil, ErrDimensionMismatch{Expected: dims, Got: saved.Dimensions}
	}
	m.dims = saved.Dimensions
	if saved.Entries != nil {
		m.entries = saved.Entries
	}
	return m, nil
}

// Upsert adds or replaces vectors.
func (m *MemoryVectorIndex) Upsert(ctx context.Context, entries []VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := checkDimensions(&m.dims, entries); err != nil {
		return err
	}
	for _, e := range entries {
		m.entries[e.ID] = vectorEntry{Vector: normalized(e.Vector), Metadata: e.Metadata}
	}
	return nil
}

// Remove deletes vectors; unknown IDs are ignored.
func (m *MemoryVectorIndex) Remove(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Query returns the k most similar vectors that pass filter.
func (m *MemoryVectorIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.entries) == 0 {
		return []Hit{}, nil
	}
	if m.dims > 0 && len(vector) != m.dims {
		return nil, ErrDimensionMismatch{Expected: m.dims, Got: len(vector)}
	}

	q := normalized(vector)
	hits := make([]Hit, 0, len(m.entries))
	for id, e := range m.entries {
		if !filter.Match(e.Metadata) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: dot(q, e.Vector)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// IDs returns all vector IDs in ascending order.
func (m *MemoryVectorIndex) IDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of vectors.
func (m *MemoryVectorIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Save writes the gob file atomically (temp file + rename).
func (m *MemoryVectorIndex) Save() error {
	if m.path == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	return writeAtomic(m.path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(memoryVectorFile{Dimensions: m.dims, Entries: m.entries})
	})
}

// Close releases the index without saving.
func (m *MemoryVectorIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

// checkDimensions fixes *dims on first use and validates every entry.
func checkDimensions(dims *int, entries []VectorEntry) error {
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("empty vector for %s", e.ID)
		}
		if *dims == 0 {
			*dims = len(e.Vector)
		}
		if len(e.Vector) != *dims {
			return ErrDimensionMismatch{Expected: *dims, Got: len(e.Vector)}
		}
	}
	return nil
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, x := range out {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// writeAtomic writes path through a temp file and rename.
func writeAtomic(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Reset drops all vectors and the fixed dimension.
func (m *MemoryVectorIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries = make(map[string]vectorEntry)
	m.dims = 0
	return nil
}
