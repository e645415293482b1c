package store

import (
	"context"
	"math"
	"sort"
	"sync"
)

// BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// lexicalEntry is the per-chunk state of the memory index.
type lexicalEntry struct {
	length int
	tf     map[string]int
}

// MemoryLexicalIndex is a self-contained BM25 index held in memory. It is
// rebuilt from the metadata store's chunk records when opened.
type MemoryLexicalIndex struct {
	mu       sync.RWMutex
	entries  map[string]lexicalEntry
	postings map[string]map[string]int
	totalLen int
	k1, b    float64
	closed   bool
}

var _ LexicalIndex = (*MemoryLexicalIndex)(nil)

// NewMemoryLexicalIndex creates an empty BM25 index with k1 = 1.2, b = 0.75.
func NewMemoryLexicalIndex() *MemoryLexicalIndex {
	return &MemoryLexicalIndex{
		entries:  make(map[string]lexicalEntry),
		postings: make(map[string]map[string]int),
		k1:       DefaultK1,
		b:        DefaultB,
	}
}

func analyze(text string) lexicalEntry {
	tokens := Tokenize(text)
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return lexicalEntry{length: len(tokens), tf: tf}
}

// Upsert indexes or replaces one chunk.
func (m *MemoryLexicalIndex) Upsert(ctx context.Context, id, text string) error {
	return m.UpsertBatch(ctx, []LexicalDoc{{ID: id, Text: text}})
}

// UpsertBatch indexes or replaces chunks. Texts are tokenized before the
// write lock is taken.
func (m *MemoryLexicalIndex) UpsertBatch(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	analyzed := make([]lexicalEntry, len(docs))
	for i, d := range docs {
		analyzed[i] = analyze(d.Text)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for i, d := range docs {
		m.removeLocked(d.ID)
		entry := analyzed[i]
		m.entries[d.ID] = entry
		m.totalLen += entry.length
		for term, n := range entry.tf {
			p := m.postings[term]
			if p == nil {
				p = make(map[string]int)
				m.postings[term] = p
			}
			p[d.ID] = n
		}
	}
	return nil
}

// Remove deletes chunks; unknown IDs are ignored.
func (m *MemoryLexicalIndex) Remove(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, id := range ids {
		m.removeLocked(id)
	}
	return nil
}

func (m *MemoryLexicalIndex) removeLocked(id string) {
	entry, ok := m.entries[id]
	if !ok {
		return
	}
	for term := range entry.tf {
		p := m.postings[term]
		delete(p, id)
		if len(p) == 0 {
			delete(m.postings, term)
		}
	}
	m.totalLen -= entry.length
	delete(m.entries, id)
}

// Query scores chunks with BM25 and returns the best k.
func (m *MemoryLexicalIndex) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	terms := uniqueTokens(Tokenize(text))
	if len(terms) == 0 {
		return []Hit{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	n := float64(len(m.entries))
	if n == 0 {
		return []Hit{}, nil
	}
	avgLen := float64(m.totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		p := m.postings[term]
		if len(p) == 0 {
			continue
		}
		df := float64(len(p))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for id, tf := range p {
			f := float64(tf)
			norm := 1 - m.b + m.b*float64(m.entries[id].length)/avgLen
			scores[id] += idf * f * (m.k1 + 1) / (f + m.k1*norm)
		}
	}

	return topHits(scores, k), nil
}

// IDs returns all indexed chunk IDs in ascending order.
func (m *MemoryLexicalIndex) IDs(ctx context.Context) ([]string, error) {
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

// Count returns the number of indexed chunks.
func (m *MemoryLexicalIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close releases the index.
func (m *MemoryLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	m.postings = nil
	return nil
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// topHits sorts by score desc, then ID asc, and keeps k.
func topHits(scores map[string]float64, k int) []Hit {
	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{ID: id, Score: s})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
