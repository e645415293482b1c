package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryStore is a MetadataStore held in memory. Records are copied in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*DocumentRecord
	chunks map[string]*ChunkRecord
	state  map[string]string
	closed bool
}

var _ MetadataStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*DocumentRecord),
		chunks: make(map[string]*ChunkRecord),
		state:  make(map[string]string),
	}
}

func cloneDocument(d *DocumentRecord) *DocumentRecord {
	c := *d
	c.Tags = slices.Clone(d.Tags)
	c.Links = slices.Clone(d.Links)
	c.Tasks = slices.Clone(d.Tasks)
	c.ChunkIDs = slices.Clone(d.ChunkIDs)
	if d.Created != nil {
		t := *d.Created
		c.Created = &t
	}
	return &c
}

func cloneChunk(ch *ChunkRecord) *ChunkRecord {
	c := *ch
	c.Breadcrumb = slices.Clone(ch.Breadcrumb)
	return &c
}

// GetDocument returns nil, nil when the document is unknown.
func (m *MemoryStore) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return cloneDocument(d), nil
}

// ListDocuments returns all documents in ID order.
func (m *MemoryStore) ListDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	docs := make([]*DocumentRecord, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, cloneDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// SaveDocument replaces the document and its chunk set.
func (m *MemoryStore) SaveDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deleteChunksLocked(doc.ID)
	m.docs[doc.ID] = cloneDocument(doc)
	for _, c := range chunks {
		cc := cloneChunk(c)
		cc.DocID = doc.ID
		m.chunks[c.ID] = cc
	}
	return nil
}

// DeleteDocument removes the document and its chunks.
func (m *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.deleteChunksLocked(id)
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) deleteChunksLocked(docID string) {
	for id, c := range m.chunks {
		if c.DocID == docID {
			delete(m.chunks, id)
		}
	}
}

// CountDocuments returns the number of documents.
func (m *MemoryStore) CountDocuments(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.docs), nil
}

// GetChunks returns the known chunks among ids.
func (m *MemoryStore) GetChunks(ctx context.Context, ids []string) (map[string]*ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]*ChunkRecord, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out[id] = cloneChunk(c)
		}
	}
	return out, nil
}

// ChunksForDocument returns a document's chunks in Seq order.
func (m *MemoryStore) ChunksForDocument(ctx context.Context, docID string) ([]*ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	chunks := []*ChunkRecord{}
	for _, c := range m.chunks {
		if c.DocID == docID {
			chunks = append(chunks, cloneChunk(c))
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
	return chunks, nil
}

// ChunkIDs returns all chunk IDs in ascending order.
func (m *MemoryStore) ChunkIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.sortedChunkIDsLocked(), nil
}

func (m *MemoryStore) sortedChunkIDsLocked() []string {
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountChunks returns the number of chunks.
func (m *MemoryStore) CountChunks(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.chunks), nil
}

// EachChunk calls fn for every chunk in ID order on a snapshot of the store.
func (m *MemoryStore) EachChunk(ctx context.Context, fn func(*ChunkRecord) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	ids := m.sortedChunkIDsLocked()
	chunks := make([]*ChunkRecord, len(ids))
	for i, id := range ids {
		chunks[i] = cloneChunk(m.chunks[id])
	}
	m.mu.RUnlock()

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// ListTasks collects tasks from every document.
func (m *MemoryStore) ListTasks(ctx context.Context) ([]TaskRecord, error) {
	docs, err := m.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return collectTasks(docs), nil
}

// GetState returns "" without error for unknown keys.
func (m *MemoryStore) GetState(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", ErrClosed
	}
	return m.state[key], nil
}

// SetState upserts a state value.
func (m *MemoryStore) SetState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.state[key] = value
	return nil
}

// Close releases the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// collectTasks orders pending before done, dated before undated, earlier
// due first, then document ID and line.
func collectTasks(docs []*DocumentRecord) []TaskRecord {
	var tasks []TaskRecord
	for _, d := range docs {
		for _, t := range d.Tasks {
			tasks = append(tasks, TaskRecord{DocID: d.ID, DocTitle: d.Title, Task: t})
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Done != b.Done {
			return !a.Done
		}
		if (a.Due == nil) != (b.Due == nil) {
			return a.Due != nil
		}
		if a.Due != nil && !a.Due.Equal(*b.Due) {
			return a.Due.Before(*b.Due)
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.Line < b.Line
	})
	return tasks
}
