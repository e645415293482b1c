package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Aman-CERP/notebrain/internal/document"
)

// StoreConfig tunes the SQLite metadata store.
type StoreConfig struct {
	CacheSizeMB int // default 64
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// SQLiteStore is the MetadataStore backed by modernc.org/sqlite in WAL mode.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the store at path with default settings.
// An empty path creates an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens or creates the store at path.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = DefaultStoreConfig().CacheSizeMB
	}
	db, err := openSQLite(path, cfg.CacheSizeMB)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		tags         TEXT NOT NULL,
		links        TEXT NOT NULL,
		tasks        TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		mod_time     INTEGER NOT NULL,
		created      INTEGER,
		chunk_ids    TEXT NOT NULL,
		indexed_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id           TEXT PRIMARY KEY,
		doc_id       TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		seq          INTEGER NOT NULL,
		text         TEXT NOT NULL,
		breadcrumb   TEXT NOT NULL,
		kind         TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset   INTEGER NOT NULL,
		hash         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

const documentColumns = `id, title, tags, links, tasks, content_hash, mod_time, created, chunk_ids, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var (
		d                            DocumentRecord
		tags, links, tasks, chunkIDs string
		modTime, indexedAt           int64
		created                      sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Title, &tags, &links, &tasks, &d.ContentHash,
		&modTime, &created, &chunkIDs, &indexedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(tags, &d.Tags); err != nil {
		return nil, err
	}
	if err := decodeJSON(links, &d.Links); err != nil {
		return nil, err
	}
	if err := decodeJSON(tasks, &d.Tasks); err != nil {
		return nil, err
	}
	if err := decodeJSON(chunkIDs, &d.ChunkIDs); err != nil {
		return nil, err
	}
	d.ModTime = time.Unix(0, modTime)
	d.IndexedAt = time.Unix(0, indexedAt)
	if created.Valid {
		t := time.Unix(0, created.Int64)
		d.Created = &t
	}
	return &d, nil
}

func decodeJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// GetDocument returns nil, nil when the document is unknown.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// ListDocuments returns all documents in ID order.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []*DocumentRecord{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SaveDocument upserts the document and replaces its chunks in one
// transaction.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *DocumentRecord, chunks []*ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var created sql.NullInt64
	if doc.Created != nil {
		created = sql.NullInt64{Int64: doc.Created.UnixNano(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			tags = excluded.tags,
			links = excluded.links,
			tasks = excluded.tasks,
			content_hash = excluded.content_hash,
			mod_time = excluded.mod_time,
			created = excluded.created,
			chunk_ids = excluded.chunk_ids,
			indexed_at = excluded.indexed_at`,
		doc.ID, doc.Title, encodeJSON(nonNil(doc.Tags)), encodeJSON(nonNil(doc.Links)),
		encodeJSON(nonNilTasks(doc.Tasks)), doc.ContentHash, doc.ModTime.UnixNano(), created,
		encodeJSON(nonNil(doc.ChunkIDs)), doc.IndexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks of %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, doc_id, seq, text, breadcrumb, kind, start_offset, end_offset, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, doc.ID, c.Seq, c.Text, encodeJSON(nonNil(c.Breadcrumb)),
			string(c.Kind), c.Start, c.End, c.Hash); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteDocument removes the document; its chunks cascade.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// CountDocuments returns the number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM documents`)
}

// CountChunks returns the number of chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM chunks`)
}

func (s *SQLiteStore) count(ctx context.Context, query string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

const chunkColumns = `id, doc_id, seq, text, breadcrumb, kind, start_offset, end_offset, hash`

func scanChunk(row rowScanner) (*ChunkRecord, error) {
	var (
		c          ChunkRecord
		breadcrumb string
		kind       string
	)
	if err := row.Scan(&c.ID, &c.DocID, &c.Seq, &c.Text, &breadcrumb, &kind, &c.Start, &c.End, &c.Hash); err != nil {
		return nil, err
	}
	if err := decodeJSON(breadcrumb, &c.Breadcrumb); err != nil {
		return nil, err
	}
	c.Kind = document.Kind(kind)
	return &c, nil
}

// GetChunks returns the known chunks among ids.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) (map[string]*ChunkRecord, error) {
	out := make(map[string]*ChunkRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	// Stay well below SQLite's bound-parameter limit
	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		inClause, args := placeholders(ids[start:end])
		if err := s.queryChunks(ctx, func(c *ChunkRecord) error {
			out[c.ID] = c
			return nil
		}, `SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+inClause+`)`, args...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ChunksForDocument returns a document's chunks in Seq order.
func (s *SQLiteStore) ChunksForDocument(ctx context.Context, docID string) ([]*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	chunks := []*ChunkRecord{}
	err := s.queryChunks(ctx, func(c *ChunkRecord) error {
		chunks = append(chunks, c)
		return nil
	}, `SELECT `+chunkColumns+` FROM chunks WHERE doc_id = ? ORDER BY seq`, docID)
	return chunks, err
}

// ChunkIDs returns all chunk IDs in ascending order.
func (s *SQLiteStore) ChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return queryStrings(ctx, s.db, `SELECT id FROM chunks ORDER BY id`)
}

// EachChunk streams all chunks in ID order.
func (s *SQLiteStore) EachChunk(ctx context.Context, fn func(*ChunkRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.queryChunks(ctx, fn, `SELECT `+chunkColumns+` FROM chunks ORDER BY id`)
}

func (s *SQLiteStore) queryChunks(ctx context.Context, fn func(*ChunkRecord) error, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return fmt.Errorf("scan chunk: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListTasks collects tasks from every document.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]TaskRecord, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return collectTasks(docs), nil
}

// GetState returns "" without error for unknown keys.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState upserts a state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTasks(t []document.Task) []document.Task {
	if t == nil {
		return []document.Task{}
	}
	return t
}
