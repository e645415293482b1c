package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteFTSIndex is a LexicalIndex backed by SQLite FTS5 and its bm25()
// ranking function. Content is stored pre-tokenized so every backend agrees
// on terms.
type SQLiteFTSIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ LexicalIndex = (*SQLiteFTSIndex)(nil)

// validateFTSIntegrity checks an existing database before opening it.
func validateFTSIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// openSQLite opens a database with the WAL pragmas shared by the lexical
// index and the metadata store. An empty path opens an in-memory database.
func openSQLite(path string, cacheSizeMB int) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

// NewSQLiteFTSIndex opens or creates an FTS5 index at path. An empty path
// creates an in-memory index. A corrupt database is cleared; the caller
// rebuilds it from chunk records.
func NewSQLiteFTSIndex(path string) (*SQLiteFTSIndex, error) {
	if path != "" {
		if validErr := validateFTSIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
	}

	db, err := openSQLite(path, 16)
	if err != nil {
		return nil, err
	}

	idx := &SQLiteFTSIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteFTSIndex) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS chunk_ids (
		chunk_id TEXT PRIMARY KEY
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert indexes or replaces one chunk.
func (s *SQLiteFTSIndex) Upsert(ctx context.Context, id, text string) error {
	return s.UpsertBatch(ctx, []LexicalDoc{{ID: id, Text: text}})
}

// UpsertBatch indexes or replaces chunks in one transaction.
func (s *SQLiteFTSIndex) UpsertBatch(ctx context.Context, docs []LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	processed := make([]string, len(docs))
	for i, d := range docs {
		processed[i] = strings.Join(Tokenize(d.Text), " ")
	}

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

	// FTS5 virtual tables don't support REPLACE, so delete first
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertStmt.Close()

	idStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunk_ids(chunk_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ID statement: %w", err)
	}
	defer idStmt.Close()

	for i, d := range docs {
		if _, err := deleteStmt.ExecContext(ctx, d.ID); err != nil {
			return fmt.Errorf("failed to delete existing chunk %s: %w", d.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, d.ID, processed[i]); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", d.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, d.ID); err != nil {
			return fmt.Errorf("failed to track chunk ID %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Remove deletes chunks.
func (s *SQLiteFTSIndex) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

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

	inClause, args := placeholders(ids)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM fts_content WHERE chunk_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM chunk_ids WHERE chunk_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("failed to delete from chunk_ids: %w", err)
	}
	return tx.Commit()
}

// Query matches any query term and ranks with bm25().
func (s *SQLiteFTSIndex) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	tokens := uniqueTokens(Tokenize(text))
	if len(tokens) == 0 {
		return []Hit{}, nil
	}

	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = `"` + t + `"`
	}
	match := strings.Join(terms, " OR ")

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	// bm25() is negative; lower is better
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE fts_content MATCH ?
		ORDER BY score, chunk_id
		LIMIT ?`, match, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		h.Score = -h.Score
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// IDs returns all chunk IDs in ascending order.
func (s *SQLiteFTSIndex) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return queryStrings(ctx, s.db, `SELECT chunk_id FROM chunk_ids ORDER BY chunk_id`)
}

// Count returns the number of indexed chunks.
func (s *SQLiteFTSIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunk_ids`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteFTSIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func placeholders(ids []string) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ","), args
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
