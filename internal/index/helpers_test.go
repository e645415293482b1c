package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/chunk"
	"github.com/Aman-CERP/notebrain/internal/embed"
	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/scanner"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// countingEmbedder records every batch and can fail texts containing a
// marker.
type countingEmbedder struct {
	*embed.StaticEmbedder

	mu      sync.Mutex
	calls   int
	texts   []string
	model   string
	failFor string
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32), model: "static-test"}
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, texts...)
	failFor := e.failFor
	e.mu.Unlock()

	if failFor != "" {
		for _, t := range texts {
			if strings.Contains(t, failFor) {
				return nil, brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingUnavailable, "service unavailable", nil)
			}
		}
	}
	return e.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (e *countingEmbedder) ModelName() string { return e.model }

func (e *countingEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *countingEmbedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.texts...)
}

func (e *countingEmbedder) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = 0
	e.texts = nil
}

// testStores are the three stores a Runner writes.
type testStores struct {
	metadata store.MetadataStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()
	vec, err := store.NewMemoryVectorIndex("", 0)
	require.NoError(t, err)
	return &testStores{
		metadata: store.NewMemoryStore(),
		lexical:  store.NewMemoryLexicalIndex(),
		vector:   vec,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeVault(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestRunner(t *testing.T, root string, emb embed.Embedder, s *testStores) *Runner {
	t.Helper()
	sc, err := scanner.New(scanner.Options{Root: root, Extensions: []string{".md"}, DataDir: ".notebrain"})
	require.NoError(t, err)

	r, err := NewRunner(RunnerConfig{Workers: 2}, RunnerDependencies{
		Scanner:  sc,
		Embedder: emb,
		Metadata: s.metadata,
		Lexical:  s.lexical,
		Vector:   s.vector,
		Chunker:  chunk.New(chunk.Options{MaxSize: 200, Overlap: 0}),
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	return r
}

// requireLockstep asserts the three stores hold the same chunk IDs.
func requireLockstep(t *testing.T, s *testStores) []string {
	t.Helper()
	ctx := context.Background()
	recordIDs, err := s.metadata.ChunkIDs(ctx)
	require.NoError(t, err)
	lexIDs, err := s.lexical.IDs(ctx)
	require.NoError(t, err)
	vecIDs, err := s.vector.IDs(ctx)
	require.NoError(t, err)
	require.Equal(t, recordIDs, lexIDs, "lexical index out of step")
	require.Equal(t, recordIDs, vecIDs, "vector index out of step")
	return recordIDs
}

const sectionedNote = `---
title: Garden
tags: [plants]
---
# Tomatoes

Tomatoes want full sun and deep watering twice a week.

# Basil

Basil grows well next to tomatoes and dislikes cold nights.

# Mint

Mint spreads quickly so keep it in a pot.
`
