package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// failingVector rejects every write.
type failingVector struct {
	store.VectorIndex
}

func (f failingVector) Upsert(context.Context, []store.VectorEntry) error {
	return errors.New("disk full")
}

func sampleEntries() []Entry {
	return []Entry{
		{ID: "a.md#0", Text: "alpha words", Vector: []float32{1, 0}, Metadata: store.VectorMetadata{DocID: "a.md"}},
		{ID: "a.md#1", Text: "more alpha", Vector: []float32{0, 1}, Metadata: store.VectorMetadata{DocID: "a.md"}},
	}
}

func TestDualIndex_UpsertWritesBoth(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	d := NewDualIndex(s.lexical, s.vector, discardLogger())

	require.NoError(t, d.Upsert(ctx, sampleEntries()))

	lex, err := s.lexical.IDs(ctx)
	require.NoError(t, err)
	vec, err := s.vector.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md#0", "a.md#1"}, lex)
	assert.Equal(t, lex, vec)
}

// TS01: a failed vector write leaves neither side written
func TestDualIndex_VectorFailureRollsBackLexical(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	d := NewDualIndex(s.lexical, failingVector{s.vector}, discardLogger())

	// When: the vector side rejects the write
	err := d.Upsert(ctx, sampleEntries())

	// Then: ERR_401 is returned and the lexical entries were removed
	require.Error(t, err)
	assert.Equal(t, brainerrors.ErrCodeIndexConsistency, brainerrors.GetCode(err))
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, s.lexical.Count())
	assert.Zero(t, s.vector.Count())
}

func TestDualIndex_Remove(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	d := NewDualIndex(s.lexical, s.vector, discardLogger())
	require.NoError(t, d.Upsert(ctx, sampleEntries()))

	require.NoError(t, d.Remove(ctx, "a.md#0", "unknown"))
	assert.Equal(t, 1, s.lexical.Count())
	assert.Equal(t, 1, s.vector.Count())

	assert.NoError(t, d.Remove(ctx))
}

func TestDualIndex_ClearResetsDimension(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	d := NewDualIndex(s.lexical, s.vector, discardLogger())
	require.NoError(t, d.Upsert(ctx, sampleEntries()))

	require.NoError(t, d.Clear(ctx))
	assert.Zero(t, s.lexical.Count())
	assert.Zero(t, s.vector.Count())

	// A different dimension is accepted after a clear
	require.NoError(t, d.Upsert(ctx, []Entry{{ID: "b.md#0", Text: "beta", Vector: []float32{1, 2, 3}}}))
}

func TestDualIndex_ClearWithoutResetter(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	require.NoError(t, s.vector.Upsert(ctx, []store.VectorEntry{{ID: "x#0", Vector: []float32{1}}}))

	// failingVector hides Reset, so ids are removed one by one
	d := NewDualIndex(s.lexical, failingVector{s.vector}, discardLogger())
	require.NoError(t, d.Clear(ctx))
	assert.Zero(t, s.vector.Count())
}

func TestDualIndex_SaveCallsSavers(t *testing.T) {
	path := t.TempDir() + "/vectors.gob"
	vec, err := store.NewMemoryVectorIndex(path, 0)
	require.NoError(t, err)
	d := NewDualIndex(store.NewMemoryLexicalIndex(), vec, discardLogger())

	require.NoError(t, d.Upsert(context.Background(), sampleEntries()))
	require.NoError(t, d.Save())

	reloaded, err := store.NewMemoryVectorIndex(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Count())
}

func TestRunner_FailureReasonKeepsRootCause(t *testing.T) {
	// Given: a vault whose vector index rejects every write
	root := t.TempDir()
	writeVault(t, root, map[string]string{"a.md": "alpha note\n"})
	s := newTestStores(t)
	s.vector = failingVector{s.vector}
	r := newTestRunner(t, root, newCountingEmbedder(), s)

	// When: indexing
	report, err := r.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	// Then: the report carries the store's own error text
	require.Len(t, report.Failures, 1)
	assert.Equal(t, brainerrors.ErrCodeIndexConsistency, report.Failures[0].Code)
	assert.Contains(t, report.Failures[0].Reason, "vector index write failed")
	assert.Contains(t, report.Failures[0].Reason, "disk full")
}
