package index

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// seedDocument writes a document record with its chunks into all stores.
func seedDocument(t *testing.T, s *testStores, docID string, n int) {
	t.Helper()
	ctx := context.Background()
	rec := &store.DocumentRecord{ID: docID, Title: docID, ContentHash: "h-" + docID}
	var chunks []*store.ChunkRecord
	var entries []Entry
	for i := 0; i < n; i++ {
		id := docID + "#" + string(rune('0'+i))
		rec.ChunkIDs = append(rec.ChunkIDs, id)
		chunks = append(chunks, &store.ChunkRecord{ID: id, DocID: docID, Seq: i, Text: "text " + id, Hash: id})
		entries = append(entries, Entry{ID: id, Text: "text " + id, Vector: []float32{1, float32(i)}, Metadata: store.VectorMetadata{DocID: docID}})
	}
	require.NoError(t, s.metadata.SaveDocument(ctx, rec, chunks))
	require.NoError(t, NewDualIndex(s.lexical, s.vector, nil).Upsert(ctx, entries))
}

func TestConsistencyChecker_Consistent(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	seedDocument(t, s, "a.md", 2)
	c := NewConsistencyChecker(s.metadata, NewDualIndex(s.lexical, s.vector, nil), discardLogger())

	ok, err := c.QuickCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	result, err := c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, result.Consistent())
	assert.Equal(t, 2, result.Checked)
}

// TS01: every kind of drift is reported in a stable order
func TestConsistencyChecker_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	seedDocument(t, s, "a.md", 2)
	seedDocument(t, s, "b.md", 1)

	// Given: an orphan in each index and a record missing from each index
	require.NoError(t, s.lexical.Upsert(ctx, "zz.md#0", "orphan"))
	require.NoError(t, s.vector.Upsert(ctx, []store.VectorEntry{{ID: "zz.md#1", Vector: []float32{1, 1}}}))
	require.NoError(t, s.lexical.Remove(ctx, "a.md#1"))
	require.NoError(t, s.vector.Remove(ctx, "b.md#0"))

	c := NewConsistencyChecker(s.metadata, NewDualIndex(s.lexical, s.vector, nil), discardLogger())

	// When: checking
	result, err := c.Check(ctx)
	require.NoError(t, err)

	// Then: four issues ordered by chunk ID
	require.Len(t, result.Inconsistencies, 4)
	got := make([]string, len(result.Inconsistencies))
	for i, issue := range result.Inconsistencies {
		got[i] = issue.ChunkID + " " + issue.Type.String()
	}
	assert.Equal(t, []string{
		"a.md#1 missing_lexical",
		"b.md#0 missing_vector",
		"zz.md#0 orphan_lexical",
		"zz.md#1 orphan_vector",
	}, got)
}

func TestConsistencyChecker_Reconcile(t *testing.T) {
	ctx := context.Background()
	s := newTestStores(t)
	seedDocument(t, s, "a.md", 2)
	seedDocument(t, s, "b.md", 1)
	require.NoError(t, s.lexical.Upsert(ctx, "zz.md#0", "orphan"))
	require.NoError(t, s.vector.Remove(ctx, "a.md#1"))

	c := NewConsistencyChecker(s.metadata, NewDualIndex(s.lexical, s.vector, nil), discardLogger())
	result, err := c.Check(ctx)
	require.NoError(t, err)

	// When: reconciling
	repaired, err := c.Reconcile(ctx, result.Inconsistencies)
	require.NoError(t, err)

	// Then: the orphan is gone and a.md is forgotten entirely
	assert.Equal(t, 1, repaired.OrphansRemoved)
	assert.Equal(t, []string{"a.md"}, repaired.ForgottenDocs)
	assert.Equal(t, []string{"b.md#0"}, requireLockstep(t, s))

	doc, err := s.metadata.GetDocument(ctx, "a.md")
	require.NoError(t, err)
	assert.Nil(t, doc)

	after, err := c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, after.Consistent())
}

func TestInconsistencyType_JSON(t *testing.T) {
	data, err := json.Marshal(Inconsistency{Type: InconsistencyMissingVector, ChunkID: "a.md#0"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"missing_vector"`)
	assert.Equal(t, "unknown", InconsistencyType(42).String())
}

func TestInconsistencyType_UnmarshalJSON(t *testing.T) {
	var issue Inconsistency
	require.NoError(t, json.Unmarshal([]byte(`{"type":"orphan_lexical","chunk_id":"a.md#1"}`), &issue))
	assert.Equal(t, InconsistencyOrphanLexical, issue.Type)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"sideways"}`), &issue))
}
