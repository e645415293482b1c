package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/validation"
)

const gardenQueries = `tier1:
  - id: T1-Q1
    name: compost
    query: compost heap
    expected: [garden.md]
  - id: T1-Q2
    name: roadmap
    query: quarterly roadmap
    expected: [work/]
negative:
  - id: N-Q1
    query: ""
`

func TestEvalCmd(t *testing.T) {
	// Given: an indexed vault with a query file at its root
	dir := indexed(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultQueriesFile), []byte(gardenQueries), 0o644))

	// When: running eval
	out, err := execute(t, "eval", "--vault", dir)

	// Then: every query lands first
	require.NoError(t, err)
	assert.Contains(t, out, "T1-Q1 compost: rank 1")
	assert.Contains(t, out, "T1-Q2 roadmap: rank 1")
	assert.Contains(t, out, "tier1 2/2")
	assert.Contains(t, out, "MRR 1.000")
}

func TestEvalCmd_JSON(t *testing.T) {
	dir := indexed(t)
	queries := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(queries, []byte(gardenQueries), 0o644))

	out, err := execute(t, "eval", "--vault", dir, "--queries", queries, "--json")

	require.NoError(t, err)
	var result validation.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Tier1Pass)
	assert.Equal(t, 1, result.NegPass)
	assert.InDelta(t, 1.0, result.MRR, 1e-9)
}

func TestEvalCmd_Failures(t *testing.T) {
	dir := indexed(t)
	missing := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("tier1:\n  - id: X\n    query: compost heap\n    expected: [nowhere.md]\n"), 0o644))

	out, err := execute(t, "eval", "--vault", dir, "--queries", missing)
	assert.ErrorContains(t, err, "1 of 1 tier 1 queries failed")
	assert.Contains(t, out, "expected [nowhere.md]")

	_, err = execute(t, "eval", "--vault", dir, "--min-mrr", "2")
	assert.ErrorContains(t, err, "--min-mrr")

	_, err = execute(t, "eval", "--vault", dir)
	assert.ErrorContains(t, err, "failed to read queries file")
}
