package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

const queriesYAML = `
tier1:
  - id: T1-Q1
    name: compost
    query: turn the compost heap
    expected: [garden.md]
  - id: T1-Q2
    name: standup by folder
    query: quarterly roadmap
    expected: [work/]
    tags: [work]
tier2:
  - id: T2-Q1
    name: sourdough
    query: feed the starter
    expected: [recipes/bread.md]
    k: 3
negative:
  - id: N-Q1
    name: empty
    query: ""
`

// fakeRetriever answers each query text with a fixed ranking of note IDs.
type fakeRetriever struct {
	rankings map[string][]string
	errs     map[string]error
	queries  []search.Query
}

func (f *fakeRetriever) Retrieve(_ context.Context, q search.Query) (*search.Response, error) {
	f.queries = append(f.queries, q)
	if err := f.errs[q.Text]; err != nil {
		return nil, err
	}
	resp := &search.Response{Query: q.Text}
	for i, id := range f.rankings[q.Text] {
		resp.Results = append(resp.Results, search.Result{
			Rank:  i + 1,
			Chunk: &store.ChunkRecord{ID: id + "#0", DocID: id},
		})
	}
	return resp, nil
}

func TestParseQueries(t *testing.T) {
	// When: parsing the query file
	cfg, err := ParseQueries([]byte(queriesYAML))

	// Then: sections and tiers are set
	require.NoError(t, err)
	require.Len(t, cfg.Tier1, 2)
	require.Len(t, cfg.Tier2, 1)
	require.Len(t, cfg.Negative, 1)
	assert.Equal(t, 1, cfg.Tier1[0].Tier)
	assert.Equal(t, 2, cfg.Tier2[0].Tier)
	assert.Equal(t, 0, cfg.Negative[0].Tier)
	assert.Equal(t, []string{"work"}, cfg.Tier1[1].Tags)
	assert.Len(t, cfg.All(), 4)
}

func TestParseQueries_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"TS01: bad yaml", "tier1: [", "failed to parse"},
		{"TS02: no text", "tier1:\n  - id: A\n    expected: [a.md]\n", "has no text"},
		{"TS03: expects nothing", "tier2:\n  - id: B\n    query: x\n", "move it to negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQueries([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(queriesYAML), 0o644))

	cfg, err := LoadQueries(path)
	require.NoError(t, err)
	assert.Len(t, cfg.All(), 4)

	_, err = LoadQueries(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read queries file")
}

func TestValidator_RunQuery(t *testing.T) {
	retriever := &fakeRetriever{rankings: map[string][]string{
		"turn the compost heap": {"work/standup.md", "garden.md", "garden.md"},
	}}
	v := NewValidator(retriever)

	// When: the expected note is second
	result := v.RunQuery(context.Background(), QuerySpec{ID: "A", Query: "turn the compost heap", Expected: []string{"garden.md"}, Tier: 1})

	// Then: it passes at position 1 with duplicate notes collapsed
	assert.True(t, result.Passed)
	assert.Equal(t, 1, result.MatchedAt)
	assert.Equal(t, []string{"work/standup.md", "garden.md"}, result.TopResults)
	assert.Equal(t, DefaultK, retriever.queries[0].K)
	assert.True(t, retriever.queries[0].NoExpand)
}

func TestValidator_RunAll(t *testing.T) {
	cfg, err := ParseQueries([]byte(queriesYAML))
	require.NoError(t, err)
	retriever := &fakeRetriever{
		rankings: map[string][]string{
			"turn the compost heap": {"garden.md"},
			"quarterly roadmap":     {"garden.md", "work/standup.md"},
			"feed the starter":      {"garden.md"},
		},
		errs: map[string]error{
			"": brainerrors.RetrievalError(brainerrors.ErrCodeQueryEmpty, "query is empty", nil),
		},
	}

	// When: running every query
	result := NewValidator(retriever).RunAll(context.Background(), cfg)

	// Then: passes, failures and MRR are tallied
	assert.Equal(t, 2, result.Tier1Pass)
	assert.Equal(t, 2, result.Tier1Total)
	assert.Equal(t, 0, result.Tier2Pass)
	assert.Equal(t, 1, result.Tier2Total)
	assert.Equal(t, 1, result.NegPass)
	assert.False(t, result.Passed())
	assert.InDelta(t, (1.0+0.5+0)/3, result.MRR, 1e-9)

	// And: the tag filter and k reach the retriever
	assert.Equal(t, []string{"work"}, retriever.queries[1].Filter.Tags)
	assert.Equal(t, 3, retriever.queries[2].K)
}

func TestValidator_RunQuery_Error(t *testing.T) {
	retriever := &fakeRetriever{errs: map[string]error{"boom": errors.New("lexical index closed")}}

	result := NewValidator(retriever).RunQuery(context.Background(), QuerySpec{ID: "A", Query: "boom", Expected: []string{"a.md"}, Tier: 1})

	assert.False(t, result.Passed)
	assert.Equal(t, -1, result.MatchedAt)
	assert.True(t, strings.Contains(result.Error, "lexical index closed"))
}

func TestCheckExpected(t *testing.T) {
	tests := []struct {
		name     string
		results  []string
		expected []string
		ok       bool
		at       int
	}{
		{"TS01: exact", []string{"a.md", "b.md"}, []string{"b.md"}, true, 1},
		{"TS02: folder prefix", []string{"x.md", "work/a.md"}, []string{"work/"}, true, 1},
		{"TS03: bare prefix is not a folder", []string{"workshop.md"}, []string{"work"}, false, -1},
		{"TS04: none", []string{"a.md"}, []string{"z.md"}, false, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, at := checkExpected(tt.results, tt.expected)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.at, at)
		})
	}
}
