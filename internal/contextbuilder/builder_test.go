package contextbuilder

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

func result(docID, title string, seq int, text string, breadcrumb ...string) search.Result {
	id := fmt.Sprintf("%s#%d", docID, seq)
	return search.Result{
		ChunkID:  id,
		DocTitle: title,
		Chunk: &store.ChunkRecord{
			ID:         id,
			DocID:      docID,
			Seq:        seq,
			Text:       text,
			Breadcrumb: breadcrumb,
		},
	}
}

func TestBuilder_EstimateTokens(t *testing.T) {
	b := NewBuilder(4, nil)

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, b.EstimateTokens(tt.text))
		})
	}
}

// TS01: stop at the first passage that does not fit
func TestBuilder_StopsAtBudget(t *testing.T) {
	b := NewBuilder(1, nil)
	first := result("a.md", "A", 0, strings.Repeat("x", 20))
	second := result("b.md", "B", 0, strings.Repeat("y", 200))
	third := result("c.md", "C", 0, "z")

	// Given: a budget that fits the first passage only
	one := b.EstimateTokens("--- From: A ---\n" + first.Chunk.Text)
	bundle := b.Build([]search.Result{first, second, third}, one+10)

	// Then: the small third passage is not pulled forward
	require.Len(t, bundle.Passages, 1)
	assert.Equal(t, "a.md#0", bundle.Passages[0].ChunkID)
	assert.Equal(t, one, bundle.TotalTokens)
	assert.Equal(t, 2, bundle.Excluded)
	assert.Equal(t, one+10, bundle.Budget)

	// And: passage text is whole
	assert.Equal(t, first.Chunk.Text, bundle.Passages[0].Text)
}

func TestBuilder_EstimateIncludesHeaders(t *testing.T) {
	b := NewBuilder(1, nil)
	r := result("notes/a.md", "Alpha", 0, "body", "Intro", "Details")

	bundle := b.Build([]search.Result{r}, 1000)

	rendered := "--- From: Alpha ---\n[Intro > Details]\nbody"
	require.Len(t, bundle.Passages, 1)
	assert.Equal(t, len(rendered), bundle.Passages[0].Tokens)
}

func TestBuilder_EdgeCases(t *testing.T) {
	b := NewBuilder(4, nil)
	results := []search.Result{
		result("a.md", "A", 0, "alpha"),
		{ChunkID: "gone.md#0"},
		result("b.md", "", 0, "beta"),
	}

	t.Run("zero budget excludes everything", func(t *testing.T) {
		bundle := b.Build(results, 0)
		assert.Empty(t, bundle.Passages)
		assert.Equal(t, 2, bundle.Excluded)
		assert.Equal(t, "", bundle.Render())
	})

	t.Run("records without chunks are skipped", func(t *testing.T) {
		bundle := b.Build(results, 1000)
		require.Len(t, bundle.Passages, 2)
		assert.Zero(t, bundle.Excluded)
	})

	t.Run("missing title falls back to the document ID", func(t *testing.T) {
		bundle := b.Build(results, 1000)
		assert.Equal(t, "b.md", bundle.Passages[1].Title)
	})

	t.Run("no results", func(t *testing.T) {
		bundle := b.Build(nil, 100)
		assert.NotNil(t, bundle.Passages)
		assert.Zero(t, bundle.TotalTokens)
	})
}

// TS02: the budget holds and output is deterministic for arbitrary input
func TestBuilder_BudgetProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBuilder(3.5, nil)

	for i := 0; i < 200; i++ {
		n := rng.Intn(15)
		results := make([]search.Result, n)
		for j := range results {
			text := strings.Repeat("word ", rng.Intn(60)+1)
			results[j] = result(fmt.Sprintf("d%d.md", rng.Intn(4)), "T", j, text, "H")
		}
		budget := rng.Intn(400)

		bundle := b.Build(results, budget)

		assert.LessOrEqual(t, bundle.TotalTokens, budget)
		assert.Equal(t, n, len(bundle.Passages)+bundle.Excluded)
		for k, p := range bundle.Passages {
			assert.Equal(t, results[k].ChunkID, p.ChunkID, "ranked order is kept")
		}
		assert.Equal(t, bundle, b.Build(results, budget))
	}
}

func TestBundle_Render(t *testing.T) {
	b := NewBuilder(4, nil)
	bundle := b.Build([]search.Result{
		result("garden.md", "Garden", 1, "Basil needs sun.", "Garden", "Herbs"),
		result("garden.md", "Garden", 0, "Plan the beds."),
		result("compost.md", "Compost", 0, "Turn weekly.", "Compost"),
		result("garden.md", "Garden", 2, "Mint spreads."),
	}, 10000)

	want := "--- From: Garden ---\n[Garden > Herbs]\nBasil needs sun.\n\n" +
		"Plan the beds.\n\n" +
		"--- From: Compost ---\n[Compost]\nTurn weekly.\n\n" +
		"--- From: Garden ---\nMint spreads."
	assert.Equal(t, want, bundle.Render())

	// Rendering never costs more than the estimate
	assert.LessOrEqual(t, b.EstimateTokens(bundle.Render()), bundle.TotalTokens+len(bundle.Passages))
}
