package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/embed"
	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// stubVector returns canned hits and records what it was asked.
type stubVector struct {
	store.VectorIndex
	hits      []store.Hit
	err       error
	block     bool
	gotK      int
	gotFilter store.Filter
}

func (s *stubVector) Query(ctx context.Context, _ []float32, k int, f store.Filter) ([]store.Hit, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.gotK, s.gotFilter = k, f
	return s.hits, s.err
}

type stubLexical struct {
	store.LexicalIndex
	hits  []store.Hit
	err   error
	block bool
	gotK  int
}

func (s *stubLexical) Query(ctx context.Context, _ string, k int) ([]store.Hit, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.gotK = k
	return s.hits, s.err
}

type recordingObserver struct {
	responses []*Response
	errs      []error
}

func (o *recordingObserver) ObserveQuery(resp *Response, err error) {
	o.responses = append(o.responses, resp)
	o.errs = append(o.errs, err)
}

type fixture struct {
	metadata *store.MemoryStore
	vector   *stubVector
	lexical  *stubLexical
	observer *recordingObserver
}

func newFixture() *fixture {
	return &fixture{
		metadata: store.NewMemoryStore(),
		vector:   &stubVector{},
		lexical:  &stubLexical{},
		observer: &recordingObserver{},
	}
}

// seed stores a document with n chunks named <id>#0..n-1.
func (f *fixture) seed(t *testing.T, id, title string, tags, links []string, n int) {
	t.Helper()
	doc := &store.DocumentRecord{ID: id, Title: title, Tags: tags, Links: links}
	var chunks []*store.ChunkRecord
	for i := 0; i < n; i++ {
		c := &store.ChunkRecord{
			ID:         fmt.Sprintf("%s#%d", id, i),
			DocID:      id,
			Seq:        i,
			Text:       fmt.Sprintf("%s chunk %d", title, i),
			Breadcrumb: []string{title},
		}
		chunks = append(chunks, c)
		doc.ChunkIDs = append(doc.ChunkIDs, c.ID)
	}
	require.NoError(t, f.metadata.SaveDocument(context.Background(), doc, chunks))
}

func (f *fixture) retriever(t *testing.T, cfg Config) *Retriever {
	t.Helper()
	r, err := NewRetriever(cfg, Dependencies{
		Embedder: embed.NewStaticEmbedder(16),
		Lexical:  f.lexical,
		Vector:   f.vector,
		Metadata: f.metadata,
		Observer: f.observer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func noExpansion() Config {
	cfg := DefaultConfig()
	cfg.LinkExpansion = false
	return cfg
}

func TestNewRetriever_RequiresDependencies(t *testing.T) {
	_, err := NewRetriever(DefaultConfig(), Dependencies{})
	assert.ErrorIs(t, err, ErrNilDependency)

	f := newFixture()
	cfg := DefaultConfig()
	cfg.Fusion = "borda"
	_, err = NewRetriever(cfg, Dependencies{
		Embedder: embed.NewStaticEmbedder(16),
		Lexical:  f.lexical,
		Vector:   f.vector,
		Metadata: f.metadata,
	})
	assert.Error(t, err)
}

// TS01: fused top K with chunk records attached
func TestRetriever_FusesBothPaths(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(t, "a.md", "Alpha", nil, nil, 2)
	f.seed(t, "b.md", "Beta", nil, nil, 1)
	f.seed(t, "c.md", "Gamma", nil, nil, 1)

	// Given: vector [C1,C2,C3] and lexical [C3,C1,C4]
	f.vector.hits = hits("a.md#0", "a.md#1", "b.md#0")
	f.lexical.hits = hits("b.md#0", "a.md#0", "c.md#0")
	r := f.retriever(t, noExpansion())

	// When: asking for two results
	resp, err := r.Retrieve(ctx, Query{Text: "  garden plans ", K: 2})
	require.NoError(t, err)

	// Then: the chunks found by both paths win
	assert.Equal(t, []string{"a.md#0", "b.md#0"}, resultIDs(resp.Results))
	assert.Equal(t, "garden plans", resp.Query)
	assert.Equal(t, FusionRRF, resp.Fusion)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 3, resp.VectorHits)
	assert.Equal(t, 3, resp.LexicalHits)

	// And: each path was over-fetched
	assert.Equal(t, 6, f.vector.gotK)
	assert.Equal(t, 6, f.lexical.gotK)

	// And: records and titles are attached
	first := resp.Results[0]
	require.NotNil(t, first.Chunk)
	assert.Equal(t, "Alpha chunk 0", first.Chunk.Text)
	assert.Equal(t, "Alpha", first.DocTitle)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)

	// And: the observer saw the response
	require.Len(t, f.observer.responses, 1)
	assert.Same(t, resp, f.observer.responses[0])
}

func TestRetriever_EmptyQuery(t *testing.T) {
	f := newFixture()
	r := f.retriever(t, noExpansion())

	_, err := r.Retrieve(context.Background(), Query{Text: "   "})

	assert.Equal(t, brainerrors.ErrCodeQueryEmpty, brainerrors.GetCode(err))
	require.Len(t, f.observer.errs, 1)
	assert.Error(t, f.observer.errs[0])
}

func TestRetriever_DegradedMode(t *testing.T) {
	tests := []struct {
		name       string
		vectorErr  error
		lexicalErr error
		wantPath   string
		want       []string
	}{
		{"vector path down", errors.New("connection refused"), nil, PathVector, []string{"b.md#0", "a.md#0"}},
		{"lexical path down", nil, errors.New("index corrupt"), PathLexical, []string{"a.md#0", "b.md#0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.seed(t, "a.md", "A", nil, nil, 1)
			f.seed(t, "b.md", "B", nil, nil, 1)
			f.vector.hits, f.vector.err = hits("a.md#0", "b.md#0"), tt.vectorErr
			f.lexical.hits, f.lexical.err = hits("b.md#0", "a.md#0"), tt.lexicalErr
			r := f.retriever(t, noExpansion())

			resp, err := r.Retrieve(context.Background(), Query{Text: "q", K: 5})

			// Then: the other path's ranking is returned, flagged degraded
			require.NoError(t, err)
			assert.True(t, resp.Degraded)
			assert.Equal(t, tt.wantPath, resp.DegradedPath)
			assert.NotEmpty(t, resp.DegradedReason)
			assert.Equal(t, tt.want, resultIDs(resp.Results))
		})
	}
}

func TestRetriever_BothPathsFail(t *testing.T) {
	f := newFixture()
	f.vector.err = errors.New("vector down")
	f.lexical.err = errors.New("lexical down")
	r := f.retriever(t, noExpansion())

	_, err := r.Retrieve(context.Background(), Query{Text: "q"})

	require.Error(t, err)
	assert.Equal(t, brainerrors.ErrCodeRetrievalFailed, brainerrors.GetCode(err))
	assert.Contains(t, err.Error(), "both retrieval paths failed")
}

func TestRetriever_PathTimeout(t *testing.T) {
	f := newFixture()
	f.seed(t, "a.md", "A", nil, nil, 1)
	f.vector.block = true
	f.lexical.hits = hits("a.md#0")
	cfg := noExpansion()
	cfg.Timeout = 30 * time.Millisecond
	r := f.retriever(t, cfg)

	// When: the vector path never answers
	start := time.Now()
	resp, err := r.Retrieve(context.Background(), Query{Text: "q"})

	// Then: the query returns after the path timeout with lexical results
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, resp.Degraded)
	assert.Equal(t, PathVector, resp.DegradedPath)
	assert.Contains(t, resp.DegradedReason, brainerrors.ErrCodeRetrievalTimeout)
	assert.Equal(t, []string{"a.md#0"}, resultIDs(resp.Results))
}

func TestRetriever_CancelledContext(t *testing.T) {
	f := newFixture()
	r := f.retriever(t, noExpansion())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Retrieve(ctx, Query{Text: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetriever_FilterAppliesToBothPaths(t *testing.T) {
	f := newFixture()
	f.seed(t, "garden.md", "Garden", []string{"plants"}, nil, 1)
	f.seed(t, "taxes.md", "Taxes", []string{"money"}, nil, 1)
	f.lexical.hits = hits("taxes.md#0", "garden.md#0")
	r := f.retriever(t, noExpansion())

	filter := store.Filter{Tags: []string{"plants"}}
	resp, err := r.Retrieve(context.Background(), Query{Text: "q", Filter: filter})
	require.NoError(t, err)

	// Then: the vector index received the filter
	assert.Equal(t, filter, f.vector.gotFilter)

	// And: lexical hits were post-filtered and re-ranked
	assert.Equal(t, []string{"garden.md#0"}, resultIDs(resp.Results))
	assert.Equal(t, 1, resp.Results[0].LexicalRank)
	assert.Equal(t, 1, resp.LexicalHits)
}

func TestRetriever_SkipsChunksWithoutRecords(t *testing.T) {
	f := newFixture()
	f.seed(t, "a.md", "A", nil, nil, 1)
	f.vector.hits = hits("gone.md#0", "a.md#0")
	r := f.retriever(t, noExpansion())

	resp, err := r.Retrieve(context.Background(), Query{Text: "q"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a.md#0", resp.Results[0].ChunkID)
	assert.Equal(t, 1, resp.Results[0].Rank)
}

func TestRetriever_FusionOverride(t *testing.T) {
	f := newFixture()
	f.seed(t, "a.md", "A", nil, nil, 1)
	f.seed(t, "b.md", "B", nil, nil, 1)
	f.vector.hits = []store.Hit{{ID: "a.md#0", Score: 0.9}, {ID: "b.md#0", Score: 0.8}}
	f.lexical.hits = []store.Hit{{ID: "b.md#0", Score: 12}}
	r := f.retriever(t, noExpansion())

	resp, err := r.Retrieve(context.Background(), Query{Text: "q", Fusion: FusionWeighted})
	require.NoError(t, err)
	assert.Equal(t, FusionWeighted, resp.Fusion)
	assert.Equal(t, []string{"b.md#0", "a.md#0"}, resultIDs(resp.Results))

	_, err = r.Retrieve(context.Background(), Query{Text: "q", Fusion: "borda"})
	assert.Equal(t, brainerrors.ErrCodeConfigInvalid, brainerrors.GetCode(err))
}

// TS02: linked notes are appended as lower-priority results
func TestRetriever_LinkExpansion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(t, "a.md", "A", nil, []string{"b"}, 1)
	f.seed(t, "b.md", "B", nil, []string{"c"}, 3)
	f.seed(t, "c.md", "C", nil, nil, 1)
	f.vector.hits = hits("a.md#0")
	f.lexical.hits = hits("a.md#0")

	cfg := DefaultConfig()
	cfg.ExpansionFraction = 0.5
	r := f.retriever(t, cfg)

	// When: K=4 allows floor(0.5*4) = 2 expanded chunks
	resp, err := r.Retrieve(ctx, Query{Text: "q", K: 4})
	require.NoError(t, err)

	// Then: the first two chunks of the linked note follow the fused results
	assert.Equal(t, []string{"a.md#0", "b.md#0", "b.md#1"}, resultIDs(resp.Results))
	assert.False(t, resp.Results[0].Expanded)
	assert.True(t, resp.Results[1].Expanded)
	assert.Equal(t, 2, resp.Results[1].Rank)
	assert.Equal(t, "B", resp.Results[1].DocTitle)
	assert.Equal(t, 2, resp.Expanded)

	// And: two hops reach the second-degree note when the cap allows
	cfg.LinkExpansionHops = 2
	cfg.ExpansionFraction = 1
	r = f.retriever(t, cfg)
	resp, err = r.Retrieve(ctx, Query{Text: "q", K: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md#0", "b.md#0", "b.md#1", "b.md#2", "c.md#0"}, resultIDs(resp.Results))

	// And: NoExpand turns it off per query
	resp, err = r.Retrieve(ctx, Query{Text: "q", K: 10, NoExpand: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md#0"}, resultIDs(resp.Results))
}

func TestRetriever_LinkExpansionRespectsFilterAndCap(t *testing.T) {
	f := newFixture()
	f.seed(t, "a.md", "A", []string{"keep"}, []string{"b", "c"}, 1)
	f.seed(t, "b.md", "B", []string{"other"}, nil, 1)
	f.seed(t, "c.md", "C", []string{"keep"}, nil, 1)
	f.vector.hits = hits("a.md#0")
	r := f.retriever(t, DefaultConfig())

	// When: K=4 with the default fraction 0.25 gives a cap of 1
	resp, err := r.Retrieve(context.Background(), Query{Text: "q", K: 4, Filter: store.Filter{Tags: []string{"keep"}}})
	require.NoError(t, err)

	// Then: the linked note outside the filter is skipped
	assert.Equal(t, []string{"a.md#0", "c.md#0"}, resultIDs(resp.Results))

	// And: a K too small for one expanded result adds none
	resp, err = r.Retrieve(context.Background(), Query{Text: "q", K: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md#0"}, resultIDs(resp.Results))
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 20, cfg.DefaultK)
	assert.Equal(t, 3, cfg.Overfetch)
	assert.Equal(t, FusionRRF, cfg.Fusion)
	assert.Equal(t, DefaultRRFConstant, cfg.RRFConstant)

	assert.Equal(t, 20, cfg.limit(0))
	assert.Equal(t, 100, cfg.limit(1000))
	assert.Equal(t, 7, cfg.limit(7))
}
