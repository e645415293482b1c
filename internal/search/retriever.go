package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/notebrain/internal/embed"
	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Dependencies contains the injected dependencies for Retriever.
type Dependencies struct {
	Embedder embed.Embedder
	Lexical  store.LexicalIndex
	Vector   store.VectorIndex
	Metadata store.MetadataStore

	// Observer is optional.
	Observer Observer

	Logger *slog.Logger
}

// Retriever answers queries from both indexes. It is safe for concurrent
// use, including while an indexing cycle writes to the same stores.
type Retriever struct {
	cfg      Config
	fuser    Fuser
	embedder embed.Embedder
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	metadata store.MetadataStore
	observer Observer
	logger   *slog.Logger
}

// NewRetriever creates a retriever. Returns an error if any store or the
// embedder is nil, or the fusion mode is unknown.
func NewRetriever(cfg Config, deps Dependencies) (*Retriever, error) {
	switch {
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	case deps.Lexical == nil:
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	case deps.Vector == nil:
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	case deps.Metadata == nil:
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}

	cfg = cfg.withDefaults()
	fuser, err := NewFuser(cfg.Fusion, cfg.RRFConstant, cfg.VectorWeight, cfg.LexicalWeight)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		cfg:      cfg,
		fuser:    fuser,
		embedder: deps.Embedder,
		lexical:  deps.Lexical,
		vector:   deps.Vector,
		metadata: deps.Metadata,
		observer: deps.Observer,
		logger:   logger,
	}, nil
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config { return r.cfg }

// Retrieve runs the vector and lexical paths in parallel, fuses their
// rankings and returns the top K chunks, followed by link-expanded chunks
// when enabled. If one path fails the response is marked degraded and
// ranked by the other; if both fail the error carries
// ERR_502_RETRIEVAL_FAILED.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	resp, err := r.retrieve(ctx, q)
	if resp != nil {
		resp.Duration = time.Since(start)
	}
	if r.observer != nil {
		r.observer.ObserveQuery(resp, err)
	}
	if err == nil {
		r.logger.Debug("query_complete",
			slog.String("fusion", resp.Fusion),
			slog.Int("results", len(resp.Results)),
			slog.Int("expanded", resp.Expanded),
			slog.Bool("degraded", resp.Degraded),
			slog.Int64("duration_ms", resp.Duration.Milliseconds()))
	}
	return resp, err
}

func (r *Retriever) retrieve(ctx context.Context, q Query) (*Response, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, brainerrors.RetrievalError(brainerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	fuser := r.fuser
	if q.Fusion != "" && q.Fusion != fuser.Name() {
		f, err := NewFuser(q.Fusion, r.cfg.RRFConstant, r.cfg.VectorWeight, r.cfg.LexicalWeight)
		if err != nil {
			return nil, brainerrors.ConfigError(err.Error(), nil)
		}
		fuser = f
	}

	k := r.cfg.limit(q.K)
	n := k * r.cfg.Overfetch
	lookup := newLookup(r.metadata)

	// Plain group: one path failing must not cancel the other.
	var (
		g                errgroup.Group
		vecHits, lexHits []store.Hit
		vecErr, lexErr   error
	)
	g.Go(func() error {
		vecHits, vecErr = r.vectorPath(ctx, text, n, q.Filter)
		return nil
	})
	g.Go(func() error {
		lexHits, lexErr = r.lexicalPath(ctx, lookup, text, n, q.Filter)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{
		Query:       text,
		Fusion:      fuser.Name(),
		VectorHits:  len(vecHits),
		LexicalHits: len(lexHits),
	}
	switch {
	case vecErr != nil && lexErr != nil:
		return nil, brainerrors.RetrievalError(brainerrors.ErrCodeRetrievalFailed,
			"both retrieval paths failed", errors.Join(vecErr, lexErr))
	case vecErr != nil:
		r.degrade(resp, PathVector, vecErr)
	case lexErr != nil:
		r.degrade(resp, PathLexical, lexErr)
	}

	results, err := r.enrich(ctx, lookup, fuser.Fuse(vecHits, lexHits), k)
	if err != nil {
		return nil, err
	}

	if r.cfg.LinkExpansion && !q.NoExpand && r.cfg.LinkExpansionHops > 0 {
		expanded, err := r.expand(ctx, results, k, q.Filter)
		if err != nil {
			r.logger.Warn("link_expansion_failed", slog.String("error", err.Error()))
		}
		resp.Expanded = len(expanded)
		results = append(results, expanded...)
	}

	resp.Results = results
	return resp, nil
}

func (r *Retriever) degrade(resp *Response, path string, err error) {
	resp.Degraded = true
	resp.DegradedPath = path
	resp.DegradedReason = err.Error()
	r.logger.Warn("retrieval_degraded",
		slog.String("failed_path", path),
		slog.String("error", err.Error()))
}

// vectorPath embeds the query and searches the vector index under the
// per-path timeout.
func (r *Retriever) vectorPath(ctx context.Context, text string, n int, filter store.Filter) ([]store.Hit, error) {
	pctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	vec, err := r.embedder.Embed(pctx, text)
	if err != nil {
		return nil, pathError(pctx, PathVector, fmt.Errorf("embed query: %w", err))
	}
	hits, err := r.vector.Query(pctx, vec, n, filter)
	if err != nil {
		var mismatch store.ErrDimensionMismatch
		if errors.As(err, &mismatch) {
			return nil, brainerrors.New(brainerrors.ErrCodeDimensionMismatch, err.Error(), err).
				WithSuggestion("run 'notebrain index --full' after changing the embedding model")
		}
		return nil, pathError(pctx, PathVector, err)
	}
	return hits, nil
}

// lexicalPath queries the lexical index and applies the filter using the
// chunk and document records, since the lexical index holds text only.
func (r *Retriever) lexicalPath(ctx context.Context, lookup *lookup, text string, n int, filter store.Filter) ([]store.Hit, error) {
	pctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	hits, err := r.lexical.Query(pctx, text, n)
	if err != nil {
		return nil, pathError(pctx, PathLexical, err)
	}
	if filter.IsEmpty() || len(hits) == 0 {
		return hits, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := lookup.chunks(pctx, ids)
	if err != nil {
		return nil, pathError(pctx, PathLexical, err)
	}

	kept := make([]store.Hit, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.ID]
		if !ok {
			continue
		}
		doc, err := lookup.document(pctx, c.DocID)
		if err != nil {
			return nil, pathError(pctx, PathLexical, err)
		}
		meta := store.VectorMetadata{DocID: c.DocID}
		if doc != nil {
			meta.Tags = doc.Tags
		}
		if filter.Match(meta) {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// pathError marks a path's own deadline as ERR_501_RETRIEVAL_TIMEOUT.
func pathError(pctx context.Context, path string, err error) error {
	if errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return brainerrors.RetrievalError(brainerrors.ErrCodeRetrievalTimeout,
			path+" path timed out", err)
	}
	return err
}

// enrich attaches chunk records and titles to the fused results and keeps
// the first k. Results whose chunk record is gone are skipped and ranks
// renumbered.
func (r *Retriever) enrich(ctx context.Context, lookup *lookup, fused []Result, k int) ([]Result, error) {
	if len(fused) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := lookup.chunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	results := make([]Result, 0, min(k, len(fused)))
	for _, f := range fused {
		if len(results) == k {
			break
		}
		c, ok := chunks[f.ChunkID]
		if !ok {
			r.logger.Debug("result_without_chunk_record", slog.String("chunk_id", f.ChunkID))
			continue
		}
		f.Chunk = c
		f.DocTitle = lookup.title(ctx, c.DocID)
		f.Rank = len(results) + 1
		results = append(results, f)
	}
	return results, nil
}

// expand walks the link graph from the result documents and returns chunks
// of linked documents not already present, capped at
// floor(ExpansionFraction × k).
func (r *Retriever) expand(ctx context.Context, results []Result, k int, filter store.Filter) ([]Result, error) {
	limit := r.cfg.expansionCap(k)
	if limit == 0 || len(results) == 0 {
		return nil, nil
	}

	docs, err := r.metadata.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	graph := NewLinkGraph(docs)
	byID := make(map[string]*store.DocumentRecord, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	present := make(map[string]bool, len(results))
	seeds := make([]string, 0, len(results))
	for _, res := range results {
		present[res.ChunkID] = true
		seeds = append(seeds, res.Chunk.DocID)
	}

	var expanded []Result
	for _, docID := range graph.Reachable(seeds, r.cfg.LinkExpansionHops) {
		doc := byID[docID]
		if doc == nil || !filter.Match(store.VectorMetadata{DocID: doc.ID, Tags: doc.Tags}) {
			continue
		}
		chunks, err := r.metadata.ChunksForDocument(ctx, docID)
		if err != nil {
			return expanded, fmt.Errorf("load chunks of %s: %w", docID, err)
		}
		for _, c := range chunks {
			if present[c.ID] {
				continue
			}
			present[c.ID] = true
			expanded = append(expanded, Result{
				ChunkID:  c.ID,
				Rank:     len(results) + len(expanded) + 1,
				Expanded: true,
				Chunk:    c,
				DocTitle: doc.Title,
			})
			if len(expanded) == limit {
				return expanded, nil
			}
		}
	}
	return expanded, nil
}
