// Package index keeps the lexical index, the vector index and the metadata
// store in step with the notes vault.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/notebrain/internal/chunk"
	"github.com/Aman-CERP/notebrain/internal/document"
	"github.com/Aman-CERP/notebrain/internal/embed"
	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/scanner"
	"github.com/Aman-CERP/notebrain/internal/store"
	"github.com/Aman-CERP/notebrain/internal/ui"
)

// DefaultWorkers is the default number of documents processed concurrently.
const DefaultWorkers = 4

// rebuildBatchSize bounds lexical writes when rebuilding from chunk records.
const rebuildBatchSize = 500

// RunnerConfig configures indexing cycles.
type RunnerConfig struct {
	// Workers bounds concurrent document processing (default: DefaultWorkers).
	Workers int
}

// Observer receives every completed cycle report.
type Observer interface {
	ObserveCycle(report *Report)
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	Scanner  *scanner.Scanner
	Embedder embed.Embedder
	Metadata store.MetadataStore
	Lexical  store.LexicalIndex
	Vector   store.VectorIndex

	// Parser and Chunker default to NewParser and chunk defaults.
	Parser  *document.Parser
	Chunker *chunk.Chunker

	// Renderer shows progress; nil renders nothing.
	Renderer ui.Renderer

	// Observer is optional.
	Observer Observer

	Logger *slog.Logger
}

// RunOptions tunes a single cycle.
type RunOptions struct {
	// Full drops everything indexed and rebuilds from source.
	Full bool
}

// Failure is a document that could not be indexed this cycle. It stays due
// for the next one.
type Failure struct {
	DocID  string `json:"doc_id"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// Skip is a file that was deliberately not indexed.
type Skip struct {
	DocID  string `json:"doc_id"`
	Reason string `json:"reason"`
}

// Timings breaks a cycle down by stage. Embed and Write are summed across
// workers.
type Timings struct {
	Scan      time.Duration `json:"scan"`
	Embed     time.Duration `json:"embed"`
	Write     time.Duration `json:"write"`
	Reconcile time.Duration `json:"reconcile"`
}

// Report summarizes one indexing cycle.
type Report struct {
	Added          int `json:"added"`
	Updated        int `json:"updated"`
	Removed        int `json:"removed"`
	Unchanged      int `json:"unchanged"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
	Stale          int `json:"stale"`
	ChunksEmbedded int `json:"chunks_embedded"`
	EmbeddingCalls int `json:"embedding_calls"`
	Reconciled     int `json:"reconciled"`
	Warnings       int `json:"warnings"`

	FullReindex bool      `json:"full_reindex"`
	Failures    []Failure `json:"failures"`
	Skips       []Skip    `json:"skips"`

	Timings   Timings       `json:"timings"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Changed returns the number of documents whose index entries changed.
func (r *Report) Changed() int {
	return r.Added + r.Updated + r.Removed
}

type changeKind int

const (
	changeAdded changeKind = iota
	changeUpdated
	changeReconciled
)

type workItem struct {
	file scanner.File
	raw  []byte
	kind changeKind
	// read is when raw was taken from disk.
	read time.Time
}

// cycle is the mutable state of one Run shared by its workers.
type cycle struct {
	mu     sync.Mutex
	report *Report
	done   atomic.Int64
	total  int
}

func (c *cycle) update(fn func(r *Report)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.report)
}

// Runner executes indexing cycles: scan, diff against the stored snapshot,
// then parse, chunk, embed and write every changed document.
type Runner struct {
	cfg      RunnerConfig
	scanner  *scanner.Scanner
	parser   *document.Parser
	chunker  *chunk.Chunker
	embedder embed.Embedder
	metadata store.MetadataStore
	dual     *DualIndex
	checker  *ConsistencyChecker
	renderer ui.Renderer
	observer Observer
	logger   *slog.Logger

	locks *keyedMutex

	// runMu allows one cycle at a time.
	runMu sync.Mutex
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(cfg RunnerConfig, deps RunnerDependencies) (*Runner, error) {
	if deps.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if deps.Lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if deps.Vector == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := deps.Parser
	if parser == nil {
		parser = document.NewParser()
	}
	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.New(chunk.Options{})
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.Nop()
	}

	dual := NewDualIndex(deps.Lexical, deps.Vector, logger)
	return &Runner{
		cfg:      cfg,
		scanner:  deps.Scanner,
		parser:   parser,
		chunker:  chunker,
		embedder: deps.Embedder,
		metadata: deps.Metadata,
		dual:     dual,
		checker:  NewConsistencyChecker(deps.Metadata, dual, logger),
		renderer: renderer,
		observer: deps.Observer,
		logger:   logger,
		locks:    newKeyedMutex(),
	}, nil
}

// Dual returns the paired indexes the runner writes.
func (r *Runner) Dual() *DualIndex { return r.dual }

// Checker returns the consistency checker over the runner's stores.
func (r *Runner) Checker() *ConsistencyChecker { return r.checker }

// Run executes one indexing cycle. Per-document problems are recorded in the
// report; the returned error is reserved for failures that stop the whole
// cycle, including cancellation.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	c := &cycle{report: &Report{StartedAt: start, Failures: []Failure{}, Skips: []Skip{}}}

	full := opts.Full
	if !full {
		changed, err := r.embeddingModelChanged(ctx)
		if err != nil {
			return nil, err
		}
		full = changed
	}
	if full {
		if err := r.clear(ctx); err != nil {
			return nil, err
		}
		c.report.FullReindex = true
	} else if err := r.rebuildLexical(ctx); err != nil {
		return nil, err
	}

	scanStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: r.scanner.Root()})
	scan, err := r.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	for _, s := range scan.Skipped {
		r.skip(c, s.ID, s.Reason)
	}

	records, err := r.metadata.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	previous := SnapshotFromRecords(records)

	current, pending, held, err := r.snapshot(ctx, c, scan.Files, previous)
	if err != nil {
		return c.report, err
	}
	c.report.Timings.Scan = time.Since(scanStart)

	changes := Diff(previous, current)
	c.report.Unchanged = len(current) - len(changes.Added) - len(changes.Updated) - held
	r.logger.Info("index_changes_detected",
		slog.Int("files", len(scan.Files)),
		slog.Int("added", len(changes.Added)),
		slog.Int("updated", len(changes.Updated)),
		slog.Int("removed", len(changes.Removed)))

	c.total = changes.Len()
	if err := r.forEach(ctx, changes.Removed, func(ctx context.Context, id string) {
		r.removeDocument(ctx, c, id)
	}); err != nil {
		return c.report, err
	}

	items := make(map[string]workItem, len(changes.Added)+len(changes.Updated))
	for _, id := range changes.Added {
		item := pending[id]
		item.kind = changeAdded
		items[id] = item
	}
	for _, id := range changes.Updated {
		item := pending[id]
		item.kind = changeUpdated
		items[id] = item
	}
	ids := append(slices.Clone(changes.Added), changes.Updated...)
	if err := r.forEach(ctx, ids, func(ctx context.Context, id string) {
		r.indexDocument(ctx, c, items[id])
	}); err != nil {
		return c.report, err
	}

	files := make(map[string]scanner.File, len(scan.Files))
	for _, f := range scan.Files {
		files[f.ID] = f
	}
	if err := r.reconcile(ctx, c, files); err != nil {
		return c.report, err
	}

	if err := r.dual.Save(); err != nil {
		return c.report, brainerrors.New(brainerrors.ErrCodeIndexWrite, "failed to persist indexes", err)
	}

	c.report.Duration = time.Since(start)
	r.recordState(ctx, c.report)
	r.logCycle(c.report)
	if r.observer != nil {
		r.observer.ObserveCycle(c.report)
	}
	r.renderer.Complete(r.completionStats(c.report))
	return c.report, nil
}

// Reindex re-derives the given documents from source regardless of their
// stored hash. Unknown or vanished IDs are removed.
func (r *Runner) Reindex(ctx context.Context, ids []string) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	c := &cycle{report: &Report{StartedAt: start, Failures: []Failure{}, Skips: []Skip{}}, total: len(ids)}

	scan, err := r.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	files := make(map[string]scanner.File, len(scan.Files))
	for _, f := range scan.Files {
		files[f.ID] = f
	}

	var gone, present []string
	items := make(map[string]workItem, len(ids))
	for _, id := range ids {
		f, ok := files[id]
		if !ok {
			gone = append(gone, id)
			continue
		}
		raw, err := r.scanner.Read(f)
		if err != nil {
			r.fail(c, id, brainerrors.ParseError(brainerrors.ErrCodeSourceRead, id, "failed to read source", err))
			continue
		}
		items[id] = workItem{file: f, raw: raw, kind: changeUpdated, read: time.Now()}
		present = append(present, id)
	}

	if err := r.forEach(ctx, gone, func(ctx context.Context, id string) { r.removeDocument(ctx, c, id) }); err != nil {
		return c.report, err
	}
	if err := r.forEach(ctx, present, func(ctx context.Context, id string) {
		r.indexDocument(ctx, c, items[id])
	}); err != nil {
		return c.report, err
	}
	if err := r.dual.Save(); err != nil {
		return c.report, brainerrors.New(brainerrors.ErrCodeIndexWrite, "failed to persist indexes", err)
	}
	c.report.Duration = time.Since(start)
	r.recordState(ctx, c.report)
	return c.report, nil
}

// forEach runs fn over ids on the worker pool. Per-document errors are
// recorded by fn itself, so only cancellation stops the pool.
func (r *Runner) forEach(ctx context.Context, ids []string, fn func(context.Context, string)) error {
	if len(ids) == 0 {
		return ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// snapshot reads every file and hashes it. Files whose hash differs from the
// stored one are returned as pending work. An unreadable file keeps its
// previous state so it is neither removed nor counted as unchanged.
func (r *Runner) snapshot(ctx context.Context, c *cycle, files []scanner.File, previous Snapshot) (Snapshot, map[string]workItem, int, error) {
	current := make(Snapshot, len(files))
	pending := make(map[string]workItem)
	held := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}
		raw, err := r.scanner.Read(f)
		if err != nil {
			r.fail(c, f.ID, brainerrors.ParseError(brainerrors.ErrCodeSourceRead, f.ID, "failed to read source", err))
			if prev, ok := previous[f.ID]; ok {
				current[f.ID] = prev
				held++
			}
			continue
		}
		hash := contentHash(raw)
		current[f.ID] = FileState{Hash: hash, ModTime: f.ModTime}
		if prev, ok := previous[f.ID]; !ok || prev.Hash != hash {
			pending[f.ID] = workItem{file: f, raw: raw, read: time.Now()}
		}
	}
	return current, pending, held, nil
}

// indexDocument swaps one document's index entries. Embeddings for every
// changed chunk are computed before anything is written; once writing
// starts it runs to completion even if ctx is cancelled.
func (r *Runner) indexDocument(ctx context.Context, c *cycle, item workItem) {
	id := item.file.ID
	unlock := r.locks.Lock(id)
	defer unlock()
	defer r.advance(c, id)

	prev, err := r.metadata.GetDocument(ctx, id)
	if err != nil {
		r.fail(c, id, fmt.Errorf("load record: %w", err))
		return
	}
	// A record written after this item was read, from a newer source, wins.
	if prev != nil && prev.ModTime.After(item.file.ModTime) && prev.IndexedAt.After(item.read) {
		r.logger.Debug("stale_work_dropped", slog.String("doc", id))
		c.update(func(rep *Report) { rep.Stale++ })
		return
	}

	doc, err := r.parser.Parse(id, item.raw, item.file.ModTime)
	var skipErr *document.SkipError
	if errors.As(err, &skipErr) {
		r.skip(c, id, skipErr.Reason)
		if prev != nil {
			r.forget(context.WithoutCancel(ctx), id, prev.ChunkIDs)
		}
		return
	}
	if err != nil {
		r.fail(c, id, err)
		return
	}
	for _, w := range doc.Warnings {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "document_parse_warning",
			append([]slog.Attr{slog.String("doc", id)}, brainerrors.LogAttrs(w)...)...)
		r.renderer.AddError(ui.ErrorEvent{File: id, Err: w, IsWarn: true})
	}

	chunks := r.chunker.Chunk(doc)

	previousHashes := map[string]string{}
	if prev != nil {
		old, err := r.metadata.ChunksForDocument(ctx, id)
		if err != nil {
			r.fail(c, id, fmt.Errorf("load chunk records: %w", err))
			return
		}
		for _, o := range old {
			previousHashes[o.ID] = o.Hash
		}
	}

	// A tag change invalidates the metadata stored with every vector.
	retag := prev == nil || !slices.Equal(prev.Tags, doc.Tags)
	var changed []chunk.Chunk
	for _, ch := range chunks {
		if h, ok := previousHashes[ch.ID]; retag || !ok || h != ch.Hash {
			changed = append(changed, ch)
		}
	}

	entries, err := r.embedChunks(ctx, c, doc, changed)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(c, id, err)
		}
		return
	}

	live := make(map[string]bool, len(chunks))
	for _, ch := range chunks {
		live[ch.ID] = true
	}
	var gone []string
	for oid := range previousHashes {
		if !live[oid] {
			gone = append(gone, oid)
		}
	}
	sort.Strings(gone)

	writeCtx := context.WithoutCancel(ctx)
	writeStart := time.Now()
	if err := r.dual.Remove(writeCtx, gone...); err != nil {
		r.fail(c, id, err)
		r.forget(writeCtx, id, append(gone, slices.Collect(maps.Keys(live))...))
		return
	}
	if err := r.dual.Upsert(writeCtx, entries); err != nil {
		r.fail(c, id, err)
		r.forget(writeCtx, id, append(gone, slices.Collect(maps.Keys(previousHashes))...))
		return
	}
	if err := r.metadata.SaveDocument(writeCtx, documentRecord(doc, chunks), chunkRecords(chunks)); err != nil {
		r.fail(c, id, fmt.Errorf("save record: %w", err))
		return
	}
	elapsed := time.Since(writeStart)

	c.update(func(rep *Report) {
		rep.Timings.Write += elapsed
		rep.ChunksEmbedded += len(changed)
		rep.Warnings += len(doc.Warnings)
		switch item.kind {
		case changeAdded:
			rep.Added++
		case changeUpdated:
			rep.Updated++
		}
	})
	r.logger.Debug("document_indexed",
		slog.String("doc", id),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", len(changed)),
		slog.Int("removed_chunks", len(gone)))
}

func (r *Runner) embedChunks(ctx context.Context, c *cycle, doc *document.Document, changed []chunk.Chunk) ([]Entry, error) {
	if len(changed) == 0 {
		return nil, nil
	}
	texts := make([]string, len(changed))
	for i, ch := range changed {
		texts[i] = ch.Text
	}

	start := time.Now()
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	elapsed := time.Since(start)
	c.update(func(rep *Report) {
		rep.EmbeddingCalls++
		rep.Timings.Embed += elapsed
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingMalformed,
			fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vectors)), nil)
	}

	entries := make([]Entry, len(changed))
	for i, ch := range changed {
		entries[i] = Entry{
			ID:       ch.ID,
			Text:     ch.Text,
			Vector:   vectors[i],
			Metadata: store.VectorMetadata{DocID: doc.ID, Tags: slices.Clone(doc.Tags)},
		}
	}
	return entries, nil
}

func (r *Runner) removeDocument(ctx context.Context, c *cycle, id string) {
	unlock := r.locks.Lock(id)
	defer unlock()
	defer r.advance(c, id)

	rec, err := r.metadata.GetDocument(ctx, id)
	if err != nil {
		r.fail(c, id, fmt.Errorf("load record: %w", err))
		return
	}
	if rec == nil {
		return
	}
	writeCtx := context.WithoutCancel(ctx)
	if err := r.dual.Remove(writeCtx, rec.ChunkIDs...); err != nil {
		r.fail(c, id, err)
		return
	}
	if err := r.metadata.DeleteDocument(writeCtx, id); err != nil {
		r.fail(c, id, fmt.Errorf("delete record: %w", err))
		return
	}
	c.update(func(rep *Report) { rep.Removed++ })
	r.logger.Debug("document_removed", slog.String("doc", id), slog.Int("chunks", len(rec.ChunkIDs)))
}

// forget drops a document's entries and record so the next cycle treats it
// as new. Errors are logged; the following consistency check catches what
// remains.
func (r *Runner) forget(ctx context.Context, id string, chunkIDs []string) {
	if err := r.dual.Remove(ctx, chunkIDs...); err != nil {
		r.logger.Warn("forget_document_failed", slog.String("doc", id), slog.String("error", err.Error()))
	}
	if err := r.metadata.DeleteDocument(ctx, id); err != nil {
		r.logger.Warn("forget_document_failed", slog.String("doc", id), slog.String("error", err.Error()))
	}
}

// reconcile runs QuickCheck and, on a mismatch, a full Check and Reconcile.
// Forgotten documents still present in the vault are re-derived at once.
func (r *Runner) reconcile(ctx context.Context, c *cycle, files map[string]scanner.File) error {
	start := time.Now()
	defer func() { c.report.Timings.Reconcile = time.Since(start) }()

	ok, err := r.checker.QuickCheck(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageReconciling, Message: "index counts differ"})
	result, err := r.checker.Check(ctx)
	if err != nil {
		return err
	}
	if result.Consistent() {
		return nil
	}
	r.logger.Warn("index_inconsistent",
		slog.Int("checked", result.Checked),
		slog.Int("issues", len(result.Inconsistencies)))

	repaired, err := r.checker.Reconcile(ctx, result.Inconsistencies)
	if repaired != nil {
		c.report.Reconciled += repaired.OrphansRemoved + len(repaired.ForgottenDocs)
	}
	if err != nil {
		return err
	}

	items := make(map[string]workItem)
	var ids []string
	for _, id := range repaired.ForgottenDocs {
		f, ok := files[id]
		if !ok {
			continue
		}
		raw, err := r.scanner.Read(f)
		if err != nil {
			r.fail(c, id, brainerrors.ParseError(brainerrors.ErrCodeSourceRead, id, "failed to read source", err))
			continue
		}
		items[id] = workItem{file: f, raw: raw, kind: changeReconciled, read: time.Now()}
		ids = append(ids, id)
	}
	c.done.Store(0)
	c.total = len(ids)
	return r.forEach(ctx, ids, func(ctx context.Context, id string) {
		r.indexDocument(ctx, c, items[id])
	})
}

// embeddingModelChanged compares the embedder with the one that built the
// stored vectors.
func (r *Runner) embeddingModelChanged(ctx context.Context) (bool, error) {
	storedModel, err := r.metadata.GetState(ctx, store.StateKeyEmbeddingModel)
	if err != nil {
		return false, fmt.Errorf("read embedding model: %w", err)
	}
	if storedModel == "" {
		return false, nil
	}
	if storedModel != r.embedder.ModelName() {
		r.logger.Info("embedding_model_changed",
			slog.String("previous", storedModel),
			slog.String("current", r.embedder.ModelName()))
		return true, nil
	}

	storedDims, err := r.metadata.GetState(ctx, store.StateKeyEmbeddingDimensions)
	if err != nil {
		return false, fmt.Errorf("read embedding dimensions: %w", err)
	}
	dims := r.embedder.Dimensions()
	if storedDims != "" && dims > 0 && storedDims != strconv.Itoa(dims) {
		r.logger.Info("embedding_dimensions_changed",
			slog.String("previous", storedDims),
			slog.Int("current", dims))
		return true, nil
	}
	return false, nil
}

// clear empties both indexes and every record.
func (r *Runner) clear(ctx context.Context) error {
	if err := r.dual.Clear(ctx); err != nil {
		return brainerrors.New(brainerrors.ErrCodeIndexWrite, "failed to clear indexes", err)
	}
	docs, err := r.metadata.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, d := range docs {
		if err := r.metadata.DeleteDocument(ctx, d.ID); err != nil {
			return fmt.Errorf("delete %s: %w", d.ID, err)
		}
	}
	r.logger.Info("index_cleared", slog.Int("documents", len(docs)))
	return nil
}

// rebuildLexical refills an empty lexical index from chunk records, which
// happens whenever the lexical backend keeps nothing on disk.
func (r *Runner) rebuildLexical(ctx context.Context) error {
	n, err := RebuildLexical(ctx, r.metadata, r.dual.Lexical())
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("lexical_index_rebuilt", slog.Int("chunks", n))
	}
	return nil
}

// RebuildLexical fills an empty lexical index from the stored chunk records
// and returns the number of chunks written. A non-empty index is left alone.
func RebuildLexical(ctx context.Context, metadata store.MetadataStore, lexical store.LexicalIndex) (int, error) {
	if lexical.Count() > 0 {
		return 0, nil
	}
	n, err := metadata.CountChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunk records: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	batch := make([]store.LexicalDoc, 0, rebuildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := lexical.UpsertBatch(ctx, batch); err != nil {
			return brainerrors.New(brainerrors.ErrCodeIndexWrite, "failed to rebuild lexical index", err)
		}
		batch = batch[:0]
		return nil
	}
	err = metadata.EachChunk(ctx, func(ch *store.ChunkRecord) error {
		batch = append(batch, store.LexicalDoc{ID: ch.ID, Text: ch.Text})
		if len(batch) == rebuildBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return n, nil
}

// recordState stores the embedding identity and the cycle report. Failures
// only cost status output, so they are logged.
func (r *Runner) recordState(ctx context.Context, report *Report) {
	ctx = context.WithoutCancel(ctx)
	if err := r.metadata.SetState(ctx, store.StateKeyEmbeddingModel, r.embedder.ModelName()); err != nil {
		r.logger.Warn("failed to store embedding model", slog.String("error", err.Error()))
	}
	if dims := r.embedder.Dimensions(); dims > 0 {
		if err := r.metadata.SetState(ctx, store.StateKeyEmbeddingDimensions, strconv.Itoa(dims)); err != nil {
			r.logger.Warn("failed to store embedding dimensions", slog.String("error", err.Error()))
		}
	}
	data, err := json.Marshal(report)
	if err != nil {
		r.logger.Warn("failed to encode report", slog.String("error", err.Error()))
		return
	}
	if err := r.metadata.SetState(ctx, store.StateKeyLastReport, string(data)); err != nil {
		r.logger.Warn("failed to store report", slog.String("error", err.Error()))
	}
}

func (r *Runner) fail(c *cycle, id string, err error) {
	f := Failure{DocID: id, Code: brainerrors.GetCode(err), Reason: err.Error()}
	c.update(func(rep *Report) {
		rep.Failed++
		rep.Failures = append(rep.Failures, f)
	})
	r.logger.LogAttrs(context.Background(), slog.LevelWarn, "document_failed",
		append([]slog.Attr{slog.String("doc", id)}, brainerrors.LogAttrs(err)...)...)
	r.renderer.AddError(ui.ErrorEvent{File: id, Err: err})
}

func (r *Runner) skip(c *cycle, id, reason string) {
	c.update(func(rep *Report) {
		rep.Skipped++
		rep.Skips = append(rep.Skips, Skip{DocID: id, Reason: reason})
	})
	r.logger.Info("document_skipped", slog.String("doc", id), slog.String("reason", reason))
	r.renderer.AddError(ui.ErrorEvent{File: id, Err: errors.New(reason), IsWarn: true})
}

func (r *Runner) advance(c *cycle, id string) {
	done := c.done.Add(1)
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:       ui.StageIndexing,
		Current:     int(done),
		Total:       c.total,
		CurrentFile: id,
	})
}

func (r *Runner) logCycle(report *Report) {
	r.logger.Info("index_cycle_complete",
		slog.Int("added", report.Added),
		slog.Int("updated", report.Updated),
		slog.Int("removed", report.Removed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("stale", report.Stale),
		slog.Int("chunks_embedded", report.ChunksEmbedded),
		slog.Int("embedding_calls", report.EmbeddingCalls),
		slog.Int("reconciled", report.Reconciled),
		slog.Bool("full_reindex", report.FullReindex),
		slog.Int64("duration_ms", report.Duration.Milliseconds()),
		slog.Int64("duration_scan_ms", report.Timings.Scan.Milliseconds()),
		slog.Int64("duration_embed_ms", report.Timings.Embed.Milliseconds()),
		slog.Int64("duration_write_ms", report.Timings.Write.Milliseconds()),
		slog.Int64("duration_reconcile_ms", report.Timings.Reconcile.Milliseconds()),
		slog.String("embedder_model", r.embedder.ModelName()))
}

func (r *Runner) completionStats(report *Report) ui.CompletionStats {
	return ui.CompletionStats{
		Added:          report.Added,
		Updated:        report.Updated,
		Removed:        report.Removed,
		Unchanged:      report.Unchanged,
		ChunksEmbedded: report.ChunksEmbedded,
		Duration:       report.Duration,
		Errors:         report.Failed,
		Warnings:       report.Warnings + report.Skipped,
		Stages: ui.StageTimings{
			Scan:      report.Timings.Scan,
			Embed:     report.Timings.Embed,
			Write:     report.Timings.Write,
			Reconcile: report.Timings.Reconcile,
		},
		Embedder: ui.EmbedderInfo{
			Model:      r.embedder.ModelName(),
			Dimensions: r.embedder.Dimensions(),
		},
	}
}

func documentRecord(doc *document.Document, chunks []chunk.Chunk) *store.DocumentRecord {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return &store.DocumentRecord{
		ID:          doc.ID,
		Title:       doc.Title,
		Tags:        doc.Tags,
		Links:       doc.Links,
		Tasks:       doc.Tasks,
		ContentHash: doc.ContentHash,
		ModTime:     doc.ModTime,
		Created:     doc.Created,
		ChunkIDs:    ids,
		IndexedAt:   time.Now().UTC(),
	}
}

func chunkRecords(chunks []chunk.Chunk) []*store.ChunkRecord {
	records := make([]*store.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = &store.ChunkRecord{
			ID:         ch.ID,
			DocID:      ch.DocID,
			Seq:        ch.Seq,
			Text:       ch.Text,
			Breadcrumb: ch.Breadcrumb,
			Kind:       ch.Kind,
			Start:      ch.Start,
			End:        ch.End,
			Hash:       ch.Hash,
		}
	}
	return records
}

// contentHash matches document.Document.ContentHash.
func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
