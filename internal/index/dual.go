package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// Entry is one chunk as written to both indexes.
type Entry struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata store.VectorMetadata
}

// DualIndex keeps the lexical and vector indexes in lockstep: every chunk ID
// present in one is present in the other once a write returns.
type DualIndex struct {
	lexical store.LexicalIndex
	vector  store.VectorIndex
	logger  *slog.Logger
}

// NewDualIndex pairs the two indexes.
func NewDualIndex(lexical store.LexicalIndex, vector store.VectorIndex, logger *slog.Logger) *DualIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &DualIndex{lexical: lexical, vector: vector, logger: logger}
}

// Lexical returns the lexical side.
func (d *DualIndex) Lexical() store.LexicalIndex { return d.lexical }

// Vector returns the vector side.
func (d *DualIndex) Vector() store.VectorIndex { return d.vector }

// Upsert writes lexical first, then vector. When the vector write fails the
// entries are removed from both sides and an ERR_401 error is returned.
func (d *DualIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	lexDocs := make([]store.LexicalDoc, len(entries))
	vectors := make([]store.VectorEntry, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		lexDocs[i] = store.LexicalDoc{ID: e.ID, Text: e.Text}
		vectors[i] = store.VectorEntry{ID: e.ID, Vector: e.Vector, Metadata: e.Metadata}
	}

	if err := d.lexical.UpsertBatch(ctx, lexDocs); err != nil {
		return brainerrors.New(brainerrors.ErrCodeIndexWrite, "lexical index write failed", err)
	}

	if err := d.vector.Upsert(ctx, vectors); err != nil {
		// Compensate with a fresh context so cancellation cannot leave one
		// side written.
		compensateErr := d.removeBoth(context.WithoutCancel(ctx), ids)
		if compensateErr != nil {
			d.logger.Warn("dual_index_compensation_failed",
				slog.Int("chunks", len(ids)),
				slog.String("error", compensateErr.Error()))
		}
		return brainerrors.ConsistencyError(ids[0], "vector index write failed; lexical entries rolled back",
			errors.Join(err, compensateErr))
	}
	return nil
}

// Remove deletes ids from both indexes, lexical first.
func (d *DualIndex) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.removeBoth(ctx, ids); err != nil {
		return brainerrors.ConsistencyError(ids[0], "failed to remove chunks from both indexes", err)
	}
	return nil
}

func (d *DualIndex) removeBoth(ctx context.Context, ids []string) error {
	var errs []error
	if err := d.lexical.Remove(ctx, ids...); err != nil {
		errs = append(errs, fmt.Errorf("lexical remove: %w", err))
	}
	if err := d.vector.Remove(ctx, ids...); err != nil {
		errs = append(errs, fmt.Errorf("vector remove: %w", err))
	}
	return errors.Join(errs...)
}

// Save persists whichever side needs an explicit save.
func (d *DualIndex) Save() error {
	var errs []error
	for _, idx := range []any{d.lexical, d.vector} {
		if s, ok := idx.(store.Saver); ok {
			if err := s.Save(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Clear removes every entry from both sides and resets the vector dimension
// when the backend supports it.
func (d *DualIndex) Clear(ctx context.Context) error {
	lexIDs, err := d.lexical.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list lexical ids: %w", err)
	}
	if err := d.lexical.Remove(ctx, lexIDs...); err != nil {
		return fmt.Errorf("clear lexical index: %w", err)
	}

	if r, ok := d.vector.(store.Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("reset vector index: %w", err)
		}
		return nil
	}
	vecIDs, err := d.vector.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list vector ids: %w", err)
	}
	if err := d.vector.Remove(ctx, vecIDs...); err != nil {
		return fmt.Errorf("clear vector index: %w", err)
	}
	return nil
}
