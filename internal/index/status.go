package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// Status is a point-in-time view of the index.
type Status struct {
	Documents           int       `json:"documents"`
	Chunks              int       `json:"chunks"`
	LexicalEntries      int       `json:"lexical_entries"`
	VectorEntries       int       `json:"vector_entries"`
	Consistent          bool      `json:"consistent"`
	EmbeddingModel      string    `json:"embedding_model,omitempty"`
	EmbeddingDimensions int       `json:"embedding_dimensions,omitempty"`
	LastIndexed         time.Time `json:"last_indexed,omitempty"`
	LastReport          *Report   `json:"last_report,omitempty"`
}

// ReadStatus collects counts from the three stores and the persisted state
// of the last cycle. Consistent compares counts only.
func ReadStatus(ctx context.Context, metadata store.MetadataStore, lexical store.LexicalIndex, vector store.VectorIndex) (*Status, error) {
	docs, err := metadata.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := metadata.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	st := &Status{
		Documents:      docs,
		Chunks:         chunks,
		LexicalEntries: lexical.Count(),
		VectorEntries:  vector.Count(),
	}
	st.Consistent = st.Chunks == st.LexicalEntries && st.Chunks == st.VectorEntries

	if st.EmbeddingModel, err = metadata.GetState(ctx, store.StateKeyEmbeddingModel); err != nil {
		return nil, err
	}
	dims, err := metadata.GetState(ctx, store.StateKeyEmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	if dims != "" {
		st.EmbeddingDimensions, _ = strconv.Atoi(dims)
	}

	raw, err := metadata.GetState(ctx, store.StateKeyLastReport)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		var report Report
		if err := json.Unmarshal([]byte(raw), &report); err == nil {
			st.LastReport = &report
			st.LastIndexed = report.StartedAt.Add(report.Duration)
		}
	}
	return st, nil
}
