// Package search implements hybrid retrieval over the notes vault: the
// lexical and vector indexes are queried in parallel and their rankings
// fused, by Reciprocal Rank Fusion unless weighted fusion is configured.
package search

import (
	"time"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// Retrieval paths, used in degraded reasons and metrics labels.
const (
	PathVector  = "vector"
	PathLexical = "lexical"
)

// Query is one retrieval request.
type Query struct {
	// Text is the query as typed by the user.
	Text string

	// K is the number of fused results wanted (default: Config.DefaultK).
	K int

	// Filter restricts results by tag or document.
	Filter store.Filter

	// Fusion overrides the configured fusion mode ("rrf" or "weighted").
	Fusion string

	// NoExpand disables link expansion for this query.
	NoExpand bool
}

// Result is one ranked chunk. Ranks are 1-based; 0 means the chunk was
// absent from that list.
type Result struct {
	ChunkID      string  `json:"chunk_id"`
	VectorRank   int     `json:"vector_rank,omitempty"`
	LexicalRank  int     `json:"lexical_rank,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	LexicalScore float64 `json:"lexical_score,omitempty"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`

	// Expanded marks chunks added by link expansion.
	Expanded bool `json:"expanded,omitempty"`

	Chunk    *store.ChunkRecord `json:"-"`
	DocTitle string             `json:"doc_title,omitempty"`
}

// bestRank is the better of the two individual ranks.
func (r *Result) bestRank() int {
	switch {
	case r.VectorRank == 0:
		return r.LexicalRank
	case r.LexicalRank == 0:
		return r.VectorRank
	case r.VectorRank < r.LexicalRank:
		return r.VectorRank
	}
	return r.LexicalRank
}

// Response is the outcome of Retrieve.
type Response struct {
	Query   string   `json:"query"`
	Fusion  string   `json:"fusion"`
	Results []Result `json:"results"`

	// Degraded is set when one path failed and the ranking comes from the
	// other alone.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedPath   string `json:"degraded_path,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	VectorHits  int           `json:"vector_hits"`
	LexicalHits int           `json:"lexical_hits"`
	Expanded    int           `json:"expanded,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Observer receives every retrieval outcome. err is non-nil when the
// query failed outright.
type Observer interface {
	ObserveQuery(resp *Response, err error)
}
