package search

import (
	"fmt"
	"sort"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// Fusion modes.
const (
	FusionRRF      = "rrf"
	FusionWeighted = "weighted"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// Fuser merges the vector and lexical rankings into one list sorted best
// first. Lists arrive best first; ranks are derived from list position.
type Fuser interface {
	Fuse(vector, lexical []store.Hit) []Result
	Name() string
}

// RRFFusion combines rankings with Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ 1 / (k + rank_i(d))
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_i = 1-based position in list i
//
// A chunk found by one path gets only that path's term.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates RRF fusion with smoothing constant k.
// If k <= 0, defaults to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Name returns "rrf".
func (f *RRFFusion) Name() string { return FusionRRF }

// Fuse implements Fuser.
func (f *RRFFusion) Fuse(vector, lexical []store.Hit) []Result {
	results := collect(vector, lexical)
	for _, r := range results {
		if r.VectorRank > 0 {
			r.Score += 1 / float64(f.K+r.VectorRank)
		}
		if r.LexicalRank > 0 {
			r.Score += 1 / float64(f.K+r.LexicalRank)
		}
	}
	return sorted(results)
}

// Weighted fusion defaults.
const (
	DefaultVectorWeight  = 0.7
	DefaultLexicalWeight = 0.3
)

// WeightedFusion combines raw scores after scaling each list by its own
// maximum, so that both contribute on [0, 1]. Negative similarities count
// as zero.
type WeightedFusion struct {
	Vector  float64
	Lexical float64
}

// NewWeightedFusion creates weighted fusion. Zero weights on both sides
// fall back to 0.7 / 0.3.
func NewWeightedFusion(vector, lexical float64) *WeightedFusion {
	if vector <= 0 && lexical <= 0 {
		vector, lexical = DefaultVectorWeight, DefaultLexicalWeight
	}
	return &WeightedFusion{Vector: vector, Lexical: lexical}
}

// Name returns "weighted".
func (f *WeightedFusion) Name() string { return FusionWeighted }

// Fuse implements Fuser.
func (f *WeightedFusion) Fuse(vector, lexical []store.Hit) []Result {
	results := collect(vector, lexical)
	vMax, lMax := maxScore(vector), maxScore(lexical)
	for _, r := range results {
		if r.VectorRank > 0 && vMax > 0 {
			r.Score += f.Vector * clampZero(r.VectorScore) / vMax
		}
		if r.LexicalRank > 0 && lMax > 0 {
			r.Score += f.Lexical * clampZero(r.LexicalScore) / lMax
		}
	}
	return sorted(results)
}

// NewFuser returns the fuser for a mode name.
func NewFuser(mode string, rrfConstant int, vectorWeight, lexicalWeight float64) (Fuser, error) {
	switch mode {
	case "", FusionRRF:
		return NewRRFFusion(rrfConstant), nil
	case FusionWeighted:
		return NewWeightedFusion(vectorWeight, lexicalWeight), nil
	}
	return nil, fmt.Errorf("unknown fusion mode %q", mode)
}

// collect gathers both lists into one result per chunk with ranks and raw
// scores set. The first occurrence wins if a list repeats an ID.
func collect(vector, lexical []store.Hit) map[string]*Result {
	m := make(map[string]*Result, len(vector)+len(lexical))
	get := func(id string) *Result {
		if r, ok := m[id]; ok {
			return r
		}
		r := &Result{ChunkID: id}
		m[id] = r
		return r
	}
	for i, h := range vector {
		if r := get(h.ID); r.VectorRank == 0 {
			r.VectorRank = i + 1
			r.VectorScore = h.Score
		}
	}
	for i, h := range lexical {
		if r := get(h.ID); r.LexicalRank == 0 {
			r.LexicalRank = i + 1
			r.LexicalScore = h.Score
		}
	}
	return m
}

// sorted orders results by score desc, then better individual rank, then
// chunk ID, and assigns fused ranks.
func sorted(m map[string]*Result) []Result {
	results := make([]Result, 0, len(m))
	for _, r := range m {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ra, rb := a.bestRank(), b.bestRank(); ra != rb {
			return ra < rb
		}
		return a.ChunkID < b.ChunkID
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func maxScore(hits []store.Hit) float64 {
	var m float64
	for _, h := range hits {
		if h.Score > m {
			m = h.Score
		}
	}
	return m
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
