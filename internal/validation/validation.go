// Package validation runs golden queries against a vault's retriever and
// scores where the expected notes land in the ranking.
//
// Queries are data-driven, loaded from a YAML file with tier1, tier2 and
// negative sections, so they can change without rebuilding.
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// DefaultK is the ranking depth checked when a query sets no K.
const DefaultK = 10

// QuerySpec defines a golden query with the notes it should find.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected,omitempty"` // note IDs or folder prefixes
	Tags     []string `yaml:"tags" json:"tags,omitempty"`
	K        int      `yaml:"k" json:"k,omitempty"`
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
	Tier     int      `yaml:"-" json:"tier"`
}

// QueryConfig holds all validation queries loaded from YAML.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query file. Tier numbers are set from the section
// each query appears in; negative queries get tier 0.
func LoadQueries(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	return ParseQueries(data)
}

// ParseQueries parses query YAML.
func ParseQueries(data []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	for i := range cfg.Tier1 {
		cfg.Tier1[i].Tier = 1
	}
	for i := range cfg.Tier2 {
		cfg.Tier2[i].Tier = 2
	}
	for i := range cfg.Negative {
		cfg.Negative[i].Tier = 0
	}

	for _, spec := range cfg.All() {
		if strings.TrimSpace(spec.Query) == "" && spec.Tier != 0 {
			return nil, fmt.Errorf("query %q has no text", spec.ID)
		}
		if spec.Tier != 0 && len(spec.Expected) == 0 {
			return nil, fmt.Errorf("query %q expects nothing; move it to negative", spec.ID)
		}
	}
	return &cfg, nil
}

// All returns every query in tier order.
func (c *QueryConfig) All() []QuerySpec {
	all := make([]QuerySpec, 0, len(c.Tier1)+len(c.Tier2)+len(c.Negative))
	all = append(all, c.Tier1...)
	all = append(all, c.Tier2...)
	return append(all, c.Negative...)
}

// TestResult captures the outcome of a single query.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ms"`
	TopResults []string      `json:"top_results"` // note IDs in rank order
	MatchedAt  int           `json:"matched_at"`  // 0-based position of first match (-1 if not found)
	Degraded   bool          `json:"degraded,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ValidationResult captures results of a full validation run.
type ValidationResult struct {
	Timestamp  time.Time    `json:"timestamp"`
	Tier1      []TestResult `json:"tier1"`
	Tier2      []TestResult `json:"tier2"`
	Negative   []TestResult `json:"negative"`
	Tier1Pass  int          `json:"tier1_pass"`
	Tier1Total int          `json:"tier1_total"`
	Tier2Pass  int          `json:"tier2_pass"`
	Tier2Total int          `json:"tier2_total"`
	NegPass    int          `json:"negative_pass"`
	NegTotal   int          `json:"negative_total"`

	// MRR is the mean reciprocal rank over tier 1 and tier 2 queries.
	MRR float64 `json:"mrr"`
}

// Passed reports whether every query passed.
func (r *ValidationResult) Passed() bool {
	return r.Tier1Pass == r.Tier1Total && r.Tier2Pass == r.Tier2Total && r.NegPass == r.NegTotal
}

// Retriever is the part of search.Retriever the validator uses.
type Retriever interface {
	Retrieve(ctx context.Context, q search.Query) (*search.Response, error)
}

// Validator runs golden queries against a retriever.
type Validator struct {
	retriever Retriever
}

// NewValidator creates a validator over retriever.
func NewValidator(retriever Retriever) *Validator {
	return &Validator{retriever: retriever}
}

// RunQuery executes a single query and returns the result. Negative
// queries pass as long as they do not fail outright; an empty-query
// rejection counts as a pass.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	result := TestResult{
		Spec:      spec,
		MatchedAt: -1,
	}
	k := spec.K
	if k <= 0 {
		k = DefaultK
	}

	start := time.Now()
	resp, err := v.retriever.Retrieve(ctx, search.Query{
		Text:     spec.Query,
		K:        k,
		Filter:   store.Filter{Tags: spec.Tags},
		NoExpand: true,
	})
	result.Duration = time.Since(start)

	if err != nil {
		if spec.Tier == 0 {
			result.Passed = true
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.TopResults = docIDs(resp)
	result.Degraded = resp.Degraded
	if spec.Tier == 0 {
		result.Passed = true
		return result
	}
	result.Passed, result.MatchedAt = checkExpected(result.TopResults, spec.Expected)
	return result
}

// RunAll executes all queries in cfg.
func (v *Validator) RunAll(ctx context.Context, cfg *QueryConfig) *ValidationResult {
	result := &ValidationResult{Timestamp: time.Now()}

	var reciprocal float64
	var ranked int
	run := func(specs []QuerySpec, into *[]TestResult, pass, total *int) {
		for _, spec := range specs {
			if ctx.Err() != nil {
				return
			}
			tr := v.RunQuery(ctx, spec)
			*into = append(*into, tr)
			*total++
			if tr.Passed {
				*pass++
			}
			if spec.Tier != 0 {
				ranked++
				if tr.MatchedAt >= 0 {
					reciprocal += 1 / float64(tr.MatchedAt+1)
				}
			}
		}
	}

	run(cfg.Tier1, &result.Tier1, &result.Tier1Pass, &result.Tier1Total)
	run(cfg.Tier2, &result.Tier2, &result.Tier2Pass, &result.Tier2Total)
	run(cfg.Negative, &result.Negative, &result.NegPass, &result.NegTotal)

	if ranked > 0 {
		result.MRR = reciprocal / float64(ranked)
	}
	return result
}

// docIDs returns the distinct note IDs of resp in rank order.
func docIDs(resp *search.Response) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range resp.Results {
		if r.Chunk == nil || seen[r.Chunk.DocID] {
			continue
		}
		seen[r.Chunk.DocID] = true
		ids = append(ids, r.Chunk.DocID)
	}
	return ids
}

// checkExpected reports the first position whose note equals an expected
// ID or sits under an expected folder prefix ending in "/".
func checkExpected(results []string, expected []string) (bool, int) {
	for i, id := range results {
		for _, exp := range expected {
			if id == exp || (strings.HasSuffix(exp, "/") && strings.HasPrefix(id, exp)) {
				return true, i
			}
		}
	}
	return false, -1
}
