package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical is a lexical entry without a chunk record.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanVector is a vector entry without a chunk record.
	InconsistencyOrphanVector
	// InconsistencyMissingLexical is a chunk record missing from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingVector is a chunk record missing from the vector index.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (t InconsistencyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *InconsistencyType) UnmarshalText(text []byte) error {
	for _, candidate := range []InconsistencyType{
		InconsistencyOrphanLexical, InconsistencyOrphanVector,
		InconsistencyMissingLexical, InconsistencyMissingVector,
	} {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown inconsistency type %q", text)
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	ChunkID string            `json:"chunk_id"`
	Details string            `json:"details"`
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of chunk records verified.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// ReconcileResult describes what Reconcile changed.
type ReconcileResult struct {
	// OrphansRemoved counts chunk IDs deleted from the indexes.
	OrphansRemoved int `json:"orphans_removed"`
	// ForgottenDocs are documents whose records were dropped so the next
	// pass re-derives them from source.
	ForgottenDocs []string `json:"forgotten_docs"`
}

// ConsistencyChecker validates that the metadata store, the lexical index
// and the vector index describe the same set of chunks. Chunk records are
// the source of truth.
type ConsistencyChecker struct {
	metadata store.MetadataStore
	dual     *DualIndex
	logger   *slog.Logger
}

// NewConsistencyChecker creates a new checker over the given stores.
func NewConsistencyChecker(metadata store.MetadataStore, dual *DualIndex, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{metadata: metadata, dual: dual, logger: logger}
}

// QuickCheck only compares counts across the three stores.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	metadataCount, err := c.metadata.CountChunks(ctx)
	if err != nil {
		return false, fmt.Errorf("count chunk records: %w", err)
	}
	lexicalCount := c.dual.Lexical().Count()
	vectorCount := c.dual.Vector().Count()

	consistent := metadataCount == lexicalCount && metadataCount == vectorCount
	if !consistent {
		c.logger.Debug("index_counts_mismatch",
			slog.Int("metadata", metadataCount),
			slog.Int("lexical", lexicalCount),
			slog.Int("vector", vectorCount))
	}
	return consistent, nil
}

// Check compares every chunk ID across the stores. Issues are ordered by
// chunk ID, then type.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	metadataIDs, err := c.metadata.ChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk records: %w", err)
	}
	lexicalIDs, err := c.dual.Lexical().IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lexical ids: %w", err)
	}
	vectorIDs, err := c.dual.Vector().IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vector ids: %w", err)
	}

	known := toSet(metadataIDs)
	lexicalSet := toSet(lexicalIDs)
	vectorSet := toSet(vectorIDs)

	issues := []Inconsistency{}
	for _, id := range lexicalIDs {
		if !known[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanLexical,
				ChunkID: id,
				Details: "lexical entry without matching chunk record",
			})
		}
	}
	for _, id := range vectorIDs {
		if !known[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanVector,
				ChunkID: id,
				Details: "vector entry without matching chunk record",
			})
		}
	}
	for _, id := range metadataIDs {
		if !lexicalSet[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingLexical,
				ChunkID: id,
				Details: "chunk record missing from lexical index",
			})
		}
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingVector,
				ChunkID: id,
				Details: "chunk record missing from vector index",
			})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].ChunkID != issues[j].ChunkID {
			return issues[i].ChunkID < issues[j].ChunkID
		}
		return issues[i].Type < issues[j].Type
	})

	return &CheckResult{
		Checked:         len(metadataIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Reconcile repairs issues found by Check. Orphans are removed from both
// indexes. A chunk missing from either index makes its whole document
// forgotten: its chunks leave both indexes and its record is deleted, so the
// caller can re-derive it from source.
func (c *ConsistencyChecker) Reconcile(ctx context.Context, issues []Inconsistency) (*ReconcileResult, error) {
	result := &ReconcileResult{ForgottenDocs: []string{}}

	orphans := map[string]bool{}
	var missing []string
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanLexical, InconsistencyOrphanVector:
			orphans[issue.ChunkID] = true
		case InconsistencyMissingLexical, InconsistencyMissingVector:
			missing = append(missing, issue.ChunkID)
		}
	}

	if len(orphans) > 0 {
		ids := sortedKeys(orphans)
		if err := c.dual.Remove(ctx, ids...); err != nil {
			return result, err
		}
		result.OrphansRemoved = len(ids)
		c.logger.Info("orphan_chunks_removed", slog.Int("count", len(ids)))
	}

	if len(missing) == 0 {
		return result, nil
	}

	records, err := c.metadata.GetChunks(ctx, missing)
	if err != nil {
		return result, fmt.Errorf("load chunk records: %w", err)
	}
	docs := map[string]bool{}
	for _, r := range records {
		docs[r.DocID] = true
	}

	for _, docID := range sortedKeys(docs) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		chunks, err := c.metadata.ChunksForDocument(ctx, docID)
		if err != nil {
			return result, fmt.Errorf("load chunks for %s: %w", docID, err)
		}
		ids := make([]string, len(chunks))
		for i, ch := range chunks {
			ids[i] = ch.ID
		}
		if err := c.dual.Remove(ctx, ids...); err != nil {
			return result, err
		}
		if err := c.metadata.DeleteDocument(ctx, docID); err != nil {
			return result, fmt.Errorf("forget %s: %w", docID, err)
		}
		result.ForgottenDocs = append(result.ForgottenDocs, docID)
	}

	c.logger.Info("documents_forgotten",
		slog.Int("count", len(result.ForgottenDocs)),
		slog.Int("missing_chunks", len(missing)))
	return result, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
