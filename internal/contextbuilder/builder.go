// Package contextbuilder packs ranked retrieval results into a prompt
// context that fits a token budget.
package contextbuilder

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/notebrain/internal/search"
)

// DefaultCharsPerToken approximates English text for common tokenizers.
const DefaultCharsPerToken = 4.0

// Passage is one chunk selected for the context.
type Passage struct {
	ChunkID    string   `json:"chunk_id"`
	DocID      string   `json:"doc_id"`
	Title      string   `json:"title"`
	Breadcrumb []string `json:"breadcrumb,omitempty"`
	Text       string   `json:"text"`
	Tokens     int      `json:"tokens"`
}

// Bundle is the context handed to an answer generator.
type Bundle struct {
	Passages    []Passage `json:"passages"`
	TotalTokens int       `json:"total_tokens"`
	Budget      int       `json:"budget"`

	// Excluded counts available passages left out for budget reasons.
	Excluded int `json:"excluded"`
}

// Builder selects passages in ranked order until the budget is reached.
type Builder struct {
	charsPerToken float64
	logger        *slog.Logger
}

// NewBuilder creates a builder. A non-positive charsPerToken uses the
// default.
func NewBuilder(charsPerToken float64, logger *slog.Logger) *Builder {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{charsPerToken: charsPerToken, logger: logger}
}

// EstimateTokens returns ceil(runes / charsPerToken).
func (b *Builder) EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / b.charsPerToken))
}

// Build walks results in order and stops at the first passage that would
// exceed budget. Passages are never truncated. Results without a chunk
// record are skipped and not counted as excluded.
func (b *Builder) Build(results []search.Result, budget int) *Bundle {
	bundle := &Bundle{Passages: []Passage{}, Budget: budget}

	var candidates []Passage
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		title := r.DocTitle
		if title == "" {
			title = r.Chunk.DocID
		}
		p := Passage{
			ChunkID:    r.ChunkID,
			DocID:      r.Chunk.DocID,
			Title:      title,
			Breadcrumb: r.Chunk.Breadcrumb,
			Text:       r.Chunk.Text,
		}
		p.Tokens = b.EstimateTokens(p.render(true))
		candidates = append(candidates, p)
	}

	for i, p := range candidates {
		if bundle.TotalTokens+p.Tokens > budget {
			bundle.Excluded = len(candidates) - i
			break
		}
		bundle.Passages = append(bundle.Passages, p)
		bundle.TotalTokens += p.Tokens
	}

	b.logger.Debug("context_built",
		slog.Int("passages", len(bundle.Passages)),
		slog.Int("excluded", bundle.Excluded),
		slog.Int("tokens", bundle.TotalTokens),
		slog.Int("budget", budget))
	return bundle
}

// render formats the passage; withSource adds the "From" line.
func (p Passage) render(withSource bool) string {
	var sb strings.Builder
	if withSource {
		fmt.Fprintf(&sb, "--- From: %s ---\n", p.Title)
	}
	if len(p.Breadcrumb) > 0 {
		fmt.Fprintf(&sb, "[%s]\n", strings.Join(p.Breadcrumb, " > "))
	}
	sb.WriteString(p.Text)
	return sb.String()
}

// Render produces the prompt text. Passages keep their ranked order;
// consecutive passages from the same document share one "From" line.
func (bn *Bundle) Render() string {
	var sb strings.Builder
	prev := ""
	for i, p := range bn.Passages {
		sameDoc := i > 0 && p.DocID == prev
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.render(!sameDoc))
		prev = p.DocID
	}
	return sb.String()
}
