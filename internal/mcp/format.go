package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// FormatSearchResults formats a retrieval response as markdown.
func FormatSearchResults(resp *search.Response) string {
	if resp == nil {
		return "No results found."
	}
	results := filterValidResults(resp.Results)
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", resp.Query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", resp.Query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	if resp.Expanded > 0 {
		fmt.Fprintf(&sb, " (%d from linked notes)", resp.Expanded)
	}
	sb.WriteString("\n\n")
	if resp.Degraded {
		fmt.Fprintf(&sb, "> %s search unavailable, results come from one path only.\n\n", resp.DegradedPath)
	}

	for _, r := range results {
		formatResult(&sb, r)
	}
	return sb.String()
}

// filterValidResults removes results without a chunk record.
func filterValidResults(results []search.Result) []search.Result {
	valid := make([]search.Result, 0, len(results))
	for _, r := range results {
		if r.Chunk != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

// formatResult formats a single result. Note text is markdown already and
// is written as-is.
func formatResult(sb *strings.Builder, r search.Result) {
	if r.Chunk == nil {
		return
	}

	title := r.DocTitle
	if title == "" {
		title = r.Chunk.DocID
	}
	if r.Expanded {
		fmt.Fprintf(sb, "### %d. %s (linked)\n", r.Rank, title)
	} else {
		fmt.Fprintf(sb, "### %d. %s (score: %.4f)\n", r.Rank, title, r.Score)
	}
	fmt.Fprintf(sb, "`%s`", r.Chunk.DocID)
	if len(r.Chunk.Breadcrumb) > 0 {
		fmt.Fprintf(sb, " > %s", strings.Join(r.Chunk.Breadcrumb, " > "))
	}
	sb.WriteString("\n\n")
	sb.WriteString(r.Chunk.Text)
	sb.WriteString("\n\n---\n\n")
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToResultOutput converts a retrieval result to the tool output format.
func ToResultOutput(r search.Result) ResultOutput {
	if r.Chunk == nil {
		return ResultOutput{ChunkID: r.ChunkID, Rank: r.Rank}
	}
	return ResultOutput{
		Rank:        r.Rank,
		ChunkID:     r.ChunkID,
		DocID:       r.Chunk.DocID,
		Title:       r.DocTitle,
		Breadcrumb:  r.Chunk.Breadcrumb,
		Text:        r.Chunk.Text,
		Score:       r.Score,
		VectorRank:  r.VectorRank,
		LexicalRank: r.LexicalRank,
		Expanded:    r.Expanded,
		MatchReason: generateMatchReason(r),
	}
}

// generateMatchReason explains which path found a result.
func generateMatchReason(r search.Result) string {
	switch {
	case r.Expanded:
		return "linked from a matching note"
	case r.VectorRank > 0 && r.LexicalRank > 0:
		return fmt.Sprintf("found by both semantic (#%d) and keyword (#%d) search", r.VectorRank, r.LexicalRank)
	case r.VectorRank > 0:
		return fmt.Sprintf("semantic match (#%d)", r.VectorRank)
	case r.LexicalRank > 0:
		return fmt.Sprintf("keyword match (#%d)", r.LexicalRank)
	}
	return "matched content"
}

// ToTasksOutput converts task records with due dates as YYYY-MM-DD.
func ToTasksOutput(tasks []store.TaskRecord) TasksOutput {
	out := TasksOutput{Tasks: make([]TaskOutput, 0, len(tasks))}
	for _, t := range tasks {
		to := TaskOutput{
			DocID:     t.DocID,
			DocTitle:  t.DocTitle,
			Text:      t.Text,
			Completed: t.Done,
			Line:      t.Line,
		}
		if t.Due != nil {
			to.Due = t.Due.Format("2006-01-02")
		}
		out.Tasks = append(out.Tasks, to)
	}
	return out
}
