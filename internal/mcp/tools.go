package mcp

// SearchNotesInput defines the input schema for the search_notes tool.
type SearchNotesInput struct {
	Query    string   `json:"query" jsonschema:"the question or keywords to search the vault for"`
	K        int      `json:"k,omitempty" jsonschema:"number of fused results to return, default from configuration"`
	Tags     []string `json:"tags,omitempty" jsonschema:"only return chunks of notes carrying any of these tags"`
	Docs     []string `json:"docs,omitempty" jsonschema:"only return chunks of these notes (vault-relative paths)"`
	Fusion   string   `json:"fusion,omitempty" jsonschema:"fusion mode: rrf or weighted"`
	NoExpand bool     `json:"no_expand,omitempty" jsonschema:"disable link expansion to notes linked from the results"`
}

// SearchNotesOutput defines the output schema for the search_notes tool.
type SearchNotesOutput struct {
	Results  []ResultOutput `json:"results" jsonschema:"ranked chunks, expanded chunks last"`
	Fusion   string         `json:"fusion"`
	Degraded bool           `json:"degraded,omitempty" jsonschema:"true if one retrieval path failed and results come from the other"`
	// DegradedPath is "vector" or "lexical".
	DegradedPath string `json:"degraded_path,omitempty"`
	TookMS       int64  `json:"took_ms"`
}

// ResultOutput defines a single search result with the reason it matched.
type ResultOutput struct {
	Rank        int      `json:"rank"`
	ChunkID     string   `json:"chunk_id"`
	DocID       string   `json:"doc_id" jsonschema:"vault-relative path of the note"`
	Title       string   `json:"title"`
	Breadcrumb  []string `json:"breadcrumb,omitempty" jsonschema:"heading path of the chunk"`
	Text        string   `json:"text"`
	Score       float64  `json:"score" jsonschema:"fused score; 0 for link-expanded chunks"`
	VectorRank  int      `json:"vector_rank,omitempty"`
	LexicalRank int      `json:"lexical_rank,omitempty"`
	Expanded    bool     `json:"expanded,omitempty" jsonschema:"true if added by link expansion"`
	MatchReason string   `json:"match_reason,omitempty"`
}

// BuildContextInput defines the input schema for the build_context tool.
type BuildContextInput struct {
	Query  string   `json:"query" jsonschema:"the question the context is for"`
	K      int      `json:"k,omitempty" jsonschema:"number of fused results to consider"`
	Budget int      `json:"budget,omitempty" jsonschema:"token budget, default from configuration"`
	Tags   []string `json:"tags,omitempty" jsonschema:"only use notes carrying any of these tags"`
	Docs   []string `json:"docs,omitempty" jsonschema:"only use these notes (vault-relative paths)"`
}

// BuildContextOutput defines the output schema for the build_context tool.
type BuildContextOutput struct {
	Context     string          `json:"context" jsonschema:"rendered passages ready to paste into a prompt"`
	Passages    []PassageOutput `json:"passages"`
	TotalTokens int             `json:"total_tokens"`
	Budget      int             `json:"budget"`
	Excluded    int             `json:"excluded" jsonschema:"passages left out because of the budget"`
	Degraded    bool            `json:"degraded,omitempty"`
}

// PassageOutput is one passage of a built context.
type PassageOutput struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Title   string `json:"title"`
	Tokens  int    `json:"tokens"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Vault string     `json:"vault"`
	Stats IndexStats `json:"stats"`
	// Ready is true when the index holds chunks and the stores agree.
	Ready     bool          `json:"ready"`
	LastCycle *CycleSummary `json:"last_cycle,omitempty"`
	Embedding EmbeddingInfo `json:"embedding"`
}

// IndexStats contains store counts.
type IndexStats struct {
	Documents      int  `json:"documents"`
	Chunks         int  `json:"chunks"`
	LexicalEntries int  `json:"lexical_entries"`
	VectorEntries  int  `json:"vector_entries"`
	Consistent     bool `json:"consistent" jsonschema:"true if chunk, lexical and vector counts agree"`
}

// EmbeddingInfo describes the model the index was built with.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// CycleSummary condenses the last indexing report.
type CycleSummary struct {
	FinishedAt  string `json:"finished_at"`
	FullReindex bool   `json:"full_reindex,omitempty"`
	Added       int    `json:"added"`
	Updated     int    `json:"updated"`
	Removed     int    `json:"removed"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	DurationMS  int64  `json:"duration_ms"`
}

// TasksOutput is the JSON body of the tasks resource.
type TasksOutput struct {
	Tasks []TaskOutput `json:"tasks"`
}

// TaskOutput is one extracted task.
type TaskOutput struct {
	DocID     string `json:"doc_id"`
	DocTitle  string `json:"doc_title"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Due       string `json:"due,omitempty"`
	Line      int    `json:"line"`
}
