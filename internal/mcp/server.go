package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/notebrain/internal/contextbuilder"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
	"github.com/Aman-CERP/notebrain/pkg/version"
)

// ServerName is the implementation name reported to clients.
const ServerName = "notebrain"

// Default and maximum K for tool calls.
const (
	defaultToolK = 10
	maxToolK     = 50
)

// StatusFunc reads the current index status.
type StatusFunc func(ctx context.Context) (*index.Status, error)

// Dependencies contains the injected dependencies for Server.
type Dependencies struct {
	Retriever *search.Retriever
	Builder   *contextbuilder.Builder
	Metadata  store.MetadataStore
	Status    StatusFunc
	Logger    *slog.Logger
}

// Options configures the server.
type Options struct {
	// VaultDir is the vault root, used for note resources.
	VaultDir string

	// DefaultBudget is the build_context token budget when a call leaves it
	// unset.
	DefaultBudget int
}

// Server is the MCP server for notebrain.
// It exposes vault retrieval to AI clients over JSON-RPC.
type Server struct {
	mcp       *mcp.Server
	retriever *search.Retriever
	builder   *contextbuilder.Builder
	metadata  store.MetadataStore
	status    StatusFunc
	logger    *slog.Logger

	vaultDir      string
	defaultBudget int

	// noteURIs are the note resources currently registered.
	noteURIs map[string]bool

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search_notes",
		Description: "Search the notes vault. Combines semantic and keyword search and adds chunks of notes linked from the best matches. Returns ranked chunks with their note, heading path and text.",
	},
	{
		Name:        "build_context",
		Description: "Build a prompt context for a question: retrieves the most relevant note passages and packs them, best first, into a token budget. Use this before answering a question from the user's notes.",
	},
	{
		Name:        "index_status",
		Description: "Report how many notes and chunks are indexed, when the last indexing cycle ran and whether the keyword and vector indexes agree.",
	},
}

// NewServer creates a new MCP server.
func NewServer(deps Dependencies, opts Options) (*Server, error) {
	switch {
	case deps.Retriever == nil:
		return nil, errors.New("retriever is required")
	case deps.Metadata == nil:
		return nil, errors.New("metadata store is required")
	case deps.Status == nil:
		return nil, errors.New("status function is required")
	}

	s := &Server{
		retriever:     deps.Retriever,
		builder:       deps.Builder,
		metadata:      deps.Metadata,
		status:        deps.Status,
		logger:        deps.Logger,
		vaultDir:      opts.VaultDir,
		defaultBudget: opts.DefaultBudget,
		noteURIs:      map[string]bool{},
	}
	if s.builder == nil {
		s.builder = contextbuilder.NewBuilder(0, deps.Logger)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.defaultBudget <= 0 {
		s.defaultBudget = 2000
	}

	// Capabilities are inferred from registered tools and resources.
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchNotesHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpBuildContextHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

// CallTool invokes a tool by name with JSON-style arguments and returns its
// typed output. It backs tests and in-process callers; MCP clients go
// through the SDK handlers.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}

	switch name {
	case "search_notes":
		var in SearchNotesInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
		}
		out, _, err := s.searchNotes(ctx, in)
		return out, err
	case "build_context":
		var in BuildContextInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
		}
		out, _, err := s.buildContext(ctx, in)
		return out, err
	case "index_status":
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// searchNotes runs a retrieval and returns the structured output and the
// markdown rendering.
func (s *Server) searchNotes(ctx context.Context, in SearchNotesInput) (*SearchNotesOutput, string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	requestID := generateRequestID()
	s.logger.Info("search_notes_started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query))

	resp, err := s.retriever.Retrieve(ctx, search.Query{
		Text:     in.Query,
		K:        clampLimit(in.K, defaultToolK, 1, maxToolK),
		Filter:   store.Filter{DocIDs: in.Docs, Tags: in.Tags},
		Fusion:   in.Fusion,
		NoExpand: in.NoExpand,
	})
	if err != nil {
		s.logger.Error("search_notes_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, "", MapError(err)
	}

	out := &SearchNotesOutput{
		Results:      make([]ResultOutput, 0, len(resp.Results)),
		Fusion:       resp.Fusion,
		Degraded:     resp.Degraded,
		DegradedPath: resp.DegradedPath,
		TookMS:       resp.Duration.Milliseconds(),
	}
	for _, r := range resp.Results {
		if r.Chunk != nil {
			out.Results = append(out.Results, ToResultOutput(r))
		}
	}

	s.logger.Info("search_notes_completed",
		slog.String("request_id", requestID),
		slog.Int("result_count", len(out.Results)),
		slog.Bool("degraded", resp.Degraded),
		slog.Duration("duration", resp.Duration))
	return out, FormatSearchResults(resp), nil
}

// buildContext retrieves and packs passages into the token budget.
func (s *Server) buildContext(ctx context.Context, in BuildContextInput) (*BuildContextOutput, string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if in.Budget < 0 {
		return nil, "", NewInvalidParamsError("budget must not be negative")
	}
	budget := in.Budget
	if budget == 0 {
		budget = s.defaultBudget
	}

	resp, err := s.retriever.Retrieve(ctx, search.Query{
		Text:   in.Query,
		K:      clampLimit(in.K, defaultToolK, 1, maxToolK),
		Filter: store.Filter{DocIDs: in.Docs, Tags: in.Tags},
	})
	if err != nil {
		return nil, "", MapError(err)
	}

	bundle := s.builder.Build(resp.Results, budget)
	rendered := bundle.Render()
	out := &BuildContextOutput{
		Context:     rendered,
		Passages:    make([]PassageOutput, 0, len(bundle.Passages)),
		TotalTokens: bundle.TotalTokens,
		Budget:      bundle.Budget,
		Excluded:    bundle.Excluded,
		Degraded:    resp.Degraded,
	}
	for _, p := range bundle.Passages {
		out.Passages = append(out.Passages, PassageOutput{
			ChunkID: p.ChunkID,
			DocID:   p.DocID,
			Title:   p.Title,
			Tokens:  p.Tokens,
		})
	}
	return out, rendered, nil
}

// indexStatus reads the index status.
func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	st, err := s.status(ctx)
	if err != nil {
		s.logger.Error("index_status_failed", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Vault: s.vaultDir,
		Stats: IndexStats{
			Documents:      st.Documents,
			Chunks:         st.Chunks,
			LexicalEntries: st.LexicalEntries,
			VectorEntries:  st.VectorEntries,
			Consistent:     st.Consistent,
		},
		Ready: st.Chunks > 0 && st.Consistent,
		Embedding: EmbeddingInfo{
			Model:      st.EmbeddingModel,
			Dimensions: st.EmbeddingDimensions,
		},
	}
	if r := st.LastReport; r != nil {
		out.LastCycle = &CycleSummary{
			FinishedAt:  st.LastIndexed.Format(time.RFC3339),
			FullReindex: r.FullReindex,
			Added:       r.Added,
			Updated:     r.Updated,
			Removed:     r.Removed,
			Failed:      r.Failed,
			Skipped:     r.Skipped,
			DurationMS:  r.Duration.Milliseconds(),
		}
	}
	return out, nil
}

// mcpSearchNotesHandler is the MCP SDK handler for the search_notes tool.
func (s *Server) mcpSearchNotesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchNotesInput) (
	*mcp.CallToolResult,
	*SearchNotesOutput,
	error,
) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, text, err := s.searchNotes(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), out, nil
}

// mcpBuildContextHandler is the MCP SDK handler for the build_context tool.
func (s *Server) mcpBuildContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input BuildContextInput) (
	*mcp.CallToolResult,
	*BuildContextOutput,
	error,
) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, text, err := s.buildContext(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return textResult(text), out, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// textResult carries a human-readable rendering next to the structured
// output.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
