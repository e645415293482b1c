package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/notebrain/internal/store"
)

// MaxResourceSize is the maximum note size for resources (1MB).
const MaxResourceSize = 1024 * 1024

// TasksURI is the URI of the extracted-tasks resource.
const TasksURI = "notebrain://tasks"

const markdownMIME = "text/markdown"

// RegisterResources registers every indexed note as an MCP resource plus
// the tasks resource. Calling it again after an indexing cycle adds new
// notes and removes the resources of notes that left the index.
func (s *Server) RegisterResources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vaultDir == "" {
		return fmt.Errorf("vault directory must be set before registering resources")
	}

	docs, err := s.metadata.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	current := make(map[string]bool, len(docs))
	for _, d := range docs {
		s.registerNoteResource(d)
		current[noteURI(d.ID)] = true
	}
	var stale []string
	for uri := range s.noteURIs {
		if !current[uri] {
			stale = append(stale, uri)
		}
	}
	if len(stale) > 0 {
		s.mcp.RemoveResources(stale...)
	}
	s.noteURIs = current
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "tasks",
			URI:         TasksURI,
			Description: "Tasks extracted from the vault, pending first, by due date",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleReadTasks(ctx)
		},
	)

	s.logger.Info("resources_registered", slog.Int("count", len(docs)+1), slog.Int("removed", len(stale)))
	return nil
}

// registerNoteResource registers a single note as an MCP resource.
func (s *Server) registerNoteResource(d *store.DocumentRecord) {
	desc := d.ID
	if len(d.Tags) > 0 {
		desc = fmt.Sprintf("%s [%s]", d.ID, strings.Join(d.Tags, ", "))
	}
	name := d.Title
	if name == "" {
		name = filepath.Base(d.ID)
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        name,
			URI:         noteURI(d.ID),
			Description: desc,
			MIMEType:    markdownMIME,
		},
		s.makeNoteHandler(d.ID),
	)
}

func noteURI(docID string) string {
	return "file://" + docID
}

// makeNoteHandler creates a read handler for a specific note.
func (s *Server) makeNoteHandler(docID string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadResource(ctx, docID)
	}
}

// handleReadResource reads a note from the vault with path validation.
// Only indexed notes can be read.
func (s *Server) handleReadResource(ctx context.Context, docID string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(docID) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", docID))
	}

	doc, err := s.metadata.GetDocument(ctx, docID)
	if err != nil {
		return nil, MapError(err)
	}
	if doc == nil {
		return nil, NewInvalidParamsError(fmt.Sprintf("note not indexed: %s", docID))
	}

	fullPath := filepath.Join(s.vaultDir, filepath.FromSlash(docID))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeNoteNotFound,
				Message: fmt.Sprintf("note not found: %s", docID),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeNoteTooLarge,
			Message: fmt.Sprintf("note too large: %s (max %s)", humanSize(info.Size()), humanSize(MaxResourceSize)),
		}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      noteURI(docID),
				MIMEType: markdownMIME,
				Text:     string(content),
			},
		},
	}, nil
}

// handleReadTasks lists extracted tasks as JSON.
func (s *Server) handleReadTasks(ctx context.Context) (*mcp.ReadResourceResult, error) {
	tasks, err := s.metadata.ListTasks(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	out := ToTasksOutput(tasks)

	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      TasksURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

// isValidPath validates that a vault-relative path is safe to access.
// Returns false for path traversal attempts or absolute paths.
func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return false
	}
	// Windows drive letters
	if len(path) >= 2 && path[1] == ':' {
		return false
	}

	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
