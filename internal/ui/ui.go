// Package ui renders indexing progress and index status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one phase of an indexing cycle.
type Stage int

const (
	// StageScanning walks and hashes the vault.
	StageScanning Stage = iota
	// StageIndexing parses, embeds and writes changed documents.
	StageIndexing
	// StageReconciling repairs cross-store drift.
	StageReconciling
	// StageComplete marks the end of the cycle.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageReconciling:
		return "Reconciling"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageReconciling:
		return "FIX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-document failure or warning.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings holds per-stage durations; Embed and Write are summed
// across workers.
type StageTimings struct {
	Scan      time.Duration
	Embed     time.Duration
	Write     time.Duration
	Reconcile time.Duration
}

// EmbedderInfo describes the embedding model used.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished cycle.
type CompletionStats struct {
	Added          int
	Updated        int
	Removed        int
	Unchanged      int
	ChunksEmbedded int
	Duration       time.Duration
	Errors         int
	Warnings       int
	Stages         StageTimings
	Embedder       EmbedderInfo
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display. Safe for concurrent use.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display. Safe for concurrent use.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// VaultDir is shown in the TUI header.
	VaultDir string
}

// NewRenderer picks the TUI for interactive terminals and plain text for
// pipes, CI and --plain.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// Nop returns a renderer that discards everything.
func Nop() Renderer { return nopRenderer{} }

type nopRenderer struct{}

func (nopRenderer) Start(context.Context) error  { return nil }
func (nopRenderer) UpdateProgress(ProgressEvent) {}
func (nopRenderer) AddError(ErrorEvent)          {}
func (nopRenderer) Complete(CompletionStats)     {}
func (nopRenderer) Stop() error                  { return nil }
