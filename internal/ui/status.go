package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains vault index health information.
type StatusInfo struct {
	VaultName      string    `json:"vault_name"`
	Documents      int       `json:"documents"`
	Chunks         int       `json:"chunks"`
	LexicalEntries int       `json:"lexical_entries"`
	VectorEntries  int       `json:"vector_entries"`
	Consistent     bool      `json:"consistent"`
	LastIndexed    time.Time `json:"last_indexed"`

	// Outcome of the last cycle
	LastAdded   int `json:"last_added"`
	LastUpdated int `json:"last_updated"`
	LastRemoved int `json:"last_removed"`
	LastFailed  int `json:"last_failed"`

	// Storage sizes (in bytes)
	MetadataSize int64 `json:"metadata_size"`
	LexicalSize  int64 `json:"lexical_size"`
	VectorSize   int64 `json:"vector_size"`
	TotalSize    int64 `json:"total_size"`

	LexicalBackend  string `json:"lexical_backend"`
	VectorBackend   string `json:"vector_backend"`
	MetadataBackend string `json:"metadata_backend"`

	EmbedderProvider   string `json:"embedder_provider"`
	EmbedderModel      string `json:"embedder_model,omitempty"`
	EmbedderDimensions int    `json:"embedder_dimensions,omitempty"`
	BreakerState       string `json:"breaker_state,omitempty"` // "closed", "open", "half-open"
	WatcherStatus      string `json:"watcher_status"`          // "running", "stopped", "n/a"
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	p("%s\n\n", r.styles.Header.Render("Vault Status: "+info.VaultName))

	p("  Documents:    %d\n", info.Documents)
	p("  Chunks:       %d\n", info.Chunks)
	p("  Lexical:      %d entries\n", info.LexicalEntries)
	p("  Vectors:      %d entries\n", info.VectorEntries)
	if info.Consistent {
		p("  Lockstep:     %s\n", r.styles.Success.Render("ok"))
	} else {
		p("  Lockstep:     %s\n", r.styles.Error.Render("drift (run 'notebrain check --repair')"))
	}
	if !info.LastIndexed.IsZero() {
		p("  Last indexed: %s\n", formatTime(info.LastIndexed))
		p("  Last cycle:   %d added, %d updated, %d removed", info.LastAdded, info.LastUpdated, info.LastRemoved)
		if info.LastFailed > 0 {
			p(", %s", r.styles.Error.Render(fmt.Sprintf("%d failed", info.LastFailed)))
		}
		p("\n")
	}
	p("\n")

	p("  Storage:\n")
	p("    Metadata:   %s %s\n", FormatBytes(info.MetadataSize), r.styles.Dim.Render("("+info.MetadataBackend+")"))
	p("    Lexical:    %s %s\n", FormatBytes(info.LexicalSize), r.styles.Dim.Render("("+info.LexicalBackend+")"))
	p("    Vectors:    %s %s\n", FormatBytes(info.VectorSize), r.styles.Dim.Render("("+info.VectorBackend+")"))
	p("    Total:      %s\n", FormatBytes(info.TotalSize))
	p("\n")

	p("  Embedder:\n")
	p("    Provider: %s\n", info.EmbedderProvider)
	if info.EmbedderModel != "" {
		p("    Model:    %s\n", info.EmbedderModel)
	}
	if info.EmbedderDimensions > 0 {
		p("    Dims:     %d\n", info.EmbedderDimensions)
	}
	if info.BreakerState != "" {
		p("    Breaker:  %s\n", r.renderStatus(info.BreakerState))
	}

	if info.WatcherStatus != "" && info.WatcherStatus != "n/a" {
		p("\n  Watcher: %s\n", r.renderStatus(info.WatcherStatus))
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "closed", "running":
		return r.styles.Success.Render(status)
	case "half-open", "stopped":
		return r.styles.Warning.Render(status)
	case "open", "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
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
