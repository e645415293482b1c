// Package output formats CLI output: status lines, query results and task lists.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/notebrain/internal/search"
	"github.com/Aman-CERP/notebrain/internal/store"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool

	bold lipgloss.Style
	dim  lipgloss.Style
}

// New creates a new output Writer without colors.
func New(out io.Writer) *Writer {
	return newWriter(out, false)
}

// NewAuto creates a Writer that colors output when out is a terminal and
// NO_COLOR is unset.
func NewAuto(out io.Writer) *Writer {
	return newWriter(out, isTerminal(out) && os.Getenv("NO_COLOR") == "")
}

func newWriter(out io.Writer, useColor bool) *Writer {
	w := &Writer{out: out, useColor: useColor, bold: lipgloss.NewStyle(), dim: lipgloss.NewStyle()}
	if useColor {
		w.bold = w.bold.Bold(true)
		w.dim = w.dim.Foreground(lipgloss.Color("245"))
	}
	return w
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Status(icon, msg)
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Raw prints text unchanged.
func (w *Writer) Raw(text string) {
	_, _ = io.WriteString(w.out, text)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results prints ranked retrieval results, one block per chunk.
func (w *Writer) Results(resp *search.Response) {
	if resp == nil || len(resp.Results) == 0 {
		w.Status("🔍", "No results.")
		return
	}
	if resp.Degraded {
		w.Warningf("%s search failed, results come from one path only: %s", resp.DegradedPath, resp.DegradedReason)
	}

	for _, r := range resp.Results {
		if r.Chunk == nil {
			continue
		}
		title := r.DocTitle
		if title == "" {
			title = r.Chunk.DocID
		}
		header := fmt.Sprintf("%2d. %s", r.Rank, title)
		var detail string
		if r.Expanded {
			detail = "linked"
		} else {
			detail = fmt.Sprintf("score %.4f", r.Score)
			if r.VectorRank > 0 {
				detail += fmt.Sprintf("  vec #%d", r.VectorRank)
			}
			if r.LexicalRank > 0 {
				detail += fmt.Sprintf("  lex #%d", r.LexicalRank)
			}
		}
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", w.bold.Render(header), w.dim.Render(detail))

		path := r.Chunk.DocID
		if len(r.Chunk.Breadcrumb) > 0 {
			path += " > " + strings.Join(r.Chunk.Breadcrumb, " > ")
		}
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.dim.Render(path))
		for _, line := range strings.Split(snippet(r.Chunk.Text, 240), "\n") {
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
		_, _ = fmt.Fprintln(w.out)
	}

	_, _ = fmt.Fprintf(w.out, "%s\n", w.dim.Render(fmt.Sprintf("%d results (%d linked) in %s, fusion %s",
		len(resp.Results), resp.Expanded, resp.Duration.Round(time.Millisecond), resp.Fusion)))
}

// Tasks prints extracted tasks as a checklist.
func (w *Writer) Tasks(tasks []store.TaskRecord) {
	if len(tasks) == 0 {
		w.Status("📋", "No tasks.")
		return
	}
	for _, t := range tasks {
		box := "[ ]"
		if t.Done {
			box = "[x]"
		}
		line := fmt.Sprintf("%s %s", box, t.Text)
		if t.Due != nil {
			line += fmt.Sprintf(" (due %s)", t.Due.Format("2006-01-02"))
		}
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", line, w.dim.Render(fmt.Sprintf("%s:%d", t.DocID, t.Line)))
	}
}

// snippet shortens text to at most max runes, cutting at a word boundary.
func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if i := strings.LastIndexAny(cut, " \n"); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
