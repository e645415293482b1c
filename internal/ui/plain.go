package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for CI and pipes.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer

	// lastPercent throttles lines to every tenth percent within a stage.
	lastPercent int
	lastStage   Stage
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastPercent: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	if event.Total > 0 {
		percent := event.Current * 100 / event.Total
		if event.Stage != r.lastStage {
			r.lastStage = event.Stage
			r.lastPercent = -1
		}
		if r.lastPercent >= 0 && event.Current < event.Total && percent/10 == r.lastPercent/10 {
			return
		}
		r.lastPercent = percent
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
		return
	}
	if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d added, %d updated, %d removed, %d unchanged in %s",
		stats.Added, stats.Updated, stats.Removed, stats.Unchanged, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Stages.Scan > 0 || stats.Stages.Embed > 0 {
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:      %s\n", stats.Stages.Scan.Round(time.Millisecond))
		if stats.ChunksEmbedded > 0 && stats.Stages.Embed > 0 {
			_, _ = fmt.Fprintf(r.out, "  Embed:     %s (%d chunks @ %.1f/sec)\n",
				stats.Stages.Embed.Round(time.Millisecond), stats.ChunksEmbedded,
				float64(stats.ChunksEmbedded)/stats.Stages.Embed.Seconds())
		}
		_, _ = fmt.Fprintf(r.out, "  Write:     %s\n", stats.Stages.Write.Round(time.Millisecond))
		if stats.Stages.Reconcile > 0 {
			_, _ = fmt.Fprintf(r.out, "  Reconcile: %s\n", stats.Stages.Reconcile.Round(time.Millisecond))
		}
	}
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%d dims)\n", stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
