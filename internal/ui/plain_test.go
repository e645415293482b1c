package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: updating progress
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 5, Total: 100, CurrentFile: "notes/daily.md"})

	// Then: the first line is printed even below ten percent
	output := buf.String()
	assert.Contains(t, output, "[INDEX]")
	assert.Contains(t, output, "5/100")
	assert.Contains(t, output, "notes/daily.md")
}

func TestPlainRenderer_ThrottlesToTenPercent(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: reporting every document of a hundred
	for i := 1; i <= 100; i++ {
		r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: i, Total: 100})
	}

	// Then: one line per decile, plus the final one
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 11)
	assert.Contains(t, lines[len(lines)-1], "100/100")
}

func TestPlainRenderer_StageChangeResetsThrottle(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Current: 1, Total: 50})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 1, Total: 50})

	output := buf.String()
	assert.Contains(t, output, "[SCAN] 1/50")
	assert.Contains(t, output, "[INDEX] 1/50")
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	for _, stage := range []Stage{StageScanning, StageIndexing, StageReconciling, StageComplete} {
		r.UpdateProgress(ProgressEvent{Stage: stage, Message: "working"})
	}
	r.AddError(ErrorEvent{File: "a.md", Err: errors.New("boom")})
	r.Complete(CompletionStats{Added: 1})

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	tests := []struct {
		name  string
		event ErrorEvent
		want  string
	}{
		{"error with file", ErrorEvent{File: "a.md", Err: errors.New("embed failed")}, "ERROR: a.md: embed failed\n"},
		{"warning", ErrorEvent{File: "b.md", Err: errors.New("bad yaml"), IsWarn: true}, "WARN: b.md: bad yaml\n"},
		{"no file", ErrorEvent{Err: errors.New("reconcile failed")}, "ERROR: reconcile failed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPlainRenderer(Config{Output: buf}).AddError(tt.event)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a finished cycle
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: completing
	r.Complete(CompletionStats{
		Added: 3, Updated: 1, Removed: 2, Unchanged: 10,
		ChunksEmbedded: 20,
		Duration:       1500 * time.Millisecond,
		Errors:         1,
		Stages:         StageTimings{Scan: 10 * time.Millisecond, Embed: 2 * time.Second, Write: 5 * time.Millisecond},
		Embedder:       EmbedderInfo{Model: "nomic-embed-text", Dimensions: 768},
	})

	// Then: the summary names every count
	output := buf.String()
	assert.Contains(t, output, "Complete: 3 added, 1 updated, 2 removed, 10 unchanged in 1.5s")
	assert.Contains(t, output, "(1 errors, 0 warnings)")
	assert.Contains(t, output, "20 chunks @ 10.0/sec")
	assert.Contains(t, output, "Embedder: nomic-embed-text (768 dims)")
	assert.NotContains(t, output, "Reconcile:")
}
