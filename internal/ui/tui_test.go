package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_FailsForNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(Config{Output: &bytes.Buffer{}})
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexingModel_InitialView(t *testing.T) {
	// Given: a new model
	model := newIndexingModel(NewProgressTracker(), "~/vault")

	// When: rendering
	view := model.View()

	// Then: the title and every stage are shown
	assert.Contains(t, view, "notebrain indexer")
	assert.Contains(t, view, "~/vault")
	assert.Contains(t, view, "Scan")
	assert.Contains(t, view, "Index")
	assert.Contains(t, view, "Reconcile")
}

func TestIndexingModel_ProgressDisplay(t *testing.T) {
	// Given: a tracker halfway through indexing
	tracker := NewProgressTracker()
	tracker.Update(ProgressEvent{Stage: StageIndexing, Current: 50, Total: 100, CurrentFile: "projects/notebrain.md"})
	model := newIndexingModel(tracker, "")

	// When: rendering
	view := model.View()

	// Then: counts and the current file are shown
	assert.Contains(t, view, "50 / 100 documents")
	assert.Contains(t, view, "notebrain.md")
}

func TestIndexingModel_ErrorCounts(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{File: "a.md", Err: errors.New("boom")})
	tracker.AddError(ErrorEvent{File: "b.md", Err: errors.New("odd"), IsWarn: true})
	model := newIndexingModel(tracker, "")

	view := model.View()
	assert.Contains(t, view, "1 errors")
	assert.Contains(t, view, "1 warnings")
}

func TestIndexingModel_CompleteQuits(t *testing.T) {
	// Given: a running model
	model := newIndexingModel(NewProgressTracker(), "")

	// When: the cycle completes
	next, cmd := model.Update(completeMsg(CompletionStats{Added: 2, Updated: 1, Removed: 3, Unchanged: 4, Duration: 2 * time.Second}))

	// Then: the summary replaces the progress panel and the program quits
	require.NotNil(t, cmd)
	view := next.View()
	assert.Contains(t, view, "Indexing complete")
	assert.Contains(t, view, "2 added, 1 updated, 3 removed, 4 unchanged")
	assert.Contains(t, view, "2s")
}

func TestIndexingModel_CtrlCCancels(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", next.View())
}

func TestIndexingModel_WindowResize(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")
	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, model.width)
	assert.Equal(t, 100, model.progressBar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 10*time.Minute, "2h 10m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.md", truncatePath("short.md", 20))
	assert.Equal(t, "...deep/file.md", truncatePath("very/long/path/deep/file.md", 15))
	assert.Equal(t, "...", truncatePath("abcdef", 2))
}
