package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPolling runs a polling watcher on dir until the test ends.
func startPolling(t *testing.T, dir string, skipDir func(string) bool) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(20*time.Millisecond, skipDir)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx, dir) }()
	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("baseline scan never finished")
	}
	return w
}

func waitForEvent(t *testing.T, events <-chan FileEvent, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-events:
			require.True(t, ok, "events channel closed")
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestPollingWatcher_DetectsCreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	w := startPolling(t, dir, nil)

	// When: a note is created
	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	e := waitForEvent(t, w.Events(), func(e FileEvent) bool { return e.Path == "note.md" })
	assert.Equal(t, OpCreate, e.Operation)

	// And: modified with a different size
	require.NoError(t, os.WriteFile(path, []byte("one two"), 0o644))
	e = waitForEvent(t, w.Events(), func(e FileEvent) bool { return e.Path == "note.md" })
	assert.Equal(t, OpModify, e.Operation)

	// And: deleted
	require.NoError(t, os.Remove(path))
	e = waitForEvent(t, w.Events(), func(e FileEvent) bool { return e.Path == "note.md" })
	assert.Equal(t, OpDelete, e.Operation)
}

func TestPollingWatcher_SlashSeparatedPaths(t *testing.T) {
	dir := t.TempDir()
	w := startPolling(t, dir, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "daily"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daily", "2024-03-01.md"), []byte("x"), 0o644))

	e := waitForEvent(t, w.Events(), func(e FileEvent) bool { return !e.IsDir })
	assert.Equal(t, "daily/2024-03-01.md", e.Path)
}

func TestPollingWatcher_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".notebrain"), 0o755))
	w := startPolling(t, dir, func(rel string) bool { return rel == ".notebrain" })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".notebrain", "metadata.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seen.md"), []byte("x"), 0o644))

	e := waitForEvent(t, w.Events(), func(FileEvent) bool { return true })
	assert.Equal(t, "seen.md", e.Path)
}

func TestPollingWatcher_StartInvalidPath(t *testing.T) {
	w := NewPollingWatcher(time.Second, nil)
	err := w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPollingWatcher_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	w := NewPollingWatcher(20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	_, ok := <-w.Events()
	assert.False(t, ok, "events channel is closed")
	assert.NoError(t, w.Stop())
}
