package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for one writer and one polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCmd_ReindexesOnChange(t *testing.T) {
	// Given: a vault being watched with a short debounce
	dir := newTestVault(t, gardenNotes())
	t.Setenv("NOTEBRAIN_WATCH_DEBOUNCE", "50ms")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"watch", "--vault", dir})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Watching"))
	}, 10*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "+2 ~0 -0")

	// When: a note is added
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.md"), []byte("# New\n\nFresh idea.\n"), 0o644))

	// Then: a cycle indexes it
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("+1 ~0 -0"))
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchCmd_CancelledBeforeStart(t *testing.T) {
	dir := newTestVault(t, gardenNotes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"watch", "--vault", dir})

	assert.NoError(t, root.ExecuteContext(ctx))
}
