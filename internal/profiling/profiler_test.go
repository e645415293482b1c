package profiling

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func busyWork() int {
	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += i % 7
	}
	return sum
}

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{Heap: "heap.prof"}.Enabled())
}

func TestSession_WritesAllProfiles(t *testing.T) {
	// Given: every profile requested
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// When: a session runs some work
	s, err := Start(opts, logger)
	require.NoError(t, err)
	_ = busyWork()
	require.NoError(t, s.Stop())

	// Then: each file exists with content and a summary is logged
	for _, path := range []string{opts.CPU, opts.Heap, opts.Trace} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Positive(t, info.Size(), path)
	}
	assert.Contains(t, logs.String(), "profile_summary")
}

func TestSession_NothingRequested(t *testing.T) {
	s, err := Start(Options{}, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"TS01: cpu", Options{CPU: "/nonexistent/dir/cpu.prof"}},
		{"TS02: trace", Options{Trace: "/nonexistent/dir/trace.out"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start(tt.opts, nil)
			assert.Error(t, err)
		})
	}
}

func TestStart_TraceFailureStopsCPU(t *testing.T) {
	// Given: a valid CPU path and an invalid trace path
	dir := t.TempDir()
	_, err := Start(Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Trace: "/nonexistent/dir/trace.out",
	}, nil)
	require.Error(t, err)

	// Then: CPU profiling was stopped, so a new session can start it again
	s, err := Start(Options{CPU: filepath.Join(dir, "cpu2.prof")}, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestWriteHeap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")
	require.NoError(t, WriteHeap(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, WriteHeap("/nonexistent/dir/heap.prof"))
}

func TestMemStats(t *testing.T) {
	m := MemStats()
	assert.Positive(t, m.HeapAlloc)
}
