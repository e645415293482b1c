package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		VaultName:        "vault",
		Documents:        12,
		Chunks:           80,
		LexicalEntries:   80,
		VectorEntries:    80,
		Consistent:       true,
		LastIndexed:      time.Now().Add(-2 * time.Hour),
		LastAdded:        2,
		LastUpdated:      1,
		LastFailed:       1,
		MetadataSize:     2048,
		LexicalSize:      3 * 1024 * 1024,
		VectorSize:       512,
		TotalSize:        3*1024*1024 + 2560,
		LexicalBackend:   "bleve",
		VectorBackend:    "hnsw",
		MetadataBackend:  "sqlite",
		EmbedderProvider: "ollama",
		EmbedderModel:    "nomic-embed-text",
		BreakerState:     "closed",
		WatcherStatus:    "n/a",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a healthy vault
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(sampleStatus()))

	// Then: counts, sizes and backends are shown
	out := buf.String()
	assert.Contains(t, out, "Vault Status: vault")
	assert.Contains(t, out, "Documents:    12")
	assert.Contains(t, out, "Lockstep:     ok")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "2 added, 1 updated, 0 removed, 1 failed")
	assert.Contains(t, out, "3.0 MB (bleve)")
	assert.Contains(t, out, "Breaker:  closed")
	assert.NotContains(t, out, "Watcher")
}

func TestStatusRenderer_RenderDrift(t *testing.T) {
	buf := &bytes.Buffer{}
	info := sampleStatus()
	info.Consistent = false

	require.NoError(t, NewStatusRenderer(buf, true).Render(info))
	assert.Contains(t, buf.String(), "drift")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON(sampleStatus()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "vault", decoded["vault_name"])
	assert.Equal(t, float64(80), decoded["vector_entries"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatTime(now))
	assert.Equal(t, "1 minute ago", formatTime(now.Add(-90*time.Second)))
	assert.Equal(t, "5 minutes ago", formatTime(now.Add(-5*time.Minute)))
	assert.Equal(t, "1 day ago", formatTime(now.Add(-30*time.Hour)))

	old := time.Date(2020, 1, 2, 3, 4, 0, 0, time.Local)
	assert.Equal(t, "2020-01-02 03:04", formatTime(old))
}
