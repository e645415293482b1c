package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// isolate points the user config at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 512, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 60, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 0.7, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 0.3, cfg.Retrieval.LexicalWeight)
	assert.Equal(t, 20, cfg.Retrieval.MaxResults)
	assert.Equal(t, 1, cfg.Retrieval.LinkExpansionHops)
	assert.Equal(t, 100, cfg.Embeddings.BatchSize)
	assert.Equal(t, 8000, cfg.Context.MaxTokens)
	assert.Contains(t, cfg.Vault.IgnorePatterns, "*.excalidraw.md")
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_UsesDefaultsAndVaultDir(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, cfg.Vault.Path)
	assert.Equal(t, filepath.Join(abs, ".notebrain"), cfg.DataPath())
}

func TestLoad_ProjectYAMLOverridesOnlyPresentKeys(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	yml := "chunking:\n  max_chunk_size: 800\nretrieval:\n  fusion: WEIGHTED\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectYAMLFile), []byte(yml), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, "weighted", cfg.Retrieval.Fusion)
}

func TestLoad_ProjectTOML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	tml := "[index]\nworkers = 8\nlexical_backend = \"bleve\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectTOMLFile), []byte(tml), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Index.Workers)
	assert.Equal(t, "bleve", cfg.Index.LexicalBackend)
	assert.Equal(t, "hnsw", cfg.Index.VectorBackend)
}

func TestLoad_UserConfigThenProjectPrecedence(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "notebrain"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "notebrain", "config.yaml"),
		[]byte("index:\n  workers: 2\ncontext:\n  max_tokens: 1000\n"), 0o644))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectYAMLFile),
		[]byte("index:\n  workers: 6\n"), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Index.Workers)
	assert.Equal(t, 1000, cfg.Context.MaxTokens)
}

func TestLoad_DotEnvAndEnvOverrides(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("NOTEBRAIN_RRF_CONSTANT=30\nNOTEBRAIN_WORKERS=3\n"), 0o644))
	t.Setenv("NOTEBRAIN_WORKERS", "5")
	t.Setenv("NOTEBRAIN_VECTOR_WEIGHT", "0.5")
	// godotenv sets variables in-process; make sure the test cleans them up.
	t.Setenv("NOTEBRAIN_RRF_CONSTANT", "")
	require.NoError(t, os.Unsetenv("NOTEBRAIN_RRF_CONSTANT"))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Retrieval.RRFConstant)
	assert.Equal(t, 5, cfg.Index.Workers, "existing env wins over .env")
	assert.Equal(t, 0.5, cfg.Retrieval.VectorWeight)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectYAMLFile), []byte("chunking: [oops"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, brainerrors.ErrCodeConfigInvalid, brainerrors.GetCode(err))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap too big", func(c *Config) { c.Chunking.Overlap = 512 }},
		{"zero chunk size", func(c *Config) { c.Chunking.MaxChunkSize = 0 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "llama" }},
		{"unknown lexical", func(c *Config) { c.Index.LexicalBackend = "lucene" }},
		{"unknown vector", func(c *Config) { c.Index.VectorBackend = "faiss" }},
		{"zero workers", func(c *Config) { c.Index.Workers = 0 }},
		{"unknown fusion", func(c *Config) { c.Retrieval.Fusion = "borda" }},
		{"both weights zero", func(c *Config) { c.Retrieval.VectorWeight = 0; c.Retrieval.LexicalWeight = 0 }},
		{"fraction above one", func(c *Config) { c.Retrieval.ExpansionFraction = 1.5 }},
		{"bad duration", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"bad level", func(c *Config) { c.Server.LogLevel = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Duration("2s", time.Second))
	assert.Equal(t, time.Second, Duration("nope", time.Second))
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Retrieval.MaxResults = 7
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectYAMLFile)))

	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.MaxResults)
}
