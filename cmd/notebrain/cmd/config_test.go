package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/configs"
	"github.com/Aman-CERP/notebrain/internal/config"
)

func TestConfigInit_CreatesVaultConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	out, err := execute(t, "config", "init", "--vault", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "Created vault configuration")
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectYAMLFile))
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
}

func TestConfigInit_KeepsExistingFile(t *testing.T) {
	dir := newTestVault(t, nil)

	out, err := execute(t, "config", "init", "--vault", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(filepath.Join(dir, config.ProjectYAMLFile))
	require.NoError(t, err)
	assert.Equal(t, testVaultConfig, string(data))

	_, err = execute(t, "config", "init", "--vault", dir, "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, config.ProjectYAMLFile))
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
}

func TestConfigShow_MergesVaultConfig(t *testing.T) {
	dir := newTestVault(t, nil)

	out, err := execute(t, "config", "show", "--vault", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "vector_backend: memory")
	assert.Contains(t, out, "rrf_constant: 60")

	out, err = execute(t, "config", "show", "--vault", dir, "--json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 64, cfg.Embeddings.Dimensions)
	assert.Equal(t, "memory", cfg.Index.LexicalBackend)
}

func TestConfigShow_EnvironmentOverride(t *testing.T) {
	dir := newTestVault(t, nil)
	t.Setenv("NOTEBRAIN_FUSION", "weighted")

	out, err := execute(t, "config", "show", "--vault", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "fusion: weighted")
}

func TestConfigShow_InvalidConfig(t *testing.T) {
	dir := newTestVault(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectYAMLFile), []byte("retrieval:\n  fusion: borda\n"), 0o644))

	_, err := execute(t, "config", "show", "--vault", dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval.fusion")
}

func TestConfigPath(t *testing.T) {
	isolate(t)

	out, err := execute(t, "config", "path", "--vault", "/vault")

	require.NoError(t, err)
	assert.Contains(t, out, config.GetUserConfigPath())
	assert.Contains(t, out, filepath.Join("/vault", config.ProjectYAMLFile))
}
