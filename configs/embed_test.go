package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/notebrain/internal/config"
)

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: the embedded template decoded over an empty config
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(ProjectConfigTemplate), &cfg))

	// Then: it is valid and carries the built-in defaults
	require.NoError(t, cfg.Validate())
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Chunking, cfg.Chunking)
	assert.Equal(t, defaults.Index, cfg.Index)
	assert.Equal(t, defaults.Retrieval, cfg.Retrieval)
	assert.Equal(t, defaults.Context, cfg.Context)
	assert.Equal(t, defaults.Vault.Extensions, cfg.Vault.Extensions)
}
