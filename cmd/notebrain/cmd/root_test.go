package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/pkg/version"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"index", "query", "watch", "status", "check", "doctor", "eval", "logs", "tasks", "serve", "config", "version"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, cmd.Name())
		})
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"vault", "debug", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	isolate(t)

	out, err := execute(t, "--version")

	require.NoError(t, err)
	assert.Equal(t, "notebrain version "+version.Version+"\n", out)
}

func TestRootCmd_MemoryProfile(t *testing.T) {
	isolate(t)
	path := t.TempDir() + "/mem.prof"

	_, err := execute(t, "version", "--short", "--profile-mem", path)

	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestRootCmd_MissingVault(t *testing.T) {
	isolate(t)

	_, err := execute(t, "status", "--vault", t.TempDir()+"/nope")

	assert.Error(t, err)
}
