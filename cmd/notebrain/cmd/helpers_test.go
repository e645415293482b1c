package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testVaultConfig = `embeddings:
  provider: static
  dimensions: 64
index:
  lexical_backend: memory
  vector_backend: memory
  metadata_backend: sqlite
  workers: 2
`

// isolate keeps logs and user config out of the real home directory.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")
}

// newTestVault writes notes plus a vault config into a temp directory.
func newTestVault(t *testing.T, notes map[string]string) string {
	t.Helper()
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".notebrain.yaml"), []byte(testVaultConfig), 0o644))
	for name, content := range notes {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func gardenNotes() map[string]string {
	return map[string]string{
		"garden.md":       "# Garden\n\nTurn the compost heap weekly.\n\n- [ ] Buy seeds @due(2024-03-15)\n- [x] Order mulch\n",
		"work/standup.md": "---\ntags: [work]\n---\n# Standup\n\nDiscussed the quarterly roadmap.\n",
	}
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// indexed returns a test vault that has been indexed once.
func indexed(t *testing.T) string {
	t.Helper()
	dir := newTestVault(t, gardenNotes())
	_, err := execute(t, "index", "--vault", dir, "--plain")
	require.NoError(t, err)
	return dir
}
