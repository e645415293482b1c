package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing without flags
	err := cmd.Execute()

	// Then: it should output the full version string
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "notebrain")
	assert.Contains(t, output, version.Version)
	assert.Contains(t, output, "commit")
}

// stampVersion pins the linker variables for one test.
func stampVersion(t *testing.T) {
	t.Helper()
	v, c, d := version.Version, version.Commit, version.Date
	t.Cleanup(func() { version.Version, version.Commit, version.Date = v, c, d })
	version.Version, version.Commit, version.Date = "1.2.0", "abc1234", "2026-02-03T04:05:06Z"
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	stampVersion(t)
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--short"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, "1.2.0\n", buf.String())
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// Given: a stamped build and a version command with --json flag
	stampVersion(t)
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	// When: executing with --json
	err := cmd.Execute()

	// Then: it should output valid JSON with all fields
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, "notebrain", info["name"])
	assert.Equal(t, "1.2.0", info["version"])
	assert.Equal(t, "abc1234", info["commit"])
	assert.Equal(t, "2026-02-03T04:05:06Z", info["date"])
	for _, key := range []string{"go_version", "os", "arch"} {
		assert.Contains(t, info, key)
	}
}

func TestVersionCmd_ShortWinsOverJSON(t *testing.T) {
	stampVersion(t)
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json", "--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "1.2.0\n", buf.String())
}
