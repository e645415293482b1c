package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/store"
)

func TestIndexCmd_CreatesDataDirectory(t *testing.T) {
	// Given: a vault with two notes
	dir := newTestVault(t, gardenNotes())

	// When: indexing it
	out, err := execute(t, "index", "--vault", dir, "--plain")

	// Then: the stores are written under .notebrain
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 added, 0 updated, 0 removed")
	assert.FileExists(t, filepath.Join(dir, ".notebrain", store.MetadataFile))
	assert.FileExists(t, filepath.Join(dir, ".notebrain", store.VectorMemoryFile))
}

func TestIndexCmd_SecondRunIsANoop(t *testing.T) {
	dir := indexed(t)

	out, err := execute(t, "index", "--vault", dir, "--plain")

	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 0 added, 0 updated, 0 removed, 2 unchanged")
}

func TestIndexCmd_DetectsEditsAndDeletes(t *testing.T) {
	dir := indexed(t)

	// Given: one note edited and one removed
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garden.md"), []byte("# Garden\n\nWater the beans.\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "work", "standup.md")))

	// When: indexing again
	out, err := execute(t, "index", "--vault", dir, "--plain")

	// Then: the cycle reports both changes
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 0 added, 1 updated, 1 removed")
}

func TestIndexCmd_Full(t *testing.T) {
	dir := indexed(t)

	out, err := execute(t, "index", "--vault", dir, "--plain", "--full")

	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 added")
}

func TestIndexCmd_LockedDataDirectory(t *testing.T) {
	dir := newTestVault(t, gardenNotes())

	// Given: another indexer holding the lock
	lock := index.NewFileLock(filepath.Join(dir, ".notebrain"))
	require.NoError(t, lock.TryLock())
	defer func() { _ = lock.Unlock() }()

	// When: indexing
	_, err := execute(t, "index", "--vault", dir, "--plain")

	// Then: the run is refused
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_403")
}

func TestIndexCmd_RejectsArguments(t *testing.T) {
	dir := newTestVault(t, gardenNotes())

	_, err := execute(t, "index", "--vault", dir, "extra")

	assert.Error(t, err)
}
