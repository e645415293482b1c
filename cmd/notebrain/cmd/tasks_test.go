package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/mcp"
)

func TestTasksCmd_PendingOnly(t *testing.T) {
	dir := indexed(t)

	out, err := execute(t, "tasks", "--vault", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "[ ] ")
	assert.Contains(t, out, "Buy seeds")
	assert.Contains(t, out, "(due 2024-03-15)")
	assert.Contains(t, out, "garden.md:")
	assert.NotContains(t, out, "Order mulch")
}

func TestTasksCmd_AllJSON(t *testing.T) {
	dir := indexed(t)

	out, err := execute(t, "tasks", "--vault", dir, "--all", "--json")

	require.NoError(t, err)
	var tasks mcp.TasksOutput
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks.Tasks, 2)
	assert.False(t, tasks.Tasks[0].Completed)
	assert.Equal(t, "2024-03-15", tasks.Tasks[0].Due)
	assert.True(t, tasks.Tasks[1].Completed)
}

func TestTasksCmd_NoTasks(t *testing.T) {
	dir := newTestVault(t, map[string]string{"a.md": "# A\n\nNo checklists here.\n"})

	out, err := execute(t, "tasks", "--vault", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.")
}
