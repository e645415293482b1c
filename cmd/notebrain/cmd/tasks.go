package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/mcp"
	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/store"
)

type tasksOptions struct {
	all        bool
	jsonOutput bool
}

func newTasksCmd() *cobra.Command {
	var opts tasksOptions

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List checklist items found in indexed notes",
		Long: `List the "- [ ]" checklist items extracted while indexing, with
their due dates. Completed items are hidden unless --all is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "Include completed tasks")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTasks(ctx context.Context, cmd *cobra.Command, opts tasksOptions) error {
	v, err := openVault(ctx, vaultDir, openOptions{})
	if err != nil {
		return err
	}
	defer v.Close()

	tasks, err := v.metadata.ListTasks(ctx)
	if err != nil {
		return err
	}
	if !opts.all {
		pending := make([]store.TaskRecord, 0, len(tasks))
		for _, t := range tasks {
			if !t.Done {
				pending = append(pending, t)
			}
		}
		tasks = pending
	}

	out := output.NewAuto(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(mcp.ToTasksOutput(tasks))
	}
	out.Tasks(tasks)
	return nil
}
