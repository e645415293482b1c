package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/store"
)

type checkOptions struct {
	repair     bool
	jsonOutput bool
}

// checkOutput is the --json shape of the check command.
type checkOutput struct {
	Check     *index.CheckResult     `json:"check"`
	Reconcile *index.ReconcileResult `json:"reconcile,omitempty"`
	Reindex   *index.Report          `json:"reindex,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the three stores describe the same chunks",
		Long: `Compare the chunk records in the metadata store with the entries of
the lexical and vector indexes.

With --repair, orphan entries are removed from both indexes and notes with
missing entries are forgotten and indexed again from disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCheck(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.repair, "repair", false, "Repair inconsistencies and re-index affected notes")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, opts checkOptions) error {
	v, err := openVault(ctx, vaultDir, openOptions{})
	if err != nil {
		return err
	}
	defer v.Close()

	lock := index.NewFileLock(v.cfg.DataPath())
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if v.cfg.Index.LexicalBackend == store.BackendMemory {
		if _, err := index.RebuildLexical(ctx, v.metadata, v.lexical); err != nil {
			return err
		}
	}

	runner, err := v.runner(nil, nil)
	if err != nil {
		return err
	}

	result := checkOutput{}
	result.Check, err = runner.Checker().Check(ctx)
	if err != nil {
		return err
	}

	if opts.repair && !result.Check.Consistent() {
		result.Reconcile, err = runner.Checker().Reconcile(ctx, result.Check.Inconsistencies)
		if err != nil {
			return err
		}
		result.Reindex, err = runner.Run(ctx, index.RunOptions{})
		if err != nil {
			return err
		}
	}

	out := output.NewAuto(cmd.OutOrStdout())
	if opts.jsonOutput {
		return out.JSON(result)
	}

	if result.Check.Consistent() {
		out.Successf("%d chunks consistent across all stores", result.Check.Checked)
		return nil
	}
	out.Warningf("%d inconsistencies across %d chunks", len(result.Check.Inconsistencies), result.Check.Checked)
	for _, issue := range result.Check.Inconsistencies {
		out.Status("", issue.Type.String()+"  "+issue.ChunkID)
	}
	if result.Reconcile == nil {
		out.Newline()
		out.Status("💡", "Run 'notebrain check --repair' to fix")
		return nil
	}
	out.Newline()
	out.Successf("removed %d orphan entries, re-indexed %d note(s)",
		result.Reconcile.OrphansRemoved, len(result.Reconcile.ForgottenDocs))
	return nil
}
