package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/ui"
)

type indexOptions struct {
	full  bool
	plain bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the vault",
		Long: `Scan the vault, detect changed notes and bring the metadata store,
the lexical index and the vector index up to date.

Unchanged notes are not re-read by the embedder. Within a changed note
only chunks whose text changed are embedded again.

Use --full to drop everything and rebuild from the notes on disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.full, "full", false, "Drop the index and rebuild from scratch")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output (no TUI)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
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

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: opts.plain,
		NoColor:    ui.DetectNoColor(),
		VaultDir:   v.cfg.Vault.Path,
	})
	if err := renderer.Start(ctx); err != nil {
		v.logger.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	runner, err := v.runner(renderer, nil)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, index.RunOptions{Full: opts.full})
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		_ = renderer.Stop()
		out := output.New(cmd.ErrOrStderr())
		for _, f := range report.Failures {
			out.Warningf("%s: %s", f.DocID, f.Reason)
		}
		out.Statusf("🔁", "%d note(s) will be retried on the next run", report.Failed)
	}
	return nil
}
