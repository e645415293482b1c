package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/notebrain/internal/config"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/mcp"
	"github.com/Aman-CERP/notebrain/internal/watcher"
)

type serveOptions struct {
	transport string
	watch     bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server on stdio so AI assistants
can search the vault (search_notes), build a context bundle
(build_context) and read index health (index_status). Indexed notes and
the extracted task list are exposed as resources.

stdout carries only JSON-RPC; logs go to ~/.notebrain/logs/.

With --watch the vault is indexed in the background while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport: stdio")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Index and watch the vault while serving")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	v, err := openVault(ctx, vaultDir, openOptions{mcp: true})
	if err != nil {
		return err
	}
	defer v.Close()

	firstStartChecks(ctx, v)

	retriever, err := v.retriever(ctx, nil)
	if err != nil {
		return err
	}

	budget := v.cfg.Context.MaxTokens
	srv, err := mcp.NewServer(mcp.Dependencies{
		Retriever: retriever,
		Builder:   v.builder(),
		Metadata:  v.metadata,
		Status:    v.status,
		Logger:    v.logger,
	}, mcp.Options{VaultDir: v.cfg.Vault.Path, DefaultBudget: budget})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	if err := srv.RegisterResources(ctx); err != nil {
		v.logger.Warn("resources_not_registered", slog.String("error", err.Error()))
	}

	// The client closing stdio ends the session and the background indexer.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	if opts.watch {
		g.Go(func() error {
			if err := backgroundIndex(ctx, v, srv); err != nil && !errors.Is(err, context.Canceled) {
				// Searching a stale index is still useful.
				v.logger.Error("background_indexing_stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		v.logger.Info("mcp_server_starting", slog.String("transport", opts.transport), slog.String("vault", v.cfg.Vault.Path))
		return srv.Serve(ctx, opts.transport)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// backgroundIndex runs one cycle, then follows file events. Note resources
// are re-registered after every cycle that changed something.
func backgroundIndex(ctx context.Context, v *vault, srv *mcp.Server) error {
	lock := index.NewFileLock(v.cfg.DataPath())
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	runner, err := v.runner(nil, nil)
	if err != nil {
		return err
	}
	onCycle := func(report *index.Report, err error) {
		if err != nil || report == nil || report.Changed() == 0 {
			return
		}
		if err := srv.RegisterResources(ctx); err != nil {
			v.logger.Warn("resources_not_registered", slog.String("error", err.Error()))
		}
	}

	onCycle(runner.Run(ctx, index.RunOptions{}))

	s, err := v.scanner()
	if err != nil {
		return err
	}
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: config.Duration(v.cfg.Watch.Debounce, watcher.DefaultOptions().DebounceWindow),
		IgnorePatterns: v.cfg.Vault.IgnorePatterns,
		DataDir:        v.cfg.Index.DataDir,
	})
	if err != nil {
		return err
	}
	return index.NewCoordinator(index.CoordinatorConfig{
		Runner:  runner,
		Scanner: s,
		OnCycle: onCycle,
		Logger:  v.logger,
	}).Watch(ctx, w, v.cfg.Vault.Path, nil)
}
