package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/config"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/metrics"
	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/watcher"
)

type watchOptions struct {
	metricsAddr  string
	forcePolling bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index up to date as notes change",
		Long: `Index the vault once, then watch it and re-index after every burst
of changes settles (watch.debounce).

With --metrics-addr, Prometheus metrics are served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on host:port (default: server.metrics_addr)")
	cmd.Flags().BoolVar(&opts.forcePolling, "poll", false, "Poll the vault instead of using filesystem notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts watchOptions) error {
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	addr := opts.metricsAddr
	if addr == "" {
		addr = v.cfg.Server.MetricsAddr
	}
	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, reg, v.logger); err != nil {
				v.logger.Error("metrics_server_failed", slog.String("error", err.Error()))
			}
		}()
	}

	runner, err := v.runner(nil, m)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	observe := func(report *index.Report, err error) {
		if err != nil {
			out.Errorf("index cycle failed: %v", err)
			return
		}
		if st, err := v.status(ctx); err == nil {
			m.ObserveStatus(st)
		}
		if report.Changed() > 0 || report.Failed > 0 {
			out.Statusf("🔄", "+%d ~%d -%d, %d failed (%s)",
				report.Added, report.Updated, report.Removed, report.Failed, report.Duration.Round(time.Millisecond))
		}
	}

	observe(runner.Run(ctx, index.RunOptions{}))
	if ctx.Err() != nil {
		return nil
	}

	s, err := v.scanner()
	if err != nil {
		return err
	}
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: config.Duration(v.cfg.Watch.Debounce, watcher.DefaultOptions().DebounceWindow),
		IgnorePatterns: v.cfg.Vault.IgnorePatterns,
		DataDir:        v.cfg.Index.DataDir,
		ForcePolling:   opts.forcePolling,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		Runner:  runner,
		Scanner: s,
		OnCycle: observe,
		Logger:  v.logger,
	})
	err = coordinator.Watch(ctx, w, v.cfg.Vault.Path, func() {
		out.Statusf("👀", "Watching %s (%s)", v.cfg.Vault.Path, w.WatcherType())
	})
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
