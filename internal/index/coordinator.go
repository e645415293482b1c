package index

import (
	"context"
	"errors"
	"log/slog"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/notebrain/internal/scanner"
	"github.com/Aman-CERP/notebrain/internal/watcher"
)

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Runner performs each re-diff cycle.
	Runner *Runner

	// Scanner decides which events can affect the index.
	Scanner *scanner.Scanner

	// OnCycle, when set, receives the outcome of every cycle.
	OnCycle func(report *Report, err error)

	Logger *slog.Logger
}

// Source is a watcher whose Start blocks until Stop or ctx is done.
// *watcher.HybridWatcher satisfies it.
type Source interface {
	Start(ctx context.Context, path string) error
	Ready() <-chan struct{}
	Events() <-chan []watcher.FileEvent
	Errors() <-chan error
	Stop() error
}

// Coordinator turns debounced file events into indexing cycles. Cycles run
// one at a time on the goroutine that calls Run.
type Coordinator struct {
	config CoordinatorConfig
	logger *slog.Logger
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{config: config, logger: logger}
}

// Relevant reports whether any event in the batch can change the index.
func (c *Coordinator) Relevant(events []watcher.FileEvent) bool {
	for _, event := range events {
		if c.relevant(event) {
			return true
		}
	}
	return false
}

func (c *Coordinator) relevant(event watcher.FileEvent) bool {
	s := c.config.Scanner
	switch {
	case event.Operation == watcher.OpConfigChange:
		c.logger.Warn("config_changed_restart_required", slog.String("path", event.Path))
		return false
	case event.IsDir:
		return !s.IgnoredDir(event.Path)
	case s.Accepts(event.Path):
		return true
	case event.OldPath != "" && s.Accepts(event.OldPath):
		return true
	case event.Operation == watcher.OpDelete || event.Operation == watcher.OpRename:
		// A vanished directory arrives without IsDir.
		return path.Ext(event.Path) == "" && !s.IgnoredDir(event.Path)
	}
	return false
}

// HandleEvents runs one cycle when the batch is relevant. It returns a nil
// report when nothing needed doing.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) (*Report, error) {
	if !c.Relevant(events) {
		c.logger.Debug("watch_batch_ignored", slog.Int("events", len(events)))
		return nil, nil
	}
	c.logger.Info("watch_batch_received", slog.Int("events", len(events)))
	report, err := c.config.Runner.Run(ctx, RunOptions{})
	if c.config.OnCycle != nil {
		c.config.OnCycle(report, err)
	}
	return report, err
}

// Run drains batches until ctx is done or the channel closes. Cycle errors
// are logged and the loop continues; watcher errors are logged.
func (c *Coordinator) Run(ctx context.Context, batches <-chan []watcher.FileEvent, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.Warn("watcher_error", slog.String("error", err.Error()))
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if _, err := c.HandleEvents(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("watch_cycle_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Watch starts src on root and drains its batches until ctx is done or
// either side fails. onReady, when set, runs once src is watching.
// Cancellation is a clean shutdown and returns nil.
func (c *Coordinator) Watch(ctx context.Context, src Source, root string, onReady func()) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return src.Start(gctx, root)
	})
	g.Go(func() error {
		select {
		case <-src.Ready():
		case <-gctx.Done():
			return nil
		}
		if onReady != nil {
			onReady()
		}
		return c.Run(gctx, src.Events(), src.Errors())
	})

	err := g.Wait()
	_ = src.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
