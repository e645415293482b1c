package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/notebrain/internal/config"
	"github.com/Aman-CERP/notebrain/internal/ignore"
)

// HybridWatcher implements Watcher with fsnotify, falling back to polling
// when fsnotify cannot be initialized.
type HybridWatcher struct {
	fsWatcher      *fsnotify.Watcher
	pollWatcher    *PollingWatcher
	useFsnotify    bool
	debouncer      *Debouncer
	matcher        *ignore.Matcher
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	ready          chan struct{}
	readyOnce      sync.Once
	rootPath       string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a new hybrid watcher with the given options.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		ready:     make(chan struct{}),
		opts:      opts,
	}
	h.matcher = h.baseMatcher()

	if !opts.ForcePolling {
		if fsw, err := fsnotify.NewWatcher(); err == nil {
			h.fsWatcher = fsw
			h.useFsnotify = true
		} else {
			slog.Warn("fsnotify_unavailable_using_polling", slog.String("error", err.Error()))
		}
	}
	if !h.useFsnotify {
		h.pollWatcher = NewPollingWatcher(opts.PollInterval, h.shouldIgnoreDir)
	}
	return h, nil
}

// Start begins watching the vault at path. It blocks until Stop or ctx;
// run it in its own goroutine and wait on Ready before relying on events.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", path)
	}

	h.mu.Lock()
	h.rootPath = absPath
	h.mu.Unlock()
	h.loadIgnoreFile()

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	h.markReady()

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		select {
		case <-h.pollWatcher.Ready():
			h.markReady()
		case <-ctx.Done():
		case <-h.stopCh:
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				h.dispatch(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	err := h.pollWatcher.Start(ctx, h.rootPath)
	if ctx.Err() != nil {
		_ = h.Stop()
	}
	return err
}

// handleFsnotifyEvent converts an fsnotify event and hands it on.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(h.rootPath, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir && !h.shouldIgnoreDir(relPath) {
			if err := h.addRecursive(event.Name); err != nil {
				h.emitError(err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// chmod
		return
	}

	h.dispatch(FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// dispatch filters an event and feeds the debouncer. Changes to the
// vault's config or ignore file become OpConfigChange.
func (h *HybridWatcher) dispatch(event FileEvent) {
	if h.shouldIgnore(event.Path, event.IsDir) {
		return
	}
	if isControlFile(event.Path) {
		if event.Path == ignore.FileName {
			h.loadIgnoreFile()
		}
		event.Operation = OpConfigChange
		event.IsDir = false
	}
	h.debouncer.Add(event)
}

func isControlFile(relPath string) bool {
	switch relPath {
	case config.ProjectYAMLFile, config.ProjectTOMLFile, ignore.FileName:
		return true
	}
	return false
}

func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			h.emitEvents(events)
		}
	}
}

// addRecursive adds dir and every non-ignored directory below it.
func (h *HybridWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(h.rootPath, path)
		if relPath != "." && h.shouldIgnoreDir(filepath.ToSlash(relPath)) {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

func (h *HybridWatcher) shouldIgnoreDir(relPath string) bool {
	return h.shouldIgnore(relPath, true)
}

// shouldIgnore reports whether a vault-relative path is outside the index.
func (h *HybridWatcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.matcher.Match(relPath, isDir)
}

// baseMatcher holds the configured patterns and the data directory.
func (h *HybridWatcher) baseMatcher() *ignore.Matcher {
	m := ignore.New(h.opts.IgnorePatterns...)
	dataDir := strings.Trim(filepath.ToSlash(h.opts.DataDir), "/")
	if dataDir != "" {
		m.Add("/" + dataDir + "/")
		m.Add("/" + dataDir + "/**")
	}
	return m
}

// loadIgnoreFile rebuilds the matcher from options and .notebrainignore.
func (h *HybridWatcher) loadIgnoreFile() {
	m := h.baseMatcher()

	h.mu.RLock()
	root := h.rootPath
	h.mu.RUnlock()

	path := filepath.Join(root, ignore.FileName)
	if err := m.AddFromFile(path); err != nil {
		slog.Warn("failed to load ignore file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	h.mu.Lock()
	h.matcher = m
	h.mu.Unlock()
}

func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count),
		)
	}
}

// DroppedBatches returns the number of batches dropped on a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}

	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()

	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Ready is closed once every directory is watched (fsnotify) or the
// baseline scan is done (polling).
func (h *HybridWatcher) Ready() <-chan struct{} {
	return h.ready
}

func (h *HybridWatcher) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Events returns the channel of batched file events.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// IsHealthy returns true if the watcher is running and hasn't stopped.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the root path being watched.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
