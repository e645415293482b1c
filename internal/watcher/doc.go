// Package watcher reports changes inside a notes vault.
//
// fsnotify is used where the platform supports it; polling takes over on
// network mounts and container volumes where it does not. Events are
// debounced so an editor's save burst reaches the indexer as one batch, and
// paths excluded by the vault's ignore rules never leave the package.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{DataDir: ".notebrain"})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, vaultDir) }()
//	<-w.Ready()
//	for batch := range w.Events() {
//	    // batch is []watcher.FileEvent with vault-relative, slash-separated paths
//	}
package watcher
