// Package preflight runs environment checks before a vault is indexed or
// served.
//
// The package validates:
//   - The vault directory exists and holds notes
//   - The data directory is writable (or can be created)
//   - Free disk space under the data directory (minimum 100MB)
//   - The file descriptor limit needed by the watcher
//   - The embedder answers a probe request
//   - The three stores agree on their entry counts
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{VaultPath: vault, DataDir: data})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
