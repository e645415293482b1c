package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/output"
	"github.com/Aman-CERP/notebrain/internal/preflight"
	"github.com/Aman-CERP/notebrain/internal/store"
	"github.com/Aman-CERP/notebrain/pkg/version"
)

type doctorOutput struct {
	Status  string                  `json:"status"`
	Results []preflight.CheckResult `json:"results"`
}

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the vault can be indexed and served",
		Long: `Run environment checks for the vault:
  - vault directory and note count
  - data directory permissions and free disk space
  - file descriptor limit for the watcher
  - embedder reachability
  - store consistency

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for every check")

	return cmd
}

var errDoctorFailed = errors.New("required checks failed")

func runDoctor(ctx context.Context, w io.Writer, jsonOutput, verbose bool) error {
	v, err := openVault(ctx, vaultDir, openOptions{})
	if err != nil {
		return err
	}
	defer v.Close()

	checker := preflight.New(preflight.WithOutput(w), preflight.WithVerbose(verbose))
	results, err := runPreflight(ctx, v, checker)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := output.New(w).JSON(doctorOutput{Status: checker.SummaryStatus(results), Results: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}
	if checker.HasCriticalFailures(results) {
		return errDoctorFailed
	}
	return nil
}

// runPreflight runs every check against the open vault and records the
// outcome in the data directory marker.
func runPreflight(ctx context.Context, v *vault, checker *preflight.Checker) ([]preflight.CheckResult, error) {
	if v.cfg.Index.LexicalBackend == store.BackendMemory {
		if _, err := index.RebuildLexical(ctx, v.metadata, v.lexical); err != nil {
			return nil, err
		}
	}
	runner, err := v.runner(nil, nil)
	if err != nil {
		return nil, err
	}

	dataDir := v.cfg.DataPath()
	results := checker.RunAll(ctx, preflight.Target{
		VaultPath:  v.cfg.Vault.Path,
		DataDir:    dataDir,
		Extensions: v.cfg.Vault.Extensions,
		Embedder:   v.embedder,
		Index:      runner.Checker(),
	})

	if checker.HasCriticalFailures(results) {
		_ = preflight.ClearMarker(dataDir)
	} else if err := preflight.MarkPassed(dataDir, v.fingerprint()); err != nil {
		v.logger.Warn("preflight_marker_failed", slog.String("error", err.Error()))
	}
	return results, nil
}

// firstStartChecks logs preflight problems the first time a vault is
// served. Serving goes ahead regardless.
func firstStartChecks(ctx context.Context, v *vault) {
	if !preflight.NeedsCheck(v.cfg.DataPath(), v.fingerprint()) {
		return
	}
	results, err := runPreflight(ctx, v, preflight.New(preflight.WithOutput(io.Discard)))
	if err != nil {
		v.logger.Warn("preflight_failed", slog.String("error", err.Error()))
		return
	}
	for _, r := range results {
		if r.Status == preflight.StatusPass {
			continue
		}
		v.logger.Warn("preflight_check",
			slog.String("check", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message),
			slog.String("details", r.Details))
	}
}

// fingerprint identifies the binary and model a doctor pass applies to.
func (v *vault) fingerprint() preflight.Fingerprint {
	return preflight.Fingerprint{Version: version.Version, Model: v.embedder.ModelName()}
}
