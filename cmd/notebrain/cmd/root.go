// Package cmd provides the CLI commands for notebrain.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/logging"
	"github.com/Aman-CERP/notebrain/internal/profiling"
	"github.com/Aman-CERP/notebrain/pkg/version"
)

// Profiling flags
var (
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// Global flags
var (
	vaultDir       string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the notebrain CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebrain",
		Short: "Hybrid search over a Markdown notes vault",
		Long: `notebrain indexes a folder of Markdown notes and answers questions
over it with hybrid retrieval: semantic vector search and BM25 keyword
search fused by Reciprocal Rank Fusion.

Run 'notebrain index' in your vault, then 'notebrain query "..."'.
'notebrain serve' exposes the same retrieval to AI assistants over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("notebrain version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&vaultDir, "vault", ".", "Vault directory")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and ~/.notebrain/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newTasksCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts debug logging and any requested profiles.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	var err error

	// The MCP server owns stdio; it configures its own file-only logger.
	if debugMode && cmd.Name() != "serve" {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileOpts.Enabled() {
		profileSession, err = profiling.Start(profileOpts, slog.Default())
		if err != nil {
			return err
		}
	}

	return nil
}

// stopProfilingAndLogging flushes profiles, then stops debug logging.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		if stopErr := profileSession.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to write profiles: %w", stopErr)
		}
		profileSession = nil
	}

	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return err
}

// Execute runs the root command and prints a failure the way the error
// taxonomy describes it.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), brainerrors.FormatForCLI(err))
	}
	return err
}
