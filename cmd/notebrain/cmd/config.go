package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/notebrain/configs"
	"github.com/Aman-CERP/notebrain/internal/config"
	"github.com/Aman-CERP/notebrain/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vault configuration",
		Long: `Manage the vault configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/notebrain/config.yaml)
  3. Vault config (.notebrain.yaml or .notebrain.toml)
  4. .env in the vault root
  5. Environment variables (NOTEBRAIN_*)`,
		Example: `  # Create .notebrain.yaml in the vault
  notebrain config init

  # Show effective configuration (merged from all sources)
  notebrain config show

  # Print config file paths
  notebrain config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .notebrain.yaml in the vault",
		Long: `Write a commented configuration file with every setting at its
default value to .notebrain.yaml in the vault root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging all sources. Secrets are never printed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print config file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user:  %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(out, "vault: %s\n", filepath.Join(vaultDir, config.ProjectYAMLFile))
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	info, err := os.Stat(vaultDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("vault directory not found: %s", vaultDir)
	}

	path := filepath.Join(vaultDir, config.ProjectYAMLFile)
	if _, err := os.Stat(path); err == nil && !force {
		out.Warning("Configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it with the defaults")
		return nil
	}

	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created vault configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Pick an embeddings provider (static works offline)")
	out.Status("", "  2. Run 'notebrain index'")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := config.Load(vaultDir)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.New(cmd.OutOrStdout()).JSON(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
