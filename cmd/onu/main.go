package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(newCommand())
	if err := root.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands
func buildRoot(c *command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	devFlags := &DevFlags{}
	installFlags := &InstallFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createDevCommand(c, globalFlags, devFlags),
		createInstallCommand(c, globalFlags, installFlags),
		createConfigCommand(c, globalFlags),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "onu",
		Short: "Onu command line tools",
		Long: `onu runs a local Onu Studio against the tasks in your project.

Examples:
  onu dev                 # start the studio on port 3000
  onu dev -p 8000         # pick another port
  onu install             # re-download the studio runtime`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to a settings file (default ~/.onu/settings.yaml)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	return root
}

func createDevCommand(c *command, g *GlobalFlags, flags *DevFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run a local dev studio [experimental]",
		Long: `Run a local Onu Studio for the tasks in the current project.

The project root must contain package.json, node_modules and onu.dev.json.
Source changes are projected into the studio and hot-reloaded.

Examples:
  onu dev -p 8000
  onu dev --tsconfig tsconfig.build.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Dev(cmd.Context(), *g, *flags)
		},
	}
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 3000, "port to run on")
	cmd.Flags().StringVarP(&flags.TSConfig, "tsconfig", "t", "tsconfig.json", "path to a custom tsconfig file")
	cmd.Flags().BoolVar(&flags.Reinstall, "reinstall", false, "reinstall the studio dependencies before starting")
	cmd.Flags().StringVar(&flags.Mode, "mode", "", "projection mode: auto, compile or copy (overrides settings)")
	cmd.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&flags.NoOpen, "no-open", false, "do not open a browser once the studio is ready")
	return cmd
}

func createInstallCommand(c *command, g *GlobalFlags, flags *InstallFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download the Onu Studio runtime and install its dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Install(cmd.Context(), *g, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Version, "version", "", "studio version tag to install (default from settings)")
	return cmd
}

func createConfigCommand(c *command, g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.PrintConfig(cmd.OutOrStdout(), *g)
		},
	}
}
