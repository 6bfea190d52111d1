package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDBPath     string
	flagUser       string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "oneclouds",
		Short:   "Multi-provider cloud storage catalog",
		Long:    "Catalogs files across Google Drive, Dropbox, and OneDrive accounts,\nreconciles them into a local database, and finds duplicates across providers.",
		Version: version,
		// Cobra's default error/usage printing is handled in main instead.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "catalog database path")
	cmd.PersistentFlags().StringVar(&flagUser, "user", "local", "catalog user the command acts for")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newDupesCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newDaemonCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	if flagDBPath != "" {
		cli.DBPath = &flagDBPath
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. Format "auto" picks
// text on a terminal and JSON otherwise.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	format := "auto"
	if resolvedCfg != nil {
		format = resolvedCfg.Logging.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) {
			return slog.New(slog.NewTextHandler(os.Stderr, opts))
		}

		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
}
