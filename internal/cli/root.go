// Package cli is the lineageforge command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"lineageforge/internal/platform/config"
	"lineageforge/internal/platform/logger"
)

// Version is stamped at build time with -ldflags "-X lineageforge/internal/cli.Version=...".
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lineageforge",
	Short: "LineageForge - genealogical identity resolution and validation",
	Long: `LineageForge merges duplicate persons in a sourced claim graph and
checks the result for genealogical impossibilities.

Resolution and validation can run against a JSON snapshot file or against
the configured PostgreSQL database. "serve" exposes the same runs over HTTP.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(log)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lineageforge %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); LINEAGEFORGE_* variables override it")
	rootCmd.AddCommand(versionCmd)
}

// Main is the process entrypoint shared by cmd/lineageforge.
func Main(stderr io.Writer) int {
	if err := Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

