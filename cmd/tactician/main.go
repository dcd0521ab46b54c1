// Package main provides the entry point for the tactician CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tactician-chess/tactician/cmd/tactician/commands"
	"github.com/tactician-chess/tactician/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tactician",
		Short: "Tactician - extract tactical puzzles from chess games",
		Long: `Tactician scans PGN game collections for blunders and turns the
forcing refutations into training puzzles.

Commands:
  extract   Analyze a PGN file and export puzzles
  stats     Render the statistics of a previous run
  config    Manage configuration files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewExtractCommand(&verbose, &quiet))
	rootCmd.AddCommand(commands.NewStatsCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "tactician %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
