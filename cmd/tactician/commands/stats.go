package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tactician-chess/tactician/internal/state"
	"github.com/tactician-chess/tactician/internal/stats"
)

// StatsCommand renders the statistics stored with a source's checkpoint.
type StatsCommand struct {
	checkpointDir string
	htmlPath      string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	sc := &StatsCommand{}

	cmd := &cobra.Command{
		Use:   "stats <games.pgn>",
		Short: "Show statistics from a previous extraction run",
		Long: "Stats reads the checkpoint recorded for the given PGN file and\n" +
			"prints the accumulated counters. With --html it also renders\n" +
			"objective, phase and rejection histograms as a report page.",
		Args: cobra.ExactArgs(1),
		RunE: sc.run,
	}

	cmd.Flags().StringVar(&sc.checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default: ~/.tactician/checkpoints)")
	cmd.Flags().StringVar(&sc.htmlPath, "html", "", "Write an HTML report to this path")

	return cmd
}

func (sc *StatsCommand) run(_ *cobra.Command, args []string) error {
	absPath, absErr := filepath.Abs(args[0])
	if absErr != nil {
		return fmt.Errorf("resolve pgn path: %w", absErr)
	}

	dir := sc.checkpointDir
	if dir == "" {
		dir = state.DefaultDir()
	}

	store := state.NewStore(dir, state.SourceHash(absPath))

	checkpoint, loadErr := store.Load()
	if loadErr != nil {
		return fmt.Errorf("load checkpoint: %w", loadErr)
	}

	if checkpoint.LastGameIndex == 0 {
		return fmt.Errorf("no recorded run for %s", absPath)
	}

	stats.RenderTable(os.Stdout, checkpoint.Stats)

	if sc.htmlPath == "" {
		return nil
	}

	file, createErr := os.Create(sc.htmlPath)
	if createErr != nil {
		return fmt.Errorf("create report file: %w", createErr)
	}
	defer func() { _ = file.Close() }()

	renderErr := stats.WriteHTMLReport(file, checkpoint.Stats)
	if renderErr != nil {
		return fmt.Errorf("render report: %w", renderErr)
	}

	fmt.Fprintf(os.Stdout, "report written to %s\n", sc.htmlPath)

	return nil
}
