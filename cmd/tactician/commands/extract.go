// Package commands implements CLI command handlers for tactician.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tactician-chess/tactician/internal/chessio"
	"github.com/tactician-chess/tactician/internal/classify"
	"github.com/tactician-chess/tactician/internal/config"
	"github.com/tactician-chess/tactician/internal/detect"
	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/export"
	"github.com/tactician-chess/tactician/internal/filter"
	"github.com/tactician-chess/tactician/internal/line"
	"github.com/tactician-chess/tactician/internal/observability"
	"github.com/tactician-chess/tactician/internal/runner"
	"github.com/tactician-chess/tactician/internal/state"
	"github.com/tactician-chess/tactician/internal/stats"
)

// ErrNoFormats is returned when every export format is disabled.
var ErrNoFormats = errors.New("no export formats enabled")

// Export file basenames inside the output directory.
const (
	pgnBasename   = "puzzles.pgn"
	jsonlBasename = "puzzles.jsonl"
)

// outputDirPerm is the permission for created output directories.
const outputDirPerm = 0o750

// ExtractCommand holds configuration and dependencies for the extract
// command.
type ExtractCommand struct {
	configPath    string
	enginePath    string
	depth         int
	workers       int
	thresholdCP   int
	policy        string
	outDir        string
	checkpointDir string
	noResume      bool
	clear         bool
	metricsAddr   string

	verbose *bool
	quiet   *bool
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(verbose, quiet *bool) *cobra.Command {
	ec := &ExtractCommand{verbose: verbose, quiet: quiet}

	cmd := &cobra.Command{
		Use:   "extract <games.pgn>",
		Short: "Analyze a PGN file and export tactical puzzles",
		Long: "Extract scans every game in the PGN file for blunders, builds the\n" +
			"forcing refutation lines, and exports the accepted puzzles. Progress\n" +
			"is checkpointed per game; interrupted runs resume where they left off.",
		Args: cobra.ExactArgs(1),
		RunE: ec.run,
	}

	cmd.Flags().StringVarP(&ec.configPath, "config", "c", "", "Config file path")
	cmd.Flags().StringVar(&ec.enginePath, "engine", "", "UCI engine binary (overrides config)")
	cmd.Flags().IntVar(&ec.depth, "depth", 0, "Base search depth (overrides config)")
	cmd.Flags().IntVar(&ec.workers, "workers", 0, "Parallel workers, one engine each (overrides config)")
	cmd.Flags().IntVar(&ec.thresholdCP, "threshold", 0, "Blunder threshold in centipawns (overrides config)")
	cmd.Flags().StringVar(&ec.policy, "policy", "", "Ambiguity policy: strict or lenient (overrides config)")
	cmd.Flags().StringVarP(&ec.outDir, "out", "o", "", "Output directory (overrides config)")
	cmd.Flags().StringVar(&ec.checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default: ~/.tactician/checkpoints)")
	cmd.Flags().BoolVar(&ec.noResume, "no-resume", false, "Ignore any existing checkpoint and start over")
	cmd.Flags().BoolVar(&ec.clear, "clear-checkpoint", false, "Clear the checkpoint before running")
	cmd.Flags().StringVar(&ec.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func (ec *ExtractCommand) run(cmd *cobra.Command, args []string) error {
	pgnPath := args[0]

	cfg, cfgErr := ec.loadConfig(cmd)
	if cfgErr != nil {
		return cfgErr
	}

	logger := ec.buildLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, traceErr := observability.InitTracing(ctx, cfg.Observability.TraceEndpoint)
	if traceErr != nil {
		return traceErr
	}

	if shutdownTracing != nil {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	var metrics *observability.Metrics

	if cfg.Observability.MetricsAddr != "" {
		metrics = observability.NewMetrics()

		go metrics.Serve(ctx, cfg.Observability.MetricsAddr, logger)
	}

	absPath, absErr := filepath.Abs(pgnPath)
	if absErr != nil {
		return fmt.Errorf("resolve pgn path: %w", absErr)
	}

	store := state.NewStore(cfg.State.Dir, state.SourceHash(absPath))

	if ec.clear || ec.noResume {
		clearErr := store.Clear()
		if clearErr != nil {
			return fmt.Errorf("clear checkpoint: %w", clearErr)
		}
	}

	checkpoint, loadErr := store.Load()
	if loadErr != nil {
		return fmt.Errorf("load checkpoint: %w", loadErr)
	}

	if checkpoint.LastGameIndex > 0 {
		logger.Info("resuming from checkpoint",
			"last_game", checkpoint.LastGameIndex,
			"puzzles", checkpoint.PuzzleCount,
			"committed", checkpoint.Timestamp)
	}

	source, srcErr := chessio.Open(absPath, logger)
	if srcErr != nil {
		return srcErr
	}
	defer func() { _ = source.Close() }()

	sink, sinkErr := openSinks(cfg)
	if sinkErr != nil {
		return sinkErr
	}

	cache, cacheClose := ec.buildCache(cfg, logger)
	defer cacheClose()

	run := stats.FromSnapshot(checkpoint.Stats)
	if checkpoint.LastGameIndex == 0 {
		run = stats.NewRun()
	}

	depths := cfg.Depths()

	// First-move ambiguity detection needs at least the runner-up line,
	// even when no alternate variants are kept.
	multiPV := cfg.Analysis.MaxVariants + 1
	if multiPV < 2 {
		multiPV = 2
	}

	pipeline := runner.New(runner.Options{
		Workers:     cfg.Analysis.Workers,
		BatchGames:  cfg.State.BatchGames,
		MaxRespawns: cfg.Engine.MaxRespawns,
		Detect: detect.Config{
			Depth:           depths.Scan,
			ThresholdCP:     cfg.Analysis.BlunderThresholdCP,
			DecidedCutoffCP: cfg.Analysis.DecidedCutoffCP,
			EndGuardPlies:   cfg.Analysis.EndGuardPlies,
		},
		Line: line.Config{
			Depth:           depths.Solve,
			QuickDepth:      depths.Quick,
			MultiPV:         multiPV,
			MaxVariants:     cfg.Analysis.MaxVariants,
			EpsilonCP:       cfg.Analysis.EpsilonCP,
			AcceptCP:        cfg.Analysis.AcceptCP,
			PlateauPlies:    cfg.Analysis.PlateauPlies,
			PlateauBandCP:   cfg.Analysis.PlateauBandCP,
			MaxLinePlies:    cfg.Analysis.MaxLinePlies,
			MaxForcedPrefix: cfg.Analysis.MaxForcedPrefix,
		},
		Filter: filter.Config{
			Policy:   filter.Policy(cfg.Filter.Policy),
			AcceptCP: cfg.Analysis.AcceptCP,
		},
		Classify: classify.Config{
			WinningCP:       cfg.Classify.WinningCP,
			OpeningMaxPly:   cfg.Classify.OpeningMaxPly,
			EndgameMaterial: cfg.Classify.EndgameMaterial,
		},
		Factory:       engineFactory(cfg, logger),
		Cache:         cache,
		Source:        source,
		Sink:          sink,
		Store:         store,
		Stats:         run,
		StartAfter:    checkpoint.LastGameIndex,
		PuzzleCount:   checkpoint.PuzzleCount,
		SkippedBefore: checkpoint.Stats.Skipped,
		Metrics:       metrics,
		Logger:        logger,
	})

	final, runErr := pipeline.Run(ctx)

	closeErr := sink.Close()
	if closeErr != nil {
		logger.Warn("closing export sinks failed", "error", closeErr)
	}

	if !*ec.quiet {
		stats.RenderTable(os.Stdout, run.Snapshot())
		fmt.Fprintln(os.Stdout, extractSummary(final, runErr))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	return nil
}

// loadConfig loads the config file and applies flag overrides.
func (ec *ExtractCommand) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(ec.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("engine") {
		cfg.Engine.Path = ec.enginePath
	}

	if flags.Changed("depth") {
		cfg.Analysis.Depth = ec.depth
	}

	if flags.Changed("workers") {
		cfg.Analysis.Workers = ec.workers
	}

	if flags.Changed("threshold") {
		cfg.Analysis.BlunderThresholdCP = ec.thresholdCP
	}

	if flags.Changed("policy") {
		cfg.Filter.Policy = ec.policy
	}

	if flags.Changed("out") {
		cfg.Output.Dir = ec.outDir
	}

	if flags.Changed("checkpoint-dir") {
		cfg.State.Dir = ec.checkpointDir
	}

	if flags.Changed("metrics-addr") {
		cfg.Observability.MetricsAddr = ec.metricsAddr
	}

	if cfg.State.Dir == "" {
		cfg.State.Dir = state.DefaultDir()
	}

	return cfg, nil
}

// buildLogger derives the run logger from config and the global verbosity
// flags.
func (ec *ExtractCommand) buildLogger(cfg *config.Config) *slog.Logger {
	if *ec.quiet {
		return observability.Discard()
	}

	level := cfg.Logging.Level
	if *ec.verbose {
		level = "debug"
	}

	return observability.BuildLogger(level, cfg.Logging.JSON)
}

// buildCache constructs the shared evaluation cache and returns a closer
// that persists it when a cache file is configured.
func (ec *ExtractCommand) buildCache(cfg *config.Config, logger *slog.Logger) (*engine.Cache, func()) {
	cache := engine.NewCache(cfg.Engine.CacheEntries)

	path := cfg.Engine.CacheFile
	if path == "" {
		return cache, func() {}
	}

	loadErr := cache.Load(path)
	if loadErr != nil {
		logger.Warn("evaluation cache load failed, starting cold", "path", path, "error", loadErr)
	}

	return cache, func() {
		saveErr := cache.Save(path)
		if saveErr != nil {
			logger.Warn("evaluation cache save failed", "path", path, "error", saveErr)
		}
	}
}

// openSinks opens one writer per configured export format, all in append
// mode so resumed runs extend prior output.
func openSinks(cfg *config.Config) (export.Sink, error) {
	mkdirErr := os.MkdirAll(cfg.Output.Dir, outputDirPerm)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create output dir: %w", mkdirErr)
	}

	var sinks []export.Sink

	for _, format := range cfg.Output.Formats {
		switch format {
		case config.FormatPGN:
			pw, err := export.OpenPGN(filepath.Join(cfg.Output.Dir, pgnBasename))
			if err != nil {
				return nil, err
			}

			sinks = append(sinks, pw)
		case config.FormatJSONL:
			jw, err := export.OpenJSONL(filepath.Join(cfg.Output.Dir, jsonlBasename))
			if err != nil {
				return nil, err
			}

			sinks = append(sinks, jw)
		}
	}

	if len(sinks) == 0 {
		return nil, ErrNoFormats
	}

	return export.Multi(sinks...), nil
}

// engineFactory builds the per-worker UCI spawner.
func engineFactory(cfg *config.Config, logger *slog.Logger) engine.Factory {
	return func() (engine.Evaluator, error) {
		return engine.StartUCI(engine.UCIConfig{
			Path:         cfg.Engine.Path,
			Args:         cfg.Engine.Args,
			Threads:      cfg.Engine.Threads,
			HashMB:       cfg.Engine.HashMB,
			QueryTimeout: cfg.Engine.QueryTimeout,
		}, logger)
	}
}

// extractSummary formats the end-of-run status line.
func extractSummary(cp state.Checkpoint, runErr error) string {
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return color.RedString("run aborted after game %d: %v", cp.LastGameIndex, runErr)
	}

	status := color.GreenString("done")
	if errors.Is(runErr, context.Canceled) {
		status = color.YellowString("interrupted")
	}

	return fmt.Sprintf("%s: %s puzzles through game %s (at %s)",
		status,
		humanize.Comma(int64(cp.PuzzleCount)),
		humanize.Comma(int64(cp.LastGameIndex)),
		cp.Timestamp.Format(time.RFC3339))
}
