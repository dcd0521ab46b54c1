// Package runner orchestrates the extraction pipeline: a producer fans
// games out to workers, each worker runs detection and line building
// against its own engine, and a committer serializes export and checkpoint
// advancement in source order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tactician-chess/tactician/internal/chessio"
	"github.com/tactician-chess/tactician/internal/classify"
	"github.com/tactician-chess/tactician/internal/detect"
	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/export"
	"github.com/tactician-chess/tactician/internal/filter"
	"github.com/tactician-chess/tactician/internal/line"
	"github.com/tactician-chess/tactician/internal/observability"
	"github.com/tactician-chess/tactician/internal/puzzle"
	"github.com/tactician-chess/tactician/internal/state"
	"github.com/tactician-chess/tactician/internal/stats"
)

// ReasonNoForcingLine records candidates discarded because no bounded
// forcing continuation was found. The line builder reports its other
// rejection reasons itself.
const ReasonNoForcingLine = string(line.RejectionNoLine)

// ErrWorkerFailed wraps the first fatal worker error of a run.
var ErrWorkerFailed = errors.New("worker failed")

// GameSource yields game records in stream order. Skipped must be safe to
// call while Next is consuming the stream: the committer reads it while the
// producer reads games. chessio.Source satisfies it; tests substitute slices.
type GameSource interface {
	Next() (*chessio.Record, error)
	Skipped() int
}

// Options configures a pipeline run.
type Options struct {
	Workers     int
	BatchGames  int
	MaxRespawns int

	Detect   detect.Config
	Line     line.Config
	Filter   filter.Config
	Classify classify.Config

	// Factory spawns one raw engine per worker; the runner wraps each in a
	// respawning guard. A shared Cache, when set, fronts every worker.
	Factory engine.Factory
	Cache   *engine.Cache

	Source GameSource
	Sink   export.Sink
	Store  *state.Store
	Stats  *stats.Run

	// Resume point: games with index <= StartAfter are skipped, and the
	// puzzle count continues from PuzzleCount.
	StartAfter  int
	PuzzleCount int

	// SkippedBefore is the malformed-record count already folded into Stats
	// by the checkpoint being resumed. A resumed run re-parses the whole
	// stream, so only the source's count above this baseline is new.
	SkippedBefore int

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Runner executes one extraction run.
type Runner struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if opts.BatchGames <= 0 {
		opts.BatchGames = 1
	}

	return &Runner{
		opts:   opts,
		logger: logger,
		tracer: observability.Tracer(),
	}
}

// job is one dispatched game. Seq is the dense dispatch order, which the
// committer uses to re-serialize results; Index is the source-stream index
// recorded in checkpoints (it may have gaps where malformed games were
// skipped).
type job struct {
	seq int
	rec *chessio.Record
}

// gameResult carries one worker's output for one game.
type gameResult struct {
	seq     int
	index   int
	puzzles []*puzzle.Puzzle

	candidates int
	rejects    map[string]int

	err error
}

// Run drives the pipeline until the source is exhausted, a worker fails, or
// ctx is canceled. It always attempts a final checkpoint commit covering the
// last contiguous run of completed games before returning.
func (r *Runner) Run(ctx context.Context) (state.Checkpoint, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, r.opts.Workers)
	results := make(chan gameResult, r.opts.Workers)

	var produceErr error

	go func() {
		defer close(jobs)

		produceErr = r.produce(runCtx, jobs)
	}()

	var wg sync.WaitGroup

	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()

			r.work(runCtx, workerID, jobs, results)
		}(w)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	checkpoint, commitErr := r.commit(cancel, results)

	if commitErr != nil {
		return checkpoint, commitErr
	}

	if produceErr != nil {
		return checkpoint, produceErr
	}

	return checkpoint, ctx.Err()
}

// produce reads the source and dispatches records past the resume point.
func (r *Runner) produce(ctx context.Context, jobs chan<- job) error {
	seq := 0

	for {
		rec, err := r.opts.Source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read game source: %w", err)
		}

		if rec.Index <= r.opts.StartAfter {
			continue
		}

		seq++

		select {
		case jobs <- job{seq: seq, rec: rec}:
		case <-ctx.Done():
			return nil
		}
	}
}

// work runs the per-game pipeline against a worker-owned evaluator.
func (r *Runner) work(ctx context.Context, workerID int, jobs <-chan job, results chan<- gameResult) {
	eval := r.buildEvaluator()
	defer func() {
		closeErr := eval.Close()
		if closeErr != nil {
			r.logger.Warn("engine close failed", "worker", workerID, "error", closeErr)
		}
	}()

	for jb := range jobs {
		if ctx.Err() != nil {
			return
		}

		res := r.processGame(ctx, eval, jb)

		select {
		case results <- res:
		case <-ctx.Done():
			return
		}

		if res.err != nil {
			return
		}
	}
}

// buildEvaluator assembles the per-worker evaluator stack: respawning guard
// around the factory, optionally fronted by the shared cache and the metrics
// timer.
func (r *Runner) buildEvaluator() engine.Evaluator {
	respawning := engine.NewRespawning(r.opts.Factory, r.opts.MaxRespawns, r.logger)
	if r.opts.Metrics != nil {
		respawning.OnRespawn = r.opts.Metrics.EngineRespawns.Inc
	}

	var eval engine.Evaluator = respawning

	if r.opts.Cache != nil {
		eval = &engine.Cached{Inner: eval, Cache: r.opts.Cache}
	}

	if r.opts.Metrics != nil {
		eval = &measuredEvaluator{inner: eval, observe: r.opts.Metrics.EngineQueries.Observe}
	}

	return eval
}

// processGame scans one game for blunders and builds puzzles from them.
func (r *Runner) processGame(ctx context.Context, eval engine.Evaluator, jb job) gameResult {
	gameCtx, span := r.tracer.Start(ctx, "game.analyze",
		trace.WithAttributes(attribute.Int("game.index", jb.rec.Index)))
	defer span.End()

	res := gameResult{
		seq:     jb.seq,
		index:   jb.rec.Index,
		rejects: make(map[string]int),
	}

	ref := jb.rec.Headers()
	source := puzzle.GameRef{
		Index: jb.rec.Index,
		White: ref.White,
		Black: ref.Black,
		Date:  ref.Date,
		Event: ref.Event,
	}

	scanner := detect.NewScanner(eval, jb.rec.Game, r.opts.Detect)
	builder := line.NewBuilder(eval, r.opts.Line)

	for scanner.Scan(gameCtx) {
		res.candidates++

		cand := scanner.Candidate()

		pzl, rejection, buildErr := builder.Build(gameCtx, cand)
		if buildErr != nil {
			res.err = buildErr

			return res
		}

		if pzl == nil {
			res.rejects[string(rejection)]++

			continue
		}

		pzl.Source = source

		kept, reason := filter.Apply(pzl, r.opts.Filter)
		if kept == nil {
			res.rejects[string(reason)]++

			continue
		}

		kept.Objective, kept.Phase = classify.Classify(kept, r.opts.Classify)
		res.puzzles = append(res.puzzles, kept)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		res.err = scanErr
	}

	return res
}

// commit re-serializes worker results in dispatch order, exports puzzles,
// and advances the checkpoint behind the contiguous watermark. The first
// worker error cancels the run but the watermark reached so far is still
// committed.
func (r *Runner) commit(
	cancel context.CancelFunc, results <-chan gameResult,
) (state.Checkpoint, error) {
	tracker := state.NewTracker(0)
	pending := make(map[int]gameResult)

	puzzleCount := r.opts.PuzzleCount
	lastIndex := r.opts.StartAfter
	sinceCommit := 0

	var runErr error

	foldedSkips := 0

	checkpoint := func() state.Checkpoint {
		// Fold newly skipped malformed records into the stats so they land
		// inside the committed snapshot.
		newSkipped := r.opts.Source.Skipped() - r.opts.SkippedBefore - foldedSkips
		if newSkipped > 0 {
			r.opts.Stats.AddSkipped(newSkipped)
			foldedSkips += newSkipped
		}

		return state.Checkpoint{
			LastGameIndex: lastIndex,
			PuzzleCount:   puzzleCount,
			Timestamp:     time.Now().UTC(),
			Stats:         r.opts.Stats.Snapshot(),
		}
	}

	for res := range results {
		if res.err != nil {
			// A canceled game is abandoned, not failed: the watermark stays
			// at the last fully analyzed game so a resumed run redoes it.
			if !errors.Is(res.err, context.Canceled) && runErr == nil {
				runErr = fmt.Errorf("%w: game %d: %v", ErrWorkerFailed, res.index, res.err)

				cancel()
			}

			continue
		}

		pending[res.seq] = res

		next := tracker.Watermark() + 1
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}

			delete(pending, next)

			exportErr := r.exportGame(ready, &puzzleCount)
			if exportErr != nil && runErr == nil {
				runErr = exportErr

				cancel()
			}

			tracker.Complete(ready.seq)

			lastIndex = ready.index
			sinceCommit++
			next = ready.seq + 1
		}

		if sinceCommit >= r.opts.BatchGames {
			commitErr := r.opts.Store.Commit(checkpoint())
			if commitErr != nil && runErr == nil {
				runErr = commitErr

				cancel()
			}

			sinceCommit = 0
		}
	}

	cp := checkpoint()

	if lastIndex > r.opts.StartAfter || sinceCommit > 0 || foldedSkips > 0 {
		commitErr := r.opts.Store.Commit(cp)
		if commitErr != nil && runErr == nil {
			runErr = commitErr
		}
	}

	return cp, runErr
}

// exportGame writes one game's accepted puzzles and folds its counters into
// the run statistics.
func (r *Runner) exportGame(res gameResult, puzzleCount *int) error {
	r.opts.Stats.AddGame()

	if r.opts.Metrics != nil {
		r.opts.Metrics.GamesProcessed.Inc()
	}

	for i := 0; i < res.candidates; i++ {
		r.opts.Stats.AddCandidate()
	}

	if r.opts.Metrics != nil && res.candidates > 0 {
		r.opts.Metrics.CandidatesFound.Add(float64(res.candidates))
	}

	for reason, n := range res.rejects {
		for i := 0; i < n; i++ {
			r.opts.Stats.Reject(reason)
		}

		if r.opts.Metrics != nil {
			r.opts.Metrics.PuzzlesRejected.WithLabelValues(reason).Add(float64(n))
		}
	}

	for _, pzl := range res.puzzles {
		writeErr := r.opts.Sink.Write(pzl)
		if writeErr != nil {
			return fmt.Errorf("export puzzle %s: %w", pzl.ID, writeErr)
		}

		*puzzleCount++

		r.opts.Stats.Accept(string(pzl.Objective), string(pzl.Phase))

		if r.opts.Metrics != nil {
			r.opts.Metrics.PuzzlesAccepted.Inc()
		}
	}

	return nil
}

// measuredEvaluator feeds query latencies into the engine histogram.
type measuredEvaluator struct {
	inner   engine.Evaluator
	observe func(float64)
}

func (m *measuredEvaluator) Analyze(ctx context.Context, fen string, depth, multiPV int) ([]engine.Line, error) {
	start := time.Now()
	lines, err := m.inner.Analyze(ctx, fen, depth, multiPV)
	m.observe(time.Since(start).Seconds())

	return lines, err
}

func (m *measuredEvaluator) Close() error { return m.inner.Close() }
