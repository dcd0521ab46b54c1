package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Factory builds a fresh Evaluator, typically by spawning a UCI process.
type Factory func() (Evaluator, error)

// Respawning wraps an Evaluator and transparently replaces it when the
// underlying process dies, up to a bounded number of respawns. Once the
// budget is exhausted every call fails with ErrRespawnExhausted and the
// owning worker aborts.
type Respawning struct {
	factory     Factory
	inner       Evaluator
	maxRespawns int
	respawns    int
	logger      *slog.Logger

	// OnRespawn, when set, is invoked after each successful respawn.
	// Used to feed the pipeline's respawn metric.
	OnRespawn func()
}

// NewRespawning creates a respawning wrapper. The first evaluator is spawned
// lazily on the first Analyze call.
func NewRespawning(factory Factory, maxRespawns int, logger *slog.Logger) *Respawning {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Respawning{
		factory:     factory,
		maxRespawns: maxRespawns,
		logger:      logger,
	}
}

// Analyze implements Evaluator. ErrEngineDown from the inner evaluator
// triggers a respawn and a single retry of the query; any other error
// (including ErrUnanalyzable) passes through untouched.
func (r *Respawning) Analyze(ctx context.Context, fen string, depth, multiPV int) ([]Line, error) {
	for {
		// A canceled run must not burn the respawn budget spinning up fresh
		// engines that are immediately killed again.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		ensureErr := r.ensure()
		if ensureErr != nil {
			return nil, ensureErr
		}

		lines, err := r.inner.Analyze(ctx, fen, depth, multiPV)
		if err == nil || !errors.Is(err, ErrEngineDown) {
			return lines, err
		}

		r.logger.Warn("engine died, respawning", "respawns", r.respawns, "max", r.maxRespawns)
		_ = r.inner.Close()
		r.inner = nil
	}
}

// ensure spawns an evaluator if none is live, charging the respawn budget
// for every spawn after the first.
func (r *Respawning) ensure() error {
	if r.inner != nil {
		return nil
	}

	if r.respawns > r.maxRespawns {
		return ErrRespawnExhausted
	}

	inner, err := r.factory()
	if err != nil {
		r.respawns++

		return fmt.Errorf("%w: %w", ErrEngineDown, err)
	}

	if r.respawns > 0 && r.OnRespawn != nil {
		r.OnRespawn()
	}

	r.respawns++
	r.inner = inner

	return nil
}

// Close shuts down the current inner evaluator, if any.
func (r *Respawning) Close() error {
	if r.inner == nil {
		return nil
	}

	err := r.inner.Close()
	r.inner = nil

	return err
}
