// Package engine provides position evaluation through an external UCI chess
// engine process, plus caching and crash-recovery wrappers around it.
package engine

import (
	"context"
	"errors"
)

// Sentinel errors distinguishing recoverable from fatal evaluator failures.
var (
	// ErrUnanalyzable marks a position the engine could not score in time or
	// answered with an unparseable response. The caller abandons the current
	// candidate and moves on; the engine itself is still considered usable.
	ErrUnanalyzable = errors.New("position unanalyzable")
	// ErrEngineDown marks a dead or unreachable engine process. The owning
	// worker may respawn a bounded number of times before giving up.
	ErrEngineDown = errors.New("engine process down")
	// ErrRespawnExhausted is returned once respawn retries are used up.
	ErrRespawnExhausted = errors.New("engine respawn retries exhausted")
)

// Line is one ranked continuation from an evaluated position.
type Line struct {
	// MoveUCI is the first move of the continuation in coordinate notation.
	MoveUCI string
	// Score is the evaluation from the perspective of the side to move at
	// the evaluated position.
	Score Score
	// Rank is the engine's 1-based multipv ranking, best first.
	Rank int
}

// Evaluator scores chess positions. Implementations are not safe for
// concurrent use: the UCI protocol is strictly sequential, so each worker
// owns exactly one Evaluator.
type Evaluator interface {
	// Analyze evaluates the position given as a FEN string at the requested
	// depth and returns up to multiPV ranked lines, best first.
	Analyze(ctx context.Context, fen string, depth, multiPV int) ([]Line, error)
	// Close terminates the underlying resources. Safe to call twice.
	Close() error
}
