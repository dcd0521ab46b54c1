// Package detect scans games for blunders: moves that swing the evaluation
// catastrophically toward the opponent.
package detect

import (
	"context"
	"errors"

	"github.com/notnil/chess"

	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/puzzle"
)

// Config tunes blunder detection.
type Config struct {
	// Depth is the scan search depth, typically shallower than the solve depth.
	Depth int
	// ThresholdCP is the minimum evaluation drop (centipawns, saturated)
	// that counts as a blunder.
	ThresholdCP int
	// DecidedCutoffCP skips positions already evaluated beyond this
	// magnitude before the move: making a lost position more lost teaches
	// nothing.
	DecidedCutoffCP int
	// EndGuardPlies skips the final plies of a terminated game, where no
	// opponent moves remain to exploit an error.
	EndGuardPlies int
}

// Scanner lazily walks a game's plies and yields blunder candidates.
// A scanner is single-use: re-scanning a game requires a new Scanner and
// re-evaluates every position from scratch.
type Scanner struct {
	eval engine.Evaluator
	cfg  Config

	positions []*chess.Position
	moves     []*chess.Move
	finished  bool

	ply  int
	prev *engine.Score // Evaluation of positions[ply], side-to-move frame.

	cand puzzle.Candidate
	err  error
}

// NewScanner creates a scanner over the game's move sequence.
func NewScanner(eval engine.Evaluator, game *chess.Game, cfg Config) *Scanner {
	return &Scanner{
		eval:      eval,
		cfg:       cfg,
		positions: game.Positions(),
		moves:     game.Moves(),
		finished:  game.Outcome() != chess.NoOutcome,
	}
}

// Scan advances to the next blunder candidate. It returns false at the end
// of the game or on a fatal evaluator error; check Err afterwards.
func (s *Scanner) Scan(ctx context.Context) bool {
	for s.ply < len(s.moves) {
		if s.finished && s.ply >= len(s.moves)-s.cfg.EndGuardPlies {
			return false
		}

		emitted, err := s.step(ctx)
		if err != nil {
			s.err = err

			return false
		}

		if emitted {
			return true
		}
	}

	return false
}

// step evaluates one ply and reports whether it produced a candidate.
func (s *Scanner) step(ctx context.Context) (bool, error) {
	ply := s.ply
	s.ply++

	before, err := s.scoreAt(ctx, ply)
	if errors.Is(err, engine.ErrUnanalyzable) {
		s.prev = nil

		return false, nil
	}

	if err != nil {
		return false, err
	}

	afterRaw, err := s.eval.Analyze(ctx, s.positions[ply+1].String(), s.cfg.Depth, 1)
	if errors.Is(err, engine.ErrUnanalyzable) {
		s.prev = nil

		return false, nil
	}

	if err != nil {
		return false, err
	}

	// afterRaw is framed on the opponent (the new side to move); reuse it as
	// next ply's "before" and negate it into the mover's frame here.
	s.prev = &afterRaw[0].Score
	after := afterRaw[0].Score.Negate()

	if abs(before.Centipawns()) >= s.cfg.DecidedCutoffCP {
		return false, nil
	}

	if before.Centipawns()-after.Centipawns() < s.cfg.ThresholdCP {
		return false, nil
	}

	s.cand = puzzle.Candidate{
		PlyIndex:    ply,
		Before:      s.positions[ply],
		Move:        s.moves[ply],
		Mover:       s.positions[ply].Turn(),
		ScoreBefore: before,
		ScoreAfter:  after,
	}

	return true, nil
}

// scoreAt returns the evaluation of positions[ply] framed on its side to
// move, reusing the previous ply's trailing evaluation when available.
func (s *Scanner) scoreAt(ctx context.Context, ply int) (engine.Score, error) {
	if s.prev != nil {
		sc := *s.prev

		return sc, nil
	}

	lines, err := s.eval.Analyze(ctx, s.positions[ply].String(), s.cfg.Depth, 1)
	if err != nil {
		return engine.Score{}, err
	}

	return lines[0].Score, nil
}

// Candidate returns the candidate found by the last successful Scan.
func (s *Scanner) Candidate() puzzle.Candidate { return s.cand }

// Err returns the fatal error that stopped scanning, if any. Unanalyzable
// positions are skipped silently and never surface here.
func (s *Scanner) Err() error { return s.err }

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
