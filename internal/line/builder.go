// Package line grows blunder candidates into forcing solution lines with a
// bounded set of alternate variations.
package line

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/notnil/chess"

	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/puzzle"
)

// Quality-filter constants, applied at quick depth before line construction.
const (
	// hangingGapCP is how much worse the second-best reply must score before
	// a lone recapture counts as a dropped piece rather than a tactic.
	hangingGapCP = 400
	// captureProbePlies bounds the capture-sequence walk.
	captureProbePlies = 5
	// captureSequenceMin is the shortest all-capture continuation treated as
	// a plain exchange.
	captureSequenceMin = 2
)

// Rejection explains why Build discarded a candidate. Rejections feed the
// run statistics.
type Rejection string

// Candidate rejection reasons.
const (
	RejectionNone Rejection = ""
	// RejectionForced marks candidates whose solver never faces a real
	// choice within the forced-prefix window.
	RejectionForced Rejection = "forced sequence"
	// RejectionHangingPiece marks blunders that merely dropped a piece; the
	// only lesson is a recapture.
	RejectionHangingPiece Rejection = "hanging piece"
	// RejectionCaptureSequence marks refutations that are nothing but a
	// series of direct captures.
	RejectionCaptureSequence Rejection = "capture sequence"
	// RejectionNoLine marks candidates with no bounded forcing continuation.
	RejectionNoLine Rejection = "no forcing line"
)

// Config tunes line construction.
type Config struct {
	// Depth is the solve search depth.
	Depth int
	// MultiPV is how many ranked lines to request at solver decision points.
	MultiPV int
	// MaxVariants caps the number of alternate variations per puzzle.
	MaxVariants int
	// EpsilonCP is the tolerance within which two moves count as equivalent.
	EpsilonCP int
	// AcceptCP is the advantage a non-mate line must hold at its end.
	AcceptCP int
	// PlateauPlies is how many consecutive in-band plies mean the tactic has
	// resolved into technique.
	PlateauPlies int
	// PlateauBandCP is the band width for plateau detection.
	PlateauBandCP int
	// MaxLinePlies discards candidates that do not resolve within this many
	// plies: no bounded forcing line exists.
	MaxLinePlies int
	// MaxForcedPrefix is the window, in plies, for skipping an opening run
	// of forced solver moves. The puzzle starts at the first real choice;
	// candidates that stay forced through the whole window teach nothing
	// and are rejected.
	MaxForcedPrefix int
	// QuickDepth is the shallow depth used by the forced-sequence probe.
	// Zero falls back to Depth.
	QuickDepth int
}

// quickDepth returns the probe depth.
func (c Config) quickDepth() int {
	if c.QuickDepth > 0 {
		return c.QuickDepth
	}

	return c.Depth
}

// Builder converts candidates into puzzles using an Evaluator.
type Builder struct {
	eval engine.Evaluator
	cfg  Config
}

// NewBuilder creates a Builder.
func NewBuilder(eval engine.Evaluator, cfg Config) *Builder {
	return &Builder{eval: eval, cfg: cfg}
}

// branchSpot records an equivalent alternative at a solver decision point.
type branchSpot struct {
	ply int // Index into the main line where the alternative diverges.
	pos *chess.Position
	alt engine.Line
}

// Build returns a puzzle for the candidate, or nil with a Rejection when the
// candidate does not yield one. Only evaluator process failures surface as
// errors; unanalyzable positions simply discard the candidate.
func (b *Builder) Build(ctx context.Context, cand puzzle.Candidate) (*puzzle.Puzzle, Rejection, error) {
	solver := cand.Solver()
	afterBlunder := cand.Before.Update(cand.Move)

	start, rejection, err := b.skipForcedPrefix(ctx, afterBlunder, cand.Move.HasTag(chess.Check), solver)
	if err != nil || rejection != RejectionNone {
		return nil, rejection, err
	}

	hanging, err := b.hangingPiece(ctx, afterBlunder, cand.Move)
	if err != nil {
		return nil, RejectionNone, err
	}

	if hanging {
		return nil, RejectionHangingPiece, nil
	}

	if isCapture(cand.Move) {
		exchange, exErr := b.captureSequence(ctx, afterBlunder)
		if exErr != nil {
			return nil, RejectionNone, exErr
		}

		if exchange {
			return nil, RejectionCaptureSequence, nil
		}
	}

	main, branches, err := b.buildMain(ctx, start, solver)
	if err != nil {
		return nil, RejectionNone, err
	}

	if main == nil {
		return nil, RejectionNoLine, nil
	}

	firstEquivalents := 0

	for _, spot := range branches {
		if spot.ply == 0 {
			firstEquivalents++
		}
	}

	alternates := b.buildAlternates(ctx, main, branches, solver)

	pzl := &puzzle.Puzzle{
		ID:          puzzleID(start.String(), cand.PlyIndex, main.Moves),
		InitialFEN:  start.String(),
		SolverColor: solver,
		PlyIndex:    cand.PlyIndex,
		ScoreBefore: cand.ScoreBefore,
		ScoreAfter:  cand.ScoreAfter,
		Main:        *main,
		Alternates:  alternates,

		EquivalentFirstMoves: firstEquivalents,
	}

	return pzl, RejectionNone, nil
}

// buildMain follows engine-best continuations from the start position until
// the line terminates, collecting equivalent alternatives at solver turns.
func (b *Builder) buildMain(
	ctx context.Context, start *chess.Position, solver chess.Color,
) (*puzzle.Variant, []branchSpot, error) {
	pos := start

	var (
		moves    []puzzle.AnnotatedMove
		branches []branchSpot
	)

	plateauRun := 0
	lastAdv := 0
	haveLast := false

	for len(moves) < b.cfg.MaxLinePlies {
		solverTurn := pos.Turn() == solver

		multiPV := 1
		if solverTurn {
			multiPV = b.cfg.MultiPV
		}

		lines, err := b.eval.Analyze(ctx, pos.String(), b.cfg.Depth, multiPV)
		if errors.Is(err, engine.ErrUnanalyzable) {
			return nil, nil, nil
		}

		if err != nil {
			return nil, nil, err
		}

		best := lines[0]

		if solverTurn {
			for _, alt := range lines[1:] {
				if best.Score.Diff(alt.Score) <= b.cfg.EpsilonCP {
					branches = append(branches, branchSpot{ply: len(moves), pos: pos, alt: alt})
				}
			}
		}

		// Annotate every move with the advantage from the solver's side.
		adv := best.Score
		if !solverTurn {
			adv = adv.Negate()
		}

		next, ok := applyUCI(pos, best.MoveUCI)
		if !ok {
			return nil, nil, nil
		}

		moves = append(moves, puzzle.AnnotatedMove{UCI: best.MoveUCI, Score: adv})

		switch next.Status() {
		case chess.Checkmate:
			if !solverTurn {
				// The "winning" side got mated; the tactic was never real.
				return nil, nil, nil
			}

			return &puzzle.Variant{Moves: moves, Termination: puzzle.TerminationMate, BranchPly: -1}, branches, nil
		case chess.Stalemate:
			return &puzzle.Variant{Moves: moves, Termination: puzzle.TerminationStalemate, BranchPly: -1}, branches, nil
		}

		if haveLast && abs(adv.Centipawns()-lastAdv) <= b.cfg.PlateauBandCP {
			plateauRun++
		} else {
			plateauRun = 1
		}

		lastAdv = adv.Centipawns()
		haveLast = true

		if solverTurn && plateauRun >= b.cfg.PlateauPlies && adv.Centipawns() >= b.cfg.AcceptCP && !adv.IsMate() {
			return &puzzle.Variant{Moves: moves, Termination: puzzle.TerminationStabilized, BranchPly: -1}, branches, nil
		}

		pos = next
	}

	// Length limit without resolution: no forced tactic here.
	return nil, nil, nil
}

// buildAlternates expands recorded branch spots into full variants, best
// engine rank first, capped at MaxVariants.
func (b *Builder) buildAlternates(
	ctx context.Context, main *puzzle.Variant, branches []branchSpot, solver chess.Color,
) []puzzle.Variant {
	var out []puzzle.Variant

	for _, spot := range branches {
		if len(out) >= b.cfg.MaxVariants {
			break
		}

		variant, ok := b.extendAlternate(ctx, main, spot, solver)
		if ok {
			out = append(out, *variant)
		}
	}

	return out
}

// extendAlternate replays the shared prefix, plays the alternative move and
// continues with single-best moves until the variant terminates. Variants
// that fail to resolve are dropped without affecting the puzzle.
func (b *Builder) extendAlternate(
	ctx context.Context, main *puzzle.Variant, spot branchSpot, solver chess.Color,
) (*puzzle.Variant, bool) {
	moves := make([]puzzle.AnnotatedMove, spot.ply, spot.ply+1)
	copy(moves, main.Moves[:spot.ply])

	pos, ok := applyUCI(spot.pos, spot.alt.MoveUCI)
	if !ok {
		return nil, false
	}

	moves = append(moves, puzzle.AnnotatedMove{UCI: spot.alt.MoveUCI, Score: spot.alt.Score})

	if pos.Status() == chess.Checkmate {
		return &puzzle.Variant{Moves: moves, Termination: puzzle.TerminationMate, BranchPly: spot.ply}, true
	}

	plateauRun := 1
	lastAdv := spot.alt.Score.Centipawns()

	for len(moves) < b.cfg.MaxLinePlies {
		solverTurn := pos.Turn() == solver

		lines, err := b.eval.Analyze(ctx, pos.String(), b.cfg.Depth, 1)
		if err != nil {
			return nil, false
		}

		best := lines[0]

		adv := best.Score
		if !solverTurn {
			adv = adv.Negate()
		}

		next, ok := applyUCI(pos, best.MoveUCI)
		if !ok {
			return nil, false
		}

		moves = append(moves, puzzle.AnnotatedMove{UCI: best.MoveUCI, Score: adv})

		switch next.Status() {
		case chess.Checkmate:
			if !solverTurn {
				return nil, false
			}

			return &puzzle.Variant{Moves: moves, Termination: puzzle.TerminationMate, BranchPly: spot.ply}, true
		case chess.Stalemate:
			return nil, false
		}

		if abs(adv.Centipawns()-lastAdv) <= b.cfg.PlateauBandCP {
			plateauRun++
		} else {
			plateauRun = 1
		}

		lastAdv = adv.Centipawns()

		if solverTurn && plateauRun >= b.cfg.PlateauPlies && adv.Centipawns() >= b.cfg.AcceptCP && !adv.IsMate() {
			return &puzzle.Variant{Moves: moves, Termination: puzzle.TerminationStabilized, BranchPly: spot.ply}, true
		}

		pos = next
	}

	return nil, false
}

// forcedChoice reports whether the side to move has no real decision: a
// single legal move, or an in-check position with at most two escapes.
func forcedChoice(legal int, inCheck bool) bool {
	return legal == 1 || (inCheck && legal <= 2)
}

// skipForcedPrefix advances the puzzle start past an opening run of forced
// solver moves, playing engine-best replies for the opponent in between. The
// solver must reach a real choice within the window; otherwise the whole
// "puzzle" is a formality and the candidate is rejected.
func (b *Builder) skipForcedPrefix(
	ctx context.Context, start *chess.Position, startInCheck bool, solver chess.Color,
) (*chess.Position, Rejection, error) {
	if b.cfg.MaxForcedPrefix <= 0 {
		return start, RejectionNone, nil
	}

	pos, inCheck := start, startInCheck

	for ply := 0; ply < b.cfg.MaxForcedPrefix; ply++ {
		legal := len(pos.ValidMoves())
		if legal == 0 {
			// The game is already over; nothing to solve.
			return nil, RejectionNoLine, nil
		}

		if pos.Turn() == solver && !forcedChoice(legal, inCheck) {
			return pos, RejectionNone, nil
		}

		lines, err := b.eval.Analyze(ctx, pos.String(), b.cfg.quickDepth(), 1)
		if errors.Is(err, engine.ErrUnanalyzable) {
			return nil, RejectionNoLine, nil
		}

		if err != nil {
			return nil, RejectionNone, err
		}

		move, ok := resolveUCI(pos, lines[0].MoveUCI)
		if !ok {
			return nil, RejectionNoLine, nil
		}

		pos = pos.Update(move)
		inCheck = move.HasTag(chess.Check)
	}

	return nil, RejectionForced, nil
}

// hangingPiece reports whether the blunder merely dropped the piece standing
// on its destination square: the engine's best reply at quick depth captures
// there and every second choice is drastically worse. Such positions are
// retakes, not tactics.
func (b *Builder) hangingPiece(ctx context.Context, pos *chess.Position, blunder *chess.Move) (bool, error) {
	if pos.Board().Piece(blunder.S2()) == chess.NoPiece {
		return false, nil
	}

	lines, err := b.eval.Analyze(ctx, pos.String(), b.cfg.quickDepth(), 2)
	if errors.Is(err, engine.ErrUnanalyzable) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	best, ok := resolveUCI(pos, lines[0].MoveUCI)
	if !ok || best.S2() != blunder.S2() {
		return false, nil
	}

	if len(lines) < 2 {
		return true, nil
	}

	return lines[0].Score.Diff(lines[1].Score) >= hangingGapCP, nil
}

// captureSequence reports whether the refutation is nothing but an exchange:
// engine-best play stays all-capture for at least captureSequenceMin plies.
// Callers gate this on the blunder itself having been a capture.
func (b *Builder) captureSequence(ctx context.Context, start *chess.Position) (bool, error) {
	pos := start
	probed := 0

	for ply := 0; ply < captureProbePlies; ply++ {
		if len(pos.ValidMoves()) == 0 {
			break
		}

		lines, err := b.eval.Analyze(ctx, pos.String(), b.cfg.quickDepth(), 1)
		if errors.Is(err, engine.ErrUnanalyzable) {
			break
		}

		if err != nil {
			return false, err
		}

		move, ok := resolveUCI(pos, lines[0].MoveUCI)
		if !ok {
			break
		}

		if !isCapture(move) {
			return false, nil
		}

		probed++
		pos = pos.Update(move)
	}

	return probed >= captureSequenceMin, nil
}

// resolveUCI decodes a UCI move and resolves it against the position's legal
// move set. Decode alone leaves the move tags unset, and both Status and the
// check/capture inspection downstream rely on them.
func resolveUCI(pos *chess.Position, uci string) (*chess.Move, bool) {
	decoded, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, false
	}

	for _, valid := range pos.ValidMoves() {
		if valid.S1() == decoded.S1() && valid.S2() == decoded.S2() && valid.Promo() == decoded.Promo() {
			return valid, true
		}
	}

	return nil, false
}

// applyUCI resolves a UCI move against a position and applies it.
func applyUCI(pos *chess.Position, uci string) (*chess.Position, bool) {
	move, ok := resolveUCI(pos, uci)
	if !ok {
		return nil, false
	}

	return pos.Update(move), true
}

// isCapture reports whether the move takes a piece, en passant included.
func isCapture(m *chess.Move) bool {
	return m.HasTag(chess.Capture) || m.HasTag(chess.EnPassant)
}

// puzzleID derives a stable identifier, so identical evaluator responses
// always produce byte-identical output.
func puzzleID(fen string, plyIndex int, moves []puzzle.AnnotatedMove) uuid.UUID {
	seed := fmt.Sprintf("%s|%d", fen, plyIndex)
	for _, m := range moves {
		seed += "|" + m.UCI
	}

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
