// Package classify labels accepted puzzles with an objective and a game
// phase. Classification is pure and total: every puzzle gets a tag pair.
package classify

import (
	"github.com/notnil/chess"

	"github.com/tactician-chess/tactician/internal/puzzle"
)

// Config holds the classification thresholds.
type Config struct {
	// WinningCP is the advantage considered decisive when judging whether a
	// side was already winning before the blunder.
	WinningCP int
	// OpeningMaxPly is the last ply index still counted as the opening.
	OpeningMaxPly int
	// EndgameMaterial is the total non-king material (pawn units, both
	// sides) at or below which a position counts as an endgame.
	EndgameMaterial int
}

// Material point values per piece type, in pawn units.
var pieceValues = map[chess.PieceType]int{
	chess.Queen:  9,
	chess.Rook:   5,
	chess.Bishop: 3,
	chess.Knight: 3,
	chess.Pawn:   1,
}

// Classify assigns the objective and phase tags for a puzzle. MaterialGain
// is the generic fallback when no more specific rule matches.
func Classify(p *puzzle.Puzzle, cfg Config) (puzzle.Objective, puzzle.Phase) {
	return objective(p, cfg), phase(p, cfg)
}

// objective derives the puzzle goal. ScoreBefore is framed on the blunderer,
// so a positive value means the solver had been losing.
func objective(p *puzzle.Puzzle, cfg Config) puzzle.Objective {
	if p.Main.Termination == puzzle.TerminationMate {
		return puzzle.ObjectiveMate
	}

	before := p.ScoreBefore.Centipawns()

	switch {
	case before >= cfg.WinningCP:
		return puzzle.ObjectiveReversal
	case before <= -cfg.WinningCP:
		return puzzle.ObjectiveConsolidation
	default:
		return puzzle.ObjectiveMaterialGain
	}
}

// phase derives the game stage from ply count and remaining material.
func phase(p *puzzle.Puzzle, cfg Config) puzzle.Phase {
	if p.PlyIndex <= cfg.OpeningMaxPly {
		return puzzle.PhaseOpening
	}

	if materialFromFEN(p.InitialFEN) <= cfg.EndgameMaterial {
		return puzzle.PhaseEndgame
	}

	return puzzle.PhaseMiddlegame
}

// materialFromFEN sums the non-king material on the board. An unparseable
// FEN counts as full material, keeping the function total.
func materialFromFEN(fen string) int {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return fullMaterial()
	}

	game := chess.NewGame(fenOpt)
	total := 0

	for _, piece := range game.Position().Board().SquareMap() {
		total += pieceValues[piece.Type()]
	}

	return total
}

// fullMaterial is the material sum of the standard starting position.
func fullMaterial() int {
	// 2 sides x (9 + 2*5 + 2*3 + 2*3 + 8).
	return 2 * (9 + 2*5 + 2*3 + 2*3 + 8)
}
