// Package puzzle defines the tactical puzzle data model shared by the
// detection, line-building, filtering and export stages.
package puzzle

import (
	"github.com/google/uuid"
	"github.com/notnil/chess"

	"github.com/tactician-chess/tactician/internal/engine"
)

// Termination states why a variant stopped growing.
type Termination string

// Variant termination reasons.
const (
	// TerminationMate marks a variant that ends in checkmate.
	TerminationMate Termination = "mate"
	// TerminationStabilized marks a variant whose advantage plateaued at or
	// above the acceptance threshold; further moves are technique, not tactics.
	TerminationStabilized Termination = "stabilized-advantage"
	// TerminationStalemate marks a variant that ran into stalemate. Such
	// variants realize no advantage and are rejected downstream.
	TerminationStalemate Termination = "stalemate"
	// TerminationLengthLimit marks a variant cut off at the maximum ply count
	// without resolving. A main line with this termination discards the puzzle.
	TerminationLengthLimit Termination = "length-limit"
)

// Objective classifies what the solver achieves.
type Objective string

// Puzzle objective categories.
const (
	ObjectiveMate          Objective = "Mate"
	ObjectiveMaterialGain  Objective = "MaterialGain"
	ObjectiveReversal      Objective = "Reversal"
	ObjectiveConsolidation Objective = "Consolidation"
)

// Phase classifies the game stage a puzzle was extracted from.
type Phase string

// Game phase categories.
const (
	PhaseOpening    Phase = "Opening"
	PhaseMiddlegame Phase = "Middlegame"
	PhaseEndgame    Phase = "Endgame"
)

// AnnotatedMove is a single move of a variant together with the evaluation
// recorded when the move was validated. The score is expressed from the
// solver's perspective.
type AnnotatedMove struct {
	// UCI is the move in coordinate notation (e.g. "e2e4", "a7a8q").
	UCI string
	// Score is the engine evaluation at the point the move was chosen.
	Score engine.Score
}

// Variant is an ordered move sequence from the puzzle's initial position.
type Variant struct {
	Moves       []AnnotatedMove
	Termination Termination
	// BranchPly is the index into Moves where this variant diverges from the
	// main line. Zero means the variant offers a different first solving move.
	// The main line itself carries BranchPly -1.
	BranchPly int
}

// Len returns the number of plies in the variant.
func (v Variant) Len() int { return len(v.Moves) }

// TerminalScore returns the evaluation annotated on the variant's last move.
// The zero Score is returned for an empty variant.
func (v Variant) TerminalScore() engine.Score {
	if len(v.Moves) == 0 {
		return engine.Score{}
	}

	return v.Moves[len(v.Moves)-1].Score
}

// GameRef points back to the game a puzzle was extracted from.
type GameRef struct {
	Index int
	White string
	Black string
	Date  string
	Event string
}

// Candidate is a transient record of a detected blunder. It lives only long
// enough to either produce a Puzzle or be discarded.
type Candidate struct {
	// PlyIndex is the zero-based index of the blunder move within the game.
	PlyIndex int
	// Before is the position the mover faced; Move is what they played.
	Before *chess.Position
	Move   *chess.Move
	// Mover is the side that blundered. The opposite side solves the puzzle.
	Mover chess.Color
	// ScoreBefore and ScoreAfter are both expressed as advantage of the
	// mover, scored before and after the move was made.
	ScoreBefore engine.Score
	ScoreAfter  engine.Score
}

// Solver returns the color that exploits the blunder.
func (c Candidate) Solver() chess.Color { return c.Mover.Other() }

// Swing returns the evaluation loss caused by the move, in centipawns.
func (c Candidate) Swing() int {
	return c.ScoreBefore.Centipawns() - c.ScoreAfter.Centipawns()
}

// Puzzle is an accepted tactical exercise. Immutable once it leaves the
// ambiguity filter.
type Puzzle struct {
	ID uuid.UUID
	// InitialFEN is the position the solver faces: the position immediately
	// after the blunder was played.
	InitialFEN string
	// SolverColor is the side to move in the initial position.
	SolverColor chess.Color
	// PlyIndex is the index of the blunder in the source game.
	PlyIndex int
	// ScoreBefore and ScoreAfter carry the detector's evaluation swing,
	// expressed as advantage of the side that blundered.
	ScoreBefore engine.Score
	ScoreAfter  engine.Score

	Main       Variant
	Alternates []Variant

	// EquivalentFirstMoves counts the within-epsilon alternatives to the
	// first solving move seen during analysis, whether or not they resolved
	// into full alternate variants.
	EquivalentFirstMoves int

	Objective Objective
	Phase     Phase
	Source    GameRef
}

// FirstMoveAmbiguous reports whether the solver had more than one equally
// good first move, i.e. the solver cannot be graded on move one.
func (p *Puzzle) FirstMoveAmbiguous() bool {
	if p.EquivalentFirstMoves > 0 {
		return true
	}

	for _, alt := range p.Alternates {
		if alt.BranchPly == 0 {
			return true
		}
	}

	return false
}
