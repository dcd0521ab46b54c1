package puzzle_test

import (
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"

	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/puzzle"
)

func TestCandidate_SolverAndSwing(t *testing.T) {
	t.Parallel()

	cand := puzzle.Candidate{
		Mover:       chess.White,
		ScoreBefore: engine.Cp(120),
		ScoreAfter:  engine.Cp(-180),
	}

	assert.Equal(t, chess.Black, cand.Solver())
	assert.Equal(t, 300, cand.Swing())
}

func TestCandidate_SwingSaturatesOnMate(t *testing.T) {
	t.Parallel()

	cand := puzzle.Candidate{
		Mover:       chess.Black,
		ScoreBefore: engine.Cp(50),
		ScoreAfter:  engine.MateIn(-2),
	}

	assert.Greater(t, cand.Swing(), 30000)
}

func TestVariant_TerminalScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, engine.Score{}, puzzle.Variant{}.TerminalScore())

	v := puzzle.Variant{Moves: []puzzle.AnnotatedMove{
		{UCI: "e2e4", Score: engine.Cp(100)},
		{UCI: "e7e5", Score: engine.Cp(250)},
	}}
	assert.Equal(t, engine.Cp(250), v.TerminalScore())
	assert.Equal(t, 2, v.Len())
}

func TestPuzzle_FirstMoveAmbiguous(t *testing.T) {
	t.Parallel()

	p := &puzzle.Puzzle{Alternates: []puzzle.Variant{{BranchPly: 2}}}
	assert.False(t, p.FirstMoveAmbiguous())

	p.Alternates = append(p.Alternates, puzzle.Variant{BranchPly: 0})
	assert.True(t, p.FirstMoveAmbiguous())

	// Equivalents counted during analysis make the first move ambiguous
	// even when no alternate variant survived.
	unresolved := &puzzle.Puzzle{EquivalentFirstMoves: 1}
	assert.True(t, unresolved.FirstMoveAmbiguous())
}
