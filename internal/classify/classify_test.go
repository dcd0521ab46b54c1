package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tactician-chess/tactician/internal/classify"
	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/puzzle"
)

var testConfig = classify.Config{
	WinningCP:       200,
	OpeningMaxPly:   20,
	EndgameMaterial: 14,
}

// Sparse board: two rooks and a few pawns, 13 material points.
const endgameFEN = "4k3/1r3pp1/8/8/8/8/5PP1/R3K3 w - - 0 40"

// Heavy board: queens and most pieces still on.
const middlegameFEN = "r1bq1rk1/ppp2ppp/2n2n2/3pp3/3PP3/2N2N2/PPP2PPP/R1BQ1RK1 w - - 0 10"

func TestClassify_Objective(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		termination puzzle.Termination
		scoreBefore engine.Score
		want        puzzle.Objective
	}{
		{
			name:        "mate line",
			termination: puzzle.TerminationMate,
			scoreBefore: engine.Cp(0),
			want:        puzzle.ObjectiveMate,
		},
		{
			name:        "blunderer was winning",
			termination: puzzle.TerminationStabilized,
			scoreBefore: engine.Cp(350),
			want:        puzzle.ObjectiveReversal,
		},
		{
			name:        "blunderer was already losing",
			termination: puzzle.TerminationStabilized,
			scoreBefore: engine.Cp(-400),
			want:        puzzle.ObjectiveConsolidation,
		},
		{
			name:        "balanced position",
			termination: puzzle.TerminationStabilized,
			scoreBefore: engine.Cp(30),
			want:        puzzle.ObjectiveMaterialGain,
		},
		{
			name:        "mate beats reversal",
			termination: puzzle.TerminationMate,
			scoreBefore: engine.Cp(500),
			want:        puzzle.ObjectiveMate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &puzzle.Puzzle{
				InitialFEN:  middlegameFEN,
				PlyIndex:    30,
				ScoreBefore: tt.scoreBefore,
				Main:        puzzle.Variant{Termination: tt.termination},
			}

			objective, _ := classify.Classify(p, testConfig)

			assert.Equal(t, tt.want, objective)
		})
	}
}

func TestClassify_Phase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fen      string
		plyIndex int
		want     puzzle.Phase
	}{
		{name: "early ply is opening", fen: middlegameFEN, plyIndex: 12, want: puzzle.PhaseOpening},
		{name: "boundary ply is opening", fen: middlegameFEN, plyIndex: 20, want: puzzle.PhaseOpening},
		{name: "heavy material is middlegame", fen: middlegameFEN, plyIndex: 40, want: puzzle.PhaseMiddlegame},
		{name: "sparse material is endgame", fen: endgameFEN, plyIndex: 78, want: puzzle.PhaseEndgame},
		{name: "unparseable fen counts as full material", fen: "garbage", plyIndex: 60, want: puzzle.PhaseMiddlegame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &puzzle.Puzzle{
				InitialFEN: tt.fen,
				PlyIndex:   tt.plyIndex,
				Main:       puzzle.Variant{Termination: puzzle.TerminationStabilized},
			}

			_, phase := classify.Classify(p, testConfig)

			assert.Equal(t, tt.want, phase)
		})
	}
}
