package export_test

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tactician-chess/tactician/internal/engine"
	"github.com/tactician-chess/tactician/internal/export"
	"github.com/tactician-chess/tactician/internal/puzzle"
)

// backRankFEN is a position where white mates in one with Ra8#.
const backRankFEN = "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1"

func matePuzzle() *puzzle.Puzzle {
	return &puzzle.Puzzle{
		ID:          uuid.MustParse("c2a84a66-9a0e-5a3b-8c5d-1f2e3d4c5b6a"),
		InitialFEN:  backRankFEN,
		SolverColor: chess.White,
		PlyIndex:    30,
		ScoreBefore: engine.Cp(40),
		ScoreAfter:  engine.MateIn(-1),
		Main: puzzle.Variant{
			Moves: []puzzle.AnnotatedMove{
				{UCI: "a1a8", Score: engine.MateIn(1)},
			},
			Termination: puzzle.TerminationMate,
			BranchPly:   -1,
		},
		Objective: puzzle.ObjectiveMate,
		Phase:     puzzle.PhaseEndgame,
		Source: puzzle.GameRef{
			Index: 7,
			White: "Adams",
			Black: "Baker",
			Date:  "2026.08.26",
			Event: "Club Championship",
		},
	}
}

func TestPGNWriter(t *testing.T) {
	t.Parallel()

	var buf strings.Builder

	pw := export.NewPGNWriter(&buf)
	require.NoError(t, pw.Write(matePuzzle()))
	require.NoError(t, pw.Close())

	out := buf.String()
	assert.Contains(t, out, `[FEN "`+backRankFEN+`"]`)
	assert.Contains(t, out, `[SetUp "1"]`)
	assert.Contains(t, out, `[White "Adams"]`)
	assert.Contains(t, out, `[Objective "Mate"]`)
	assert.Contains(t, out, `[Phase "Endgame"]`)
	assert.Contains(t, out, `[SourcePly "31"]`)
	assert.Contains(t, out, "Ra8#", "the UCI main line must render as SAN movetext")
}

func TestPGNWriter_AlternatesBecomeVariationTags(t *testing.T) {
	t.Parallel()

	p := matePuzzle()
	p.Alternates = []puzzle.Variant{{
		Moves: []puzzle.AnnotatedMove{
			{UCI: "a1a7", Score: engine.Cp(500)},
			{UCI: "g8h8", Score: engine.Cp(500)},
		},
		Termination: puzzle.TerminationStabilized,
		BranchPly:   0,
	}}

	var buf strings.Builder

	pw := export.NewPGNWriter(&buf)
	require.NoError(t, pw.Write(p))

	assert.Contains(t, buf.String(), `[Variation1 "a1a7 g8h8"]`)
}

func TestPGNWriter_IllegalMoveErrors(t *testing.T) {
	t.Parallel()

	p := matePuzzle()
	p.Main.Moves[0].UCI = "a1h8"

	pw := export.NewPGNWriter(&strings.Builder{})
	assert.Error(t, pw.Write(p))
}

func TestJSONLWriter(t *testing.T) {
	t.Parallel()

	var buf strings.Builder

	jw := export.NewJSONLWriter(&buf)
	require.NoError(t, jw.Write(matePuzzle()))
	require.NoError(t, jw.Write(matePuzzle()))
	require.NoError(t, jw.Close())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var rec struct {
		ID          string   `json:"id"`
		FEN         string   `json:"fen"`
		Solver      string   `json:"solver"`
		Objective   string   `json:"objective"`
		Phase       string   `json:"phase"`
		MainLine    []string `json:"main_line"`
		Termination string   `json:"termination"`
		Source      struct {
			GameIndex int    `json:"game_index"`
			Ply       int    `json:"ply"`
			White     string `json:"white"`
		} `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))

	assert.Equal(t, backRankFEN, rec.FEN)
	assert.Equal(t, "White", rec.Solver)
	assert.Equal(t, "Mate", rec.Objective)
	assert.Equal(t, []string{"a1a8"}, rec.MainLine)
	assert.Equal(t, "mate", rec.Termination)
	assert.Equal(t, 7, rec.Source.GameIndex)
	assert.Equal(t, 30, rec.Source.Ply)
	assert.Equal(t, "Adams", rec.Source.White)
}

func TestJSONLWriter_OutputMatchesSchema(t *testing.T) {
	t.Parallel()

	p := matePuzzle()
	p.Alternates = []puzzle.Variant{{
		Moves:       []puzzle.AnnotatedMove{{UCI: "a1a7", Score: engine.Cp(500)}},
		Termination: puzzle.TerminationStabilized,
		BranchPly:   0,
	}}

	var buf strings.Builder

	jw := export.NewJSONLWriter(&buf)
	require.NoError(t, jw.Write(p))

	schema := gojsonschema.NewStringLoader(export.JSONLSchema)
	doc := gojsonschema.NewStringLoader(strings.TrimRight(buf.String(), "\n"))

	result, err := gojsonschema.Validate(schema, doc)
	require.NoError(t, err)
	assert.True(t, result.Valid(), "schema violations: %v", result.Errors())
}

// failSink errors on every operation.
type failSink struct{}

func (failSink) Write(*puzzle.Puzzle) error { return errors.New("sink full") }
func (failSink) Close() error               { return errors.New("close failed") }

// countSink records writes and closes.
type countSink struct {
	writes int
	closes int
}

func (c *countSink) Write(*puzzle.Puzzle) error { c.writes++; return nil }
func (c *countSink) Close() error               { c.closes++; return nil }

func TestMulti_FansOut(t *testing.T) {
	t.Parallel()

	first := &countSink{}
	second := &countSink{}
	sink := export.Multi(first, second)

	require.NoError(t, sink.Write(matePuzzle()))
	require.NoError(t, sink.Close())

	assert.Equal(t, 1, first.writes)
	assert.Equal(t, 1, second.writes)
	assert.Equal(t, 1, first.closes)
	assert.Equal(t, 1, second.closes)
}

func TestMulti_WriteErrorShortCircuits(t *testing.T) {
	t.Parallel()

	last := &countSink{}
	sink := export.Multi(failSink{}, last)

	assert.Error(t, sink.Write(matePuzzle()))
	assert.Zero(t, last.writes)
}

func TestMulti_CloseClosesAllDespiteError(t *testing.T) {
	t.Parallel()

	last := &countSink{}
	sink := export.Multi(failSink{}, last)

	assert.Error(t, sink.Close())
	assert.Equal(t, 1, last.closes, "a failing sink must not prevent closing the rest")
}

func TestOpenJSONL_AppendsAcrossOpens(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/puzzles.jsonl"

	first, err := export.OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, first.Write(matePuzzle()))
	require.NoError(t, first.Close())

	second, err := export.OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, second.Write(matePuzzle()))
	require.NoError(t, second.Close())

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, 2, strings.Count(string(data), "\n"), "reopening must append, not truncate")
}
