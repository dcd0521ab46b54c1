package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tactician-chess/tactician/internal/puzzle"
)

// JSONLWriter emits one JSON object per puzzle, one per line.
type JSONLWriter struct {
	enc   *json.Encoder
	close func() error
}

// NewJSONLWriter wraps an arbitrary writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w), close: closerFor(w)}
}

// OpenJSONL opens (or creates) a JSONL file in append mode.
func OpenJSONL(path string) (*JSONLWriter, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	return NewJSONLWriter(file), nil
}

// jsonVariant mirrors puzzle.Variant for serialization.
type jsonVariant struct {
	Moves       []string `json:"moves"`
	Termination string   `json:"termination"`
	BranchPly   int      `json:"branch_ply"`
}

// jsonPuzzle is the wire form of an accepted puzzle.
type jsonPuzzle struct {
	ID          string        `json:"id"`
	FEN         string        `json:"fen"`
	Solver      string        `json:"solver"`
	Objective   string        `json:"objective"`
	Phase       string        `json:"phase"`
	MainLine    []string      `json:"main_line"`
	Termination string        `json:"termination"`
	Alternates  []jsonVariant `json:"alternates,omitempty"`
	Source      jsonSource    `json:"source"`
}

// jsonSource points back at the originating game.
type jsonSource struct {
	GameIndex int    `json:"game_index"`
	Ply       int    `json:"ply"`
	White     string `json:"white,omitempty"`
	Black     string `json:"black,omitempty"`
	Date      string `json:"date,omitempty"`
	Event     string `json:"event,omitempty"`
}

// Write implements Sink.
func (jw *JSONLWriter) Write(p *puzzle.Puzzle) error {
	rec := jsonPuzzle{
		ID:          p.ID.String(),
		FEN:         p.InitialFEN,
		Solver:      p.SolverColor.Name(),
		Objective:   string(p.Objective),
		Phase:       string(p.Phase),
		MainLine:    uciMoves(p.Main),
		Termination: string(p.Main.Termination),
		Source: jsonSource{
			GameIndex: p.Source.Index,
			Ply:       p.PlyIndex,
			White:     p.Source.White,
			Black:     p.Source.Black,
			Date:      p.Source.Date,
			Event:     p.Source.Event,
		},
	}

	for _, alt := range p.Alternates {
		rec.Alternates = append(rec.Alternates, jsonVariant{
			Moves:       uciMoves(alt),
			Termination: string(alt.Termination),
			BranchPly:   alt.BranchPly,
		})
	}

	err := jw.enc.Encode(rec)
	if err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}

	return nil
}

// Close implements Sink.
func (jw *JSONLWriter) Close() error { return jw.close() }

func uciMoves(v puzzle.Variant) []string {
	moves := make([]string, len(v.Moves))
	for i, m := range v.Moves {
		moves[i] = m.UCI
	}

	return moves
}
