package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/notnil/chess"

	"github.com/tactician-chess/tactician/internal/puzzle"
)

// PGNWriter emits each puzzle as a standalone PGN game whose movetext is the
// main solution line. Alternate variants are carried in Variation tag pairs
// as space-joined UCI sequences.
type PGNWriter struct {
	w     io.Writer
	close func() error
}

// NewPGNWriter wraps an arbitrary writer.
func NewPGNWriter(w io.Writer) *PGNWriter {
	return &PGNWriter{w: w, close: closerFor(w)}
}

// OpenPGN opens (or creates) a PGN file in append mode.
func OpenPGN(path string) (*PGNWriter, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	return NewPGNWriter(file), nil
}

// Write implements Sink.
func (pw *PGNWriter) Write(p *puzzle.Puzzle) error {
	text, err := encodePGN(p)
	if err != nil {
		return err
	}

	_, writeErr := io.WriteString(pw.w, text+"\n")
	if writeErr != nil {
		return fmt.Errorf("write pgn: %w", writeErr)
	}

	return nil
}

// Close implements Sink.
func (pw *PGNWriter) Close() error { return pw.close() }

// encodePGN rebuilds the solution as a game from the initial position and
// lets the chess library produce standard movetext.
func encodePGN(p *puzzle.Puzzle) (string, error) {
	fenOpt, err := chess.FEN(p.InitialFEN)
	if err != nil {
		return "", fmt.Errorf("puzzle fen: %w", err)
	}

	game := chess.NewGame(fenOpt)

	for _, am := range p.Main.Moves {
		move, decodeErr := chess.UCINotation{}.Decode(game.Position(), am.UCI)
		if decodeErr != nil {
			return "", fmt.Errorf("decode move %q: %w", am.UCI, decodeErr)
		}

		moveErr := game.Move(move)
		if moveErr != nil {
			return "", fmt.Errorf("replay move %q: %w", am.UCI, moveErr)
		}
	}

	game.AddTagPair("Event", "Tactician puzzle "+p.ID.String())
	game.AddTagPair("White", p.Source.White)
	game.AddTagPair("Black", p.Source.Black)
	game.AddTagPair("Date", p.Source.Date)
	game.AddTagPair("FEN", p.InitialFEN)
	game.AddTagPair("SetUp", "1")
	game.AddTagPair("Objective", string(p.Objective))
	game.AddTagPair("Phase", string(p.Phase))
	game.AddTagPair("SourcePly", fmt.Sprintf("%d", p.PlyIndex+1))

	for i, alt := range p.Alternates {
		game.AddTagPair(fmt.Sprintf("Variation%d", i+1), joinUCI(alt))
	}

	return game.String(), nil
}

// joinUCI flattens a variant's moves to a space-separated UCI list.
func joinUCI(v puzzle.Variant) string {
	moves := make([]string, len(v.Moves))
	for i, m := range v.Moves {
		moves[i] = m.UCI
	}

	return strings.Join(moves, " ")
}
