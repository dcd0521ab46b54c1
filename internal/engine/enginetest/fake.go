// Package enginetest provides a scripted Evaluator double used by the
// detection, line-building and pipeline tests.
package enginetest

import (
	"context"
	"sort"
	"sync"

	"github.com/notnil/chess"

	"github.com/tactician-chess/tactician/internal/engine"
)

// Fake is a deterministic Evaluator scripted per position. Unscripted
// positions fall back to the lexicographically first legal move scored at
// zero centipawns, so unscripted plies never register as blunders.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]engine.Line
	errs      map[string]error

	// Queries records every analyzed FEN in call order.
	Queries []string
	// Closed counts Close calls.
	Closed int
}

// NewFake creates an empty scripted evaluator.
func NewFake() *Fake {
	return &Fake{
		responses: make(map[string][]engine.Line),
		errs:      make(map[string]error),
	}
}

// Script registers ranked lines for a position. Ranks are assigned from the
// argument order when unset.
func (f *Fake) Script(fen string, lines ...engine.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range lines {
		if lines[i].Rank == 0 {
			lines[i].Rank = i + 1
		}
	}

	f.responses[fen] = lines
}

// ScriptErr makes Analyze fail for a position.
func (f *Fake) ScriptErr(fen string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[fen] = err
}

// Analyze implements engine.Evaluator.
func (f *Fake) Analyze(_ context.Context, fen string, _, multiPV int) ([]engine.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Queries = append(f.Queries, fen)

	if err, ok := f.errs[fen]; ok {
		return nil, err
	}

	if lines, ok := f.responses[fen]; ok {
		if multiPV < len(lines) {
			lines = lines[:multiPV]
		}

		out := make([]engine.Line, len(lines))
		copy(out, lines)

		return out, nil
	}

	return fallbackLines(fen)
}

// fallbackLines scores the first legal move (by UCI order) at 0 centipawns.
func fallbackLines(fen string) ([]engine.Line, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return nil, engine.ErrUnanalyzable
	}

	game := chess.NewGame(fenOpt)

	moves := game.Position().ValidMoves()
	if len(moves) == 0 {
		return nil, engine.ErrUnanalyzable
	}

	ucis := make([]string, len(moves))
	for i, m := range moves {
		ucis[i] = m.String()
	}

	sort.Strings(ucis)

	return []engine.Line{{MoveUCI: ucis[0], Score: engine.Cp(0), Rank: 1}}, nil
}

// Close implements engine.Evaluator.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closed++

	return nil
}
