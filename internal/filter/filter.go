// Package filter decides whether a candidate puzzle is unambiguous enough
// to grade a solver on.
package filter

import (
	"github.com/tactician-chess/tactician/internal/puzzle"
)

// Policy selects how first-move ambiguity is handled.
type Policy string

// Ambiguity policies.
const (
	// PolicyStrict rejects puzzles whose first solving move is not unique.
	PolicyStrict Policy = "strict"
	// PolicyLenient keeps ambiguous first moves as alternate variants.
	PolicyLenient Policy = "lenient"
)

// Reason explains a rejection. Reasons feed the run statistics.
type Reason string

// Rejection reasons.
const (
	ReasonAccepted  Reason = ""
	ReasonAmbiguous Reason = "ambiguous first move"
	ReasonStalemate Reason = "resolves by stalemate"
	ReasonUnforced  Reason = "advantage not held to completion"
)

// Config tunes the filter.
type Config struct {
	Policy Policy
	// AcceptCP is the advantage a non-mate main line must still hold at its
	// terminal position.
	AcceptCP int
}

// Apply inspects a puzzle and returns the (possibly trimmed) puzzle along
// with a rejection reason. A nil puzzle with a non-empty reason means the
// candidate is discarded.
func Apply(p *puzzle.Puzzle, cfg Config) (*puzzle.Puzzle, Reason) {
	if p.Main.Termination == puzzle.TerminationStalemate {
		return nil, ReasonStalemate
	}

	if p.Main.Termination != puzzle.TerminationMate && p.Main.TerminalScore().Centipawns() < cfg.AcceptCP {
		// The opponent's defensive resources clawed the advantage back: the
		// "forced" win was not forced to completion.
		return nil, ReasonUnforced
	}

	if p.FirstMoveAmbiguous() && cfg.Policy == PolicyStrict {
		return nil, ReasonAmbiguous
	}

	trimmed := *p
	trimmed.Alternates = keepResolved(p.Alternates, cfg.AcceptCP)

	return &trimmed, ReasonAccepted
}

// keepResolved drops alternates that do not themselves realize the
// advantage. The variant cap was already enforced during construction.
func keepResolved(alts []puzzle.Variant, acceptCP int) []puzzle.Variant {
	var out []puzzle.Variant

	for _, alt := range alts {
		if alt.Termination == puzzle.TerminationStalemate || alt.Termination == puzzle.TerminationLengthLimit {
			continue
		}

		if alt.Termination != puzzle.TerminationMate && alt.TerminalScore().Centipawns() < acceptCP {
			continue
		}

		out = append(out, alt)
	}

	return out
}
