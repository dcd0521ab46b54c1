package engine

// mateCap is the saturating centipawn magnitude used to order mate scores
// above any material evaluation. A mate in one ply maps to mateCap-1.
const mateCap = 32000

// Score is an engine evaluation: either a centipawn value or a mate distance
// in plies. A nonzero MatePlies dominates CP entirely. Scores are always
// relative to a stated perspective; callers re-frame with Negate when the
// perspective flips.
type Score struct {
	// CP is the centipawn evaluation. Ignored when MatePlies is nonzero.
	CP int
	// MatePlies is the signed distance to mate in plies: positive when the
	// scored side delivers mate, negative when it gets mated.
	MatePlies int
}

// Cp builds a centipawn score.
func Cp(v int) Score { return Score{CP: v} }

// MateIn builds a mate score at the given ply distance.
func MateIn(plies int) Score { return Score{MatePlies: plies} }

// IsMate reports whether the score is a mate distance.
func (s Score) IsMate() bool { return s.MatePlies != 0 }

// Negate flips the score to the opposite side's perspective.
func (s Score) Negate() Score {
	return Score{CP: -s.CP, MatePlies: -s.MatePlies}
}

// Centipawns collapses the score to a single comparable centipawn value.
// Mate distances saturate toward ±mateCap so that any mate dominates any
// material advantage and nearer mates dominate farther ones.
func (s Score) Centipawns() int {
	switch {
	case s.MatePlies > 0:
		return mateCap - s.MatePlies
	case s.MatePlies < 0:
		return -mateCap - s.MatePlies
	default:
		return s.CP
	}
}

// Diff returns s minus other in saturated centipawns.
func (s Score) Diff(other Score) int {
	return s.Centipawns() - other.Centipawns()
}

// Better reports whether s is strictly preferable to other for the side the
// scores are framed on.
func (s Score) Better(other Score) bool {
	return s.Centipawns() > other.Centipawns()
}
