// Package stats accumulates run statistics and renders end-of-run summaries.
package stats

import (
	"sync"
	"time"
)

// Snapshot is the serializable form of a run's statistics. It rides along
// inside checkpoints so counters survive interrupted runs.
type Snapshot struct {
	Games      int `json:"games"`
	Skipped    int `json:"skipped"`
	Candidates int `json:"candidates"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`

	Objectives map[string]int `json:"objectives"`
	Phases     map[string]int `json:"phases"`
	Rejections map[string]int `json:"rejections"`

	// Elapsed is cumulative processing time across resumed runs.
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Run is a thread-safe statistics accumulator.
type Run struct {
	mu    sync.Mutex
	start time.Time
	prior time.Duration

	games      int
	skipped    int
	candidates int
	accepted   int
	rejected   int

	objectives map[string]int
	phases     map[string]int
	rejections map[string]int
}

// NewRun creates an empty accumulator starting now.
func NewRun() *Run {
	return &Run{
		start:      time.Now(),
		objectives: make(map[string]int),
		phases:     make(map[string]int),
		rejections: make(map[string]int),
	}
}

// FromSnapshot restores an accumulator from a checkpointed snapshot; the
// prior elapsed time keeps counting from where the interrupted run stopped.
func FromSnapshot(snap Snapshot) *Run {
	run := NewRun()
	run.games = snap.Games
	run.skipped = snap.Skipped
	run.candidates = snap.Candidates
	run.accepted = snap.Accepted
	run.rejected = snap.Rejected
	run.prior = snap.Elapsed

	for k, v := range snap.Objectives {
		run.objectives[k] = v
	}

	for k, v := range snap.Phases {
		run.phases[k] = v
	}

	for k, v := range snap.Rejections {
		run.rejections[k] = v
	}

	return run
}

// AddGame counts one fully processed game.
func (r *Run) AddGame() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.games++
}

// AddSkipped counts malformed game records dropped by the source.
func (r *Run) AddSkipped(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.skipped += n
}

// AddCandidate counts one detected blunder candidate.
func (r *Run) AddCandidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.candidates++
}

// Accept counts an accepted puzzle under its objective and phase tags.
func (r *Run) Accept(objective, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accepted++
	r.objectives[objective]++
	r.phases[phase]++
}

// Reject counts a discarded candidate under its rejection reason.
func (r *Run) Reject(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rejected++
	r.rejections[reason]++
}

// Snapshot captures the current counters.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Games:      r.games,
		Skipped:    r.skipped,
		Candidates: r.candidates,
		Accepted:   r.accepted,
		Rejected:   r.rejected,
		Objectives: make(map[string]int, len(r.objectives)),
		Phases:     make(map[string]int, len(r.phases)),
		Rejections: make(map[string]int, len(r.rejections)),
		Elapsed:    r.prior + time.Since(r.start),
	}

	for k, v := range r.objectives {
		snap.Objectives[k] = v
	}

	for k, v := range r.phases {
		snap.Phases[k] = v
	}

	for k, v := range r.rejections {
		snap.Rejections[k] = v
	}

	return snap
}
