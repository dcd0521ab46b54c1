package state

import "sync"

// Tracker turns out-of-order game completions into a contiguous watermark.
// A worker finishing game N+1 before game N must not let the checkpoint
// advance past N; the watermark only moves once every earlier game is done.
type Tracker struct {
	mu        sync.Mutex
	watermark int
	done      map[int]struct{}
}

// NewTracker creates a tracker whose watermark starts at the last already
// committed game index.
func NewTracker(committed int) *Tracker {
	return &Tracker{
		watermark: committed,
		done:      make(map[int]struct{}),
	}
}

// Complete marks a game index as fully processed and returns the new
// contiguous watermark.
func (t *Tracker) Complete(index int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done[index] = struct{}{}

	for {
		_, ok := t.done[t.watermark+1]
		if !ok {
			break
		}

		delete(t.done, t.watermark+1)
		t.watermark++
	}

	return t.watermark
}

// Watermark returns the highest index through which every game is complete.
func (t *Tracker) Watermark() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.watermark
}
