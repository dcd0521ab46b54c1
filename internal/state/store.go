// Package state persists resumable analysis progress. Checkpoints are
// committed with atomic-replace discipline: a crash mid-commit leaves the
// previous checkpoint intact and readable.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tactician-chess/tactician/internal/stats"
	"github.com/tactician-chess/tactician/pkg/persist"
)

// checkpointBasename is the checkpoint file name without extension.
const checkpointBasename = "checkpoint"

// dirPerm is the permission for checkpoint directories.
const dirPerm = 0o750

// sourceHashBytes is how many bytes of the source digest name the directory.
const sourceHashBytes = 8

// Checkpoint records how far a run has progressed. Games with index at or
// below LastGameIndex are fully processed and their puzzles exported.
type Checkpoint struct {
	LastGameIndex int            `json:"last_game_index"`
	PuzzleCount   int            `json:"puzzle_count"`
	Timestamp     time.Time      `json:"timestamp"`
	Stats         stats.Snapshot `json:"stats"`
}

// DefaultDir returns the default checkpoint base directory
// (~/.tactician/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".tactician", "checkpoints")
}

// SourceHash computes a short hash of the input path for use as the
// per-source checkpoint directory name.
func SourceHash(sourcePath string) string {
	h := sha256.Sum256([]byte(sourcePath))

	return hex.EncodeToString(h[:sourceHashBytes])
}

// Store owns the checkpoint for one input source. Commit is serialized
// internally; multiple workers share a single Store.
type Store struct {
	mu        sync.Mutex
	dir       string
	persister *persist.Persister[Checkpoint]
}

// NewStore creates a store rooted at baseDir/sourceHash.
func NewStore(baseDir, sourceHash string) *Store {
	return &Store{
		dir:       filepath.Join(baseDir, sourceHash),
		persister: persist.NewPersister[Checkpoint](checkpointBasename, persist.NewJSONCodec()),
	}
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string { return s.dir }

// Load returns the last committed checkpoint, or a zero checkpoint when none
// has ever been committed.
func (s *Store) Load() (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cp Checkpoint

	err := s.persister.Load(s.dir, &cp)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, nil
	}

	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}

	return cp, nil
}

// Commit durably replaces the checkpoint. Any error here is fatal to the
// run; the previous checkpoint stays valid on disk.
func (s *Store) Commit(cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mkdirErr := os.MkdirAll(s.dir, dirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("create checkpoint dir: %w", mkdirErr)
	}

	saveErr := s.persister.Save(s.dir, &cp)
	if saveErr != nil {
		return fmt.Errorf("commit checkpoint: %w", saveErr)
	}

	return nil
}

// Clear removes any existing checkpoint, forcing the next run to start over.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.dir)
	if os.IsNotExist(statErr) {
		return nil
	}

	err := os.RemoveAll(s.dir)
	if err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	return nil
}
