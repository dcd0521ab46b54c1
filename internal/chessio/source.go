// Package chessio reads game records from PGN streams. Malformed games are
// counted and skipped; one broken record never aborts a whole run.
package chessio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/notnil/chess"
)

// maxLineBytes bounds a single PGN line; some exports carry very long
// comment lines.
const maxLineBytes = 1 << 20

// Record is one game with its position in the source sequence. Indexes are
// 1-based and count every record in the stream, including skipped ones, so
// checkpoint indexes stay stable across runs.
type Record struct {
	Index int
	Game  *chess.Game
}

// Ref summarizes a record's header metadata.
type Ref struct {
	White string
	Black string
	Date  string
	Event string
}

// Headers extracts common tag pairs from the record's game.
func (r *Record) Headers() Ref {
	return Ref{
		White: tagValue(r.Game, "White"),
		Black: tagValue(r.Game, "Black"),
		Date:  tagValue(r.Game, "Date"),
		Event: tagValue(r.Game, "Event"),
	}
}

func tagValue(game *chess.Game, key string) string {
	tp := game.GetTagPair(key)
	if tp == nil {
		return ""
	}

	return tp.Value
}

// Source streams games out of a PGN reader. Each game chunk is decoded
// independently, so a single unparseable record is skipped rather than
// poisoning the rest of the stream.
type Source struct {
	lines  *bufio.Scanner
	closer io.Closer
	logger *slog.Logger

	pending string // First header line of the next chunk, already consumed.
	eof     bool

	index   int
	skipped atomic.Int64
}

// NewSource wraps a PGN reader.
func NewSource(r io.Reader, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	return &Source{
		lines:  lines,
		logger: logger,
	}
}

// Open opens a PGN file as a Source. Close releases the file handle.
func Open(path string, logger *slog.Logger) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pgn %q: %w", path, err)
	}

	src := NewSource(file, logger)
	src.closer = file

	return src, nil
}

// Next returns the next readable game record, skipping malformed ones.
// io.EOF signals the end of the stream.
func (s *Source) Next() (*Record, error) {
	for {
		chunk, err := s.nextChunk()
		if err != nil {
			return nil, err
		}

		s.index++

		game, parseErr := decodeGame(chunk)
		if parseErr != nil {
			s.skipped.Add(1)
			s.logger.Warn("skipping malformed game", "index", s.index, "error", parseErr)

			continue
		}

		return &Record{Index: s.index, Game: game}, nil
	}
}

// nextChunk accumulates lines until the start of the following game's tag
// section or end of stream. A chunk boundary is a "[" line that appears
// after movetext has been seen.
func (s *Source) nextChunk() (string, error) {
	if s.eof && s.pending == "" {
		return "", io.EOF
	}

	var sb strings.Builder

	sawMovetext := false

	if s.pending != "" {
		sb.WriteString(s.pending)
		sb.WriteByte('\n')
		s.pending = ""
	}

	for s.lines.Scan() {
		line := s.lines.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && sawMovetext {
			s.pending = line

			return sb.String(), nil
		}

		if trimmed != "" && !strings.HasPrefix(trimmed, "[") {
			sawMovetext = true
		}

		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	s.eof = true

	scanErr := s.lines.Err()
	if scanErr != nil {
		return "", fmt.Errorf("read pgn: %w", scanErr)
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", io.EOF
	}

	return sb.String(), nil
}

// errEmptyGame rejects records that parse but contain no moves.
var errEmptyGame = errors.New("game has no moves")

// decodeGame parses one PGN chunk into a game.
func decodeGame(chunk string) (*chess.Game, error) {
	pgnOpt, err := chess.PGN(strings.NewReader(chunk))
	if err != nil {
		return nil, fmt.Errorf("parse pgn: %w", err)
	}

	game := chess.NewGame(pgnOpt)
	if len(game.Moves()) == 0 {
		return nil, errEmptyGame
	}

	return game, nil
}

// Skipped returns how many records were dropped as malformed. It is safe
// to call while another goroutine is consuming Next.
func (s *Source) Skipped() int { return int(s.skipped.Load()) }

// Close releases the underlying file, when the source owns one.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}
