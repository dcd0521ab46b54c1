// Package export serializes accepted puzzles to PGN and JSON Lines sinks.
// Writers append, so resumed runs extend prior output instead of clobbering it.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/tactician-chess/tactician/internal/puzzle"
)

// appendFlags open output files for appending, creating them when missing.
const appendFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY

// outputFilePerm is the permission for created output files.
const outputFilePerm = 0o644

// Sink receives accepted puzzles in game-then-ply order.
type Sink interface {
	Write(p *puzzle.Puzzle) error
	Close() error
}

// multiSink fans writes out to several sinks.
type multiSink struct {
	sinks []Sink
}

// Multi combines sinks; writes go to all of them, errors short-circuit.
func Multi(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

// Write implements Sink.
func (m *multiSink) Write(p *puzzle.Puzzle) error {
	for _, s := range m.sinks {
		err := s.Write(p)
		if err != nil {
			return err
		}
	}

	return nil
}

// Close implements Sink, closing every sink and returning the first error.
func (m *multiSink) Close() error {
	var firstErr error

	for _, s := range m.sinks {
		err := s.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// openAppend opens path for appending.
func openAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, appendFlags, outputFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", path, err)
	}

	return file, nil
}

// closerFor returns f's Close unless the writer is externally owned.
func closerFor(w io.Writer) func() error {
	c, ok := w.(io.Closer)
	if !ok {
		return func() error { return nil }
	}

	return c.Close
}
