package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Default engine process settings.
const (
	// DefaultQueryTimeout bounds a single evaluation request. A stalled
	// response is treated as an engine failure, never retried in place.
	DefaultQueryTimeout = 60 * time.Second
	// handshakeTimeout bounds the initial uci/uciok exchange.
	handshakeTimeout = 10 * time.Second
	// lineChanDepth buffers engine output so the reader goroutine never
	// blocks on a slow consumer mid-search.
	lineChanDepth = 256
)

// UCIConfig configures a UCI engine process.
type UCIConfig struct {
	// Path is the engine binary (e.g. "stockfish").
	Path string
	// Args are extra command line arguments, usually empty.
	Args []string
	// Threads and HashMB map to the standard UCI options of the same names.
	Threads int
	HashMB  int
	// QueryTimeout bounds each Analyze call. Zero means DefaultQueryTimeout.
	QueryTimeout time.Duration
}

// UCIEngine drives one engine process over the UCI text protocol. Requests
// are strictly sequential; the type is not safe for concurrent use.
type UCIEngine struct {
	cfg    UCIConfig
	logger *slog.Logger

	stdin io.Writer
	lines <-chan string
	kill  func()

	curMultiPV int
	dead       bool
}

// StartUCI spawns the engine process, performs the uci handshake and applies
// the configured options. The returned engine is ready for Analyze calls.
func StartUCI(cfg UCIConfig, logger *slog.Logger) (*UCIEngine, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}

	startErr := cmd.Start()
	if startErr != nil {
		return nil, fmt.Errorf("start engine %q: %w", cfg.Path, startErr)
	}

	kill := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	eng := newSession(stdin, stdout, kill, cfg, logger)

	handshakeErr := eng.handshake()
	if handshakeErr != nil {
		eng.markDead()

		return nil, handshakeErr
	}

	return eng, nil
}

// newSession wires a UCIEngine over raw reader/writer endpoints. Split out
// from StartUCI so the protocol logic is testable without a process.
func newSession(w io.Writer, r io.Reader, kill func(), cfg UCIConfig, logger *slog.Logger) *UCIEngine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}

	lines := make(chan string, lineChanDepth)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}

		close(lines)
	}()

	return &UCIEngine{
		cfg:        cfg,
		logger:     logger,
		stdin:      w,
		lines:      lines,
		kill:       kill,
		curMultiPV: 1,
	}
}

// handshake performs uci/uciok, applies options and waits for readyok.
func (e *UCIEngine) handshake() error {
	sendErr := e.send("uci")
	if sendErr != nil {
		return sendErr
	}

	waitErr := e.waitFor("uciok", handshakeTimeout)
	if waitErr != nil {
		return fmt.Errorf("uci handshake: %w", waitErr)
	}

	if e.cfg.Threads > 0 {
		_ = e.send(fmt.Sprintf("setoption name Threads value %d", e.cfg.Threads))
	}

	if e.cfg.HashMB > 0 {
		_ = e.send(fmt.Sprintf("setoption name Hash value %d", e.cfg.HashMB))
	}

	_ = e.send("ucinewgame")

	return e.sync()
}

// sync sends isready and waits for readyok.
func (e *UCIEngine) sync() error {
	sendErr := e.send("isready")
	if sendErr != nil {
		return sendErr
	}

	waitErr := e.waitFor("readyok", handshakeTimeout)
	if waitErr != nil {
		return fmt.Errorf("engine sync: %w", waitErr)
	}

	return nil
}

// Analyze implements Evaluator over the UCI protocol.
func (e *UCIEngine) Analyze(ctx context.Context, fen string, depth, multiPV int) ([]Line, error) {
	if e.dead {
		return nil, ErrEngineDown
	}

	if multiPV < 1 {
		multiPV = 1
	}

	if multiPV != e.curMultiPV {
		optErr := e.send(fmt.Sprintf("setoption name MultiPV value %d", multiPV))
		if optErr != nil {
			return nil, optErr
		}

		syncErr := e.sync()
		if syncErr != nil {
			e.markDead()

			return nil, ErrEngineDown
		}

		e.curMultiPV = multiPV
	}

	posErr := e.send("position fen " + fen)
	if posErr != nil {
		return nil, posErr
	}

	goErr := e.send(fmt.Sprintf("go depth %d", depth))
	if goErr != nil {
		return nil, goErr
	}

	return e.collect(ctx, multiPV)
}

// collect reads engine output until bestmove, keeping the deepest info line
// seen for each multipv rank.
func (e *UCIEngine) collect(ctx context.Context, multiPV int) ([]Line, error) {
	byRank := make(map[int]Line, multiPV)
	deadline := time.NewTimer(e.cfg.QueryTimeout)

	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			// The search is still running, so the session cannot be reused;
			// the cancellation itself must reach the caller undisguised.
			e.markDead()

			return nil, ctx.Err()
		case <-deadline.C:
			// A stalled search leaves the process in an unknown state; kill
			// it and let the respawning wrapper bring up a fresh one.
			e.markDead()
			e.logger.Warn("engine query timed out", "timeout", e.cfg.QueryTimeout)

			return nil, fmt.Errorf("%w: query timeout", ErrUnanalyzable)
		case line, ok := <-e.lines:
			if !ok {
				e.dead = true

				return nil, ErrEngineDown
			}

			if strings.HasPrefix(line, "bestmove") {
				return finishCollect(byRank, multiPV)
			}

			parsed, ok := parseInfoLine(line)
			if ok {
				byRank[parsed.Rank] = parsed
			}
		}
	}
}

// finishCollect orders collected lines by rank. An empty rank 1 means the
// engine produced no principal variation: the position is unanalyzable.
func finishCollect(byRank map[int]Line, multiPV int) ([]Line, error) {
	if _, ok := byRank[1]; !ok {
		return nil, fmt.Errorf("%w: no principal variation", ErrUnanalyzable)
	}

	out := make([]Line, 0, len(byRank))

	for rank := 1; rank <= multiPV; rank++ {
		ln, ok := byRank[rank]
		if !ok {
			break
		}

		out = append(out, ln)
	}

	return out, nil
}

// parseInfoLine extracts rank, score and first pv move from a UCI info line.
func parseInfoLine(line string) (Line, bool) {
	if !strings.HasPrefix(line, "info ") {
		return Line{}, false
	}

	fields := strings.Fields(line)
	out := Line{Rank: 1}
	haveScore := false
	haveMove := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				rank, err := strconv.Atoi(fields[i+1])
				if err == nil && rank > 0 {
					out.Rank = rank
				}

				i++
			}
		case "score":
			if i+2 < len(fields) {
				sc, ok := parseScore(fields[i+1], fields[i+2])
				if ok {
					out.Score = sc
					haveScore = true
				}

				i += 2
			}
		case "pv":
			if i+1 < len(fields) {
				out.MoveUCI = fields[i+1]
				haveMove = true
			}

			i = len(fields) // pv is always the trailing field group
		}
	}

	return out, haveScore && haveMove
}

// parseScore converts a UCI score pair ("cp 35" or "mate 3") to a Score.
// Mate distances arrive in full moves and are converted to plies.
func parseScore(kind, value string) (Score, bool) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return Score{}, false
	}

	switch kind {
	case "cp":
		return Cp(n), true
	case "mate":
		return MateIn(mateMovesToPlies(n)), true
	default:
		return Score{}, false
	}
}

// mateMovesToPlies converts a UCI mate distance (full moves, signed) to a
// ply distance. "mate 0" means the side to move is already mated.
func mateMovesToPlies(moves int) int {
	switch {
	case moves > 0:
		return 2*moves - 1
	case moves < 0:
		return 2 * moves
	default:
		return -1
	}
}

// send writes one protocol line to the engine.
func (e *UCIEngine) send(cmd string) error {
	_, err := io.WriteString(e.stdin, cmd+"\n")
	if err != nil {
		e.dead = true

		return ErrEngineDown
	}

	return nil
}

// waitFor discards output until the given token line appears.
func (e *UCIEngine) waitFor(token string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-deadline.C:
			return fmt.Errorf("%w: waiting for %q", ErrEngineDown, token)
		case line, ok := <-e.lines:
			if !ok {
				return ErrEngineDown
			}

			if line == token || strings.HasPrefix(line, token) {
				return nil
			}
		}
	}
}

// markDead kills the process and poisons the session.
func (e *UCIEngine) markDead() {
	if e.dead {
		return
	}

	e.dead = true

	if e.kill != nil {
		e.kill()
	}

	// The reader goroutine may be parked on a full buffer; drain whatever
	// the dying process already wrote so it can reach EOF.
	go func() {
		for range e.lines {
		}
	}()
}

// Close sends quit and reaps the process.
func (e *UCIEngine) Close() error {
	if e.dead {
		return nil
	}

	_ = e.send("quit")
	e.markDead()

	return nil
}
