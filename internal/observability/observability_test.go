package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestDiscardLoggerIsUsable(t *testing.T) {
	t.Parallel()

	logger := Discard()
	require.NotNil(t, logger)
	logger.Info("goes nowhere")
}

func TestNewMetrics_CountersWork(t *testing.T) {
	t.Parallel()

	m := NewMetrics()

	m.GamesProcessed.Inc()
	m.GamesProcessed.Inc()
	m.PuzzlesRejected.WithLabelValues("ambiguous first move").Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GamesProcessed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PuzzlesRejected.WithLabelValues("ambiguous first move")))
}

func TestNewMetrics_RegistriesAreIndependent(t *testing.T) {
	t.Parallel()

	first := NewMetrics()
	second := NewMetrics()

	first.PuzzlesAccepted.Inc()

	assert.Zero(t, testutil.ToFloat64(second.PuzzlesAccepted))
}

func TestInitTracing_EmptyEndpointIsNoop(t *testing.T) {
	t.Parallel()

	shutdown, err := InitTracing(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, shutdown)

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
