package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsReadTimeout bounds request header reads on the metrics listener.
const metricsReadTimeout = 10 * time.Second

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	GamesProcessed  prometheus.Counter
	CandidatesFound prometheus.Counter
	PuzzlesAccepted prometheus.Counter
	PuzzlesRejected *prometheus.CounterVec
	EngineQueries   prometheus.Histogram
	EngineRespawns  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics builds and registers the pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		GamesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tactician_games_processed_total",
			Help: "Games fully analyzed, including those yielding no puzzles.",
		}),
		CandidatesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tactician_blunder_candidates_total",
			Help: "Blunder candidates flagged by the detector.",
		}),
		PuzzlesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tactician_puzzles_accepted_total",
			Help: "Puzzles that passed the ambiguity filter and were exported.",
		}),
		PuzzlesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tactician_puzzles_rejected_total",
			Help: "Candidates rejected, labeled by reason.",
		}, []string{"reason"}),
		EngineQueries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tactician_engine_query_seconds",
			Help:    "Latency of individual engine evaluation queries.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		EngineRespawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tactician_engine_respawns_total",
			Help: "Engine processes respawned after a crash or stall.",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.GamesProcessed,
		m.CandidatesFound,
		m.PuzzlesAccepted,
		m.PuzzlesRejected,
		m.EngineQueries,
		m.EngineRespawns,
	)

	return m
}

// Serve exposes /metrics on addr until ctx is canceled. Intended to run in
// its own goroutine; listener errors are logged, never fatal to the run.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		<-ctx.Done()

		_ = server.Close()
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics listener failed", "addr", addr, "error", err)
	}
}
