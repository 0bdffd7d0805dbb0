package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the notebook's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	CellRuns         *prometheus.CounterVec
	CellDuration     prometheus.Histogram
	AccessDecisions  *prometheus.CounterVec
	ChunksSent       prometheus.Counter
	ChunksWritten    prometheus.Counter
	BytesWritten     prometheus.Counter
	TransferFailures *prometheus.CounterVec
	SessionRebuilds  prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CellRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbook_cell_runs_total",
			Help: "Cell executions by final status",
		},
		[]string{"status"},
	)

	m.CellDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellbook_cell_duration_seconds",
			Help:    "Engine time per cell execution",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.AccessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbook_file_access_decisions_total",
			Help: "External file access requests by outcome",
		},
		[]string{"decision"},
	)

	m.ChunksSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellbook_transfer_chunks_sent_total",
			Help: "saveFileChunk messages sent by the sandbox",
		},
	)

	m.ChunksWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellbook_transfer_chunks_written_total",
			Help: "saveFileChunk messages written by the host",
		},
	)

	m.BytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellbook_transfer_bytes_written_total",
			Help: "Bytes written to export destinations",
		},
	)

	m.TransferFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbook_transfer_failures_total",
			Help: "Failed export operations by stage",
		},
		[]string{"op"},
	)

	m.SessionRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellbook_session_rebuilds_total",
			Help: "Engine teardowns followed by a bootstrap replay",
		},
	)

	m.registry.MustRegister(
		m.CellRuns,
		m.CellDuration,
		m.AccessDecisions,
		m.ChunksSent,
		m.ChunksWritten,
		m.BytesWritten,
		m.TransferFailures,
		m.SessionRebuilds,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
