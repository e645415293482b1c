// Package metrics exposes indexing and retrieval metrics to Prometheus.
// Metrics registers into a caller-provided registry so tests stay hermetic.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/search"
)

const namespace = "notebrain"

// Query outcomes.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeError    = "error"
)

// Metrics holds every Prometheus collector owned by notebrain. It
// implements index.Observer and search.Observer.
type Metrics struct {
	// cyclesTotal counts completed indexing cycles, partitioned by kind:
	// "incremental" or "full".
	cyclesTotal *prometheus.CounterVec

	// documentsTotal counts per-document outcomes across cycles.
	documentsTotal *prometheus.CounterVec

	chunksEmbeddedTotal prometheus.Counter
	embeddingCallsTotal prometheus.Counter
	reconciledTotal     prometheus.Counter
	cycleDuration       prometheus.Histogram
	lastCycle           prometheus.Gauge

	// queriesTotal counts retrievals by outcome: "ok", "degraded" or "error".
	queriesTotal *prometheus.CounterVec

	// queryErrorsTotal partitions failed retrievals by error code.
	queryErrorsTotal *prometheus.CounterVec

	// degradedTotal counts degraded retrievals by the path that failed.
	degradedTotal *prometheus.CounterVec

	queryDuration    prometheus.Histogram
	zeroResultsTotal prometheus.Counter
	expandedTotal    prometheus.Counter

	// entries is the size of each store, by store: "metadata", "lexical"
	// or "vector".
	entries    *prometheus.GaugeVec
	documents  prometheus.Gauge
	consistent prometheus.Gauge
}

var (
	_ index.Observer  = (*Metrics)(nil)
	_ search.Observer = (*Metrics)(nil)
)

// New registers all metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "cycles_total",
			Help:      "Completed indexing cycles, partitioned by kind.",
		}, []string{"kind"}),

		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_total",
			Help:      "Per-document outcomes of indexing cycles.",
		}, []string{"outcome"}),

		chunksEmbeddedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_embedded_total",
			Help:      "Chunks sent to the embedding service.",
		}),

		embeddingCallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "embedding_calls_total",
			Help:      "Embedding requests made by indexing cycles.",
		}),

		reconciledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "reconciled_total",
			Help:      "Index entries repaired by consistency reconciliation.",
		}),

		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of indexing cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),

		lastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last indexing cycle finished.",
		}),

		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Retrieval requests, partitioned by outcome.",
		}, []string{"outcome"}),

		queryErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "errors_total",
			Help:      "Failed retrieval requests, partitioned by error code.",
		}, []string{"code"}),

		degradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Retrievals answered by one path, partitioned by the failed path.",
		}, []string{"path"}),

		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Latency of retrieval requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		zeroResultsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "zero_results_total",
			Help:      "Successful retrievals that returned no results.",
		}),

		expandedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "expanded_results_total",
			Help:      "Results added by link expansion.",
		}),

		entries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "entries",
			Help:      "Chunk entries held by each store.",
		}, []string{"store"}),

		documents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "documents",
			Help:      "Documents in the metadata store.",
		}),

		consistent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "consistent",
			Help:      "1 when the lexical and vector stores hold the same number of chunks as the metadata store.",
		}),
	}
}

// ObserveCycle implements index.Observer.
func (m *Metrics) ObserveCycle(r *index.Report) {
	if r == nil {
		return
	}
	kind := "incremental"
	if r.FullReindex {
		kind = "full"
	}
	m.cyclesTotal.WithLabelValues(kind).Inc()

	for outcome, n := range map[string]int{
		"added":     r.Added,
		"updated":   r.Updated,
		"removed":   r.Removed,
		"unchanged": r.Unchanged,
		"skipped":   r.Skipped,
		"failed":    r.Failed,
		"stale":     r.Stale,
	} {
		m.documentsTotal.WithLabelValues(outcome).Add(float64(n))
	}
	m.chunksEmbeddedTotal.Add(float64(r.ChunksEmbedded))
	m.embeddingCallsTotal.Add(float64(r.EmbeddingCalls))
	m.reconciledTotal.Add(float64(r.Reconciled))
	m.cycleDuration.Observe(r.Duration.Seconds())
	m.lastCycle.Set(float64(r.StartedAt.Add(r.Duration).Unix()))
}

// ObserveQuery implements search.Observer.
func (m *Metrics) ObserveQuery(resp *search.Response, err error) {
	if err != nil {
		m.queriesTotal.WithLabelValues(outcomeError).Inc()
		code := brainerrors.GetCode(err)
		if code == "" {
			code = "unknown"
		}
		m.queryErrorsTotal.WithLabelValues(code).Inc()
		return
	}
	if resp == nil {
		return
	}

	outcome := outcomeOK
	if resp.Degraded {
		outcome = outcomeDegraded
		m.degradedTotal.WithLabelValues(resp.DegradedPath).Inc()
	}
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(resp.Duration.Seconds())
	m.expandedTotal.Add(float64(resp.Expanded))
	if len(resp.Results) == 0 {
		m.zeroResultsTotal.Inc()
	}
}

// ObserveStatus sets the store gauges.
func (m *Metrics) ObserveStatus(s *index.Status) {
	if s == nil {
		return
	}
	m.documents.Set(float64(s.Documents))
	m.entries.WithLabelValues("metadata").Set(float64(s.Chunks))
	m.entries.WithLabelValues("lexical").Set(float64(s.LexicalEntries))
	m.entries.WithLabelValues("vector").Set(float64(s.VectorEntries))
	if s.Consistent {
		m.consistent.Set(1)
	} else {
		m.consistent.Set(0)
	}
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics_listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
