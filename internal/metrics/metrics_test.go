package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/internal/index"
	"github.com/Aman-CERP/notebrain/internal/search"
)

// sampleCount returns how many observations h has recorded.
func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestMetrics_ObserveCycle(t *testing.T) {
	m, _ := newTestMetrics(t)
	started := time.Unix(1_700_000_000, 0)

	// When: an incremental and a full cycle complete
	m.ObserveCycle(&index.Report{
		Added: 2, Updated: 1, Unchanged: 10, Failed: 1,
		ChunksEmbedded: 7, EmbeddingCalls: 2,
		StartedAt: started, Duration: 3 * time.Second,
	})
	m.ObserveCycle(&index.Report{FullReindex: true, Added: 3, Reconciled: 4})
	m.ObserveCycle(nil)

	// Then: counters accumulate across cycles
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cyclesTotal.WithLabelValues("incremental")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cyclesTotal.WithLabelValues("full")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.documentsTotal.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentsTotal.WithLabelValues("failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.chunksEmbeddedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.embeddingCallsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.reconciledTotal))
	assert.Equal(t, uint64(2), sampleCount(t, m.cycleDuration))
}

func TestMetrics_ObserveQuery(t *testing.T) {
	tests := []struct {
		name    string
		resp    *search.Response
		err     error
		outcome string
	}{
		{"ok", &search.Response{Results: []search.Result{{ChunkID: "a.md#0"}}, Expanded: 1}, nil, "ok"},
		{"degraded", &search.Response{Degraded: true, DegradedPath: search.PathVector}, nil, "degraded"},
		{"failed", nil, brainerrors.RetrievalError(brainerrors.ErrCodeRetrievalFailed, "both failed", nil), "error"},
		{"plain error", nil, errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMetrics(t)
			m.ObserveQuery(tt.resp, tt.err)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.queriesTotal.WithLabelValues(tt.outcome)))
		})
	}
}

func TestMetrics_QueryDetails(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveQuery(&search.Response{Degraded: true, DegradedPath: search.PathLexical}, nil)
	m.ObserveQuery(&search.Response{Results: []search.Result{{}, {}}, Expanded: 2}, nil)
	m.ObserveQuery(nil, brainerrors.RetrievalError(brainerrors.ErrCodeQueryEmpty, "empty", nil))
	m.ObserveQuery(nil, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.degradedTotal.WithLabelValues("lexical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.zeroResultsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.expandedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queryErrorsTotal.WithLabelValues(brainerrors.ErrCodeQueryEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queryErrorsTotal.WithLabelValues("unknown")))
}

func TestMetrics_ObserveStatus(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveStatus(&index.Status{Documents: 3, Chunks: 9, LexicalEntries: 9, VectorEntries: 8})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.documents))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.entries.WithLabelValues("vector")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.consistent))

	m.ObserveStatus(&index.Status{Chunks: 1, LexicalEntries: 1, VectorEntries: 1, Consistent: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consistent))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.ObserveQuery(&search.Response{}, nil)

	srv := httptest.NewServer(Handler(reg))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, string(body), `notebrain_retrieval_queries_total{outcome="ok"} 1`)
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
