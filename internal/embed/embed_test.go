package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notebrain/internal/config"
	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/pkg/version"
)

// fakeEmbedder fails according to failFor and records every request.
type fakeEmbedder struct {
	mu       sync.Mutex
	batches  [][]string
	failFor  func(texts []string) error
	closeErr error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.failFor != nil {
		if err := f.failFor(texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 2 }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return f.closeErr }

func (f *fakeEmbedder) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func fastRetry() brainerrors.RetryConfig {
	return brainerrors.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

var errUnavailable = brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingUnavailable, "down", nil)

func TestStaticEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewStaticEmbedder(0)

	a, err := e.Embed(context.Background(), "Quarterly planning meeting notes")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Quarterly planning meeting notes")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticEmbedder_SimilarTextsAreCloser(t *testing.T) {
	e := NewStaticEmbedder(128)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "garden tomatoes watering schedule")
	near, _ := e.Embed(ctx, "watering schedule for tomatoes in the garden")
	far, _ := e.Embed(ctx, "kubernetes cluster upgrade runbook")

	assert.Greater(t, dot(base, near), dot(base, far))
	assert.Equal(t, 128, e.Dimensions())
}

func TestStaticEmbedder_EmptyAndClosed(t *testing.T) {
	e := NewStaticEmbedder(0)
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StaticDimensions), v)

	require.NoError(t, e.Close())
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// TS01: Batching and caching
func TestResilient_BatchesAndCaches(t *testing.T) {
	// Given: a wrapper with batch size 2
	inner := &fakeEmbedder{}
	r := NewResilient(inner, ResilientConfig{BatchSize: 2, Retry: fastRetry()}, nil)

	// When: embedding five texts, then two of them again
	vecs, err := r.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	again, err := r.EmbedBatch(context.Background(), []string{"ccc", "a"})
	require.NoError(t, err)

	// Then: three requests were sent and repeats came from cache
	assert.Equal(t, 3, inner.requestCount())
	assert.Equal(t, float32(3), vecs[2][0])
	assert.Equal(t, []float32{3, 1}, again[0])
	stats := r.Stats()
	assert.Equal(t, int64(3), stats.Requests)
	assert.Equal(t, int64(5), stats.Texts)
	assert.Equal(t, int64(2), stats.CacheHits)
}

// TS02: Transient failures are retried
func TestResilient_RetriesTransientErrors(t *testing.T) {
	calls := 0
	inner := &fakeEmbedder{failFor: func([]string) error {
		calls++
		if calls < 3 {
			return errUnavailable
		}
		return nil
	}}
	r := NewResilient(inner, ResilientConfig{Retry: fastRetry()}, nil)

	_, err := r.EmbedBatch(context.Background(), []string{"x", "y"})

	require.NoError(t, err)
	assert.Equal(t, 3, inner.requestCount())
}

// TS03: A poisoned batch falls back to item-by-item
func TestResilient_FallsBackToItems(t *testing.T) {
	inner := &fakeEmbedder{failFor: func(texts []string) error {
		if len(texts) > 1 {
			return errUnavailable
		}
		return nil
	}}
	r := NewResilient(inner, ResilientConfig{Retry: fastRetry()}, nil)

	vecs, err := r.EmbedBatch(context.Background(), []string{"one", "three"})

	require.NoError(t, err)
	assert.Equal(t, float32(5), vecs[1][0])
	assert.Equal(t, 3+2, inner.requestCount(), "three batch attempts then two single-item requests")
}

// TS04: Exhaustion reports ERR_305 and keeps successful vectors cached
func TestResilient_Exhausted(t *testing.T) {
	inner := &fakeEmbedder{failFor: func(texts []string) error {
		for _, t := range texts {
			if t == "bad" {
				return errUnavailable
			}
		}
		return nil
	}}
	r := NewResilient(inner, ResilientConfig{Retry: fastRetry()}, nil)

	_, err := r.EmbedBatch(context.Background(), []string{"good", "bad"})

	require.Error(t, err)
	assert.Equal(t, brainerrors.ErrCodeEmbeddingExhausted, brainerrors.GetCode(err))
	assert.True(t, errors.Is(err, errUnavailable))

	before := inner.requestCount()
	_, err = r.Embed(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, before, inner.requestCount(), "good was cached during fallback")
}

func TestResilient_NonRetryableNotRetried(t *testing.T) {
	inner := &fakeEmbedder{failFor: func([]string) error {
		return brainerrors.New(brainerrors.ErrCodeDimensionMismatch, "bad dims", nil)
	}}
	r := NewResilient(inner, ResilientConfig{Retry: fastRetry()}, nil)

	_, err := r.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, 1, inner.requestCount())
}

func TestResilient_CircuitOpensAfterFailures(t *testing.T) {
	inner := &fakeEmbedder{failFor: func([]string) error { return errUnavailable }}
	breaker := brainerrors.NewCircuitBreaker("test", brainerrors.WithFailureThreshold(2), brainerrors.WithCooldown(time.Hour))
	r := NewResilient(inner, ResilientConfig{Retry: fastRetry(), Breaker: breaker}, nil)

	_, err := r.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.ErrorIs(t, err, brainerrors.ErrCircuitOpen)
	assert.Equal(t, 2, inner.requestCount())
	assert.Equal(t, brainerrors.StateOpen, r.BreakerState())
}

func TestResilient_CancelledContext(t *testing.T) {
	r := NewResilient(&fakeEmbedder{}, ResilientConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.EmbedBatch(ctx, []string{"x"})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	var got ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		resp := ollamaEmbedResponse{Model: got.Model}
		for range got.Input {
			resp.Embeddings = append(resp.Embeddings, []float64{3, 4})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.Equal(t, 2, e.Dimensions())
}

func TestOllamaEmbedder_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{http.StatusTooManyRequests, brainerrors.ErrCodeEmbeddingRateLimited, true},
		{http.StatusServiceUnavailable, brainerrors.ErrCodeEmbeddingUnavailable, true},
		{http.StatusGatewayTimeout, brainerrors.ErrCodeEmbeddingTimeout, true},
		{http.StatusBadRequest, brainerrors.ErrCodeEmbeddingExhausted, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL}).Embed(context.Background(), "x")

			require.Error(t, err)
			assert.Equal(t, tt.code, brainerrors.GetCode(err))
			assert.Equal(t, tt.retryable, brainerrors.IsRetryable(err))
		})
	}
}

func TestOllamaEmbedder_CountMismatchIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float64{{1}}})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL}).EmbedBatch(context.Background(), []string{"a", "b"})

	assert.Equal(t, brainerrors.ErrCodeEmbeddingMalformed, brainerrors.GetCode(err))
}

func TestOpenAIEmbedder_OrdersByIndexAndSendsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,2]},{"index":0,"embedding":[2,0]}],"model":"m"}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "m"})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestOpenAIEmbedder_RequiresKeyForHostedAPI(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{Model: "text-embedding-3-small"})
	assert.Error(t, err)
}

func TestNewEmbedder_FromConfig(t *testing.T) {
	cfg := config.NewConfig().Embeddings

	e, err := NewEmbedder(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())
	assert.Equal(t, StaticDimensions, e.Dimensions())

	cfg.Provider = "ollama"
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, p)

	cfg.Provider = "nope"
	_, err = NewProvider(cfg)
	assert.Equal(t, brainerrors.ErrCodeConfigInvalid, brainerrors.GetCode(err))
}
