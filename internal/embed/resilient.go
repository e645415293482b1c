package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// DefaultEmbeddingCacheSize is the default number of cached vectors.
const DefaultEmbeddingCacheSize = 10000

// ResilientConfig tunes the wrapper.
type ResilientConfig struct {
	// BatchSize is the number of texts per request (default: DefaultBatchSize).
	BatchSize int

	// Retry is applied per request; retryable error codes only.
	Retry brainerrors.RetryConfig

	// RequestsPerSecond limits requests to the service (0 = unlimited).
	RequestsPerSecond float64

	// Timeout bounds a single request (default: DefaultTimeout).
	Timeout time.Duration

	// CacheSize is the LRU capacity (0 = DefaultEmbeddingCacheSize, <0 disables).
	CacheSize int

	// Breaker guards the service; nil creates a default breaker.
	Breaker *brainerrors.CircuitBreaker
}

// Stats counts service traffic.
type Stats struct {
	Requests  int64 // requests sent to the inner embedder
	Texts     int64 // texts sent to the inner embedder
	CacheHits int64
	Failures  int64 // requests that failed after retries
}

// Resilient wraps an Embedder with batching, rate limiting, retry with
// backoff, a circuit breaker and an LRU cache keyed by model and text.
// A batch that still fails after retries is retried item by item so one
// bad text cannot sink its neighbours.
type Resilient struct {
	inner   Embedder
	cfg     ResilientConfig
	limiter *rate.Limiter
	cache   *lru.Cache[string, []float32]
	breaker *brainerrors.CircuitBreaker
	logger  *slog.Logger

	requests  atomic.Int64
	texts     atomic.Int64
	cacheHits atomic.Int64
	failures  atomic.Int64
}

var _ Embedder = (*Resilient)(nil)

// NewResilient wraps inner.
func NewResilient(inner Embedder, cfg ResilientConfig, logger *slog.Logger) *Resilient {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = brainerrors.DefaultRetryConfig()
	}
	if cfg.Retry.RetryIf == nil {
		cfg.Retry.RetryIf = brainerrors.IsRetryable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resilient{inner: inner, cfg: cfg, breaker: cfg.Breaker, logger: logger}
	if r.breaker == nil {
		r.breaker = brainerrors.NewCircuitBreaker("embedding")
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultEmbeddingCacheSize
	}
	if size > 0 {
		r.cache, _ = lru.New[string, []float32](size)
	}
	return r
}

// cacheKey combines model and text so a model switch never serves stale
// vectors.
func (r *Resilient) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(r.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Embed generates embedding for a single text
func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in input order. It fails with
// ERR_305_EMBEDDING_EXHAUSTED if any text could not be embedded; vectors
// obtained before the failure stay cached.
func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var pending []int

	for i, text := range texts {
		if r.cache != nil {
			if vec, ok := r.cache.Get(r.cacheKey(text)); ok {
				results[i] = vec
				r.cacheHits.Add(1)
				continue
			}
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+r.cfg.BatchSize, len(pending))
		idx := pending[start:end]

		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := r.request(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(batch) == 1 {
				return nil, r.exhausted(err)
			}
			r.logger.Warn("embedding_batch_failed",
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()))
			if vecs, err = r.itemByItem(ctx, batch); err != nil {
				return nil, err
			}
		}

		for j, i := range idx {
			results[i] = vecs[j]
			if r.cache != nil {
				r.cache.Add(r.cacheKey(texts[i]), vecs[j])
			}
		}
	}

	return results, nil
}

// itemByItem retries a failed batch one text at a time.
func (r *Resilient) itemByItem(ctx context.Context, batch []string) ([][]float32, error) {
	out := make([][]float32, len(batch))
	for i, text := range batch {
		vecs, err := r.request(ctx, []string{text})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, r.exhausted(err)
		}
		out[i] = vecs[0]
		if r.cache != nil {
			r.cache.Add(r.cacheKey(text), vecs[0])
		}
	}
	return out, nil
}

// request sends one batch through limiter, breaker and retry.
func (r *Resilient) request(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := brainerrors.RetryWithResult(ctx, r.cfg.Retry, func() ([][]float32, error) {
		if !r.breaker.Allow() {
			return nil, brainerrors.ErrCircuitOpen
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		r.requests.Add(1)
		r.texts.Add(int64(len(batch)))
		vecs, err := r.inner.EmbedBatch(reqCtx, batch)
		if err != nil {
			if ctx.Err() == nil {
				r.breaker.RecordFailure()
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingTimeout, "embedding request timed out", err)
			}
			return nil, err
		}
		r.breaker.RecordSuccess()
		return vecs, nil
	})
	if err != nil {
		r.failures.Add(1)
	}
	return vecs, err
}

func (r *Resilient) exhausted(err error) error {
	if brainerrors.GetCode(err) == brainerrors.ErrCodeEmbeddingExhausted {
		return err
	}
	return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingExhausted,
		fmt.Sprintf("embedding failed after %d attempts", r.cfg.Retry.MaxAttempts), err)
}

// Stats returns traffic counters.
func (r *Resilient) Stats() Stats {
	return Stats{
		Requests:  r.requests.Load(),
		Texts:     r.texts.Load(),
		CacheHits: r.cacheHits.Load(),
		Failures:  r.failures.Load(),
	}
}

// BreakerState reports the circuit state for status output.
func (r *Resilient) BreakerState() brainerrors.State {
	return r.breaker.State()
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *Resilient) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (r *Resilient) ModelName() string {
	return r.inner.ModelName()
}

// Close closes the inner embedder.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

// Inner returns the wrapped embedder.
func (r *Resilient) Inner() Embedder {
	return r.inner
}
