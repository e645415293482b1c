package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
	"github.com/Aman-CERP/notebrain/pkg/version"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// newHTTPClient builds a pooled client. The request timeout comes from the
// caller's context, not http.Client.Timeout.
func newHTTPClient(poolSize int) (*http.Client, *http.Transport) {
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	return &http.Client{Transport: transport}, transport
}

// postJSON sends body as JSON and decodes a 200 response into out. Failures
// are classified into embedding error codes.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingMalformed,
			"failed to decode embedding response", err)
	}
	return nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingTimeout,
			"embedding request timed out", err)
	}
	return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingUnavailable,
		"embedding service unreachable", err)
}

func classifyStatus(status int, body string) error {
	cause := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingRateLimited,
			"embedding service rate limited the request", cause)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingTimeout,
			"embedding request timed out", cause)
	case status >= 500:
		return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingUnavailable,
			"embedding service error", cause)
	default:
		// 4xx other than 408/429 will not succeed on retry.
		return brainerrors.New(brainerrors.ErrCodeEmbeddingExhausted,
			"embedding request rejected", cause)
	}
}

// checkVectors validates the shape of a provider response.
func checkVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return brainerrors.EmbeddingError(brainerrors.ErrCodeEmbeddingMalformed,
			fmt.Sprintf("expected %d embeddings, got %d", want, len(vectors)), nil)
	}
	if dims <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dims {
			return brainerrors.New(brainerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding %d has %d dimensions, expected %d", i, len(v), dims), nil)
		}
	}
	return nil
}
