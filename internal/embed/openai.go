package embed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// DefaultOpenAIBaseURL is the OpenAI API root; any compatible server works.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI-compatible embedder
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	PoolSize   int
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// OpenAIEmbedder calls POST {BaseURL}/embeddings
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai embedder requires a model")
	}
	if cfg.APIKey == "" && strings.HasPrefix(cfg.BaseURL, DefaultOpenAIBaseURL) {
		return nil, fmt.Errorf("openai embedder requires OPENAI_API_KEY")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	client, transport := newHTTPClient(cfg.PoolSize)
	return &OpenAIEmbedder{client: client, transport: transport, config: cfg, dims: cfg.Dimensions}, nil
}

// Embed generates embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.mu.RLock()
	closed, dims := e.closed, e.dims
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	headers := map[string]string{}
	if e.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + e.config.APIKey
	}

	var resp openAIEmbedResponse
	req := openAIEmbedRequest{Model: e.config.Model, Input: texts, Dimensions: e.config.Dimensions}
	if err := postJSON(ctx, e.client, e.config.BaseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, err
	}

	// The API may return data out of order; index is authoritative.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = normalizeVector(toFloat32(d.Embedding))
	}
	if dims == 0 && len(vectors) > 0 {
		dims = len(vectors[0])
		e.mu.Lock()
		e.dims = dims
		e.mu.Unlock()
	}
	if err := checkVectors(vectors, len(texts), dims); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension (0 until known)
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases idle connections
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
