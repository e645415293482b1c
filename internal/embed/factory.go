package embed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/notebrain/internal/config"
	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, default)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible /embeddings endpoint
	ProviderOpenAI ProviderType = "openai"
)

// NewProvider creates the bare client for the configured provider.
func NewProvider(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderStatic, "":
		return NewStaticEmbedder(cfg.Dimensions), nil
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, brainerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil)
	}
}

// NewEmbedder creates the configured provider wrapped in Resilient.
func NewEmbedder(cfg config.EmbeddingsConfig, logger *slog.Logger) (*Resilient, error) {
	inner, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	retry := brainerrors.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts
	retry.InitialDelay = config.Duration(cfg.InitialBackoff, retry.InitialDelay)
	retry.MaxDelay = config.Duration(cfg.MaxBackoff, retry.MaxDelay)
	retry.Jitter = true

	rps := cfg.RequestsPerSecond
	if ProviderType(cfg.Provider) == ProviderStatic {
		rps = 0
	}

	return NewResilient(inner, ResilientConfig{
		BatchSize:         cfg.BatchSize,
		Retry:             retry,
		RequestsPerSecond: rps,
		Timeout:           config.Duration(cfg.Timeout, 30*time.Second),
		CacheSize:         cfg.CacheSize,
	}, logger), nil
}
