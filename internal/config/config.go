// Package config loads notebrain configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	brainerrors "github.com/Aman-CERP/notebrain/internal/errors"
)

// Project config file names, checked in this order.
const (
	ProjectYAMLFile = ".notebrain.yaml"
	ProjectTOMLFile = ".notebrain.toml"
	envPrefix       = "NOTEBRAIN_"
)

// Config is the complete notebrain configuration.
type Config struct {
	Vault      VaultConfig      `yaml:"vault" toml:"vault" json:"vault"`
	Chunking   ChunkingConfig   `yaml:"chunking" toml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" toml:"index" json:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" toml:"retrieval" json:"retrieval"`
	Context    ContextConfig    `yaml:"context" toml:"context" json:"context"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch" json:"watch"`
	Server     ServerConfig     `yaml:"server" toml:"server" json:"server"`
}

// VaultConfig describes the document source.
type VaultConfig struct {
	// Path is the vault root. Empty means the directory passed to Load.
	Path           string   `yaml:"path" toml:"path" json:"path"`
	Extensions     []string `yaml:"extensions" toml:"extensions" json:"extensions"`
	IgnorePatterns []string `yaml:"ignore_patterns" toml:"ignore_patterns" json:"ignore_patterns"`
	MaxFileSizeMB  int      `yaml:"max_file_size_mb" toml:"max_file_size_mb" json:"max_file_size_mb"`
}

// ChunkingConfig bounds chunk size in characters.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size" toml:"max_chunk_size" json:"max_chunk_size"`
	Overlap      int `yaml:"overlap" toml:"overlap" json:"overlap"`
}

// EmbeddingsConfig selects and tunes the embedding service client.
type EmbeddingsConfig struct {
	// Provider is one of static, ollama, openai.
	Provider   string `yaml:"provider" toml:"provider" json:"provider"`
	Model      string `yaml:"model" toml:"model" json:"model"`
	// Dimensions of 0 uses the provider default (static: 256, remote: detected).
	Dimensions int    `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" toml:"ollama_host" json:"ollama_host"`
	BaseURL    string `yaml:"base_url" toml:"base_url" json:"base_url"`
	// APIKey is only read from the environment.
	APIKey            string  `yaml:"-" toml:"-" json:"-"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	MaxAttempts       int     `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
	InitialBackoff    string  `yaml:"initial_backoff" toml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        string  `yaml:"max_backoff" toml:"max_backoff" json:"max_backoff"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Timeout           string  `yaml:"timeout" toml:"timeout" json:"timeout"`
	CacheSize         int     `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
}

// IndexConfig selects storage backends and indexing parallelism.
type IndexConfig struct {
	// DataDir is relative to the vault root unless absolute.
	DataDir         string       `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	LexicalBackend  string       `yaml:"lexical_backend" toml:"lexical_backend" json:"lexical_backend"`
	VectorBackend   string       `yaml:"vector_backend" toml:"vector_backend" json:"vector_backend"`
	MetadataBackend string       `yaml:"metadata_backend" toml:"metadata_backend" json:"metadata_backend"`
	Workers         int          `yaml:"workers" toml:"workers" json:"workers"`
	Qdrant          QdrantConfig `yaml:"qdrant" toml:"qdrant" json:"qdrant"`
}

// QdrantConfig holds connection parameters for the qdrant vector backend.
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host" json:"host"`
	Port       int    `yaml:"port" toml:"port" json:"port"`
	Collection string `yaml:"collection" toml:"collection" json:"collection"`
	APIKey     string `yaml:"-" toml:"-" json:"-"`
	UseTLS     bool   `yaml:"use_tls" toml:"use_tls" json:"use_tls"`
}

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	// Fusion is "rrf" (default) or "weighted".
	Fusion            string  `yaml:"fusion" toml:"fusion" json:"fusion"`
	RRFConstant       int     `yaml:"rrf_constant" toml:"rrf_constant" json:"rrf_constant"`
	VectorWeight      float64 `yaml:"vector_weight" toml:"vector_weight" json:"vector_weight"`
	LexicalWeight     float64 `yaml:"lexical_weight" toml:"lexical_weight" json:"lexical_weight"`
	MaxResults        int     `yaml:"max_results" toml:"max_results" json:"max_results"`
	Overfetch         int     `yaml:"overfetch" toml:"overfetch" json:"overfetch"`
	Timeout           string  `yaml:"timeout" toml:"timeout" json:"timeout"`
	LinkExpansion     bool    `yaml:"link_expansion" toml:"link_expansion" json:"link_expansion"`
	LinkExpansionHops int     `yaml:"link_expansion_hops" toml:"link_expansion_hops" json:"link_expansion_hops"`
	ExpansionFraction float64 `yaml:"expansion_fraction" toml:"expansion_fraction" json:"expansion_fraction"`
}

// ContextConfig bounds the context bundle.
type ContextConfig struct {
	MaxTokens     int     `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	CharsPerToken float64 `yaml:"chars_per_token" toml:"chars_per_token" json:"chars_per_token"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce" toml:"debounce" json:"debounce"`
}

// ServerConfig covers process-level settings.
type ServerConfig struct {
	LogLevel    string `yaml:"log_level" toml:"log_level" json:"log_level"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Extensions:     []string{".md", ".markdown"},
			IgnorePatterns: []string{".obsidian/**", ".trash/**", "*.excalidraw.md"},
			MaxFileSizeMB:  10,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 512,
			Overlap:      50,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "static",
			Model:             "nomic-embed-text",
			Dimensions:        0,
			OllamaHost:        "http://localhost:11434",
			BaseURL:           "https://api.openai.com/v1",
			BatchSize:         100,
			MaxAttempts:       3,
			InitialBackoff:    "1s",
			MaxBackoff:        "10s",
			RequestsPerSecond: 10,
			Timeout:           "30s",
			CacheSize:         10000,
		},
		Index: IndexConfig{
			DataDir:         ".notebrain",
			LexicalBackend:  "memory",
			VectorBackend:   "hnsw",
			MetadataBackend: "sqlite",
			Workers:         4,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "notebrain",
			},
		},
		Retrieval: RetrievalConfig{
			Fusion:            "rrf",
			RRFConstant:       60,
			VectorWeight:      0.7,
			LexicalWeight:     0.3,
			MaxResults:        20,
			Overfetch:         3,
			Timeout:           "5s",
			LinkExpansion:     true,
			LinkExpansionHops: 1,
			ExpansionFraction: 0.25,
		},
		Context: ContextConfig{
			MaxTokens:     8000,
			CharsPerToken: 4,
		},
		Watch: WatchConfig{
			Debounce: "1s",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/notebrain/config.yaml or
// ~/.config/notebrain/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notebrain", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "notebrain", "config.yaml")
	}
	return filepath.Join(home, ".config", "notebrain", "config.yaml")
}

// Load builds the configuration for the vault at dir, in increasing precedence:
//  1. Defaults
//  2. User config (~/.config/notebrain/config.yaml)
//  3. Project config (.notebrain.yaml or .notebrain.toml in dir)
//  4. dir/.env (never overrides variables already set)
//  5. NOTEBRAIN_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadProjectFile(dir); err != nil {
		return nil, err
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, brainerrors.ConfigError("failed to read .env", err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	if cfg.Vault.Path == "" {
		cfg.Vault.Path = dir
	}
	if abs, err := filepath.Abs(cfg.Vault.Path); err == nil {
		cfg.Vault.Path = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadProjectFile(dir string) error {
	if path := filepath.Join(dir, ProjectYAMLFile); fileExists(path) {
		return c.loadYAML(path)
	}
	if path := filepath.Join(dir, ProjectTOMLFile); fileExists(path) {
		return c.loadTOML(path)
	}
	return nil
}

// loadYAML decodes path over the current values; absent keys keep them.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return brainerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

func (c *Config) loadTOML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return brainerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	float := func(name string, dst *float64) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}

	str("VAULT", &c.Vault.Path)
	num("MAX_CHUNK_SIZE", &c.Chunking.MaxChunkSize)
	num("CHUNK_OVERLAP", &c.Chunking.Overlap)
	str("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	num("EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)
	str("OLLAMA_HOST", &c.Embeddings.OllamaHost)
	str("OPENAI_BASE_URL", &c.Embeddings.BaseURL)
	str("LEXICAL_BACKEND", &c.Index.LexicalBackend)
	str("VECTOR_BACKEND", &c.Index.VectorBackend)
	str("METADATA_BACKEND", &c.Index.MetadataBackend)
	num("WORKERS", &c.Index.Workers)
	str("QDRANT_HOST", &c.Index.Qdrant.Host)
	num("QDRANT_PORT", &c.Index.Qdrant.Port)
	str("QDRANT_COLLECTION", &c.Index.Qdrant.Collection)
	str("QDRANT_API_KEY", &c.Index.Qdrant.APIKey)
	str("FUSION", &c.Retrieval.Fusion)
	num("RRF_CONSTANT", &c.Retrieval.RRFConstant)
	float("VECTOR_WEIGHT", &c.Retrieval.VectorWeight)
	float("LEXICAL_WEIGHT", &c.Retrieval.LexicalWeight)
	num("MAX_RESULTS", &c.Retrieval.MaxResults)
	num("MAX_TOKENS", &c.Context.MaxTokens)
	str("WATCH_DEBOUNCE", &c.Watch.Debounce)
	str("LOG_LEVEL", &c.Server.LogLevel)
	str("METRICS_ADDR", &c.Server.MetricsAddr)

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	str("OPENAI_API_KEY", &c.Embeddings.APIKey)
}

func (c *Config) normalize() {
	for _, p := range []*string{
		&c.Embeddings.Provider, &c.Index.LexicalBackend, &c.Index.VectorBackend,
		&c.Index.MetadataBackend, &c.Retrieval.Fusion, &c.Server.LogLevel,
	} {
		*p = strings.ToLower(strings.TrimSpace(*p))
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkSize <= 0 {
		return brainerrors.ConfigError(fmt.Sprintf("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize), nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return brainerrors.ConfigError(fmt.Sprintf("chunking.overlap must be in [0, max_chunk_size), got %d", c.Chunking.Overlap), nil).
			WithSuggestion("lower chunking.overlap")
	}

	if !oneOf(c.Embeddings.Provider, "static", "ollama", "openai") {
		return brainerrors.ConfigError(fmt.Sprintf("embeddings.provider must be 'static', 'ollama' or 'openai', got %s", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.BatchSize <= 0 {
		return brainerrors.ConfigError("embeddings.batch_size must be positive", nil)
	}
	if c.Embeddings.MaxAttempts <= 0 {
		return brainerrors.ConfigError("embeddings.max_attempts must be positive", nil)
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return brainerrors.ConfigError("embeddings.requests_per_second must be non-negative", nil)
	}

	if !oneOf(c.Index.LexicalBackend, "memory", "bleve", "sqlite") {
		return brainerrors.ConfigError(fmt.Sprintf("index.lexical_backend must be 'memory', 'bleve' or 'sqlite', got %s", c.Index.LexicalBackend), nil)
	}
	if !oneOf(c.Index.VectorBackend, "memory", "hnsw", "qdrant") {
		return brainerrors.ConfigError(fmt.Sprintf("index.vector_backend must be 'memory', 'hnsw' or 'qdrant', got %s", c.Index.VectorBackend), nil)
	}
	if !oneOf(c.Index.MetadataBackend, "memory", "sqlite") {
		return brainerrors.ConfigError(fmt.Sprintf("index.metadata_backend must be 'memory' or 'sqlite', got %s", c.Index.MetadataBackend), nil)
	}
	if c.Index.Workers <= 0 {
		return brainerrors.ConfigError(fmt.Sprintf("index.workers must be positive, got %d", c.Index.Workers), nil)
	}

	if !oneOf(c.Retrieval.Fusion, "rrf", "weighted") {
		return brainerrors.ConfigError(fmt.Sprintf("retrieval.fusion must be 'rrf' or 'weighted', got %s", c.Retrieval.Fusion), nil)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return brainerrors.ConfigError("retrieval.rrf_constant must be positive", nil)
	}
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.LexicalWeight < 0 ||
		c.Retrieval.VectorWeight+c.Retrieval.LexicalWeight == 0 {
		return brainerrors.ConfigError("retrieval weights must be non-negative and not both zero", nil)
	}
	if c.Retrieval.MaxResults <= 0 {
		return brainerrors.ConfigError("retrieval.max_results must be positive", nil)
	}
	if c.Retrieval.Overfetch < 1 {
		return brainerrors.ConfigError("retrieval.overfetch must be at least 1", nil)
	}
	if c.Retrieval.LinkExpansionHops < 0 {
		return brainerrors.ConfigError("retrieval.link_expansion_hops must be non-negative", nil)
	}
	if c.Retrieval.ExpansionFraction < 0 || c.Retrieval.ExpansionFraction > 1 {
		return brainerrors.ConfigError("retrieval.expansion_fraction must be between 0 and 1", nil)
	}

	if c.Context.MaxTokens <= 0 || c.Context.CharsPerToken <= 0 {
		return brainerrors.ConfigError("context.max_tokens and context.chars_per_token must be positive", nil)
	}

	for name, v := range map[string]string{
		"embeddings.initial_backoff": c.Embeddings.InitialBackoff,
		"embeddings.max_backoff":     c.Embeddings.MaxBackoff,
		"embeddings.timeout":         c.Embeddings.Timeout,
		"retrieval.timeout":          c.Retrieval.Timeout,
		"watch.debounce":             c.Watch.Debounce,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return brainerrors.ConfigError(fmt.Sprintf("%s is not a duration: %q", name, v), err)
		}
	}

	if !oneOf(c.Server.LogLevel, "debug", "info", "warn", "error") {
		return brainerrors.ConfigError(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel), nil)
	}
	return nil
}

// DataPath returns the absolute data directory for the vault.
func (c *Config) DataPath() string {
	if filepath.IsAbs(c.Index.DataDir) {
		return c.Index.DataDir
	}
	return filepath.Join(c.Vault.Path, c.Index.DataDir)
}

// Duration parses a validated duration string, falling back to def.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	v = strings.ToLower(v)
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
